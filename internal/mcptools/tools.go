// Package mcptools exposes quota, theme history and generation as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/generation"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/pipeline"
	"reading-leveler/internal/workspace"
)

type ClientParams struct {
	ClientID string `json:"client_id,omitempty" mcp:"client namespace (default: anonymous)"`
}

type SaveThemeParams struct {
	ClientID string `json:"client_id,omitempty" mcp:"client namespace (default: anonymous)"`
	Title    string `json:"title,omitempty" mcp:"theme title"`
	Content  string `json:"content" mcp:"passage text"`
	Grade    string `json:"grade,omitempty" mcp:"target grade"`
}

type ThemeIDParams struct {
	ClientID string `json:"client_id,omitempty" mcp:"client namespace (default: anonymous)"`
	ID       int64  `json:"id" mcp:"theme id"`
}

type GenerateParams struct {
	ClientID     string `json:"client_id,omitempty" mcp:"client namespace (default: anonymous)"`
	OriginalText string `json:"original_text" mcp:"source passage to level"`
	TargetGrade  string `json:"target_grade,omitempty" mcp:"target grade"`
	VersionCount int    `json:"version_count,omitempty" mcp:"number of versions, 1-4 (default 3)"`
}

// Tools holds the handlers registered on an MCP server.
type Tools struct {
	registry   *workspace.Registry
	pipeline   *pipeline.Pipeline
	archiveDir string
}

func New(reg *workspace.Registry, p *pipeline.Pipeline, archiveDir string) *Tools {
	return &Tools{registry: reg, pipeline: p, archiveDir: archiveDir}
}

// Register adds every tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_usage",
		Description: "Shows today's and this month's usage and whether another generation is allowed",
	}, t.CheckUsage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_themes",
		Description: "Lists saved themes, oldest first",
	}, t.ListThemes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_theme",
		Description: "Saves a passage as a theme; the oldest theme is evicted when history is full",
	}, t.SaveTheme)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_theme",
		Description: "Deletes a saved theme by id and returns the remaining themes",
	}, t.DeleteTheme)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "use_theme",
		Description: "Returns the text and grade of a saved theme",
	}, t.UseTheme)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_materials",
		Description: "Generates leveled reading materials and writes the zip archive to disk",
	}, t.Generate)
}

func (t *Tools) CheckUsage(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ClientParams]) (*mcp.CallToolResultFor[any], error) {
	ws, err := t.registry.Get(params.Arguments.ClientID)
	if err != nil {
		return errorResult(err), nil
	}
	snap, err := ws.Usage.Snapshot(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	d, err := ws.Usage.Check(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	text := snap.String()
	if !d.Allowed {
		text += "\n" + d.Reason
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		Meta: map[string]interface{}{
			"allowed":     d.Allowed,
			"day_count":   snap.DayCount,
			"month_count": snap.MonthCount,
		},
	}, nil
}

func (t *Tools) ListThemes(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ClientParams]) (*mcp.CallToolResultFor[any], error) {
	ws, err := t.registry.Get(params.Arguments.ClientID)
	if err != nil {
		return errorResult(err), nil
	}
	themes, err := ws.Themes.Load(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(themes)
}

func (t *Tools) SaveTheme(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[SaveThemeParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	ws, err := t.registry.Get(args.ClientID)
	if err != nil {
		return errorResult(err), nil
	}
	if args.Content == "" {
		return errorResult(errors.New("content is required")), nil
	}
	theme, err := ws.Themes.Save(ctx, args.Title, args.Content, args.Grade)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(theme)
}

func (t *Tools) DeleteTheme(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ThemeIDParams]) (*mcp.CallToolResultFor[any], error) {
	ws, err := t.registry.Get(params.Arguments.ClientID)
	if err != nil {
		return errorResult(err), nil
	}
	themes, err := ws.Themes.Delete(ctx, params.Arguments.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(themes)
}

func (t *Tools) UseTheme(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ThemeIDParams]) (*mcp.CallToolResultFor[any], error) {
	ws, err := t.registry.Get(params.Arguments.ClientID)
	if err != nil {
		return errorResult(err), nil
	}
	theme, found, err := ws.Themes.Use(ctx, params.Arguments.ID)
	if err != nil {
		return errorResult(err), nil
	}
	if !found {
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("theme %d not found", params.Arguments.ID)}},
		}, nil
	}
	return jsonResult(theme)
}

func (t *Tools) Generate(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[GenerateParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	ws, err := t.registry.Get(args.ClientID)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := t.pipeline.Run(ctx, ws.Usage, ws.Themes, generation.Request{
		OriginalText: args.OriginalText,
		TargetGrade:  args.TargetGrade,
		VersionCount: args.VersionCount,
	})
	if err != nil {
		logger.LogEvent(logrus.WarnLevel, "generate_materials failed", logrus.Fields{"client_id": ws.ClientID, "error": err.Error()})
		return errorResult(err), nil
	}

	if err := os.MkdirAll(t.archiveDir, 0o755); err != nil {
		return errorResult(fmt.Errorf("create archive dir: %w", err)), nil
	}
	path := filepath.Join(t.archiveDir, res.ArchiveName)
	if err := os.WriteFile(path, res.Archive, 0o644); err != nil {
		return errorResult(fmt.Errorf("write archive: %w", err)), nil
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Saved %s\n%s", path, res.Usage.String())}},
		Meta: map[string]interface{}{
			"path":     path,
			"size":     len(res.Archive),
			"theme_id": res.Theme.ID,
		},
	}, nil
}

func errorResult(err error) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func jsonResult(v any) (*mcp.CallToolResultFor[any], error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err), nil
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}
