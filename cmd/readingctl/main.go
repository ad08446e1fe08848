package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"reading-leveler/internal/analytics"
	"reading-leveler/internal/app"
	"reading-leveler/internal/config"
	"reading-leveler/internal/generation"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/usage"
	"reading-leveler/internal/workspace"
)

// Opener builds the application; tests swap it for an in-memory one.
type Opener func(ctx context.Context) (*app.App, error)

func defaultOpener(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Output: os.Stderr}); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

type cli struct {
	open   Opener
	client string
	app    *app.App
}

func newRootCmd(open Opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "readingctl",
		Short:         "readingctl - manage usage, saved themes and leveled reading generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVarP(&c.client, "client", "c", workspace.DefaultClientID, "client namespace")

	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Show today's and this month's usage",
		Args:  cobra.NoArgs,
		RunE:  c.runUsage,
	}

	themesCmd := &cobra.Command{
		Use:   "themes",
		Short: "Manage saved themes",
	}
	themesCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved themes, oldest first",
			Args:  cobra.NoArgs,
			RunE:  c.runThemesList,
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a saved theme",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runThemesDelete,
		},
		&cobra.Command{
			Use:   "use <id>",
			Short: "Print the text of a saved theme",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runThemesUse,
		},
	)

	var gen generateFlags
	generateCmd := &cobra.Command{
		Use:   "generate [text]",
		Short: "Generate leveled reading materials as a zip archive",
		Long:  "Generate leveled reading materials. The passage comes from the argument, --file, or stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGenerate(cmd, args, gen)
		},
	}
	generateCmd.Flags().StringVarP(&gen.grade, "grade", "g", "", "target grade")
	generateCmd.Flags().IntVarP(&gen.versions, "versions", "n", 0, "number of versions (1-4, default 3)")
	generateCmd.Flags().StringVarP(&gen.file, "file", "f", "", "read the passage from a file")
	generateCmd.Flags().StringVarP(&gen.out, "out", "o", "", "output path, '-' for stdout (default: ARCHIVE_DIR/<name>)")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stale usage counters of every client",
		Args:  cobra.NoArgs,
		RunE:  c.runPrune,
	}

	var rep reportFlags
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise usage of every client for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runReport(cmd, rep)
		},
	}
	reportCmd.Flags().StringVarP(&rep.date, "date", "d", "", "day to report, YYYY-MM-DD (default: today, UTC)")
	reportCmd.Flags().BoolVar(&rep.json, "json", false, "print JSON instead of text")

	root.AddCommand(usageCmd, themesCmd, generateCmd, pruneCmd, reportCmd)
	return root
}

func (c *cli) workspace() (*workspace.Workspace, error) {
	return c.app.Registry.Get(c.client)
}

func (c *cli) runUsage(cmd *cobra.Command, _ []string) error {
	ws, err := c.workspace()
	if err != nil {
		return err
	}
	snap, err := ws.Usage.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	d, err := ws.Usage.Check(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, snap.String())
	if !d.Allowed {
		fmt.Fprintln(out, d.Reason)
	}
	return nil
}

func (c *cli) runThemesList(cmd *cobra.Command, _ []string) error {
	ws, err := c.workspace()
	if err != nil {
		return err
	}
	themes, err := ws.Themes.Load(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(themes) == 0 {
		fmt.Fprintln(out, "No saved themes.")
		return nil
	}
	for _, t := range themes {
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", t.ID, t.CreatedAt, t.Grade, t.Title)
	}
	return nil
}

func (c *cli) runThemesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ws, err := c.workspace()
	if err != nil {
		return err
	}
	themes, err := ws.Themes.Delete(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d saved themes left\n", len(themes))
	return nil
}

func (c *cli) runThemesUse(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ws, err := c.workspace()
	if err != nil {
		return err
	}
	theme, found, err := ws.Themes.Use(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(cmd.ErrOrStderr(), "theme %d not found\n", id)
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(theme)
}

type generateFlags struct {
	grade    string
	versions int
	file     string
	out      string
}

func (c *cli) runGenerate(cmd *cobra.Command, args []string, f generateFlags) error {
	text, err := readPassage(cmd.InOrStdin(), args, f.file)
	if err != nil {
		return err
	}
	ws, err := c.workspace()
	if err != nil {
		return err
	}

	res, err := c.app.Pipeline.Run(cmd.Context(), ws.Usage, ws.Themes, generation.Request{
		OriginalText: text,
		TargetGrade:  f.grade,
		VersionCount: f.versions,
	})
	if err != nil {
		return err
	}

	if f.out == "-" {
		_, err := cmd.OutOrStdout().Write(res.Archive)
		return err
	}
	path := f.out
	if path == "" {
		path = filepath.Join(c.app.Config.ArchiveDir, res.ArchiveName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, res.Archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n%s\n", path, res.Usage.String())
	return nil
}

func (c *cli) runPrune(cmd *cobra.Command, _ []string) error {
	removed, err := usage.Prune(cmd.Context(), c.app.Store, time.Now(), c.app.Retention())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d usage counters\n", removed)
	return nil
}

type reportFlags struct {
	date string
	json bool
}

func (c *cli) runReport(cmd *cobra.Command, f reportFlags) error {
	day := time.Now()
	if f.date != "" {
		d, err := time.Parse("2006-01-02", f.date)
		if err != nil {
			return fmt.Errorf("invalid --date %q", f.date)
		}
		day = d
	}
	stats, err := analytics.AnalyzeUsage(cmd.Context(), c.app.Store, day)
	if err != nil {
		return err
	}
	if f.json {
		js, err := stats.ToJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), js)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), stats.GenerateReportSummary())
	return nil
}

func readPassage(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read passage: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid theme id %q", s)
	}
	return id, nil
}

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCmd(defaultOpener).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
