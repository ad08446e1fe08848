package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/generation"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/pipeline"
)

const helpText = `Send me a passage and I will return leveled reading materials as a ZIP file.

/grade <label> - set the target grade, e.g. /grade Primary 4
/versions <1-4> - how many leveled versions to produce
/usage - remaining uses today and this month
/themes - your recent submissions
/use <id> - generate again from a saved theme
/delete <id> - remove a saved theme`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.sendMessage(chatID, b.escape(helpText))
	case "grade":
		if args == "" {
			grade := b.getPrefs(userID).grade
			if grade == "" {
				grade = "not set"
			}
			b.sendMessage(chatID, "Target grade: "+b.escape(grade))
			return
		}
		b.updatePrefs(userID, func(p *prefs) { p.grade = args })
		b.sendMessage(chatID, "Target grade set to "+b.escape(args))
	case "versions":
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > pipeline.MaxVersions {
			b.sendMessage(chatID, b.escape(fmt.Sprintf("Usage: /versions <1-%d>", pipeline.MaxVersions)))
			return
		}
		b.updatePrefs(userID, func(p *prefs) { p.versions = n })
		b.sendMessage(chatID, fmt.Sprintf("Versions set to %d", n))
	case "usage":
		b.handleUsage(ctx, chatID, userID)
	case "themes":
		b.handleThemes(ctx, chatID, userID)
	case "use":
		b.handleUseTheme(ctx, chatID, userID, args)
	case "delete":
		b.handleDeleteTheme(ctx, chatID, userID, args)
	default:
		b.handleAdminCommand(msg)
	}
}

func (b *Bot) handleUsage(ctx context.Context, chatID, userID int64) {
	ws, err := b.workspace(userID)
	if err != nil {
		b.reportError(chatID, "workspace", err)
		return
	}
	snap, err := ws.Usage.Snapshot(ctx)
	if err != nil {
		b.reportError(chatID, "usage snapshot", err)
		return
	}
	b.sendMessage(chatID, snap.String())
}

func (b *Bot) handleThemes(ctx context.Context, chatID, userID int64) {
	ws, err := b.workspace(userID)
	if err != nil {
		b.reportError(chatID, "workspace", err)
		return
	}
	themes, err := ws.Themes.Load(ctx)
	if err != nil {
		b.reportError(chatID, "load themes", err)
		return
	}
	if len(themes) == 0 {
		b.sendMessage(chatID, "No saved themes yet.")
		return
	}
	var bld strings.Builder
	bld.WriteString("Saved themes:\n")
	// newest first
	for i := len(themes) - 1; i >= 0; i-- {
		t := themes[i]
		bld.WriteString(fmt.Sprintf("\n%s\n%s · %s · /use %d\n", b.bold(t.Title), b.escape(t.Grade), t.CreatedAt, t.ID))
	}
	b.sendMessage(chatID, bld.String())
}

func (b *Bot) handleUseTheme(ctx context.Context, chatID, userID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendMessage(chatID, b.escape("Usage: /use <id>"))
		return
	}
	ws, err := b.workspace(userID)
	if err != nil {
		b.reportError(chatID, "workspace", err)
		return
	}
	theme, found, err := ws.Themes.Use(ctx, id)
	if err != nil {
		b.reportError(chatID, "use theme", err)
		return
	}
	if !found {
		b.sendMessage(chatID, "Theme not found.")
		return
	}
	b.updatePrefs(userID, func(p *prefs) { p.grade = theme.Grade })
	b.generate(ctx, chatID, userID, theme.Content, theme.Grade, b.getPrefs(userID).versions)
}

func (b *Bot) handleDeleteTheme(ctx context.Context, chatID, userID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendMessage(chatID, b.escape("Usage: /delete <id>"))
		return
	}
	ws, err := b.workspace(userID)
	if err != nil {
		b.reportError(chatID, "workspace", err)
		return
	}
	themes, err := ws.Themes.Delete(ctx, id)
	if err != nil {
		b.reportError(chatID, "delete theme", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Done. %d saved themes left.", len(themes)))
}

func (b *Bot) generate(ctx context.Context, chatID, userID int64, text, grade string, versions int) {
	ws, err := b.workspace(userID)
	if err != nil {
		b.reportError(chatID, "workspace", err)
		return
	}
	req := generation.Request{OriginalText: text, TargetGrade: grade, VersionCount: versions}
	if _, err := pipeline.Normalize(req); err == nil {
		b.sendMessage(chatID, "Generating materials, this can take a minute...")
		if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadDocument)); err != nil {
			logger.Logger.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Debug("chat action failed")
		}
	}

	res, err := b.pipeline.Run(ctx, ws.Usage, ws.Themes, req)
	if err != nil {
		var qe *pipeline.QuotaError
		var se *pipeline.StageError
		switch {
		case errors.Is(err, pipeline.ErrEmptyText):
			b.sendMessage(chatID, "Please send the passage you want leveled.")
		case errors.Is(err, pipeline.ErrInvalidVersions):
			b.sendMessage(chatID, b.escape(err.Error()))
		case errors.As(err, &qe):
			b.sendMessage(chatID, b.escape(qe.Reason))
		case errors.As(err, &se):
			logger.LogEvent(logrus.WarnLevel, "generation failed", logrus.Fields{"user_id": userID, "stage": se.Stage, "error": se.Err.Error()})
			b.sendMessage(chatID, "Generation failed, please try again later.")
		default:
			b.reportError(chatID, "pipeline", err)
		}
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: res.ArchiveName, Bytes: res.Archive})
	doc.Caption = res.Usage.String()
	if _, err := b.s.Send(doc); err != nil {
		logger.Logger.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Error("failed to send archive")
	}
}

func (b *Bot) reportError(chatID int64, op string, err error) {
	logger.Logger.WithFields(logrus.Fields{"op": op, "error": err}).Error("telegram request failed")
	b.sendMessage(chatID, "Sorry, something went wrong.")
}
