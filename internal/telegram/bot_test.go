package telegram

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reading-leveler/internal/auth"
	"reading-leveler/internal/generation"
	"reading-leveler/internal/packaging"
	"reading-leveler/internal/pipeline"
	"reading-leveler/internal/storage"
	"reading-leveler/internal/usage"
	"reading-leveler/internal/workspace"
)

type fakeSender struct {
	sent    []tgbotapi.MessageConfig
	docs    []tgbotapi.DocumentConfig
	actions []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m)
	case tgbotapi.DocumentConfig:
		f.docs = append(f.docs, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if a, ok := c.(tgbotapi.ChatActionConfig); ok {
		f.actions = append(f.actions, a.Action)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

func newTestBot(t *testing.T, allowed []int64, admin int64) (*Bot, *fakeSender) {
	t.Helper()
	mem := storage.NewMemory()
	reg := workspace.NewRegistry(mem, workspace.Settings{
		Limits:        usage.Limits{PerDay: 1, PerMonth: 50},
		ThemeCapacity: 10,
		DraftIdle:     time.Second,
		Location:      time.UTC,
	})
	t.Cleanup(reg.Close)
	svc, err := auth.NewWithRepo(auth.NewStoreRepository(mem, auth.UsersKey), allowed)
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	p := pipeline.New(generation.Simulated{}, packaging.Local{})
	fs := &fakeSender{}
	b := newBot(fs, svc, reg, p, Options{
		AdminUserID: admin,
		ParseMode:   tgbotapi.ModeHTML,
		PendingRepo: auth.NewStoreRepository(mem, auth.PendingKey),
	})
	return b, fs
}

func textMsg(userID int64, text string) *tgbotapi.Message {
	m := &tgbotapi.Message{From: &tgbotapi.User{ID: userID, UserName: "reader"}, Chat: &tgbotapi.Chat{ID: userID}, Text: text}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return m
}

func TestPlainTextGeneratesArchive(t *testing.T) {
	b, fs := newTestBot(t, nil, 0)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(1, "/grade Primary 4"))
	b.handleIncomingMessage(ctx, textMsg(1, "/versions 2"))
	b.handleIncomingMessage(ctx, textMsg(1, "Hong Kong is a busy harbour city with many ferries."))

	if len(fs.docs) != 1 {
		t.Fatalf("expected one document, got %d (messages: %v)", len(fs.docs), fs.sent)
	}
	if len(fs.actions) != 1 || fs.actions[0] != tgbotapi.ChatUploadDocument {
		t.Fatalf("expected upload action, got %v", fs.actions)
	}
	doc := fs.docs[0]
	if doc.Caption != "Today: 1/1 | This month: 1/50" {
		t.Fatalf("unexpected caption: %q", doc.Caption)
	}
	file, ok := doc.File.(tgbotapi.FileBytes)
	if !ok || !strings.HasPrefix(file.Name, "leveled-reading-") {
		t.Fatalf("unexpected file: %#v", doc.File)
	}
	if _, err := packaging.Inspect(file.Bytes); err != nil {
		t.Fatalf("archive invalid: %v", err)
	}

	ws, _ := b.registry.Get(ClientID(1))
	themes, _ := ws.Themes.Load(ctx)
	if len(themes) != 1 || themes[0].Grade != "Primary 4" {
		t.Fatalf("theme not saved with grade: %+v", themes)
	}

	// second run hits the daily limit
	b.handleIncomingMessage(ctx, textMsg(1, "Another passage about ferries."))
	if len(fs.docs) != 1 || fs.last() != usage.DailyLimitReason(1) {
		t.Fatalf("expected quota message, got %q", fs.last())
	}
}

func TestThemesUseAndDelete(t *testing.T) {
	b, fs := newTestBot(t, nil, 0)
	ctx := context.Background()

	ws, _ := b.registry.Get(ClientID(5))
	th, err := ws.Themes.Save(ctx, "Ants & bees", "Ants live underground.", "Grade 2")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	b.handleIncomingMessage(ctx, textMsg(5, "/themes"))
	if !strings.Contains(fs.last(), "<b>Ants &amp; bees</b>") {
		t.Fatalf("theme list not formatted: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, textMsg(5, "/use 42"))
	if fs.last() != "Theme not found." {
		t.Fatalf("unexpected reply: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, textMsg(5, "/use "+strconv.FormatInt(th.ID, 10)))
	if len(fs.docs) != 1 {
		t.Fatalf("use should generate from the saved theme")
	}
	if b.getPrefs(5).grade != "Grade 2" {
		t.Fatalf("grade not taken from theme")
	}

	b.handleIncomingMessage(ctx, textMsg(5, "/delete "+strconv.FormatInt(th.ID, 10)))
	if fs.last() != "Done. 1 saved themes left." {
		t.Fatalf("unexpected reply: %q", fs.last())
	}
}

func TestUsageAndValidation(t *testing.T) {
	b, fs := newTestBot(t, nil, 0)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(3, "/usage"))
	if fs.last() != "Today: 0/1 | This month: 0/50" {
		t.Fatalf("unexpected usage: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, textMsg(3, "/versions 9"))
	if !strings.Contains(fs.last(), "Usage: /versions &lt;1-4&gt;") {
		t.Fatalf("unexpected reply: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, textMsg(3, "   "))
	if fs.last() != "Please send the passage you want leveled." {
		t.Fatalf("unexpected reply: %q", fs.last())
	}
}

func TestUnauthorizedFlow_PendingAndApprove(t *testing.T) {
	b, fs := newTestBot(t, []int64{100}, 100)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(7, "hello"))
	if len(fs.sent) != 2 {
		t.Fatalf("expected reply and admin notify, got %d", len(fs.sent))
	}
	if fs.sent[1].ChatID != 100 || !strings.Contains(fs.sent[1].Text, "wants to use the bot") {
		t.Fatalf("admin not notified: %+v", fs.sent[1])
	}

	b.handleIncomingMessage(ctx, textMsg(7, "hello again"))
	if !strings.Contains(fs.last(), "waiting for the administrator") {
		t.Fatalf("unexpected reply: %q", fs.last())
	}

	b.handleCallback(&tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 100}, Data: approvePrefix + "7"})
	if !b.authSvc.IsAllowed(7) {
		t.Fatalf("user should be approved")
	}
	if pending, _ := b.pendingRepo.LoadAll(); len(pending) != 0 {
		t.Fatalf("pending not cleared: %+v", pending)
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	b, fs := newTestBot(t, []int64{100, 200}, 100)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(200, "/allowlist"))
	if !strings.Contains(fs.last(), "Unknown command") {
		t.Fatalf("non-admin got: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, textMsg(100, "/allowlist"))
	if !strings.Contains(fs.last(), "id=200") {
		t.Fatalf("allowlist missing user: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, textMsg(100, "/remove 200"))
	if b.authSvc.IsAllowed(200) {
		t.Fatalf("user should be removed")
	}
}
