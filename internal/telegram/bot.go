package telegram

import (
	"context"
	"fmt"
	"html"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/auth"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/pipeline"
	"reading-leveler/internal/workspace"
)

const (
	approvePrefix = "approve:"
	denyPrefix    = "deny:"
)

type Options struct {
	AdminUserID int64
	ParseMode   string
	PendingRepo auth.Repository
}

// prefs are the per-user generation settings set with /grade and /versions.
type prefs struct {
	grade    string
	versions int
}

type Bot struct {
	s           sender
	api         *tgbotapi.BotAPI
	authSvc     *auth.Service
	pendingRepo auth.Repository
	registry    *workspace.Registry
	pipeline    *pipeline.Pipeline
	adminUserID int64
	parseMode   string

	mu      sync.Mutex
	prefs   map[int64]prefs
	pending map[int64]auth.User
}

func New(botToken string, authSvc *auth.Service, reg *workspace.Registry, p *pipeline.Pipeline, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPISender{api: api}, authSvc, reg, p, opts)
	b.api = api
	return b, nil
}

func newBot(s sender, authSvc *auth.Service, reg *workspace.Registry, p *pipeline.Pipeline, opts Options) *Bot {
	b := &Bot{
		s:           s,
		authSvc:     authSvc,
		pendingRepo: opts.PendingRepo,
		registry:    reg,
		pipeline:    p,
		adminUserID: opts.AdminUserID,
		parseMode:   opts.ParseMode,
		prefs:       make(map[int64]prefs),
		pending:     make(map[int64]auth.User),
	}
	if b.pendingRepo != nil {
		if users, err := b.pendingRepo.LoadAll(); err == nil {
			for _, u := range users {
				b.pending[u.ID] = u
			}
		}
	}
	return b
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				b.handleCallback(update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.handleUnauthorized(msg)
		return
	}

	logger.LogEvent(logrus.DebugLevel, "incoming message", logrus.Fields{
		"user_id":  msg.From.ID,
		"username": msg.From.UserName,
		"command":  msg.Command(),
	})

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	p := b.getPrefs(msg.From.ID)
	b.generate(ctx, msg.Chat.ID, msg.From.ID, msg.Text, p.grade, p.versions)
}

func (b *Bot) getPrefs(userID int64) prefs {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prefs[userID]
	if !ok {
		p = prefs{versions: pipeline.DefaultVersions}
	}
	return p
}

func (b *Bot) updatePrefs(userID int64, f func(*prefs)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prefs[userID]
	if !ok {
		p = prefs{versions: pipeline.DefaultVersions}
	}
	f(&p)
	b.prefs[userID] = p
}

func (b *Bot) workspace(userID int64) (*workspace.Workspace, error) {
	return b.registry.Get(ClientID(userID))
}

// ClientID is the workspace id used for a Telegram user.
func ClientID(userID int64) string {
	return fmt.Sprintf("tg-%d", userID)
}

func (b *Bot) escape(s string) string {
	if b.parseMode == tgbotapi.ModeHTML {
		return html.EscapeString(s)
	}
	return s
}

func (b *Bot) bold(s string) string {
	if b.parseMode == tgbotapi.ModeHTML {
		return "<b>" + html.EscapeString(s) + "</b>"
	}
	return s
}

// sendMessage sends text as is; callers escape user content with b.escape.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseMode
	if _, err := b.s.Send(msg); err != nil {
		logger.Logger.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Warn("failed to send message")
	}
}
