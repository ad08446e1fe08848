package telegram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/auth"
	"reading-leveler/internal/logger"
)

func (b *Bot) handleUnauthorized(msg *tgbotapi.Message) {
	logger.LogEvent(logrus.WarnLevel, "unauthorized access attempt", logrus.Fields{"user_id": msg.From.ID, "username": msg.From.UserName})

	b.mu.Lock()
	_, already := b.pending[msg.From.ID]
	u := auth.User{ID: msg.From.ID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName}
	if !already {
		b.pending[msg.From.ID] = u
	}
	b.mu.Unlock()

	if already {
		b.sendMessage(msg.Chat.ID, "Your access request is waiting for the administrator.")
		return
	}
	if b.pendingRepo != nil {
		_ = b.pendingRepo.Upsert(u)
	}
	b.sendMessage(msg.Chat.ID, "Access request sent to the administrator. You will be notified once it is approved.")
	b.notifyAdminRequest(msg.From.ID, msg.From.UserName)
}

func (b *Bot) notifyAdminRequest(userID int64, username string) {
	if b.adminUserID == 0 {
		return
	}
	text := fmt.Sprintf("User @%s with id %d wants to use the bot", b.escape(username), userID)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("approve", approvePrefix+strconv.FormatInt(userID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("deny", denyPrefix+strconv.FormatInt(userID, 10)),
		),
	)
	msg := tgbotapi.NewMessage(b.adminUserID, text)
	msg.ParseMode = b.parseMode
	msg.ReplyMarkup = kb
	_, _ = b.s.Send(msg)
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.From.ID != b.adminUserID {
		return
	}
	switch {
	case strings.HasPrefix(cb.Data, approvePrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, approvePrefix), 10, 64)
		if err == nil {
			b.approveUser(id)
		}
	case strings.HasPrefix(cb.Data, denyPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, denyPrefix), 10, 64)
		if err == nil {
			b.denyUser(id)
		}
	}
}

func (b *Bot) handleAdminCommand(msg *tgbotapi.Message) {
	if msg.From.ID != b.adminUserID || b.adminUserID == 0 {
		b.sendMessage(msg.Chat.ID, "Unknown command. Try /help")
		return
	}
	switch msg.Command() {
	case "allowlist":
		var bld strings.Builder
		bld.WriteString("Allowlist:\n")
		for _, u := range b.authSvc.List() {
			bld.WriteString(fmt.Sprintf("- id=%d @%s %s %s\n", u.ID, b.escape(u.Username), b.escape(u.FirstName), b.escape(u.LastName)))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "pending":
		b.mu.Lock()
		users := make([]auth.User, 0, len(b.pending))
		for _, u := range b.pending {
			users = append(users, u)
		}
		b.mu.Unlock()
		sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

		var bld strings.Builder
		bld.WriteString("Pending requests:\n")
		for _, u := range users {
			bld.WriteString(fmt.Sprintf("- id=%d @%s\n", u.ID, b.escape(u.Username)))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "approve", "deny", "remove":
		uid, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
		if err != nil {
			b.sendMessage(msg.Chat.ID, b.escape(fmt.Sprintf("Usage: /%s <user_id>", msg.Command())))
			return
		}
		switch msg.Command() {
		case "approve":
			b.approveUser(uid)
		case "deny":
			b.denyUser(uid)
		case "remove":
			if err := b.authSvc.Remove(uid); err != nil {
				b.sendMessage(msg.Chat.ID, b.escape(fmt.Sprintf("Remove failed: %v", err)))
				return
			}
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d removed from the allowlist", uid))
		}
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Try /help")
	}
}

func (b *Bot) approveUser(userID int64) {
	b.mu.Lock()
	u, ok := b.pending[userID]
	delete(b.pending, userID)
	b.mu.Unlock()
	if !ok {
		u = auth.User{ID: userID}
	}
	if err := b.authSvc.Upsert(u); err != nil {
		b.sendMessage(b.adminUserID, b.escape(fmt.Sprintf("Approve failed: %v", err)))
		return
	}
	if b.pendingRepo != nil {
		_ = b.pendingRepo.Remove(userID)
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("User %d approved", userID))
	b.sendMessage(userID, "Access granted. Send /help to get started.")
}

func (b *Bot) denyUser(userID int64) {
	b.mu.Lock()
	delete(b.pending, userID)
	b.mu.Unlock()
	if b.pendingRepo != nil {
		_ = b.pendingRepo.Remove(userID)
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("User %d denied", userID))
	b.sendMessage(userID, "Access denied.")
}
