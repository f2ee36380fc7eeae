package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/vigild/internal/gateway"
	"github.com/user/vigild/internal/types"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the gateway. The chat ID doubles as the
// opaque user identifier, so delivery works across restarts without any
// session mapping.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	registry types.Registry
	gateway  *gateway.Gateway
}

// New creates a Telegram adapter.
func New(token string, registry types.Registry, gw *gateway.Gateway) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:      bot,
		registry: registry,
		gateway:  gw,
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// handleMessage registers/touches the sender and enqueues the text into
// the user's lane. Registration is idempotent; a previously unseen chat
// triggers the scheduler's acquire hook.
func (a *Adapter) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := types.UserID(strconv.FormatInt(chatID, 10))

	if _, err := a.registry.Register(userID, displayName(msg)); err != nil {
		slog.Error("register user", "user_id", string(userID), "error", err)
	}

	err := a.gateway.Enqueue(&gateway.Inbound{
		UserID:      userID,
		DisplayName: displayName(msg),
		Text:        msg.Text,
		OnComplete: func(reply string) {
			a.send(chatID, reply)
		},
	})
	if err != nil {
		slog.Error("enqueue inbound", "user_id", string(userID), "error", err)
		a.send(chatID, "Sorry, I'm overloaded right now. Please try again in a moment.")
	}
}

// Deliver implements the transport boundary for scheduler-initiated sends.
func (a *Adapter) Deliver(id types.UserID, text string) error {
	chatID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return fmt.Errorf("bad user id %q: %w", id, err)
	}
	return a.send(chatID, text)
}

// Broadcast sends a notice to every active user, used for start/stop
// announcements. Failures for one user don't stop the rest.
func (a *Adapter) Broadcast(text string) {
	users, err := a.registry.List(types.StatusActive)
	if err != nil {
		slog.Error("list users for broadcast", "error", err)
		return
	}
	for _, u := range users {
		if err := a.Deliver(u.UserID, text); err != nil {
			slog.Error("broadcast", "user_id", string(u.UserID), "error", err)
		}
	}
}

func (a *Adapter) send(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func displayName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.UserName
	}
	return name
}
