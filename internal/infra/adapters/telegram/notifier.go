package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"architect-studio/internal/config"
	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/infra/metrics"
)

var _ adapter.Notifier = (*Notifier)(nil)

// Notifier forwards studio notices to a single Telegram chat.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

// NewNotifier connects to the Bot API; it fails fast on a bad token.
func NewNotifier(cfg config.TelegramConfig, log *zerolog.Logger) (*Notifier, error) {
	return NewNotifierWithEndpoint(cfg, tgbotapi.APIEndpoint, http.DefaultClient, log)
}

// NewNotifierWithEndpoint is NewNotifier against a custom Bot API endpoint
// (format "<base>/bot%s/%s").
func NewNotifierWithEndpoint(cfg config.TelegramConfig, endpoint string, client *http.Client, log *zerolog.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Debug().Str("bot", bot.Self.UserName).Int64("chat_id", cfg.ChatID).Msg("telegram notifier ready")
	return &Notifier{bot: bot, chatID: cfg.ChatID, log: log}, nil
}

// Notify sends the notice as a plain message. When the text carries a link
// (a 3D viewer URL, for instance) it is also offered as an inline button.
func (n *Notifier) Notify(ctx context.Context, notice adapter.Notice) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := tgbotapi.NewMessage(n.chatID, formatNotice(notice))
	msg.DisableWebPagePreview = true
	if u := extractFirstURL(notice.Message); u != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Open", u)),
		)
	}
	if _, err := n.bot.Send(msg); err != nil {
		metrics.IncNotice("telegram", string(notice.Level), "error")
		n.log.Warn().Err(err).Str("workspace", notice.Workspace.Key()).Msg("telegram send failed")
		return fmt.Errorf("telegram send: %w", err)
	}
	metrics.IncNotice("telegram", string(notice.Level), "ok")
	return nil
}

func formatNotice(n adapter.Notice) string {
	var b strings.Builder
	if n.Level == adapter.NoticeError {
		b.WriteString("⚠️ ")
	} else {
		b.WriteString("✅ ")
	}
	b.WriteString("[")
	b.WriteString(n.Workspace.ProjectID)
	if n.Workspace.RoomID != "" {
		b.WriteString(" / ")
		b.WriteString(n.Workspace.RoomID)
	}
	b.WriteString("] ")
	b.WriteString(n.Message)
	return b.String()
}

var httpURLRe = regexp.MustCompile(`https?:\/\/(?:[-\w]+\.)+[a-zA-Z]{2,}(?::\d+)?(?:\/[^\s\\\n]*)?`)

func extractFirstURL(s string) string {
	if s == "" {
		return ""
	}
	loc := httpURLRe.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	return s[loc[0]:loc[1]]
}
