package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"students-timetable/internal/ports"
)

var (
	// ErrFloodWaitActive возвращается, когда Telegram ответил 429 и просит подождать.
	ErrFloodWaitActive = errors.New("bot is in flood wait")
	// ErrRecipientUnavailable - пользователь заблокировал бота или удалил чат.
	ErrRecipientUnavailable = errors.New("recipient unavailable")
)

// Option - функциональная опция для Transport.
type Option func(*Transport)

// WithParseMode задает режим разметки сообщений. Пустая строка - обычный текст.
func WithParseMode(mode string) Option {
	return func(t *Transport) {
		t.parseMode = mode
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// Transport доставляет сообщения через Bot API. Одна попытка на сообщение.
type Transport struct {
	bot       ports.BotSender
	parseMode string
	log       *slog.Logger
}

// NewTransport создает транспорт поверх бота. По умолчанию сообщения уходят в Markdown.
func NewTransport(bot ports.BotSender, opts ...Option) *Transport {
	t := &Transport{
		bot:       bot,
		parseMode: tgbotapi.ModeMarkdown,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send отправляет одно сообщение одному пользователю.
func (t *Transport) Send(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = t.parseMode
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return classifyError(err)
	}
	return nil
}

// classifyError приводит ошибки Bot API к ошибкам транспорта.
func classifyError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("send failed: %w", err)
	}

	switch {
	case apiErr.Code == 429 || apiErr.RetryAfter > 0:
		return fmt.Errorf("%w: retry after %ds: %s", ErrFloodWaitActive, apiErr.RetryAfter, apiErr.Message)
	case apiErr.Code == 403:
		return fmt.Errorf("%w: %s", ErrRecipientUnavailable, apiErr.Message)
	default:
		return fmt.Errorf("send failed (%d): %s", apiErr.Code, apiErr.Message)
	}
}

// AdminChannel рассылает служебные сообщения администраторам обычным текстом.
// Ошибки доставки только логируются.
type AdminChannel struct {
	transport *Transport
	adminIDs  []int64
	log       *slog.Logger
}

// NewAdminChannel создает служебный канал.
func NewAdminChannel(bot ports.BotSender, adminIDs []int64, logger *slog.Logger) *AdminChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminChannel{
		transport: NewTransport(bot, WithParseMode(""), WithLogger(logger)),
		adminIDs:  adminIDs,
		log:       logger,
	}
}

// Notify отправляет текст каждому администратору.
func (a *AdminChannel) Notify(ctx context.Context, text string) {
	for _, id := range a.adminIDs {
		if err := a.transport.Send(ctx, id, text); err != nil {
			a.log.Warn("failed to notify admin", slog.Int64("admin_id", id), "error", err)
		}
	}
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (a *AdminChannel) IsAdmin(userID int64) bool {
	for _, id := range a.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
