package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// TGBotAPIAdapter направляет журнал go-telegram-bot-api в slog.
//
// Библиотека пишет через Printf только отладочные дампы запросов (при
// BotAPI.Debug), а через Println сообщает о сбоях long polling. Поэтому
// Printf уходит в Debug, Println в Warn. Токен в URL вырезает маскирующий
// обработчик, если логгер построен через NewMaskedLogger.
type TGBotAPIAdapter struct {
	logger *slog.Logger
}

// NewTGBotAPIAdapter помечает записи библиотеки атрибутом component=tgbotapi.
func NewTGBotAPIAdapter(logger *slog.Logger) *TGBotAPIAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TGBotAPIAdapter{logger: logger.With(slog.String("component", "tgbotapi"))}
}

func (a *TGBotAPIAdapter) Println(v ...interface{}) {
	a.logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (a *TGBotAPIAdapter) Printf(format string, v ...interface{}) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
