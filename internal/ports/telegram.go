package ports

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotSender - часть *tgbotapi.BotAPI, которая нужна для отправки сообщений.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
