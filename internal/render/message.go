// Package render формирует тексты сообщений для Telegram.
package render

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mattn/go-runewidth"

	"students-timetable/internal/domain"
)

// MaxMessageWidth - предел длины сообщения Telegram.
const MaxMessageWidth = 4096

// MarkdownRenderer формирует сообщения в разметке Markdown.
type MarkdownRenderer struct{}

// NewMarkdownRenderer создает рендерер.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// RenderGroupDay формирует сообщение с парами группы на день.
func (r *MarkdownRenderer) RenderGroupDay(date string, group domain.GroupSchedule) string {
	var sb strings.Builder
	if date != "" {
		sb.WriteString(fmt.Sprintf("День - %s\n", escape(date)))
	}

	if len(group.Lessons) == 0 {
		sb.WriteString(fmt.Sprintf("У %s группы нет пар", escape(group.GroupID)))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Группа: *%s*\n\n", escape(group.GroupID)))

	// Сообщение режется только по границе пары, чтобы не разорвать разметку.
	used := runewidth.StringWidth(sb.String())
	for i, l := range group.Lessons {
		block := lessonBlock(l)
		if i == len(group.Lessons)-1 {
			block = strings.TrimRight(block, "\n")
		}
		w := runewidth.StringWidth(block)
		if used+w > MaxMessageWidth-runewidth.StringWidth(truncatedTail) {
			sb.WriteString(truncatedTail)
			break
		}
		sb.WriteString(block)
		used += w
	}

	return sb.String()
}

const truncatedTail = "…"

func lessonBlock(l domain.Lesson) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Пара: №%d*\n", l.Slot))
	if l.Subject == "" {
		sb.WriteString("Предмет: -\n")
	} else {
		sb.WriteString(escape(l.Subject) + "\n")
	}
	if l.Cabinet == "" {
		sb.WriteString("Каб: -\n\n")
	} else {
		sb.WriteString("Каб: " + escape(l.Cabinet) + "\n\n")
	}
	return sb.String()
}

// RenderWeekAnnouncement формирует сообщение о выходе нового недельного расписания.
func (r *MarkdownRenderer) RenderWeekAnnouncement(interval string) string {
	if interval == "" {
		return "Вышло новое недельное расписание"
	}
	return fmt.Sprintf("Вышло новое недельное расписание: %s", escape(interval))
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
