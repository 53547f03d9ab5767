package exporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"students-timetable/internal/domain"
)

const (
	groupColWidth   = 6
	slotColWidth    = 3
	cabinetColWidth = 10
	minSubjectWidth = 12
	defaultWidth    = 80
)

// ConsoleExporter реализует интерфейс Exporter для вывода расписания таблицей в терминал.
type ConsoleExporter struct {
	width int
}

// NewConsoleExporter создает новый экземпляр ConsoleExporter.
// width - ширина терминала, при width <= 0 используется 80 колонок.
func NewConsoleExporter(width int) *ConsoleExporter {
	if width <= 0 {
		width = defaultWidth
	}
	return &ConsoleExporter{width: width}
}

// Export выводит все дни снимка. Длинные предметы переносятся по словам.
func (e *ConsoleExporter) Export(w io.Writer, snapshot domain.TimetableSnapshot) error {
	if snapshot.IsEmpty() {
		_, err := fmt.Fprintln(w, "Расписание не загружено.")
		return err
	}

	// 4 колонки: разделители "| " и " |" занимают 13 символов.
	subjectWidth := e.width - groupColWidth - slotColWidth - cabinetColWidth - 13
	if subjectWidth < minSubjectWidth {
		subjectWidth = minSubjectWidth
	}
	widths := []int{groupColWidth, slotColWidth, subjectWidth, cabinetColWidth}

	var sb strings.Builder
	for _, day := range snapshot.Days {
		sb.WriteString(fmt.Sprintf("--- День: %s ---\n", day.Date))
		writeRow(&sb, widths, []string{"Группа", "№", "Предмет", "Каб"})
		writeSeparator(&sb, widths)

		for _, groupID := range day.GroupIDs() {
			group := day.Groups[groupID]
			if len(group.Lessons) == 0 {
				writeRow(&sb, widths, []string{groupID, "", "нет пар", ""})
				continue
			}
			for i, l := range group.Lessons {
				label := ""
				if i == 0 {
					label = groupID
				}
				subject := l.Subject
				if subject == "" {
					subject = "-"
				}
				cabinet := l.Cabinet
				if cabinet == "" {
					cabinet = "-"
				}
				writeRow(&sb, widths, []string{label, fmt.Sprint(l.Slot), subject, cabinet})
			}
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// writeRow печатает одну логическую строку, которая может занять несколько строк терминала.
func writeRow(sb *strings.Builder, widths []int, cells []string) {
	wrapped := make([][]string, len(cells))
	maxLines := 1
	for i, cell := range cells {
		wrapped[i] = wrapString(strings.ReplaceAll(cell, "\n", " "), widths[i])
		if len(wrapped[i]) > maxLines {
			maxLines = len(wrapped[i])
		}
	}

	for line := 0; line < maxLines; line++ {
		for i := range cells {
			part := ""
			if line < len(wrapped[i]) {
				part = wrapped[i][line]
			}
			sb.WriteString("| ")
			sb.WriteString(runewidth.FillRight(part, widths[i]))
			sb.WriteString(" ")
		}
		sb.WriteString("|\n")
	}
}

func writeSeparator(sb *strings.Builder, widths []int) {
	for _, w := range widths {
		sb.WriteString("|")
		sb.WriteString(strings.Repeat("-", w+2))
	}
	sb.WriteString("|\n")
}

// wrapString переносит строку по словам под ширину width.
// Слово длиннее ширины разрезается посередине.
func wrapString(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}

	var lines []string
	var currentLine strings.Builder
	for _, word := range strings.Fields(s) {
		wordWidth := runewidth.StringWidth(word)

		if wordWidth > width {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
			lines = append(lines, splitRunes(word, width)...)
			continue
		}

		lineLen := runewidth.StringWidth(currentLine.String())
		if lineLen > 0 && lineLen+1+wordWidth > width {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

func splitRunes(word string, width int) []string {
	var lines []string
	runes := []rune(word)
	for len(runes) > 0 {
		i := 0
		currentWidth := 0
		for i < len(runes) {
			rw := runewidth.RuneWidth(runes[i])
			if currentWidth+rw > width && i > 0 {
				break
			}
			currentWidth += rw
			i++
		}
		lines = append(lines, string(runes[:i]))
		runes = runes[i:]
	}
	return lines
}
