package exporter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"students-timetable/internal/domain"
)

func testSnapshot() domain.TimetableSnapshot {
	return domain.TimetableSnapshot{Days: []domain.DaySnapshot{{
		Date: "01.09",
		Groups: map[string]domain.GroupSchedule{
			"53": {GroupID: "53", Date: "01.09", Lessons: []domain.Lesson{
				{Slot: 1, GroupID: "53"},
				{Slot: 2, Subject: "Математика", Cabinet: "204", GroupID: "53"},
			}},
			"54": {GroupID: "54", Date: "01.09", Lessons: []domain.Lesson{}},
		},
	}}}
}

func TestConsoleExporter(t *testing.T) {
	t.Run("Export выводит таблицу", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewConsoleExporter(80).Export(&buf, testSnapshot())
		require.NoError(t, err)

		output := buf.String()
		assert.Contains(t, output, "--- День: 01.09 ---")
		assert.Contains(t, output, "Математика")
		assert.Contains(t, output, "нет пар")
		assert.Less(t, strings.Index(output, "| 53"), strings.Index(output, "| 54"), "группы отсортированы")

		for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
			if strings.HasPrefix(line, "|") {
				assert.LessOrEqual(t, runewidth.StringWidth(line), 80)
			}
		}
	})

	t.Run("Export выводит сообщение для пустого снимка", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewConsoleExporter(0).Export(&buf, domain.TimetableSnapshot{}))
		assert.Equal(t, "Расписание не загружено.\n", buf.String())
	})

	t.Run("длинный предмет переносится", func(t *testing.T) {
		snap := testSnapshot()
		g := snap.Days[0].Groups["53"]
		g.Lessons = []domain.Lesson{{Slot: 1, Subject: "Основы права и экономики", Cabinet: "301"}}
		snap.Days[0].Groups["53"] = g

		var buf bytes.Buffer
		require.NoError(t, NewConsoleExporter(40).Export(&buf, snap))
		assert.Contains(t, buf.String(), "Основы права ")
		assert.Contains(t, buf.String(), "и экономики ")
	})
}

func TestWrapString(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapString("short", 10))
	assert.Equal(t, []string{"one two", "three"}, wrapString("one two three", 8))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, wrapString("abcdefghij", 4))
	assert.Equal(t, []string{"no limit here"}, wrapString("no limit here", 0))
}
