package exporter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"students-timetable/internal/domain"
)

func TestExcelExporter(t *testing.T) {
	t.Run("лист на каждый день", func(t *testing.T) {
		snap := testSnapshot()
		snap.Days = append(snap.Days, domain.DaySnapshot{
			Date: "02/09",
			Groups: map[string]domain.GroupSchedule{
				"53": {GroupID: "53", Lessons: []domain.Lesson{{Slot: 1, Subject: "Физика", Cabinet: "101"}}},
			},
		})

		var buf bytes.Buffer
		require.NoError(t, NewExcelExporter(nil).Export(&buf, snap))

		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, []string{"01.09", "02.09"}, f.GetSheetList())

		rows, err := f.GetRows("01.09")
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"Группа", "Пара", "Предмет", "Кабинет"}, rows[0])
		assert.Equal(t, []string{"53", "1"}, rows[1], "пустые ячейки в конце строки не возвращаются")
		assert.Equal(t, []string{"53", "2", "Математика", "204"}, rows[2])
		assert.Equal(t, []string{"54", "", "нет пар"}, rows[3])
	})

	t.Run("пустой снимок", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewExcelExporter(nil).Export(&buf, domain.TimetableSnapshot{}))

		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()

		v, err := f.GetCellValue(f.GetSheetName(0), "A1")
		require.NoError(t, err)
		assert.Equal(t, "Расписание не загружено", v)
	})
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "01.09", SheetName("01.09", 0))
	assert.Equal(t, "01.09", SheetName("01/09", 0))
	assert.Equal(t, "День 3", SheetName("[]", 2))
	assert.Len(t, []rune(SheetName("Понедельник, 01.09.2025, верхняя неделя", 0)), 31)
}
