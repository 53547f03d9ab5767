package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/xerrors"

	"students-timetable/internal/domain"
)

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	"[", "", "]", "", ":", "", "*", "", "?", "", "/", ".", "\\", ".",
)

// ExcelExporter выгружает снимок в xlsx, по листу на каждый день.
type ExcelExporter struct {
	logger *slog.Logger
}

// NewExcelExporter создает новый экземпляр ExcelExporter.
func NewExcelExporter(logger *slog.Logger) *ExcelExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelExporter{logger: logger}
}

// Export пишет xlsx-файл в w.
func (e *ExcelExporter) Export(w io.Writer, snapshot domain.TimetableSnapshot) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Error("failed to close excel file", slog.String("error", err.Error()))
		}
	}()

	defaultSheet := f.GetSheetName(0)
	if snapshot.IsEmpty() {
		f.SetCellValue(defaultSheet, "A1", "Расписание не загружено")
		return f.Write(w)
	}

	headers := []string{"Группа", "Пара", "Предмет", "Кабинет"}
	var activeSheet string
	for dayIdx, day := range snapshot.Days {
		sheetName := SheetName(day.Date, dayIdx)
		if _, err := f.NewSheet(sheetName); err != nil {
			return xerrors.Errorf("failed to create sheet %q: %w", sheetName, err)
		}
		activeSheet = sheetName

		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheetName, cell, h)
		}

		row := 2
		for _, groupID := range day.GroupIDs() {
			group := day.Groups[groupID]
			if len(group.Lessons) == 0 {
				f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), groupID)
				f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), "нет пар")
				row++
				continue
			}
			for _, l := range group.Lessons {
				f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), groupID)
				f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), l.Slot)
				if l.Subject != "" {
					f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), l.Subject)
				}
				if l.Cabinet != "" {
					f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), l.Cabinet)
				}
				row++
			}
		}
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return xerrors.Errorf("failed to delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(activeSheet); err == nil && index >= 0 {
		f.SetActiveSheet(index)
	}

	if err := f.Write(w); err != nil {
		return xerrors.Errorf("failed to write excel: %w", err)
	}
	return nil
}

// SheetName приводит дату к допустимому имени листа.
func SheetName(date string, idx int) string {
	name := strings.TrimSpace(sheetNameReplacer.Replace(date))
	if name == "" {
		name = fmt.Sprintf("День %d", idx+1)
	}
	runes := []rune(name)
	if len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	return name
}
