package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"clinicbook/internal/models"
)

// ScheduleWriter renders availability data into an Excel workbook for
// clinic staff who plan around the calendar offline.
type ScheduleWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewScheduleWriter creates an empty workbook.
func NewScheduleWriter() *ScheduleWriter {
	return &ScheduleWriter{file: excelize.NewFile()}
}

// AddSheet adds (or renames the default) sheet and resets the cursor.
func (w *ScheduleWriter) AddSheet(name string) error {
	// Excel caps sheet names at 31 chars.
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		w.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers on the current sheet.
func (w *ScheduleWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	w.currentRow++
	return nil
}

// WriteRow appends one data row to the current sheet.
func (w *ScheduleWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

// Save writes the workbook to the writer.
func (w *ScheduleWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases workbook resources.
func (w *ScheduleWriter) Close() error {
	return w.file.Close()
}

// WriteHeatmap renders a heatmap as a single-sheet workbook.
func WriteHeatmap(wr io.Writer, title string, days []models.DayHeatmapEntry) error {
	w := NewScheduleWriter()
	defer w.Close()

	if err := w.AddSheet(title); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Date", "Available Slots"}); err != nil {
		return err
	}
	for _, d := range days {
		if err := w.WriteRow([]interface{}{d.Date, d.AvailableSlots}); err != nil {
			return err
		}
	}
	return w.Save(wr)
}
