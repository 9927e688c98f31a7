package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// sheetWriter appends rows to sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limit
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, start, end, style)
		_ = w.file.SetPanes(w.currentSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	return nil
}

func (w *sheetWriter) writeRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *sheetWriter) save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *sheetWriter) close() error {
	return w.file.Close()
}
