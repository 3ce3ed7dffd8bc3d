package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of workbooks produced by WriteXLSX.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// timestampNumFmt is the built-in "m/d/yy h:mm" number format.
const timestampNumFmt = 22

// WriteXLSX renders a report as a single-sheet workbook named after the base
// entity. The first row holds the column labels.
func WriteXLSX(w io.Writer, result *Result) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := result.BaseEntity
	if sheet == "" {
		sheet = "REPORT"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	timeStyle, err := f.NewStyle(&excelize.Style{NumFmt: timestampNumFmt})
	if err != nil {
		return fmt.Errorf("failed to create timestamp style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	header := make([]interface{}, len(result.Columns))
	for i, label := range result.Columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: label}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range result.Items {
		cells := make([]interface{}, 0, row.Len())
		for _, value := range row.values {
			cells = append(cells, xlsxCell(value, timeStyle))
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// xlsxCell maps a row value to a cell. Whole numbers stay numeric; decimals
// are written as their exact text so DECIMAL scale survives the export.
func xlsxCell(value any, timeStyle int) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.String()
	case time.Time:
		return excelize.Cell{StyleID: timeStyle, Value: v}
	default:
		return v
	}
}
