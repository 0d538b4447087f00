package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Movements"

var headings = []string{"Date", "Reference", "Class", "Direction", "Quantity"}

// WriteXLSX writes the report as a workbook: the movements on one sheet
// followed by the summary rows.
func WriteXLSX(w io.Writer, rep *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	row := 2
	for _, m := range rep.Movements {
		if err := setRow(f, row, m.Date, m.Reference, string(m.Class), string(m.Direction), m.Quantity.Float64()); err != nil {
			return err
		}
		row++
	}

	row++
	summary := [][2]any{
		{"Sold", rep.Summary.Sold.Float64()},
		{"Received", rep.Summary.Received.Float64()},
		{"Shipped", rep.Summary.Shipped.Float64()},
	}
	for _, s := range summary {
		if err := setRow(f, row, s[0], s[1]); err != nil {
			return err
		}
		row++
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values ...any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// FileName is the download name of the workbook.
func FileName(rep *Report) string {
	return fmt.Sprintf("movements-%d-%s-%s.xlsx", rep.ProductID, rep.From, rep.To)
}
