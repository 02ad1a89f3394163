package stockfile

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/giygas/healthpost-api/inventory"
)

// SheetName is the sheet written by ExportXLSX.
const SheetName = "Stock"

// ExportHeader is the header row of the stock workbook
var ExportHeader = []string{
	"Lot ID",
	"Item Name",
	"Store",
	"Item Type",
	"Quantity",
	"Rate",
	"Total Amount",
	"Expiry Date",
	"Unique Code",
	"Sanket No",
	"Last Update (AD)",
	"Last Update (BS)",
	"Provenance",
}

var exportWidths = []float64{38, 28, 14, 16, 10, 10, 14, 12, 16, 14, 20, 16, 12}

// ExportXLSX writes lots, one row each, in the given order.
func ExportXLSX(lots []inventory.Lot) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, exportWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, l := range lots {
		row := i + 2
		for col, value := range lotRow(l) {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	// Freeze the header
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func lotRow(l inventory.Lot) []any {
	row := []any{
		l.ID,
		l.ItemName,
		l.StoreID,
		string(l.ItemType),
		l.CurrentQuantity,
		l.Rate.InexactFloat64(),
		l.TotalAmount.InexactFloat64(),
		"",
		l.UniqueCode,
		l.SanketNo,
		"",
		l.LastUpdateDateBs,
		l.Provenance,
	}
	if l.ExpiryDateAd != nil {
		row[7] = l.ExpiryDateAd.Format("2006-01-02")
	}
	if l.LastUpdateDateAd != nil {
		row[10] = l.LastUpdateDateAd.Format("2006-01-02 15:04:05")
	}
	return row
}
