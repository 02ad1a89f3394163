// Package stockfile reads opening stock from TSV and XLSX files and writes
// the stock workbook.
package stockfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
)

// Columns is the column order of an opening stock file. Only the first four
// are required on each line.
var Columns = []string{
	"Item Name",
	"Store",
	"Item Type",
	"Quantity",
	"Rate",
	"Tax",
	"Expiry Date",
	"Unique Code",
	"Sanket No",
}

const requiredColumns = 4

// Accepted expiry date layouts.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006"}

const maxReportedErrors = 10

// ParseReport counts what a parse kept and skipped.
type ParseReport struct {
	Lines          int      `json:"lines"`
	Parsed         int      `json:"parsed"`
	EmptyLines     int      `json:"emptyLines"`
	MissingColumns int      `json:"missingColumns"`
	FormatErrors   int      `json:"formatErrors"`
	Errors         []string `json:"errors"` // first few format errors, "line N: reason"
}

// Skipped is the number of non-empty lines that produced no receipt line.
func (r ParseReport) Skipped() int {
	return r.MissingColumns + r.FormatErrors
}

func (r *ParseReport) formatError(line int, err error) {
	r.FormatErrors++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("line %d: %v", line, err))
	}
}

func (r *ParseReport) log(source string) {
	if r.EmptyLines > 0 || r.MissingColumns > 0 || r.FormatErrors > 0 {
		logging.Info("Stock file skip statistics",
			"source", source,
			"empty_lines", r.EmptyLines,
			"missing_columns", r.MissingColumns,
			"format_errors", r.FormatErrors,
			"total_lines", r.Lines,
			"records_parsed", r.Parsed)
	}
}

// ParseTSV reads tab-separated opening stock. Input that is not valid UTF-8
// is decoded as ISO-8859-1. A first line starting with "Item Name" is
// treated as a header.
func ParseTSV(r io.Reader) ([]inventory.ReceiptLine, ParseReport, error) {
	report := ParseReport{Errors: []string{}}

	// As some exports are in iso-8859-1 and some in utf8, read the content first
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, report, fmt.Errorf("failed to read stock file: %w", err)
	}

	var reader io.Reader = bytes.NewReader(body)
	if !utf8.Valid(body) {
		reader = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(body))
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0), 1*1024*1024)

	lines := []inventory.ReceiptLine{}
	for scanner.Scan() {
		report.Lines++
		line := strings.TrimRight(scanner.Text(), "\r")

		// Skip empty lines silently
		if strings.TrimSpace(line) == "" {
			report.EmptyLines++
			continue
		}

		fields := strings.Split(line, "\t")
		if report.Lines == 1 && isHeader(fields) {
			continue
		}

		if len(fields) < requiredColumns {
			report.MissingColumns++
			continue
		}

		rec, err := parseRecord(fields)
		if err != nil {
			report.formatError(report.Lines, err)
			continue
		}
		lines = append(lines, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, report, fmt.Errorf("scanner error in stock file: %w", err)
	}

	report.Parsed = len(lines)
	report.log("tsv")
	return lines, report, nil
}

// ParseXLSX reads opening stock from the first sheet of a workbook. The
// first row is a header; columns are matched by name, so their order is
// free.
func ParseXLSX(r io.Reader) ([]inventory.ReceiptLine, ParseReport, error) {
	report := ParseReport{Errors: []string{}}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, report, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("Failed to close workbook", "error", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, report, fmt.Errorf("excel file has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, report, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return []inventory.ReceiptLine{}, report, nil
	}

	index, err := headerIndex(rows[0])
	if err != nil {
		return nil, report, err
	}
	report.Lines = 1

	lines := []inventory.ReceiptLine{}
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		report.Lines++
		row := rows[rowIdx]

		fields := make([]string, len(Columns))
		empty := true
		for col, at := range index {
			if at >= 0 && at < len(row) {
				fields[col] = row[at]
				if strings.TrimSpace(row[at]) != "" {
					empty = false
				}
			}
		}
		if empty {
			report.EmptyLines++
			continue
		}

		missing := false
		for col := 0; col < requiredColumns; col++ {
			if strings.TrimSpace(fields[col]) == "" {
				missing = true
				break
			}
		}
		if missing {
			report.MissingColumns++
			continue
		}

		rec, err := parseRecord(fields)
		if err != nil {
			report.formatError(rowIdx+1, err)
			continue
		}
		lines = append(lines, rec)
	}

	report.Parsed = len(lines)
	report.log("xlsx")
	return lines, report, nil
}

// headerIndex maps each entry of Columns to its position in header, or -1.
func headerIndex(header []string) ([]int, error) {
	index := make([]int, len(Columns))
	for i := range index {
		index[i] = -1
	}
	for at, h := range header {
		for col, name := range Columns {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				index[col] = at
			}
		}
	}
	for col := 0; col < requiredColumns; col++ {
		if index[col] < 0 {
			return nil, fmt.Errorf("missing required column %q", Columns[col])
		}
	}
	return index, nil
}

func isHeader(fields []string) bool {
	return strings.EqualFold(strings.TrimSpace(fields[0]), Columns[0])
}

// parseRecord converts the fields of one line, in Columns order.
func parseRecord(fields []string) (inventory.ReceiptLine, error) {
	get := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	itemType, err := ParseItemType(get(2))
	if err != nil {
		return inventory.ReceiptLine{}, err
	}

	qty, err := strconv.ParseFloat(stripThousands(get(3)), 64)
	if err != nil {
		return inventory.ReceiptLine{}, fmt.Errorf("invalid quantity '%s'", get(3))
	}
	if qty < 0 {
		return inventory.ReceiptLine{}, fmt.Errorf("negative quantity '%s'", get(3))
	}

	rate, err := parseAmount(get(4))
	if err != nil {
		return inventory.ReceiptLine{}, fmt.Errorf("invalid rate '%s'", get(4))
	}
	tax, err := parseAmount(get(5))
	if err != nil {
		return inventory.ReceiptLine{}, fmt.Errorf("invalid tax '%s'", get(5))
	}

	line := inventory.ReceiptLine{
		ItemName:   get(0),
		StoreID:    get(1),
		ItemType:   itemType,
		Quantity:   qty,
		Rate:       rate,
		Tax:        tax,
		UniqueCode: get(7),
		SanketNo:   get(8),
	}

	if s := get(6); s != "" {
		expiry, err := parseDate(s)
		if err != nil {
			return inventory.ReceiptLine{}, err
		}
		line.ExpiryDateAd = &expiry
	}
	return line, nil
}

// ParseItemType accepts the item type spellings seen in stock registers.
func ParseItemType(s string) (inventory.ItemType, error) {
	norm := strings.ToLower(strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "-"))
	switch norm {
	case "expendable":
		return inventory.Expendable, nil
	case "non-expendable", "nonexpendable":
		return inventory.NonExpendable, nil
	}
	return "", fmt.Errorf("unknown item type '%s'", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(stripThousands(s))
}

func stripThousands(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiry date '%s'", s)
}
