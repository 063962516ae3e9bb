package report

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Format is an export output format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"
	contentTypeZip  = "application/zip"
)

// rowErrorMarker replaces a row that could not be written to a sheet.
const rowErrorMarker = "Error in row!"

// Sheet is one worksheet's worth of data.
type Sheet struct {
	Name   string
	Header []string
	Widths []float64
	Rows   []Row
}

// Payload is a finished export: raw bytes plus the response metadata a
// download handler needs.
type Payload struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Exporter serializes row tables. When a table exceeds MaxRows it is split
// into parts of at most MaxRows rows each and bundled into one zip archive.
type Exporter struct {
	MaxRows int
	Logger  *zap.Logger

	// now is swappable for deterministic filenames under test
	now func() time.Time
}

func NewExporter(maxRows int, logger *zap.Logger) *Exporter {
	return &Exporter{MaxRows: maxRows, Logger: logger, now: time.Now}
}

var nonAlnum = regexp.MustCompile(`[^0-9A-Za-z]+`)

// SanitizeName strips non-alphanumeric characters and truncates to the
// 30-character sheet-name limit.
func SanitizeName(title string) string {
	clean := nonAlnum.ReplaceAllString(title, "")
	if clean == "" {
		clean = "report"
	}
	if len(clean) > 30 {
		clean = clean[:30]
	}
	return clean
}

// Filename builds "{sanitized}_{MMDD_HHMM}.{ext}".
func (e *Exporter) Filename(title, ext string) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeName(title), e.now().Format("0102_1504"), ext)
}

// coerceCell applies the uniform pre-write rule: booleans and numbers pass
// through, everything else is stringified with invalid-byte substitution.
func coerceCell(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case bool, int, int32, int64, float32, float64:
		return val
	case decimal.Decimal:
		f, _ := val.Float64()
		return f
	default:
		return stringify(val)
	}
}

// BuildWorkbook produces one worksheet per sheet, in order. The header row
// is bold when present; column widths apply when given.
func (e *Exporter) BuildWorkbook(sheets []Sheet) (*excelize.File, error) {
	f := excelize.NewFile()

	for i, sheet := range sheets {
		name := SanitizeName(sheet.Name)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		if err := e.writeSheet(f, name, sheet); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (e *Exporter) writeSheet(f *excelize.File, name string, sheet Sheet) error {
	rowNum := 1

	if len(sheet.Header) > 0 {
		boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		for c, h := range sheet.Header {
			cell, err := excelize.CoordinatesToCellName(c+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(name, cell, h); err != nil {
				return err
			}
			if err := f.SetCellStyle(name, cell, cell, boldStyle); err != nil {
				return err
			}
		}
		rowNum++
	}

	for c, width := range sheet.Widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(name, col, col, width); err != nil {
			return err
		}
	}

	for _, row := range sheet.Rows {
		if err := e.writeRow(f, name, rowNum, row); err != nil {
			// One bad row must not lose the sheet: drop in a marker
			e.Logger.Warn("failed to write sheet row",
				zap.String("sheet", name), zap.Int("row", rowNum), zap.Error(err))
			cell, cellErr := excelize.CoordinatesToCellName(1, rowNum)
			if cellErr != nil {
				return cellErr
			}
			if markErr := f.SetCellValue(name, cell, rowErrorMarker); markErr != nil {
				return markErr
			}
		}
		rowNum++
	}
	return nil
}

func (e *Exporter) writeRow(f *excelize.File, name string, rowNum int, row Row) error {
	for c, v := range row {
		cell, err := excelize.CoordinatesToCellName(c+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(name, cell, coerceCell(v)); err != nil {
			return err
		}
	}
	return nil
}

// ListToWorkbook serializes one row table to workbook bytes.
func (e *Exporter) ListToWorkbook(rows []Row, title string, header []string, widths []float64) ([]byte, error) {
	f, err := e.BuildWorkbook([]Sheet{{Name: title, Header: header, Widths: widths, Rows: rows}})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ListToCSV serializes one row table to comma-separated text.
func (e *Exporter) ListToCSV(rows []Row, header []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = stringify(coerceCell(v))
		}
		if err := w.Write(cells); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Partition splits rows into chunks of at most the configured ceiling.
func (e *Exporter) Partition(rows []Row) [][]Row {
	ceiling := e.MaxRows
	if ceiling <= 0 {
		ceiling = 10000
	}
	var parts [][]Row
	for start := 0; start < len(rows); start += ceiling {
		end := start + ceiling
		if end > len(rows) {
			end = len(rows)
		}
		parts = append(parts, rows[start:end])
	}
	return parts
}

// ListToZip builds the partitioned archive: one entry per part, each named
// "{title}_part{N}.{ext}" with N starting at 1.
func (e *Exporter) ListToZip(rows []Row, format Format, title string, header []string, widths []float64) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, part := range e.Partition(rows) {
		partTitle := fmt.Sprintf("%s_part%d", SanitizeName(title), i+1)

		var content []byte
		var err error
		switch format {
		case FormatCSV:
			content, err = e.ListToCSV(part, header)
		case FormatXLSX:
			content, err = e.ListToWorkbook(part, partTitle, header, widths)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
		if err != nil {
			return nil, err
		}

		entry, err := zw.Create(fmt.Sprintf("%s.%s", partTitle, format))
		if err != nil {
			return nil, err
		}
		if _, err := entry.Write(content); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ListToResponse serializes a row table into a downloadable payload,
// switching to a zip archive once the row ceiling is exceeded.
func (e *Exporter) ListToResponse(rows []Row, format Format, title string, header []string, widths []float64) (*Payload, error) {
	if format != FormatCSV && format != FormatXLSX {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	ceiling := e.MaxRows
	if ceiling <= 0 {
		ceiling = 10000
	}
	if len(rows) > ceiling {
		content, err := e.ListToZip(rows, format, title, header, widths)
		if err != nil {
			return nil, err
		}
		return &Payload{Content: content, ContentType: contentTypeZip, Filename: e.Filename(title, "zip")}, nil
	}

	switch format {
	case FormatCSV:
		content, err := e.ListToCSV(rows, header)
		if err != nil {
			return nil, err
		}
		return &Payload{Content: content, ContentType: contentTypeCSV, Filename: e.Filename(title, "csv")}, nil
	default:
		content, err := e.ListToWorkbook(rows, title, header, widths)
		if err != nil {
			return nil, err
		}
		return &Payload{Content: content, ContentType: contentTypeXLSX, Filename: e.Filename(title, "xlsx")}, nil
	}
}
