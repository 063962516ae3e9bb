package report

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func fixedExporter(maxRows int) *Exporter {
	e := NewExporter(maxRows, zap.NewNop())
	e.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	}
	return e
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"plain", "Sales", "Sales"},
		{"strips punctuation and spaces", "Q1 Sales / EMEA (final)", "Q1SalesEMEAfinal"},
		{"empty falls back", "///", "report"},
		{"truncates to thirty", "abcdefghijklmnopqrstuvwxyz0123456789", "abcdefghijklmnopqrstuvwxyz0123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.title); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestFilenameStampsTime(t *testing.T) {
	e := fixedExporter(0)
	got := e.Filename("Q1 Sales", "csv")
	want := "Q1Sales_0314_0926.csv"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestCoerceCell(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"nil becomes empty string", nil, ""},
		{"bool passes through", true, true},
		{"int passes through", 42, 42},
		{"float passes through", 3.5, 3.5},
		{"decimal becomes float", decimal.NewFromInt(7), 7.0},
		{"string passes through", "hello", "hello"},
		{"invalid utf8 is repaired", "bad\xffbyte", "bad�byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceCell(tt.in); got != tt.want {
				t.Errorf("coerceCell(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestListToCSV(t *testing.T) {
	e := fixedExporter(0)
	rows := []Row{
		{"alpha", 1, true},
		{"beta", nil, decimal.NewFromFloat(2.5)},
	}
	got, err := e.ListToCSV(rows, []string{"Name", "Count", "Flag"})
	if err != nil {
		t.Fatalf("ListToCSV() error = %v", err)
	}
	want := "Name,Count,Flag\nalpha,1,true\nbeta,,2.5\n"
	if string(got) != want {
		t.Errorf("ListToCSV() = %q, want %q", got, want)
	}
}

func TestPartition(t *testing.T) {
	e := fixedExporter(10000)
	rows := make([]Row, 25000)
	parts := e.Partition(rows)
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	sizes := []int{len(parts[0]), len(parts[1]), len(parts[2])}
	if sizes[0] != 10000 || sizes[1] != 10000 || sizes[2] != 5000 {
		t.Errorf("part sizes = %v, want [10000 10000 5000]", sizes)
	}
}

func TestListToResponsePartitionsIntoZip(t *testing.T) {
	e := fixedExporter(10000)
	rows := make([]Row, 25000)
	for i := range rows {
		rows[i] = Row{i}
	}

	payload, err := e.ListToResponse(rows, FormatCSV, "Big Export", []string{"n"}, nil)
	if err != nil {
		t.Fatalf("ListToResponse() error = %v", err)
	}
	if payload.ContentType != "application/zip" {
		t.Errorf("content type = %q, want application/zip", payload.ContentType)
	}
	if payload.Filename != "BigExport_0314_0926.zip" {
		t.Errorf("filename = %q", payload.Filename)
	}

	zr, err := zip.NewReader(bytes.NewReader(payload.Content), int64(len(payload.Content)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("archive has %d entries, want 3", len(zr.File))
	}
	wantNames := []string{"BigExport_part1.csv", "BigExport_part2.csv", "BigExport_part3.csv"}
	for i, f := range zr.File {
		if f.Name != wantNames[i] {
			t.Errorf("entry %d = %q, want %q", i, f.Name, wantNames[i])
		}
	}

	// The last part carries the remainder: header line plus 5000 rows
	rc, err := zr.File[2].Open()
	if err != nil {
		t.Fatalf("open last entry: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read last entry: %v", err)
	}
	lines := bytes.Count(content, []byte("\n"))
	if lines != 5001 {
		t.Errorf("last part has %d lines, want 5001", lines)
	}
}

func TestListToResponseSmallTableStaysFlat(t *testing.T) {
	e := fixedExporter(10000)
	rows := []Row{{"a"}, {"b"}}

	payload, err := e.ListToResponse(rows, FormatCSV, "Tiny", []string{"v"}, nil)
	if err != nil {
		t.Fatalf("ListToResponse() error = %v", err)
	}
	if payload.ContentType != "text/csv" {
		t.Errorf("content type = %q, want text/csv", payload.ContentType)
	}
	if want := "v\na\nb\n"; string(payload.Content) != want {
		t.Errorf("content = %q, want %q", payload.Content, want)
	}
}

func TestListToResponseRejectsUnknownFormat(t *testing.T) {
	e := fixedExporter(0)
	if _, err := e.ListToResponse(nil, Format("pdf"), "x", nil, nil); err == nil {
		t.Errorf("expected an error for an unsupported format")
	}
}

func TestBuildWorkbookRoundTrip(t *testing.T) {
	e := fixedExporter(0)
	rows := []Row{{"alpha", 1.5}, {"beta", nil}}

	content, err := e.ListToWorkbook(rows, "My Sheet", []string{"Name", "Score"}, []float64{20, 10})
	if err != nil {
		t.Fatalf("ListToWorkbook() error = %v", err)
	}
	if len(content) == 0 {
		t.Fatalf("empty workbook content")
	}

	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("workbook is not a valid xlsx container: %v", err)
	}
	found := false
	for _, f := range zr.File {
		if f.Name == "xl/worksheets/sheet1.xml" {
			found = true
		}
	}
	if !found {
		t.Errorf("workbook is missing the worksheet part")
	}
}
