package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoDataRows is returned when a file has a header but no usable data.
	ErrNoDataRows = errors.New("no valid data records found")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Reserved core columns; every other header is a metric key.
const (
	ColumnTenantID = "tenant_id"
	ColumnSiteID   = "site_id"
	ColumnKPIDate  = "kpi_date"
)

// Row is one parsed data record: the fixed core fields plus an open map of
// metric key to raw string value.
type Row struct {
	TenantID string
	SiteID   string
	KPIDate  string
	Metrics  map[string]string
}

// ParsedFile is the output of the parse step, input to validation.
type ParsedFile struct {
	Headers []string
	Rows    []Row
}

// Parse reads an uploaded telemetry file into typed rows. CSV files get
// delimiter detection (semicolon when the header contains ';' and no ','),
// BOM stripping, and quote-aware tokenizing; .xlsx sheets go through the same
// normalization after extraction.
func Parse(fileName string, payload []byte) (ParsedFile, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", "":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return ParsedFile{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (ParsedFile, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)

	if countNonBlankLines(payload) < 2 {
		return ParsedFile{}, errors.New("file appears to be empty or contains only headers")
	}

	headerLine := firstLine(payload)
	delimiter := ','
	if strings.Contains(headerLine, ";") && !strings.Contains(headerLine, ",") {
		delimiter = ';'
	}

	csvReader := csv.NewReader(bufio.NewReader(bytes.NewReader(payload)))
	csvReader.Comma = delimiter
	csvReader.TrimLeadingSpace = true
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return ParsedFile{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (ParsedFile, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return ParsedFile{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParsedFile{}, errors.New("excel file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return ParsedFile{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	if len(records) < 2 {
		return ParsedFile{}, errors.New("file appears to be empty or contains only headers")
	}

	return normalizeTable(records)
}

func normalizeTable(records [][]string) (ParsedFile, error) {
	var headers []string
	var rows []Row

	for _, record := range records {
		if isBlankRecord(record) {
			continue
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i, cell := range record {
				headers[i] = strings.TrimSpace(cell)
			}
			continue
		}
		row := zipRow(headers, record)
		// A repeated header row inside the data and all-empty rows are
		// discarded, not reported.
		if row.TenantID == ColumnTenantID || row.KPIDate == ColumnKPIDate {
			continue
		}
		if rowIsEmpty(row) {
			continue
		}
		rows = append(rows, row)
	}

	if headers == nil {
		return ParsedFile{}, errors.New("header row could not be detected")
	}
	if len(rows) == 0 {
		return ParsedFile{}, ErrNoDataRows
	}

	return ParsedFile{Headers: headers, Rows: rows}, nil
}

func zipRow(headers []string, record []string) Row {
	row := Row{Metrics: make(map[string]string)}
	for i, header := range headers {
		if header == "" {
			continue
		}
		value := ""
		if i < len(record) {
			value = strings.TrimSpace(record[i])
		}
		switch header {
		case ColumnTenantID:
			row.TenantID = value
		case ColumnSiteID:
			row.SiteID = value
		case ColumnKPIDate:
			row.KPIDate = value
		default:
			row.Metrics[header] = value
		}
	}
	return row
}

func rowIsEmpty(row Row) bool {
	if row.TenantID != "" || row.SiteID != "" || row.KPIDate != "" {
		return false
	}
	for _, v := range row.Metrics {
		if v != "" {
			return false
		}
	}
	return true
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func countNonBlankLines(payload []byte) int {
	count := 0
	for _, line := range strings.Split(string(payload), "\n") {
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) != "" {
			count++
		}
	}
	return count
}

func firstLine(payload []byte) string {
	if idx := bytes.IndexByte(payload, '\n'); idx >= 0 {
		return string(payload[:idx])
	}
	return string(payload)
}
