package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/repository"
)

// Supported download formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Result is one rendered export ready to stream to the client.
type Result struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Service renders a tenant's fact history as a downloadable table. Columns
// are the core identity columns followed by every metric key seen in the
// exported range, dictionary keys first.
type Service struct {
	factRepo repository.KPIFactRepository
	dictRepo repository.KPIDictionaryRepository
	logger   *zap.Logger
}

func NewService(factRepo repository.KPIFactRepository, dictRepo repository.KPIDictionaryRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{factRepo: factRepo, dictRepo: dictRepo, logger: logger}
}

// Export renders the tenant's facts (optionally from a start date) in the
// requested format.
func (s *Service) Export(ctx context.Context, tenantID, fromDate, format string) (*Result, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	var (
		facts []domain.KPIFact
		err   error
	)
	if fromDate != "" {
		facts, err = s.factRepo.ListByTenantSince(ctx, tenantID, fromDate)
	} else {
		facts, err = s.factRepo.ListByTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load facts for export: %w", err)
	}
	if len(facts) == 0 {
		return nil, fmt.Errorf("tenant %q has no facts to export", tenantID)
	}

	headers := s.exportHeaders(ctx, facts)
	rows := buildRows(headers, facts)

	fileName := fmt.Sprintf("productpulse_%s_%s", tenantID, time.Now().Format("2006-01-02"))

	switch format {
	case FormatCSV, "":
		data, err := renderCSV(headers, rows)
		if err != nil {
			return nil, err
		}
		return &Result{FileName: fileName + ".csv", ContentType: "text/csv", Data: data}, nil
	case FormatXLSX:
		data, err := renderXLSX(headers, rows)
		if err != nil {
			return nil, err
		}
		return &Result{
			FileName:    fileName + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// exportHeaders orders metric columns by dictionary listing, then appends any
// keys present in the data but absent from the dictionary, sorted.
func (s *Service) exportHeaders(ctx context.Context, facts []domain.KPIFact) []string {
	headers := []string{"tenant_id", "site_id", "kpi_date", "source"}

	seen := map[string]bool{}
	for _, fact := range facts {
		for key := range fact.KPIs {
			seen[key] = true
		}
	}

	added := map[string]bool{}
	if defs, err := s.dictRepo.List(ctx, nil); err != nil {
		s.logger.Warn("dictionary unavailable for export ordering", zap.Error(err))
	} else {
		for _, def := range defs {
			if seen[def.KPIKey] && !added[def.KPIKey] {
				headers = append(headers, def.KPIKey)
				added[def.KPIKey] = true
			}
		}
	}

	rest := []string{}
	for key := range seen {
		if !added[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(headers, rest...)
}

func buildRows(headers []string, facts []domain.KPIFact) [][]string {
	rows := make([][]string, 0, len(facts))
	for _, fact := range facts {
		site := ""
		if fact.SiteID != nil {
			site = *fact.SiteID
		}
		row := []string{fact.TenantID, site, fact.KPIDate, fact.Source}
		for _, header := range headers[4:] {
			value, ok := fact.KPIs[header]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(value, 'f', -1, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func renderCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(headers []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	writeRow := func(idx int, cells []string) error {
		row := make([]any, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, idx)
		if err != nil {
			return err
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := writeRow(1, headers); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return nil, fmt.Errorf("failed to write export row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render export workbook: %w", err)
	}
	return buf.Bytes(), nil
}
