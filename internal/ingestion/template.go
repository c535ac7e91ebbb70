package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/pkg/retry"
)

// defaultCoreColumns is the fallback when the template header source is
// unreachable.
var defaultCoreColumns = []string{ColumnTenantID, ColumnSiteID, ColumnKPIDate}

// TemplateHeaders assembles the upload template's header row: core columns
// followed by every currently-known metric key. Both reads degrade to
// defaults so template generation always succeeds.
func (s *Service) TemplateHeaders(ctx context.Context) []string {
	core := retry.Fetch(ctx, s.retryCfg, "get template headers", func(ctx context.Context) ([]string, error) {
		return s.headerRepo.CoreColumns(ctx)
	}, nil)
	if len(core) == 0 {
		core = defaultCoreColumns
	}

	dictionary := retry.Fetch(ctx, s.retryCfg, "get dictionary", func(ctx context.Context) ([]domain.KPIDefinition, error) {
		return s.dictRepo.List(ctx, nil)
	}, []domain.KPIDefinition{})

	headers := make([]string, 0, len(core)+len(dictionary))
	headers = append(headers, core...)
	for _, def := range dictionary {
		headers = append(headers, def.KPIKey)
	}
	return headers
}

// TemplateCSV renders the template as a single comma-joined header line with
// a trailing newline and no data rows.
func (s *Service) TemplateCSV(ctx context.Context) []byte {
	return []byte(strings.Join(s.TemplateHeaders(ctx), ",") + "\n")
}

// TemplateXLSX renders the same single header row as an xlsx workbook.
func (s *Service) TemplateXLSX(ctx context.Context) ([]byte, error) {
	headers := s.TemplateHeaders(ctx)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return nil, fmt.Errorf("failed to write template header row: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render xlsx template: %w", err)
	}
	return buf.Bytes(), nil
}
