package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/productpulse/pulse-api/internal/domain"
)

type stubFactRepo struct {
	facts []domain.KPIFact
	err   error
}

func (s *stubFactRepo) BulkUpsert(ctx context.Context, facts []domain.KPIFact) error { return nil }

func (s *stubFactRepo) ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIFact, error) {
	return s.facts, s.err
}

func (s *stubFactRepo) ListByTenantSince(ctx context.Context, tenantID, fromDate string) ([]domain.KPIFact, error) {
	out := []domain.KPIFact{}
	for _, f := range s.facts {
		if f.KPIDate >= fromDate {
			out = append(out, f)
		}
	}
	return out, s.err
}

func (s *stubFactRepo) ListTenants(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubFactRepo) Count(ctx context.Context) (int64, error)          { return 0, nil }

type stubDictRepo struct {
	defs []domain.KPIDefinition
	err  error
}

func (s *stubDictRepo) List(ctx context.Context, keys []string) ([]domain.KPIDefinition, error) {
	return s.defs, s.err
}

func (s *stubDictRepo) Upsert(ctx context.Context, def domain.KPIDefinition) error { return nil }

func site(v string) *string { return &v }

func exportFacts() []domain.KPIFact {
	return []domain.KPIFact{
		{TenantID: "t1", SiteID: site("main"), KPIDate: "2024-01-01", Source: domain.FactSourceCSV, KPIs: map[string]float64{"sessions": 120, "revenue": 49.5}},
		{TenantID: "t1", KPIDate: "2024-01-02", Source: domain.FactSourceGA4, KPIs: map[string]float64{"sessions": 95, "bounce_rate": 0.4}},
	}
}

func TestExportCSVColumnOrder(t *testing.T) {
	facts := &stubFactRepo{facts: exportFacts()}
	dict := &stubDictRepo{defs: []domain.KPIDefinition{{KPIKey: "sessions"}, {KPIKey: "revenue"}}}
	svc := NewService(facts, dict, nil)

	res, err := svc.Export(context.Background(), "t1", "", FormatCSV)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(res.Data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "tenant_id,site_id,kpi_date,source,sessions,revenue,bounce_rate" {
		t.Fatalf("unexpected header order: %s", lines[0])
	}
	if lines[1] != "t1,main,2024-01-01,CSV_UPLOAD,120,49.5," {
		t.Fatalf("unexpected first row: %s", lines[1])
	}
	if lines[2] != "t1,,2024-01-02,GA4_SYNC,95,,0.4" {
		t.Fatalf("unexpected second row: %s", lines[2])
	}
	if !strings.HasSuffix(res.FileName, ".csv") {
		t.Fatalf("unexpected file name: %s", res.FileName)
	}
}

func TestExportSurvivesDictionaryOutage(t *testing.T) {
	facts := &stubFactRepo{facts: exportFacts()}
	dict := &stubDictRepo{err: errors.New("dictionary unreachable")}
	svc := NewService(facts, dict, nil)

	res, err := svc.Export(context.Background(), "t1", "", FormatCSV)
	if err != nil {
		t.Fatalf("export must not depend on the dictionary: %v", err)
	}

	header := strings.SplitN(string(res.Data), "\n", 2)[0]
	// Without the dictionary the metric columns fall back to sorted order.
	if header != "tenant_id,site_id,kpi_date,source,bounce_rate,revenue,sessions" {
		t.Fatalf("unexpected fallback header: %s", header)
	}
}

func TestExportXLSX(t *testing.T) {
	facts := &stubFactRepo{facts: exportFacts()}
	svc := NewService(facts, &stubDictRepo{}, nil)

	res, err := svc.Export(context.Background(), "t1", "", FormatXLSX)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if res.ContentType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %s", res.ContentType)
	}
	if len(res.Data) == 0 {
		t.Fatalf("empty workbook")
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService(&stubFactRepo{facts: exportFacts()}, &stubDictRepo{}, nil)
	if _, err := svc.Export(context.Background(), "t1", "", "pdf"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestExportEmptyTenant(t *testing.T) {
	svc := NewService(&stubFactRepo{}, &stubDictRepo{}, nil)
	if _, err := svc.Export(context.Background(), "t1", "", FormatCSV); err == nil {
		t.Fatalf("expected error for tenant with no facts")
	}
}
