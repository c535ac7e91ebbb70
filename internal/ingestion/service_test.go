package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/pkg/retry"
)

type stubDictRepo struct {
	defs    []domain.KPIDefinition
	saved   []domain.KPIDefinition
	listErr error
}

func (s *stubDictRepo) List(ctx context.Context, keys []string) ([]domain.KPIDefinition, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.defs, nil
}

func (s *stubDictRepo) Upsert(ctx context.Context, def domain.KPIDefinition) error {
	s.saved = append(s.saved, def)
	return nil
}

type stubFactRepo struct {
	batches [][]domain.KPIFact
	store   map[string]domain.KPIFact
	// failAtBatch fails the nth call (1-indexed); 0 never fails.
	failAtBatch int
	tenants     []string
}

func factKey(f domain.KPIFact) string {
	site := ""
	if f.SiteID != nil {
		site = *f.SiteID
	}
	return f.TenantID + "|" + site + "|" + f.KPIDate
}

func (s *stubFactRepo) BulkUpsert(ctx context.Context, facts []domain.KPIFact) error {
	if s.failAtBatch > 0 && len(s.batches)+1 == s.failAtBatch {
		return errors.New("database connection protocol failure")
	}
	s.batches = append(s.batches, facts)
	if s.store == nil {
		s.store = map[string]domain.KPIFact{}
	}
	for _, f := range facts {
		s.store[factKey(f)] = f
	}
	return nil
}

func (s *stubFactRepo) ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIFact, error) {
	return nil, nil
}

func (s *stubFactRepo) ListByTenantSince(ctx context.Context, tenantID, fromDate string) ([]domain.KPIFact, error) {
	return nil, nil
}

func (s *stubFactRepo) ListTenants(ctx context.Context) ([]string, error) {
	return s.tenants, nil
}

func (s *stubFactRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(s.store)), nil
}

type stubLogRepo struct {
	entries []domain.UploadLogEntry
	err     error
}

func (s *stubLogRepo) Record(ctx context.Context, entry domain.UploadLogEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) List(ctx context.Context, limit int) ([]domain.UploadLogEntry, error) {
	return s.entries, nil
}

type stubHeaderRepo struct {
	cols []string
	err  error
}

func (s *stubHeaderRepo) CoreColumns(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cols, nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 1, Timeout: time.Second, InitialBackoff: time.Millisecond}
}

func newTestService(dict *stubDictRepo, facts *stubFactRepo, logs *stubLogRepo, opts ...Option) *Service {
	base := []Option{WithRetryConfig(fastRetry())}
	return NewService(dict, facts, logs, &stubHeaderRepo{}, append(base, opts...)...)
}

func TestParseValidCSV(t *testing.T) {
	data := "tenant_id,site_id,kpi_date,sessions\nt1,main,2024-01-01,100\nt1,main,2024-01-02,200\nt1,main,2024-01-03,abc\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if len(pf.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(pf.Rows))
	}
	if errs := Validate(pf); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	if got := TargetTenant(pf); got != "t1" {
		t.Fatalf("expected target tenant t1, got %q", got)
	}
}

func TestParseStripsBOMAndDetectsSemicolon(t *testing.T) {
	data := "\xEF\xBB\xBFtenant_id;kpi_date;sessions\nt1;2024-01-01;5\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if pf.Headers[0] != "tenant_id" {
		t.Fatalf("BOM not stripped from first header: %q", pf.Headers[0])
	}
	if pf.Rows[0].Metrics["sessions"] != "5" {
		t.Fatalf("semicolon delimiter not detected: %+v", pf.Rows[0])
	}
}

func TestParseQuotedFieldWithEmbeddedDelimiter(t *testing.T) {
	data := "tenant_id,kpi_date,note_count\n\"t1\",2024-01-01,\"1,5\"\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if pf.Rows[0].TenantID != "t1" {
		t.Fatalf("quotes not stripped: %q", pf.Rows[0].TenantID)
	}
	if pf.Rows[0].Metrics["note_count"] != "1,5" {
		t.Fatalf("embedded delimiter not preserved: %q", pf.Rows[0].Metrics["note_count"])
	}
}

func TestParseFiltersRepeatedHeaderAndBlankRows(t *testing.T) {
	data := "tenant_id,kpi_date,sessions\nt1,2024-01-01,5\n\ntenant_id,kpi_date,sessions\n,,\nt1,2024-01-02,6\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if len(pf.Rows) != 2 {
		t.Fatalf("expected 2 rows after filtering, got %d", len(pf.Rows))
	}
}

func TestParseRejectsHeaderOnlyFile(t *testing.T) {
	if _, err := Parse("telemetry.csv", []byte("tenant_id,kpi_date\n")); err == nil {
		t.Fatalf("expected error for header-only file")
	}
}

func TestParseRejectsUnknownExtension(t *testing.T) {
	_, err := Parse("telemetry.pdf", []byte("whatever"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestValidateMissingColumnsShortCircuits(t *testing.T) {
	pf := ParsedFile{
		Headers: []string{"sessions"},
		Rows:    []Row{{Metrics: map[string]string{"sessions": "1"}}},
	}

	errs := Validate(pf)
	if len(errs) != 2 {
		t.Fatalf("expected exactly the two missing-column errors, got %v", errs)
	}
	for _, e := range errs {
		if !strings.Contains(e, "missing required column") {
			t.Fatalf("unexpected error kind: %q", e)
		}
	}
}

func TestValidateDuplicateDates(t *testing.T) {
	data := "tenant_id,kpi_date,sessions\nt1,2024-01-01,5\nt1,2024-01-01,6\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	errs := Validate(pf)
	if len(errs) != 1 || !strings.Contains(errs[0], "same date") {
		t.Fatalf("expected one duplicate-date integrity error, got %v", errs)
	}
}

func TestValidateRowErrors(t *testing.T) {
	data := "tenant_id,kpi_date,sessions\n,2024-01-01,5\nt1,01/02/2024,6\nt1,,7\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	errs := Validate(pf)
	expectContains := []string{
		"line 2: missing tenant_id",
		`line 3: invalid date format "01/02/2024"`,
		"line 4: missing kpi_date",
	}
	for _, want := range expectContains {
		found := false
		for _, e := range errs {
			if strings.Contains(e, want) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected error containing %q, got %v", want, errs)
		}
	}
}

func TestValidateRejectsMixedTenants(t *testing.T) {
	data := "tenant_id,kpi_date,sessions\nt1,2024-01-01,5\nt2,2024-01-02,6\nt2,2024-01-03,7\n"

	pf, err := Parse("telemetry.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	errs := Validate(pf)
	if len(errs) != 1 {
		t.Fatalf("expected one mixed-tenant error (reported once per extra tenant), got %v", errs)
	}
	if !strings.Contains(errs[0], `tenant "t2"`) {
		t.Fatalf("unexpected error: %q", errs[0])
	}
}

func TestValidateEmptyRows(t *testing.T) {
	// Parse rejects header-only files, but Validate must also stand on its
	// own against a directly constructed file with no rows.
	pf := ParsedFile{Headers: []string{ColumnTenantID, ColumnKPIDate, "sessions"}}

	if errs := Validate(pf); len(errs) != 0 {
		t.Fatalf("expected no errors for zero rows, got %v", errs)
	}
}

func TestRunRoutesToDiscoveryBeforeAnyWrite(t *testing.T) {
	data := "tenant_id,kpi_date,new_metric\nt1,2024-01-01,5\nt1,2024-01-02,7\n"
	facts := &stubFactRepo{}
	svc := newTestService(&stubDictRepo{}, facts, &stubLogRepo{})

	summary, preview, err := svc.Run(context.Background(), "telemetry.csv", []byte(data), nil)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(preview.MissingKPIs) != 1 || preview.MissingKPIs[0] != "new_metric" {
		t.Fatalf("expected missing kpis [new_metric], got %v", preview.MissingKPIs)
	}
	if preview.TargetTenant != "t1" {
		t.Fatalf("expected target tenant t1, got %q", preview.TargetTenant)
	}
	if len(facts.batches) != 0 {
		t.Fatalf("no fact may be written before discovery completes")
	}
	if summary.Status != "" {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestIngestChunksInOrderWithProgress(t *testing.T) {
	rows := make([]Row, 0, 123)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 123; i++ {
		rows = append(rows, Row{
			TenantID: "t1",
			KPIDate:  base.AddDate(0, 0, i).Format("2006-01-02"),
			Metrics:  map[string]string{"sessions": fmt.Sprintf("%d", i)},
		})
	}

	facts := &stubFactRepo{}
	var progress []int
	svc := newTestService(&stubDictRepo{}, facts, &stubLogRepo{})

	summary, err := svc.Ingest(context.Background(), Request{
		FileName: "telemetry.csv",
		Rows:     rows,
		Progress: func(pct int) { progress = append(progress, pct) },
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if len(facts.batches) != 3 {
		t.Fatalf("expected 3 upsert calls, got %d", len(facts.batches))
	}
	sizes := []int{len(facts.batches[0]), len(facts.batches[1]), len(facts.batches[2])}
	if sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 23 {
		t.Fatalf("unexpected batch sizes: %v", sizes)
	}
	if facts.batches[0][0].KPIDate != "2024-01-01" {
		t.Fatalf("batches not in input order: first fact %s", facts.batches[0][0].KPIDate)
	}
	if len(progress) != 3 || progress[2] != 100 {
		t.Fatalf("expected progress to reach 100 only on the third batch, got %v", progress)
	}
	if progress[0] == 100 || progress[1] == 100 {
		t.Fatalf("progress hit 100 before the final batch: %v", progress)
	}
	if summary.Status != domain.UploadStatusSuccess || summary.RowsProcessed != 123 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	rows := []Row{
		{TenantID: "t1", KPIDate: "2024-01-01", Metrics: map[string]string{"sessions": "5"}},
		{TenantID: "t1", KPIDate: "2024-01-02", Metrics: map[string]string{"sessions": "7"}},
	}

	facts := &stubFactRepo{}
	svc := newTestService(&stubDictRepo{}, facts, &stubLogRepo{})

	for i := 0; i < 2; i++ {
		if _, err := svc.Ingest(context.Background(), Request{FileName: "telemetry.csv", Rows: rows}); err != nil {
			t.Fatalf("ingest %d returned error: %v", i+1, err)
		}
	}

	count, _ := facts.Count(context.Background())
	if count != 2 {
		t.Fatalf("re-ingestion must not create duplicates, store has %d records", count)
	}
}

func TestIngestPartialFailureAccounting(t *testing.T) {
	rows := make([]Row, 0, 123)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 123; i++ {
		rows = append(rows, Row{
			TenantID: "t1",
			KPIDate:  base.AddDate(0, 0, i).Format("2006-01-02"),
			Metrics:  map[string]string{"sessions": "1"},
		})
	}

	facts := &stubFactRepo{failAtBatch: 2}
	logs := &stubLogRepo{}
	svc := newTestService(&stubDictRepo{}, facts, logs)

	summary, err := svc.Ingest(context.Background(), Request{FileName: "telemetry.csv", Rows: rows})
	if err == nil {
		t.Fatalf("expected error from failed batch")
	}
	if summary.Status != domain.UploadStatusPartial {
		t.Fatalf("expected Partial status, got %s", summary.Status)
	}
	if summary.RowsProcessed != 50 || summary.RowsFailed != 73 {
		t.Fatalf("unexpected accounting: processed=%d failed=%d", summary.RowsProcessed, summary.RowsFailed)
	}

	if len(logs.entries) != 1 {
		t.Fatalf("expected one upload log entry, got %d", len(logs.entries))
	}
	entry := logs.entries[0]
	if entry.Status != domain.UploadStatusPartial || entry.RowsFailed != 73 {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
}

func TestIngestFirstBatchFailureIsFailed(t *testing.T) {
	rows := []Row{{TenantID: "t1", KPIDate: "2024-01-01", Metrics: map[string]string{"sessions": "1"}}}

	facts := &stubFactRepo{failAtBatch: 1}
	logs := &stubLogRepo{}
	svc := newTestService(&stubDictRepo{}, facts, logs)

	summary, err := svc.Ingest(context.Background(), Request{FileName: "telemetry.csv", Rows: rows})
	if err == nil {
		t.Fatalf("expected error from failed batch")
	}
	if summary.Status != domain.UploadStatusFailed || summary.RowsProcessed != 0 || summary.RowsFailed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestIngestLogFailureDoesNotMaskSuccess(t *testing.T) {
	rows := []Row{{TenantID: "t1", KPIDate: "2024-01-01", Metrics: map[string]string{"sessions": "1"}}}

	svc := newTestService(&stubDictRepo{}, &stubFactRepo{}, &stubLogRepo{err: errors.New("log store down")})

	summary, err := svc.Ingest(context.Background(), Request{FileName: "telemetry.csv", Rows: rows})
	if err != nil {
		t.Fatalf("log failure must not fail the run: %v", err)
	}
	if summary.Status != domain.UploadStatusSuccess {
		t.Fatalf("unexpected status: %s", summary.Status)
	}
}

func TestBuildFactsCoercion(t *testing.T) {
	rows := []Row{{
		TenantID: "t1",
		SiteID:   "",
		KPIDate:  "2024-01-01",
		Metrics:  map[string]string{"sessions": "12.5", "revenue": "abc", "churn": ""},
	}}

	facts := buildFacts(rows)
	if len(facts) != 1 {
		t.Fatalf("expected one fact, got %d", len(facts))
	}
	f := facts[0]
	if f.Source != domain.FactSourceCSV {
		t.Fatalf("unexpected source: %s", f.Source)
	}
	if f.SiteID != nil {
		t.Fatalf("empty site_id must map to nil")
	}
	if f.KPIs["sessions"] != 12.5 || f.KPIs["revenue"] != 0 || f.KPIs["churn"] != 0 {
		t.Fatalf("unexpected coercion: %+v", f.KPIs)
	}
}

func TestMissingKeysDegradesToAllDiscovered(t *testing.T) {
	// Dictionary outage: every discovered key surfaces as missing instead of
	// blocking the upload.
	dict := &stubDictRepo{listErr: errors.New("dictionary unreachable")}
	svc := newTestService(dict, &stubFactRepo{}, &stubLogRepo{})

	missing := svc.missingKeys(context.Background(), []string{"tenant_id", "site_id", "kpi_date", "sessions"})
	if len(missing) != 1 || missing[0] != "sessions" {
		t.Fatalf("expected [sessions], got %v", missing)
	}
}

func TestSaveDefinitionsRequiresKey(t *testing.T) {
	svc := newTestService(&stubDictRepo{}, &stubFactRepo{}, &stubLogRepo{})

	err := svc.SaveDefinitions(context.Background(), []domain.KPIDefinition{{KPIName: "Sessions"}})
	if err == nil {
		t.Fatalf("expected error for definition without kpi_key")
	}
}
