package ga4

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/productpulse/pulse-api/internal/domain"
)

func TestRunDailyReport(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"rows": [
				{"dimensionValues": [{"value": "20240101"}], "metricValues": [{"value": "120"}, {"value": "80"}]},
				{"dimensionValues": [{"value": "20240102"}], "metricValues": [{"value": "95"}, {"value": "not-a-number"}]}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token-123", "9876", nil)
	days, err := client.RunDailyReport(context.Background(), "2024-01-01", "2024-01-02", []string{"sessions", "activeUsers"})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if gotPath != "/v1beta/properties/9876:runReport" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer token-123" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date != "2024-01-01" {
		t.Fatalf("date not normalized: %s", days[0].Date)
	}
	if days[0].Values["sessions"] != 120 || days[0].Values["active_users"] != 80 {
		t.Fatalf("unexpected day values: %+v", days[0].Values)
	}
	if days[1].Values["active_users"] != 0 {
		t.Fatalf("unparseable metric must coerce to 0, got %v", days[1].Values["active_users"])
	}
}

func TestRunDailyReportSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"status": "PERMISSION_DENIED"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "9876", nil)
	_, err := client.RunDailyReport(context.Background(), "2024-01-01", "2024-01-02", []string{"sessions"})
	if err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestRunDailyReportRequiresProperty(t *testing.T) {
	client := NewClient("http://localhost", "token", "", nil)
	_, err := client.RunDailyReport(context.Background(), "2024-01-01", "2024-01-02", []string{"sessions"})
	if err == nil {
		t.Fatalf("expected error for missing property id")
	}
}

type stubReporter struct {
	days []DailyMetrics
	err  error
}

func (s *stubReporter) RunDailyReport(ctx context.Context, startDate, endDate string, metricNames []string) ([]DailyMetrics, error) {
	return s.days, s.err
}

func TestSyncTenantWritesFacts(t *testing.T) {
	reporter := &stubReporter{days: []DailyMetrics{
		{Date: "2024-01-01", Values: map[string]float64{"sessions": 120}},
		{Date: "2024-01-02", Values: map[string]float64{"sessions": 95}},
	}}
	facts := &stubFactRepo{}
	syncer := NewSyncer(reporter, facts, []string{"sessions"}, nil)

	n, err := syncer.SyncTenant(context.Background(), "t1", "2024-01-01", "2024-01-02")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 days written, got %d", n)
	}
	if len(facts.upserted) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts.upserted))
	}
	f := facts.upserted[0]
	if f.TenantID != "t1" || f.Source != domain.FactSourceGA4 || f.KPIDate != "2024-01-01" {
		t.Fatalf("unexpected fact: %+v", f)
	}
}

func TestSyncTenantReportFailure(t *testing.T) {
	syncer := NewSyncer(&stubReporter{err: errors.New("quota exceeded")}, &stubFactRepo{}, []string{"sessions"}, nil)
	if _, err := syncer.SyncTenant(context.Background(), "t1", "2024-01-01", "2024-01-02"); err == nil {
		t.Fatalf("expected error when the report fails")
	}
}

func TestMetricKey(t *testing.T) {
	cases := map[string]string{
		"sessions":        "sessions",
		"activeUsers":     "active_users",
		"screenPageViews": "screen_page_views",
	}
	for in, want := range cases {
		if got := metricKey(in); got != want {
			t.Fatalf("metricKey(%q) = %q, want %q", in, got, want)
		}
	}
}

type stubFactRepo struct {
	upserted []domain.KPIFact
	err      error
}

func (s *stubFactRepo) BulkUpsert(ctx context.Context, facts []domain.KPIFact) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, facts...)
	return nil
}

func (s *stubFactRepo) ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIFact, error) {
	return nil, nil
}

func (s *stubFactRepo) ListByTenantSince(ctx context.Context, tenantID, fromDate string) ([]domain.KPIFact, error) {
	return nil, nil
}

func (s *stubFactRepo) ListTenants(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (s *stubFactRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(s.upserted)), nil
}
