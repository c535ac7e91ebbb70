package ga4

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/metrics"
	"github.com/productpulse/pulse-api/internal/repository"
)

// Reporter is the report surface Syncer pulls from.
type Reporter interface {
	RunDailyReport(ctx context.Context, startDate, endDate string, metricNames []string) ([]DailyMetrics, error)
}

// Syncer pulls daily analytics and upserts them as facts. Synced facts share
// the fact table with CSV uploads and win or lose by the same natural key, so
// re-running a sync is safe.
type Syncer struct {
	reporter Reporter
	factRepo repository.KPIFactRepository
	metrics  []string
	logger   *zap.Logger
}

func NewSyncer(reporter Reporter, factRepo repository.KPIFactRepository, metricNames []string, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		reporter: reporter,
		factRepo: factRepo,
		metrics:  metricNames,
		logger:   logger,
	}
}

// SyncTenant fetches the date range and upserts one fact per reported day
// under the given tenant. Returns the number of days written.
func (s *Syncer) SyncTenant(ctx context.Context, tenantID, startDate, endDate string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant id is required")
	}

	days, err := s.reporter.RunDailyReport(ctx, startDate, endDate, s.metrics)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch analytics report: %w", err)
	}
	if len(days) == 0 {
		return 0, nil
	}

	facts := make([]domain.KPIFact, 0, len(days))
	for _, day := range days {
		facts = append(facts, domain.KPIFact{
			TenantID: tenantID,
			KPIDate:  day.Date,
			Source:   domain.FactSourceGA4,
			KPIs:     day.Values,
		})
	}

	if err := s.factRepo.BulkUpsert(ctx, facts); err != nil {
		metrics.RowsFailed.WithLabelValues(domain.FactSourceGA4).Add(float64(len(facts)))
		return 0, fmt.Errorf("failed to store analytics facts: %w", err)
	}

	metrics.RowsIngested.WithLabelValues(domain.FactSourceGA4).Add(float64(len(facts)))
	s.logger.Info("analytics sync complete",
		zap.String("tenant", tenantID),
		zap.String("start", startDate),
		zap.String("end", endDate),
		zap.Int("days", len(facts)),
	)

	return len(facts), nil
}

// metricKey maps an API metric name to the dictionary's snake_case key,
// e.g. activeUsers -> active_users.
func metricKey(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseMetricValue(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
