package ingestion

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/metrics"
	"github.com/productpulse/pulse-api/internal/repository"
	"github.com/productpulse/pulse-api/pkg/retry"
)

// DefaultBatchSize is the number of fact rows per upsert call.
const DefaultBatchSize = 50

// Service runs the telemetry pipeline: parse, validate, reconcile the metric
// dictionary, then ingest facts in ordered batches.
type Service struct {
	dictRepo   repository.KPIDictionaryRepository
	factRepo   repository.KPIFactRepository
	logRepo    repository.UploadLogRepository
	headerRepo repository.TemplateHeaderRepository

	batchSize int
	retryCfg  retry.Config
	logger    *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithBatchSize overrides the upsert batch size.
func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithRetryConfig sets the policy for remote calls: read paths degrade to a
// fallback through it, batch upserts retry through it before aborting.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Service) {
		s.retryCfg = cfg
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
			s.retryCfg.Logger = l
		}
	}
}

// NewService creates a new ingestion service.
func NewService(
	dictRepo repository.KPIDictionaryRepository,
	factRepo repository.KPIFactRepository,
	logRepo repository.UploadLogRepository,
	headerRepo repository.TemplateHeaderRepository,
	opts ...Option,
) *Service {
	s := &Service{
		dictRepo:   dictRepo,
		factRepo:   factRepo,
		logRepo:    logRepo,
		headerRepo: headerRepo,
		batchSize:  DefaultBatchSize,
		retryCfg:   retry.DefaultConfig(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview is the pre-ingestion view of a file: parsed rows, validation
// errors, and the metric keys missing from the dictionary. Facts are never
// written here.
type Preview struct {
	FileName     string                 `json:"fileName"`
	TotalRows    int                    `json:"totalRows"`
	TargetTenant string                 `json:"targetTenant,omitempty"`
	Errors       []string               `json:"errors,omitempty"`
	MissingKPIs  []string               `json:"missingKpis,omitempty"`
	Drafts       []domain.KPIDefinition `json:"drafts,omitempty"`
}

// Inspect parses and validates a file and reconciles its metric keys against
// the dictionary. Structural errors come back as an error; validation
// problems come back inside the Preview.
func (s *Service) Inspect(ctx context.Context, fileName string, payload []byte) (Preview, error) {
	pf, err := Parse(fileName, payload)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{
		FileName:  fileName,
		TotalRows: len(pf.Rows),
	}

	if errs := Validate(pf); len(errs) > 0 {
		preview.Errors = errs
		return preview, nil
	}

	preview.TargetTenant = TargetTenant(pf)
	preview.MissingKPIs = s.missingKeys(ctx, pf.Headers)
	for _, key := range preview.MissingKPIs {
		preview.Drafts = append(preview.Drafts, domain.NewDraftDefinition(key))
	}

	return preview, nil
}

// missingKeys returns discovered metric keys absent from the dictionary.
// The dictionary read degrades to empty on failure, so an outage surfaces
// every key as missing rather than blocking the upload.
func (s *Service) missingKeys(ctx context.Context, headers []string) []string {
	known := retry.Fetch(ctx, s.retryCfg, "get dictionary", func(ctx context.Context) ([]domain.KPIDefinition, error) {
		return s.dictRepo.List(ctx, nil)
	}, []domain.KPIDefinition{})

	knownKeys := make(map[string]bool, len(known))
	for _, def := range known {
		knownKeys[def.KPIKey] = true
	}

	missing := []string{}
	for _, header := range headers {
		if header == "" || header == ColumnTenantID || header == ColumnSiteID || header == ColumnKPIDate {
			continue
		}
		if !knownKeys[header] {
			missing = append(missing, header)
		}
	}
	return missing
}

// Run executes the full pipeline over one file. When the returned Preview
// carries Errors or MissingKPIs, ingestion did not run and the caller must
// fix the file or complete discovery first.
func (s *Service) Run(ctx context.Context, fileName string, payload []byte, progress func(int)) (Summary, Preview, error) {
	pf, err := Parse(fileName, payload)
	if err != nil {
		return Summary{}, Preview{}, err
	}

	preview := Preview{
		FileName:  fileName,
		TotalRows: len(pf.Rows),
	}

	if errs := Validate(pf); len(errs) > 0 {
		preview.Errors = errs
		return Summary{}, preview, nil
	}

	preview.TargetTenant = TargetTenant(pf)
	preview.MissingKPIs = s.missingKeys(ctx, pf.Headers)
	if len(preview.MissingKPIs) > 0 {
		for _, key := range preview.MissingKPIs {
			preview.Drafts = append(preview.Drafts, domain.NewDraftDefinition(key))
		}
		return Summary{}, preview, nil
	}

	summary, err := s.Ingest(ctx, Request{
		FileName: fileName,
		Rows:     pf.Rows,
		Progress: progress,
	})
	return summary, preview, err
}

// UploadLogs lists recent ingestion attempts, degrading to empty on failure.
func (s *Service) UploadLogs(ctx context.Context, limit int) []domain.UploadLogEntry {
	return retry.Fetch(ctx, s.retryCfg, "list upload logs", func(ctx context.Context) ([]domain.UploadLogEntry, error) {
		return s.logRepo.List(ctx, limit)
	}, []domain.UploadLogEntry{})
}

// SaveDefinitions upserts the definitions collected for dangling keys, one by
// one so a failure reports the offending key.
func (s *Service) SaveDefinitions(ctx context.Context, defs []domain.KPIDefinition) error {
	for _, def := range defs {
		if def.KPIKey == "" {
			return fmt.Errorf("definition missing kpi_key")
		}
		if err := s.dictRepo.Upsert(ctx, def); err != nil {
			return fmt.Errorf("failed to save definition %s: %w", def.KPIKey, err)
		}
	}
	return nil
}

// Request describes one ingestion run over already-validated rows.
type Request struct {
	FileName string
	Rows     []Row
	// Progress, when set, receives the rounded completion percentage after
	// each committed batch.
	Progress func(pct int)
}

// Summary is the terminal accounting of one ingestion run. RowsProcessed
// counts rows actually committed, even when a later batch failed.
type Summary struct {
	TargetTenant  string              `json:"targetTenant"`
	TotalRows     int                 `json:"totalRows"`
	RowsProcessed int                 `json:"rowsProcessed"`
	RowsFailed    int                 `json:"rowsFailed"`
	Batches       int                 `json:"batches"`
	Status        domain.UploadStatus `json:"status"`
	ErrorLog      string              `json:"errorLog,omitempty"`
}

// Ingest builds facts from validated rows and upserts them in input order,
// one batch at a time. Batch i+1 is not submitted until batch i resolved.
// A failed batch (after its own retries) aborts the remainder; committed
// batches stay committed and the summary reports the split. The upload log
// write is best effort and never masks the run's outcome.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		TargetTenant: targetTenantOfRows(req.Rows),
		TotalRows:    len(req.Rows),
	}
	if len(req.Rows) == 0 {
		return summary, fmt.Errorf("no rows to ingest")
	}

	facts := buildFacts(req.Rows)
	batches := chunkFacts(facts, s.batchSize)
	summary.Batches = len(batches)

	s.logger.Info("starting chunked ingestion",
		zap.String("tenant", summary.TargetTenant),
		zap.String("file", req.FileName),
		zap.Int("rows", summary.TotalRows),
		zap.Int("batches", summary.Batches),
	)

	for i, batch := range batches {
		start := time.Now()
		err := retry.Do(ctx, s.retryCfg, fmt.Sprintf("upsert batch %d/%d", i+1, summary.Batches), func(ctx context.Context) error {
			return s.factRepo.BulkUpsert(ctx, batch)
		})
		metrics.BatchDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			summary.RowsFailed = summary.TotalRows - summary.RowsProcessed
			if summary.RowsProcessed > 0 {
				summary.Status = domain.UploadStatusPartial
			} else {
				summary.Status = domain.UploadStatusFailed
			}
			summary.ErrorLog = err.Error()

			s.logger.Error("ingestion aborted",
				zap.String("tenant", summary.TargetTenant),
				zap.Int("committed_rows", summary.RowsProcessed),
				zap.Int("failed_rows", summary.RowsFailed),
				zap.Error(err),
			)

			metrics.RowsFailed.WithLabelValues(domain.FactSourceCSV).Add(float64(summary.RowsFailed))
			metrics.UploadsTotal.WithLabelValues(string(summary.Status)).Inc()
			s.recordUploadLog(ctx, req.FileName, summary)
			return summary, fmt.Errorf("synchronization failure: %w", err)
		}

		summary.RowsProcessed += len(batch)
		if req.Progress != nil {
			req.Progress(int(math.Round(float64(i+1) / float64(summary.Batches) * 100)))
		}
	}

	summary.Status = domain.UploadStatusSuccess

	s.logger.Info("ingestion complete",
		zap.String("tenant", summary.TargetTenant),
		zap.Int("rows", summary.RowsProcessed),
	)

	metrics.RowsIngested.WithLabelValues(domain.FactSourceCSV).Add(float64(summary.RowsProcessed))
	metrics.UploadsTotal.WithLabelValues(string(summary.Status)).Inc()
	s.recordUploadLog(ctx, req.FileName, summary)
	return summary, nil
}

func (s *Service) recordUploadLog(ctx context.Context, fileName string, summary Summary) {
	if s.logRepo == nil {
		return
	}
	entry := domain.UploadLogEntry{
		FileName:      fileName,
		RowsProcessed: summary.RowsProcessed,
		RowsFailed:    summary.RowsFailed,
		Status:        summary.Status,
		ErrorLog:      summary.ErrorLog,
	}
	if err := s.logRepo.Record(ctx, entry); err != nil {
		s.logger.Warn("non-critical upload log failure", zap.Error(err))
	}
}

// buildFacts converts rows to facts, coercing every metric value with
// standard float parsing and substituting 0 for unparseable or empty values.
func buildFacts(rows []Row) []domain.KPIFact {
	facts := make([]domain.KPIFact, 0, len(rows))
	for _, row := range rows {
		kpis := make(map[string]float64, len(row.Metrics))
		for key, raw := range row.Metrics {
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				val = 0
			}
			kpis[key] = val
		}

		fact := domain.KPIFact{
			TenantID: row.TenantID,
			KPIDate:  row.KPIDate,
			Source:   domain.FactSourceCSV,
			KPIs:     kpis,
		}
		if row.SiteID != "" {
			site := row.SiteID
			fact.SiteID = &site
		}
		facts = append(facts, fact)
	}
	return facts
}

func chunkFacts(facts []domain.KPIFact, size int) [][]domain.KPIFact {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]domain.KPIFact
	for start := 0; start < len(facts); start += size {
		end := start + size
		if end > len(facts) {
			end = len(facts)
		}
		batches = append(batches, facts[start:end])
	}
	return batches
}

func targetTenantOfRows(rows []Row) string {
	if len(rows) == 0 {
		return ""
	}
	return rows[0].TenantID
}
