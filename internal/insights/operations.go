package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/metrics"
)

// Service exposes the product-facing insight operations on top of a Completer.
type Service struct {
	completer Completer
	logger    *zap.Logger
}

func NewService(completer Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: completer, logger: logger}
}

// SentimentAudit is the structured verdict on public sentiment for a product
// or site.
type SentimentAudit struct {
	Score   float64  `json:"score"`
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
}

// LighthouseReport is one simulated Lighthouse run: a single URL on a single
// device class. An audit yields a Desktop and a Mobile report per URL.
type LighthouseReport struct {
	URL             string   `json:"url"`
	Device          string   `json:"device"`
	Performance     float64  `json:"performance"`
	Accessibility   float64  `json:"accessibility"`
	SEO             float64  `json:"seo"`
	BestPractices   float64  `json:"bestPractices"`
	LCP             float64  `json:"lcp"`
	FCP             float64  `json:"fcp"`
	CLS             float64  `json:"cls"`
	FID             float64  `json:"fid"`
	Recommendations []string `json:"recommendations"`
}

// ChartConfig is a renderable chart description derived from a natural
// language request. KPIKeys must come from the caller's allowed set.
type ChartConfig struct {
	ChartType string   `json:"chartType"`
	Title     string   `json:"title"`
	KPIKeys   []string `json:"kpiKeys"`
	DateRange string   `json:"dateRange"`
}

type EpicInput struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	StoryPoints int    `json:"storyPoints"`
}

type EpicScore struct {
	Key       string  `json:"key"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// AuditSentiment gathers a sentiment verdict for the given URL.
func (s *Service) AuditSentiment(ctx context.Context, url string) (*SentimentAudit, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	systemPrompt := `You are a product sentiment analyst. Audit public sentiment for the given website.
Return JSON only:
{"score": 0.0-10.0, "summary": "two sentences", "themes": ["theme", ...]}`

	resp, err := s.complete(ctx, "sentiment_audit", CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Audit sentiment for: %s", url),
		Temperature:  0.3,
		MaxTokens:    600,
	})
	if err != nil {
		return nil, err
	}

	var audit SentimentAudit
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Content)), &audit); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment audit: %w", err)
	}
	return &audit, nil
}

// AuditSEO runs a simulated Lighthouse SEO and performance audit over the
// given URLs. Blank entries are dropped; each surviving URL gets a Desktop
// and a Mobile report.
func (s *Service) AuditSEO(ctx context.Context, urls []string) ([]LighthouseReport, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("at least one url is required")
	}

	systemPrompt := `You are a web performance auditor. Simulate a detailed Lighthouse SEO and performance audit for each URL.
For each URL produce TWO reports, one with device "Desktop" and one with device "Mobile".
Scores are 0-100; lcp, fcp and fid are milliseconds; cls is a layout shift score. Follow Core Web Vital standards.
Return strictly a JSON array:
[{"url": "...", "device": "Desktop", "performance": 0, "accessibility": 0, "seo": 0, "bestPractices": 0, "lcp": 0, "fcp": 0, "cls": 0, "fid": 0, "recommendations": ["..."]}]`

	resp, err := s.complete(ctx, "seo_audit", CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Audit the following URLs: %s", strings.Join(cleaned, ", ")),
		Temperature:  0.3,
		MaxTokens:    2000,
	})
	if err != nil {
		return nil, err
	}

	var reports []LighthouseReport
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Content)), &reports); err != nil {
		return nil, fmt.Errorf("failed to parse lighthouse reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("audit produced no reports")
	}
	return reports, nil
}

// ChartFromPrompt turns a natural language request into a chart config
// restricted to the tenant's known metric keys. Keys the model invents are
// dropped; a config with no surviving keys is an error, not a guess.
func (s *Service) ChartFromPrompt(ctx context.Context, prompt string, allowedKeys []string) (*ChartConfig, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	systemPrompt := fmt.Sprintf(`You are a dashboard configuration assistant.
Available metric keys: %s
Chart types: line, bar, area, number.
Return JSON only:
{"chartType": "...", "title": "...", "kpiKeys": ["..."], "dateRange": "30d"}`,
		strings.Join(allowedKeys, ", "))

	resp, err := s.complete(ctx, "chart_config", CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.2,
		MaxTokens:    400,
	})
	if err != nil {
		return nil, err
	}

	var cfg ChartConfig
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Content)), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse chart config: %w", err)
	}

	allowed := make(map[string]bool, len(allowedKeys))
	for _, k := range allowedKeys {
		allowed[k] = true
	}
	kept := cfg.KPIKeys[:0]
	for _, k := range cfg.KPIKeys {
		if allowed[k] {
			kept = append(kept, k)
		}
	}
	cfg.KPIKeys = kept
	if len(cfg.KPIKeys) == 0 {
		return nil, fmt.Errorf("chart config references no known metric keys")
	}

	return &cfg, nil
}

// PrioritizeEpics scores a backlog slice for planning. Scores of epics the
// model did not return default to absent rather than zero.
func (s *Service) PrioritizeEpics(ctx context.Context, epics []EpicInput) ([]EpicScore, error) {
	if len(epics) == 0 {
		return nil, fmt.Errorf("no epics to prioritize")
	}

	payload, err := json.Marshal(epics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode epics: %w", err)
	}

	systemPrompt := `You are a delivery planning assistant. Score each epic 0-100 for priority.
Return JSON only:
[{"key": "...", "score": 0-100, "rationale": "one sentence"}]`

	resp, err := s.complete(ctx, "epic_priority", CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   string(payload),
		Temperature:  0.2,
		MaxTokens:    1200,
	})
	if err != nil {
		return nil, err
	}

	var scores []EpicScore
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Content)), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse epic scores: %w", err)
	}
	return scores, nil
}

// ReleaseNarrative writes the prose section of a release report from its
// rolled-up numbers.
func (s *Service) ReleaseNarrative(ctx context.Context, report domain.ReleaseReport) (string, error) {
	userPrompt := fmt.Sprintf(
		"Fix version %s, sprint %s: %d issues, %.0f story points, %d bugs resolved. Write a short release summary for stakeholders.",
		report.FixVersionName, report.SprintNumber, report.TotalIssues, report.TotalStoryPoints, report.BugsResolved,
	)

	resp, err := s.complete(ctx, "release_narrative", CompletionRequest{
		SystemPrompt: "You are a release manager. Write plain, factual release notes. No markdown.",
		UserPrompt:   userPrompt,
		Temperature:  0.4,
		MaxTokens:    500,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Content), nil
}

func (s *Service) complete(ctx context.Context, operation string, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := s.completer.Complete(ctx, req)
	if err != nil {
		metrics.AIRequests.WithLabelValues(operation, "error").Inc()
		s.logger.Error("insight operation failed", zap.String("operation", operation), zap.Error(err))
		return nil, fmt.Errorf("insight %s failed: %w", operation, err)
	}
	metrics.AIRequests.WithLabelValues(operation, "ok").Inc()
	return resp, nil
}
