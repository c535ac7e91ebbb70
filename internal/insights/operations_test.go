package insights

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	content string
	err     error
	reqs    []CompletionRequest
}

func (s *stubCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Content: s.content}, nil
}

func TestStripJSONFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                          "{\"a\":1}",
		"```json\n{\"a\":1}\n```":            "{\"a\":1}",
		"```\n{\"a\":1}\n```":                "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```  ":        "{\"a\":1}",
		"plain prose, no fence, no brackets": "plain prose, no fence, no brackets",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripJSONFence(in))
	}
}

func TestAuditSentimentParsesFencedJSON(t *testing.T) {
	stub := &stubCompleter{content: "```json\n{\"score\": 7.5, \"summary\": \"mostly positive\", \"themes\": [\"pricing\"]}\n```"}
	svc := NewService(stub, nil)

	audit, err := svc.AuditSentiment(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 7.5, audit.Score)
	assert.Equal(t, []string{"pricing"}, audit.Themes)
}

func TestAuditSentimentRequiresURL(t *testing.T) {
	svc := NewService(&stubCompleter{}, nil)
	_, err := svc.AuditSentiment(context.Background(), "")
	require.Error(t, err)
}

func TestAuditSEOParsesReportPairs(t *testing.T) {
	stub := &stubCompleter{content: "```json\n[" +
		`{"url": "https://example.com", "device": "Desktop", "performance": 92, "accessibility": 88, "seo": 95, "bestPractices": 90, "lcp": 1800, "fcp": 900, "cls": 0.05, "fid": 12, "recommendations": ["preload hero image"]},` +
		`{"url": "https://example.com", "device": "Mobile", "performance": 71, "accessibility": 88, "seo": 93, "bestPractices": 90, "lcp": 3100, "fcp": 1600, "cls": 0.11, "fid": 40, "recommendations": ["defer offscreen images"]}` +
		"]\n```"}
	svc := NewService(stub, nil)

	reports, err := svc.AuditSEO(context.Background(), []string{" https://example.com ", ""})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "Desktop", reports[0].Device)
	assert.Equal(t, "Mobile", reports[1].Device)
	assert.Equal(t, 92.0, reports[0].Performance)
	assert.Equal(t, 3100.0, reports[1].LCP)

	require.Len(t, stub.reqs, 1)
	assert.Contains(t, stub.reqs[0].UserPrompt, "https://example.com")
	assert.NotContains(t, stub.reqs[0].UserPrompt, "  ")
}

func TestAuditSEORequiresURLs(t *testing.T) {
	svc := NewService(&stubCompleter{}, nil)

	_, err := svc.AuditSEO(context.Background(), nil)
	require.Error(t, err)

	_, err = svc.AuditSEO(context.Background(), []string{"   ", ""})
	require.Error(t, err)
}

func TestAuditSEOEmptyResultIsError(t *testing.T) {
	svc := NewService(&stubCompleter{content: "[]"}, nil)
	_, err := svc.AuditSEO(context.Background(), []string{"https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reports")
}

func TestChartFromPromptFiltersUnknownKeys(t *testing.T) {
	stub := &stubCompleter{content: `{"chartType": "line", "title": "Sessions", "kpiKeys": ["sessions", "made_up"], "dateRange": "30d"}`}
	svc := NewService(stub, nil)

	cfg, err := svc.ChartFromPrompt(context.Background(), "sessions over the last month", []string{"sessions", "revenue"})
	require.NoError(t, err)
	assert.Equal(t, "line", cfg.ChartType)
	assert.Equal(t, []string{"sessions"}, cfg.KPIKeys)
}

func TestChartFromPromptRejectsAllUnknownKeys(t *testing.T) {
	stub := &stubCompleter{content: `{"chartType": "line", "title": "x", "kpiKeys": ["made_up"], "dateRange": "7d"}`}
	svc := NewService(stub, nil)

	_, err := svc.ChartFromPrompt(context.Background(), "something", []string{"sessions"})
	require.Error(t, err)
}

func TestPrioritizeEpics(t *testing.T) {
	stub := &stubCompleter{content: `[{"key": "PP-1", "score": 80, "rationale": "unblocks ingestion"}]`}
	svc := NewService(stub, nil)

	scores, err := svc.PrioritizeEpics(context.Background(), []EpicInput{{Key: "PP-1", Summary: "csv upload", StoryPoints: 8}})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "PP-1", scores[0].Key)
	assert.Equal(t, 80.0, scores[0].Score)
}

func TestCompleterErrorIsWrapped(t *testing.T) {
	stub := &stubCompleter{err: errors.New("rate limited")}
	svc := NewService(stub, nil)

	_, err := svc.PrioritizeEpics(context.Background(), []EpicInput{{Key: "PP-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epic_priority")
}

func TestMalformedJSONIsAnError(t *testing.T) {
	stub := &stubCompleter{content: "I cannot answer that."}
	svc := NewService(stub, nil)

	_, err := svc.AuditSentiment(context.Background(), "https://example.com")
	require.Error(t, err)
}
