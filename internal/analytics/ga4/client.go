package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client calls the Google Analytics Data API runReport endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	propertyID  string
	logger      *zap.Logger
}

func NewClient(baseURL, accessToken, propertyID string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		accessToken: accessToken,
		propertyID:  propertyID,
		logger:      logger,
	}
}

type runReportRequest struct {
	DateRanges []dateRange `json:"dateRanges"`
	Dimensions []namedItem `json:"dimensions"`
	Metrics    []namedItem `json:"metrics"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type namedItem struct {
	Name string `json:"name"`
}

type runReportResponse struct {
	Rows []reportRow `json:"rows"`
}

type reportRow struct {
	DimensionValues []reportValue `json:"dimensionValues"`
	MetricValues    []reportValue `json:"metricValues"`
}

type reportValue struct {
	Value string `json:"value"`
}

// DailyMetrics is one reported day keyed by metric name.
type DailyMetrics struct {
	Date   string
	Values map[string]float64
}

// RunDailyReport fetches the given metrics broken down by date over
// [startDate, endDate] (YYYY-MM-DD). Dates come back normalized to
// YYYY-MM-DD regardless of the API's YYYYMMDD dimension format.
func (c *Client) RunDailyReport(ctx context.Context, startDate, endDate string, metricNames []string) ([]DailyMetrics, error) {
	if c.propertyID == "" {
		return nil, fmt.Errorf("ga4 property id is not configured")
	}
	if len(metricNames) == 0 {
		return nil, fmt.Errorf("no metrics requested")
	}

	reqBody := runReportRequest{
		DateRanges: []dateRange{{StartDate: startDate, EndDate: endDate}},
		Dimensions: []namedItem{{Name: "date"}},
	}
	for _, name := range metricNames {
		reqBody.Metrics = append(reqBody.Metrics, namedItem{Name: name})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/properties/%s:runReport", c.baseURL, c.propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analytics api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analytics api returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var report runReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report response: %w", err)
	}

	days := make([]DailyMetrics, 0, len(report.Rows))
	for _, row := range report.Rows {
		if len(row.DimensionValues) == 0 {
			continue
		}
		day := DailyMetrics{
			Date:   normalizeDate(row.DimensionValues[0].Value),
			Values: make(map[string]float64, len(metricNames)),
		}
		for i, name := range metricNames {
			if i >= len(row.MetricValues) {
				break
			}
			day.Values[metricKey(name)] = parseMetricValue(row.MetricValues[i].Value)
		}
		days = append(days, day)
	}

	c.logger.Debug("analytics report fetched",
		zap.String("start", startDate),
		zap.String("end", endDate),
		zap.Int("days", len(days)),
	)

	return days, nil
}

// normalizeDate converts the API's 20240131 date dimension to 2024-01-31.
func normalizeDate(v string) string {
	if len(v) != 8 {
		return v
	}
	return v[:4] + "-" + v[4:6] + "-" + v[6:]
}
