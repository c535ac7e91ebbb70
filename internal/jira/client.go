package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// storyPointsField is the default Jira Cloud custom field for story point
// estimates.
const storyPointsField = "customfield_10016"

const searchPageSize = 100

// Client is a minimal Jira Cloud REST client scoped to release reporting.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	apiToken   string
	logger     *zap.Logger
}

func NewClient(baseURL, email, apiToken string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		email:      email,
		apiToken:   apiToken,
		logger:     logger,
	}
}

// Issue is the slice of a Jira issue release reporting needs.
type Issue struct {
	Key         string
	Summary     string
	IssueType   string
	Status      string
	Resolved    bool
	StoryPoints float64
	Assignee    string
}

type searchResponse struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Issues     []searchIssue `json:"issues"`
}

type searchIssue struct {
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

type issueFields struct {
	Summary   string `json:"summary"`
	IssueType struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Status struct {
		Name           string `json:"name"`
		StatusCategory struct {
			Key string `json:"key"`
		} `json:"statusCategory"`
	} `json:"status"`
	Assignee struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
}

// SearchFixVersion returns every issue tagged with the given fix version,
// following pagination to the end.
func (c *Client) SearchFixVersion(ctx context.Context, fixVersion string) ([]Issue, error) {
	if fixVersion == "" {
		return nil, fmt.Errorf("fix version is required")
	}

	jql := fmt.Sprintf(`fixVersion = %q ORDER BY key`, fixVersion)
	fields := fmt.Sprintf("summary,issuetype,status,assignee,%s", storyPointsField)

	var issues []Issue
	startAt := 0
	for {
		page, err := c.searchPage(ctx, jql, fields, startAt)
		if err != nil {
			return nil, err
		}

		for _, raw := range page.Issues {
			issue, err := decodeIssue(raw)
			if err != nil {
				return nil, err
			}
			issues = append(issues, issue)
		}

		startAt += len(page.Issues)
		if startAt >= page.Total || len(page.Issues) == 0 {
			break
		}
	}

	c.logger.Debug("fix version search complete",
		zap.String("fix_version", fixVersion),
		zap.Int("issues", len(issues)),
	)

	return issues, nil
}

func (c *Client) searchPage(ctx context.Context, jql, fields string, startAt int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("fields", fields)
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(searchPageSize))

	endpoint := fmt.Sprintf("%s/rest/api/3/search?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call issue tracker: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("issue tracker returned %d: %s", resp.StatusCode, body)
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &page, nil
}

func decodeIssue(raw searchIssue) (Issue, error) {
	var fields issueFields
	if err := json.Unmarshal(raw.Fields, &fields); err != nil {
		return Issue{}, fmt.Errorf("failed to decode issue %s: %w", raw.Key, err)
	}

	// The story points estimate lives in a tenant-specific custom field, so
	// it is pulled out of the raw fields separately.
	var custom map[string]json.RawMessage
	_ = json.Unmarshal(raw.Fields, &custom)
	points := 0.0
	if rawPoints, ok := custom[storyPointsField]; ok {
		_ = json.Unmarshal(rawPoints, &points)
	}

	return Issue{
		Key:         raw.Key,
		Summary:     fields.Summary,
		IssueType:   fields.IssueType.Name,
		Status:      fields.Status.Name,
		Resolved:    fields.Status.StatusCategory.Key == "done",
		StoryPoints: points,
		Assignee:    fields.Assignee.DisplayName,
	}, nil
}
