package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/switchpilot/switchpilot/internal/signal/resilience"
)

// LogsClient queries the log-pattern search service over HTTP.
type LogsClient struct {
	baseURL string
	client  *resilience.Client
}

// NewLogsClient creates a log query adapter for the given base URL.
func NewLogsClient(baseURL string, timeout time.Duration) *LogsClient {
	return &LogsClient{
		baseURL: baseURL,
		client: resilience.NewClient(resilience.ClientConfig{
			Name:    "logs-query",
			Timeout: timeout,
		}),
	}
}

type logsQuery struct {
	Team     string   `json:"team"`
	Patterns []string `json:"patterns"`
	Window   string   `json:"window"`
}

type logsResponse struct {
	MatchCount int `json:"match_count"`
}

// CountMatches returns the number of log lines for the team matching any of
// the given patterns within the trailing window.
func (c *LogsClient) CountMatches(ctx context.Context, teamName string, patterns []string, window time.Duration) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(logsQuery{Team: teamName, Patterns: patterns, Window: window.String()})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/count", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("log query for team %s: %w", teamName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("log query for team %s: unexpected status %d", teamName, resp.StatusCode)
	}

	var body logsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("log query for team %s: decode: %w", teamName, err)
	}
	return body.MatchCount, nil
}
