package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/switchpilot/switchpilot/internal/signal/resilience"
)

// MetricsClient queries the time-series metrics service over HTTP.
type MetricsClient struct {
	baseURL string
	client  *resilience.Client
}

// NewMetricsClient creates a metrics adapter for the given base URL.
func NewMetricsClient(baseURL string, timeout time.Duration) *MetricsClient {
	return &MetricsClient{
		baseURL: baseURL,
		client: resilience.NewClient(resilience.ClientConfig{
			Name:    "metrics-query",
			Timeout: timeout,
		}),
	}
}

type metricsResponse struct {
	Value  *float64 `json:"value"`
	Absent bool     `json:"absent,omitempty"`
}

// Query fetches one metric for a team over a trailing window. Returns
// (0, false, nil) when the service reports the metric as absent.
func (c *MetricsClient) Query(ctx context.Context, teamName, metric string, window time.Duration) (float64, bool, error) {
	q := url.Values{}
	q.Set("team", teamName)
	q.Set("metric", metric)
	q.Set("window", window.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/query?"+q.Encode(), nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return 0, false, fmt.Errorf("metrics query %s for team %s: %w", metric, teamName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("metrics query %s for team %s: unexpected status %d", metric, teamName, resp.StatusCode)
	}

	var body metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, fmt.Errorf("metrics query %s for team %s: decode: %w", metric, teamName, err)
	}
	if body.Absent || body.Value == nil {
		return 0, false, nil
	}
	return *body.Value, true, nil
}
