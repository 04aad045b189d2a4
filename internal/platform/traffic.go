// Package platform holds the typed clients for the external collaborators
// of a switch: the traffic-control endpoint, the durable topology record,
// and the backup/sync commands. Each capability is one interface so tests
// can substitute fakes.
package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/signal/resilience"
)

// TrafficController drives the reverse proxy in front of a team's blue and
// green backends.
type TrafficController interface {
	EnableBackend(ctx context.Context, team string, color fleet.Color) error
	DisableBackend(ctx context.Context, team string, color fleet.Color) error
	// Healthy probes the proxy control endpoint itself. The orchestrator
	// treats an unhealthy proxy as a hard pre-validation failure.
	Healthy(ctx context.Context) bool
	// ProbeBackend checks a team's backend through the proxy.
	ProbeBackend(ctx context.Context, team string, color fleet.Color) error
}

// ProxyController is the HTTP implementation of TrafficController against
// the proxy's admin API.
type ProxyController struct {
	baseURL string
	client  *resilience.Client
}

// NewProxyController creates a controller for the admin API at baseURL.
func NewProxyController(baseURL string, timeout time.Duration) *ProxyController {
	return &ProxyController{
		baseURL: baseURL,
		client: resilience.NewClient(resilience.ClientConfig{
			Name:    "proxy-admin",
			Timeout: timeout,
		}),
	}
}

// EnableBackend marks the backend as eligible for traffic.
func (p *ProxyController) EnableBackend(ctx context.Context, teamName string, color fleet.Color) error {
	return p.post(ctx, fmt.Sprintf("/v1/backends/%s/%s/enable", teamName, color))
}

// DisableBackend drains the backend.
func (p *ProxyController) DisableBackend(ctx context.Context, teamName string, color fleet.Color) error {
	return p.post(ctx, fmt.Sprintf("/v1/backends/%s/%s/disable", teamName, color))
}

// Healthy reports whether the proxy admin endpoint answers.
func (p *ProxyController) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ProbeBackend requests the team's backend health through the proxy.
func (p *ProxyController) ProbeBackend(ctx context.Context, teamName string, color fleet.Color) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/backends/%s/%s/health", p.baseURL, teamName, color), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("probe %s/%s: %w", teamName, color, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s/%s: status %d", teamName, color, resp.StatusCode)
	}
	return nil
}

func (p *ProxyController) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("proxy %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("proxy %s: status %d", path, resp.StatusCode)
	}
	return nil
}
