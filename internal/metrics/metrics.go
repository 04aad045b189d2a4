// Package metrics bundles the prometheus collectors exported by the
// control plane.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles prometheus collectors used by the controller.
type Metrics struct {
	SweepsTotal       *prometheus.CounterVec
	SweepDurationSec  prometheus.Histogram
	TeamScore         *prometheus.GaugeVec
	TeamStatus        *prometheus.GaugeVec
	SwitchesTotal     *prometheus.CounterVec
	SwitchDurationSec *prometheus.HistogramVec
	GateDenialsTotal  *prometheus.CounterVec
	SignalErrorsTotal *prometheus.CounterVec
}

var statusValues = []string{"healthy", "warning", "critical", "failed"}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchpilot_sweeps_total",
			Help: "Total number of fleet sweep passes.",
		}, []string{"result"}),
		SweepDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "switchpilot_sweep_duration_seconds",
			Help:    "Full fleet sweep duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		TeamScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchpilot_team_health_score",
			Help: "Latest composite health score per team (0-100).",
		}, []string{"team"}),
		TeamStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchpilot_team_status",
			Help: "Latest health status per team, 1 for the active status.",
		}, []string{"team", "status"}),
		SwitchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchpilot_switches_total",
			Help: "Total number of switch attempts by outcome.",
		}, []string{"team", "outcome"}),
		SwitchDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchpilot_switch_duration_seconds",
			Help:    "Switch attempt duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"team", "outcome"}),
		GateDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchpilot_gate_denials_total",
			Help: "Total number of safety gate denials by check.",
		}, []string{"team", "check"}),
		SignalErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchpilot_signal_errors_total",
			Help: "Total number of signal source failures.",
		}, []string{"team", "source"}),
	}

	registry.MustRegister(
		m.SweepsTotal,
		m.SweepDurationSec,
		m.TeamScore,
		m.TeamStatus,
		m.SwitchesTotal,
		m.SwitchDurationSec,
		m.GateDenialsTotal,
		m.SignalErrorsTotal,
	)

	return m
}

// ObserveSweep records one completed sweep pass.
func (m *Metrics) ObserveSweep(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.SweepsTotal.WithLabelValues(result).Inc()
	m.SweepDurationSec.Observe(d.Seconds())
}

// SetTeamScore publishes the team's latest composite score.
func (m *Metrics) SetTeamScore(team string, score float64) {
	m.TeamScore.WithLabelValues(team).Set(score)
}

// SetTeamStatus publishes the team's latest status as a one-hot gauge.
func (m *Metrics) SetTeamStatus(team, status string) {
	for _, s := range statusValues {
		v := 0.0
		if s == status {
			v = 1.0
		}
		m.TeamStatus.WithLabelValues(team, s).Set(v)
	}
}

// RecordSwitch records one finished switch attempt.
func (m *Metrics) RecordSwitch(team, outcome string, d time.Duration) {
	m.SwitchesTotal.WithLabelValues(team, outcome).Inc()
	m.SwitchDurationSec.WithLabelValues(team, outcome).Observe(d.Seconds())
}

// RecordGateDenial records a safety gate denial.
func (m *Metrics) RecordGateDenial(team, check string) {
	m.GateDenialsTotal.WithLabelValues(team, check).Inc()
}

// RecordSignalError records a degraded signal source.
func (m *Metrics) RecordSignalError(team, source string) {
	m.SignalErrorsTotal.WithLabelValues(team, source).Inc()
}
