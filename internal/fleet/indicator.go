package fleet

// Operation names an orchestrated action gated by the circuit breaker and
// the per-team lock. Switch is currently the only automated operation; the
// key space is kept open for future ones (e.g. scale, restart).
type Operation string

const (
	// OpSwitch is the blue/green traffic failover operation.
	OpSwitch Operation = "switch"
)

// Indicator is an independent strong signal that a team is unhealthy.
// The safety gate counts distinct indicators to satisfy the automation-level
// quorum (assisted mode requires two, automatic mode requires one).
type Indicator string

const (
	IndicatorScoreCritical     Indicator = "score_critical"
	IndicatorScoreFailed       Indicator = "score_failed"
	IndicatorErrorRateExceeded Indicator = "error_rate_exceeded"
	IndicatorAvailabilityLow   Indicator = "availability_low"
	IndicatorTrendDegrading    Indicator = "trend_degrading"
	IndicatorHealthCheckFailed Indicator = "health_check_failed"
)

// IndicatorSet is an unordered set of indicators.
type IndicatorSet map[Indicator]struct{}

// NewIndicatorSet builds a set from the given indicators.
func NewIndicatorSet(indicators ...Indicator) IndicatorSet {
	s := make(IndicatorSet, len(indicators))
	for _, in := range indicators {
		s[in] = struct{}{}
	}
	return s
}

// Add inserts an indicator into the set.
func (s IndicatorSet) Add(in Indicator) {
	s[in] = struct{}{}
}

// Has reports whether the indicator is present.
func (s IndicatorSet) Has(in Indicator) bool {
	_, ok := s[in]
	return ok
}

// List returns the indicators as a slice, in unspecified order.
func (s IndicatorSet) List() []Indicator {
	out := make([]Indicator, 0, len(s))
	for in := range s {
		out = append(out, in)
	}
	return out
}
