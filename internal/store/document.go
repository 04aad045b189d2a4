// Package store owns the durable control-plane state: automation levels,
// circuit breaker states, rate-limit counters, switch history, assessment
// history, maintenance flags, and operation locks, keyed by team. All
// mutation goes through atomic per-team read-modify-write cycles.
package store

import (
	"time"

	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/health"
	"github.com/switchpilot/switchpilot/internal/team"
)

// History caps. Oldest entries are dropped first.
const (
	AssessmentHistoryCap = 100
	SwitchHistoryCap     = 100
)

// BreakerStatus is the tri-state domain circuit breaker status.
type BreakerStatus string

const (
	BreakerClosed   BreakerStatus = "closed"
	BreakerOpen     BreakerStatus = "open"
	BreakerHalfOpen BreakerStatus = "half_open"
)

// CircuitBreakerState is the persisted breaker state per (team, operation).
type CircuitBreakerState struct {
	Status              BreakerStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailureAt       time.Time     `json:"last_failure_at,omitempty"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// RateBucket counts switch attempts within one time bucket.
type RateBucket struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RateLimitCounters holds hourly and daily attempt buckets. Stale buckets
// may be pruned but correctness does not depend on it.
type RateLimitCounters struct {
	Hourly map[string]*RateBucket `json:"hourly,omitempty"`
	Daily  map[string]*RateBucket `json:"daily,omitempty"`
}

// HourKey formats the hourly bucket key for a timestamp.
func HourKey(t time.Time) string { return t.UTC().Format("2006-01-02T15") }

// DayKey formats the daily bucket key for a timestamp.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Record counts one attempt outcome in the hour and day buckets for t.
func (r *RateLimitCounters) Record(t time.Time, success bool) {
	if r.Hourly == nil {
		r.Hourly = make(map[string]*RateBucket)
	}
	if r.Daily == nil {
		r.Daily = make(map[string]*RateBucket)
	}
	for _, b := range []*RateBucket{bucket(r.Hourly, HourKey(t)), bucket(r.Daily, DayKey(t))} {
		b.Attempted++
		if success {
			b.Succeeded++
		} else {
			b.Failed++
		}
	}
}

// AttemptedInHour returns the attempted count for t's hour bucket.
func (r *RateLimitCounters) AttemptedInHour(t time.Time) int {
	if b, ok := r.Hourly[HourKey(t)]; ok {
		return b.Attempted
	}
	return 0
}

// AttemptedInDay returns the attempted count for t's day bucket.
func (r *RateLimitCounters) AttemptedInDay(t time.Time) int {
	if b, ok := r.Daily[DayKey(t)]; ok {
		return b.Attempted
	}
	return 0
}

func bucket(m map[string]*RateBucket, key string) *RateBucket {
	b, ok := m[key]
	if !ok {
		b = &RateBucket{}
		m[key] = b
	}
	return b
}

// SwitchResult is the terminal outcome of a switch attempt.
type SwitchResult string

const (
	SwitchSuccess    SwitchResult = "success"
	SwitchFailed     SwitchResult = "failed"
	SwitchRolledBack SwitchResult = "failed_rolled_back"
)

// SwitchRecord is one append-only entry in the per-team switch history.
type SwitchRecord struct {
	ID        string        `json:"id"`
	Team      string        `json:"team"`
	From      fleet.Color   `json:"from"`
	To        fleet.Color   `json:"to"`
	Reason    string        `json:"reason"`
	Result    SwitchResult  `json:"result"`
	Stage     string        `json:"stage,omitempty"` // stage where a failure occurred
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// AutomationState is the per-team automation level.
type AutomationState struct {
	Level     team.AutomationLevel `json:"level"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// LockInfo is an exclusively held per-(team, operation) token.
type LockInfo struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// TeamState is the full persisted state document for one team.
type TeamState struct {
	Team        string                          `json:"team"`
	Automation  AutomationState                 `json:"automation"`
	Breakers    map[string]*CircuitBreakerState `json:"circuit_breakers,omitempty"`
	RateLimits  RateLimitCounters               `json:"rate_limits"`
	Switches    []SwitchRecord                  `json:"switch_history,omitempty"`
	Assessments []*health.Assessment            `json:"assessments,omitempty"`
	Maintenance bool                            `json:"maintenance"`
	Locks       map[string]*LockInfo            `json:"locks,omitempty"`
}

// NewTeamState returns an empty state for a team, manual by default.
func NewTeamState(name string) *TeamState {
	return &TeamState{
		Team:       name,
		Automation: AutomationState{Level: team.AutomationManual, UpdatedAt: time.Now().UTC()},
		Breakers:   make(map[string]*CircuitBreakerState),
		Locks:      make(map[string]*LockInfo),
	}
}

// Breaker returns the breaker state for an operation, creating a closed one
// if absent.
func (s *TeamState) Breaker(op fleet.Operation) *CircuitBreakerState {
	if s.Breakers == nil {
		s.Breakers = make(map[string]*CircuitBreakerState)
	}
	b, ok := s.Breakers[string(op)]
	if !ok {
		b = &CircuitBreakerState{Status: BreakerClosed, UpdatedAt: time.Now().UTC()}
		s.Breakers[string(op)] = b
	}
	return b
}

// AppendAssessment adds an assessment to the bounded history, evicting the
// oldest entry past the cap.
func (s *TeamState) AppendAssessment(a *health.Assessment) {
	s.Assessments = append(s.Assessments, a)
	if len(s.Assessments) > AssessmentHistoryCap {
		s.Assessments = s.Assessments[len(s.Assessments)-AssessmentHistoryCap:]
	}
}

// AppendSwitch adds a switch record to the bounded history.
func (s *TeamState) AppendSwitch(rec SwitchRecord) {
	s.Switches = append(s.Switches, rec)
	if len(s.Switches) > SwitchHistoryCap {
		s.Switches = s.Switches[len(s.Switches)-SwitchHistoryCap:]
	}
}

// SwitchesSince counts switch attempts recorded after the cutoff.
func (s *TeamState) SwitchesSince(cutoff time.Time) int {
	n := 0
	for _, rec := range s.Switches {
		if rec.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// LastSwitch returns the most recent switch record, or nil.
func (s *TeamState) LastSwitch() *SwitchRecord {
	if len(s.Switches) == 0 {
		return nil
	}
	return &s.Switches[len(s.Switches)-1]
}
