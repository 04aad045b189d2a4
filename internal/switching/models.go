// Package switching implements the safety-gated switch orchestrator: the
// state machine that fails traffic over from the active color to the
// standby color and rolls back when the new color does not stabilize.
package switching

import (
	"time"

	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/store"
)

// Stage names the step of the switch pipeline a result refers to.
type Stage string

const (
	StageLock           Stage = "lock"
	StagePreValidation  Stage = "pre_validation"
	StageBackup         Stage = "backup"
	StageDataSync       Stage = "data_sync"
	StageCutover        Stage = "cutover"
	StageStabilization  Stage = "stabilization"
	StagePostValidation Stage = "post_validation"
	StageRollback       Stage = "rollback"
)

// Result is the structured outcome of one switch attempt.
type Result struct {
	Team     string             `json:"team"`
	From     fleet.Color        `json:"from,omitempty"`
	To       fleet.Color        `json:"to,omitempty"`
	Outcome  store.SwitchResult `json:"outcome"`
	NoOp     bool               `json:"no_op,omitempty"`
	Stage    Stage              `json:"stage,omitempty"` // failing stage
	Reason   string             `json:"reason,omitempty"`
	Duration time.Duration      `json:"duration"`

	// RequiresManualIntervention is set when a rollback itself failed.
	// Such a state is never retried automatically.
	RequiresManualIntervention bool `json:"requires_manual_intervention,omitempty"`
}

// Succeeded reports whether the switch completed and validated.
func (r *Result) Succeeded() bool {
	return r.NoOp || r.Outcome == store.SwitchSuccess
}
