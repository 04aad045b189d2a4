package models

// TeamList is the response for listing configured teams.
type TeamList struct {
	Teams []TeamSummary `json:"teams"`
}

// TeamSummary is one entry in the team list.
type TeamSummary struct {
	Name            string `json:"name"`
	Tier            string `json:"tier"`
	AutomationLevel string `json:"automationLevel"`
}

// SwitchRequest is the body of a switch request.
type SwitchRequest struct {
	// Target is the desired color, empty means the current standby.
	Target string `json:"target,omitempty"`
	// Reason is recorded in the switch history.
	Reason string `json:"reason"`
	// Force bypasses every safety check except the circuit breaker.
	Force bool `json:"force,omitempty"`
}

// AutomationRequest sets a team's automation level.
type AutomationRequest struct {
	Level string `json:"level"` // manual | assisted | automatic
}

// MaintenanceRequest sets or clears a team's maintenance window.
type MaintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

// FlagRequest sets an operational flag.
type FlagRequest struct {
	Enabled bool `json:"enabled"`
}

// FlagView is one operational flag in a list response.
type FlagView struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// FlagList is the response for listing operational flags.
type FlagList struct {
	Flags []FlagView `json:"flags"`
}
