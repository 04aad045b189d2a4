// Package opsflags provides runtime operational flags for the control
// plane: fleet-wide kill switches an operator can flip without a restart.
package opsflags

import "time"

// Well-known flag keys.
const (
	// FlagDisableAutoSwitch suspends all automated switching fleet-wide.
	// Assessments continue; the safety gate denies every automated action.
	FlagDisableAutoSwitch = "disable_auto_switch"

	// FlagDisableNotifications suppresses outbound notifications.
	FlagDisableNotifications = "disable_notifications"

	// FlagCachedOnlySignals makes assessments reuse the last persisted
	// readings instead of querying the signal sources.
	FlagCachedOnlySignals = "cached_only_signals"
)

// Flag is one operational flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BoolValue returns the flag value as a boolean, or defaultValue when the
// flag is nil or not boolean-shaped.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64.
		return v != 0
	default:
		return defaultValue
	}
}

// DefaultFlags returns the initial flag set: everything permissive.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagDisableAutoSwitch:    {Key: FlagDisableAutoSwitch, Value: false, UpdatedAt: now},
		FlagDisableNotifications: {Key: FlagDisableNotifications, Value: false, UpdatedAt: now},
		FlagCachedOnlySignals:    {Key: FlagCachedOnlySignals, Value: false, UpdatedAt: now},
	}
}
