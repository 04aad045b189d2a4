package signal

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoHealthCheck is returned when a team has no health-check command
// configured.
var ErrNoHealthCheck = errors.New("no health-check command configured")

// ExecHealthChecker runs a team's health-check executable and interprets the
// result. A zero exit status counts as a full pass. If the command prints a
// bare number on its last stdout line, that is taken as the pass percentage
// instead, so finer-grained health-check protocols are honored.
type ExecHealthChecker struct{}

// NewExecHealthChecker creates the exec-based health checker.
func NewExecHealthChecker() *ExecHealthChecker {
	return &ExecHealthChecker{}
}

// Run executes the command with the given timeout and returns the pass
// percentage in [0,100].
func (e *ExecHealthChecker) Run(ctx context.Context, teamName string, command []string, timeout time.Duration) (float64, error) {
	if len(command) == 0 {
		return 0, ErrNoHealthCheck
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...) //nolint:gosec // command comes from the validated team profile
	cmd.Env = append(cmd.Environ(), "SWITCHPILOT_TEAM="+teamName)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is a failed check, not an adapter error.
			return 0, nil
		}
		return 0, fmt.Errorf("health check for team %s: %w", teamName, err)
	}

	if pct, ok := parsePercent(out); ok {
		return pct, nil
	}
	return 100, nil
}

// parsePercent extracts a percentage from the last non-empty output line.
func parsePercent(out []byte) (float64, bool) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return 0, false
	}
	last := strings.TrimSuffix(strings.TrimSpace(lines[len(lines)-1]), "%")
	pct, err := strconv.ParseFloat(last, 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
