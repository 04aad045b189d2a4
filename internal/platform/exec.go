package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/fleet"
)

// BackupRunner snapshots the source color's data before a switch.
type BackupRunner interface {
	Backup(ctx context.Context, team string, source fleet.Color) error
}

// DataSyncer copies the non-regenerable data set (secrets, user content,
// credentials, accounts) from the source color to the target color.
type DataSyncer interface {
	Sync(ctx context.Context, team string, source, target fleet.Color) error
}

// ErrNoCommand is returned when a runner has no command configured.
var ErrNoCommand = errors.New("no command configured")

// ExecBackupRunner invokes an external backup command. The team and color
// are passed through the environment.
type ExecBackupRunner struct {
	command []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecBackupRunner creates a backup runner for the given command.
func NewExecBackupRunner(command []string, timeout time.Duration, logger zerolog.Logger) *ExecBackupRunner {
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	return &ExecBackupRunner{command: command, timeout: timeout, logger: logger}
}

// Backup runs the backup command for the team's source color.
func (r *ExecBackupRunner) Backup(ctx context.Context, teamName string, source fleet.Color) error {
	return runCommand(ctx, r.command, r.timeout, r.logger, "backup",
		"SWITCHPILOT_TEAM="+teamName,
		"SWITCHPILOT_SOURCE_COLOR="+string(source),
	)
}

// ExecDataSyncer invokes an external sync command.
type ExecDataSyncer struct {
	command []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecDataSyncer creates a data syncer for the given command.
func NewExecDataSyncer(command []string, timeout time.Duration, logger zerolog.Logger) *ExecDataSyncer {
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	return &ExecDataSyncer{command: command, timeout: timeout, logger: logger}
}

// Sync copies data from source to target for the team.
func (s *ExecDataSyncer) Sync(ctx context.Context, teamName string, source, target fleet.Color) error {
	return runCommand(ctx, s.command, s.timeout, s.logger, "sync",
		"SWITCHPILOT_TEAM="+teamName,
		"SWITCHPILOT_SOURCE_COLOR="+string(source),
		"SWITCHPILOT_TARGET_COLOR="+string(target),
	)
}

func runCommand(ctx context.Context, command []string, timeout time.Duration, logger zerolog.Logger, kind string, env ...string) error {
	if len(command) == 0 {
		return fmt.Errorf("%s: %w", kind, ErrNoCommand)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...) //nolint:gosec // command comes from operator configuration
	cmd.Env = append(cmd.Environ(), env...)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error().Err(err).Str("kind", kind).Dur("duration", time.Since(start)).
			Str("output", tail(out, 512)).Msg("external command failed")
		return fmt.Errorf("%s command: %w", kind, err)
	}

	logger.Debug().Str("kind", kind).Dur("duration", time.Since(start)).Msg("external command completed")
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
