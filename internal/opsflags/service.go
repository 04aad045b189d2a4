package opsflags

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Service provides flag evaluation with a fallback to defaults when the
// repository is unavailable.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	defaults map[string]*Flag
}

// NewService creates an operational flags service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		defaults: DefaultFlags(),
	}
}

// GetFlag retrieves a flag by key, falling back to the default.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		return flag
	}
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to read operational flag")
	}
	return s.defaults[key]
}

// GetAllFlags returns all flags merged over the defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := make(map[string]*Flag, len(s.defaults))
	for k, v := range s.defaults {
		result[k] = v
	}
	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read operational flags, using defaults")
		return result
	}
	for k, v := range flags {
		result[k] = v
	}
	return result
}

// SetFlag updates a flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.repo.SetFlag(ctx, flag)
}

// AutoSwitchDisabled reports whether the fleet-wide switching kill switch
// is set.
func (s *Service) AutoSwitchDisabled(ctx context.Context) bool {
	return s.GetFlag(ctx, FlagDisableAutoSwitch).BoolValue(false)
}

// NotificationsDisabled reports whether notifications are suppressed.
func (s *Service) NotificationsDisabled(ctx context.Context) bool {
	return s.GetFlag(ctx, FlagDisableNotifications).BoolValue(false)
}

// CachedOnlySignals reports whether assessments must avoid live signal
// queries.
func (s *Service) CachedOnlySignals(ctx context.Context) bool {
	return s.GetFlag(ctx, FlagCachedOnlySignals).BoolValue(false)
}
