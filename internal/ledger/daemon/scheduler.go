package daemon

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/ledger/db"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
	"github.com/batabung/batabung/internal/logger"
)

// ErrOffline is returned when the connectivity probe fails.
var ErrOffline = errors.New("backend unreachable")

// Syncer is the part of the sync engine the scheduler drives.
type Syncer interface {
	Bootstrap(ctx context.Context, ownerID string) (*ledgersync.Report, error)
	FullSync(ctx context.Context, ownerID string) (*ledgersync.Report, error)
	ResetState() bool
}

// Prober checks connectivity before a run.
type Prober interface {
	Ping(ctx context.Context) error
}

// LocalCounter tells the scheduler whether the device has local data.
type LocalCounter interface {
	Counts(ctx context.Context, ownerID string) (*db.StatusCounts, error)
}

// SchedulerConfig holds scheduling policy.
type SchedulerConfig struct {
	// Interval between periodic runs. Default 15m.
	Interval time.Duration
	// MinBackoff is the wait before the first retry; it doubles per retry
	// up to MaxBackoff. Defaults 10s and 5m.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxAttempts per cycle, first try included. Default 3.
	MaxAttempts int
	// ResetAfter returns a successful state to Idle. Zero disables it.
	ResetAfter time.Duration
	// OnRun is called after every cycle with its final outcome.
	OnRun  func(report *ledgersync.Report, err error)
	Logger *zerolog.Logger
}

// DefaultSchedulerConfig returns the default policy.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    15 * time.Minute,
		MinBackoff:  10 * time.Second,
		MaxBackoff:  5 * time.Minute,
		MaxAttempts: 3,
		ResetAfter:  3 * time.Second,
	}
}

// Scheduler runs periodic and on-demand syncs for one owner.
type Scheduler struct {
	owner  string
	engine Syncer
	probe  Prober
	local  LocalCounter
	config SchedulerConfig
	log    zerolog.Logger

	trigger chan struct{}

	mu         gosync.Mutex
	resetTimer *time.Timer
}

// NewScheduler creates a scheduler. probe and local may be nil: without a
// probe every run is attempted, without local every run is a FullSync.
func NewScheduler(owner string, engine Syncer, probe Prober, local LocalCounter, cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.MinBackoff)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Scheduler{
		owner:   owner,
		engine:  engine,
		probe:   probe,
		local:   local,
		config:  cfg,
		log:     logger.OrDefault(cfg.Logger, "scheduler"),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a run as soon as possible. Requests made while one is
// already queued are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run syncs once immediately, then on every tick and trigger, until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	defer s.stopReset()

	s.log.Info().Str("owner", s.owner).Dur("interval", s.config.Interval).Msg("scheduler started")
	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.trigger:
			s.cycle(ctx)
			ticker.Reset(s.config.Interval)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if s.config.OnRun != nil {
		s.config.OnRun(report, err)
	}
}

// RunOnce performs one sync cycle with retries. The first run on a device
// without any local rows or owed deletes is a Bootstrap.
func (s *Scheduler) RunOnce(ctx context.Context) (*ledgersync.Report, error) {
	backoff := s.config.MinBackoff
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		report, err := s.attempt(ctx)
		if err == nil {
			s.scheduleReset()
			return report, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return report, err
		}

		s.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.config.MaxAttempts).Msg("sync attempt failed")
		if attempt == s.config.MaxAttempts {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff = min(backoff*2, s.config.MaxBackoff)
	}
	return nil, fmt.Errorf("sync failed after %d attempts: %w", s.config.MaxAttempts, lastErr)
}

func (s *Scheduler) attempt(ctx context.Context) (*ledgersync.Report, error) {
	if s.probe != nil {
		if err := s.probe.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOffline, err)
		}
	}

	bootstrap := false
	if s.local != nil {
		counts, err := s.local.Counts(ctx, s.owner)
		if err != nil {
			return nil, fmt.Errorf("check local data: %w", err)
		}
		// Tombstones count: a bootstrap would drop them and bring the
		// deleted records back.
		bootstrap = counts.Empty()
	}

	if bootstrap {
		s.log.Info().Str("owner", s.owner).Msg("no local data, downloading ledger")
		return s.engine.Bootstrap(ctx, s.owner)
	}
	return s.engine.FullSync(ctx, s.owner)
}

// retryable reports whether another attempt could succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, ledgersync.ErrUnauthenticated),
		errors.Is(err, ledgersync.ErrSyncInProgress),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (s *Scheduler) scheduleReset() {
	if s.config.ResetAfter <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(s.config.ResetAfter, func() {
		s.engine.ResetState()
	})
}

func (s *Scheduler) stopReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
