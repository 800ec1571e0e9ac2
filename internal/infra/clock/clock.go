// Package clock drives the simulation in real time. A cron job fires every
// configured wall-clock interval and advances the engine one simulated hour,
// so one sim-month passes every HoursPerMonth firings. Manual advancement
// through the admin API and the simulate command bypasses the scheduler
// entirely; both paths funnel into the same engine tick, which ignores
// replays, so running them side by side is safe.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// Advancer is the slice of the engine the scheduler needs.
type Advancer interface {
	AdvanceHours(ctx context.Context, hours int64) []domain.Event
	LastTick() domain.Timestamp
}

// Config controls the real-time tick cadence.
type Config struct {
	// Interval is the wall-clock time between simulated hours.
	Interval time.Duration

	// FireTimeout caps the context handed to one advancement.
	FireTimeout time.Duration
}

// DefaultConfig returns production defaults: one simulated hour every two
// wall seconds, which is a sim-month roughly every 24 minutes.
func DefaultConfig() Config {
	return Config{
		Interval:    2 * time.Second,
		FireTimeout: 30 * time.Second,
	}
}

// Scheduler owns the cron instance and the lifecycle of the tick job.
type Scheduler struct {
	cfg Config
	log *logrus.Logger
	eng Advancer

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler wires a scheduler around the engine. Zero config fields fall
// back to defaults.
func NewScheduler(cfg Config, log *logrus.Logger, eng Advancer) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = def.FireTimeout
	}
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{cfg: cfg, log: log, eng: eng}
}

// Start registers the @every job and begins firing. Starting a running
// scheduler is an error; a stopped scheduler can be started again.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("clock: scheduler already running")
	}

	logger := cron.PrintfLogger(s.log)
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, s.fire); err != nil {
		return fmt.Errorf("clock: schedule %q: %w", spec, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithFields(logrus.Fields{
		"interval": s.cfg.Interval.String(),
		"tick":     s.eng.LastTick(),
	}).Info("clock started")
	return nil
}

// Stop halts scheduling and waits for an in-flight firing to finish, up to
// the context deadline. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	done := c.Stop()
	select {
	case <-done.Done():
		s.log.WithField("tick", s.eng.LastTick()).Info("clock stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("clock: stop: %w", ctx.Err())
	}
}

// Running reports whether the scheduler is firing.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()

	events := s.eng.AdvanceHours(ctx, 1)
	if len(events) > 0 {
		s.log.WithFields(logrus.Fields{
			"tick":   s.eng.LastTick(),
			"events": len(events),
		}).Debug("hour advanced")
	}
}
