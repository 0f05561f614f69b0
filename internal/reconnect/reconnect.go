// Package reconnect is a generic exponential-backoff supervisor for a
// reconnectable I/O resource (a serial port, a bus dial). Unlike a
// health-check watcher that periodically probes an independently-alive
// service, this supervisor owns the full open/run/close lifecycle: it
// opens the resource, hands it to a caller-supplied runner that blocks
// until the resource fails, then reopens with backoff and repeats.
package reconnect

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// BackoffConfig controls the retry schedule. Defaults mirror the
// pack's connwatch package: 2s, 4s, 8s, ... capped at 60s.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoffConfig returns the 2s/4s/8s/.../60s-capped schedule.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// OpenFunc attempts to (re)establish the resource.
type OpenFunc func(ctx context.Context) (io.Closer, error)

// RunFunc takes ownership of an opened resource and blocks until it
// fails or ctx is canceled, returning the failure reason (nil means
// ctx was canceled, not a failure).
type RunFunc func(ctx context.Context, resource io.Closer) error

// Config configures a Supervisor.
type Config struct {
	Name    string
	Backoff BackoffConfig
	Logger  *slog.Logger

	// OnUp is called after a successful Open, before Run starts.
	OnUp func(resource io.Closer)
	// OnDown is called after Run returns a failure, before the retry
	// delay. Not called on clean shutdown (ctx canceled).
	OnDown func(err error)
}

// Supervisor repeatedly opens a resource, runs it until failure, and
// reopens with exponential backoff, indefinitely until ctx is
// canceled.
type Supervisor struct {
	cfg Config
}

// New constructs a Supervisor.
func New(cfg Config) *Supervisor {
	cfg.Backoff = cfg.Backoff.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{cfg: cfg}
}

// Run opens the resource via open, hands it to run, and on failure
// reopens with backoff. It returns only when ctx is canceled.
func (s *Supervisor) Run(ctx context.Context, open OpenFunc, run RunFunc) {
	logger := s.cfg.Logger.With("component", s.cfg.Name)
	delay := s.cfg.Backoff.InitialDelay

	for {
		if ctx.Err() != nil {
			return
		}

		resource, err := open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("open failed, retrying", "next_delay", delay.String(), "error", err)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = growDelay(delay, s.cfg.Backoff)
			continue
		}

		logger.Info("resource open")
		delay = s.cfg.Backoff.InitialDelay
		if s.cfg.OnUp != nil {
			s.cfg.OnUp(resource)
		}

		runErr := run(ctx, resource)
		resource.Close()

		if ctx.Err() != nil {
			return
		}
		if runErr != nil {
			logger.Warn("resource failed, reopening", "next_delay", delay.String(), "error", runErr)
			if s.cfg.OnDown != nil {
				s.cfg.OnDown(runErr)
			}
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = growDelay(delay, s.cfg.Backoff)
		}
	}
}

func growDelay(delay time.Duration, cfg BackoffConfig) time.Duration {
	next := time.Duration(float64(delay) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
