// Package scheduler runs the periodic progress snapshot refresh.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher takes a progress snapshot of every enrollment.
type Refresher interface {
	RefreshSnapshots(ctx context.Context) (int, error)
}

// Scheduler owns the refresh timer. The progression core never holds timers itself.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
}

// New creates a scheduler that refreshes every interval.
func New(refresher Refresher, interval time.Duration) (*Scheduler, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher is nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		interval:  interval,
		timeout:   interval,
	}, nil
}

// Start schedules the refresh job and runs it in the background. The first run
// happens immediately. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.scheduler.Every(s.interval).Do(s.RunOnce, ctx); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	s.scheduler.StartAsync()
	slog.Info("snapshot refresh scheduled", "interval", s.interval.String())
	return nil
}

// Stop terminates the scheduled job and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunOnce performs a single refresh.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	n, err := s.refresher.RefreshSnapshots(ctx)
	if err != nil {
		slog.Error("snapshot refresh failed", "taken", n, "error", err)
		return
	}
	slog.Info("snapshot refresh complete", "taken", n, "duration_ms", time.Since(started).Milliseconds())
}
