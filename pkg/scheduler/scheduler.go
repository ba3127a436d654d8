// Package scheduler runs the periodic specialist status recomputation.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jhjames1/peerchat/pkg/services"
)

// runTimeout bounds a single recomputation.
const runTimeout = 30 * time.Second

// StatusRecomputer recomputes calendar-driven specialist statuses and
// returns how many changed. Implemented by services.SpecialistService and
// the Supabase store's RPC call.
type StatusRecomputer interface {
	RecomputeStatuses(ctx context.Context) (int, error)
}

// WarningSink surfaces repeated failures on the health endpoint.
type WarningSink interface {
	AddWarning(category, message, details string) string
	Clear(category string) bool
}

// Scheduler calls a StatusRecomputer once at start and then on every
// interval. Failures are logged and the loop keeps going.
type Scheduler struct {
	recomputer StatusRecomputer
	interval   time.Duration
	warnings   WarningSink
	logger     *slog.Logger

	runs     atomic.Int64
	failures atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. warnings may be nil.
func New(recomputer StatusRecomputer, interval time.Duration, warnings WarningSink) *Scheduler {
	return &Scheduler{
		recomputer: recomputer,
		interval:   interval,
		warnings:   warnings,
		logger:     slog.Default().With("component", "status-scheduler"),
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Status scheduler started", "interval", s.interval)
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("Status scheduler stopped")
}

// Stats reports completed and failed runs.
func (s *Scheduler) Stats() (runs, failures int64) {
	return s.runs.Load(), s.failures.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	changed, err := s.recomputer.RecomputeStatuses(runCtx)
	s.runs.Add(1)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failures.Add(1)
		s.logger.Error("Specialist status recomputation failed", "error", err)
		if s.warnings != nil {
			s.warnings.AddWarning(services.WarningCategoryStatusScheduler,
				"Specialist statuses are not being refreshed", err.Error())
		}
		return
	}

	if s.warnings != nil {
		s.warnings.Clear(services.WarningCategoryStatusScheduler)
	}
	if changed > 0 {
		s.logger.Info("Specialist statuses recomputed", "changed", changed)
	} else {
		s.logger.Debug("Specialist statuses unchanged")
	}
}
