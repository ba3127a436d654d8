// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jhjames1/peerchat/pkg/config"
)

// ProposalExpirer marks pending proposals past their expiry as expired.
type ProposalExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// EventCleaner deletes realtime events older than a TTL.
type EventCleaner interface {
	CleanupOrphanedEvents(ctx context.Context, ttl time.Duration) (int, error)
}

// Service periodically enforces retention policies:
//   - Expires pending proposals whose reply window has passed
//   - Removes Event rows past their catch-up TTL
//
// All operations are idempotent and safe to run from multiple processes.
type Service struct {
	config    *config.RetentionConfig
	proposals ProposalExpirer
	events    EventCleaner
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, proposals ProposalExpirer, events EventCleaner) *Service {
	return &Service{
		config:    cfg,
		proposals: proposals,
		events:    events,
		logger:    slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"event_ttl", s.config.EventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireProposals(ctx)
	s.cleanupEvents(ctx)
}

func (s *Service) expireProposals(ctx context.Context) {
	if s.proposals == nil {
		return
	}
	count, err := s.proposals.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Retention: proposal expiry failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: expired stale proposals", "count", count)
	}
}

func (s *Service) cleanupEvents(ctx context.Context) {
	if s.events == nil {
		return
	}
	count, err := s.events.CleanupOrphanedEvents(ctx, s.config.EventTTL)
	if err != nil {
		s.logger.Error("Retention: event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: cleaned up old events", "count", count)
	}
}
