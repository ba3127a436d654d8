// Package notify sends Slack notifications about chat activity.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/services"
)

const postTimeout = 5 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// WarningSink records notification delivery problems.
type WarningSink interface {
	AddWarning(category, message, details string) string
	Clear(category string) bool
}

// Service posts session and proposal notifications to Slack.
// Nil-safe: all methods are no-ops when service is nil.
// Fail-open: delivery errors are logged, never returned.
type Service struct {
	client       *Client
	dashboardURL string
	warnings     WarningSink
	logger       *slog.Logger

	// threads maps session id to the ts of its waiting announcement so
	// follow-ups land in the same thread.
	threads   map[string]string
	threadsMu sync.Mutex
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return NewServiceWithClient(NewClient(cfg.Token, cfg.Channel), cfg.DashboardURL)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		threads:      make(map[string]string),
		logger:       slog.Default().With("component", "slack-notify"),
	}
}

// SetWarnings registers a sink for delivery failures. Must be called before use.
func (s *Service) SetWarnings(w WarningSink) {
	if s == nil {
		return
	}
	s.warnings = w
}

// NotifySessionWaiting announces a new waiting session.
func (s *Service) NotifySessionWaiting(ctx context.Context, session *models.ChatSession) {
	if s == nil {
		return
	}
	blocks, fallback := BuildWaitingMessage(session, s.dashboardURL)
	ts, ok := s.post(ctx, blocks, fallback, "", "session_id", session.ID)
	if !ok {
		return
	}

	s.threadsMu.Lock()
	s.threads[session.ID] = ts
	s.threadsMu.Unlock()
}

// NotifySessionClaimed replies in the session's waiting thread, or posts a
// new message if the announcement was not sent by this process.
func (s *Service) NotifySessionClaimed(ctx context.Context, session *models.ChatSession, specialist *models.Specialist) {
	if s == nil {
		return
	}
	s.threadsMu.Lock()
	threadTS := s.threads[session.ID]
	delete(s.threads, session.ID)
	s.threadsMu.Unlock()

	blocks, fallback := BuildClaimedMessage(session, specialist)
	s.post(ctx, blocks, fallback, threadTS, "session_id", session.ID)
}

// NotifyProposalCreated announces an appointment proposal.
func (s *Service) NotifyProposalCreated(ctx context.Context, proposal *models.PendingProposal) {
	if s == nil {
		return
	}
	blocks, fallback := BuildProposalMessage(proposal)
	s.post(ctx, blocks, fallback, "", "proposal_id", proposal.ID)
}

func (s *Service) post(ctx context.Context, blocks []goslack.Block, fallback, threadTS, idKey, id string) (string, bool) {
	ts, err := s.client.PostMessage(ctx, blocks, fallback, threadTS, postTimeout)
	if err != nil {
		s.logger.Error("Failed to send Slack notification", idKey, id, "error", err)
		if s.warnings != nil {
			s.warnings.AddWarning(services.WarningCategoryNotifications, "Slack notifications are failing", err.Error())
		}
		return "", false
	}
	if s.warnings != nil {
		s.warnings.Clear(services.WarningCategoryNotifications)
	}
	return ts, true
}
