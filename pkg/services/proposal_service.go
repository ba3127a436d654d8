package services

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jhjames1/peerchat/pkg/models"
)

const (
	proposalsTable = "appointment_proposals"

	defaultProposalTTL = 24 * time.Hour
)

var proposalColumns = []string{
	"id", "specialist_id", "user_id", "session_id", "proposed_start", "proposed_end",
	"expires_at", "status", "responded_at", "created_at",
}

// ProposalNotifier announces new appointment proposals.
type ProposalNotifier interface {
	NotifyProposalCreated(ctx context.Context, proposal *models.PendingProposal)
}

// ProposalService manages appointment proposals
type ProposalService struct {
	db       *stdsql.DB
	notifier ProposalNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewProposalService creates a new ProposalService. notifier may be nil.
func NewProposalService(db *stdsql.DB, notifier ProposalNotifier) *ProposalService {
	return &ProposalService{
		db:       db,
		notifier: notifier,
		now:      time.Now,
		logger:   slog.Default().With("component", "proposal-service"),
	}
}

// CreateProposal records an appointment offered by the calling specialist.
func (s *ProposalService) CreateProposal(ctx context.Context, actor models.Actor, req models.CreateProposalRequest) (*models.PendingProposal, error) {
	if !actor.IsSpecialist() {
		return nil, NewAuthorizationError("create proposal", "only specialists can propose appointments")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, NewValidationError("user_id", "required")
	}
	if req.ProposedStart.IsZero() || !req.ProposedEnd.After(req.ProposedStart) {
		return nil, NewValidationError("proposed_end", "must be after proposed_start")
	}
	now := s.now()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultProposalTTL)
	}
	if !expiresAt.After(now) {
		return nil, NewValidationError("expires_at", "must be in the future")
	}

	var sessionID any
	if req.SessionID != "" {
		if _, err := uuid.Parse(req.SessionID); err != nil {
			return nil, NewValidationError("session_id", "must be a uuid")
		}
		sessionID = req.SessionID
	}

	query, args := builder().Insert(proposalsTable).
		Columns("specialist_id", "user_id", "session_id", "proposed_start", "proposed_end", "expires_at").
		Values(actor.ID, req.UserID, sessionID, req.ProposedStart, req.ProposedEnd, expiresAt).
		Returning(proposalColumns...).
		Query()

	proposal, err := scanProposal(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}

	s.logger.Info("Proposal created", "proposal_id", proposal.ID, "specialist_id", actor.ID)
	if s.notifier != nil {
		s.notifier.NotifyProposalCreated(ctx, proposal)
	}
	return proposal, nil
}

// ListPending returns the specialist's pending proposals that have not
// expired. Expired rows stay in the table until the cleanup loop marks them.
func (s *ProposalService) ListPending(ctx context.Context, actor models.Actor, specialistID string) ([]*models.PendingProposal, error) {
	if !actor.IsSpecialist() || actor.ID != specialistID {
		return nil, NewAuthorizationError("list proposals", "specialists may only list their own proposals")
	}

	query, args := builder().Select(proposalColumns...).
		From(sql.Table(proposalsTable)).
		Where(sql.And(
			sql.EQ("specialist_id", specialistID),
			sql.EQ("status", string(models.ProposalPending)),
			sql.GT("expires_at", s.now()),
		)).
		OrderBy("proposed_start").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*models.PendingProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// Respond records the proposed user's answer. Only pending, unexpired
// proposals can be answered.
func (s *ProposalService) Respond(ctx context.Context, actor models.Actor, id string, accept bool) (*models.PendingProposal, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleUser || actor.ID != current.UserID {
		return nil, NewAuthorizationError("respond to proposal", "proposal was made to another user")
	}

	now := s.now()
	if current.Status != models.ProposalPending {
		return nil, &ConflictError{Op: "respond", Current: string(current.Status), Err: ErrInvalidTransition}
	}
	if current.IsExpired(now) {
		return nil, &ConflictError{Op: "respond", Current: string(models.ProposalExpired), Err: ErrInvalidTransition}
	}

	next := models.ProposalRejected
	if accept {
		next = models.ProposalAccepted
	}

	query, args := builder().Update(proposalsTable).
		Set("status", string(next)).
		Set("responded_at", now).
		Where(sql.And(
			sql.EQ("id", id),
			sql.EQ("status", string(models.ProposalPending)),
			sql.GT("expires_at", now),
		)).
		Returning(proposalColumns...).
		Query()

	updated, err := scanProposal(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Expired or answered between the read and the update.
			return nil, &ConflictError{Op: "respond", Current: "changed", Err: ErrConflict}
		}
		return nil, fmt.Errorf("failed to respond to proposal: %w", err)
	}

	s.logger.Info("Proposal answered", "proposal_id", id, "status", next)
	return updated, nil
}

// ExpireStale marks pending proposals past their expiry as expired.
func (s *ProposalService) ExpireStale(ctx context.Context) (int, error) {
	query, args := builder().Update(proposalsTable).
		Set("status", string(models.ProposalExpired)).
		Where(sql.And(
			sql.EQ("status", string(models.ProposalPending)),
			sql.LTE("expires_at", s.now()),
		)).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expire proposals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read expired count: %w", err)
	}
	return int(n), nil
}

func (s *ProposalService) get(ctx context.Context, id string) (*models.PendingProposal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query, args := builder().Select(proposalColumns...).
		From(sql.Table(proposalsTable)).
		Where(sql.EQ("id", id)).
		Query()

	proposal, err := scanProposal(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return proposal, nil
}

func scanProposal(row rowScanner) (*models.PendingProposal, error) {
	var (
		p           models.PendingProposal
		status      string
		sessionID   stdsql.NullString
		respondedAt stdsql.NullTime
	)
	err := row.Scan(&p.ID, &p.SpecialistID, &p.UserID, &sessionID, &p.ProposedStart, &p.ProposedEnd,
		&p.ExpiresAt, &status, &respondedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Status = models.ProposalStatus(status)
	if sessionID.Valid {
		p.SessionID = &sessionID.String
	}
	if respondedAt.Valid {
		p.RespondedAt = &respondedAt.Time
	}
	return &p, nil
}
