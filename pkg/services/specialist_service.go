package services

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhjames1/peerchat/pkg/auth"
	"github.com/jhjames1/peerchat/pkg/models"
)

const (
	specialistsTable = "specialists"
	schedulesTable   = "specialist_schedules"

	defaultMaxSlots = 3
	minPasswordLen  = 8
)

var specialistColumns = []string{
	"id", "email", "display_name", "password_hash", "status", "status_source",
	"manual_until", "max_slots", "is_active", "status_updated_at",
}

// SpecialistService manages specialist accounts, status and schedules
type SpecialistService struct {
	db              *stdsql.DB
	defaultMaxSlots int
	logger          *slog.Logger
}

// NewSpecialistService creates a new SpecialistService.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewSpecialistService(db *stdsql.DB, defaultSlots int) *SpecialistService {
	if defaultSlots <= 0 {
		defaultSlots = defaultMaxSlots
	}
	return &SpecialistService{
		db:              db,
		defaultMaxSlots: defaultSlots,
		logger:          slog.Default().With("component", "specialist-service"),
	}
}

func builder() *sql.DialectBuilder {
	return sql.Dialect(dialect.Postgres)
}

// CreateSpecialist registers a specialist with a bcrypt-hashed password.
func (s *SpecialistService) CreateSpecialist(ctx context.Context, req models.CreateSpecialistRequest) (*models.Specialist, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewValidationError("email", "must be a valid address")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, NewValidationError("display_name", "required")
	}
	if len(req.Password) < minPasswordLen {
		return nil, NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	maxSlots := req.MaxSlots
	if maxSlots == 0 {
		maxSlots = s.defaultMaxSlots
	}
	if maxSlots < 0 {
		return nil, NewValidationError("max_slots", "must be positive")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query, args := builder().Insert(specialistsTable).
		Columns("email", "display_name", "password_hash", "max_slots").
		Values(email, strings.TrimSpace(req.DisplayName), hash, maxSlots).
		Returning(specialistColumns...).
		Query()

	specialist, err := scanSpecialist(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create specialist: %w", err)
	}
	return specialist, nil
}

// Authenticate verifies a specialist's email and password.
// Every failure is reported as the same AuthorizationError.
func (s *SpecialistService) Authenticate(ctx context.Context, email, password string) (*models.Specialist, error) {
	invalid := NewAuthorizationError("log in", "invalid email or password")
	if email == "" || password == "" {
		return nil, invalid
	}

	query, args := builder().Select(specialistColumns...).
		From(sql.Table(specialistsTable)).
		Where(sql.EQ("email", strings.ToLower(strings.TrimSpace(email)))).
		Query()

	specialist, err := scanSpecialist(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("failed to load specialist: %w", err)
	}
	if !specialist.IsActive || !auth.CheckPassword(specialist.PasswordHash, password) {
		return nil, invalid
	}
	return specialist, nil
}

// GetSpecialist returns a specialist by id.
func (s *SpecialistService) GetSpecialist(ctx context.Context, id string) (*models.Specialist, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query, args := builder().Select(specialistColumns...).
		From(sql.Table(specialistsTable)).
		Where(sql.EQ("id", id)).
		Query()

	specialist, err := scanSpecialist(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get specialist: %w", err)
	}
	return specialist, nil
}

// UpdateStatus sets a manual status. Only the specialist may change their
// own status; Until pins it against calendar recomputation.
func (s *SpecialistService) UpdateStatus(ctx context.Context, actor models.Actor, id string, req models.UpdateStatusRequest) (*models.Specialist, error) {
	if !actor.IsSpecialist() || actor.ID != id {
		return nil, NewAuthorizationError("update status", "specialists may only update their own status")
	}
	if !req.Status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", req.Status))
	}
	now := time.Now()
	if req.Until != nil && !req.Until.After(now) {
		return nil, NewValidationError("until", "must be in the future")
	}

	var until any
	if req.Until != nil {
		until = *req.Until
	}

	query, args := builder().Update(specialistsTable).
		Set("status", string(req.Status)).
		Set("status_source", string(models.StatusSourceManual)).
		Set("manual_until", until).
		Set("status_updated_at", now).
		Where(sql.EQ("id", id)).
		Returning(specialistColumns...).
		Query()

	specialist, err := scanSpecialist(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	s.logger.Info("Specialist status updated", "specialist_id", id, "status", req.Status)
	return specialist, nil
}

// RecomputeStatuses runs the calendar-driven status recomputation and
// returns the number of specialists whose status changed.
func (s *SpecialistService) RecomputeStatuses(ctx context.Context) (int, error) {
	var changed int
	if err := s.db.QueryRowContext(ctx, `SELECT recompute_specialist_statuses()`).Scan(&changed); err != nil {
		return 0, fmt.Errorf("failed to recompute specialist statuses: %w", err)
	}
	return changed, nil
}

// AddSchedule stores a calendar window for the calling specialist.
func (s *SpecialistService) AddSchedule(ctx context.Context, actor models.Actor, specialistID string, req models.AddScheduleRequest) (*models.Schedule, error) {
	if !actor.IsSpecialist() || actor.ID != specialistID {
		return nil, NewAuthorizationError("add schedule", "specialists may only edit their own schedule")
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() {
		return nil, NewValidationError("starts_at", "window start and end are required")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, NewValidationError("ends_at", "must be after starts_at")
	}

	query, args := builder().Insert(schedulesTable).
		Columns("specialist_id", "starts_at", "ends_at").
		Values(specialistID, req.StartsAt, req.EndsAt).
		Returning("id", "specialist_id", "starts_at", "ends_at").
		Query()

	var sched models.Schedule
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&sched.ID, &sched.SpecialistID, &sched.StartsAt, &sched.EndsAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add schedule: %w", err)
	}
	return &sched, nil
}

// ListSchedules returns a specialist's windows ending after now, earliest first.
func (s *SpecialistService) ListSchedules(ctx context.Context, specialistID string) ([]*models.Schedule, error) {
	query, args := builder().Select("id", "specialist_id", "starts_at", "ends_at").
		From(sql.Table(schedulesTable)).
		Where(sql.And(
			sql.EQ("specialist_id", specialistID),
			sql.GT("ends_at", time.Now()),
		)).
		OrderBy("starts_at").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		var sched models.Schedule
		if err := rows.Scan(&sched.ID, &sched.SpecialistID, &sched.StartsAt, &sched.EndsAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, &sched)
	}
	return schedules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpecialist(row rowScanner) (*models.Specialist, error) {
	var (
		sp          models.Specialist
		status      string
		source      string
		manualUntil stdsql.NullTime
	)
	err := row.Scan(&sp.ID, &sp.Email, &sp.DisplayName, &sp.PasswordHash, &status, &source,
		&manualUntil, &sp.MaxSlots, &sp.IsActive, &sp.StatusUpdatedAt)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sp.Status = models.SpecialistStatus(status)
	sp.StatusSource = models.StatusSource(source)
	if manualUntil.Valid {
		sp.ManualUntil = &manualUntil.Time
	}
	return &sp, nil
}
