package services

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Warning categories. At most one warning per category is active.
const (
	WarningCategoryStatusScheduler = "status_scheduler" // status recomputation is failing
	WarningCategoryRealtime        = "realtime"         // NOTIFY listener lost its connection
	WarningCategoryNotifications   = "notifications"    // Slack delivery failing or disabled
)

// SystemWarning represents a non-fatal system issue.
type SystemWarning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemWarningsService manages in-memory system warnings surfaced on the
// health endpoint. Warnings are transient and reset on restart.
type SystemWarningsService struct {
	mu       sync.RWMutex
	warnings map[string]*SystemWarning // category → warning
}

// NewSystemWarningsService creates a new SystemWarningsService.
func NewSystemWarningsService() *SystemWarningsService {
	return &SystemWarningsService{
		warnings: make(map[string]*SystemWarning),
	}
}

// AddWarning records a warning for category, replacing any previous one,
// and returns its ID. A nil receiver is a no-op.
func (s *SystemWarningsService) AddWarning(category, message, details string) string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.warnings[category] = &SystemWarning{
		ID:        id,
		Category:  category,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now(),
	}
	return id
}

// GetWarnings returns all active warnings as value copies, oldest first.
func (s *SystemWarningsService) GetWarnings() []*SystemWarning {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SystemWarning, 0, len(s.warnings))
	for _, w := range s.warnings {
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Clear removes the warning for category.
// Returns true if a warning was removed.
func (s *SystemWarningsService) Clear(category string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.warnings[category]; !ok {
		return false
	}
	delete(s.warnings, category)
	return true
}

// ListenerDown records that the realtime NOTIFY listener lost its connection.
func (s *SystemWarningsService) ListenerDown(err error) {
	s.AddWarning(WarningCategoryRealtime, "Realtime feed listener disconnected; reconnecting", err.Error())
}

// ListenerRestored clears the realtime warning after a reconnect.
func (s *SystemWarningsService) ListenerRestored() {
	s.Clear(WarningCategoryRealtime)
}
