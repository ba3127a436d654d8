package models

import "time"

// SpecialistStatus is a specialist's availability.
type SpecialistStatus string

const (
	SpecialistAvailable SpecialistStatus = "available"
	SpecialistBusy      SpecialistStatus = "busy"
	SpecialistAway      SpecialistStatus = "away"
	SpecialistOffline   SpecialistStatus = "offline"
)

// Valid reports whether s is a known specialist status.
func (s SpecialistStatus) Valid() bool {
	switch s {
	case SpecialistAvailable, SpecialistBusy, SpecialistAway, SpecialistOffline:
		return true
	}
	return false
}

// StatusSource records who last set a specialist's status.
type StatusSource string

const (
	StatusSourceManual   StatusSource = "manual"
	StatusSourceCalendar StatusSource = "calendar"
)

// Specialist is a peer specialist account.
type Specialist struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	DisplayName     string           `json:"display_name"`
	PasswordHash    string           `json:"-"`
	Status          SpecialistStatus `json:"status"`
	StatusSource    StatusSource     `json:"status_source"`
	ManualUntil     *time.Time       `json:"manual_until,omitempty"`
	MaxSlots        int              `json:"max_slots"`
	IsActive        bool             `json:"is_active"`
	StatusUpdatedAt time.Time        `json:"status_updated_at"`
}

// CreateSpecialistRequest contains fields for registering a specialist.
type CreateSpecialistRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	MaxSlots    int    `json:"max_slots,omitempty"`
}

// UpdateStatusRequest is the body of a manual status update.
// Until pins the status against calendar recomputation until that time.
type UpdateStatusRequest struct {
	Status SpecialistStatus `json:"status"`
	Until  *time.Time       `json:"until,omitempty"`
}

// Schedule is one stored calendar window of availability.
type Schedule struct {
	ID           string    `json:"id"`
	SpecialistID string    `json:"specialist_id"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// AddScheduleRequest contains fields for adding a calendar window.
type AddScheduleRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}
