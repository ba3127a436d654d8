package models

import "time"

// ProposalStatus is the lifecycle state of an appointment proposal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalExpired   ProposalStatus = "expired"
	ProposalCancelled ProposalStatus = "cancelled"
)

// PendingProposal is an appointment time offered by a specialist to a user.
type PendingProposal struct {
	ID            string         `json:"id"`
	SpecialistID  string         `json:"specialist_id"`
	UserID        string         `json:"user_id"`
	SessionID     *string        `json:"session_id,omitempty"`
	ProposedStart time.Time      `json:"proposed_start"`
	ProposedEnd   time.Time      `json:"proposed_end"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Status        ProposalStatus `json:"status"`
	RespondedAt   *time.Time     `json:"responded_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// IsExpired reports whether the proposal's expiry has passed at now.
func (p *PendingProposal) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// CreateProposalRequest contains fields for proposing an appointment.
type CreateProposalRequest struct {
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id,omitempty"`
	ProposedStart time.Time `json:"proposed_start"`
	ProposedEnd   time.Time `json:"proposed_end"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RespondProposalRequest is a user's answer to a proposal.
type RespondProposalRequest struct {
	Accept bool `json:"accept"`
}
