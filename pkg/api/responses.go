package api

import (
	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/services"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Kind    string              `json:"kind"`
	Field   string              `json:"field,omitempty"`
	Current string              `json:"current,omitempty"`
	Session *models.ChatSession `json:"session,omitempty"`
}

// HealthCheck is one component's health.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Checks      map[string]HealthCheck    `json:"checks"`
	Connections int                       `json:"ws_connections"`
	Warnings    []*services.SystemWarning `json:"warnings,omitempty"`
}

// FunctionResponse is the envelope returned by the auth functions.
type FunctionResponse struct {
	Success    bool               `json:"success"`
	Token      string             `json:"token,omitempty"`
	ExpiresAt  int64              `json:"expires_at,omitempty"`
	UserID     string             `json:"user_id,omitempty"`
	Specialist *models.Specialist `json:"specialist,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// StartSessionResponse is returned by POST /api/v1/sessions/start.
type StartSessionResponse struct {
	Session *models.ChatSession `json:"session"`
	Created bool                `json:"created"`
}

// MarkReadResponse is returned by POST /api/v1/sessions/:id/read.
type MarkReadResponse struct {
	Updated int `json:"updated"`
}

// ProposalListResponse wraps pending proposals.
type ProposalListResponse struct {
	Proposals []*models.PendingProposal `json:"proposals"`
}

// ScheduleListResponse wraps calendar windows.
type ScheduleListResponse struct {
	Schedules []*models.Schedule `json:"schedules"`
}
