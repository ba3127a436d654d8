// Package client is the peerchat client SDK: a typed REST client, the
// realtime feed subscription, the connection monitor, the chat session
// controller with optimistic messages, slot assignment and the specialists'
// waiting list.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jhjames1/peerchat/pkg/appstate"
	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/version"
)

const defaultHTTPTimeout = 15 * time.Second

// APIClient calls the peerchat HTTP API. It is safe for concurrent use.
type APIClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures an APIClient.
type Option func(*APIClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *APIClient) { a.httpClient = c }
}

// WithToken sets a bearer token obtained elsewhere.
func WithToken(token string) Option {
	return func(a *APIClient) { a.token = token }
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string, opts ...Option) *APIClient {
	a := &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Token returns the current bearer token.
func (a *APIClient) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// SetToken replaces the bearer token.
func (a *APIClient) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// FeedURL returns the WebSocket URL of the realtime feed for the current
// token.
func (a *APIClient) FeedURL() string {
	u := a.baseURL + "/api/v1/ws?token=" + url.QueryEscape(a.Token())
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

type errorBody struct {
	Error   string              `json:"error"`
	Kind    string              `json:"kind"`
	Field   string              `json:"field"`
	Current string              `json:"current"`
	Session *models.ChatSession `json:"session"`
}

type functionBody struct {
	Success    bool               `json:"success"`
	Token      string             `json:"token"`
	UserID     string             `json:"user_id"`
	Specialist *models.Specialist `json:"specialist"`
	Error      string             `json:"error"`
}

func (a *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return validationError("body", err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.Full())
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &Error{Kind: KindTransientNetwork, Message: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransientNetwork, Status: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: msg,
			Field:   eb.Field,
			Current: eb.Current,
			Session: eb.Session,
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// callFunction posts to an auth function, which reports failure in the body.
func (a *APIClient) callFunction(ctx context.Context, name string, body any) (*functionBody, error) {
	var fb functionBody
	err := a.do(ctx, http.MethodPost, "/functions/v1/"+name, body, &fb)
	if err != nil {
		return nil, err
	}
	if !fb.Success {
		return nil, &Error{Kind: KindAuthorization, Message: fb.Error}
	}
	return &fb, nil
}

// SpecialistLogin authenticates a specialist and keeps the issued token.
func (a *APIClient) SpecialistLogin(ctx context.Context, email, password string) (*models.Specialist, error) {
	if email == "" || password == "" {
		return nil, validationError("email", "email and password are required")
	}
	fb, err := a.callFunction(ctx, "specialist-login", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	a.SetToken(fb.Token)
	return fb.Specialist, nil
}

// GuestToken obtains a user token, keeping it, and returns the user id.
// An empty userID asks for a fresh anonymous id, or renews the user token
// already held. A non-empty userID must match the held token.
func (a *APIClient) GuestToken(ctx context.Context, userID string) (string, error) {
	var body any
	if userID != "" {
		body = map[string]string{"user_id": userID}
	}
	fb, err := a.callFunction(ctx, "guest-token", body)
	if err != nil {
		return "", err
	}
	a.SetToken(fb.Token)
	return fb.UserID, nil
}

// StartSession returns the caller's open session, creating one if needed.
func (a *APIClient) StartSession(ctx context.Context) (*models.ChatSession, bool, error) {
	var resp struct {
		Session *models.ChatSession `json:"session"`
		Created bool                `json:"created"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/v1/sessions/start", nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Session, resp.Created, nil
}

// GetSession fetches one session.
func (a *APIClient) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := a.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions lists sessions matching filter.
func (a *APIClient) ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.SpecialistID != "" {
		q.Set("specialist_id", filter.SpecialistID)
	}
	if filter.Ascending {
		q.Set("order", "asc")
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp models.SessionListResponse
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// ClaimSession claims a waiting session into slot.
func (a *APIClient) ClaimSession(ctx context.Context, id string, slot int) (*models.ChatSession, error) {
	var session models.ChatSession
	err := a.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/claim", models.ClaimSessionRequest{Slot: slot}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession ends a session.
func (a *APIClient) EndSession(ctx context.Context, id, reason string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := a.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/end", models.EndSessionRequest{Reason: reason}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TouchSession advances the session's last activity.
func (a *APIClient) TouchSession(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/touch", nil, nil)
}

// ListMessages returns the session's messages in order.
func (a *APIClient) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	var resp models.MessageListResponse
	if err := a.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage persists a message. Resending the same ClientID returns the
// already stored message.
func (a *APIClient) SendMessage(ctx context.Context, sessionID string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := a.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks the other party's messages as read.
func (a *APIClient) MarkRead(ctx context.Context, sessionID string) (int, error) {
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/read", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// GetSpecialist fetches a specialist profile.
func (a *APIClient) GetSpecialist(ctx context.Context, id string) (*models.Specialist, error) {
	var sp models.Specialist
	if err := a.do(ctx, http.MethodGet, "/api/v1/specialists/"+url.PathEscape(id), nil, &sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

// UpdateStatus sets the caller's manual status.
func (a *APIClient) UpdateStatus(ctx context.Context, specialistID string, req models.UpdateStatusRequest) (*models.Specialist, error) {
	var sp models.Specialist
	if err := a.do(ctx, http.MethodPut, "/api/v1/specialists/"+url.PathEscape(specialistID)+"/status", req, &sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

// SlotAvailability returns one entry per slot, true when free.
func (a *APIClient) SlotAvailability(ctx context.Context, specialistID string) ([]bool, error) {
	var resp models.SlotsResponse
	if err := a.do(ctx, http.MethodGet, "/api/v1/specialists/"+url.PathEscape(specialistID)+"/slots", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// CreateProposal offers an appointment to a user.
func (a *APIClient) CreateProposal(ctx context.Context, req models.CreateProposalRequest) (*models.PendingProposal, error) {
	var p models.PendingProposal
	if err := a.do(ctx, http.MethodPost, "/api/v1/proposals", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProposals returns the specialist's unexpired pending proposals.
func (a *APIClient) ListProposals(ctx context.Context, specialistID string) ([]*models.PendingProposal, error) {
	var resp struct {
		Proposals []*models.PendingProposal `json:"proposals"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/specialists/"+url.PathEscape(specialistID)+"/proposals", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Proposals, nil
}

// RespondProposal accepts or rejects a proposal.
func (a *APIClient) RespondProposal(ctx context.Context, id string, accept bool) (*models.PendingProposal, error) {
	var p models.PendingProposal
	if err := a.do(ctx, http.MethodPost, "/api/v1/proposals/"+url.PathEscape(id)+"/respond", models.RespondProposalRequest{Accept: accept}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadState returns the caller's app state.
func (a *APIClient) LoadState(ctx context.Context) (*appstate.State, error) {
	var st appstate.State
	if err := a.do(ctx, http.MethodGet, "/api/v1/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState stores the caller's app state. A stale Version fails with a
// conflict.
func (a *APIClient) SaveState(ctx context.Context, st *appstate.State) (*appstate.State, error) {
	var saved appstate.State
	if err := a.do(ctx, http.MethodPut, "/api/v1/state", st, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}
