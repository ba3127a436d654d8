package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhjames1/peerchat/pkg/models"
)

// ClaimAction is one slot button offered for a waiting session.
type ClaimAction struct {
	Slot    int    `json:"slot"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// Actions returns one enabled claim action per free slot. When no slot is
// free, or the session is not waiting, it returns a single disabled action
// with Slot -1.
func Actions(session *models.ChatSession, availability []bool) []ClaimAction {
	if session == nil || session.Status != models.SessionStatusWaiting {
		return []ClaimAction{{Slot: -1, Label: "Not claimable"}}
	}
	var actions []ClaimAction
	for i, free := range availability {
		if free {
			actions = append(actions, ClaimAction{Slot: i, Label: fmt.Sprintf("Claim into slot %d", i+1), Enabled: true})
		}
	}
	if len(actions) == 0 {
		return []ClaimAction{{Slot: -1, Label: "All slots full"}}
	}
	return actions
}

// SlotSource reports a specialist's slot availability.
type SlotSource interface {
	SlotAvailability(ctx context.Context, specialistID string) ([]bool, error)
}

// SlotBoard keeps a specialist's slot availability and claims through a
// Controller. It does not guard the one-specialist-per-session rule; the
// store's conditional claim does.
type SlotBoard struct {
	controller   *Controller
	source       SlotSource
	specialistID string

	mu    sync.Mutex
	slots []bool
}

// NewSlotBoard creates a board for specialistID.
func NewSlotBoard(controller *Controller, source SlotSource, specialistID string) *SlotBoard {
	return &SlotBoard{controller: controller, source: source, specialistID: specialistID}
}

// Refresh reloads slot availability.
func (b *SlotBoard) Refresh(ctx context.Context) ([]bool, error) {
	slots, err := b.source.SlotAvailability(ctx, b.specialistID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.slots = slots
	b.mu.Unlock()
	return append([]bool(nil), slots...), nil
}

// Availability returns the last loaded availability.
func (b *SlotBoard) Availability() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.slots...)
}

// Actions returns the claim actions for session.
func (b *SlotBoard) Actions(session *models.ChatSession) []ClaimAction {
	return Actions(session, b.Availability())
}

// Claim claims session into slot if an enabled action offers it, then
// reloads availability. A lost race returns the controller's conflict.
func (b *SlotBoard) Claim(ctx context.Context, session *models.ChatSession, slot int) (*models.ChatSession, error) {
	offered := false
	for _, a := range b.Actions(session) {
		if a.Enabled && a.Slot == slot {
			offered = true
			break
		}
	}
	if !offered {
		return nil, validationError("slot", fmt.Sprintf("slot %d is not available", slot))
	}

	claimed, err := b.controller.ClaimSession(ctx, session.ID, slot)
	if _, rerr := b.Refresh(ctx); rerr != nil {
		b.controller.logger.Warn("Slot refresh failed", "error", rerr)
	}
	return claimed, err
}
