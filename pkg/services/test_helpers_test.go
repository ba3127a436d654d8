package services

import (
	"context"
	"sync"
	"testing"

	"github.com/jhjames1/peerchat/pkg/database"
	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/store"
	testdb "github.com/jhjames1/peerchat/test/database"
	"github.com/stretchr/testify/require"
)

// recorder captures publisher and notifier calls.
type recorder struct {
	mu        sync.Mutex
	changes   []recordedChange
	messages  []*models.ChatMessage
	waiting   []string
	claimed   []string
	proposals []string
}

type recordedChange struct {
	EventType string
	Session   *models.ChatSession
	Old       *models.ChatSession
}

func (r *recorder) PublishSessionChanged(_ context.Context, eventType string, session, old *models.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, recordedChange{EventType: eventType, Session: session, Old: old})
	return nil
}

func (r *recorder) PublishMessageCreated(_ context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) NotifySessionWaiting(_ context.Context, session *models.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = append(r.waiting, session.ID)
}

func (r *recorder) NotifySessionClaimed(_ context.Context, session *models.ChatSession, _ *models.Specialist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = append(r.claimed, session.ID)
}

func (r *recorder) NotifyProposalCreated(_ context.Context, proposal *models.PendingProposal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals = append(r.proposals, proposal.ID)
}

func (r *recorder) changeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type testEnv struct {
	client      *database.Client
	specialists *SpecialistService
	sessions    *SessionService
	messages    *MessageService
	proposals   *ProposalService
	events      *EventService
	rec         *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client := testdb.NewTestClient(t)
	st := store.NewPostgresStore(client.DB())
	rec := &recorder{}
	specialists := NewSpecialistService(client.DB(), 2)

	return &testEnv{
		client:      client,
		specialists: specialists,
		sessions:    NewSessionService(st, specialists, rec, rec),
		messages:    NewMessageService(st, rec),
		proposals:   NewProposalService(client.DB(), rec),
		events:      NewEventService(client.DB()),
		rec:         rec,
	}
}

// specialist registers a specialist and returns its actor.
func (e *testEnv) specialist(t *testing.T, email string) models.Actor {
	t.Helper()
	sp, err := e.specialists.CreateSpecialist(context.Background(), models.CreateSpecialistRequest{
		Email:       email,
		DisplayName: "Specialist " + email,
		Password:    "correct horse battery",
	})
	require.NoError(t, err)
	return models.Actor{ID: sp.ID, Role: models.RoleSpecialist}
}

func user(id string) models.Actor {
	return models.Actor{ID: id, Role: models.RoleUser}
}
