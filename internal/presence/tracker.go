// Package presence keeps each user's durable online flag and rebroadcasts
// changes to the status room of every conversation the user takes part in.
// Online status is not tied to any single connection: clients report it
// explicitly, including a best-effort beacon on page teardown.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
)

type Store interface {
	UpsertOnlineStatus(ctx context.Context, st *domain.OnlineStatus) error
	GetOnlineStatus(ctx context.Context, userID string) (*domain.OnlineStatus, error)
	ListParticipantConversationIDs(ctx context.Context, userID string) ([]string, error)
}

// ConnectionCounter reports how many live transport sessions a user has.
type ConnectionCounter interface {
	CountUserConnections(ctx context.Context, userID string) (int64, error)
}

type Tracker struct {
	store       Store
	publisher   broker.Publisher
	connections ConnectionCounter
	now         func() time.Time
	log         zerolog.Logger
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithConnectionCounter(c ConnectionCounter) Option {
	return func(t *Tracker) { t.connections = c }
}

func NewTracker(store Store, publisher broker.Publisher, opts ...Option) *Tracker {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	t := &Tracker{
		store:     store,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.With("presence"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetOnline records userID's status. Only the user may set their own status.
// Callers are expected to coalesce rapid toggles; the server writes every call.
func (t *Tracker) SetOnline(ctx context.Context, actor domain.Identity, userID string, online bool) (*domain.OnlineStatus, error) {
	if !actor.Authenticated() {
		return nil, domain.Unauthenticated("authentication required")
	}
	if userID == "" {
		userID = actor.UserID
	}
	if actor.UserID != userID {
		return nil, domain.Forbidden("cannot set another user's online status")
	}

	st := &domain.OnlineStatus{UserID: userID, IsOnline: online, LastSeenAt: t.now()}
	if err := t.store.UpsertOnlineStatus(ctx, st); err != nil {
		return nil, err
	}

	convIDs, err := t.store.ListParticipantConversationIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload := domain.StatusChangedPayload{UserID: userID, IsOnline: online, LastSeenAt: st.LastSeenAt}
	for _, id := range convIDs {
		t.publisher.Publish(domain.ChatStatusRoom(id), domain.EventStatusChanged, payload)
	}

	t.log.Debug().Str("user_id", userID).Bool("online", online).Int("conversations", len(convIDs)).Msg("Online status updated")
	return st, nil
}

// Get returns the stored status, or offline with a zero last-seen time for a
// user who never reported one.
func (t *Tracker) Get(ctx context.Context, userID string) (*domain.OnlineStatusResponse, error) {
	resp := &domain.OnlineStatusResponse{UserID: userID}

	st, err := t.store.GetOnlineStatus(ctx, userID)
	switch {
	case err == nil:
		resp.IsOnline = st.IsOnline
		resp.LastSeenAt = st.LastSeenAt
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}

	if t.connections != nil {
		n, err := t.connections.CountUserConnections(ctx, userID)
		if err != nil {
			t.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to count active connections")
		} else {
			resp.ActiveConnections = n
		}
	}
	return resp, nil
}
