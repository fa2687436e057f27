// Package chat persists buyer/store messages and pushes them to both parties.
// Every operation writes to the durable store first; broker pushes follow and
// are best effort.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
	"marketlive-ws/internal/validation"
)

type Store interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindOrCreateConversation(ctx context.Context, userID, storeID string, now time.Time) (*domain.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	ListConversations(ctx context.Context, userID, storeID string) ([]domain.Conversation, error)
	CreateMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, conversationID string, cursor *domain.MessageCursor, limit int) ([]domain.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	CountUnreadMessages(ctx context.Context, conversationIDs []string, readerID string) (map[string]int64, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// TypingStore holds short-lived typing flags.
type TypingStore interface {
	SetUserTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	GetTypingUsers(ctx context.Context, conversationID string) ([]string, error)
}

// EventSink mirrors persisted messages to other services.
type EventSink interface {
	SendMessage(ctx context.Context, message interface{}) error
}

const (
	defaultPageSize = 30
	defaultPageMax  = 100
)

type Service struct {
	store     Store
	publisher broker.Publisher
	typing    TypingStore
	events    EventSink
	pageSize  int
	pageMax   int
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTypingStore(ts TypingStore) Option {
	return func(s *Service) { s.typing = ts }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithPageLimits sets the default and maximum page size of ListMessages.
func WithPageLimits(size, max int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
		if max > 0 {
			s.pageMax = max
		}
	}
}

func NewService(store Store, publisher broker.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		pageSize:  defaultPageSize,
		pageMax:   defaultPageMax,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.With("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize > s.pageMax {
		s.pageSize = s.pageMax
	}
	return s
}

// SendMessage persists a message and notifies both sides. With StoreID set
// the sender is the buyer and the conversation is found or created; a store
// replies on an existing ConversationID.
func (s *Service) SendMessage(ctx context.Context, sender domain.Identity, req domain.SendMessageRequest) (*domain.Message, error) {
	if !sender.Authenticated() {
		return nil, domain.Unauthenticated("authentication required")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	if (req.ConversationID == "") == (req.StoreID == "") {
		return nil, domain.Validation("exactly one of conversation_id or store_id is required")
	}

	content := strings.TrimSpace(req.Content)
	var imageURL *string
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		u := strings.TrimSpace(*req.ImageURL)
		imageURL = &u
	}
	if content == "" && imageURL == nil {
		return nil, domain.Validation("content or image_url is required")
	}

	now := s.now()

	var conv *domain.Conversation
	if req.ConversationID != "" {
		c, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, sender.UserID, c); err != nil {
			return nil, err
		}
		conv = c
	} else {
		if _, err := s.store.GetStore(ctx, req.StoreID); err != nil {
			return nil, err
		}
		c, err := s.store.FindOrCreateConversation(ctx, sender.UserID, req.StoreID, now)
		if err != nil {
			return nil, err
		}
		conv = c
	}

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       sender.UserID,
		Content:        content,
		ImageURL:       imageURL,
		CreatedAt:      now,
	}
	if err := s.fillSender(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.store.TouchConversation(ctx, conv.ID, now); err != nil {
		return nil, err
	}

	s.publisher.Publish(domain.ChatMessagesRoom(conv.ID), domain.EventNewMessage, msg)

	// Both sides get the bump; clients drop bumps for their own messages.
	bump := domain.UnreadBumpPayload{ConversationID: conv.ID, SenderID: sender.UserID, Message: msg}
	s.publisher.Publish(domain.ChatUserUnreadRoom(conv.UserID), domain.EventUnreadBump, bump)
	s.publisher.Publish(domain.ChatStoreUnreadRoom(conv.StoreID), domain.EventUnreadBump, bump)

	if s.events != nil {
		if err := s.events.SendMessage(ctx, *msg); err != nil {
			s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to mirror message")
		}
	}

	s.log.Debug().Str("conversation_id", conv.ID).Str("sender_id", sender.UserID).Msg("Message sent")
	return msg, nil
}

// fillSender denormalizes the sender's display name and avatar into msg. A
// sender unknown to the store keeps an empty summary.
func (s *Service) fillSender(ctx context.Context, msg *domain.Message) error {
	u, err := s.store.GetUser(ctx, msg.SenderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	msg.SenderName = u.DisplayName
	msg.SenderAvatar = u.AvatarURL
	return nil
}

// ListMessages pages backward in time. cursor is an exclusive upper bound on
// created_at, with an optional id tiebreak; items come back oldest first and
// NextCursor is nil once a short page shows the start of history was reached.
func (s *Service) ListMessages(ctx context.Context, viewer domain.Identity, conversationID string, cursor *domain.MessageCursor, limit int) (*domain.MessagePage, error) {
	if !viewer.Authenticated() {
		return nil, domain.Unauthenticated("authentication required")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, viewer.UserID, conv); err != nil {
		return nil, err
	}

	limit = s.clampLimit(limit)
	rows, err := s.store.ListMessages(ctx, conv.ID, cursor, limit)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Message, len(rows))
	for i, m := range rows {
		items[len(rows)-1-i] = m
	}

	page := &domain.MessagePage{Items: items}
	if len(items) == limit {
		oldest := items[0]
		page.NextCursor = &oldest.CreatedAt
		page.NextCursorID = &oldest.ID
	}
	return page, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > s.pageMax {
		return s.pageMax
	}
	return limit
}

// MarkRead flags every message the reader did not send as read. Read state is
// pull-only; nothing is published.
func (s *Service) MarkRead(ctx context.Context, reader domain.Identity, conversationID string) (int64, error) {
	if !reader.Authenticated() {
		return 0, domain.Unauthenticated("authentication required")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, reader.UserID, conv); err != nil {
		return 0, err
	}
	return s.store.MarkMessagesRead(ctx, conv.ID, reader.UserID, s.now())
}

// ListConversations lists the viewer's conversations as a buyer, or those of
// storeID when set and owned by the viewer.
func (s *Service) ListConversations(ctx context.Context, viewer domain.Identity, storeID string) ([]domain.Conversation, error) {
	if !viewer.Authenticated() {
		return nil, domain.Unauthenticated("authentication required")
	}
	if storeID != "" {
		if err := s.requireOwner(ctx, viewer.UserID, storeID); err != nil {
			return nil, err
		}
	}
	convs, err := s.store.ListConversations(ctx, viewer.UserID, storeID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

// UnreadSummary is the polling fallback for unread badges.
func (s *Service) UnreadSummary(ctx context.Context, viewer domain.Identity, storeID string) (*domain.UnreadSummary, error) {
	convs, err := s.ListConversations(ctx, viewer, storeID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	counts, err := s.store.CountUnreadMessages(ctx, ids, viewer.UserID)
	if err != nil {
		return nil, err
	}

	summary := &domain.UnreadSummary{Conversations: []domain.ConversationUnread{}}
	for _, id := range ids {
		if n := counts[id]; n > 0 {
			summary.Total += n
			summary.Conversations = append(summary.Conversations, domain.ConversationUnread{ConversationID: id, Unread: n})
		}
	}
	return summary, nil
}

// Typing records a typing flag and pushes it to the conversation's typing room.
func (s *Service) Typing(ctx context.Context, viewer domain.Identity, conversationID string, isTyping bool) error {
	if !viewer.Authenticated() {
		return domain.Unauthenticated("authentication required")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, viewer.UserID, conv); err != nil {
		return err
	}

	if s.typing != nil {
		if err := s.typing.SetUserTyping(ctx, conv.ID, viewer.UserID, isTyping); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Failed to store typing status")
		}
	}

	s.publisher.Publish(domain.ChatTypingRoom(conv.ID), domain.EventTypingIndicator, domain.TypingIndicatorPayload{
		ConversationID: conv.ID,
		UserID:         viewer.UserID,
		IsTyping:       isTyping,
		Timestamp:      s.now().Format(time.RFC3339),
	})
	return nil
}

func (s *Service) TypingUsers(ctx context.Context, viewer domain.Identity, conversationID string) ([]string, error) {
	if !viewer.Authenticated() {
		return nil, domain.Unauthenticated("authentication required")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, viewer.UserID, conv); err != nil {
		return nil, err
	}

	users := []string{}
	if s.typing == nil {
		return users, nil
	}
	found, err := s.typing.GetTypingUsers(ctx, conv.ID)
	if err != nil {
		return nil, domain.Upstream("typing status unavailable", err)
	}
	return append(users, found...), nil
}

// CanAccess reports whether userID takes part in conversationID, for room
// joins.
func (s *Service) CanAccess(ctx context.Context, userID, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	return s.authorize(ctx, userID, conv)
}

// authorize allows the conversation's buyer and the owner of its store.
func (s *Service) authorize(ctx context.Context, userID string, conv *domain.Conversation) error {
	if userID == conv.UserID {
		return nil
	}
	store, err := s.store.GetStore(ctx, conv.StoreID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Forbidden("not a participant of this conversation")
		}
		return err
	}
	if store.OwnerID != userID {
		return domain.Forbidden("not a participant of this conversation")
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, userID, storeID string) error {
	store, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store.OwnerID != userID {
		return domain.Forbidden("not the owner of this store")
	}
	return nil
}
