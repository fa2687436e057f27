package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketlive-ws/internal/domain"
)

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "conversation")
	}
	return &c, nil
}

// FindOrCreateConversation returns the conversation for (userID, storeID),
// creating it when absent. A concurrent creator losing the unique-index race
// re-reads the winner's row.
func (s *Store) FindOrCreateConversation(ctx context.Context, userID, storeID string, now time.Time) (*domain.Conversation, error) {
	db := s.db.WithContext(ctx)

	var c domain.Conversation
	err := db.Where(domain.Conversation{UserID: userID, StoreID: storeID}).
		Attrs(domain.Conversation{ID: uuid.New().String(), LastMessageAt: now, CreatedAt: now}).
		FirstOrCreate(&c).Error
	if err == nil {
		return &c, nil
	}

	if retryErr := db.First(&c, "user_id = ? AND store_id = ?", userID, storeID).Error; retryErr == nil {
		return &c, nil
	}
	return nil, fmt.Errorf("failed to find or create conversation: %w", err)
}

func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_message_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("conversation not found")
	}
	return nil
}

// ListConversations returns the conversations where userID is the buyer side,
// or, when storeID is set, the conversations of that store. Most recent first.
func (s *Store) ListConversations(ctx context.Context, userID, storeID string) ([]domain.Conversation, error) {
	q := s.db.WithContext(ctx).Model(&domain.Conversation{})
	if storeID != "" {
		q = q.Where("store_id = ?", storeID)
	} else {
		q = q.Where("user_id = ?", userID)
	}

	var convs []domain.Conversation
	if err := q.Order("last_message_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// ListParticipantConversationIDs returns the ids of every conversation userID
// takes part in, either as the buyer or as the owner of the store.
func (s *Store) ListParticipantConversationIDs(ctx context.Context, userID string) ([]string, error) {
	db := s.db.WithContext(ctx)
	owned := db.Model(&domain.Store{}).Select("id").Where("owner_id = ?", userID)

	var ids []string
	err := db.Model(&domain.Conversation{}).
		Where("user_id = ? OR store_id IN (?)", userID, owned).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit messages of a conversation ordered before
// the cursor, newest first. Messages sharing the cursor's created_at are only
// reached when the cursor carries an id.
func (s *Store) ListMessages(ctx context.Context, conversationID string, cursor *domain.MessageCursor, limit int) ([]domain.Message, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	switch {
	case cursor == nil:
	case cursor.ID == "":
		q = q.Where("created_at < ?", cursor.Before)
	default:
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.Before, cursor.Before, cursor.ID)
	}

	var msgs []domain.Message
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// MarkMessagesRead flags every unread message not sent by readerID.
func (s *Store) MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountUnreadMessages counts, per conversation, unread messages not sent by
// readerID. Conversations with nothing unread are absent from the result.
func (s *Store) CountUnreadMessages(ctx context.Context, conversationIDs []string, readerID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ConversationID string
		Unread         int64
	}
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("conversation_id IN ? AND sender_id <> ? AND is_read = ?", conversationIDs, readerID, false).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	for _, r := range rows {
		counts[r.ConversationID] = r.Unread
	}
	return counts, nil
}
