package redis

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("chat:%s:typing:%s", conversationID, userID)
}

func connectionsKey(userID string) string {
	return fmt.Sprintf("connections:user:%s", userID)
}

// SetUserTyping stores a typing flag that expires on its own if the client
// never clears it.
func (r *RedisClient) SetUserTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	key := typingKey(conversationID, userID)
	if isTyping {
		return r.client.Set(ctx, key, "true", r.typingTTL).Err()
	}
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClient) GetTypingUsers(ctx context.Context, conversationID string) ([]string, error) {
	prefix := typingKey(conversationID, "")

	var typingUsers []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		// Key pattern: chat:{conversationID}:typing:{userID}
		if userID := strings.TrimPrefix(iter.Val(), prefix); userID != "" {
			typingUsers = append(typingUsers, userID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return typingUsers, nil
}

// TrackConnection records one live websocket session of userID.
func (r *RedisClient) TrackConnection(ctx context.Context, userID, connectionID string) error {
	return r.client.HSet(ctx, connectionsKey(userID), connectionID, time.Now().UTC().Format(time.RFC3339)).Err()
}

func (r *RedisClient) UntrackConnection(ctx context.Context, userID, connectionID string) error {
	return r.client.HDel(ctx, connectionsKey(userID), connectionID).Err()
}

func (r *RedisClient) CountUserConnections(ctx context.Context, userID string) (int64, error) {
	return r.client.HLen(ctx, connectionsKey(userID)).Result()
}
