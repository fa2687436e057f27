package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// Broker event names.
const (
	EventNewMessage          = "new_message"
	EventUnreadBump          = "unread_bump"
	EventStatusChanged       = "status_changed"
	EventTypingIndicator     = "typing_indicator"
	EventNewNotification     = "new_notification"
	EventLiveProductsUpdated = "live_products_updated"
)

// WebSocketMessage is a client to server frame.
type WebSocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketResponse is a server to client frame. Room is set for broker
// events and empty for control frames.
type WebSocketResponse struct {
	Type      string      `json:"type"`
	Room      string      `json:"room,omitempty"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

type AuthenticatePayload struct {
	Token   string `json:"token"`
	UserID  string `json:"user_id,omitempty"`
	StoreID string `json:"store_id,omitempty"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

type SendMessageRequest struct {
	ConversationID string  `json:"conversation_id" validate:"omitempty,max=36"`
	StoreID        string  `json:"store_id" validate:"omitempty,max=36"`
	Content        string  `json:"content" validate:"max=4000"`
	ImageURL       *string `json:"image_url" validate:"omitempty,max=500"`
}

type UnreadBumpPayload struct {
	ConversationID string   `json:"conversation_id"`
	SenderID       string   `json:"sender_id"`
	Message        *Message `json:"message"`
}

type StatusChangedPayload struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type TypingIndicatorPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
	Timestamp      string `json:"timestamp"`
}

// MessageCursor is an exclusive upper bound on (created_at, id). An empty ID
// bounds on created_at alone.
type MessageCursor struct {
	Before time.Time
	ID     string
}

type MessagePage struct {
	Items        []Message  `json:"items"`
	NextCursor   *time.Time `json:"next_cursor"`
	NextCursorID *string    `json:"next_cursor_id"`
}

type NotificationPage struct {
	Items      []Notification `json:"items"`
	NextCursor *string        `json:"next_cursor"`
}

type ConversationUnread struct {
	ConversationID string `json:"conversation_id"`
	Unread         int64  `json:"unread"`
}

type UnreadSummary struct {
	Total         int64                `json:"total"`
	Conversations []ConversationUnread `json:"conversations"`
}

// ProductCard is the display shape of a product in a live selection.
type ProductCard struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Slug     string           `json:"slug"`
	Images   []string         `json:"images"`
	Variants []ProductVariant `json:"variants"`
}

type LiveSelectionPayload struct {
	StoreID    string        `json:"store_id"`
	ProductIDs []string      `json:"product_ids"`
	Products   []ProductCard `json:"products"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type SetLiveProductsRequest struct {
	ProductIDs json.RawMessage `json:"product_ids"`
}

type ToggleLiveProductRequest struct {
	On bool `json:"on"`
}

type SetOnlineRequest struct {
	IsOnline *bool `json:"is_online" validate:"required"`
}

type OnlineStatusResponse struct {
	UserID            string    `json:"user_id"`
	IsOnline          bool      `json:"is_online"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	ActiveConnections int64     `json:"active_connections"`
}
