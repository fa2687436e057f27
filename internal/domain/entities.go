package domain

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	DisplayName string    `gorm:"size:120;not null" json:"display_name"`
	AvatarURL   string    `gorm:"size:500" json:"avatar_url"`
	Role        string    `gorm:"size:20;not null;default:buyer" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID            string    `gorm:"size:36;not null;index" json:"owner_id"`
	Name               string    `gorm:"size:120;not null" json:"name"`
	Slug               string    `gorm:"size:120;index" json:"slug"`
	NotifyBuyerOnOrder bool      `gorm:"not null" json:"notify_buyer_on_order"`
	CreatedAt          time.Time `json:"created_at"`
}

type StoreFollower struct {
	StoreID   string    `gorm:"primaryKey;size:36" json:"store_id"`
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductVariant struct {
	Size  string  `json:"size"`
	Price float64 `json:"price"`
}

type Product struct {
	ID        string                              `gorm:"primaryKey;size:36" json:"id"`
	StoreID   string                              `gorm:"size:36;not null;index" json:"store_id"`
	Name      string                              `gorm:"size:200;not null" json:"name"`
	Slug      string                              `gorm:"size:200" json:"slug"`
	Images    datatypes.JSONSlice[string]         `json:"images"`
	Variants  datatypes.JSONSlice[ProductVariant] `json:"variants"`
	Published bool                                `gorm:"not null;default:false" json:"published"`
	CreatedAt time.Time                           `json:"created_at"`
	UpdatedAt time.Time                           `json:"updated_at"`
}

// Conversation is the 1:1 thread between a buyer and a store. There is at
// most one per (user, store) pair.
type Conversation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_pair" json:"user_id"`
	StoreID       string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_pair" json:"store_id"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type Message struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string     `gorm:"size:36;not null;index:idx_message_conversation_created" json:"conversation_id"`
	SenderID       string     `gorm:"size:36;not null" json:"sender_id"`
	SenderName     string     `gorm:"size:120" json:"sender_name"`
	SenderAvatar   string     `gorm:"size:500" json:"sender_avatar"`
	Content        string     `gorm:"type:text" json:"content"`
	ImageURL       *string    `gorm:"size:500" json:"image_url"`
	IsRead         bool       `gorm:"not null;default:false" json:"is_read"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `gorm:"index:idx_message_conversation_created" json:"created_at"`
}

type Notification struct {
	ID        string             `gorm:"primaryKey;size:36" json:"id"`
	Type      NotificationType   `gorm:"size:40;not null" json:"type"`
	Title     string             `gorm:"size:200;not null" json:"title"`
	Message   string             `gorm:"type:text;not null" json:"message"`
	Metadata  datatypes.JSON     `json:"metadata,omitempty"`
	UserID    *string            `gorm:"size:36;index" json:"user_id,omitempty"`
	StoreID   *string            `gorm:"size:36;index" json:"store_id,omitempty"`
	OrderID   *string            `gorm:"size:36" json:"order_id,omitempty"`
	Status    NotificationStatus `gorm:"size:10;not null;default:unread" json:"status"`
	CreatedAt time.Time          `gorm:"index" json:"created_at"`
}

type OnlineStatus struct {
	UserID     string    `gorm:"primaryKey;size:36" json:"user_id"`
	IsOnline   bool      `gorm:"not null" json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)
