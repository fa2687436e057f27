package domain

import "strings"

// Room names are shared with every peer implementation and must not change.
func UserInboxRoom(userID string) string   { return "user-" + userID }
func StoreInboxRoom(storeID string) string { return "store-" + storeID }

func ChatMessagesRoom(conversationID string) string {
	return "chat:" + conversationID + ":messages"
}

func ChatStatusRoom(conversationID string) string {
	return "chat:" + conversationID + ":status"
}

func ChatTypingRoom(conversationID string) string {
	return "chat:" + conversationID + ":typing"
}

func ChatUserUnreadRoom(userID string) string {
	return "chat:user:" + userID + ":unread"
}

func ChatStoreUnreadRoom(storeID string) string {
	return "chat:store:" + storeID + ":unread"
}

func UserNotificationsRoom(userID string) string {
	return "notifications:user:" + userID
}

func StoreNotificationsRoom(storeID string) string {
	return "notifications:store:" + storeID
}

func LiveProductsRoom(storeID string) string {
	return "live:store:" + storeID + ":products"
}

type RoomKind int

const (
	RoomUnknown RoomKind = iota
	RoomUserInbox
	RoomStoreInbox
	RoomChatMessages
	RoomChatStatus
	RoomChatTyping
	RoomChatUserUnread
	RoomChatStoreUnread
	RoomUserNotifications
	RoomStoreNotifications
	RoomLiveProducts
)

// Room is a parsed room name. Subject is the user, store or conversation id
// the room is scoped to.
type Room struct {
	Kind    RoomKind
	Subject string
}

// ParseRoom classifies a room name. Unrecognized names return RoomUnknown.
func ParseRoom(name string) Room {
	switch {
	case strings.HasPrefix(name, "user-"):
		return subjectRoom(RoomUserInbox, strings.TrimPrefix(name, "user-"))
	case strings.HasPrefix(name, "store-"):
		return subjectRoom(RoomStoreInbox, strings.TrimPrefix(name, "store-"))
	case strings.HasPrefix(name, "notifications:user:"):
		return subjectRoom(RoomUserNotifications, strings.TrimPrefix(name, "notifications:user:"))
	case strings.HasPrefix(name, "notifications:store:"):
		return subjectRoom(RoomStoreNotifications, strings.TrimPrefix(name, "notifications:store:"))
	}

	parts := strings.Split(name, ":")
	switch {
	case len(parts) == 4 && parts[0] == "chat" && parts[1] == "user" && parts[3] == "unread":
		return subjectRoom(RoomChatUserUnread, parts[2])
	case len(parts) == 4 && parts[0] == "chat" && parts[1] == "store" && parts[3] == "unread":
		return subjectRoom(RoomChatStoreUnread, parts[2])
	case len(parts) == 3 && parts[0] == "chat" && parts[2] == "messages":
		return subjectRoom(RoomChatMessages, parts[1])
	case len(parts) == 3 && parts[0] == "chat" && parts[2] == "status":
		return subjectRoom(RoomChatStatus, parts[1])
	case len(parts) == 3 && parts[0] == "chat" && parts[2] == "typing":
		return subjectRoom(RoomChatTyping, parts[1])
	case len(parts) == 4 && parts[0] == "live" && parts[1] == "store" && parts[3] == "products":
		return subjectRoom(RoomLiveProducts, parts[2])
	}
	return Room{Kind: RoomUnknown}
}

func subjectRoom(kind RoomKind, subject string) Room {
	if subject == "" || strings.Contains(subject, ":") {
		return Room{Kind: RoomUnknown}
	}
	return Room{Kind: kind, Subject: subject}
}
