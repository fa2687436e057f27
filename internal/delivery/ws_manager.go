package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
)

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// ChatAccess is the part of the chat service the socket layer needs.
type ChatAccess interface {
	CanAccess(ctx context.Context, userID, conversationID string) error
	Typing(ctx context.Context, viewer domain.Identity, conversationID string, isTyping bool) error
}

type StoreLookup interface {
	GetStore(ctx context.Context, id string) (*domain.Store, error)
}

// ConnectionRegistry counts live sessions per user across processes.
type ConnectionRegistry interface {
	TrackConnection(ctx context.Context, userID, connectionID string) error
	UntrackConnection(ctx context.Context, userID, connectionID string) error
}

type frameReader interface {
	ReadJSON(v interface{}) error
}

type WSManager struct {
	broker   *broker.Broker
	verifier TokenVerifier
	chat     ChatAccess
	stores   StoreLookup
	registry ConnectionRegistry
	log      zerolog.Logger
}

func NewWSManager(b *broker.Broker, verifier TokenVerifier, chat ChatAccess, stores StoreLookup, registry ConnectionRegistry) *WSManager {
	return &WSManager{
		broker:   b,
		verifier: verifier,
		chat:     chat,
		stores:   stores,
		registry: registry,
		log:      logging.With("ws"),
	}
}

func (w *WSManager) HandleConnection(c *websocket.Conn) {
	defer c.Close()
	w.serve(context.Background(), c, c)
}

// serve owns a connection from registration to disconnect. All writes to the
// transport go through the broker connection's queue. Work started by the
// client is cancelled when the read loop ends.
func (w *WSManager) serve(parent context.Context, sender broker.Sender, reader frameReader) {
	ctx, cancel := context.WithCancel(parent)
	conn := w.broker.Connect(sender)
	defer func() {
		cancel()
		w.broker.Disconnect(conn)
		if userID := conn.UserID(); userID != "" && w.registry != nil {
			untrackCtx, done := context.WithTimeout(context.WithoutCancel(parent), 2*time.Second)
			err := w.registry.UntrackConnection(untrackCtx, userID, conn.ID)
			done()
			if err != nil {
				w.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to untrack connection")
			}
		}
		w.log.Info().Str("connection_id", conn.ID).Str("user_id", conn.UserID()).Msg("WebSocket client disconnected")
	}()

	w.reply(conn, "connection_established", map[string]interface{}{
		"connection_id": conn.ID,
		"message":       "Connected. Send authenticate to receive your events.",
	})
	w.log.Info().Str("connection_id", conn.ID).Msg("WebSocket client connected")

	for {
		var msg domain.WebSocketMessage
		if err := reader.ReadJSON(&msg); err != nil {
			w.log.Debug().Err(err).Str("connection_id", conn.ID).Msg("WebSocket read ended")
			return
		}
		w.handleIncomingMessage(ctx, conn, &msg)
	}
}

func (w *WSManager) handleIncomingMessage(ctx context.Context, conn *broker.Connection, msg *domain.WebSocketMessage) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Str("type", msg.Type).Msg("Recovered from panic handling client message")
		}
	}()

	switch msg.Type {
	case "authenticate":
		var p domain.AuthenticatePayload
		if err := decodePayload(msg.Data, &p); err != nil {
			w.sendError(conn, err)
			return
		}
		w.handleAuthenticate(ctx, conn, p)

	case "join":
		var p domain.RoomPayload
		if err := decodePayload(msg.Data, &p); err != nil {
			w.sendError(conn, err)
			return
		}
		if err := w.authorizeRoom(ctx, conn, p.Room); err != nil {
			w.sendError(conn, err)
			return
		}
		w.broker.Join(conn, p.Room)
		w.reply(conn, "joined", domain.RoomPayload{Room: p.Room})

	case "leave":
		var p domain.RoomPayload
		if err := decodePayload(msg.Data, &p); err != nil {
			w.sendError(conn, err)
			return
		}
		w.broker.Leave(conn, p.Room)
		w.reply(conn, "left", domain.RoomPayload{Room: p.Room})

	case "typing":
		var p domain.TypingPayload
		if err := decodePayload(msg.Data, &p); err != nil {
			w.sendError(conn, err)
			return
		}
		if conn.UserID() == "" {
			w.sendError(conn, domain.Unauthenticated("authenticate first"))
			return
		}
		if err := w.chat.Typing(ctx, domain.Identity{UserID: conn.UserID()}, p.ConversationID, p.IsTyping); err != nil {
			w.sendError(conn, err)
		}

	case "ping":
		w.reply(conn, "pong", nil)

	default:
		w.log.Debug().Str("type", msg.Type).Str("connection_id", conn.ID).Msg("Unknown message type")
		w.sendError(conn, domain.Validation("unknown message type: "+msg.Type))
	}
}

// handleAuthenticate binds the connection to a user once and joins the
// user's inbox and, for a store owner, the store's inbox.
func (w *WSManager) handleAuthenticate(ctx context.Context, conn *broker.Connection, p domain.AuthenticatePayload) {
	if conn.UserID() != "" {
		w.sendError(conn, domain.Validation("connection already authenticated"))
		return
	}

	id, err := w.verifier.Verify(p.Token)
	if err != nil {
		w.sendError(conn, domain.Unauthenticated("invalid token"))
		return
	}
	if p.UserID != "" && p.UserID != id.UserID {
		w.sendError(conn, domain.Forbidden("user_id does not match token"))
		return
	}
	if p.StoreID != "" {
		if err := w.requireOwner(ctx, id.UserID, p.StoreID); err != nil {
			w.sendError(conn, err)
			return
		}
	}

	if !conn.SetIdentity(id.UserID, p.StoreID) {
		w.sendError(conn, domain.Validation("connection already authenticated"))
		return
	}

	rooms := []string{domain.UserInboxRoom(id.UserID)}
	if p.StoreID != "" {
		rooms = append(rooms, domain.StoreInboxRoom(p.StoreID))
	}
	for _, room := range rooms {
		w.broker.Join(conn, room)
	}

	if w.registry != nil {
		if err := w.registry.TrackConnection(ctx, id.UserID, conn.ID); err != nil {
			w.log.Warn().Err(err).Str("user_id", id.UserID).Msg("Failed to track connection")
		}
	}

	w.reply(conn, "authenticated", map[string]interface{}{
		"user_id":  id.UserID,
		"store_id": p.StoreID,
		"rooms":    rooms,
	})
	w.log.Info().Str("connection_id", conn.ID).Str("user_id", id.UserID).Msg("WebSocket client authenticated")
}

// authorizeRoom decides whether conn may join room. Live product rooms are
// public; everything else needs an authenticated connection scoped to the
// room's subject.
func (w *WSManager) authorizeRoom(ctx context.Context, conn *broker.Connection, name string) error {
	room := domain.ParseRoom(name)
	if room.Kind == domain.RoomUnknown {
		return domain.Validation("unknown room: " + name)
	}
	if room.Kind == domain.RoomLiveProducts {
		return nil
	}

	userID := conn.UserID()
	if userID == "" {
		return domain.Unauthenticated("authenticate first")
	}

	switch room.Kind {
	case domain.RoomUserInbox, domain.RoomUserNotifications, domain.RoomChatUserUnread:
		if room.Subject != userID {
			return domain.Forbidden("room belongs to another user")
		}
		return nil
	case domain.RoomStoreInbox, domain.RoomStoreNotifications, domain.RoomChatStoreUnread:
		return w.requireOwner(ctx, userID, room.Subject)
	case domain.RoomChatMessages, domain.RoomChatStatus, domain.RoomChatTyping:
		return w.chat.CanAccess(ctx, userID, room.Subject)
	}
	return domain.Validation("unknown room: " + name)
}

func (w *WSManager) requireOwner(ctx context.Context, userID, storeID string) error {
	store, err := w.stores.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store.OwnerID != userID {
		return domain.Forbidden("not the owner of this store")
	}
	return nil
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return domain.Validation("data is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Validation("malformed data")
	}
	return nil
}

func (w *WSManager) reply(conn *broker.Connection, typ string, data interface{}) {
	conn.Send(domain.WebSocketResponse{
		Type:      typ,
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *WSManager) sendError(conn *broker.Connection, err error) {
	msg := "internal error"
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindUpstream {
		msg = de.Message
	} else {
		w.log.Error().Err(err).Str("connection_id", conn.ID).Msg("WebSocket request failed")
	}
	conn.Send(domain.WebSocketResponse{
		Type:      "error",
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
