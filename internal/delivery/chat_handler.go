package delivery

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"marketlive-ws/internal/domain"
)

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req domain.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	msg, err := s.chat.SendMessage(c.UserContext(), identityFrom(c), req)
	if err != nil {
		return err
	}

	c.Status(fiber.StatusCreated)
	return success(c, "Message sent successfully", msg)
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.chat.ListConversations(c.UserContext(), identityFrom(c), c.Query("store_id"))
	if err != nil {
		return err
	}
	return success(c, "Conversations retrieved successfully", convs)
}

// handleListMessages pages backward; cursor is the created_at of the oldest
// message already held by the client and cursor_id its id.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	var cursor *domain.MessageCursor
	if raw := c.Query("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Validation("cursor must be an RFC3339 timestamp")
		}
		cursor = &domain.MessageCursor{Before: t.UTC(), ID: c.Query("cursor_id")}
	} else if c.Query("cursor_id") != "" {
		return domain.Validation("cursor_id requires cursor")
	}

	page, err := s.chat.ListMessages(c.UserContext(), identityFrom(c), c.Params("id"), cursor, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return success(c, "Messages retrieved successfully", page)
}

func (s *Server) handleMarkMessagesRead(c *fiber.Ctx) error {
	n, err := s.chat.MarkRead(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, "Messages marked as read", fiber.Map{"marked": n})
}

func (s *Server) handleTypingUsers(c *fiber.Ctx) error {
	users, err := s.chat.TypingUsers(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, "Typing users retrieved successfully", fiber.Map{"users": users})
}

func (s *Server) handleUnreadSummary(c *fiber.Ctx) error {
	summary, err := s.chat.UnreadSummary(c.UserContext(), identityFrom(c), c.Query("store_id"))
	if err != nil {
		return err
	}
	return success(c, "Unread summary retrieved successfully", summary)
}
