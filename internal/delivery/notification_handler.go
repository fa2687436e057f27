package delivery

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleListNotifications(c *fiber.Ctx) error {
	page, err := s.notifications.ListForUser(c.UserContext(), identityFrom(c), c.Query("cursor"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return success(c, "Notifications retrieved successfully", page)
}

func (s *Server) handleListStoreNotifications(c *fiber.Ctx) error {
	page, err := s.notifications.ListForStore(c.UserContext(), identityFrom(c), c.Params("storeId"), c.Query("cursor"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return success(c, "Notifications retrieved successfully", page)
}

func (s *Server) handleUnreadNotificationCount(c *fiber.Ctx) error {
	n, err := s.notifications.UnreadCount(c.UserContext(), identityFrom(c), c.Query("store_id"))
	if err != nil {
		return err
	}
	return success(c, "Unread count retrieved successfully", fiber.Map{"count": n})
}

func (s *Server) handleMarkNotificationRead(c *fiber.Ctx) error {
	if err := s.notifications.MarkAsRead(c.UserContext(), identityFrom(c), c.Params("id")); err != nil {
		return err
	}
	return success(c, "Notification marked as read", nil)
}

func (s *Server) handleMarkAllNotificationsRead(c *fiber.Ctx) error {
	n, err := s.notifications.MarkAllRead(c.UserContext(), identityFrom(c), c.Query("store_id"))
	if err != nil {
		return err
	}
	return success(c, "Notifications marked as read", fiber.Map{"marked": n})
}
