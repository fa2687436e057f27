package delivery

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/validation"
)

func (s *Server) handleGetOnlineStatus(c *fiber.Ctx) error {
	st, err := s.presence.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return success(c, "Online status retrieved successfully", st)
}

func (s *Server) handleSetOnlineStatus(c *fiber.Ctx) error {
	online, err := parseOnlineBody(c.Body())
	if err != nil {
		return err
	}
	st, err := s.presence.SetOnline(c.UserContext(), identityFrom(c), "", online)
	if err != nil {
		return err
	}
	return success(c, "Online status updated successfully", st)
}

// handleOnlineBeacon serves navigator.sendBeacon on page teardown. Beacons
// cannot carry headers, so the token comes in the query string and the body
// may arrive as text/plain.
func (s *Server) handleOnlineBeacon(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return domain.Unauthenticated("Token is required")
	}
	id, err := s.verifier.Verify(token)
	if err != nil {
		return domain.Unauthenticated("Invalid or expired token")
	}

	online, err := parseOnlineBody(c.Body())
	if err != nil {
		return err
	}
	if _, err := s.presence.SetOnline(c.UserContext(), id, "", online); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseOnlineBody(body []byte) (bool, error) {
	var req domain.SetOnlineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false, domain.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return false, err
	}
	return *req.IsOnline, nil
}
