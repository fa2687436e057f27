package delivery

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"marketlive-ws/internal/domain"
)

func (s *Server) handleGetLiveProducts(c *fiber.Ctx) error {
	sel, err := s.live.Get(c.UserContext(), c.Params("storeId"))
	if err != nil {
		return err
	}
	return success(c, "Live products retrieved successfully", sel)
}

func (s *Server) handleSetLiveProducts(c *fiber.Ctx) error {
	var req domain.SetLiveProductsRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.Validation("Invalid request body")
	}
	ids, err := parseProductIDs(req.ProductIDs)
	if err != nil {
		return err
	}

	sel, err := s.live.Set(c.UserContext(), c.Params("storeId"), ids, identityFrom(c))
	if err != nil {
		return err
	}
	return success(c, "Live products updated successfully", sel)
}

// parseProductIDs accepts only a JSON array of strings.
func parseProductIDs(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, domain.Validation("product_ids must be an array")
	}
	var ids []string
	if err := json.Unmarshal(trimmed, &ids); err != nil {
		return nil, domain.Validation("product_ids must be an array of strings")
	}
	return ids, nil
}

func (s *Server) handleToggleLiveProduct(c *fiber.Ctx) error {
	var req domain.ToggleLiveProductRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	sel, err := s.live.Toggle(c.UserContext(), c.Params("storeId"), c.Params("productId"), req.On, identityFrom(c))
	if err != nil {
		return err
	}
	return success(c, "Live products updated successfully", sel)
}
