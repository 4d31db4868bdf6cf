package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) ListMarketplace(c *fiber.Ctx) error {
	cds, err := h.Marketplace.List(c.Context(), c.Query("q"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"cds": cds})
}

func (h *Handler) ViewMarketplaceCD(c *fiber.Ctx) error {
	cd, files, err := h.Marketplace.View(c.Context(), principal(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"cd": cd, "files": files})
}
