package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) IssueShare(c *fiber.Ctx) error {
	tok, err := h.Shares.Issue(c.Context(), principal(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tok)
}

// ResolveShare is the unauthenticated share link: the token value in
// the URL is the capability.
func (h *Handler) ResolveShare(c *fiber.Ctx) error {
	cd, files, err := h.Shares.Resolve(c.Context(), principal(c), c.Params("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"cd": cd, "files": files})
}

func (h *Handler) RevokeShare(c *fiber.Ctx) error {
	if err := h.Shares.Revoke(c.Context(), principal(c), c.Params("token")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "share token revoked"})
}
