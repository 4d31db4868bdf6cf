package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type shareEmailRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
}

func (h *Handler) SendShareEmail(c *fiber.Ctx) error {
	var req shareEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	log, err := h.Emails.SendShare(c.Context(), principal(c), c.Params("id"), req.Recipient)
	if err != nil {
		// A relay failure still produced a log entry worth returning.
		if log.ID != "" {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "email delivery failed", "log": log})
		}
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "email sent", "log": log})
}

func (h *Handler) ListEmailLogs(c *fiber.Ctx) error {
	logs, err := h.Emails.Logs(c.Context(), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}
