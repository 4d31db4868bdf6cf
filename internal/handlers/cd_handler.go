package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type cdRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Label string `json:"label" validate:"max=100"`
}

func (h *Handler) CreateCD(c *fiber.Ctx) error {
	var req cdRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cd, err := h.CDs.Create(c.Context(), principal(c), req.Name, req.Label)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cd)
}

func (h *Handler) ListCDs(c *fiber.Ctx) error {
	cds, err := h.CDs.List(c.Context(), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"cds": cds})
}

func (h *Handler) GetCD(c *fiber.Ctx) error {
	cd, err := h.CDs.Get(c.Context(), principal(c), c.Params("id"), c.Query("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(cd)
}

func (h *Handler) UpdateCD(c *fiber.Ctx) error {
	var req cdRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cd, err := h.CDs.Update(c.Context(), principal(c), c.Params("id"), req.Name, req.Label)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(cd)
}

func (h *Handler) DeleteCD(c *fiber.Ctx) error {
	if err := h.CDs.Delete(c.Context(), principal(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "cd deleted"})
}

func (h *Handler) PublishCD(c *fiber.Ctx) error {
	cd, err := h.CDs.SetPublic(c.Context(), principal(c), c.Params("id"), true)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(cd)
}

func (h *Handler) UnpublishCD(c *fiber.Ctx) error {
	cd, err := h.CDs.SetPublic(c.Context(), principal(c), c.Params("id"), false)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(cd)
}
