package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := h.Auth.Register(c.Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "user registered", "user": user})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	token, err := h.Auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

func (h *Handler) Me(c *fiber.Ctx) error {
	p := principal(c)
	user, err := h.Users.Get(c.Context(), p, p.UID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

type usernameRequest struct {
	Username string `json:"username" validate:"required,max=20"`
}

func (h *Handler) SetUsername(c *fiber.Ctx) error {
	var req usernameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	p := principal(c)
	if err := h.Users.SetUsername(c.Context(), p, p.UID, req.Username); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "username updated"})
}
