package handlers

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/quota"
	"github.com/recdfyi/recd-server/internal/services"
	"github.com/recdfyi/recd-server/internal/store"
)

// Handler carries the services behind the HTTP surface.
type Handler struct {
	Auth        *services.AuthService
	Users       *services.UserService
	CDs         *services.CDService
	Files       *services.FileService
	Shares      *services.ShareService
	Marketplace *services.MarketplaceService
	Emails      *services.EmailService

	validate *validator.Validate
	logger   *slog.Logger
}

func New(auth *services.AuthService, users *services.UserService, cds *services.CDService,
	files *services.FileService, shares *services.ShareService,
	marketplace *services.MarketplaceService, emails *services.EmailService, logger *slog.Logger) *Handler {
	return &Handler{
		Auth:        auth,
		Users:       users,
		CDs:         cds,
		Files:       files,
		Shares:      shares,
		Marketplace: marketplace,
		Emails:      emails,
		validate:    validator.New(),
		logger:      logger,
	}
}

// principal builds the request principal from whatever the auth
// middleware stored; anonymous when nothing is there.
func principal(c *fiber.Ctx) identity.Principal {
	if uid, ok := c.Locals("user_id").(string); ok {
		return identity.Principal{UID: uid}
	}
	return identity.Anonymous
}

// fail maps service errors to HTTP responses. Authorization denials are
// opaque; quota refusals carry the ceiling, which is actionable and not
// security sensitive. Consistency faults are logged before responding:
// a request that tried to violate a document invariant is something an
// operator should see, not just the caller.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var qe *quota.QuotaError
	switch {
	case errors.As(err, &qe):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error":       "quota exceeded",
			"ceiling":     string(qe.Ceiling),
			"limit_bytes": qe.LimitBytes,
		})
	case errors.Is(err, quota.ErrDisallowedType):
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": "file type not allowed"})
	case errors.Is(err, policy.ErrTokenInvalid):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invalid or expired share token"})
	case errors.Is(err, policy.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
	case errors.Is(err, policy.ErrConsistencyFault):
		h.logger.Error("consistency fault",
			"method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid document state"})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, services.ErrEmailInUse), errors.Is(err, services.ErrUsernameTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// Healthz is the liveness endpoint.
func (h *Handler) Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
