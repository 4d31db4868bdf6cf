package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// parseBearer extracts and verifies the bearer token, returning the
// authenticated uid or an empty string.
func parseBearer(c *fiber.Ctx, secret []byte) string {
	tokenString := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		return ""
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	uid, _ := claims["user_id"].(string)
	return uid
}

// Auth requires a valid JWT and stores the uid in the request context.
func Auth(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		uid := parseBearer(c, key)
		if uid == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid token"})
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

// OptionalAuth stores the uid when a valid JWT is present and lets the
// request through anonymously otherwise. Public marketplace and
// share-token reads go through here: the policy engine decides, not
// the transport.
func OptionalAuth(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if uid := parseBearer(c, key); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	}
}
