package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/letitbank/go-bank-ledger/pkg/token"
)

// localsUserID 已驗證使用者 ID 在 fiber Locals 的鍵
const localsUserID = "x-user-id"

// JwtAuthMiddleware 驗證 Authorization: Bearer {token}
// 通過後把使用者 ID 放進 Locals 供 handler 使用
func JwtAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"msg": "Missing authorization header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"msg": "Authorization header format must be Bearer {token}"})
		}

		userID, err := token.ExtractUserID(parts[1], secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"msg": "Not authorized or invalid token"})
		}

		c.Locals(localsUserID, userID)
		return c.Next()
	}
}
