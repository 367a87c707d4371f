package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

// Ключи c.Locals
const (
	LocalUserID = "userID"
	LocalRole   = "role"
)

// AuthMiddleware создаёт middleware для проверки JWT
func AuthMiddleware(jwtService *utils.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Отсутствует заголовок авторизации",
			})
		}

		// Проверяем Bearer токен
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Неверный формат заголовка авторизации",
			})
		}

		userID, role, err := jwtService.ExtractUserID(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Недействительный или просроченный токен",
			})
		}

		// Права администратора сверяем с базой: токен живет 72 часа,
		// а роль могут снять раньше
		if role == models.RoleAdmin {
			role, err = jwtService.ResolveRole(c.Context(), userID, role)
			if apperr.KindOf(err) == apperr.NotFound {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Пользователь не найден",
				})
			}
			if err != nil {
				return err
			}
		}

		if role == "" {
			role = models.RoleUser
		}

		// Добавляем пользователя в контекст
		c.Locals(LocalUserID, userID)
		c.Locals(LocalRole, role)

		return c.Next()
	}
}

// RequireAdmin пропускает только администраторов. Ставится после AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		if Role(c) != models.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Доступно только администратору",
			})
		}
		return c.Next()
	}
}

// UserID возвращает ID авторизованного пользователя
func UserID(c fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(LocalUserID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Role возвращает роль авторизованного пользователя
func Role(c fiber.Ctx) string {
	role, _ := c.Locals(LocalRole).(string)
	return role
}
