package auth

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/rewear-api/internal/middleware"
)

// SetupRoutes регистрирует маршруты в Fiber
func (s *AuthService) SetupRoutes(app *fiber.App) {
	app.Post("/api/auth/telegram", s.TelegramAuthHandler)

	// Защищенные маршруты
	protected := app.Group("/api/profile", middleware.AuthMiddleware(s.jwtService))
	protected.Get("/", s.ProfileHandler)
	protected.Put("/email", s.UpdateEmailHandler)
}
