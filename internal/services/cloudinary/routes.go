package cloudinary

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/rewear-api/internal/middleware"
)

// SetupRoutes настраивает маршруты загрузки изображений
func (s *CloudinaryService) SetupRoutes(app *fiber.App) {
	protected := app.Group("/api/upload", middleware.AuthMiddleware(s.jwtService))

	// Маршрут для получения параметров загрузки
	protected.Get("/params", s.GenerateUploadParams)
}
