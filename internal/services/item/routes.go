package item

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/rewear-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API вещей
func (s *ItemService) SetupRoutes(app *fiber.App) {
	auth := middleware.AuthMiddleware(s.jwtService)
	api := app.Group("/api/items")

	// Администрирование регистрируется до /:id
	admin := api.Group("/admin", auth, middleware.RequireAdmin())
	admin.Get("/pending", s.GetPendingItems)
	admin.Get("/stats", s.GetItemStats)
	admin.Post("/:id/action", s.AdminAction)

	// Публичные маршруты
	api.Get("/", s.GetItems)
	api.Get("/featured", s.GetFeaturedItems)

	// Защищенные маршруты
	api.Get("/user", s.GetUserItems, auth)
	api.Get("/user/:userId", s.GetUserItems, auth)
	api.Post("/", s.CreateItem, auth)
	api.Put("/:id", s.UpdateItem, auth)
	api.Delete("/:id", s.DeleteItem, auth)

	api.Get("/:id", s.GetItem)
}
