package swap

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"

	"github.com/rajivgeraev/rewear-api/internal/middleware"
)

// Не больше 30 изменяющих запросов в минуту на пользователя
const (
	mutationLimit  = 30
	mutationWindow = time.Minute
)

// SetupRoutes настраивает маршруты для API обменов
func (s *SwapService) SetupRoutes(app *fiber.App) {
	// Группа для API обменов, все маршруты требуют авторизации
	api := app.Group("/api/swaps", middleware.AuthMiddleware(s.jwtService))

	throttle := limiter.New(limiter.Config{
		Max:        mutationLimit,
		Expiration: mutationWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			if id, ok := middleware.UserID(c); ok {
				return id.String()
			}
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Слишком много запросов, попробуйте позже",
			})
		},
	})

	// Администрирование
	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.Get("/stats", s.GetStats)

	api.Post("/", s.CreateSwap, throttle)
	api.Get("/", s.GetMySwaps)
	api.Get("/item/:itemId/pending", s.GetItemPendingSwaps)
	api.Get("/:id", s.GetSwap)
	api.Put("/:id/respond", s.RespondSwap, throttle)
	api.Put("/:id/cancel", s.CancelSwap, throttle)
	api.Put("/:id/complete", s.CompleteSwap, throttle)
	api.Put("/:id/admin-notes", s.UpdateAdminNotes, middleware.RequireAdmin())
}
