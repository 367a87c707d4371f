package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
)

// ErrorHandler отображает ошибки бизнес-логики на HTTP-ответы вида {"error": "..."}
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		kind := apperr.KindOf(err)
		status := apperr.HTTPStatus(kind)
		if status >= fiber.StatusInternalServerError {
			log.Error("❌ Ошибка обработки запроса",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		return c.Status(status).JSON(fiber.Map{
			"error": apperr.Message(err),
			"code":  kind.String(),
		})
	}
}
