package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
)

// ParamUUID разбирает UUID из параметра маршрута
func ParamUUID(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.InvalidInput, "неверный формат %s", name)
	}
	return id, nil
}

// ParseOptionalUUID разбирает необязательный UUID из тела запроса
func ParseOptionalUUID(value, field string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, apperr.New(apperr.InvalidInput, "неверный формат %s", field)
	}
	return &id, nil
}

// QueryInt читает целое из строки запроса, при ошибке возвращает значение по умолчанию
func QueryInt(c fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
