package favorite

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/cache"
	"github.com/rajivgeraev/rewear-api/internal/middleware"
	"github.com/rajivgeraev/rewear-api/internal/repository"
	"github.com/rajivgeraev/rewear-api/internal/services/item"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

// FavoriteService представляет сервис для работы с отметками «нравится»
type FavoriteService struct {
	uow        repository.UnitOfWork
	catalog    *item.Catalog
	items      cache.ItemCache
	jwtService *utils.JWTService
	log        *zap.Logger
}

// NewFavoriteService создает новый экземпляр FavoriteService
func NewFavoriteService(uow repository.UnitOfWork, catalog *item.Catalog, items cache.ItemCache, jwtService *utils.JWTService, log *zap.Logger) *FavoriteService {
	if items == nil {
		items = cache.Noop{}
	}
	return &FavoriteService{
		uow:        uow,
		catalog:    catalog,
		items:      items,
		jwtService: jwtService,
		log:        log,
	}
}

// Toggle переключает отметку и возвращает новое состояние и число отметок
func (s *FavoriteService) Toggle(ctx context.Context, userID, itemID uuid.UUID) (bool, int, error) {
	return s.set(ctx, userID, itemID, nil)
}

// set приводит отметку к want; nil означает переключение.
// Если отметка уже в нужном состоянии, возвращается Conflict.
func (s *FavoriteService) set(ctx context.Context, userID, itemID uuid.UUID, want *bool) (bool, int, error) {
	var liked bool
	var count int
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if want != nil {
			current, err := repos.IsFavorite(ctx, userID, itemID)
			if err != nil {
				return err
			}
			if current == *want {
				if current {
					return apperr.New(apperr.Conflict, "вещь уже в избранном")
				}
				return apperr.New(apperr.NotFound, "вещи нет в избранном")
			}
		}

		var err error
		liked, count, err = repos.ToggleFavorite(ctx, userID, itemID)
		return err
	})
	if err != nil {
		return false, 0, err
	}

	// В кэше хранится счетчик отметок
	if err := s.items.Delete(ctx, itemID); err != nil {
		s.log.Warn("⚠️ Не удалось сбросить кэш вещи", zap.Error(err))
	}
	return liked, count, nil
}

func currentUser(c fiber.Ctx) (uuid.UUID, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return uuid.Nil, apperr.New(apperr.Unauthorized, "пользователь не авторизован")
	}
	return id, nil
}

// AddToFavorites добавляет вещь в избранное
func (s *FavoriteService) AddToFavorites(c fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var requestData struct {
		ItemID string `json:"item_id"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат данных")
	}
	itemID, err := uuid.Parse(requestData.ItemID)
	if err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат item_id")
	}

	want := true
	_, count, err := s.set(c.Context(), userID, itemID, &want)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":     true,
		"likes_count": count,
		"message":     "Вещь добавлена в избранное",
	})
}

// RemoveFromFavorites удаляет вещь из избранного
func (s *FavoriteService) RemoveFromFavorites(c fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	itemID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	want := false
	_, count, err := s.set(c.Context(), userID, itemID, &want)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"likes_count": count,
		"message":     "Вещь удалена из избранного",
	})
}

// ToggleFavorite переключает отметку «нравится»
func (s *FavoriteService) ToggleFavorite(c fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	itemID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	liked, count, err := s.Toggle(c.Context(), userID, itemID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"is_liked":    liked,
		"likes_count": count,
	})
}

// GetFavorites возвращает список избранных вещей пользователя
func (s *FavoriteService) GetFavorites(c fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	items, pagination, err := s.catalog.Liked(c.Context(), userID,
		utils.QueryInt(c, "page", 1), utils.QueryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"items":      items,
		"pagination": pagination,
	})
}

// CheckFavorite проверяет, добавлена ли вещь в избранное
func (s *FavoriteService) CheckFavorite(c fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	itemID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	liked, err := s.uow.IsFavorite(c.Context(), userID, itemID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"is_favorite": liked})
}
