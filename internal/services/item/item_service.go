package item

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/middleware"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

// ItemService представляет HTTP API каталога вещей
type ItemService struct {
	catalog    *Catalog
	jwtService *utils.JWTService
}

// NewItemService создает новый экземпляр ItemService
func NewItemService(catalog *Catalog, jwtService *utils.JWTService) *ItemService {
	return &ItemService{catalog: catalog, jwtService: jwtService}
}

func currentUser(c fiber.Ctx) (uuid.UUID, bool, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return uuid.Nil, false, apperr.New(apperr.Unauthorized, "пользователь не авторизован")
	}
	return id, middleware.Role(c) == models.RoleAdmin, nil
}

func bindInput(c fiber.Ctx) (Input, error) {
	var in Input
	if err := c.Bind().Body(&in); err != nil {
		return in, apperr.New(apperr.InvalidInput, "неверный формат данных")
	}
	return in, nil
}

// CreateItem обрабатывает создание новой вещи
func (s *ItemService) CreateItem(c fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}

	item, err := s.catalog.Create(c.Context(), userID, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"item":    item,
		"message": "Вещь отправлена на модерацию",
	})
}

// GetItems возвращает каталог с фильтрами и пагинацией
func (s *ItemService) GetItems(c fiber.Ctx) error {
	items, pagination, err := s.catalog.List(c.Context(), Query{
		Category:  c.Query("category"),
		Size:      c.Query("size"),
		Condition: c.Query("condition"),
		Search:    c.Query("q"),
		Page:      utils.QueryInt(c, "page", 1),
		Limit:     utils.QueryInt(c, "limit", defaultPageSize),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items, "pagination": pagination})
}

// GetFeaturedItems возвращает избранные вещи
func (s *ItemService) GetFeaturedItems(c fiber.Ctx) error {
	items, err := s.catalog.Featured(c.Context(), utils.QueryInt(c, "limit", 10))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items})
}

// GetItem возвращает детальную информацию о вещи
func (s *ItemService) GetItem(c fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	item, err := s.catalog.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"item": item})
}

// GetUserItems возвращает вещи пользователя; без :userId возвращает свои
func (s *ItemService) GetUserItems(c fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}
	ownerID := userID
	if c.Params("userId") != "" {
		if ownerID, err = utils.ParamUUID(c, "userId"); err != nil {
			return err
		}
	}

	status := models.ItemStatus(strings.ToLower(c.Query("status")))
	items, pagination, err := s.catalog.UserItems(c.Context(), ownerID, status,
		utils.QueryInt(c, "page", 1), utils.QueryInt(c, "limit", defaultPageSize))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items, "pagination": pagination})
}

// UpdateItem обновляет вещь
func (s *ItemService) UpdateItem(c fiber.Ctx) error {
	userID, admin, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}

	item, err := s.catalog.Update(c.Context(), id, userID, admin, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"item":    item,
		"message": "Вещь обновлена",
	})
}

// DeleteItem удаляет вещь
func (s *ItemService) DeleteItem(c fiber.Ctx) error {
	userID, admin, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	if err := s.catalog.Delete(c.Context(), id, userID, admin); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Вещь удалена"})
}

// GetPendingItems возвращает вещи на модерации
func (s *ItemService) GetPendingItems(c fiber.Ctx) error {
	items, pagination, err := s.catalog.Pending(c.Context(),
		utils.QueryInt(c, "page", 1), utils.QueryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items, "pagination": pagination})
}

// AdminAction применяет действие модератора
func (s *ItemService) AdminAction(c fiber.Ctx) error {
	adminID, _, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Action string `json:"action"`
		Notes  string `json:"notes"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат данных")
	}
	action, err := ParseAdminAction(body.Action)
	if err != nil {
		return err
	}

	item, err := s.catalog.Moderate(c.Context(), id, adminID, action, body.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "item": item})
}

// GetItemStats возвращает статистику каталога
func (s *ItemService) GetItemStats(c fiber.Ctx) error {
	stats, err := s.catalog.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"stats": stats})
}
