package swap

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/cache"
	"github.com/rajivgeraev/rewear-api/internal/middleware"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

// SwapService обслуживает HTTP API обменов поверх Engine
type SwapService struct {
	engine     *Engine
	jwtService *utils.JWTService
	items      cache.ItemCache
	log        *zap.Logger
}

// NewSwapService создает новый экземпляр SwapService
func NewSwapService(engine *Engine, jwtService *utils.JWTService, items cache.ItemCache, log *zap.Logger) *SwapService {
	if items == nil {
		items = cache.Noop{}
	}
	return &SwapService{
		engine:     engine,
		jwtService: jwtService,
		items:      items,
		log:        log,
	}
}

func actorFrom(c fiber.Ctx) (Actor, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return Actor{}, apperr.New(apperr.Unauthorized, "пользователь не авторизован")
	}
	return NewActor(id, middleware.Role(c)), nil
}

func pageFrom(c fiber.Ctx) Page {
	return Page{
		Page:  utils.QueryInt(c, "page", 1),
		Limit: utils.QueryInt(c, "limit", defaultPageSize),
	}
}

// CreateSwap создает запрос на обмен
func (s *SwapService) CreateSwap(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var body struct {
		RequestedItemID    string         `json:"requested_item_id"`
		OfferedItemID      string         `json:"offered_item_id"`
		IsPointsRedemption bool           `json:"is_points_redemption"`
		PointsOffered      int            `json:"points_offered"`
		Message            string         `json:"message"`
		Meeting            models.Meeting `json:"meeting"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат данных")
	}

	requestedID, err := uuid.Parse(body.RequestedItemID)
	if err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат requested_item_id")
	}
	offeredID, err := utils.ParseOptionalUUID(body.OfferedItemID, "offered_item_id")
	if err != nil {
		return err
	}

	swap, err := s.engine.Create(c.Context(), CreateInput{
		RequesterID:        actor.ID,
		RequestedItemID:    requestedID,
		OfferedItemID:      offeredID,
		IsPointsRedemption: body.IsPointsRedemption,
		PointsOffered:      body.PointsOffered,
		Message:            body.Message,
		Meeting:            body.Meeting,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"swap":    swap,
		"message": "Запрос на обмен успешно создан",
	})
}

// GetMySwaps возвращает запросы, в которых участвует пользователь
func (s *SwapService) GetMySwaps(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	status := models.SwapStatus(strings.ToLower(c.Query("status")))
	swaps, pagination, err := s.engine.ListForUser(c.Context(), actor.ID, status, pageFrom(c))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"swaps":      swaps,
		"pagination": pagination,
	})
}

// GetSwap возвращает запрос участнику или администратору
func (s *SwapService) GetSwap(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	swap, err := s.engine.Get(c.Context(), id, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"swap": swap})
}

// RespondSwap принимает или отклоняет запрос
func (s *SwapService) RespondSwap(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Action          string `json:"action"`
		ResponseMessage string `json:"response_message"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат данных")
	}
	action, err := ParseAction(body.Action)
	if err != nil {
		return err
	}

	swap, err := s.engine.Respond(c.Context(), id, actor, action, body.ResponseMessage)
	if err != nil {
		return err
	}
	if swap.Status == models.SwapAccepted {
		s.invalidate(c.Context(), swap.ItemIDs()...)
	}

	message := "Запрос на обмен отклонен"
	if action == ActionAccept {
		message = "Запрос на обмен принят"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"swap":    swap,
		"message": message,
	})
}

// CancelSwap отменяет ожидающий запрос
func (s *SwapService) CancelSwap(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&body); err != nil {
			return apperr.New(apperr.InvalidInput, "неверный формат данных")
		}
	}

	swap, err := s.engine.Cancel(c.Context(), id, actor, body.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"swap":    swap,
		"message": "Запрос на обмен отменен",
	})
}

// CompleteSwap завершает принятый обмен
func (s *SwapService) CompleteSwap(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	swap, err := s.engine.Complete(c.Context(), id, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"swap":    swap,
		"reward":  s.engine.reward,
		"message": "Обмен завершен",
	})
}

// GetItemPendingSwaps возвращает ожидающие запросы по вещи
func (s *SwapService) GetItemPendingSwaps(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	itemID, err := utils.ParamUUID(c, "itemId")
	if err != nil {
		return err
	}

	swaps, pagination, err := s.engine.PendingForItem(c.Context(), itemID, actor, pageFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"swaps":      swaps,
		"pagination": pagination,
	})
}

// GetStats возвращает статистику обменов для администратора
func (s *SwapService) GetStats(c fiber.Ctx) error {
	stats, err := s.engine.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"stats": stats})
}

// UpdateAdminNotes сохраняет заметку администратора
func (s *SwapService) UpdateAdminNotes(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		AdminNotes string `json:"admin_notes"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат данных")
	}

	swap, err := s.engine.Annotate(c.Context(), id, actor, body.AdminNotes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "swap": swap})
}

// invalidate сбрасывает кэш вещей, чья доступность изменилась
func (s *SwapService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if err := s.items.Delete(ctx, ids...); err != nil {
		s.log.Warn("⚠️ Не удалось сбросить кэш вещей", zap.Error(err))
	}
}
