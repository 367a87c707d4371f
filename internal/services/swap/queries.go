package swap

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page параметры постраничной выдачи, страницы нумеруются с 1
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Limit
}

// Get возвращает запрос участнику обмена или администратору
func (e *Engine) Get(ctx context.Context, swapID uuid.UUID, actor Actor) (*models.SwapRequest, error) {
	s, err := e.uow.GetSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !actor.canAccess(s) {
		return nil, apperr.New(apperr.Forbidden, "нет доступа к этому запросу")
	}
	return s, nil
}

// ListForUser возвращает запросы, где пользователь инициатор или владелец одной из вещей
func (e *Engine) ListForUser(ctx context.Context, userID uuid.UUID, status models.SwapStatus, page Page) ([]models.SwapRequest, models.Pagination, error) {
	if status != "" && !status.Valid() {
		return nil, models.Pagination{}, apperr.New(apperr.InvalidInput, "неизвестный статус %q", status)
	}
	page = page.normalize()

	swaps, total, err := e.uow.ListSwaps(ctx, models.SwapFilter{
		ParticipantID: &userID,
		Status:        status,
		Limit:         page.Limit,
		Offset:        page.offset(),
	})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return swaps, models.NewPagination(page.Page, page.Limit, total), nil
}

// PendingForItem возвращает ожидающие запросы по вещи ее владельцу или администратору
func (e *Engine) PendingForItem(ctx context.Context, itemID uuid.UUID, actor Actor, page Page) ([]models.SwapRequest, models.Pagination, error) {
	item, err := e.uow.GetItem(ctx, itemID)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if item.UserID != actor.ID && !actor.Admin {
		return nil, models.Pagination{}, apperr.New(apperr.Forbidden, "запросы по вещи видит только ее владелец")
	}
	page = page.normalize()

	swaps, total, err := e.uow.ListSwaps(ctx, models.SwapFilter{
		ItemID: &itemID,
		Status: models.SwapPending,
		Limit:  page.Limit,
		Offset: page.offset(),
	})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return swaps, models.NewPagination(page.Page, page.Limit, total), nil
}

// Stats возвращает статистику запросов по статусам
func (e *Engine) Stats(ctx context.Context) (*models.SwapStats, error) {
	return e.uow.SwapStats(ctx)
}
