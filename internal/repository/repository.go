// Package repository объявляет контракты хранилищ, которые реализуют internal/db (PostgreSQL)
// и internal/db/memory. Ошибки возвращаются в таксономии apperr.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/models"
)

// ItemRepository хранилище объявлений
type ItemRepository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	// GetItemForUpdate блокирует строку до конца транзакции
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error)
	// GetItemForShare запрещает изменение и удаление строки до конца транзакции,
	// не блокируя другие разделяемые чтения
	GetItemForShare(ctx context.Context, id uuid.UUID) (*models.Item, error)
	UpdateItem(ctx context.Context, item *models.Item) error
	SetItemsAvailability(ctx context.Context, available bool, ids ...uuid.UUID) error
	DeleteItem(ctx context.Context, id uuid.UUID) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
	ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)
	ItemStats(ctx context.Context) (*models.ItemStats, error)
}

// UserRepository хранилище пользователей
type UserRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	// AdjustPoints атомарно изменяет баланс и возвращает новое значение.
	// Списание, уводящее баланс в минус, отклоняется с apperr.InsufficientFunds без изменений.
	AdjustPoints(ctx context.Context, id uuid.UUID, delta int) (int, error)
	UpsertTelegramUser(ctx context.Context, profile models.TelegramProfile) (*models.User, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.User, error)
}

// SwapRepository хранилище запросов на обмен
type SwapRepository interface {
	CreateSwap(ctx context.Context, swap *models.SwapRequest) error
	GetSwap(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error)
	GetSwapForUpdate(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error)
	UpdateSwap(ctx context.Context, swap *models.SwapRequest) error
	HasOutstandingSwap(ctx context.Context, requesterID, requestedItemID uuid.UUID) (bool, error)
	// CancelPendingForItem отменяет ожидающие запросы, ссылающиеся на вещь
	CancelPendingForItem(ctx context.Context, itemID, actorID uuid.UUID, reason string, at time.Time) (int, error)
	ListSwaps(ctx context.Context, filter models.SwapFilter) ([]models.SwapRequest, int, error)
	SwapStats(ctx context.Context) (*models.SwapStats, error)
}

// FavoriteRepository хранилище отметок «нравится»
type FavoriteRepository interface {
	ToggleFavorite(ctx context.Context, userID, itemID uuid.UUID) (liked bool, count int, err error)
	IsFavorite(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
}

// Repositories набор хранилищ, доступных внутри единицы работы
type Repositories interface {
	ItemRepository
	UserRepository
	SwapRepository
	FavoriteRepository
}

// UnitOfWork выполняет функцию в транзакции, охватывающей все хранилища.
// Ошибка из fn откатывает все изменения.
type UnitOfWork interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
