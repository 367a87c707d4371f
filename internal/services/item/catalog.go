// Package item ведет каталог вещей: публикацию, редактирование, модерацию и выдачу.
package item

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/cache"
	"github.com/rajivgeraev/rewear-api/internal/metrics"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/notify"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// ImageStore удаляет изображения из внешнего хранилища
type ImageStore interface {
	DeleteImages(ctx context.Context, publicIDs []string) error
}

// Catalog операции над вещами
type Catalog struct {
	uow     repository.UnitOfWork
	images  ImageStore
	cache   cache.ItemCache
	events  notify.Emitter
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewCatalog создает каталог. images, itemCache и events могут быть nil.
func NewCatalog(uow repository.UnitOfWork, images ImageStore, itemCache cache.ItemCache, events notify.Emitter, m *metrics.Metrics, log *zap.Logger) *Catalog {
	if itemCache == nil {
		itemCache = cache.Noop{}
	}
	if events == nil {
		events = notify.Nop{}
	}
	return &Catalog{
		uow:     uow,
		images:  images,
		cache:   itemCache,
		events:  events,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Create публикует вещь. Новая вещь ждет модерации и не видна в каталоге.
func (c *Catalog) Create(ctx context.Context, ownerID uuid.UUID, in Input) (*models.Item, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	item := &models.Item{
		UserID:      ownerID,
		Status:      models.ItemStatusPending,
		IsAvailable: true,
	}
	in.apply(item)

	if err := c.uow.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	c.log.Info("✅ Вещь создана",
		zap.String("item_id", item.ID.String()),
		zap.String("user_id", ownerID.String()))
	return item, nil
}

// Get возвращает вещь и увеличивает счетчик просмотров.
// Карточка берется из кэша, поэтому views в ответе может отставать на время жизни кэша.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	if err := c.uow.IncrementViews(ctx, id); err != nil {
		return nil, err
	}

	item, err := c.cache.Get(ctx, id)
	if err == nil {
		c.metrics.CacheLookup(true)
		return item, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.log.Warn("⚠️ Ошибка чтения кэша вещей", zap.Error(err))
	}
	c.metrics.CacheLookup(false)

	item, err = c.uow.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, item); err != nil {
		c.log.Warn("⚠️ Не удалось закэшировать вещь", zap.Error(err))
	}
	return item, nil
}

// List возвращает одобренные и доступные вещи с фильтрами
func (c *Catalog) List(ctx context.Context, q Query) ([]models.Item, models.Pagination, error) {
	if err := q.normalize(); err != nil {
		return nil, models.Pagination{}, err
	}
	return c.list(ctx, models.ItemFilter{
		OnlyListed: true,
		Category:   q.Category,
		Size:       q.Size,
		Condition:  q.Condition,
		Search:     q.Search,
	}, q.Page, q.Limit)
}

// Featured возвращает избранные модератором вещи
func (c *Catalog) Featured(ctx context.Context, limit int) ([]models.Item, error) {
	_, limit = pageBounds(1, limit)
	items, _, err := c.uow.ListItems(ctx, models.ItemFilter{
		OnlyListed:   true,
		OnlyFeatured: true,
		Limit:        limit,
	})
	return items, err
}

// UserItems возвращает все вещи пользователя, включая неодобренные
func (c *Catalog) UserItems(ctx context.Context, ownerID uuid.UUID, status models.ItemStatus, page, limit int) ([]models.Item, models.Pagination, error) {
	if status != "" && !status.Valid() {
		return nil, models.Pagination{}, apperr.New(apperr.InvalidInput, "неизвестный статус %q", status)
	}
	page, limit = pageBounds(page, limit)
	return c.list(ctx, models.ItemFilter{OwnerID: &ownerID, Status: status}, page, limit)
}

// Liked возвращает вещи, отмеченные пользователем
func (c *Catalog) Liked(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Item, models.Pagination, error) {
	page, limit = pageBounds(page, limit)
	return c.list(ctx, models.ItemFilter{LikedBy: &userID}, page, limit)
}

// Pending возвращает вещи, ожидающие модерации
func (c *Catalog) Pending(ctx context.Context, page, limit int) ([]models.Item, models.Pagination, error) {
	page, limit = pageBounds(page, limit)
	return c.list(ctx, models.ItemFilter{Status: models.ItemStatusPending}, page, limit)
}

func (c *Catalog) list(ctx context.Context, filter models.ItemFilter, page, limit int) ([]models.Item, models.Pagination, error) {
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	items, total, err := c.uow.ListItems(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return items, models.NewPagination(page, limit, total), nil
}

// Update заменяет редактируемые поля. Правка владельцем возвращает вещь на модерацию.
// Вещь, участвующую в принятом обмене, редактировать нельзя.
func (c *Catalog) Update(ctx context.Context, id, userID uuid.UUID, admin bool, in Input) (*models.Item, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var item *models.Item
	var dropped []string
	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.UserID != userID && !admin {
			return apperr.New(apperr.Forbidden, "можно редактировать только свои вещи")
		}
		if !current.IsAvailable {
			return apperr.New(apperr.InvalidState, "вещь участвует в обмене")
		}

		kept := make(map[string]bool, len(in.Images))
		for _, img := range in.Images {
			kept[img.PublicID] = true
		}
		for _, publicID := range current.PublicIDs() {
			if !kept[publicID] {
				dropped = append(dropped, publicID)
			}
		}

		in.apply(current)
		if current.UserID == userID {
			current.Status = models.ItemStatusPending
			current.IsApproved = false
		}
		if err := repos.UpdateItem(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, id)
	c.deleteImages(ctx, dropped)
	return item, nil
}

// Delete удаляет вещь владельцем или администратором. Ожидающие запросы на обмен
// с этой вещью отменяются в той же транзакции; изображения удаляются после фиксации.
func (c *Catalog) Delete(ctx context.Context, id, userID uuid.UUID, admin bool) error {
	var publicIDs []string
	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if item.UserID != userID && !admin {
			return apperr.New(apperr.Forbidden, "можно удалять только свои вещи")
		}

		cancelled, err := repos.CancelPendingForItem(ctx, id, userID, "вещь удалена", c.now().UTC())
		if err != nil {
			return err
		}
		if cancelled > 0 {
			c.log.Info("Отменены запросы на удаленную вещь",
				zap.String("item_id", id.String()),
				zap.Int("count", cancelled))
		}

		publicIDs = item.PublicIDs()
		return repos.DeleteItem(ctx, id)
	})
	if err != nil {
		return err
	}

	c.log.Info("✅ Вещь удалена", zap.String("item_id", id.String()), zap.String("actor_id", userID.String()))
	c.invalidate(ctx, id)
	c.deleteImages(ctx, publicIDs)
	return nil
}

// Moderate применяет действие модератора. remove снимает вещь с публикации и
// отменяет ожидающие запросы, не удаляя историю.
func (c *Catalog) Moderate(ctx context.Context, id, adminID uuid.UUID, action AdminAction, notes string) (*models.Item, error) {
	if _, ok := actionNames[action]; !ok {
		return nil, apperr.New(apperr.InvalidInput, "неизвестное действие")
	}
	notes, err := bounded(notes, 0, maxAdminNotesLen, "notes")
	if err != nil {
		return nil, err
	}

	var item *models.Item
	err = c.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}

		switch action {
		case ActionApprove:
			current.Status = models.ItemStatusApproved
			current.IsApproved = true
			current.AdminNotes = notes
		case ActionReject:
			current.Status = models.ItemStatusRejected
			current.IsApproved = false
			current.AdminNotes = notes
		case ActionFeature:
			current.IsFeatured = true
		case ActionUnfeature:
			current.IsFeatured = false
		case ActionRemove:
			if _, err := repos.CancelPendingForItem(ctx, id, adminID, "вещь снята модератором", c.now().UTC()); err != nil {
				return err
			}
			current.Status = models.ItemStatusRemoved
			current.IsApproved = false
			current.IsFeatured = false
			current.IsAvailable = false
			current.AdminNotes = notes
		}

		if err := repos.UpdateItem(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("✅ Модерация вещи",
		zap.String("item_id", id.String()),
		zap.String("action", action.String()),
		zap.String("admin_id", adminID.String()))
	c.invalidate(ctx, id)

	if action.notifiesOwner() {
		itemID := item.ID
		c.events.Emit(notify.Event{
			Type:        notify.EventItemModerated,
			RecipientID: item.UserID,
			ActorID:     adminID,
			ItemID:      &itemID,
			Status:      string(item.Status),
			Message:     notes,
			OccurredAt:  c.now().UTC(),
		})
	}
	return item, nil
}

// Stats возвращает агрегированную статистику каталога
func (c *Catalog) Stats(ctx context.Context) (*models.ItemStats, error) {
	return c.uow.ItemStats(ctx)
}

func (c *Catalog) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if err := c.cache.Delete(ctx, ids...); err != nil {
		c.log.Warn("⚠️ Не удалось сбросить кэш вещей", zap.Error(err))
	}
}

// deleteImages удаляет изображения без влияния на результат операции
func (c *Catalog) deleteImages(ctx context.Context, publicIDs []string) {
	if c.images == nil || len(publicIDs) == 0 {
		return
	}
	if err := c.images.DeleteImages(ctx, publicIDs); err != nil {
		c.log.Warn("⚠️ Не удалось удалить изображения", zap.Strings("public_ids", publicIDs), zap.Error(err))
	}
}
