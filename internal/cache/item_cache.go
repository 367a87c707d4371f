// Package cache кэширует карточки вещей в Redis. Кэш необязателен:
// без REDIS_ADDR используется Noop.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

const (
	itemKeyPrefix = "rewear:item:"
	dialTimeout   = 5 * time.Second
)

// ErrMiss вещи нет в кэше
var ErrMiss = errors.New("нет в кэше")

// ItemCache кэш карточек вещей
type ItemCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Item, error)
	Set(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

// NewClient подключается к Redis и проверяет соединение
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(dialCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ошибка подключения к redis: %w", err)
	}
	return client, nil
}

// RedisItemCache хранит вещи в JSON с ограниченным временем жизни
type RedisItemCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisItemCache создает кэш поверх клиента
func NewRedisItemCache(client *redis.Client, ttl time.Duration) *RedisItemCache {
	return &RedisItemCache{client: client, ttl: ttl}
}

func itemKey(id uuid.UUID) string {
	return itemKeyPrefix + id.String()
}

func (c *RedisItemCache) Get(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	data, err := c.client.Get(ctx, itemKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("ошибка чтения вещи %s из redis: %w", id, err)
	}

	var item models.Item
	if err := json.Unmarshal(data, &item); err != nil {
		_ = c.Delete(ctx, id)
		return nil, fmt.Errorf("ошибка разбора вещи %s из кэша: %w", id, err)
	}
	return &item, nil
}

func (c *RedisItemCache) Set(ctx context.Context, item *models.Item) error {
	if item == nil || item.ID == uuid.Nil {
		return errors.New("нельзя кэшировать вещь без ID")
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("ошибка сериализации вещи %s: %w", item.ID, err)
	}
	if err := c.client.Set(ctx, itemKey(item.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи вещи %s в redis: %w", item.ID, err)
	}
	return nil
}

func (c *RedisItemCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("ошибка удаления вещей из redis: %w", err)
	}
	return nil
}

// Noop кэш, который ничего не хранит
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (*models.Item, error) { return nil, ErrMiss }
func (Noop) Set(context.Context, *models.Item) error              { return nil }
func (Noop) Delete(context.Context, ...uuid.UUID) error           { return nil }
