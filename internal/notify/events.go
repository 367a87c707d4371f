// Package notify доставляет события жизненного цикла обменов во внешние каналы:
// очередь NATS для почтового notifier и websocket для пользователей онлайн.
// Доставка асинхронная и никогда не влияет на результат вызывающей операции.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType тип события
type EventType string

const (
	EventSwapCreated   EventType = "swap.created"
	EventSwapResponded EventType = "swap.responded"
	EventSwapCancelled EventType = "swap.cancelled"
	EventSwapCompleted EventType = "swap.completed"
	EventPointsEarned  EventType = "points.earned"
	EventItemModerated EventType = "item.moderated"
)

// AllEventTypes перечисляет все типы событий
var AllEventTypes = []EventType{
	EventSwapCreated,
	EventSwapResponded,
	EventSwapCancelled,
	EventSwapCompleted,
	EventPointsEarned,
	EventItemModerated,
}

// Event событие для одного получателя
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Type        EventType  `json:"type"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	ActorID     uuid.UUID  `json:"actor_id,omitempty"`
	SwapID      *uuid.UUID `json:"swap_id,omitempty"`
	ItemID      *uuid.UUID `json:"item_id,omitempty"`
	Status      string     `json:"status,omitempty"`
	Points      int        `json:"points,omitempty"`
	Message     string     `json:"message,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// Notifier канал доставки событий
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc позволяет использовать функцию как Notifier
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Emitter принимает события без блокировки. Результат доставки вызывающему не сообщается.
type Emitter interface {
	Emit(event Event)
}

// Nop отбрасывает все события
type Nop struct{}

func (Nop) Emit(Event) {}
