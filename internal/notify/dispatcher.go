package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/metrics"
)

// Sink именованный канал доставки
type Sink struct {
	Name     string
	Notifier Notifier
}

// Dispatcher раздает события по каналам в фоновой горутине.
// Очередь ограничена: при переполнении событие отбрасывается с записью в лог.
type Dispatcher struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	sinks   []Sink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewDispatcher создает диспетчер. timeout ограничивает доставку в каждый канал.
func NewDispatcher(log *zap.Logger, m *metrics.Metrics, buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		log:     log,
		metrics: m,
		sinks:   sinks,
		timeout: timeout,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
}

// Start запускает обработчик очереди
func (d *Dispatcher) Start() {
	go d.run()
}

// Emit ставит событие в очередь и сразу возвращает управление
func (d *Dispatcher) Emit(event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("⚠️ Диспетчер остановлен, событие отброшено", zap.String("type", string(event.Type)))
		d.metrics.NotificationDropped()
		return
	}

	select {
	case d.queue <- event:
	default:
		d.log.Warn("⚠️ Очередь уведомлений переполнена, событие отброшено",
			zap.String("type", string(event.Type)),
			zap.String("recipient_id", event.RecipientID.String()))
		d.metrics.NotificationDropped()
	}
}

// Close прекращает прием событий и ждет доставки уже поставленных в очередь
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return sink.Notifier.Notify(ctx, event)
	}()

	if err != nil {
		d.log.Error("❌ Ошибка доставки уведомления",
			zap.String("channel", sink.Name),
			zap.String("type", string(event.Type)),
			zap.String("recipient_id", event.RecipientID.String()),
			zap.Error(err))
		d.metrics.NotificationFailed(sink.Name)
		return
	}
	d.metrics.NotificationSent(sink.Name)
}
