package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/config"
)

const (
	connectWait   = 5 * time.Second
	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

// Connect подключается к NATS с переподключением
func Connect(cfg config.NATSConfig, name string, log *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(connectWait),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("⚠️ Соединение с NATS потеряно", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("✅ Переподключение к NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("Соединение с NATS закрыто")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к NATS %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// Subject возвращает тему NATS для типа события
func Subject(prefix string, t EventType) string {
	return prefix + "." + string(t)
}

// Publisher публикует события в NATS в формате JSON
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher создает публикатор поверх установленного соединения
func NewPublisher(conn *nats.Conn, prefix string) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("соединение NATS не может быть nil")
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

// Notify публикует событие в тему <prefix>.<type>
func (p *Publisher) Notify(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", event.Type, err)
	}

	subject := Subject(p.prefix, event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("ошибка публикации в %s: %w", subject, err)
	}
	return nil
}

// Subscribe подписывает обработчик на все события с префиксом в группе очереди.
// Ошибки обработчика логируются; повторная доставка не выполняется.
func Subscribe(conn *nats.Conn, prefix, queue string, handler Notifier, timeout time.Duration, log *zap.Logger) (*nats.Subscription, error) {
	return conn.QueueSubscribe(prefix+".>", queue, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Error("❌ Не удалось разобрать событие", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := handler.Notify(ctx, event); err != nil {
			log.Error("❌ Ошибка обработки события",
				zap.String("subject", msg.Subject),
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
		}
	})
}
