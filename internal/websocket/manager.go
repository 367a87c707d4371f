// Package websocket доставляет события обменов пользователям, которые сейчас онлайн.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/notify"
)

// MessageType тип сообщения, отправляемого клиенту
type MessageType string

const (
	MessageConnected    MessageType = "connected"
	MessageNotification MessageType = "notification"
	MessagePong         MessageType = "pong"
)

// Message конверт сообщения WebSocket
type Message struct {
	Type      MessageType   `json:"type"`
	UserID    string        `json:"user_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Event     *notify.Event `json:"event,omitempty"`
}

// Manager хранит соединения, сгруппированные по пользователям
type Manager struct {
	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	userClients  map[uuid.UUID]map[uuid.UUID]bool // userID -> map[clientID]bool
	userMutex    sync.RWMutex
	log          *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

var _ notify.Notifier = (*Manager)(nil)

// NewManager создает новый экземпляр Manager
func NewManager(log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]bool),
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	if _, exists := m.userClients[client.UserID]; !exists {
		m.userClients[client.UserID] = make(map[uuid.UUID]bool)
	}
	m.userClients[client.UserID][client.ID] = true
	m.userMutex.Unlock()

	m.log.Info("✅ WebSocket клиент подключен",
		zap.String("client_id", client.ID.String()),
		zap.String("user_id", client.UserID.String()))
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	client, exists := m.clients[clientID]
	delete(m.clients, clientID)
	m.clientsMutex.Unlock()

	if !exists {
		return
	}

	m.userMutex.Lock()
	if clients, ok := m.userClients[client.UserID]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(m.userClients, client.UserID)
		}
	}
	m.userMutex.Unlock()

	m.log.Info("WebSocket клиент отключен",
		zap.String("client_id", clientID.String()),
		zap.String("user_id", client.UserID.String()))
}

// Online возвращает число открытых соединений пользователя
func (m *Manager) Online(userID uuid.UUID) int {
	m.userMutex.RLock()
	defer m.userMutex.RUnlock()
	return len(m.userClients[userID])
}

// SendToUser отправляет сообщение всем соединениям пользователя и возвращает число получателей
func (m *Manager) SendToUser(userID uuid.UUID, msg Message) int {
	if userID == uuid.Nil {
		return 0
	}

	m.userMutex.RLock()
	clientIDs := make([]uuid.UUID, 0, len(m.userClients[userID]))
	for id := range m.userClients[userID] {
		clientIDs = append(clientIDs, id)
	}
	m.userMutex.RUnlock()

	if len(clientIDs) == 0 {
		return 0
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		m.log.Error("❌ Ошибка сериализации сообщения", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, clientID := range clientIDs {
		m.clientsMutex.RLock()
		client, exists := m.clients[clientID]
		m.clientsMutex.RUnlock()
		if !exists {
			continue
		}

		if client.enqueue(data) {
			delivered++
			continue
		}

		// Канал заполнен, клиент не успевает читать
		m.log.Warn("⚠️ Очередь клиента переполнена, соединение закрывается",
			zap.String("client_id", client.ID.String()))
		client.close()
		m.RemoveClient(client.ID)
	}
	return delivered
}

// Notify отправляет событие получателю, если он онлайн.
// Отсутствие соединений ошибкой не считается.
func (m *Manager) Notify(ctx context.Context, event notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.SendToUser(event.RecipientID, Message{
		Type:      MessageNotification,
		UserID:    event.RecipientID.String(),
		Timestamp: event.OccurredAt,
		Event:     &event,
	})
	return nil
}

// Shutdown закрывает все соединения
func (m *Manager) Shutdown() {
	m.cancel()

	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	m.userClients = make(map[uuid.UUID]map[uuid.UUID]bool)
	m.userMutex.Unlock()
}

// Done закрывается после Shutdown
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}
