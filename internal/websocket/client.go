package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Максимальное время ожидания для pong от клиента
	pongWait = 60 * time.Second

	// Отправлять ping-сообщения клиенту с этим интервалом
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second

	// Клиент только слушает, входящие сообщения короткие
	maxMessageSize = 4 * 1024

	// Размер буфера для отправляемых сообщений
	sendBufferSize = 64
)

// Client отдельное WebSocket соединение пользователя
type Client struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	manager *Manager
	log     *zap.Logger

	closeOnce sync.Once
	closeChan chan struct{}
}

// NewClient создает новый экземпляр Client
func NewClient(userID uuid.UUID, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:        uuid.New(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		manager:   manager,
		log:       manager.log,
		closeChan: make(chan struct{}),
	}
}

// Start регистрирует клиента и запускает горутины чтения и записи
func (c *Client) Start() {
	c.manager.AddClient(c)

	go c.readPump()
	go c.writePump()
}

// enqueue ставит сообщение в очередь без блокировки
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.closeChan:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.manager.RemoveClient(c.ID)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("⚠️ Неожиданное закрытие соединения", zap.Error(err))
			}
			return
		}
		c.handleIncomingMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("⚠️ Ошибка записи в WebSocket", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleIncomingMessage отвечает на ping приложения, остальное игнорируется
func (c *Client) handleIncomingMessage(message []byte) {
	var in struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Debug("Некорректное сообщение от клиента", zap.Error(err))
		return
	}

	switch in.Type {
	case "ping":
		data, _ := json.Marshal(Message{Type: MessagePong, UserID: c.UserID.String(), Timestamp: time.Now()})
		c.enqueue(data)
	default:
		c.log.Debug("Необработанный тип сообщения", zap.String("type", in.Type))
	}
}
