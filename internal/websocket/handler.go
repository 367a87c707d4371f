package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mini App открывается с домена Telegram, origin не проверяется
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler принимает подключения на /ws. Токен передается в ?token= или в заголовке Authorization.
func (m *Manager) Handler(jwtService *utils.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Требуется токен авторизации")
			return
		}

		userID, _, err := jwtService.ExtractUserID(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Невалидный токен")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade уже ответил клиенту
			m.log.Warn("⚠️ Ошибка upgrade WebSocket", zap.Error(err))
			return
		}

		client := NewClient(userID, conn, m)
		client.Start()

		data, _ := json.Marshal(Message{Type: MessageConnected, UserID: userID.String(), Timestamp: time.Now()})
		client.enqueue(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": "unauthorized"})
}
