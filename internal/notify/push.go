package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	ChannelPush = "push"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// ErrNoSession - у пользователя нет открытого websocket-соединения
var ErrNoSession = errors.New("no active push session")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// PushMessage - сообщение, отправляемое клиенту по websocket
type PushMessage struct {
	Type  string        `json:"type"`
	Alert *models.Alert `json:"alert"`
}

// Hub хранит websocket-сессии пользователей и реализует канал push
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Channel() string { return ChannelPush }

// Send ставит уведомление в очередь всех сессий пользователя
func (h *Hub) Send(_ context.Context, alert *models.Alert) error {
	payload, err := json.Marshal(PushMessage{Type: "alert", Alert: alert})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := h.clients[alert.UserID]
	if len(sessions) == 0 {
		return ErrNoSession
	}
	queued := 0
	for c := range sessions {
		select {
		case c.send <- payload:
			queued++
		default:
		}
	}
	if queued == 0 {
		return errors.New("all push sessions are saturated")
	}
	return nil
}

// Sessions возвращает число открытых сессий пользователя
func (h *Hub) Sessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ServeWS переводит HTTP-соединение в websocket и регистрирует сессию
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	c := &client{conn: conn, userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.logger.WithField("user_id", c.userID).Debug("Push session opened")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := sessions[c]; !ok {
		return
	}
	delete(sessions, c)
	if len(sessions) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.logger.WithField("user_id", c.userID).Debug("Push session closed")
}

// readPump нужен только для ping/pong и обнаружения закрытия соединения
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close закрывает все сессии
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, sessions := range h.clients {
		for c := range sessions {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}
