package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/goroutine"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
)

// Hub управляет всеми WebSocket клиентами.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	admins     map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
}

type message struct {
	userID  uuid.UUID
	admins  bool
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		admins:     make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл хаба до отмены контекста.
// После выхода Register и Unregister больше не блокируются.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish отправляет сохранённое уведомление адресату или всем подключённым администраторам.
// Если очередь хаба заполнена, уведомление остаётся только в БД.
func (h *Hub) Publish(n *models.Notification) {
	payload := map[string]any{
		"type": n.Type,
		"data": n,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Log.WithError(err).Warn("ws: не удалось сериализовать уведомление")
		return
	}

	msg := message{admins: n.Audience == models.AudienceAdmins, payload: raw}
	if n.UserID != nil {
		msg.userID = *n.UserID
	}

	select {
	case h.broadcast <- msg:
	default:
		metrics.Escrow().ObserveSideEffectFailure("ws_publish")
		logger.Log.WithField("notification_id", n.ID).Warn("ws: очередь хаба заполнена, уведомление не отправлено")
	}
}

// Online число подключённых клиентов пользователя.
func (h *Hub) Online(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
	if client.admin {
		h.admins[client] = struct{}{}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
	delete(h.admins, client)
}

func (h *Hub) send(msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients[msg.userID]
	if msg.admins {
		targets = h.admins
	}
	for client := range targets {
		select {
		case client.send <- msg.payload:
		default:
			// Медленный клиент: закрываем вне блокировки хаба
			c := client
			goroutine.SafeGo(c.Close)
		}
	}
}
