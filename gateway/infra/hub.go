package infra

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub mantém clientes WebSocket do dashboard e faz broadcast de eventos
// (snapshots de métricas, alertas). Cada cliente tem fila própria e um
// escritor dedicado; Broadcast nunca espera pela rede.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]chan []byte
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// sendQueue é quantos eventos um cliente lento pode acumular antes de
// começar a perder mensagens.
const sendQueue = 16

// Event é o envelope enviado aos clientes.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			// dashboard local
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP faz o upgrade e registra o cliente até ele desconectar.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan []byte, sendQueue)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	go h.writeLoop(conn, send)
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for payload := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
			// a goroutine de leitura remove o cliente
			_ = conn.Close()
			for range send {
			}
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// Broadcast enfileira o evento para todos os clientes. Cliente com a fila
// cheia perde o evento.
func (h *Hub) Broadcast(typ string, data any) {
	payload, err := json.Marshal(Event{Type: typ, Data: data})
	if err != nil {
		h.log.Warn("websocket marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			h.log.Debug("websocket client lagging, event dropped",
				zap.String("remote", conn.RemoteAddr().String()), zap.String("type", typ))
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
