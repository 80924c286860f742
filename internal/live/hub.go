// Package live pushes tracking events to WebSocket subscribers of a document.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Event struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	SessionID  string    `json:"session_id,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	TimeSpent  int       `json:"time_spent,omitempty"`
	Completed  bool      `json:"completed,omitempty"`
	At         time.Time `json:"at"`
}

const writeWait = 5 * time.Second

type Hub struct {
	mu       sync.Mutex
	clients  map[string]map[*websocket.Conn]struct{}
	ch       chan Event
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: map[string]map[*websocket.Conn]struct{}{},
		ch:      make(chan Event, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run delivers queued events until ctx is cancelled. It is the only writer
// on subscriber connections.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case event := <-h.ch:
			for _, conn := range h.subscribers(event.DocumentID) {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					h.Remove(event.DocumentID, conn)
					_ = conn.Close()
				}
			}
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Broadcast never blocks; events are dropped when the queue is full.
func (h *Hub) Broadcast(event Event) {
	if h == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case h.ch <- event:
	default:
		h.logger.Debug("live event dropped", slog.String("document_id", event.DocumentID))
	}
}

func (h *Hub) Add(documentID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[documentID]
	if !ok {
		set = map[*websocket.Conn]struct{}{}
		h.clients[documentID] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) Remove(documentID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[documentID]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.clients, documentID)
	}
}

func (h *Hub) Subscribers(documentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[documentID])
}

func (h *Hub) subscribers(documentID string) []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(h.clients[documentID]))
	for conn := range h.clients[documentID] {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.clients {
		for conn := range set {
			_ = conn.Close()
		}
		delete(h.clients, id)
	}
}

// Serve upgrades the request and keeps the subscription open until the
// client disconnects. Authorization happens before Serve is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, documentID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.Add(documentID, conn)
	defer func() {
		h.Remove(documentID, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
