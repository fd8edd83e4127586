package controller

import (
	"sync"

	"github.com/gofiber/websocket/v2"
)

// ProgressHub fans campaign send progress out to connected admin
// websocket clients. Slow or dead clients are dropped on write error.
type ProgressHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{conns: make(map[*websocket.Conn]struct{})}
}

type ProgressEvent struct {
	CampaignID uint   `json:"campaign_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

func (h *ProgressHub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *ProgressHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

func (h *ProgressHub) Broadcast(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Handler keeps the connection open until the client goes away. The
// server never reads application data from progress sockets.
func (h *ProgressHub) Handler(conn *websocket.Conn) {
	h.Register(conn)
	defer func() {
		h.Unregister(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
