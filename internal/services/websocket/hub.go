// Package websocket pushes node stats to connected dashboard clients.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"vpanel/internal/services/monitor"
)

type Hub struct {
	monitor    *monitor.Monitor
	logger     zerolog.Logger
	interval   time.Duration
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

func NewHub(m *monitor.Monitor, logger zerolog.Logger, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Hub{
		monitor:    m,
		logger:     logger.With().Str("component", "stats-hub").Logger(),
		interval:   interval,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) Run() {
	go h.broadcastStats()

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) broadcastStats() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for range ticker.C {
		h.mutex.RLock()
		clientCount := len(h.clients)
		h.mutex.RUnlock()
		if clientCount == 0 {
			continue
		}

		data, err := json.Marshal(h.monitor.Stats())
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to encode stats")
			continue
		}
		h.broadcast <- data
	}
}

// Handle serves one dashboard websocket connection until it closes.
func (h *Hub) Handle(c *websocket.Conn) {
	h.register <- c
	defer func() { h.unregister <- c }()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
