package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"hireprep-server/pkg/analysis"
	"hireprep-server/pkg/metrics"
)

// MetricsMessage is one live analysis snapshot pushed to dashboards.
type MetricsMessage struct {
	SessionID string           `json:"session_id"`
	Metrics   analysis.Metrics `json:"metrics"`
	Timestamp time.Time        `json:"timestamp"`
}

// wsClient is one connected dashboard.
type wsClient struct {
	hub       *MetricsHub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string // non-empty when subscribed to a single session
}

// MetricsHub fans live analysis snapshots out to websocket clients. Clients
// may subscribe to one session via the session_id query parameter or
// receive every session's snapshots.
type MetricsHub struct {
	logger      *logrus.Entry
	clients     map[*wsClient]bool
	subscribers map[string]map[*wsClient]bool
	broadcast   chan *MetricsMessage
	register    chan *wsClient
	unregister  chan *wsClient
	mutex       sync.RWMutex
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMetricsHub creates a metrics hub.
func NewMetricsHub(logger *logrus.Logger) *MetricsHub {
	return &MetricsHub{
		logger:      logger.WithField("component", "metrics_hub"),
		clients:     make(map[*wsClient]bool),
		subscribers: make(map[string]map[*wsClient]bool),
		broadcast:   make(chan *MetricsMessage, 64),
		register:    make(chan *wsClient),
		unregister:  make(chan *wsClient),
	}
}

// Run pumps registrations and broadcasts until the context ends.
func (h *MetricsHub) Run(ctx context.Context) {
	h.logger.Info("Starting metrics websocket hub")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down metrics websocket hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			if client.sessionID != "" {
				if _, exists := h.subscribers[client.sessionID]; !exists {
					h.subscribers[client.sessionID] = make(map[*wsClient]bool)
				}
				h.subscribers[client.sessionID][client] = true
			}
			h.mutex.Unlock()
			metrics.WSClientsConnected.Inc()
			h.logger.WithField("session_id", client.sessionID).Info("Dashboard client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.dropClient(client)
			h.mutex.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal metrics message")
				continue
			}

			h.mutex.Lock()
			if subs, exists := h.subscribers[message.SessionID]; exists {
				for client := range subs {
					h.trySend(client, data)
				}
			}
			for client := range h.clients {
				if client.sessionID != "" {
					continue
				}
				h.trySend(client, data)
			}
			h.mutex.Unlock()
		}
	}
}

// trySend delivers without blocking; a client that cannot keep up is dropped.
// Caller holds the write lock.
func (h *MetricsHub) trySend(client *wsClient, data []byte) {
	select {
	case client.send <- data:
	default:
		h.dropClient(client)
	}
}

// dropClient removes a client from all indexes. Caller holds the write lock.
func (h *MetricsHub) dropClient(client *wsClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if client.sessionID != "" {
		if subs, exists := h.subscribers[client.sessionID]; exists {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscribers, client.sessionID)
			}
		}
	}
	metrics.WSClientsConnected.Dec()
	h.logger.Info("Dashboard client disconnected")
}

// BroadcastMetrics queues one snapshot for delivery. Never blocks; snapshots
// are dropped when the hub is saturated.
func (h *MetricsHub) BroadcastMetrics(sessionID string, snapshot analysis.Metrics) {
	message := &MetricsMessage{
		SessionID: sessionID,
		Metrics:   snapshot,
		Timestamp: time.Now(),
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Metrics broadcast queue full, dropping snapshot")
	}
}

// ClientCount reports the number of connected dashboards.
func (h *MetricsHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWs upgrades a dashboard connection and registers it with the hub.
func (h *MetricsHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade metrics websocket")
		return
	}

	client := &wsClient{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: r.URL.Query().Get("session_id"),
	}

	h.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and unregisters on disconnect.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
