package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// WebSocketServer handles WebSocket connections for streaming ranking
// snapshots as they refresh.
type WebSocketServer struct {
	addr     string
	logger   *logging.Logger
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	// Ranking updates channel
	updates chan *engine.Ranking

	// Server control
	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn              *websocket.Conn
	send              chan []byte
	server            *WebSocketServer
	subscribedAll     bool
	subscribedPeriods map[model.Period]bool
	mu                sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type    string   `json:"type"`    // "subscribe", "unsubscribe", "ping"
	Periods []string `json:"periods"` // List of periods to subscribe to
}

// RankingUpdateMessage is sent to clients when a ranking refreshes.
type RankingUpdateMessage struct {
	Type      string               `json:"type"` // "ranking_update"
	Period    string               `json:"period"`
	Scope     string               `json:"scope"`
	Timestamp string               `json:"timestamp"` // ISO 8601 timestamp
	Freshness engine.FreshnessInfo `json:"freshness"`
	Records   []model.AssetRecord  `json:"records"`
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(addr string, logger *logging.Logger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketServer{
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Allow all origins (configure CORS as needed)
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan *engine.Ranking, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the WebSocket server.
func (s *WebSocketServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start broadcast goroutine
	go s.broadcastUpdates()

	s.logger.Info("Starting WebSocket server", "addr", s.addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server error", "error", err)
		}
	}()

	// Wait for context cancellation
	<-s.ctx.Done()

	// Graceful shutdown with timeout based on parent context
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Stop stops the WebSocket server.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// SendUpdate sends a ranking snapshot to all connected clients.
func (s *WebSocketServer) SendUpdate(ranking *engine.Ranking) {
	select {
	case s.updates <- ranking:
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping ranking update")
	}
}

// handleWebSocket handles new WebSocket connections.
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:              conn,
		send:              make(chan []byte, 256),
		server:            s,
		subscribedAll:     true, // Subscribe to all by default
		subscribedPeriods: make(map[model.Period]bool),
	}

	s.registerClient(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr())
}

// registerClient adds a client to the server.
func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

// unregisterClient removes a client from the server.
func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

// broadcastUpdates broadcasts ranking updates to all clients.
func (s *WebSocketServer) broadcastUpdates() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ranking := <-s.updates:
			s.broadcast(ranking)
		}
	}
}

// broadcast sends a ranking update to all subscribed clients.
func (s *WebSocketServer) broadcast(ranking *engine.Ranking) {
	if ranking == nil || len(ranking.Records) == 0 {
		return
	}

	message := RankingUpdateMessage{
		Type:      "ranking_update",
		Period:    string(ranking.Period),
		Scope:     ranking.Scope,
		Timestamp: time.Now().Format(time.RFC3339),
		Freshness: ranking.Freshness,
		Records:   ranking.Records,
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal ranking update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(ranking.Period) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes client messages.
func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Periods)
	case "unsubscribe":
		c.unsubscribe(msg.Periods)
	case "ping":
		c.sendPong()
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

// subscribe subscribes to specific periods.
func (c *WebSocketClient) subscribe(periods []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(periods) == 0 || (len(periods) == 1 && periods[0] == "*") {
		c.subscribedAll = true
		c.subscribedPeriods = make(map[model.Period]bool)
	} else {
		c.subscribedAll = false
		for _, raw := range periods {
			period, err := model.ParsePeriod(raw)
			if err != nil {
				c.server.logger.Warn("Ignoring unknown period in subscription", "period", raw)
				continue
			}
			c.subscribedPeriods[period] = true
		}
	}

	c.server.logger.Debug("Client subscribed", "periods", periods)
}

// unsubscribe unsubscribes from specific periods.
func (c *WebSocketClient) unsubscribe(periods []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(periods) == 0 || (len(periods) == 1 && periods[0] == "*") {
		c.subscribedAll = false
		c.subscribedPeriods = make(map[model.Period]bool)
	} else {
		for _, raw := range periods {
			delete(c.subscribedPeriods, model.Period(raw))
		}
	}

	c.server.logger.Debug("Client unsubscribed", "periods", periods)
}

// shouldReceive checks if client should receive this ranking update.
func (c *WebSocketClient) shouldReceive(period model.Period) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subscribedAll {
		return true
	}
	return c.subscribedPeriods[period]
}

// sendPong sends a pong response.
func (c *WebSocketClient) sendPong() {
	pong := map[string]string{"type": "pong"}
	data, _ := json.Marshal(pong)
	select {
	case c.send <- data:
	default:
	}
}
