// Package websocket streams live position risk to subscribed clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Message types sent to clients
const (
	TypePositionRisk          = "position_risk"
	TypeSubscriptionConfirmed = "subscription_confirmed"
	TypeUnsubscribed          = "unsubscription_confirmed"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// Evaluator computes the current risk of one position. A nil report with a
// nil error means the position is not live and is skipped.
type Evaluator interface {
	EvaluatePosition(ctx context.Context, positionID string) (*models.RiskReport, error)
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, positionID string) (*models.RiskReport, error)

// EvaluatePosition implements Evaluator
func (f EvaluatorFunc) EvaluatePosition(ctx context.Context, positionID string) (*models.RiskReport, error) {
	return f(ctx, positionID)
}

// MetricsRecorder observes the number of connected clients
type MetricsRecorder interface {
	SetWebsocketClients(n int)
}

// Message represents a WebSocket message
type Message struct {
	Type       string      `json:"type"`
	PositionID string      `json:"positionId,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	ID         string      `json:"id,omitempty"`
}

// SubscriptionMessage is sent by clients
type SubscriptionMessage struct {
	Type      string   `json:"type"`
	Positions []string `json:"positions"`
	ID        string   `json:"id,omitempty"`
}

// Hub maintains the set of active clients and pushes position risk to them
type Hub struct {
	clients       map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	done          chan struct{}
	subscriptions map[string]map[*Client]bool // position id -> clients
	evaluator     Evaluator
	interval      time.Duration
	refreshing    atomic.Bool
	clientCount   atomic.Int64
	metrics       MetricsRecorder
	upgrader      websocket.Upgrader
	log           *logger.Logger
	mu            sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	id            string
	subscriptions map[string]bool
	closed        bool
	mu            sync.Mutex
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// DefaultRefreshInterval is how often subscribed positions are re-evaluated
	DefaultRefreshInterval = 5 * time.Second
)

// NewHub creates a new WebSocket hub. A non-positive interval selects DefaultRefreshInterval.
func NewHub(evaluator Evaluator, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		subscriptions: make(map[string]map[*Client]bool),
		evaluator:     evaluator,
		interval:      interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.GetLogger("websocket.hub"),
	}
}

// WithMetrics attaches a metrics recorder
func (h *Hub) WithMetrics(m MetricsRecorder) *Hub {
	h.metrics = m
	return h
}

// WithOriginCheck restricts accepted upgrade origins
func (h *Hub) WithOriginCheck(check func(r *http.Request) bool) *Hub {
	if check != nil {
		h.upgrader.CheckOrigin = check
	}
	return h
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer close(h.done)

	h.log.Infof("Starting WebSocket hub, refresh every %v", h.interval)

	for {
		select {
		case <-ctx.Done():
			h.log.Infof("WebSocket hub shutting down")
			for client := range h.clients {
				client.close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.log.Infof("Client %s registered", client.id)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.removeClientSubscriptions(client)
				h.setCount(len(h.clients))
				h.log.Infof("Client %s unregistered", client.id)
			}

		case <-ticker.C:
			if h.refreshing.CompareAndSwap(false, true) {
				go func() {
					defer h.refreshing.Store(false)
					h.Refresh(ctx)
				}()
			}
		}
	}
}

func (h *Hub) setCount(n int) {
	h.clientCount.Store(int64(n))
	if h.metrics != nil {
		h.metrics.SetWebsocketClients(n)
	}
}

// HandleWebSocket handles WebSocket upgrade and client management
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            uuid.NewString(),
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(context.WithoutCancel(r.Context()))
}

// Refresh re-evaluates every subscribed position once and pushes the reports
func (h *Hub) Refresh(ctx context.Context) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subscriptions))
	for id := range h.subscriptions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		msg, ok := h.evaluate(ctx, id, "")
		if !ok {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.log.Errorf("Failed to marshal risk update: %v", err)
			continue
		}
		for _, client := range h.subscribers(id) {
			client.enqueue(data)
		}
	}
}

func (h *Hub) evaluate(ctx context.Context, positionID, requestID string) (Message, bool) {
	report, err := h.evaluator.EvaluatePosition(ctx, positionID)
	if err != nil {
		h.log.Warnf("Failed to evaluate position %s: %v", positionID, err)
		return Message{Type: TypeError, PositionID: positionID, Error: err.Error(), ID: requestID}, true
	}
	if report == nil {
		return Message{}, false
	}
	return Message{Type: TypePositionRisk, PositionID: positionID, Data: report, ID: requestID}, true
}

func (h *Hub) subscribers(positionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.subscriptions[positionID]))
	for client := range h.subscriptions[positionID] {
		clients = append(clients, client)
	}
	return clients
}

// removeClientSubscriptions removes all subscriptions for a client
func (h *Hub) removeClientSubscriptions(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	defer client.mu.Unlock()
	for id := range client.subscriptions {
		if clients, exists := h.subscriptions[id]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.subscriptions, id)
			}
		}
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("WebSocket error: %v", err)
			}
			return
		}
		c.handleMessage(ctx, data)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage handles incoming messages from the client
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg SubscriptionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("Invalid message format", "")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.handleSubscription(ctx, msg)
	case "unsubscribe":
		c.handleUnsubscription(msg)
	case "ping":
		c.sendMessage(Message{Type: TypePong, ID: msg.ID})
	default:
		c.sendError("Unknown message type", msg.ID)
	}
}

// handleSubscription registers the positions and pushes their current risk
func (c *Client) handleSubscription(ctx context.Context, msg SubscriptionMessage) {
	if len(msg.Positions) == 0 {
		c.sendError("No positions given", msg.ID)
		return
	}

	c.hub.mu.Lock()
	c.mu.Lock()
	for _, id := range msg.Positions {
		c.subscriptions[id] = true
		if c.hub.subscriptions[id] == nil {
			c.hub.subscriptions[id] = make(map[*Client]bool)
		}
		c.hub.subscriptions[id][c] = true
	}
	c.mu.Unlock()
	c.hub.mu.Unlock()

	c.sendMessage(Message{
		Type: TypeSubscriptionConfirmed,
		Data: map[string]interface{}{"positions": msg.Positions},
		ID:   msg.ID,
	})

	for _, id := range msg.Positions {
		if update, ok := c.hub.evaluate(ctx, id, msg.ID); ok {
			c.sendMessage(update)
		}
	}
}

// handleUnsubscription handles unsubscription requests
func (c *Client) handleUnsubscription(msg SubscriptionMessage) {
	c.hub.mu.Lock()
	c.mu.Lock()
	for _, id := range msg.Positions {
		delete(c.subscriptions, id)
		if clients, exists := c.hub.subscriptions[id]; exists {
			delete(clients, c)
			if len(clients) == 0 {
				delete(c.hub.subscriptions, id)
			}
		}
	}
	c.mu.Unlock()
	c.hub.mu.Unlock()

	c.sendMessage(Message{
		Type: TypeUnsubscribed,
		Data: map[string]interface{}{"positions": msg.Positions},
		ID:   msg.ID,
	})
}

// sendMessage sends a message to the client
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Errorf("Failed to marshal message: %v", err)
		return
	}
	c.enqueue(data)
}

// sendError sends an error message to the client
func (c *Client) sendError(errorMsg, requestID string) {
	c.sendMessage(Message{Type: TypeError, Error: errorMsg, ID: requestID})
}

// enqueue queues data for the write pump. A client whose buffer is full is
// disconnected.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.hub.log.Warnf("Client %s is too slow, disconnecting", c.id)
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
