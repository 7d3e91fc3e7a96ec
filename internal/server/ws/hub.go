// Package ws pushes market events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	replayLimit    = 1000
)

// Hub relays events from the signal bus to connected clients. Clients get
// protobuf binary frames by default and JSON text frames with ?format=json.
// A client may narrow delivery to some order ids with
// {"action":"subscribe","orders":[1,2]}; no ids means every order.
type Hub struct {
	bus      domain.SignalBus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	json bool

	mu     sync.RWMutex
	orders map[uint64]struct{}
}

type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Orders []uint64 `json:"orders"`
}

// NewHub creates a Hub. allowedOrigins empty accepts any origin.
func NewHub(bus domain.SignalBus, allowedOrigins []string, logger *slog.Logger) *Hub {
	h := &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Run relays bus events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, events.Channel)
	if err != nil {
		return err
	}
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			h.broadcast(ctx, payload)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, payload []byte) {
	ev, err := events.Decode(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "undecodable event", slog.String("error", err.Error()))
		return
	}
	var asJSON []byte
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.OrderID) {
			continue
		}
		frame := payload
		if c.json {
			if asJSON == nil {
				asJSON = jsonFrame(ev)
			}
			frame = asJSON
		}
		select {
		case c.send <- frame:
		default:
			h.logger.WarnContext(ctx, "dropping event for slow client", slog.String("event", string(ev.Type)))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// HandleWS upgrades the request. ?since=<stream id> first replays the
// stored events after that id.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		json:   r.URL.Query().Get("format") == "json",
		orders: make(map[uint64]struct{}),
	}
	for _, s := range r.URL.Query()["order"] {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil {
			c.orders[id] = struct{}{}
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		h.replay(r.Context(), c, since)
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("clients", total))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) replay(ctx context.Context, c *client, since string) {
	msgs, err := h.bus.StreamRead(ctx, events.Stream, since, replayLimit)
	if err != nil {
		h.logger.WarnContext(ctx, "replay failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		ev, err := events.Decode(m.Payload)
		if err != nil || !c.wants(ev.OrderID) {
			continue
		}
		frame := m.Payload
		if c.json {
			frame = jsonFrame(ev)
		}
		select {
		case c.send <- frame:
		default:
			return
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", slog.Int("clients", total))
}

// ClientCount reports the connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) wants(orderID uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.orders) == 0 {
		return true
	}
	_, ok := c.orders[orderID]
	return ok
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		c.mu.Lock()
		for _, id := range msg.Orders {
			switch msg.Action {
			case "subscribe":
				c.orders[id] = struct{}{}
			case "unsubscribe":
				delete(c.orders, id)
			}
		}
		c.mu.Unlock()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	kind := websocket.BinaryMessage
	if c.json {
		kind = websocket.TextMessage
	}
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(kind, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type eventJSON struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	OrderID uint64         `json:"order_id"`
	Actor   string         `json:"actor"`
	Medium  string         `json:"medium"`
	Amount  string         `json:"amount,omitempty"`
	At      time.Time      `json:"at"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func jsonFrame(ev domain.Event) []byte {
	out := eventJSON{
		ID:      ev.ID,
		Type:    string(ev.Type),
		OrderID: ev.OrderID,
		Actor:   ev.Actor.Hex(),
		Medium:  ev.Medium.Hex(),
		At:      ev.At,
		Detail:  ev.Detail,
	}
	if ev.Amount != nil {
		out.Amount = ev.Amount.String()
	}
	b, _ := json.Marshal(out)
	return b
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
