// Package overlay bridges presentation events to websocket clients so a
// browser or a second screen can render the overlay without the desktop
// shell.
package overlay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // overlay clients are local
	},
}

// Envelope is the wire format of every message sent to clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    time.Time       `json:"at"`
}

// Command is a message received from a client, e.g. {"command":"dismiss"}.
type Command struct {
	Command string `json:"command"`
}

// Hub fans events out to connected clients. Sticky events are replayed to
// clients that connect later.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]bool
	sticky    []string
	last      map[string][]byte
	onCommand func(string)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub. The latest payload of each sticky event is kept
// and sent to new clients.
func NewHub(sticky ...string) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		sticky:  sticky,
		last:    make(map[string][]byte),
	}
}

// OnCommand sets the handler for client commands.
func (h *Hub) OnCommand(fn func(command string)) {
	h.mu.Lock()
	h.onCommand = fn
	h.mu.Unlock()
}

// Handler returns the HTTP routes: /ws for the event stream and /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Emit broadcasts an event to all clients. Slow clients miss messages
// rather than block the caller.
func (h *Hub) Emit(name string, data any) {
	msg, err := encode(name, data)
	if err != nil {
		slog.Error("encode overlay event", "event", name, "error", err)
		return
	}

	h.mu.Lock()
	if slices.Contains(h.sticky, name) {
		h.last[name] = msg
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slog.Debug("overlay client buffer full", "event", name)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func encode(name string, data any) ([]byte, error) {
	env := Envelope{Event: name, At: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade overlay connection", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: h}

	h.mu.Lock()
	for _, name := range h.sticky {
		if msg, ok := h.last[name]; ok {
			c.send <- msg
		}
	}
	h.clients[c] = true
	h.mu.Unlock()

	slog.Debug("overlay client connected", "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) dispatch(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Command == "" {
		slog.Debug("drop overlay message", "error", err)
		return
	}

	h.mu.RLock()
	fn := h.onCommand
	h.mu.RUnlock()
	if fn != nil {
		fn(cmd.Command)
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("read overlay message", "error", err)
			}
			return
		}
		c.hub.dispatch(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
