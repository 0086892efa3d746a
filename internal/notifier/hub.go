package notifier

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
)

// Event is one incident-lifecycle notification pushed to observers.
type Event struct {
	GuildID string      `json:"guild_id"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

const (
	writeWait         = 5 * time.Second
	pingPeriod        = 30 * time.Second
	sendBuffer        = 32
	heartbeatInterval = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans incident events out to connected websocket observers. Publish
// never blocks: when the hub or a client falls behind, events are dropped
// rather than stalling the response pipeline.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	events    chan Event
	heartbeat func()
	stop      chan struct{}
	once      sync.Once
	wg        sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		events:  make(chan Event, 256),
		stop:    make(chan struct{}),
	}
}

// Publish queues one event for broadcast. Drops on a full queue.
func (h *Hub) Publish(guildID, eventType string, payload interface{}) {
	ev := Event{GuildID: guildID, Type: eventType, Payload: payload, At: time.Now()}
	select {
	case h.events <- ev:
	default:
		logging.Warn("notifier queue full, dropped %s for guild %s", eventType, guildID)
	}
}

// SetHeartbeat installs a liveness callback fired from the broadcast loop
// itself. Set before Run.
func (h *Hub) SetHeartbeat(fn func()) { h.heartbeat = fn }

func (h *Hub) beat() {
	if h.heartbeat != nil {
		h.heartbeat()
	}
}

// Run starts the broadcast loop.
func (h *Hub) Run() {
	h.wg.Add(1)
	go h.loop()
}

func (h *Hub) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	h.beat()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.beat()
		case ev := <-h.events:
			data, err := json.Marshal(ev)
			if err != nil {
				logging.Error("notifier: marshal %s event: %v", ev.Type, err)
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer: cut it loose instead of buffering forever.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Stop shuts down the broadcast loop and closes every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount reports connected observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request into an observer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("notifier: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump drains and discards inbound frames; observers are read-only.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
