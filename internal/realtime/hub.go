// Package realtime implements the Realtime Bus (C7): a single WebSocket
// endpoint that lets clients subscribe to a Map and receive change
// broadcasts from every other client's edits.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// maxWriteBufferBytes is the back-pressure ceiling from spec §4.7. Writes
// are synchronous under the socket's write lock and there is no outbound
// queue: a message whose payload, added to the bytes still being written,
// crosses this line is itself dropped and a lag event is sent. No older
// message is ever dropped.
const maxWriteBufferBytes = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChangeType and Action enumerate the two dimensions of a map:change event.
type ChangeType string

const (
	ChangePlacement  ChangeType = "placement"
	ChangeConnection ChangeType = "connection"
	ChangeMap        ChangeType = "map"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Broadcast is the payload of a server "map:change" message.
type Broadcast struct {
	Type       string     `json:"type"`
	MapID      string     `json:"mapId"`
	ChangeType ChangeType `json:"changeType"`
	Action     Action     `json:"action"`
	Timestamp  time.Time  `json:"timestamp"`
	UserID     string     `json:"userId"`
}

// clientMessage is the shape of every inbound message from a socket.
type clientMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	MapID  string `json:"mapId,omitempty"`
}

// Hub owns every connected socket and its current map subscriptions.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	userID string
	subs   map[string]struct{}

	queuedBytes int
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "realtime").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection's
// read loop until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{id: uuid.New(), conn: conn, subs: make(map[string]struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("connection_id", c.id.String()).Msg("websocket client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		h.log.Debug().Str("connection_id", c.id.String()).Msg("websocket client disconnected")
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleClientMessage(c, data)
	}
}

func (h *Hub) handleClientMessage(c *client, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "identify":
		c.userID = msg.UserID
	case "subscribe":
		c.subs[msg.MapID] = struct{}{}
	case "unsubscribe":
		delete(c.subs, msg.MapID)
	}
}

// Broadcast sends b to every client subscribed to b.MapID except the one
// whose userID matches originatorUserID.
func (h *Hub) Broadcast(b Broadcast, originatorUserID string) {
	payload, err := json.Marshal(b)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		_, subscribed := c.subs[b.MapID]
		isOriginator := originatorUserID != "" && c.userID == originatorUserID
		c.mu.Unlock()
		if !subscribed || isOriginator {
			continue
		}
		h.send(c, payload)
	}
}

// send applies the back-pressure policy: a write that would push the
// connection's buffered bytes past maxWriteBufferBytes drops instead of
// blocking or growing unbounded, and the client later receives a lag event.
func (h *Hub) send(c *client, payload []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.queuedBytes+len(payload) > maxWriteBufferBytes {
		h.log.Warn().Msg("client write buffer exceeded, dropping message and queuing lag notice")
		go h.sendLag(c)
		return
	}

	c.queuedBytes += len(payload)
	err := c.conn.WriteMessage(websocket.TextMessage, payload)
	c.queuedBytes -= len(payload)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket write failed, client likely disconnected")
	}
}

func (h *Hub) sendLag(c *client) {
	lag := map[string]string{"type": "lag"}
	payload, _ := json.Marshal(lag)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}
