package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/store"
)

// Event names.
const (
	EventFileUpdate = "file_update"
	EventNewMessage = "new_message"

	// TopicChatGroup scopes rooms to a chat group.
	TopicChatGroup = "chatgroup"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 25 * time.Second
	writeWait           = 10 * time.Second
	maxFrameBytes       = 4096
)

// FileUpdate is the partial file state a stage announces.
type FileUpdate struct {
	URL         string       `json:"url,omitempty"`
	BlurredURL  string       `json:"blurredUrl,omitempty"`
	Status      store.Status `json:"status,omitempty"`
	Description *string      `json:"description,omitempty"`
}

type fileUpdatePayload struct {
	FileID string     `json:"fileId"`
	Update FileUpdate `json:"update"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Frame is a client request to join or leave a room.
type Frame struct {
	Action   string `json:"action"`
	Topic    string `json:"topic"`
	TargetID string `json:"targetId"`
}

// Options tunes the hub.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
}

// Hub tracks connections and rooms.
type Hub struct {
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, opts Options) *Hub {
	h := &Hub{
		logger:       logging.NewComponentLogger(logger, "realtime"),
		sendBuffer:   opts.SendBuffer,
		pingInterval: opts.PingInterval,
		clients:      make(map[*client]struct{}),
		rooms:        make(map[string]map[*client]struct{}),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// RoomName formats the room key for a topic and target.
func RoomName(topic, targetID string) string {
	return topic + "-" + targetID
}

// BroadcastFileUpdate sends update to every connection.
func (h *Hub) BroadcastFileUpdate(fileID string, update FileUpdate) {
	msg, ok := h.encode(EventFileUpdate, fileUpdatePayload{FileID: fileID, Update: update})
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, msg)
}

// EmitToRoom sends event to the members of one room.
func (h *Hub) EmitToRoom(topic, targetID, event string, payload any) {
	msg, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	members := h.rooms[RoomName(topic, targetID)]
	targets := make([]*client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, msg)
}

// EmitNewMessage announces a message to its chat group room.
func (h *Hub) EmitNewMessage(chatGroupID string, message any) {
	h.EmitToRoom(TopicChatGroup, chatGroupID, EventNewMessage, message)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(topic, targetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[RoomName(topic, targetID)])
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, h.sendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) encode(event string, data any) ([]byte, bool) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Warn("encode realtime event failed",
			logging.String("event", event),
			logging.Error(err),
			logging.String(logging.FieldEventType, "realtime_encode_failed"),
			logging.String(logging.FieldErrorHint, "payload is not JSON serializable"),
			logging.String(logging.FieldImpact, "clients miss this live update"),
		)
		return nil, false
	}
	return msg, true
}

func (h *Hub) deliver(targets []*client, msg []byte) {
	for _, c := range targets {
		if !c.enqueue(msg) {
			metrics.RealtimeDroppedTotal.Inc()
			h.logger.Debug("realtime client too slow; disconnecting")
			h.unregister(c)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.RealtimeClients.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()
	metrics.RealtimeClients.Dec()
	c.close()
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) || strings.EqualFold(candidate, u.Host) {
				return true
			}
		}
		return false
	}
}
