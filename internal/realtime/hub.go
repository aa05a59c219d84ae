package realtime

import (
	"net/http"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/pkg/logger"
)

// Message is the JSON payload delivered to subscribers. Seq increases
// monotonically per hub so clients can detect dropped signals.
type Message struct {
	Seq    uint64         `json:"seq"`
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Hub fans change signals out to websocket clients subscribed per owner and stream.
type Hub struct {
	mu      sync.RWMutex
	topics  map[topic]mapset.Set[*client]
	clients mapset.Set[*client]
	closed  bool

	seq      atomic.Uint64
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub accepting same-origin and loopback clients.
func NewHub() *Hub {
	return &Hub{
		topics:  make(map[topic]mapset.Set[*client]),
		clients: mapset.NewThreadUnsafeSet[*client](),
		log:     logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := hostWithoutPort(origin)
	return host == hostWithoutPort(r.Host) || isLoopback(host)
}

// Serve upgrades the request and subscribes the client to streams on behalf of
// ownerID. A nil allowed set permits every stream. Serve blocks until the
// client disconnects.
func (h *Hub) Serve(ownerID string, streams []string, allowed mapset.Set[string], w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("owner_id", ownerID), zap.Error(err))
		return
	}

	c := newClient(h, socket, ownerID, allowed)
	if !h.register(c) {
		_ = socket.Close()
		return
	}
	monitoring.RecordRealtimeConnection(1)
	h.subscribe(c, streams)

	go c.writeLoop()
	c.readLoop()
}

// NotifyChanged signals the owner's subscribers of entity that its data changed.
func (h *Hub) NotifyChanged(ownerID string, entity models.EntityType) {
	h.BroadcastToOwner(entity.String(), ownerID, Message{
		Event: EventDataChanged,
		Data:  map[string]any{"entity": entity.String()},
	})
}

// BroadcastToOwner delivers message to every client of ownerID listening on stream.
func (h *Hub) BroadcastToOwner(stream, ownerID string, message Message) {
	key := topic{stream: normalizeStream(stream), owner: ownerID}
	if key.stream == "" || key.owner == "" {
		return
	}

	h.mu.RLock()
	targets := h.topics[key]
	if targets == nil || targets.Cardinality() == 0 {
		h.mu.RUnlock()
		return
	}
	recipients := targets.ToSlice()
	h.mu.RUnlock()

	message.Stream = key.stream
	message.Seq = h.seq.Add(1)
	for _, c := range recipients {
		c.deliver(message)
	}
	monitoring.RecordRealtimeBroadcast(key.stream)
}

// Subscribers reports how many clients of ownerID listen on stream.
func (h *Hub) Subscribers(stream, ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if set := h.topics[topic{stream: normalizeStream(stream), owner: ownerID}]; set != nil {
		return set.Cardinality()
	}
	return 0
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients.ToSlice()
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients.Add(c)
	return true
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !c.allows(stream) {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("owner_id", c.ownerID))
			continue
		}
		if !c.streams.Add(stream) {
			continue
		}
		key := topic{stream: stream, owner: c.ownerID}
		if h.topics[key] == nil {
			h.topics[key] = mapset.NewThreadUnsafeSet[*client]()
		}
		h.topics[key].Add(c)
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.dropLocked(c, stream)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range c.streams.ToSlice() {
		h.dropLocked(c, stream)
	}
	h.clients.Remove(c)
}

func (h *Hub) dropLocked(c *client, stream string) {
	c.streams.Remove(stream)
	key := topic{stream: stream, owner: c.ownerID}
	if set := h.topics[key]; set != nil {
		set.Remove(c)
		if set.Cardinality() == 0 {
			delete(h.topics, key)
		}
	}
}
