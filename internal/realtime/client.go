package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	sendBuffer = 32
)

// control is a client request to change its subscriptions.
type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// client is one websocket connection. streams is guarded by the hub lock.
type client struct {
	hub     *Hub
	socket  *websocket.Conn
	ownerID string
	allowed mapset.Set[string]
	streams mapset.Set[string]

	send chan Message
	done chan struct{}
	once sync.Once
}

func newClient(hub *Hub, socket *websocket.Conn, ownerID string, allowed mapset.Set[string]) *client {
	return &client{
		hub:     hub,
		socket:  socket,
		ownerID: ownerID,
		allowed: allowed,
		streams: mapset.NewThreadUnsafeSet[string](),
		send:    make(chan Message, sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *client) allows(stream string) bool {
	return c.allowed == nil || c.allowed.Contains(stream)
}

// deliver never blocks; a client that cannot keep up is disconnected.
func (c *client) deliver(message Message) {
	select {
	case <-c.done:
	case c.send <- message:
	default:
		c.hub.log.Warn("dropping slow realtime client", zap.String("owner_id", c.ownerID))
		go c.close()
	}
}

func (c *client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("realtime client closed unexpectedly", zap.String("owner_id", c.ownerID), zap.Error(err))
			}
			return
		}
		if len(payload) > 0 {
			c.handle(payload)
		}
	}
}

func (c *client) handle(payload []byte) {
	var req control
	if err := json.Unmarshal(payload, &req); err != nil {
		c.hub.log.Debug("invalid control payload", zap.String("owner_id", c.ownerID), zap.Error(err))
		return
	}
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "subscribe":
		c.hub.subscribe(c, req.Streams)
	case "unsubscribe":
		c.hub.unsubscribe(c, req.Streams)
	case "ping":
		c.deliver(Message{Event: "pong"})
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
		monitoring.RecordRealtimeConnection(-1)
	})
}
