package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/models"
)

func dialHub(t *testing.T, hub *Hub, owner string, streams ...string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(owner, streams, EntityStreams(), w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, stream, owner string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Subscribers(stream, owner) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyChangedReachesOwnerSubscribers(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1", "quotes")
	waitForSubscribers(t, hub, "quotes", "owner-1", 1)

	hub.NotifyChanged("owner-1", models.EntityQuotes)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "quotes", msg.Stream)
	require.Equal(t, EventDataChanged, msg.Event)
}

func TestNotifyChangedSkipsOtherOwners(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1", "customers")
	waitForSubscribers(t, hub, "customers", "owner-1", 1)

	hub.NotifyChanged("owner-2", models.EntityCustomers)
	hub.NotifyChanged("owner-1", models.EntityItems)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var msg Message
	require.Error(t, conn.ReadJSON(&msg))
}

func TestUnknownStreamsAreIgnored(t *testing.T) {
	hub := NewHub()
	_ = dialHub(t, hub, "owner-1", "secrets", "items")
	waitForSubscribers(t, hub, "items", "owner-1", 1)
	require.Zero(t, hub.Subscribers("secrets", "owner-1"))
}

func TestSubscribeControlMessage(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1")

	require.NoError(t, conn.WriteJSON(control{Action: "subscribe", Streams: []string{"Settings"}}))
	waitForSubscribers(t, hub, "settings", "owner-1", 1)

	require.NoError(t, conn.WriteJSON(control{Action: "unsubscribe", Streams: []string{"settings"}}))
	waitForSubscribers(t, hub, "settings", "owner-1", 0)
}

func TestCloseUnregistersConnection(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1", "quotes")
	waitForSubscribers(t, hub, "quotes", "owner-1", 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, "quotes", "owner-1", 0)
}

func TestHostHelpers(t *testing.T) {
	require.Equal(t, "example.com", hostWithoutPort("https://example.com:8443/path"))
	require.True(t, isLoopback("127.0.0.1"))
	require.True(t, isLoopback("localhost"))
	require.False(t, isLoopback("example.com"))
	require.Equal(t, []string{"quotes", "items"}, uniqueStreams([]string{" Quotes", "items", "quotes", ""}))
}

func TestMessagesCarryIncreasingSequence(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1", "items")
	waitForSubscribers(t, hub, "items", "owner-1", 1)

	hub.NotifyChanged("owner-1", models.EntityItems)
	hub.NotifyChanged("owner-1", models.EntityItems)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first, second Message
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	require.Greater(t, second.Seq, first.Seq)
}

func TestPingControlAnswersPong(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1")

	require.NoError(t, conn.WriteJSON(control{Action: "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "owner-1", "quotes")
	waitForSubscribers(t, hub, "quotes", "owner-1", 1)

	hub.Close()
	waitForSubscribers(t, hub, "quotes", "owner-1", 0)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
