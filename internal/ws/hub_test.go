package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wsTestServer upgrades every request and registers the connection for
// the given user with both pumps running, like ServeWS does after auth.
func wsTestServer(t *testing.T, hub *Hub, userID string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan []byte, 256),
		}
		hub.register <- client
		log := zap.NewNop()
		go client.writePump(log)
		go client.readPump(hub, log)
	}))
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestSendToUserOffline(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.False(t, hub.SendToUser("nobody", []byte("hi")))
}

func TestSendToUserDeliversMessage(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := wsTestServer(t, hub, "user-1")
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SendToUser("user-1", []byte("hello"))
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestReplacementConnectionSurvivesOldTeardown(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := wsTestServer(t, hub, "user-1")
	defer srv.Close()

	first := dialWS(t, srv)
	defer first.Close()

	// Wait until the first connection is registered before replacing it.
	require.Eventually(t, func() bool {
		return hub.SendToUser("user-1", []byte("warmup"))
	}, 2*time.Second, 10*time.Millisecond)

	second := dialWS(t, srv)
	defer second.Close()

	// Registering the second connection closes the first one server-side;
	// observing the read error proves the replacement has taken the slot.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// Let the old connection's teardown run; it must not evict the
	// replacement from the hub.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, hub.SendToUser("user-1", []byte("still here")),
		"replacement connection must stay registered after the old one tears down")

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := second.ReadMessage()
		require.NoError(t, err)
		if string(msg) == "still here" {
			return
		}
	}
}

func TestUnregisterRemovesOwnClientOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())

	current := &Client{userID: "user-1", send: make(chan []byte, 1)}
	hub.register <- current

	// A stale client for the same user (already replaced) unregisters.
	stale := &Client{userID: "user-1", send: make(chan []byte, 1)}
	hub.unregister <- stale

	assert.True(t, hub.SendToUser("user-1", []byte("x")),
		"a stale unregister must not remove the current client")

	hub.unregister <- current
	require.Eventually(t, func() bool {
		return !hub.SendToUser("user-1", []byte("x"))
	}, 2*time.Second, 10*time.Millisecond)
}
