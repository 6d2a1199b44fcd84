package sync

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_DeliversEventsOverTCP(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := NewServer("127.0.0.1:0", hub, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool { return srv.ListenAddr() != nil }, time.Second, 5*time.Millisecond)
	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"welcome"`)
	require.Eventually(t, func() bool { return hub.Stats().TCPClients == 1 }, time.Second, 5*time.Millisecond)

	ev := TreeEvent{Type: EventTimelinePut, CollectionID: uuid.New(), ID: uuid.New(), Title: "Era", At: time.Now().UTC()}
	hub.BroadcastJSON(ev)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	var got TreeEvent
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, EventTimelinePut, got.Type)
	assert.Equal(t, uint64(1), hub.Stats().Published)
}

func TestWSHandler_DeliversEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zerolog.Nop())
	r := gin.New()
	r.GET("/ws", WSHandler(hub))
	ts := httptest.NewServer(r)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"transport":"websocket"`)
	require.Eventually(t, func() bool { return hub.Stats().WSClients == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastJSON(TreeEvent{Type: EventExhibitDelete, ID: uuid.New()})
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), EventExhibitDelete)
}

func TestHub_DropsClosedSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client, server := net.Pipe()
	hub.AddTCP(server)
	require.NoError(t, client.Close())

	hub.BroadcastJSON(TreeEvent{Type: EventTourPut})
	assert.Equal(t, 0, hub.Stats().TCPClients)
}
