package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/shelf/pkg/core"
	"github.com/aretw0/shelf/pkg/protocol"
)

func startServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	h := New(core.Empty(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.Start(ctx))

	srv := httptest.NewServer(NewRouter(h, NewTransport(h, TransportConfig{})))
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	frame, err := protocol.EncodeClient(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func receive(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.DecodeServer(frame)
	require.NoError(t, err)
	return msg
}

func TestTransport_RoundTrip(t *testing.T) {
	srv, _ := startServer(t)
	alice, bob := dial(t, srv), dial(t, srv)

	for _, c := range []*websocket.Conn{alice, bob} {
		send(t, c, protocol.GetInitialState{})
		msg := receive(t, c).(protocol.StateUpdate)
		assert.True(t, msg.Document.Equal(core.Empty()))
	}

	want := core.AddFolder(doc("a"), core.Folder{ID: "f", Name: "Folder", IsOpen: true})
	send(t, alice, protocol.NewUpdateState(want))
	msg := receive(t, bob).(protocol.StateUpdate)
	assert.True(t, msg.Document.Equal(want))

	send(t, bob, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, receive(t, bob))

	send(t, bob, protocol.UpdateState{Payload: json.RawMessage(`{"items":"nope"}`)})
	_, isErr := receive(t, bob).(protocol.Error)
	assert.True(t, isErr)
}

func TestTransport_IgnoresUnknownEvents(t *testing.T) {
	srv, _ := startServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"shutdown-server"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`)))

	send(t, conn, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, receive(t, conn))
}

func TestRouter_HealthAndState(t *testing.T) {
	srv, h := startServer(t)
	require.NoError(t, h.Replace(context.Background(), doc("x")))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Contains(t, health.Components, "hub")

	resp, err = http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got core.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []string{"x"}, got.ItemOrder)
}
