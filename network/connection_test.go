package network

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns a server-side WSConnection and the raw client end.
func pair(t *testing.T, opts Options) (*WSConnection, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *WSConnection, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- NewWSConnection(conn, opts)
	}))
	t.Cleanup(ts.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-accepted:
		t.Cleanup(func() { c.Close() })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept")
		return nil, nil
	}
}

func TestWSConnection_SendAndRead(t *testing.T) {
	server, client := pair(t, DefaultOptions())

	require.NoError(t, server.Send([]byte(`{"type":"pong","payload":{}}`)))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"type":"pong","payload":{}}`, string(data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	got, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(got))
}

func TestWSConnection_SendAfterClose(t *testing.T) {
	server, _ := pair(t, DefaultOptions())

	assert.True(t, server.IsOpen())
	require.NoError(t, server.Close())
	assert.NoError(t, server.Close())
	assert.False(t, server.IsOpen())
	assert.ErrorIs(t, server.Send([]byte("x")), ErrConnectionClosed)
}

func TestWSConnection_ReadLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.ReadLimit = 16
	server, client := pair(t, opts)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))
	_, err := server.ReadMessage()
	assert.Error(t, err)
}

func TestWSConnection_PingsClient(t *testing.T) {
	opts := DefaultOptions()
	opts.PongWait = 100 * time.Millisecond
	_, client := pair(t, opts)

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	// control frames are only processed while reading
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 64, opts.SendBuffer)
	assert.Equal(t, int64(64*1024), opts.ReadLimit)
	assert.Equal(t, 60*time.Second, opts.PongWait)
}
