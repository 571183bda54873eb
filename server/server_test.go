package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/config"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*GameServer, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	gs, err := NewGameServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = gs.Shutdown(context.Background())
	})
	return gs, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := network.Encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, c *websocket.Conn) network.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env network.Envelope
	require.NoError(t, c.ReadJSON(&env))
	return env
}

// readUntil discards frames until one of msgType arrives.
func readUntil(t *testing.T, c *websocket.Conn, msgType string) network.Envelope {
	t.Helper()
	for {
		env := read(t, c)
		if env.Type == msgType {
			return env
		}
	}
}

type ids struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

func createRoom(t *testing.T, c *websocket.Conn, name string) ids {
	t.Helper()
	send(t, c, network.MsgCreateRoom, map[string]any{"name": name, "rule": map[string]int{"uma": 20}})
	require.Equal(t, network.MsgRoomCreated, read(t, c).Type)
	env := read(t, c)
	require.Equal(t, network.MsgSetID, env.Type)
	var got ids
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	require.Equal(t, network.MsgRoomState, read(t, c).Type)
	return got
}

func joinRoom(t *testing.T, c *websocket.Conn, roomID, name string) ids {
	t.Helper()
	send(t, c, network.MsgJoinRoom, map[string]string{"roomId": roomID, "name": name})
	require.Equal(t, network.MsgSuccessJoin, read(t, c).Type)
	env := read(t, c)
	require.Equal(t, network.MsgSetID, env.Type)
	var got ids
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	require.Equal(t, network.MsgRoomState, read(t, c).Type)
	return got
}

func errorCode(t *testing.T, env network.Envelope) string {
	t.Helper()
	require.Equal(t, network.MsgError, env.Type)
	var view struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &view))
	assert.NotEmpty(t, view.Message)
	return view.Code
}

func TestCreateJoinAndRelay(t *testing.T) {
	_, ts := newTestServer(t, nil)
	alice := dial(t, ts)
	bob := dial(t, ts)

	host := createRoom(t, alice, "Alice")
	assert.Regexp(t, `^[a-z0-9]{6}$`, host.RoomID)
	guest := joinRoom(t, bob, host.RoomID, "Bob")
	assert.Equal(t, host.RoomID, guest.RoomID)
	assert.NotEqual(t, host.PlayerID, guest.PlayerID)

	env := readUntil(t, alice, network.MsgRoomState)
	var roster struct {
		Players []struct {
			Name string `json:"name"`
			Seat string `json:"seat"`
		} `json:"players"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &roster))
	require.Len(t, roster.Players, 2)
	assert.Equal(t, "ton", roster.Players[0].Seat)
	assert.Equal(t, "nan", roster.Players[1].Seat)

	send(t, alice, network.MsgStartGame, map[string]any{"roomId": host.RoomID, "initialScore": 25000})
	for _, c := range []*websocket.Conn{alice, bob} {
		env := readUntil(t, c, network.MsgGameStart)
		assert.Contains(t, string(env.Payload), "25000")
	}

	send(t, alice, network.MsgInputRound, map[string]any{"roomId": host.RoomID, "round": 1, "score": []int{25000, 25000, 25000, 25000}})
	env = read(t, bob)
	require.Equal(t, network.MsgGameState, env.Type)
	assert.Contains(t, string(env.Payload), `"round":1`)

	// seat0 gets no game_state: the next frame it sees is the pong
	send(t, alice, network.MsgPing, nil)
	assert.Equal(t, network.MsgPong, read(t, alice).Type)
}

func TestErrorsGoToSenderOnly(t *testing.T) {
	_, ts := newTestServer(t, nil)
	alice := dial(t, ts)
	bob := dial(t, ts)
	host := createRoom(t, alice, "Alice")
	joinRoom(t, bob, host.RoomID, "Bob")
	readUntil(t, alice, network.MsgRoomState)

	tests := []struct {
		name  string
		frame string
		code  string
	}{
		{"bad json", `{"type":`, "malformed_payload"},
		{"unknown type", `{"type":"dance","payload":{}}`, "unknown_command"},
		{"missing room", `{"type":"input_round","payload":{"round":1}}`, "missing_field"},
		{"room gone", `{"type":"start_game","payload":{"roomId":"zzzzzz"}}`, "room_not_found"},
		{"bad seat list", `{"type":"initiative_check","payload":{"roomId":"` + host.RoomID + `","newSeat":["a"]}}`, "invalid_seat_list"},
		{"exit stranger", `{"type":"exit_room","payload":{"roomId":"` + host.RoomID + `","playerId":"ghost"}}`, "player_not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(tc.frame)))
			assert.Equal(t, tc.code, errorCode(t, read(t, bob)))
		})
	}

	// alice saw none of it
	send(t, alice, network.MsgPing, nil)
	assert.Equal(t, network.MsgPong, read(t, alice).Type)
}

func TestJoinUnknownRoom(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts)

	send(t, c, network.MsgJoinRoom, map[string]string{"roomId": "nope00", "name": "Bob"})
	assert.Equal(t, network.MsgUnknownRoom, read(t, c).Type)
}

func TestRoomFull(t *testing.T) {
	_, ts := newTestServer(t, nil)
	host := createRoom(t, dial(t, ts), "Alice")
	for _, name := range []string{"Bob", "Carol", "Dave"} {
		joinRoom(t, dial(t, ts), host.RoomID, name)
	}

	eve := dial(t, ts)
	send(t, eve, network.MsgJoinRoom, map[string]string{"roomId": host.RoomID, "name": "Eve"})
	assert.Equal(t, "room_full", errorCode(t, read(t, eve)))
}

func TestResumeAfterReconnect(t *testing.T) {
	gs, ts := newTestServer(t, nil)
	first := dial(t, ts)
	host := createRoom(t, first, "Alice")
	first.Close()

	// membership survives the disconnect
	_, ok := gs.Rooms().GetRoom(host.RoomID)
	require.True(t, ok)

	second := dial(t, ts)
	send(t, second, network.MsgResumeRoom, host)
	env := read(t, second)
	require.Equal(t, network.MsgResumeResult, env.Type)

	var result struct {
		OK       bool   `json:"ok"`
		Boot     string `json:"boot"`
		Snapshot struct {
			GameNo  int              `json:"gameNo"`
			Phase   string           `json:"phase"`
			NewSeat []string         `json:"newSeat"`
			Round   *json.RawMessage `json:"round"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &result))
	assert.True(t, result.OK)
	assert.Equal(t, "room", result.Boot)
	assert.Equal(t, 1, result.Snapshot.GameNo)
	assert.Equal(t, "between_games", result.Snapshot.Phase)
	assert.Equal(t, []string{host.PlayerID}, result.Snapshot.NewSeat)
	assert.Nil(t, result.Snapshot.Round)

	send(t, second, network.MsgResumeRoom, ids{RoomID: host.RoomID, PlayerID: "ghost"})
	assert.JSONEq(t, `{"ok":false,"reason":"player_not_found"}`, string(read(t, second).Payload))

	send(t, second, network.MsgResumeRoom, map[string]string{})
	assert.JSONEq(t, `{"ok":false,"reason":"missing_identifier"}`, string(read(t, second).Payload))
}

func TestRemoveAndFinish(t *testing.T) {
	gs, ts := newTestServer(t, nil)
	alice := dial(t, ts)
	bob := dial(t, ts)
	host := createRoom(t, alice, "Alice")
	joinRoom(t, bob, host.RoomID, "Bob")

	send(t, bob, network.MsgRemoveRoom, map[string]string{"roomId": host.RoomID})
	readUntil(t, alice, network.MsgDeleteRoom)
	readUntil(t, bob, network.MsgDeleteRoom)
	assert.Zero(t, gs.Rooms().Count())

	// removing again is silent
	send(t, bob, network.MsgRemoveRoom, map[string]string{"roomId": host.RoomID})
	send(t, bob, network.MsgPing, nil)
	assert.Equal(t, network.MsgPong, read(t, bob).Type)

	next := createRoom(t, alice, "Alice")
	send(t, alice, network.MsgFinishSession, map[string]string{"roomId": next.RoomID})
	assert.Equal(t, network.MsgNaviRoot, read(t, alice).Type)
	assert.Zero(t, gs.Rooms().Count())
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Connection.MessagesPerSecond = 0.001
		cfg.Connection.Burst = 1
	})
	c := dial(t, ts)

	send(t, c, network.MsgPing, nil)
	assert.Equal(t, network.MsgPong, read(t, c).Type)
	send(t, c, network.MsgPing, nil)
	assert.Equal(t, "rate_limited", errorCode(t, read(t, c)))
}

func TestOriginCheck(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://table.test"}
	})

	header := http.Header{"Origin": []string{"https://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	header.Set("Origin", "https://table.test")
	c, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	resp.Body.Close()
	c.Close()
}

func TestHealthzAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, nil)
	createRoom(t, dial(t, ts), "Alice")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Rooms)
	assert.Equal(t, 1, health.Connections)

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mahjong_online_connections 1")
	assert.Contains(t, string(body), `mahjong_messages_received_total{type="create_room"} 1`)
	assert.Contains(t, string(body), "mahjong_active_rooms 1")
}

func TestShutdownClosesConnections(t *testing.T) {
	gs, ts := newTestServer(t, nil)
	c := dial(t, ts)
	send(t, c, network.MsgPing, nil)
	read(t, c)

	require.NoError(t, gs.Shutdown(context.Background()))
	require.NoError(t, gs.Shutdown(context.Background()))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "ping", metricLabel(network.MsgPing))
	assert.Equal(t, "unknown", metricLabel("dance"))
	assert.Equal(t, "unknown", metricLabel(""))
}
