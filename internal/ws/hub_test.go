package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/pixelwall/internal/grid"
	"github.com/coreman2200/pixelwall/internal/pixel"
	"github.com/coreman2200/pixelwall/internal/room"
	"github.com/coreman2200/pixelwall/internal/utility"
)

type noopFlusher struct{}

func (noopFlusher) Flush(context.Context, []pixel.Write) error { return nil }
func (noopFlusher) Clear(context.Context) error                { return nil }
func (noopFlusher) TransportIsHTTP() bool                      { return false }

var parked = room.Delays{Idle: time.Hour, WSRetry: time.Hour, HTTPRetry: time.Hour}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := room.NewRegistry(ctx, noopFlusher{}, nil, 12, parked, zerolog.Nop())
	util := utility.NewRegistry(zerolog.Nop())
	util.Register(utility.Fill{Color: "00FF00"})
	h := NewHub(reg, grid.Mapper{Width: 4, Height: 3}, util, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}", h.HandleRoom)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialRoom(t *testing.T, srv *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		m := readMsg(t, conn)
		if m["type"] == msgType {
			return m
		}
	}
	t.Fatalf("no %q message received", msgType)
	return nil
}

func TestJoinSendsFullStateAndUserCount(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")

	m := readMsg(t, conn)
	require.Equal(t, "fullState", m["type"])
	state, ok := m["state"].([]any)
	require.True(t, ok)
	assert.Len(t, state, 12)
	for _, cell := range state {
		assert.Nil(t, cell)
	}

	m = readMsg(t, conn)
	require.Equal(t, "userCount", m["type"])
	assert.Equal(t, float64(1), m["count"])
}

func TestDrawBroadcastsGridUpdate(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "draw", "x": 1, "y": 0, "color": "#ff0000",
	}))
	m := readUntil(t, conn, "gridUpdate")
	assert.Equal(t, float64(1), m["index"])
	assert.Equal(t, "FF0000", m["color"])
}

func TestDrawRGBObjectColor(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "draw", "x": 0, "y": 0,
		"color": map[string]int{"r": 255, "g": 0, "b": 10},
	}))
	m := readUntil(t, conn, "gridUpdate")
	assert.Equal(t, "FF000A", m["color"])
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	// Unknown types are ignored too.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "interpretiveDance"}))

	// The connection still services writes.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "draw", "x": 0, "y": 0, "color": "112233",
	}))
	m := readUntil(t, conn, "gridUpdate")
	assert.Equal(t, "112233", m["color"])
}

func TestBatchDrawSkipsBadPixelsOnly(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "batchDraw",
		"pixels": []map[string]any{
			{"x": 99, "y": 99, "color": "ff0000"}, // out of range: dropped
			{"x": 2, "y": 1, "color": 12345},      // bad color shape: dropped
			{"x": 2, "y": 2, "color": "00ff00"},   // accepted
		},
	}))
	m := readUntil(t, conn, "gridUpdate")
	assert.Equal(t, float64(10), m["index"])
	assert.Equal(t, "00FF00", m["color"])
}

func TestClearBroadcastsFullState(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "draw", "x": 0, "y": 0, "color": "ff0000",
	}))
	readUntil(t, conn, "gridUpdate")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clear"}))
	m := readUntil(t, conn, "fullState")
	for _, cell := range m["state"].([]any) {
		assert.Nil(t, cell)
	}
}

func TestExecuteUtilityPaintsAndReports(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "executeUtility", "utilityId": "fill",
	}))

	updates := 0
	for {
		m := readMsg(t, conn)
		switch m["type"] {
		case "gridUpdate":
			assert.Equal(t, "00FF00", m["color"])
			updates++
		case "utilityResult":
			assert.Equal(t, true, m["ok"])
			assert.Equal(t, 12, updates)
			return
		}
	}
}

func TestExecuteUnknownUtilityReportsError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialRoom(t, srv, "lobby")
	readUntil(t, conn, "userCount")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "executeUtility", "utilityId": "nope",
	}))
	m := readUntil(t, conn, "utilityResult")
	assert.Equal(t, false, m["ok"])
	assert.NotEmpty(t, m["error"])
}
