package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
)

func dialLogMirror(t *testing.T, bus *messenger.Bus) *websocket.Conn {
	t.Helper()
	e := echo.New()
	e.GET("/api/ws/log", NewWebSocketHandler(bus, 8, nil).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/log"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var hello WSMessage
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&hello))
	require.Equal(t, MsgTypeConnected, hello.Type)
	return ws
}

func TestWebSocket_MirrorsLogEntries(t *testing.T) {
	bus := messenger.New(nil)
	ws := dialLogMirror(t, bus)

	entry := models.NewLogEntry("Success: OK")
	require.NoError(t, bus.Broadcast(context.Background(), models.Message{Action: models.ActionAddLogEntry, Entry: &entry}))

	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, MsgTypeAddLogEntry, msg.Type)

	var line LogLine
	require.NoError(t, json.Unmarshal(msg.Payload, &line))
	assert.Equal(t, "Success: OK", line.Message)
	assert.Equal(t, entry.String(), line.Line)
}

func TestWebSocket_PingPong(t *testing.T) {
	bus := messenger.New(nil)
	ws := dialLogMirror(t, bus)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, MsgTypePong, msg.Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "upload"}))
	var errMsg WSErrorResponse
	require.NoError(t, ws.ReadJSON(&errMsg))
	assert.Equal(t, "INVALID_TYPE", errMsg.Code)
}

func TestWebSocket_UnsubscribesOnClose(t *testing.T) {
	bus := messenger.New(nil)
	ws := dialLogMirror(t, bus)
	ws.Close()

	entry := models.NewLogEntry("late")
	assert.Eventually(t, func() bool {
		err := bus.Broadcast(context.Background(), models.Message{Action: models.ActionAddLogEntry, Entry: &entry})
		return err != nil
	}, 2*time.Second, 10*time.Millisecond, "broadcast reports no receiver once the view is gone")
}
