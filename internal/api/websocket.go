package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"go.uber.org/zap"
)

// WebSocket message types for the log mirror
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected   = "connected"
	MsgTypeAddLogEntry = string(models.ActionAddLogEntry)
	MsgTypePong        = "pong"
	MsgTypeError       = "error"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler mirrors new log entries to open diagnostics views
type WebSocketHandler struct {
	bus      Messenger
	upgrader websocket.Upgrader
	buffer   int
	log      *zap.Logger
}

// NewWebSocketHandler creates a new log mirror handler. buffer is how
// many entries a slow view may fall behind before entries are dropped
// for it.
func NewWebSocketHandler(bus Messenger, buffer int, log *zap.Logger) *WebSocketHandler {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Views are served by this daemon on its own origin or
				// opened from the attached browser.
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		buffer: buffer,
		log:    log,
	}
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection and streams addLogEntry
// messages until the client goes away
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	cn := &conn{ws: ws}

	entries, cancel := wsh.bus.Subscribe(wsh.buffer)
	defer cancel()

	wsh.log.Debug("log view connected", zap.String("remote", c.RealIP()))

	cn.send(WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	done := make(chan struct{})
	go wsh.readLoop(cn, done)

	for {
		select {
		case <-done:
			wsh.log.Debug("log view disconnected", zap.String("remote", c.RealIP()))
			return nil
		case msg, ok := <-entries:
			if !ok {
				return nil
			}
			if msg.Action != models.ActionAddLogEntry || msg.Entry == nil {
				continue
			}
			payload, err := json.Marshal(newLogLine(*msg.Entry))
			if err != nil {
				continue
			}
			if err := cn.send(WSMessage{Type: MsgTypeAddLogEntry, Payload: payload, Timestamp: time.Now().UnixMilli()}); err != nil {
				wsh.log.Debug("log view write failed", zap.Error(err))
				return nil
			}
		}
	}
}

func (wsh *WebSocketHandler) readLoop(cn *conn, done chan<- struct{}) {
	defer close(done)
	for {
		var msg WSMessage
		if err := cn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.log.Debug("log view connection error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			cn.send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			cn.send(WSErrorResponse{Type: MsgTypeError, Message: "Unknown message type: " + msg.Type, Code: "INVALID_TYPE"})
		}
	}
}
