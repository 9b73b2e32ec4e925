// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sink            LogSink
	Options         OptionsStore
	Gateway         Gateway
	Bus             Messenger
	Version         string
	WebSocketBuffer int
	Logger          *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Log       LogHandler
	Options   OptionsHandler
	Session   SessionHandler
	Locate    LocateHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Options),
		Log:       NewLogHandler(deps.Sink),
		Options:   NewOptionsHandler(deps.Options, deps.Sink),
		Session:   NewSessionHandler(deps.Bus, deps.Gateway),
		Locate:    NewLocateHandler(deps.Bus),
		WebSocket: NewWebSocketHandler(deps.Bus, deps.WebSocketBuffer, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	api := e.Group("/api")

	// Diagnostic log
	api.GET("/log", handlers.Log.HandleGetLog)
	api.GET("/log/msgpack", handlers.Log.HandleGetLogMsgpack)
	api.DELETE("/log", handlers.Log.HandleClearLog)
	api.GET("/ws/log", handlers.WebSocket.HandleWebSocket)

	// Options
	api.GET("/options", handlers.Options.HandleGetOptions)
	api.PUT("/options", handlers.Options.HandlePutOptions)

	// Session
	api.POST("/login", handlers.Session.HandleLogin)
	api.POST("/session", handlers.Session.HandleSession)
	api.POST("/logout", handlers.Session.HandleLogout)

	// Commands
	api.POST("/locate", handlers.Locate.HandleLocate)
}
