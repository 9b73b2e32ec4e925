// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// LogHandler serves the persisted diagnostic log
type LogHandler interface {
	HandleGetLog(c echo.Context) error
	HandleGetLogMsgpack(c echo.Context) error
	HandleClearLog(c echo.Context) error
}

// OptionsHandler reads and writes the operator options
type OptionsHandler interface {
	HandleGetOptions(c echo.Context) error
	HandlePutOptions(c echo.Context) error
}

// SessionHandler handles login prompt submissions, direct logins and logout
type SessionHandler interface {
	HandleLogin(c echo.Context) error
	HandleSession(c echo.Context) error
	HandleLogout(c echo.Context) error
}

// LocateHandler accepts manual locate commands
type LocateHandler interface {
	HandleLocate(c echo.Context) error
}

// LogSink is the part of the log sink the handlers use
type LogSink interface {
	Entries(ctx context.Context) ([]models.LogEntry, error)
	Clear(ctx context.Context) error
	Record(message string)
}

// OptionsStore is the part of the credential store the handlers use
type OptionsStore interface {
	Load(ctx context.Context) (models.Settings, error)
	SaveOptions(ctx context.Context, s models.Settings) error
}

// Gateway performs logins outside of a prompt and logouts
type Gateway interface {
	Login(ctx context.Context, req models.LoginRequest) (string, error)
	Logout(ctx context.Context) error
}

// Messenger delivers messages to the gateway side and mirrors broadcasts
type Messenger interface {
	Send(ctx context.Context, msg models.Message) (models.Response, error)
	Subscribe(buffer int) (<-chan models.Message, func())
}
