// handlers_locate.go - Manual locate handler
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
)

// LocateHandlerImpl implements the LocateHandler interface
type LocateHandlerImpl struct {
	bus Messenger
}

// NewLocateHandler creates a new locate handler
func NewLocateHandler(bus Messenger) LocateHandler {
	return &LocateHandlerImpl{bus: bus}
}

// HandleLocate queues a locate command the same way an injected control
// does. The response only acknowledges the command; its outcome is
// reported through the log.
func (h *LocateHandlerImpl) HandleLocate(c echo.Context) error {
	var cmd models.Command
	if err := c.Bind(&cmd); err != nil {
		return NewBadRequestError("invalid locate request", err)
	}
	if err := validateRequest(&cmd); err != nil {
		return err
	}

	resp, err := h.bus.Send(c.Request().Context(), models.Message{Action: models.ActionLocate, Command: &cmd})
	if errors.Is(err, messenger.ErrNoReceiver) {
		return NewServiceUnavailableError("gateway is not running")
	}
	if err != nil {
		return NewBadRequestError("locate rejected", err)
	}
	return c.JSON(http.StatusAccepted, resp)
}
