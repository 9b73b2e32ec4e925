// handlers_options.go - Operator options handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
)

// OptionsResponse is the options record plus the session state, which is
// read-only here
type OptionsResponse struct {
	models.Settings
	LoggedIn bool `json:"loggedIn"`
}

// OptionsHandlerImpl implements the OptionsHandler interface
type OptionsHandlerImpl struct {
	options OptionsStore
	sink    LogSink
}

// NewOptionsHandler creates a new options handler
func NewOptionsHandler(options OptionsStore, sink LogSink) OptionsHandler {
	return &OptionsHandlerImpl{options: options, sink: sink}
}

// HandleGetOptions returns the stored options
func (h *OptionsHandlerImpl) HandleGetOptions(c echo.Context) error {
	s, err := h.options.Load(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to read options", err)
	}
	return c.JSON(http.StatusOK, OptionsResponse{Settings: s, LoggedIn: s.LoggedIn()})
}

// HandlePutOptions replaces the stored options. The session token is not
// touched.
func (h *OptionsHandlerImpl) HandlePutOptions(c echo.Context) error {
	var s models.Settings
	if err := c.Bind(&s); err != nil {
		return NewBadRequestError("invalid options", err)
	}
	if err := validateRequest(&s); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.options.SaveOptions(ctx, s); err != nil {
		return NewInternalError("failed to save options", err)
	}
	h.sink.Record("Settings saved.")

	saved, err := h.options.Load(ctx)
	if err != nil {
		return NewInternalError("failed to read options", err)
	}
	return c.JSON(http.StatusOK, OptionsResponse{Settings: saved, LoggedIn: saved.LoggedIn()})
}
