// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	options OptionsStore
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, options OptionsStore) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		options: options,
	}
}

// HandleHealth returns server health status and whether a session token
// is held
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.options != nil {
		if s, err := h.options.Load(c.Request().Context()); err == nil {
			body["loggedIn"] = s.LoggedIn()
		}
	}
	return c.JSON(http.StatusOK, body)
}
