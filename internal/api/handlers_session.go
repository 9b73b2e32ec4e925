// handlers_session.go - Login prompt and logout handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tblumenau/voodoo-ss-extension/internal/gateway"
	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	bus     Messenger
	gateway Gateway
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(bus Messenger, gw Gateway) SessionHandler {
	return &SessionHandlerImpl{bus: bus, gateway: gw}
}

func bindLogin(c echo.Context) (models.LoginRequest, error) {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return req, NewBadRequestError("invalid login request", err)
	}
	if err := validateRequest(&req); err != nil {
		return req, err
	}
	return req, nil
}

// HandleLogin takes the login prompt form and hands the credentials to the
// command waiting on it. A prompt nobody is waiting on any more, such as a
// second submit of the same form, is refused.
func (h *SessionHandlerImpl) HandleLogin(c echo.Context) error {
	req, err := bindLogin(c)
	if err != nil {
		return err
	}

	resp, err := h.bus.Send(c.Request().Context(), models.Message{Action: models.ActionLogin, Login: &req})
	if errors.Is(err, messenger.ErrNoReceiver) {
		return NewNoPromptError("no login is waiting for credentials")
	}
	if err != nil {
		return NewInternalError("failed to deliver login", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleSession logs in directly, as from the options page
func (h *SessionHandlerImpl) HandleSession(c echo.Context) error {
	req, err := bindLogin(c)
	if err != nil {
		return err
	}

	if _, err := h.gateway.Login(c.Request().Context(), req); err != nil {
		var rejected *gateway.RemoteRejectedError
		if errors.As(err, &rejected) {
			return NewUnauthorizedError("login rejected", err)
		}
		return NewBadGatewayError("login failed", err)
	}
	return c.JSON(http.StatusOK, models.Response{Done: true})
}

// HandleLogout forgets the session token
func (h *SessionHandlerImpl) HandleLogout(c echo.Context) error {
	if err := h.gateway.Logout(c.Request().Context()); err != nil {
		return NewInternalError("failed to log out", err)
	}
	return c.JSON(http.StatusOK, models.Response{Done: true})
}
