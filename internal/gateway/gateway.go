// Package gateway owns the session token lifecycle for outbound commands.
// A command is tried with the stored token; when the service turns it
// away the user is asked to log in, the new token is stored, and the
// command is retried exactly once.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Credentials is the part of the credential store the gateway uses.
type Credentials interface {
	Load(ctx context.Context) (models.Settings, error)
	SaveToken(ctx context.Context, token string, issuedAt time.Time) error
	ClearToken(ctx context.Context) error
}

// Recorder receives operator-facing diagnostics.
type Recorder interface {
	Record(message string)
	Recordf(format string, args ...interface{})
}

// Prompter puts a login form in front of the user. Whatever the user
// submits comes back as an ActionLogin message on the bus.
type Prompter interface {
	OpenLoginPrompt(ctx context.Context) error
}

// call is one outbound command attempt with the given settings.
type call func(ctx context.Context, s models.Settings) error

// Gateway is safe for concurrent use.
type Gateway struct {
	creds  Credentials
	client *Client
	sink   Recorder
	bus    *messenger.Bus
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	prompter Prompter

	flight singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Gateway and registers its handlers on bus.
func New(creds Credentials, client *Client, sink Recorder, bus *messenger.Bus, prompter Prompter, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		creds:    creds,
		client:   client,
		sink:     sink,
		bus:      bus,
		prompter: prompter,
		log:      log,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	g.register()
	return g
}

// SetPrompter replaces the login prompt, for wiring after the browser
// bridge is up.
func (g *Gateway) SetPrompter(p Prompter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompter = p
}

func (g *Gateway) currentPrompter() Prompter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.prompter
}

func (g *Gateway) register() {
	g.bus.Handle(models.ActionLocate, func(_ context.Context, msg models.Message) (models.Response, error) {
		if msg.Command == nil {
			return models.Response{}, errors.New("locate message without command")
		}
		cmd := *msg.Command
		g.async(func(ctx context.Context) { g.Submit(ctx, cmd) })
		return models.Response{Done: true}, nil
	})
	g.bus.Handle(models.ActionDevices, func(_ context.Context, msg models.Message) (models.Response, error) {
		if len(msg.Devices) == 0 {
			return models.Response{}, errors.New("device message without commands")
		}
		cmds := append([]models.DeviceCommand(nil), msg.Devices...)
		g.async(func(ctx context.Context) { g.SubmitDevices(ctx, cmds) })
		return models.Response{Done: true}, nil
	})
}

func (g *Gateway) async(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.baseCtx)
	}()
}

// Close cancels background work (a pending login prompt included) and
// waits for it to finish.
func (g *Gateway) Close() {
	g.cancel()
	g.wg.Wait()
}

// Wait blocks until background commands have finished, without cancelling.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Submit sends a locate command and reports whether the service accepted
// it. Without a stored token it fails immediately, with no network I/O,
// and the login flow continues in the background; its retry is visible
// only in the log.
func (g *Gateway) Submit(ctx context.Context, cmd models.Command) bool {
	if cmd.Quantity != "" {
		g.sink.Recordf("Processing request for order number: %s and item SKU: %s with quantity %s", cmd.OrderNumber, cmd.ItemSku, cmd.Quantity)
	} else {
		g.sink.Recordf("Processing request for order number: %s and item SKU: %s", cmd.OrderNumber, cmd.ItemSku)
	}
	return g.run(ctx, func(ctx context.Context, s models.Settings) error {
		return g.locate(ctx, s, cmd)
	})
}

// SubmitDevices sends a device-control batch under the same session rules
// as Submit.
func (g *Gateway) SubmitDevices(ctx context.Context, cmds []models.DeviceCommand) bool {
	g.sink.Recordf("Processing %d device command(s)", len(cmds))
	return g.run(ctx, func(ctx context.Context, s models.Settings) error {
		return g.devices(ctx, s, cmds)
	})
}

func (g *Gateway) run(ctx context.Context, c call) bool {
	s, err := g.creds.Load(ctx)
	if err != nil {
		g.log.Error("loading settings failed", zap.Error(err))
		g.sink.Recordf("Could not read settings: %v", err)
		return false
	}

	err = c(ctx, s)
	switch {
	case err == nil:
		return true
	case !needsLogin(err):
		g.log.Warn("command failed", zap.Error(err))
		return false
	case errors.Is(err, ErrNotAuthenticated):
		g.async(func(ctx context.Context) { g.retryAfterLogin(ctx, c) })
		return false
	default:
		return g.retryAfterLogin(ctx, c)
	}
}

func (g *Gateway) retryAfterLogin(ctx context.Context, c call) bool {
	token, err := g.reauthenticate(ctx)
	if err != nil {
		g.log.Warn("login failed", zap.Error(err))
		return false
	}
	s, err := g.creds.Load(ctx)
	if err != nil {
		g.sink.Recordf("Could not read settings: %v", err)
		return false
	}
	s.APIKey = token
	if err := c(ctx, s); err != nil {
		g.log.Warn("retry after login failed", zap.Error(err))
		return false
	}
	return true
}

// reauthenticate runs the login flow. Callers that fail while a flow is
// already open join it instead of opening a second prompt.
func (g *Gateway) reauthenticate(ctx context.Context) (string, error) {
	v, err, shared := g.flight.Do("login", func() (interface{}, error) {
		return g.promptAndLogin(ctx)
	})
	if shared {
		g.log.Debug("joined login already in progress")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Gateway) promptAndLogin(ctx context.Context) (string, error) {
	g.sink.Record("Getting new login credentials.")

	prompter := g.currentPrompter()
	once := g.bus.ListenOnce(models.ActionLogin)
	if prompter == nil {
		once.Cancel()
		g.sink.Record("No login prompt available.")
		return "", errors.New("no login prompt configured")
	}
	if err := prompter.OpenLoginPrompt(ctx); err != nil {
		once.Cancel()
		g.sink.Recordf("Could not open login prompt: %v", err)
		return "", err
	}

	msg, err := once.Wait(ctx)
	if err != nil {
		return "", err
	}
	if msg.Login == nil {
		g.sink.Record("Login prompt returned no credentials.")
		return "", errors.New("login message without credentials")
	}
	return g.Login(ctx, *msg.Login)
}

// Login exchanges credentials for a new session token and stores it.
func (g *Gateway) Login(ctx context.Context, req models.LoginRequest) (string, error) {
	s, err := g.creds.Load(ctx)
	if err != nil {
		g.sink.Recordf("Could not read settings: %v", err)
		return "", err
	}

	g.sink.Recordf("Sending login request to %s with username: %s", LoginURL(s.Endpoint), req.Username)
	start := g.now()
	token, err := g.client.Login(ctx, s.Endpoint, req)
	if err != nil {
		g.sink.Recordf("Communication error: %v", err)
		return "", err
	}
	elapsed := g.now().Sub(start)
	g.sink.Record("Login response: OK")
	g.sink.Recordf("Login request took: %d ms", elapsed.Milliseconds())

	if err := g.creds.SaveToken(ctx, token, g.now()); err != nil {
		g.sink.Recordf("Could not save session: %v", err)
		return "", err
	}
	return token, nil
}

// Logout forgets the session token.
func (g *Gateway) Logout(ctx context.Context) error {
	if err := g.creds.ClearToken(ctx); err != nil {
		return err
	}
	g.sink.Record("Logged out.")
	return nil
}

func (g *Gateway) locate(ctx context.Context, s models.Settings, cmd models.Command) error {
	if !s.LoggedIn() {
		g.sink.Record("Not logged in.")
		return ErrNotAuthenticated
	}
	u := LocateURL(s, cmd)
	g.sink.Record("Attempting: " + u)

	start := g.now()
	res, err := g.client.Get(ctx, u, s.APIKey)
	return g.report(res, err, g.now().Sub(start))
}

func (g *Gateway) devices(ctx context.Context, s models.Settings, cmds []models.DeviceCommand) error {
	if !s.LoggedIn() {
		g.sink.Record("Not logged in.")
		return ErrNotAuthenticated
	}
	u := g.client.DevicesURL(s.Endpoint)
	g.sink.Recordf("Attempting: %s (%d device command(s))", u, len(cmds))

	start := g.now()
	res, err := g.client.PostJSON(ctx, u, s.APIKey, cmds)
	return g.report(res, err, g.now().Sub(start))
}

// report logs the outcome of one network call. The server-side time is
// subtracted from the measured time to show the overhead on our side.
func (g *Gateway) report(res *RemoteResult, err error, elapsed time.Duration) error {
	if err != nil {
		var rejected *RemoteRejectedError
		if errors.As(err, &rejected) {
			g.sink.Recordf("Error: %d %s", rejected.Status, rejected.StatusText)
			g.sink.Recordf("Total elapsed time: %d ms", elapsed.Milliseconds())
		} else {
			g.sink.Recordf("Communication error: %v", err)
		}
		return err
	}

	g.sink.Recordf("Success: %s", res.StatusText)
	if res.DecodeErr != nil {
		g.sink.Recordf("Unreadable response body: %v", res.DecodeErr)
	} else {
		server := res.ServerTime.Milliseconds()
		g.sink.Recordf("ShipStationTime: %d ms", server)
		g.sink.Recordf("VoodooTime: %d ms", elapsed.Milliseconds()-server)
		for _, issue := range res.Issues {
			g.sink.Record("Issue: " + issue)
		}
	}
	g.sink.Recordf("Total elapsed time: %d ms", elapsed.Milliseconds())
	return nil
}
