// Package browser drives the operator's Chrome over the DevTools protocol.
// It installs the watcher into the host page, feeds the watcher's reports
// to the page observer, and opens the login prompt when the gateway asks.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/tblumenau/voodoo-ss-extension/internal/page"
	"github.com/tblumenau/voodoo-ss-extension/internal/web"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

// Names of the functions the watcher calls.
const (
	MutationsBinding = "voodooMutations"
	ActivateBinding  = "voodooActivate"
)

// ErrNotStarted is returned when the bridge has no browser connection.
var ErrNotStarted = errors.New("browser bridge not started")

// Options configures how the bridge reaches Chrome and the daemon.
type Options struct {
	// DebuggerURL of a running Chrome. Empty launches one.
	DebuggerURL string
	Binary      string
	Headless    bool
	// HostPageURL is opened in a new tab on start. Empty attaches to the
	// tabs already open.
	HostPageURL string
	// BaseURL of the daemon's HTTP server, for the icon and login page.
	BaseURL      string
	PromptWidth  int
	PromptHeight int
}

// Sender delivers messages to the gateway.
type Sender interface {
	Send(ctx context.Context, msg models.Message) (models.Response, error)
}

// Recorder appends lines to the operator-visible log.
type Recorder interface {
	Recordf(format string, args ...interface{})
}

// snapshotter is the part of a page the handlers read.
type snapshotter interface {
	HTML() (string, error)
}

// batchRequest is what the watcher sends to MutationsBinding. Initial is
// set once per document, after the watcher has stamped the whole tree.
type batchRequest struct {
	page.Batch
	Initial bool `json:"initial"`
}

// Bridge connects one Chrome instance to the observer.
type Bridge struct {
	opts     Options
	observer *page.Observer
	bus      Sender
	sink     Recorder
	log      *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	launcher *launcher.Launcher
	browser  *rod.Browser
	prompt   *rod.Page
	stops    []func() error
}

// New creates a Bridge. Call Start to connect.
func New(opts Options, observer *page.Observer, bus Sender, sink Recorder, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PromptWidth <= 0 {
		opts.PromptWidth = 400
	}
	if opts.PromptHeight <= 0 {
		opts.PromptHeight = 300
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Bridge{opts: opts, observer: observer, bus: bus, sink: sink, log: log}
}

// Start connects to or launches Chrome and attaches the watcher to the
// host page.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	controlURL, l, err := b.resolve(ctx)
	if err != nil {
		cancel()
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx).NoDefaultDevice()
	if err := browser.Connect(); err != nil {
		cancel()
		if l != nil {
			l.Kill()
		}
		return fmt.Errorf("connecting to chrome: %w", err)
	}

	b.mu.Lock()
	b.ctx, b.cancel = ctx, cancel
	b.launcher, b.browser = l, browser
	b.mu.Unlock()

	if b.opts.HostPageURL != "" {
		p, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return fmt.Errorf("opening host page: %w", err)
		}
		if err := b.Attach(p, false); err != nil {
			return err
		}
		if err := p.Navigate(b.opts.HostPageURL); err != nil {
			return fmt.Errorf("navigating to %s: %w", b.opts.HostPageURL, err)
		}
		return nil
	}

	pages, err := browser.Pages()
	if err != nil {
		return fmt.Errorf("listing tabs: %w", err)
	}
	for _, p := range pages {
		if err := b.Attach(p, true); err != nil {
			b.log.Warn("attaching to tab failed", zap.Error(err))
		}
	}
	return nil
}

func (b *Bridge) resolve(ctx context.Context) (string, *launcher.Launcher, error) {
	if b.opts.DebuggerURL != "" {
		u, err := launcher.ResolveURL(b.opts.DebuggerURL)
		if err != nil {
			return "", nil, fmt.Errorf("resolving debugger url: %w", err)
		}
		return u, nil, nil
	}
	l := launcher.New().Context(ctx).Headless(b.opts.Headless)
	if b.opts.Binary != "" {
		l = l.Bin(b.opts.Binary)
	}
	u, err := l.Launch()
	if err != nil {
		return "", nil, fmt.Errorf("launching chrome: %w", err)
	}
	b.log.Info("chrome launched", zap.String("control", u))
	return u, l, nil
}

// Attach exposes the bindings on p and installs the watcher for every
// future document. With current set the watcher also starts in the
// document already loaded.
func (b *Bridge) Attach(p *rod.Page, current bool) error {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		return ErrNotStarted
	}

	p = p.Context(ctx)
	id := uuid.NewString()
	log := b.log.With(zap.String("page", id))

	stopMutations, err := p.Expose(MutationsBinding, func(req gson.JSON) (interface{}, error) {
		return b.onMutations(ctx, p, req, log)
	})
	if err != nil {
		return fmt.Errorf("exposing %s: %w", MutationsBinding, err)
	}
	stopActivate, err := p.Expose(ActivateBinding, func(req gson.JSON) (interface{}, error) {
		return b.onActivate(ctx, p, req, log)
	})
	if err != nil {
		_ = stopMutations()
		return fmt.Errorf("exposing %s: %w", ActivateBinding, err)
	}

	cfg := b.watcherConfig()
	script, err := web.WatcherScript(cfg)
	if err != nil {
		return err
	}
	remove, err := p.EvalOnNewDocument(script)
	if err != nil {
		return fmt.Errorf("installing watcher: %w", err)
	}

	b.mu.Lock()
	b.stops = append(b.stops, stopMutations, stopActivate, remove)
	b.mu.Unlock()

	if current {
		fn, err := web.WatcherFunc()
		if err != nil {
			return err
		}
		if _, err := p.Eval(fn, cfg); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}
	log.Info("watcher attached", zap.Bool("current", current))
	return nil
}

func (b *Bridge) watcherConfig() web.WatcherConfig {
	return web.WatcherConfig{IconURL: b.opts.BaseURL + web.IconPath}
}

// onMutations handles one batch from the watcher and returns the
// injections for it to apply.
func (b *Bridge) onMutations(ctx context.Context, p snapshotter, req gson.JSON, log *zap.Logger) (interface{}, error) {
	var in batchRequest
	if err := decode(req, &in); err != nil {
		return nil, fmt.Errorf("decoding batch: %w", err)
	}
	doc, err := snapshot(p)
	if err != nil {
		log.Warn("page snapshot failed", zap.Error(err))
		return nil, err
	}

	var out page.Outcome
	if in.Initial {
		out, err = b.observer.Scan(ctx, doc)
	} else {
		out, err = b.observer.HandleMutations(ctx, doc, in.Batch)
	}
	if err != nil {
		log.Warn("processing batch failed", zap.Error(err))
		return nil, err
	}

	for _, msg := range out.Messages {
		b.send(ctx, msg, log)
	}
	if len(out.Injections) > 0 {
		log.Debug("injecting controls", zap.Int("count", len(out.Injections)))
	}
	if out.Injections == nil {
		return []page.Injection{}, nil
	}
	return out.Injections, nil
}

// onActivate handles a control click. It returns whether a message was
// sent.
func (b *Bridge) onActivate(ctx context.Context, p snapshotter, req gson.JSON, log *zap.Logger) (interface{}, error) {
	var a page.Activation
	if err := decode(req, &a); err != nil {
		return nil, fmt.Errorf("decoding activation: %w", err)
	}
	doc, err := snapshot(p)
	if err != nil {
		log.Warn("page snapshot failed", zap.Error(err))
		return nil, err
	}

	msg, err := b.observer.Activate(ctx, doc, a)
	var extractErr *page.ExtractionError
	switch {
	case errors.As(err, &extractErr):
		log.Warn("control markup not recognized",
			zap.String("kind", string(a.Kind)),
			zap.String("missing", extractErr.Missing))
		b.sink.Recordf("Could not read order details: %v", err)
		return false, nil
	case errors.Is(err, page.ErrStaleControl):
		log.Debug("stale control", zap.String("host", a.Host))
		return false, nil
	case err != nil:
		log.Error("activation failed", zap.Error(err))
		return nil, err
	}
	return b.send(ctx, msg, log), nil
}

func (b *Bridge) send(ctx context.Context, msg models.Message, log *zap.Logger) bool {
	_, err := b.bus.Send(ctx, msg)
	switch {
	case errors.Is(err, messenger.ErrNoReceiver):
		log.Warn("no receiver for message", zap.String("action", string(msg.Action)))
		return false
	case err != nil:
		log.Error("sending message failed", zap.String("action", string(msg.Action)), zap.Error(err))
		return false
	}
	return true
}

// decode converts a binding argument, which rod hands over already
// parsed, into v.
func decode(req gson.JSON, v interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func snapshot(p snapshotter) (*page.Document, error) {
	src, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("reading page html: %w", err)
	}
	return page.Parse(src)
}

// OpenLoginPrompt opens the login page in a small window. A prompt that
// is still open is closed first.
func (b *Bridge) OpenLoginPrompt(ctx context.Context) error {
	b.mu.Lock()
	browser, prev := b.browser, b.prompt
	b.prompt = nil
	b.mu.Unlock()
	if browser == nil {
		return ErrNotStarted
	}
	if prev != nil {
		_ = prev.Close()
	}

	p, err := browser.Context(ctx).Page(b.promptTarget())
	if err != nil {
		return fmt.Errorf("opening login prompt: %w", err)
	}
	b.mu.Lock()
	b.prompt = p
	b.mu.Unlock()
	b.log.Info("login prompt opened")
	return nil
}

func (b *Bridge) promptTarget() proto.TargetCreateTarget {
	return proto.TargetCreateTarget{
		URL:       b.opts.BaseURL + web.LoginPath,
		Width:     gson.Int(b.opts.PromptWidth),
		Height:    gson.Int(b.opts.PromptHeight),
		NewWindow: true,
	}
}

// Close detaches the watcher and disconnects. A browser the bridge
// launched is killed.
func (b *Bridge) Close() error {
	b.mu.Lock()
	stops, browser, l, cancel := b.stops, b.browser, b.launcher, b.cancel
	b.stops, b.browser, b.launcher, b.cancel, b.prompt = nil, nil, nil, nil, nil
	b.mu.Unlock()

	var errs []error
	for _, stop := range stops {
		if err := stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if browser != nil && l == nil {
		// Leave a browser we did not launch running.
		if cancel != nil {
			cancel()
		}
		return errors.Join(errs...)
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if l != nil {
		l.Kill()
		l.Cleanup()
	}
	return errors.Join(errs...)
}
