package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tblumenau/voodoo-ss-extension/internal/messenger"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/tblumenau/voodoo-ss-extension/internal/page"
	"github.com/ysmood/gson"
	"go.uber.org/zap/zaptest"
)

type fakePage struct {
	html string
	err  error
}

func (f fakePage) HTML() (string, error) {
	return f.html, f.err
}

type fakeRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *fakeRecorder) Recordf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

type staticSettings models.Settings

func (s staticSettings) Load(context.Context) (models.Settings, error) {
	return models.Settings(s), nil
}

type fixture struct {
	bridge *Bridge
	sink   *fakeRecorder

	mu   sync.Mutex
	sent []models.Message
}

func (f *fixture) messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.sent...)
}

func newFixture(t *testing.T, settings models.Settings, withReceivers bool) *fixture {
	t.Helper()
	catalog, err := page.DefaultCatalog()
	require.NoError(t, err)

	f := &fixture{sink: &fakeRecorder{}}
	bus := messenger.New(nil)
	if withReceivers {
		capture := func(_ context.Context, msg models.Message) (models.Response, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.sent = append(f.sent, msg)
			return models.Response{Done: true}, nil
		}
		bus.Handle(models.ActionLocate, capture)
		bus.Handle(models.ActionDevices, capture)
	}
	log := zaptest.NewLogger(t)
	obs := page.NewObserver(catalog, staticSettings(settings), log)
	f.bridge = New(Options{BaseURL: "http://127.0.0.1:8091/"}, obs, bus, f.sink, log)
	return f
}

// binding wraps req the way the watcher's call arrives through rod.
func binding(req string) gson.JSON {
	return gson.NewFrom(`{"req":` + req + `,"cb":"_cb0"}`).Get("req")
}

const grid = `<html data-voodoo-id="v1"><body data-voodoo-id="v2">
<div role="table" data-voodoo-id="v3">
  <div role="row" data-voodoo-id="row1">
    <div data-column="order-number" role="cell" data-voodoo-id="o1">1001</div>
    <div data-column="item-sku" role="cell" data-voodoo-id="s1">WID-1</div>
  </div>
  <div role="row" data-voodoo-id="row2">
    <div data-column="order-number" role="cell" data-voodoo-id="o2">1002</div>
    <div data-column="item-sku" role="cell" data-voodoo-id="s2">WID-2</div>
  </div>
</div>
<div class="item-sku-label" data-voodoo-id="loose">WID-9</div>
</body></html>`

const scan = `<html><body>
<div class="scan-view" data-voodoo-id="view">
  <div class="scan-header" data-voodoo-id="sh">
    <div class="scan-order-number" data-voodoo-id="son">Order # 5005</div>
    <div class="scan-shipment-number" data-voodoo-id="ssn">Shipment # 77</div>
  </div>
  <div class="info-and-buttons" data-voodoo-id="r1">
    <div class="item-sku" data-voodoo-id="r1s">SKU: AB-1</div>
    <div class="item-quantity" data-voodoo-id="r1q">Qty: 2</div>
  </div>
  <div class="info-and-buttons verified" data-voodoo-id="r2">
    <div class="item-sku" data-voodoo-id="r2s">SKU: CD-2</div>
    <div class="item-quantity" data-voodoo-id="r2q">Qty: 1</div>
  </div>
</div>
</body></html>`

func hosts(t *testing.T, res interface{}) map[string]models.TriggerKind {
	t.Helper()
	injections, ok := res.([]page.Injection)
	require.True(t, ok, "binding result is %T", res)
	out := make(map[string]models.TriggerKind)
	for _, inj := range injections {
		out[inj.Host] = inj.Kind
	}
	return out
}

func TestOnMutations_InitialScan(t *testing.T) {
	f := newFixture(t, models.Settings{}, true)

	res, err := f.bridge.onMutations(context.Background(), fakePage{html: grid}, binding(`{"added":[],"changed":[],"initial":true}`), f.bridge.log)
	require.NoError(t, err)

	got := hosts(t, res)
	assert.Equal(t, models.TriggerOrderColumn, got["o1"])
	assert.Equal(t, models.TriggerOrderColumn, got["o2"])
	assert.Equal(t, models.TriggerSkuColumn, got["s1"])
	assert.Equal(t, models.TriggerSkuColumn, got["s2"])
	assert.Empty(t, f.messages())
}

func TestOnMutations_AddedRootsOnly(t *testing.T) {
	f := newFixture(t, models.Settings{}, true)

	res, err := f.bridge.onMutations(context.Background(), fakePage{html: grid}, binding(`{"added":["row2"],"changed":[]}`), f.bridge.log)
	require.NoError(t, err)

	got := hosts(t, res)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "o2")
	assert.Contains(t, got, "s2")
}

func TestOnMutations_EmptyResultIsList(t *testing.T) {
	f := newFixture(t, models.Settings{}, true)

	res, err := f.bridge.onMutations(context.Background(), fakePage{html: grid}, binding(`{"added":["missing"]}`), f.bridge.log)
	require.NoError(t, err)
	assert.Equal(t, []page.Injection{}, res)
}

func TestOnMutations_AutoSubmitSendsDevices(t *testing.T) {
	f := newFixture(t, models.Settings{Name: "Ana", AutoSubmit: true}, true)

	_, err := f.bridge.onMutations(context.Background(), fakePage{html: scan}, binding(`{"initial":true}`), f.bridge.log)
	require.NoError(t, err)

	msgs := f.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ActionDevices, msgs[0].Action)
	require.Len(t, msgs[0].Devices, 1, "verified rows are not flashed")
	assert.Equal(t, models.DeviceFlash, msgs[0].Devices[0].Command)
	assert.Equal(t, "AB-1", msgs[0].Devices[0].Location)
}

func TestOnMutations_Errors(t *testing.T) {
	f := newFixture(t, models.Settings{}, true)
	ctx := context.Background()

	_, err := f.bridge.onMutations(ctx, fakePage{html: grid}, binding(`"not a batch"`), f.bridge.log)
	assert.Error(t, err)

	_, err = f.bridge.onMutations(ctx, fakePage{err: errors.New("target closed")}, binding(`{}`), f.bridge.log)
	assert.ErrorContains(t, err, "target closed")
}

func TestOnActivate(t *testing.T) {
	tests := []struct {
		name      string
		req       string
		receivers bool
		wantSent  bool
		wantMsgs  int
		wantLog   string
	}{
		{
			name:      "locate command",
			req:       `{"host":"s2","kind":"sku-column"}`,
			receivers: true,
			wantSent:  true,
			wantMsgs:  1,
		},
		{
			name:      "markup not recognized",
			req:       `{"host":"loose","kind":"panel-sku"}`,
			receivers: true,
			wantLog:   "Could not read order details",
		},
		{
			name:      "stale control",
			req:       `{"host":"gone","kind":"order-column"}`,
			receivers: true,
		},
		{
			name: "no receiver",
			req:  `{"host":"o1","kind":"order-column"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, models.Settings{}, tt.receivers)

			res, err := f.bridge.onActivate(context.Background(), fakePage{html: grid}, binding(tt.req), f.bridge.log)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, res)
			assert.Len(t, f.messages(), tt.wantMsgs)

			if tt.wantLog == "" {
				assert.Empty(t, f.sink.lines)
			} else {
				require.Len(t, f.sink.lines, 1)
				assert.True(t, strings.HasPrefix(f.sink.lines[0], tt.wantLog), f.sink.lines[0])
			}
		})
	}
}

func TestOnActivate_LocateCommand(t *testing.T) {
	f := newFixture(t, models.Settings{}, true)

	_, err := f.bridge.onActivate(context.Background(), fakePage{html: grid}, binding(`{"host":"s2","kind":"sku-column"}`), f.bridge.log)
	require.NoError(t, err)

	msgs := f.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ActionLocate, msgs[0].Action)
	require.NotNil(t, msgs[0].Command)
	assert.Equal(t, "1002", msgs[0].Command.OrderNumber)
	assert.Equal(t, "WID-2", msgs[0].Command.ItemSku)
}

func TestPromptTarget(t *testing.T) {
	f := newFixture(t, models.Settings{}, false)

	target := f.bridge.promptTarget()
	assert.Equal(t, "http://127.0.0.1:8091/login", target.URL)
	require.NotNil(t, target.Width)
	require.NotNil(t, target.Height)
	assert.Equal(t, 400, *target.Width)
	assert.Equal(t, 300, *target.Height)
	assert.True(t, target.NewWindow)
}

func TestNotStarted(t *testing.T) {
	f := newFixture(t, models.Settings{}, false)

	assert.ErrorIs(t, f.bridge.OpenLoginPrompt(context.Background()), ErrNotStarted)
	assert.NoError(t, f.bridge.Close())
}

func TestWatcherConfig(t *testing.T) {
	f := newFixture(t, models.Settings{}, false)
	assert.Equal(t, "http://127.0.0.1:8091/static/icon.svg", f.bridge.watcherConfig().IconURL)
}
