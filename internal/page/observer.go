// Package page recognizes the regions of the order-fulfillment page that
// get a locate control, decides where controls go, and turns an activated
// control into a command. It works on parsed snapshots of the live
// document; the browser bridge applies its decisions to the real page.
package page

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ErrStaleControl means the activated control's node is no longer in the
// document.
var ErrStaleControl = errors.New("control is no longer on the page")

// SettingsSource supplies the current options.
type SettingsSource interface {
	Load(ctx context.Context) (models.Settings, error)
}

// Batch is one delivery of mutation records from the watcher: the ids of
// added element roots and of elements whose class changed.
type Batch struct {
	Added   []string `json:"added"`
	Changed []string `json:"changed"`
}

// Activation identifies a clicked control.
type Activation struct {
	Host string             `json:"host"`
	Kind models.TriggerKind `json:"kind"`
}

// Outcome is the result of processing a mutation batch: controls to add
// and messages to send without user action.
type Outcome struct {
	Injections []Injection
	Messages   []models.Message
}

// Observer processes mutation batches and control activations for one
// page. Batches are expected one at a time, in delivery order.
type Observer struct {
	catalog  *Catalog
	settings SettingsSource
	log      *zap.Logger

	mu      sync.Mutex
	session *ScanSession
}

// NewObserver creates an Observer.
func NewObserver(catalog *Catalog, settings SettingsSource, log *zap.Logger) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Observer{catalog: catalog, settings: settings, log: log}
}

// Session returns the current scan session, or nil when the scan page is
// not showing.
func (o *Observer) Session() *ScanSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Scan evaluates the whole document, for the first snapshot after the
// watcher attaches.
func (o *Observer) Scan(ctx context.Context, doc *Document) (Outcome, error) {
	return o.process(ctx, doc, []*html.Node{doc.Root}, nil)
}

// HandleMutations evaluates the added roots of a batch and reacts to
// rows of the scan page turning verified.
func (o *Observer) HandleMutations(ctx context.Context, doc *Document, b Batch) (Outcome, error) {
	var roots []*html.Node
	for _, id := range b.Added {
		if n := doc.Node(id); n != nil {
			roots = append(roots, n)
		}
	}
	var changed []*html.Node
	for _, id := range b.Changed {
		if n := doc.Node(id); n != nil {
			changed = append(changed, n)
		}
	}
	return o.process(ctx, doc, roots, changed)
}

func (o *Observer) process(ctx context.Context, doc *Document, roots, changed []*html.Node) (Outcome, error) {
	settings, err := o.settings.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading settings: %w", err)
	}

	var out Outcome
	session, fresh, err := o.syncSession(doc)
	if err != nil {
		o.log.Warn("reading scan page failed", zap.Error(err))
	}
	if session != nil {
		if kills := o.kills(session, changed); len(kills) > 0 {
			out.Messages = append(out.Messages, models.Message{Action: models.ActionDevices, Devices: kills})
		}
		if settings.AutoSubmit {
			if msg, ok := o.autoSubmit(doc, session, settings); ok {
				out.Messages = append(out.Messages, msg)
			}
		}
		if fresh {
			o.log.Info("scan session started",
				zap.String("session", session.ID),
				zap.String("order", session.OrderNumber),
				zap.String("shipment", session.ShipmentNumber))
		}
	}

	seen := make(map[string]bool)
	for _, root := range roots {
		for _, inj := range o.catalog.Injections(root, settings.MinimalMode) {
			key := inj.Host + "|" + string(inj.Kind)
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Injections = append(out.Injections, inj)
		}
	}
	return out, nil
}

// syncSession starts, keeps, or drops the scan session to match the page.
func (o *Observer) syncSession(doc *Document) (*ScanSession, bool, error) {
	view, err := o.catalog.readScanView(doc, nil)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil || view == nil {
		if o.session != nil {
			o.log.Info("scan session ended", zap.String("session", o.session.ID))
		}
		o.session = nil
		return nil, false, err
	}
	if o.session != nil && o.session.matches(view) {
		return o.session, false, nil
	}
	o.session = NewScanSession(view.OrderNumber, view.ShipmentNumber)
	return o.session, true, nil
}

// kills emits a kill for each changed row that turned verified while its
// flash nonce is still cached.
func (o *Observer) kills(session *ScanSession, changed []*html.Node) []models.DeviceCommand {
	var out []models.DeviceCommand
	for _, n := range changed {
		row := closest(n, o.catalog.Scan.row)
		if row == nil {
			continue
		}
		r, err := o.catalog.readScanRow(row)
		if err != nil || !r.Verified {
			continue
		}
		if cmd, ok := session.Kill(r.SKU); ok {
			out = append(out, cmd)
		}
	}
	return out
}

func (o *Observer) autoSubmit(doc *Document, session *ScanSession, settings models.Settings) (models.Message, bool) {
	view, err := o.catalog.readScanView(doc, nil)
	if err != nil || view == nil {
		return models.Message{}, false
	}
	rows := unverified(view.Rows)
	if len(rows) == 0 || !session.claimAutoSubmit() {
		return models.Message{}, false
	}
	return flashMessage(session, settings, rows), true
}

// unverified drops rows that are already verified; a flash for them could
// never be killed.
func unverified(rows []ScanRow) []ScanRow {
	var out []ScanRow
	for _, r := range rows {
		if !r.Verified {
			out = append(out, r)
		}
	}
	return out
}

func flashMessage(session *ScanSession, settings models.Settings, rows []ScanRow) models.Message {
	cmds := make([]models.DeviceCommand, 0, len(rows))
	for _, r := range rows {
		cmds = append(cmds, session.Flash(settings, r))
	}
	return models.Message{Action: models.ActionDevices, Devices: cmds}
}

// Activate turns a clicked control into the message to send: a locate
// command, or a device batch for scan page controls.
func (o *Observer) Activate(ctx context.Context, doc *Document, a Activation) (models.Message, error) {
	host := doc.Node(a.Host)
	if host == nil {
		return models.Message{}, ErrStaleControl
	}
	if !a.Kind.IsScan() {
		cmd, err := o.catalog.Extract(doc, a.Kind, host)
		if err != nil {
			return models.Message{}, err
		}
		return models.Message{Action: models.ActionLocate, Command: &cmd}, nil
	}

	settings, err := o.settings.Load(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("loading settings: %w", err)
	}
	session, _, err := o.syncSession(doc)
	if err != nil {
		return models.Message{}, err
	}
	if session == nil {
		return models.Message{}, missing(a.Kind, "scan page")
	}

	switch a.Kind {
	case models.TriggerScanItem:
		row := closest(host, o.catalog.Scan.row)
		if row == nil {
			return models.Message{}, missing(a.Kind, "scan row")
		}
		r, err := o.catalog.readScanRow(row)
		if err != nil {
			return models.Message{}, err
		}
		return flashMessage(session, settings, []ScanRow{r}), nil
	default:
		view, err := o.catalog.readScanView(doc, host)
		if err != nil {
			return models.Message{}, err
		}
		if view == nil || len(view.Rows) == 0 {
			return models.Message{}, missing(a.Kind, "scan rows")
		}
		rows := unverified(view.Rows)
		if len(rows) == 0 {
			return models.Message{}, missing(a.Kind, "unverified scan rows")
		}
		return flashMessage(session, settings, rows), nil
	}
}
