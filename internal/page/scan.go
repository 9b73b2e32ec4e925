package page

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"golang.org/x/net/html"
)

// ScanRow is one item line of the scan page.
type ScanRow struct {
	SKU         string
	UPC         string
	ProductName string
	Quantity    int
	Verified    bool
}

// ScanView is what the scan page currently shows.
type ScanView struct {
	OrderNumber    string
	ShipmentNumber string
	Rows           []ScanRow
}

// readScanView reads the scan page enclosing n, or the first one in the
// document when n is nil. It returns nil when no scan page is showing.
func (c *Catalog) readScanView(doc *Document, n *html.Node) (*ScanView, error) {
	s := &c.Scan
	var view *html.Node
	if n != nil {
		view = closest(n, s.view)
	} else {
		view = query(doc.Root, s.view)
	}
	if view == nil {
		return nil, nil
	}
	header := query(view, s.header)
	if header == nil {
		return nil, nil
	}

	v := &ScanView{
		OrderNumber:    Normalize(innerText(query(header, s.order)), s.OrderPrefix),
		ShipmentNumber: Normalize(innerText(query(header, s.shipment)), s.ShipmentPrefix),
	}
	if v.OrderNumber == "" {
		return nil, missing(models.TriggerScanOrder, "order number")
	}
	for _, row := range queryAll(view, s.row) {
		r, err := c.readScanRow(row)
		if err != nil {
			return nil, err
		}
		v.Rows = append(v.Rows, r)
	}
	return v, nil
}

func (c *Catalog) readScanRow(row *html.Node) (ScanRow, error) {
	s := &c.Scan
	r := ScanRow{
		SKU:         Normalize(innerText(query(row, s.sku)), s.SKUPrefix),
		UPC:         Normalize(innerText(query(row, s.upc)), s.UPCPrefix),
		ProductName: strings.Join(strings.Fields(innerText(query(row, s.name))), " "),
		Quantity:    1,
		Verified:    s.verified.Match(row) || query(row, s.verified) != nil,
	}
	if r.SKU == "" {
		return ScanRow{}, missing(models.TriggerScanItem, "sku")
	}
	if q, err := strconv.Atoi(Normalize(innerText(query(row, s.quantity)), s.QuantityPrefix)); err == nil && q > 0 {
		r.Quantity = q
	}
	return r, nil
}

// ScanSession holds the state of one scan page visit: the nonces of
// rows that were flashed and not yet killed, and whether the automatic
// submit already ran. It is created when the scan page appears and
// dropped when it goes away or shows another shipment.
type ScanSession struct {
	ID             string
	OrderNumber    string
	ShipmentNumber string

	mu            sync.Mutex
	nonces        map[string]string
	autoSubmitted bool
	entropy       func() string
}

// NewScanSession starts a session for the shown order and shipment.
func NewScanSession(order, shipment string) *ScanSession {
	return &ScanSession{
		ID:             uuid.NewString(),
		OrderNumber:    order,
		ShipmentNumber: shipment,
		nonces:         make(map[string]string),
		entropy:        uuid.NewString,
	}
}

func (s *ScanSession) matches(v *ScanView) bool {
	return s.OrderNumber == v.OrderNumber && s.ShipmentNumber == v.ShipmentNumber
}

// newNonce creates a nonce for row and caches it under the row's SKU,
// replacing any earlier one.
func (s *ScanSession) newNonce(operator string, row ScanRow) string {
	nonce := strings.Join([]string{
		operator,
		s.OrderNumber,
		s.ShipmentNumber,
		row.SKU,
		strconv.Itoa(row.Quantity),
		s.entropy(),
	}, "-")

	s.mu.Lock()
	s.nonces[row.SKU] = nonce
	s.mu.Unlock()
	return nonce
}

// Nonce returns the cached nonce for sku.
func (s *ScanSession) Nonce(sku string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[sku]
	return n, ok
}

// takeNonce removes and returns the cached nonce for sku. A nonce is
// handed out once.
func (s *ScanSession) takeNonce(sku string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[sku]
	if ok {
		delete(s.nonces, sku)
	}
	return n, ok
}

// claimAutoSubmit returns true once per session.
func (s *ScanSession) claimAutoSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoSubmitted {
		return false
	}
	s.autoSubmitted = true
	return true
}

// Flash builds the flash command for row with a fresh nonce.
func (s *ScanSession) Flash(settings models.Settings, row ScanRow) models.DeviceCommand {
	cmd := models.DeviceCommand{
		Command:  models.DeviceFlash,
		Location: row.SKU,
		Color:    settings.Color,
		Seconds:  settings.Seconds,
		Quantity: row.Quantity,
		Lines:    s.lines(settings, row),
		Nonce:    s.newNonce(settings.Name, row),
	}
	if settings.AddSkuBarcode {
		cmd.Barcode = row.SKU
	}
	if settings.Beep {
		cmd.Sound = "beep"
	}
	return cmd
}

// Kill builds the kill command for sku if a flash for it is outstanding.
func (s *ScanSession) Kill(sku string) (models.DeviceCommand, bool) {
	nonce, ok := s.takeNonce(sku)
	if !ok {
		return models.DeviceCommand{}, false
	}
	return models.DeviceCommand{Command: models.DeviceKill, Location: sku, Nonce: nonce}, true
}

func (s *ScanSession) lines(settings models.Settings, row ScanRow) []string {
	var lines []string
	add := func(v string) {
		if v != "" {
			lines = append(lines, v)
		}
	}
	add(settings.Name)
	add(settings.Pickword)
	if settings.AddOrder {
		add(s.OrderNumber)
	}
	if settings.AddShipment {
		add(s.ShipmentNumber)
	}
	if settings.AddUPC {
		add(row.UPC)
	}
	if settings.AddProductName {
		add(row.ProductName)
	}
	if len(lines) == 0 {
		add(row.SKU)
	}
	return lines
}
