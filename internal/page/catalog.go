package page

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/andybalholm/cascadia"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Placement says where a control goes relative to its target node.
type Placement string

const (
	// PlaceAppend appends the control to the target.
	PlaceAppend Placement = "append"
	// PlaceAppendTo appends the control to the first descendant of the
	// target matching PlaceAt.
	PlaceAppendTo Placement = "append-to"
	// PlaceAfterText inserts the control right after the first match of
	// the PlaceAt expression in the target's markup.
	PlaceAfterText Placement = "after-text"
)

// Variant overrides the control style when the target sits inside an
// ancestor with the given class prefix.
type Variant struct {
	WithinClassPrefix string `yaml:"withinClassPrefix"`
	Style             string `yaml:"style"`
	HostStyle         string `yaml:"hostStyle"`
}

// Pattern recognizes one kind of region on the page.
type Pattern struct {
	Kind      models.TriggerKind `yaml:"kind"`
	Selector  string             `yaml:"selector"`
	Target    string             `yaml:"target"`
	Placement Placement          `yaml:"placement"`
	PlaceAt   string             `yaml:"placeAt"`
	Style     string             `yaml:"style"`
	// AllowInDrawer lets the pattern match inside the order details
	// drawer, which list patterns skip to avoid duplicate controls.
	AllowInDrawer bool `yaml:"allowInDrawer"`
	// FullModeOnly patterns are skipped in minimal mode.
	FullModeOnly bool              `yaml:"fullModeOnly"`
	Variants     []Variant         `yaml:"variants"`
	Fields       map[string]string `yaml:"fields"`

	sel     cascadia.Selector
	placeAt cascadia.Selector
	textAt  *regexp.Regexp
	fields  map[string]cascadia.Selector
}

// ScanLayout describes the scan page.
type ScanLayout struct {
	View           string `yaml:"view"`
	Header         string `yaml:"header"`
	OrderNumber    string `yaml:"orderNumber"`
	ShipmentNumber string `yaml:"shipmentNumber"`
	Row            string `yaml:"row"`
	SKU            string `yaml:"sku"`
	UPC            string `yaml:"upc"`
	ProductName    string `yaml:"productName"`
	Quantity       string `yaml:"quantity"`
	Verified       string `yaml:"verified"`

	OrderPrefix    string `yaml:"orderPrefix"`
	ShipmentPrefix string `yaml:"shipmentPrefix"`
	SKUPrefix      string `yaml:"skuPrefix"`
	UPCPrefix      string `yaml:"upcPrefix"`
	QuantityPrefix string `yaml:"quantityPrefix"`

	view, header, order, shipment, row cascadia.Selector
	sku, upc, name, quantity, verified cascadia.Selector
}

// Catalog is the static pattern table. It is not modified after load.
type Catalog struct {
	DrawerClassPrefix string     `yaml:"drawerClassPrefix"`
	HeaderChild       string     `yaml:"headerChild"`
	ControlSize       int        `yaml:"controlSize"`
	Scan              ScanLayout `yaml:"scan"`
	Patterns          []*Pattern `yaml:"patterns"`

	headerChild cascadia.Selector
}

// requiredFields lists the field selectors each extractor reads.
var requiredFields = map[models.TriggerKind][]string{
	models.TriggerPanelSku:    {"wrapper", "title", "sidebar"},
	models.TriggerOrderHeader: {"drawer", "orderInfo"},
	models.TriggerSkuHeader:   {"drawer", "orderInfo", "sku"},
	models.TriggerBatchHeader: {"orders"},
}

// selectorFields are compiled as selectors; other fields are plain text.
var selectorFields = map[string]bool{
	"wrapper": true, "title": true, "sidebar": true, "quantity": true,
	"drawer": true, "orderInfo": true, "sku": true, "orders": true,
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and compiles a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) compile() error {
	if c.ControlSize <= 0 {
		c.ControlSize = 16
	}
	if c.HeaderChild != "" {
		sel, err := cascadia.Compile(c.HeaderChild)
		if err != nil {
			return fmt.Errorf("headerChild: %w", err)
		}
		c.headerChild = sel
	}
	if err := c.Scan.compile(); err != nil {
		return err
	}

	seen := make(map[models.TriggerKind]bool)
	for i, p := range c.Patterns {
		if !p.Kind.Valid() {
			return fmt.Errorf("pattern %d: unknown kind %q", i, p.Kind)
		}
		if seen[p.Kind] {
			return fmt.Errorf("pattern %d: duplicate kind %q", i, p.Kind)
		}
		seen[p.Kind] = true
		if err := p.compile(); err != nil {
			return fmt.Errorf("pattern %s: %w", p.Kind, err)
		}
	}
	return nil
}

func (p *Pattern) compile() error {
	sel, err := cascadia.Compile(p.Selector)
	if err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	p.sel = sel

	switch p.Target {
	case "", "self", "parent":
	default:
		return fmt.Errorf("unknown target %q", p.Target)
	}

	switch p.Placement {
	case "":
		p.Placement = PlaceAppend
	case PlaceAppend:
	case PlaceAppendTo:
		if p.placeAt, err = cascadia.Compile(p.PlaceAt); err != nil {
			return fmt.Errorf("placeAt: %w", err)
		}
	case PlaceAfterText:
		if p.textAt, err = regexp.Compile(p.PlaceAt); err != nil {
			return fmt.Errorf("placeAt: %w", err)
		}
	default:
		return fmt.Errorf("unknown placement %q", p.Placement)
	}

	p.fields = make(map[string]cascadia.Selector)
	for name, raw := range p.Fields {
		if !selectorFields[name] {
			continue
		}
		sel, err := cascadia.Compile(raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		p.fields[name] = sel
	}
	for _, name := range requiredFields[p.Kind] {
		if _, ok := p.fields[name]; !ok {
			return fmt.Errorf("missing field %q", name)
		}
	}
	return nil
}

func (s *ScanLayout) compile() error {
	targets := []struct {
		name string
		raw  string
		dst  *cascadia.Selector
	}{
		{"view", s.View, &s.view},
		{"header", s.Header, &s.header},
		{"orderNumber", s.OrderNumber, &s.order},
		{"shipmentNumber", s.ShipmentNumber, &s.shipment},
		{"row", s.Row, &s.row},
		{"sku", s.SKU, &s.sku},
		{"upc", s.UPC, &s.upc},
		{"productName", s.ProductName, &s.name},
		{"quantity", s.Quantity, &s.quantity},
		{"verified", s.Verified, &s.verified},
	}
	for _, t := range targets {
		sel, err := cascadia.Compile(t.raw)
		if err != nil {
			return fmt.Errorf("scan.%s: %w", t.name, err)
		}
		*t.dst = sel
	}
	return nil
}

// Pattern returns the pattern for kind, or nil.
func (c *Catalog) Pattern(kind models.TriggerKind) *Pattern {
	for _, p := range c.Patterns {
		if p.Kind == kind {
			return p
		}
	}
	return nil
}

func (p *Pattern) field(name string) cascadia.Selector {
	return p.fields[name]
}

func (p *Pattern) text(name string) string {
	return p.Fields[name]
}

// target resolves the node that receives the control for a match.
func (p *Pattern) target(match *html.Node) *html.Node {
	if p.Target == "parent" {
		return match.Parent
	}
	return match
}
