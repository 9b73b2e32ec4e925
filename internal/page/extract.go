package page

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"golang.org/x/net/html"
)

// ErrUnknownKind is returned when no pattern or extractor exists for a
// trigger kind.
var ErrUnknownKind = errors.New("unknown trigger kind")

// ExtractionError means the markup around a control did not have the
// shape its pattern expects. It is not retried.
type ExtractionError struct {
	Kind    models.TriggerKind
	Missing string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %s not found", e.Kind, e.Missing)
}

func missing(kind models.TriggerKind, what string) error {
	return &ExtractionError{Kind: kind, Missing: what}
}

// extractFunc derives a locate command from the node that carries the
// control. It only reads the tree.
type extractFunc func(p *Pattern, doc *Document, host *html.Node) (models.Command, error)

var extractors = map[models.TriggerKind]extractFunc{
	models.TriggerOrderColumn: extractOrderColumn,
	models.TriggerSkuColumn:   extractSkuColumn,
	models.TriggerPanelSku:    extractPanelSku,
	models.TriggerOrderHeader: extractOrderHeader,
	models.TriggerSkuHeader:   extractSkuHeader,
	models.TriggerBatchHeader: extractBatchHeader,
}

// Extract builds the locate command for a control of a non-scan kind.
func (c *Catalog) Extract(doc *Document, kind models.TriggerKind, host *html.Node) (models.Command, error) {
	p := c.Pattern(kind)
	fn, ok := extractors[kind]
	if p == nil || !ok {
		return models.Command{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	cmd, err := fn(p, doc, host)
	if err != nil {
		return models.Command{}, err
	}
	cmd.Kind = kind
	return cmd, nil
}

func extractOrderColumn(p *Pattern, _ *Document, host *html.Node) (models.Command, error) {
	order := Normalize(innerText(host), "")
	if order == "" {
		return models.Command{}, missing(p.Kind, "order number")
	}
	return models.Command{OrderNumber: order, ItemSku: models.AllItems}, nil
}

// extractSkuColumn reads the SKU cell and the order cell leading its row.
// Rows after the first line of a multi-item order leave the order cell
// blank, so earlier rows are searched for one that has it.
func extractSkuColumn(p *Pattern, _ *Document, host *html.Node) (models.Command, error) {
	raw := innerText(host)
	sku := Normalize(raw, "")
	if header := p.text("headerText"); header != "" && strings.Contains(raw, header) {
		sku = models.AllItems
	}

	row := host.Parent
	if row == nil {
		return models.Command{}, missing(p.Kind, "row")
	}
	order := Normalize(innerText(firstElementChild(row)), "")
	if order == "" {
		prev := previousRowWithLeadingText(row)
		if prev == nil {
			return models.Command{}, missing(p.Kind, "order number")
		}
		order = Normalize(innerText(firstElementChild(prev)), "")
	}
	return models.Command{OrderNumber: order, ItemSku: sku}, nil
}

func previousRowWithLeadingText(row *html.Node) *html.Node {
	for s := previousElementSibling(row); s != nil; s = previousElementSibling(s) {
		if first := firstElementChild(s); first != nil && strings.TrimSpace(innerText(first)) != "" {
			return s
		}
	}
	return nil
}

// extractPanelSku reads the side panel. With several orders selected each
// item group has an "Items from Order #N" title; with one order the title
// reads just "Items" and the order number sits at the top of the side bar.
func extractPanelSku(p *Pattern, _ *Document, host *html.Node) (models.Command, error) {
	sku := Normalize(innerText(host), "")

	wrapper := closest(host, p.field("wrapper"))
	if wrapper == nil {
		return models.Command{}, missing(p.Kind, "item display wrapper")
	}

	var order string
	if title := closestPreviousSibling(wrapper, p.field("title")); title != nil {
		order = Normalize(innerText(title), p.text("titlePrefix"))
	}
	if order == "" || order == p.text("singleOrderTitle") {
		sidebar := closest(host, p.field("sidebar"))
		if sidebar == nil {
			return models.Command{}, missing(p.Kind, "side bar")
		}
		order = Normalize(innerText(firstElementChild(firstElementChild(firstElementChild(sidebar)))), "")
	}
	if order == "" {
		return models.Command{}, missing(p.Kind, "order number")
	}

	var quantity string
	if sel := p.field("quantity"); sel != nil {
		if q := query(wrapper, sel); q != nil {
			quantity = Normalize(innerText(q), "")
		}
	}
	return models.Command{OrderNumber: order, ItemSku: sku, Quantity: quantity}, nil
}

func drawerOrderNumber(p *Pattern, host *html.Node) (string, error) {
	drawer := closest(host, p.field("drawer"))
	if drawer == nil {
		return "", missing(p.Kind, "drawer")
	}
	info := query(drawer, p.field("orderInfo"))
	if info == nil {
		return "", missing(p.Kind, "order info")
	}
	order := Normalize(innerText(info), p.text("orderPrefix"))
	if order == "" {
		return "", missing(p.Kind, "order number")
	}
	return order, nil
}

func extractOrderHeader(p *Pattern, _ *Document, host *html.Node) (models.Command, error) {
	order, err := drawerOrderNumber(p, host)
	if err != nil {
		return models.Command{}, err
	}
	return models.Command{OrderNumber: order, ItemSku: models.AllItems}, nil
}

// extractSkuHeader reads a line of the drawer's item table. The control
// sits on the quantity cell; the SKU is in a sibling cell.
func extractSkuHeader(p *Pattern, _ *Document, host *html.Node) (models.Command, error) {
	skuCell := query(host.Parent, p.field("sku"))
	if skuCell == nil {
		return models.Command{}, missing(p.Kind, "sku")
	}
	sku := Normalize(innerText(skuCell), p.text("skuPrefix"))

	order, err := drawerOrderNumber(p, host)
	if err != nil {
		return models.Command{}, err
	}
	return models.Command{
		OrderNumber: order,
		ItemSku:     sku,
		Quantity:    Normalize(innerText(host), ""),
	}, nil
}

// extractBatchHeader locates every order currently listed on the page.
func extractBatchHeader(p *Pattern, doc *Document, host *html.Node) (models.Command, error) {
	var orders []string
	seen := make(map[string]bool)
	for _, n := range cascadia.QueryAll(doc.Root, p.field("orders")) {
		order := Normalize(innerText(n), "")
		if order == "" || seen[order] {
			continue
		}
		seen[order] = true
		orders = append(orders, order)
	}
	if len(orders) == 0 {
		return models.Command{}, missing(p.Kind, "visible orders")
	}
	return models.Command{
		OrderNumber: strings.Join(orders, ","),
		ItemSku:     models.AllItems,
		Label:       "Batch: " + strings.Join(strings.Fields(innerText(host)), " "),
	}, nil
}
