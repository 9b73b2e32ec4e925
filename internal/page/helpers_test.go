package page

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"golang.org/x/net/html"
)

type staticSettings models.Settings

func (s staticSettings) Load(context.Context) (models.Settings, error) {
	return models.Settings(s), nil
}

// snapshot parses src and stamps every element that has no watcher id,
// the way the watcher does in the live page.
func snapshot(t *testing.T, src string) *Document {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)

	next := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, IDAttr) == "" {
			next++
			n.Attr = append(n.Attr, html.Attribute{Key: IDAttr, Val: "auto-" + strconv.Itoa(next)})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return NewDocument(root)
}

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	return c
}

func page(body string) string {
	return "<html><body>" + body + "</body></html>"
}

const orderGrid = `
<div role="table" class="orders-grid">
  <div role="row" data-voodoo-id="row1">
    <div data-column="order-number" role="cell" data-voodoo-id="o1">1001-A</div>
    <div data-column="item-sku" role="cell" data-voodoo-id="s1">Item</div>
  </div>
  <div role="row" data-voodoo-id="row2">
    <div data-column="order-number" role="cell" data-voodoo-id="o2">1002</div>
    <div data-column="item-sku" role="cell" data-voodoo-id="s2">WID-1</div>
  </div>
  <div role="row" data-voodoo-id="row3">
    <div data-column="order-number" role="cell" data-voodoo-id="o3"> </div>
    <div data-column="item-sku" role="cell" data-voodoo-id="s3">WID-2</div>
  </div>
</div>`

const sidePanelSingle = `
<div class="side-bar-panel">
  <div><div><div>2001</div></div></div>
  <div class="item-list-title">Items</div>
  <div class="item-display-wrapper">
    <div class="item-sku-label" data-voodoo-id="p1">WID-5</div>
    <div class="item-quantity">3</div>
  </div>
</div>`

const sidePanelMulti = `
<div class="side-bar-panel">
  <div><div><div>ignored</div></div></div>
  <div class="item-list-title">Items from Order # 3003</div>
  <div class="item-display-wrapper">
    <div class="item-sku-label" data-voodoo-id="p2">WID-6</div>
  </div>
</div>`

const detailsDrawer = `
<div class="drawer-panel">
  <div class="order-info-order-number">Order # 4004</div>
  <div class="order-details-drawer-body">
    <div data-voodoo-id="sect">
      <h2 class="order-details-section-title" data-voodoo-id="h2">Items</h2>
      <div class="shipment-items-section-header-labels">SKU Qty</div>
    </div>
    <div data-voodoo-id="line">
      <div class="item-sku-with-order-number">SKU: WID-7</div>
      <div aria-labelledby="quantity" role="cell" data-voodoo-id="q1">2</div>
    </div>
    <div data-column="order-number" role="cell" data-voodoo-id="drawer-order">4004</div>
  </div>
</div>`

const batchHeader = `
<div class="orders-drawer-scrollable">
  <div class="collapsible-list-item-header-content" data-voodoo-id="b1">3 Items selected</div>
</div>`

func scanPage(shipment, r1Class string) string {
	return `
<div class="scan-view">
  <div class="scan-header" data-voodoo-id="sh">
    <div class="scan-order-number">Order # 5005</div>
    <div class="scan-shipment-number">Shipment # ` + shipment + `</div>
  </div>
  <div class="` + r1Class + `" data-voodoo-id="r1">
    <div class="item-sku">SKU: AB-1</div>
    <div class="item-upc">UPC: 0001</div>
    <div class="item-name">Blue   Widget</div>
    <div class="item-quantity">Qty: 2</div>
  </div>
  <div class="info-and-buttons verified" data-voodoo-id="r2">
    <div class="item-sku">SKU: CD-2</div>
    <div class="item-quantity">Qty: 1</div>
  </div>
</div>`
}
