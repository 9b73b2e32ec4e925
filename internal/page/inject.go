package page

import (
	"strings"

	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"golang.org/x/net/html"
)

// Injection tells the watcher to add one control to the live page.
// Host is the node the control belongs to; Into is where it is placed,
// which differs from Host for append-to placements.
type Injection struct {
	Host      string             `json:"host"`
	Into      string             `json:"into"`
	Kind      models.TriggerKind `json:"kind"`
	Placement Placement          `json:"placement"`
	Text      string             `json:"text,omitempty"`
	Style     string             `json:"style"`
	HostStyle string             `json:"hostStyle,omitempty"`
	Size      int                `json:"size"`
}

// injectionFor decides whether target gets a control for p and where.
// It returns false when the target already has one, sits in an excluded
// region, shows no text, or lacks the placement anchor.
func (c *Catalog) injectionFor(p *Pattern, target *html.Node) (Injection, bool) {
	host := nodeID(target)
	if host == "" {
		return Injection{}, false
	}
	if hasControl(target, string(p.Kind)) {
		return Injection{}, false
	}
	if !p.AllowInDrawer && c.DrawerClassPrefix != "" && hasAncestorWithClassPrefix(target, c.DrawerClassPrefix) {
		return Injection{}, false
	}
	text := innerText(target)
	if strings.TrimSpace(text) == "" {
		return Injection{}, false
	}
	if c.headerChild != nil && query(target, c.headerChild) != nil {
		return Injection{}, false
	}

	inj := Injection{
		Host:      host,
		Into:      host,
		Kind:      p.Kind,
		Placement: p.Placement,
		Style:     p.Style,
		Size:      c.ControlSize,
	}
	switch p.Placement {
	case PlaceAppendTo:
		anchor := query(target, p.placeAt)
		if nodeID(anchor) == "" {
			return Injection{}, false
		}
		inj.Into = nodeID(anchor)
	case PlaceAfterText:
		if !p.textAt.MatchString(text) {
			return Injection{}, false
		}
		inj.Text = p.PlaceAt
	}
	for _, v := range p.Variants {
		if hasAncestorWithClassPrefix(target, v.WithinClassPrefix) {
			inj.Style = v.Style
			inj.HostStyle = v.HostStyle
			break
		}
	}
	return inj, true
}

// Injections evaluates every pattern against root and its descendants.
func (c *Catalog) Injections(root *html.Node, minimal bool) []Injection {
	var out []Injection
	for _, p := range c.Patterns {
		if minimal && p.FullModeOnly {
			continue
		}
		for _, match := range p.sel.MatchAll(root) {
			target := p.target(match)
			if target == nil || target.Type != html.ElementNode {
				continue
			}
			if inj, ok := c.injectionFor(p, target); ok {
				out = append(out, inj)
			}
		}
	}
	return out
}
