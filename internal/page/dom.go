package page

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Attributes and classes shared with the watcher script running in the
// page. The watcher stamps every element with IDAttr so nodes found in a
// snapshot can be addressed in the live document.
const (
	IDAttr       = "data-voodoo-id"
	KindAttr     = "data-voodoo-kind"
	ControlClass = "voodoo-control"
)

// Document is a parsed snapshot of the live page with an index from
// watcher id to node.
type Document struct {
	Root *html.Node
	byID map[string]*html.Node
}

// Parse parses a snapshot of the page.
func Parse(src string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

// NewDocument indexes an already parsed tree.
func NewDocument(root *html.Node) *Document {
	d := &Document{Root: root, byID: make(map[string]*html.Node)}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := attr(n, IDAttr); id != "" {
				d.byID[id] = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return d
}

// Node returns the element stamped with id, or nil.
func (d *Document) Node(id string) *html.Node {
	return d.byID[id]
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeID(n *html.Node) string {
	return attr(n, IDAttr)
}

// innerText concatenates the text below n, skipping script and style.
func innerText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasClassPrefix(n *html.Node, prefix string) bool {
	for _, class := range strings.Fields(attr(n, "class")) {
		if strings.HasPrefix(class, prefix) {
			return true
		}
	}
	return false
}

// hasAncestorWithClassPrefix checks the ancestors of n, not n itself.
func hasAncestorWithClassPrefix(n *html.Node, prefix string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && hasClassPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// closest returns n or its nearest ancestor matching sel.
func closest(n *html.Node, sel cascadia.Selector) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && sel.Match(n) {
			return n
		}
	}
	return nil
}

func previousElementSibling(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func firstElementChild(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// closestPreviousSibling walks the preceding element siblings of n and
// returns the first that matches sel.
func closestPreviousSibling(n *html.Node, sel cascadia.Selector) *html.Node {
	for s := previousElementSibling(n); s != nil; s = previousElementSibling(s) {
		if sel.Match(s) {
			return s
		}
	}
	return nil
}

// query returns the first descendant of n matching sel.
func query(n *html.Node, sel cascadia.Selector) *html.Node {
	if n == nil {
		return nil
	}
	return cascadia.Query(n, sel)
}

// hasControl reports whether n already carries a control of kind.
func hasControl(n *html.Node, kind string) bool {
	for _, c := range cascadia.QueryAll(n, controlSelector) {
		if attr(c, KindAttr) == kind {
			return true
		}
	}
	return false
}

var controlSelector = cascadia.MustCompile("." + ControlClass)

func queryAll(n *html.Node, sel cascadia.Selector) []*html.Node {
	if n == nil {
		return nil
	}
	return cascadia.QueryAll(n, sel)
}
