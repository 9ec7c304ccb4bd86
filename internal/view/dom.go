package view

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TestIDAttr tags every element a listener or a query can address.
const TestIDAttr = "data-testid"

// Document is a parsed content fragment.
type Document struct {
	nodes []*html.Node
}

type Element struct {
	node *html.Node
}

// Parse reads an HTML fragment as if it were the body of a page.
func Parse(fragment string) (*Document, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return &Document{nodes: nodes}, nil
}

// ByTestID returns the first element tagged id.
func (d *Document) ByTestID(id string) (*Element, bool) {
	all := d.AllByTestID(id)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

func (d *Document) AllByTestID(id string) []*Element {
	var out []*Element
	d.walk(func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, TestIDAttr) == id {
			out = append(out, &Element{node: n})
		}
	})
	return out
}

// ByID returns the first element with the given id attribute.
func (d *Document) ByID(id string) (*Element, bool) {
	var found *Element
	d.walk(func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && attr(n, "id") == id {
			found = &Element{node: n}
		}
	})
	return found, found != nil
}

// AllByClass returns elements whose class list contains class.
func (d *Document) AllByClass(class string) []*Element {
	var out []*Element
	d.walk(func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				out = append(out, &Element{node: n})
				return
			}
		}
	})
	return out
}

// Text returns the concatenated text of the whole document.
func (d *Document) Text() string {
	var b strings.Builder
	for _, n := range d.nodes {
		collectText(n, &b)
	}
	return b.String()
}

// HasText reports whether s appears anywhere in the document text.
func (d *Document) HasText(s string) bool {
	return strings.Contains(d.Text(), s)
}

func (d *Document) walk(fn func(*html.Node)) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		fn(n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for _, n := range d.nodes {
		visit(n)
	}
}

func (e *Element) Attr(name string) string {
	return attr(e.node, name)
}

func (e *Element) HasAttr(name string) bool {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func (e *Element) Class() string {
	return attr(e.node, "class")
}

// Tag is the lower-case element name.
func (e *Element) Tag() string {
	return e.node.Data
}

func (e *Element) Text() string {
	var b strings.Builder
	collectText(e.node, &b)
	return strings.TrimSpace(b.String())
}

// Children returns the direct element children.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, &Element{node: c})
		}
	}
	return out
}

// Find returns descendants tagged id.
func (e *Element) Find(id string) []*Element {
	return (&Document{nodes: []*html.Node{e.node}}).AllByTestID(id)
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
