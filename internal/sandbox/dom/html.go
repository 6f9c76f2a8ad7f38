package dom

import (
	"fmt"
	"html"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// rawText elements keep their text unescaped
var rawText = map[string]bool{"script": true, "style": true}

// Import converts a parsed html node (and its subtree) into an element of d.
// Comments and doctypes are skipped and yield nil.
func (d *Document) Import(n *nethtml.Node) *Element {
	switch n.Type {
	case nethtml.TextNode:
		return d.CreateTextNode(n.Data)
	case nethtml.ElementNode:
		el := d.CreateElement(n.Data)
		for _, a := range n.Attr {
			if a.Namespace == "" {
				el.SetAttribute(a.Key, a.Val)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := d.Import(c); child != nil {
				child.Parent = el
				el.Children = append(el.Children, child)
			}
		}
		return el
	}
	return nil
}

// ParseFragment parses markup in the context of a <div>
func (d *Document) ParseFragment(markup string) ([]*Element, error) {
	context := &nethtml.Node{Type: nethtml.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := nethtml.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el := d.Import(n); el != nil {
			out = append(out, el)
		}
	}
	return out, nil
}

// SetInnerHTML replaces the children of e with parsed markup
func (e *Element) SetInnerHTML(markup string) error {
	if e.owner == nil {
		return fmt.Errorf("element <%s> has no owner document", e.TagName)
	}
	nodes, err := e.owner.ParseFragment(markup)
	if err != nil {
		return err
	}
	e.ReplaceChildren(nodes...)
	return nil
}

// InnerHTML serializes the children of e
func (e *Element) InnerHTML() string {
	var sb strings.Builder
	for _, c := range e.Children {
		c.render(&sb, e.Type == ElementNode && rawText[e.TagName])
	}
	return sb.String()
}

// OuterHTML serializes e itself
func (e *Element) OuterHTML() string {
	var sb strings.Builder
	e.render(&sb, false)
	return sb.String()
}

func (e *Element) render(sb *strings.Builder, raw bool) {
	if e.Type == TextNode {
		if raw {
			sb.WriteString(e.Data)
		} else {
			sb.WriteString(html.EscapeString(e.Data))
		}
		return
	}

	sb.WriteByte('<')
	sb.WriteString(e.TagName)
	for _, name := range e.AttributeNames() {
		value, _ := e.GetAttribute(name)
		sb.WriteByte(' ')
		sb.WriteString(name)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(value))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	if voidElements[e.TagName] {
		return
	}
	for _, c := range e.Children {
		c.render(sb, rawText[e.TagName])
	}
	sb.WriteString("</")
	sb.WriteString(e.TagName)
	sb.WriteByte('>')
}
