package dom

import (
	"fmt"
	"strings"
)

// compound is tag#id.class[attr=value] without combinators
type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name     string
	value    string
	hasValue bool
}

// selector is a chain of compounds joined by ' ' (descendant) or '>' (child)
type selector struct {
	parts       []compound
	combinators []byte
}

// Selector is a parsed selector list
type Selector []selector

// ParseSelector supports type, #id, .class, [attr], [attr=value], '*',
// descendant and child combinators, and comma-separated lists.
func ParseSelector(input string) (Selector, error) {
	var list Selector
	for _, group := range strings.Split(input, ",") {
		sel, err := parseComplex(strings.TrimSpace(group))
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", input, err)
		}
		list = append(list, sel)
	}
	return list, nil
}

func parseComplex(s string) (selector, error) {
	var sel selector
	if s == "" {
		return sel, fmt.Errorf("empty selector")
	}
	s = strings.ReplaceAll(s, ">", " > ")
	pending := byte(0)
	for _, tok := range strings.Fields(s) {
		if tok == ">" {
			if len(sel.parts) == 0 || pending == '>' {
				return sel, fmt.Errorf("dangling combinator")
			}
			pending = '>'
			continue
		}
		c, err := parseCompound(tok)
		if err != nil {
			return sel, err
		}
		if len(sel.parts) > 0 {
			if pending == 0 {
				pending = ' '
			}
			sel.combinators = append(sel.combinators, pending)
		}
		sel.parts = append(sel.parts, c)
		pending = 0
	}
	if pending != 0 {
		return sel, fmt.Errorf("dangling combinator")
	}
	return sel, nil
}

func parseCompound(tok string) (compound, error) {
	var c compound
	i := 0
	readIdent := func() string {
		start := i
		for i < len(tok) && !strings.ContainsRune("#.[", rune(tok[i])) {
			i++
		}
		return tok[start:i]
	}

	if i < len(tok) && !strings.ContainsRune("#.[", rune(tok[i])) {
		c.tag = strings.ToLower(readIdent())
	}
	for i < len(tok) {
		switch tok[i] {
		case '#':
			i++
			c.id = readIdent()
		case '.':
			i++
			c.classes = append(c.classes, readIdent())
		case '[':
			end := strings.IndexByte(tok[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute selector")
			}
			body := tok[i+1 : i+end]
			i += end + 1
			name, value, hasValue := strings.Cut(body, "=")
			c.attrs = append(c.attrs, attrMatch{
				name:     strings.ToLower(strings.TrimSpace(name)),
				value:    strings.Trim(strings.TrimSpace(value), `"'`),
				hasValue: hasValue,
			})
		default:
			return c, fmt.Errorf("unexpected %q", tok[i])
		}
	}
	return c, nil
}

func (c compound) matches(e *Element) bool {
	if e.Type != ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && c.tag != e.TagName {
		return false
	}
	if c.id != "" && e.ID() != c.id {
		return false
	}
	for _, cls := range c.classes {
		if !e.HasClass(cls) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := e.GetAttribute(a.name)
		if !ok || (a.hasValue && v != a.value) {
			return false
		}
	}
	return true
}

func (s selector) matches(e *Element) bool {
	return s.matchAt(e, len(s.parts)-1)
}

func (s selector) matchAt(e *Element, idx int) bool {
	if !s.parts[idx].matches(e) {
		return false
	}
	if idx == 0 {
		return true
	}
	switch s.combinators[idx-1] {
	case '>':
		return e.Parent != nil && s.matchAt(e.Parent, idx-1)
	default:
		for p := e.Parent; p != nil; p = p.Parent {
			if s.matchAt(p, idx-1) {
				return true
			}
		}
		return false
	}
}

// Matches reports whether e matches any selector in the list
func (sl Selector) Matches(e *Element) bool {
	for _, s := range sl {
		if s.matches(e) {
			return true
		}
	}
	return false
}

// Query returns descendants of e matching selector, in document order
func (e *Element) Query(selector string) ([]*Element, error) {
	sl, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []*Element
	for _, n := range e.Descendants() {
		if sl.Matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// QueryFirst returns the first match or nil
func (e *Element) QueryFirst(selector string) (*Element, error) {
	matches, err := e.Query(selector)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// Query searches the whole document
func (d *Document) Query(selector string) ([]*Element, error) {
	wrapper := &Element{Type: ElementNode, Children: []*Element{d.Root}}
	return wrapper.Query(selector)
}
