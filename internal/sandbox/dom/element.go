// Package dom is the lightweight document model behind a Go isolated
// context. It supports the element tree operations user code needs, HTML
// parsing and serialization, CSS-style queries, and childList mutation
// observers.
//
// A Document is owned by the goroutine of its context and is not safe for
// concurrent use.
package dom

import "strings"

// NodeType distinguishes elements from text
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

// Element is a node in the tree. Text nodes use Data and have no children.
type Element struct {
	Type     NodeType
	TagName  string
	Data     string
	Children []*Element
	Parent   *Element

	attrs     map[string]string
	attrOrder []string
	style     *Style
	owner     *Document
}

// Owner returns the document the element belongs to
func (e *Element) Owner() *Document { return e.owner }

// NodeName is the upper-case tag name, or #text
func (e *Element) NodeName() string {
	if e.Type == TextNode {
		return "#text"
	}
	return strings.ToUpper(e.TagName)
}

// GetAttribute returns the attribute value and whether it is set
func (e *Element) GetAttribute(name string) (string, bool) {
	name = strings.ToLower(name)
	if name == "style" {
		if e.style == nil || e.style.Len() == 0 {
			return "", false
		}
		return e.style.String(), true
	}
	v, ok := e.attrs[name]
	return v, ok
}

// Attr returns the attribute value or ""
func (e *Element) Attr(name string) string {
	v, _ := e.GetAttribute(name)
	return v
}

// HasAttribute reports whether name is set
func (e *Element) HasAttribute(name string) bool {
	_, ok := e.GetAttribute(name)
	return ok
}

// SetAttribute sets name to value
func (e *Element) SetAttribute(name, value string) {
	if e.Type != ElementNode {
		return
	}
	name = strings.ToLower(name)
	if name == "style" {
		e.Style().Parse(value)
		e.touch()
		return
	}
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	if _, ok := e.attrs[name]; !ok {
		e.attrOrder = append(e.attrOrder, name)
	}
	e.attrs[name] = value
	e.touch()
}

// RemoveAttribute deletes name
func (e *Element) RemoveAttribute(name string) {
	name = strings.ToLower(name)
	if name == "style" {
		if e.style != nil {
			e.style.Clear()
			e.touch()
		}
		return
	}
	if _, ok := e.attrs[name]; !ok {
		return
	}
	delete(e.attrs, name)
	for i, n := range e.attrOrder {
		if n == name {
			e.attrOrder = append(e.attrOrder[:i], e.attrOrder[i+1:]...)
			break
		}
	}
	e.touch()
}

// AttributeNames lists attributes in insertion order
func (e *Element) AttributeNames() []string {
	names := append([]string(nil), e.attrOrder...)
	if e.style != nil && e.style.Len() > 0 {
		names = append(names, "style")
	}
	return names
}

func (e *Element) ID() string        { return e.Attr("id") }
func (e *Element) ClassName() string { return e.Attr("class") }

// ClassList splits the class attribute
func (e *Element) ClassList() []string {
	return strings.Fields(e.ClassName())
}

// HasClass reports whether the element carries class c
func (e *Element) HasClass(c string) bool {
	for _, have := range e.ClassList() {
		if have == c {
			return true
		}
	}
	return false
}

// AddClass appends classes that are not present yet
func (e *Element) AddClass(classes ...string) {
	list := e.ClassList()
	changed := false
	for _, c := range classes {
		if c != "" && !e.HasClass(c) {
			list = append(list, c)
			changed = true
		}
	}
	if changed {
		e.SetAttribute("class", strings.Join(list, " "))
	}
}

// RemoveClass drops classes
func (e *Element) RemoveClass(classes ...string) {
	drop := make(map[string]bool, len(classes))
	for _, c := range classes {
		drop[c] = true
	}
	var kept []string
	for _, c := range e.ClassList() {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	e.SetAttribute("class", strings.Join(kept, " "))
}

// ToggleClass flips c and returns whether it is now present
func (e *Element) ToggleClass(c string) bool {
	if e.HasClass(c) {
		e.RemoveClass(c)
		return false
	}
	e.AddClass(c)
	return true
}

// Style returns the inline style declaration, creating it on first use
func (e *Element) Style() *Style {
	if e.style == nil {
		e.style = &Style{owner: e}
	}
	return e.style
}

// ElementChildren returns child elements, skipping text
func (e *Element) ElementChildren() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// FirstChild returns the first child node or nil
func (e *Element) FirstChild() *Element {
	if len(e.Children) == 0 {
		return nil
	}
	return e.Children[0]
}

// LastChild returns the last child node or nil
func (e *Element) LastChild() *Element {
	if len(e.Children) == 0 {
		return nil
	}
	return e.Children[len(e.Children)-1]
}

// NextSibling returns the following sibling or nil
func (e *Element) NextSibling() *Element {
	if e.Parent == nil {
		return nil
	}
	siblings := e.Parent.Children
	for i, c := range siblings {
		if c == e && i+1 < len(siblings) {
			return siblings[i+1]
		}
	}
	return nil
}

// PreviousSibling returns the preceding sibling or nil
func (e *Element) PreviousSibling() *Element {
	if e.Parent == nil {
		return nil
	}
	siblings := e.Parent.Children
	for i, c := range siblings {
		if c == e && i > 0 {
			return siblings[i-1]
		}
	}
	return nil
}

// Clone copies e without a parent; deep also copies descendants
func (e *Element) Clone(deep bool) *Element {
	out := &Element{Type: e.Type, TagName: e.TagName, Data: e.Data, owner: e.owner}
	for _, name := range e.attrOrder {
		if out.attrs == nil {
			out.attrs = make(map[string]string, len(e.attrs))
		}
		out.attrs[name] = e.attrs[name]
		out.attrOrder = append(out.attrOrder, name)
	}
	if e.style != nil && e.style.Len() > 0 {
		out.Style().Parse(e.style.String())
	}
	if deep {
		for _, c := range e.Children {
			child := c.Clone(true)
			child.Parent = out
			out.Children = append(out.Children, child)
		}
	}
	return out
}

// Contains reports whether other is e or one of its descendants
func (e *Element) Contains(other *Element) bool {
	for n := other; n != nil; n = n.Parent {
		if n == e {
			return true
		}
	}
	return false
}

// AppendChild moves child to the end of e's children
func (e *Element) AppendChild(child *Element) *Element {
	return e.InsertBefore(child, nil)
}

// InsertBefore moves child before ref; a nil ref appends
func (e *Element) InsertBefore(child, ref *Element) *Element {
	if child == nil || child == e || child.Contains(e) || e.Type == TextNode {
		return child
	}
	if child.Parent != nil {
		child.Parent.detach(child)
	}

	idx := len(e.Children)
	if ref != nil {
		for i, c := range e.Children {
			if c == ref {
				idx = i
				break
			}
		}
	}
	e.Children = append(e.Children, nil)
	copy(e.Children[idx+1:], e.Children[idx:])
	e.Children[idx] = child
	child.Parent = e
	child.adopt(e.owner)

	if e.owner != nil {
		e.owner.record(Record{Target: e, Added: []*Element{child}})
	}
	return child
}

// RemoveChild detaches child and reports whether it was a child of e
func (e *Element) RemoveChild(child *Element) bool {
	if child == nil || child.Parent != e {
		return false
	}
	e.detach(child)
	return true
}

// Remove detaches e from its parent
func (e *Element) Remove() {
	if e.Parent != nil {
		e.Parent.detach(e)
	}
}

// ReplaceChildren removes every child and appends nodes
func (e *Element) ReplaceChildren(nodes ...*Element) {
	removed := e.Children
	e.Children = nil
	for _, c := range removed {
		c.Parent = nil
	}
	if len(removed) > 0 && e.owner != nil {
		e.owner.record(Record{Target: e, Removed: removed})
	}
	for _, n := range nodes {
		e.AppendChild(n)
	}
}

func (e *Element) detach(child *Element) {
	for i, c := range e.Children {
		if c == child {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			break
		}
	}
	child.Parent = nil
	if e.owner != nil {
		e.owner.record(Record{Target: e, Removed: []*Element{child}})
	}
}

func (e *Element) adopt(doc *Document) {
	if e.owner == doc {
		return
	}
	e.owner = doc
	for _, c := range e.Children {
		c.adopt(doc)
	}
}

// TextContent concatenates descendant text
func (e *Element) TextContent() string {
	if e.Type == TextNode {
		return e.Data
	}
	var sb strings.Builder
	e.walk(func(n *Element) bool {
		if n.Type == TextNode {
			sb.WriteString(n.Data)
		}
		return true
	})
	return sb.String()
}

// SetTextContent replaces children with a single text node
func (e *Element) SetTextContent(text string) {
	if e.Type == TextNode {
		e.Data = text
		e.touch()
		return
	}
	if text == "" {
		e.ReplaceChildren()
		return
	}
	e.ReplaceChildren(&Element{Type: TextNode, Data: text, owner: e.owner})
}

// walk visits descendants depth-first (excluding e); fn returns false to prune
func (e *Element) walk(fn func(*Element) bool) {
	for _, c := range e.Children {
		if fn(c) {
			c.walk(fn)
		}
	}
}

// Descendants returns all descendant elements in document order
func (e *Element) Descendants() []*Element {
	var out []*Element
	e.walk(func(n *Element) bool {
		if n.Type == ElementNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindByID returns the first descendant with the given id
func (e *Element) FindByID(id string) *Element {
	var found *Element
	e.walk(func(n *Element) bool {
		if found != nil {
			return false
		}
		if n.Type == ElementNode && n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindByTag returns descendants with the given tag
func (e *Element) FindByTag(tag string) []*Element {
	tag = strings.ToLower(tag)
	var out []*Element
	for _, n := range e.Descendants() {
		if tag == "*" || n.TagName == tag {
			out = append(out, n)
		}
	}
	return out
}

// FindByClass returns descendants carrying every class in names
func (e *Element) FindByClass(names ...string) []*Element {
	var out []*Element
	for _, n := range e.Descendants() {
		all := true
		for _, c := range names {
			if !n.HasClass(c) {
				all = false
				break
			}
		}
		if all {
			out = append(out, n)
		}
	}
	return out
}

func (e *Element) touch() {
	if e.owner != nil {
		e.owner.version++
	}
}

// Style is an ordered inline CSS declaration
type Style struct {
	owner  *Element
	keys   []string
	values map[string]string
}

// Get returns the value of a kebab-case property
func (s *Style) Get(prop string) string { return s.values[prop] }

// Set assigns prop; an empty value removes it
func (s *Style) Set(prop, value string) {
	prop = strings.TrimSpace(strings.ToLower(prop))
	value = strings.TrimSpace(value)
	if prop == "" {
		return
	}
	if value == "" {
		s.Remove(prop)
		return
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[prop]; !ok {
		s.keys = append(s.keys, prop)
	}
	s.values[prop] = value
	s.owner.touch()
}

// Remove deletes prop
func (s *Style) Remove(prop string) {
	if _, ok := s.values[prop]; !ok {
		return
	}
	delete(s.values, prop)
	for i, k := range s.keys {
		if k == prop {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	s.owner.touch()
}

// Clear removes every property
func (s *Style) Clear() {
	s.keys = nil
	s.values = nil
}

// Len returns the number of properties
func (s *Style) Len() int { return len(s.keys) }

// Properties returns property names in insertion order
func (s *Style) Properties() []string { return append([]string(nil), s.keys...) }

// Parse replaces the declaration with cssText
func (s *Style) Parse(cssText string) {
	s.Clear()
	for _, decl := range strings.Split(cssText, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if ok {
			s.Set(prop, value)
		}
	}
}

func (s *Style) String() string {
	parts := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		parts = append(parts, k+": "+s.values[k]+";")
	}
	return strings.Join(parts, " ")
}

// CSSName converts a camelCase style property (backgroundColor) to kebab-case
func CSSName(prop string) string {
	if strings.Contains(prop, "-") {
		return strings.ToLower(prop)
	}
	var sb strings.Builder
	for i, r := range prop {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// JSName converts a kebab-case property to camelCase
func JSName(prop string) string {
	parts := strings.Split(prop, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
