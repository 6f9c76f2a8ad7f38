package runtime

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/playground/internal/sandbox/dom"
)

const (
	nodeKey     = "__node"
	fragmentTag = "#document-fragment"
)

type targetKey string

const (
	documentTarget targetKey = "document"
	windowTarget   targetKey = "window"
)

type listener struct {
	fn   goja.Value
	once bool
}

// reflected string properties and the attribute behind each
var reflected = map[string]string{
	"id":          "id",
	"className":   "class",
	"src":         "src",
	"href":        "href",
	"type":        "type",
	"name":        "name",
	"placeholder": "placeholder",
	"title":       "title",
	"alt":         "alt",
	"htmlFor":     "for",
	"role":        "role",
	"lang":        "lang",
	"target":      "target",
	"rel":         "rel",
	"value":       "value",
}

var booleans = map[string]string{
	"checked":  "checked",
	"disabled": "disabled",
	"hidden":   "hidden",
	"selected": "selected",
	"readOnly": "readonly",
	"required": "required",
	"multiple": "multiple",
}

var handlerEvents = []string{
	"click", "dblclick", "input", "change", "submit", "keydown", "keyup", "keypress",
	"mousedown", "mouseup", "mousemove", "mouseover", "mouseout", "mouseenter", "mouseleave",
	"focus", "blur", "load", "scroll", "wheel",
}

// installDOM binds document, window and the element prototype
func (c *Context) installDOM() error {
	c.elemProto = c.vm.NewObject()
	if err := c.defineNodeProperties(); err != nil {
		return err
	}
	if err := c.defineNodeMethods(); err != nil {
		return err
	}
	document, err := c.newDocumentObject()
	if err != nil {
		return err
	}
	c.document = document

	global := c.vm.GlobalObject()
	bindings := map[string]any{
		"document":            document,
		"window":              global,
		"self":                global,
		"innerWidth":          800,
		"innerHeight":         600,
		"devicePixelRatio":    1,
		"addEventListener":    c.addListener(func(goja.FunctionCall) any { return windowTarget }),
		"removeEventListener": c.removeListener(func(goja.FunctionCall) any { return windowTarget }),
		"dispatchEvent": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(c.dispatchEvent(windowTarget, c.eventArg(call.Argument(0))))
		},
		"MutationObserver": c.newMutationObserver,
		"getComputedStyle": func(call goja.FunctionCall) goja.Value {
			return c.styleObject(c.node(call.Argument(0)))
		},
	}
	for name, v := range bindings {
		if err := global.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) wrap(e *dom.Element) goja.Value {
	if e == nil {
		return goja.Null()
	}
	if obj, ok := c.nodes[e]; ok {
		return obj
	}
	obj := c.vm.NewObject()
	_ = obj.SetPrototype(c.elemProto)
	_ = obj.DefineDataProperty(nodeKey, c.vm.ToValue(e), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	c.nodes[e] = obj
	return obj
}

func (c *Context) wrapAll(nodes []*dom.Element) goja.Value {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = c.wrap(n)
	}
	return c.vm.NewArray(out...)
}

func (c *Context) unwrap(v goja.Value) *dom.Element {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	inner := obj.Get(nodeKey)
	if inner == nil {
		return nil
	}
	e, _ := inner.Export().(*dom.Element)
	return e
}

// node unwraps an argument that must be a node
func (c *Context) node(v goja.Value) *dom.Element {
	e := c.unwrap(v)
	if e == nil {
		panic(c.vm.NewTypeError("parameter is not of type 'Node'"))
	}
	return e
}

// nodesOf converts append-style arguments; strings become text nodes and
// fragments contribute their children
func (c *Context) nodesOf(args []goja.Value) []*dom.Element {
	var out []*dom.Element
	for _, a := range args {
		e := c.unwrap(a)
		switch {
		case e == nil:
			out = append(out, c.doc.CreateTextNode(a.String()))
		case e.TagName == fragmentTag:
			out = append(out, e.Children...)
		default:
			out = append(out, e)
		}
	}
	return out
}

// prune forgets wrappers and listeners of nodes no longer in the document
func (c *Context) prune() {
	for e := range c.nodes {
		if !c.doc.Root.Contains(e) {
			delete(c.nodes, e)
			delete(c.listeners, e)
			delete(c.handlers, e)
			delete(c.contexts, e)
		}
	}
}

func (c *Context) this(call goja.FunctionCall) *dom.Element {
	e := c.unwrap(call.This)
	if e == nil {
		panic(c.vm.NewTypeError("Illegal invocation"))
	}
	return e
}

func (c *Context) accessor(name string, get func(*dom.Element) goja.Value, set func(*dom.Element, goja.Value)) error {
	getter := c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return get(c.this(call))
	})
	var setter goja.Value
	if set != nil {
		setter = c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(c.this(call), call.Argument(0))
			return goja.Undefined()
		})
	}
	return c.elemProto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func text(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func (c *Context) defineNodeProperties() error {
	str := func(s string) goja.Value { return c.vm.ToValue(s) }
	setText := func(e *dom.Element, v goja.Value) { e.SetTextContent(text(v)) }
	elements := func(pick func(*dom.Element) *dom.Element) func(*dom.Element) goja.Value {
		return func(e *dom.Element) goja.Value {
			for n := pick(e); n != nil; n = pick(n) {
				if n.Type == dom.ElementNode {
					return c.wrap(n)
				}
			}
			return goja.Null()
		}
	}

	props := []struct {
		name string
		get  func(*dom.Element) goja.Value
		set  func(*dom.Element, goja.Value)
	}{
		{"nodeType", func(e *dom.Element) goja.Value {
			switch {
			case e.Type == dom.TextNode:
				return c.vm.ToValue(3)
			case e.TagName == fragmentTag:
				return c.vm.ToValue(11)
			}
			return c.vm.ToValue(1)
		}, nil},
		{"nodeName", func(e *dom.Element) goja.Value { return str(e.NodeName()) }, nil},
		{"tagName", func(e *dom.Element) goja.Value {
			if e.Type == dom.TextNode {
				return goja.Undefined()
			}
			return str(e.NodeName())
		}, nil},
		{"localName", func(e *dom.Element) goja.Value { return str(e.TagName) }, nil},
		{"textContent", func(e *dom.Element) goja.Value { return str(e.TextContent()) }, setText},
		{"innerText", func(e *dom.Element) goja.Value { return str(e.TextContent()) }, setText},
		{"data", func(e *dom.Element) goja.Value { return str(e.TextContent()) }, setText},
		{"nodeValue", func(e *dom.Element) goja.Value {
			if e.Type == dom.TextNode {
				return str(e.Data)
			}
			return goja.Null()
		}, setText},
		{"innerHTML", func(e *dom.Element) goja.Value { return str(e.InnerHTML()) }, func(e *dom.Element, v goja.Value) {
			if err := e.SetInnerHTML(text(v)); err != nil {
				panic(c.vm.NewTypeError(err.Error()))
			}
		}},
		{"outerHTML", func(e *dom.Element) goja.Value { return str(e.OuterHTML()) }, nil},
		{"children", func(e *dom.Element) goja.Value { return c.wrapAll(e.ElementChildren()) }, nil},
		{"childNodes", func(e *dom.Element) goja.Value { return c.wrapAll(e.Children) }, nil},
		{"childElementCount", func(e *dom.Element) goja.Value { return c.vm.ToValue(len(e.ElementChildren())) }, nil},
		{"firstChild", func(e *dom.Element) goja.Value { return c.wrap(e.FirstChild()) }, nil},
		{"lastChild", func(e *dom.Element) goja.Value { return c.wrap(e.LastChild()) }, nil},
		{"firstElementChild", func(e *dom.Element) goja.Value {
			if kids := e.ElementChildren(); len(kids) > 0 {
				return c.wrap(kids[0])
			}
			return goja.Null()
		}, nil},
		{"lastElementChild", func(e *dom.Element) goja.Value {
			if kids := e.ElementChildren(); len(kids) > 0 {
				return c.wrap(kids[len(kids)-1])
			}
			return goja.Null()
		}, nil},
		{"nextSibling", func(e *dom.Element) goja.Value { return c.wrap(e.NextSibling()) }, nil},
		{"previousSibling", func(e *dom.Element) goja.Value { return c.wrap(e.PreviousSibling()) }, nil},
		{"nextElementSibling", elements((*dom.Element).NextSibling), nil},
		{"previousElementSibling", elements((*dom.Element).PreviousSibling), nil},
		{"parentNode", func(e *dom.Element) goja.Value {
			if e == c.doc.Root {
				return c.document
			}
			return c.wrap(e.Parent)
		}, nil},
		{"parentElement", func(e *dom.Element) goja.Value { return c.wrap(e.Parent) }, nil},
		{"ownerDocument", func(*dom.Element) goja.Value { return c.document }, nil},
		{"isConnected", func(e *dom.Element) goja.Value { return c.vm.ToValue(c.doc.Root.Contains(e)) }, nil},
		{"style", func(e *dom.Element) goja.Value { return c.styleObject(e) }, func(e *dom.Element, v goja.Value) {
			e.Style().Parse(text(v))
		}},
		{"classList", func(e *dom.Element) goja.Value { return c.classList(e) }, nil},
		{"dataset", func(e *dom.Element) goja.Value { return c.vm.NewDynamicObject(&dataset{c: c, el: e}) }, nil},
		{"width", c.dimension("width", 300), c.setDimension("width")},
		{"height", c.dimension("height", 150), c.setDimension("height")},
	}
	for _, p := range props {
		if err := c.accessor(p.name, p.get, p.set); err != nil {
			return err
		}
	}

	for prop, attr := range reflected {
		attr := attr
		if err := c.accessor(prop, func(e *dom.Element) goja.Value {
			return str(e.Attr(attr))
		}, func(e *dom.Element, v goja.Value) {
			e.SetAttribute(attr, text(v))
		}); err != nil {
			return err
		}
	}
	for prop, attr := range booleans {
		attr := attr
		if err := c.accessor(prop, func(e *dom.Element) goja.Value {
			return c.vm.ToValue(e.HasAttribute(attr))
		}, func(e *dom.Element, v goja.Value) {
			if v.ToBoolean() {
				e.SetAttribute(attr, "")
			} else {
				e.RemoveAttribute(attr)
			}
		}); err != nil {
			return err
		}
	}
	for _, event := range handlerEvents {
		event := event
		if err := c.accessor("on"+event, func(e *dom.Element) goja.Value {
			if h, ok := c.handlers[e][event]; ok {
				return h
			}
			return goja.Null()
		}, func(e *dom.Element, v goja.Value) {
			if c.handlers[e] == nil {
				c.handlers[e] = make(map[string]goja.Value)
			}
			if _, ok := goja.AssertFunction(v); ok {
				c.handlers[e][event] = v
				return
			}
			delete(c.handlers[e], event)
		}); err != nil {
			return err
		}
	}
	return nil
}

// dimension reads a numeric attribute; canvases default to 300x150
func (c *Context) dimension(attr string, canvasDefault int) func(*dom.Element) goja.Value {
	return func(e *dom.Element) goja.Value {
		if n, err := strconv.Atoi(e.Attr(attr)); err == nil {
			return c.vm.ToValue(n)
		}
		if e.TagName == "canvas" {
			return c.vm.ToValue(canvasDefault)
		}
		return c.vm.ToValue(0)
	}
}

func (c *Context) setDimension(attr string) func(*dom.Element, goja.Value) {
	return func(e *dom.Element, v goja.Value) {
		e.SetAttribute(attr, strconv.FormatInt(v.ToInteger(), 10))
	}
}

func (c *Context) defineNodeMethods() error {
	self := func(call goja.FunctionCall) goja.Value { return call.This }
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"appendChild": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			for _, n := range c.nodesOf([]goja.Value{c.wrapNode(call.Argument(0))}) {
				e.AppendChild(n)
			}
			return call.Argument(0)
		},
		"append": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			for _, n := range c.nodesOf(call.Arguments) {
				e.AppendChild(n)
			}
			return goja.Undefined()
		},
		"prepend": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			first := e.FirstChild()
			for _, n := range c.nodesOf(call.Arguments) {
				e.InsertBefore(n, first)
			}
			return goja.Undefined()
		},
		"insertBefore": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			ref := c.unwrap(call.Argument(1))
			for _, n := range c.nodesOf([]goja.Value{c.wrapNode(call.Argument(0))}) {
				e.InsertBefore(n, ref)
			}
			return call.Argument(0)
		},
		"removeChild": func(call goja.FunctionCall) goja.Value {
			if !c.this(call).RemoveChild(c.node(call.Argument(0))) {
				c.throw("The node to be removed is not a child of this node.")
			}
			return call.Argument(0)
		},
		"replaceChild": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			next, old := c.node(call.Argument(0)), c.node(call.Argument(1))
			if old.Parent != e {
				c.throw("The node to be replaced is not a child of this node.")
			}
			e.InsertBefore(next, old)
			e.RemoveChild(old)
			return call.Argument(1)
		},
		"remove": func(call goja.FunctionCall) goja.Value {
			c.this(call).Remove()
			return goja.Undefined()
		},
		"replaceChildren": func(call goja.FunctionCall) goja.Value {
			c.this(call).ReplaceChildren(c.nodesOf(call.Arguments)...)
			return goja.Undefined()
		},
		"cloneNode": func(call goja.FunctionCall) goja.Value {
			return c.wrap(c.this(call).Clone(call.Argument(0).ToBoolean()))
		},
		"insertAdjacentHTML": func(call goja.FunctionCall) goja.Value {
			c.insertAdjacentHTML(c.this(call), call.Argument(0).String(), call.Argument(1).String())
			return goja.Undefined()
		},
		"setAttribute": func(call goja.FunctionCall) goja.Value {
			c.this(call).SetAttribute(call.Argument(0).String(), text(call.Argument(1)))
			return goja.Undefined()
		},
		"getAttribute": func(call goja.FunctionCall) goja.Value {
			if v, ok := c.this(call).GetAttribute(call.Argument(0).String()); ok {
				return c.vm.ToValue(v)
			}
			return goja.Null()
		},
		"removeAttribute": func(call goja.FunctionCall) goja.Value {
			c.this(call).RemoveAttribute(call.Argument(0).String())
			return goja.Undefined()
		},
		"hasAttribute": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(c.this(call).HasAttribute(call.Argument(0).String()))
		},
		"toggleAttribute": func(call goja.FunctionCall) goja.Value {
			e, name := c.this(call), call.Argument(0).String()
			force := call.Argument(1)
			on := !e.HasAttribute(name)
			if !goja.IsUndefined(force) {
				on = force.ToBoolean()
			}
			if on {
				e.SetAttribute(name, "")
			} else {
				e.RemoveAttribute(name)
			}
			return c.vm.ToValue(on)
		},
		"addEventListener":    c.addListener(func(call goja.FunctionCall) any { return c.this(call) }),
		"removeEventListener": c.removeListener(func(call goja.FunctionCall) any { return c.this(call) }),
		"dispatchEvent": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(c.dispatchEvent(c.this(call), c.eventArg(call.Argument(0))))
		},
		"click": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			if e.HasAttribute("disabled") {
				return goja.Undefined()
			}
			c.dispatchEvent(e, c.newEvent("click", true))
			return goja.Undefined()
		},
		"focus": self,
		"blur":  self,
		"querySelector": func(call goja.FunctionCall) goja.Value {
			return c.wrap(c.queryFirst(c.this(call), call.Argument(0).String()))
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			return c.wrapAll(c.query(c.this(call), call.Argument(0).String()))
		},
		"getElementsByTagName": func(call goja.FunctionCall) goja.Value {
			return c.wrapAll(c.this(call).FindByTag(call.Argument(0).String()))
		},
		"getElementsByClassName": func(call goja.FunctionCall) goja.Value {
			return c.wrapAll(c.this(call).FindByClass(strings.Fields(call.Argument(0).String())...))
		},
		"matches": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(c.matches(c.this(call), call.Argument(0).String()))
		},
		"closest": func(call goja.FunctionCall) goja.Value {
			selector := call.Argument(0).String()
			for n := c.this(call); n != nil; n = n.Parent {
				if n.Type == dom.ElementNode && c.matches(n, selector) {
					return c.wrap(n)
				}
			}
			return goja.Null()
		},
		"contains": func(call goja.FunctionCall) goja.Value {
			other := c.unwrap(call.Argument(0))
			return c.vm.ToValue(other != nil && c.this(call).Contains(other))
		},
		"hasChildNodes": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(len(c.this(call).Children) > 0)
		},
		"getContext": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			if e.TagName != "canvas" || call.Argument(0).String() != "2d" {
				return goja.Null()
			}
			if ctx, ok := c.contexts[e]; ok {
				return ctx
			}
			ctx, err := c.helpers["context2d"](goja.Undefined(), call.This)
			if err != nil {
				c.rethrow(err)
			}
			c.contexts[e] = ctx
			return ctx
		},
		"toDataURL": func(goja.FunctionCall) goja.Value {
			return c.vm.ToValue("data:image/png;base64,")
		},
		"getBoundingClientRect": func(call goja.FunctionCall) goja.Value {
			e := c.this(call)
			w, h := c.dimension("width", 300)(e), c.dimension("height", 150)(e)
			rect := c.vm.NewObject()
			for k, v := range map[string]any{"x": 0, "y": 0, "top": 0, "left": 0, "width": w, "height": h, "right": w, "bottom": h} {
				_ = rect.Set(k, v)
			}
			return rect
		},
	}
	for name, fn := range methods {
		if err := c.elemProto.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// wrapNode validates a single node argument
func (c *Context) wrapNode(v goja.Value) goja.Value {
	c.node(v)
	return v
}

func (c *Context) insertAdjacentHTML(e *dom.Element, position, markup string) {
	nodes, err := c.doc.ParseFragment(markup)
	if err != nil {
		panic(c.vm.NewTypeError(err.Error()))
	}
	switch strings.ToLower(position) {
	case "beforebegin":
		if e.Parent != nil {
			for _, n := range nodes {
				e.Parent.InsertBefore(n, e)
			}
		}
	case "afterbegin":
		first := e.FirstChild()
		for _, n := range nodes {
			e.InsertBefore(n, first)
		}
	case "beforeend":
		for _, n := range nodes {
			e.AppendChild(n)
		}
	case "afterend":
		if e.Parent != nil {
			next := e.NextSibling()
			for _, n := range nodes {
				e.Parent.InsertBefore(n, next)
			}
		}
	default:
		c.throw("The value provided ('%s') is not one of 'beforeBegin', 'afterBegin', 'beforeEnd', or 'afterEnd'.", position)
	}
}

func (c *Context) query(scope *dom.Element, selector string) []*dom.Element {
	out, err := scope.Query(selector)
	if err != nil {
		c.throw("'%s' is not a valid selector", selector)
	}
	return out
}

func (c *Context) queryFirst(scope *dom.Element, selector string) *dom.Element {
	if out := c.query(scope, selector); len(out) > 0 {
		return out[0]
	}
	return nil
}

func (c *Context) matches(e *dom.Element, selector string) bool {
	sl, err := dom.ParseSelector(selector)
	if err != nil {
		c.throw("'%s' is not a valid selector", selector)
	}
	return sl.Matches(e)
}

func (c *Context) newDocumentObject() (*goja.Object, error) {
	d := c.vm.NewObject()
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"createElement": func(call goja.FunctionCall) goja.Value {
			return c.wrap(c.doc.CreateElement(call.Argument(0).String()))
		},
		"createElementNS": func(call goja.FunctionCall) goja.Value {
			return c.wrap(c.doc.CreateElement(call.Argument(1).String()))
		},
		"createTextNode": func(call goja.FunctionCall) goja.Value {
			return c.wrap(c.doc.CreateTextNode(text(call.Argument(0))))
		},
		"createDocumentFragment": func(goja.FunctionCall) goja.Value {
			return c.wrap(c.doc.CreateElement(fragmentTag))
		},
		"getElementById": func(call goja.FunctionCall) goja.Value {
			return c.wrap(c.doc.GetElementByID(call.Argument(0).String()))
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			out, err := c.doc.Query(call.Argument(0).String())
			if err != nil {
				c.throw("'%s' is not a valid selector", call.Argument(0).String())
			}
			if len(out) == 0 {
				return goja.Null()
			}
			return c.wrap(out[0])
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			out, err := c.doc.Query(call.Argument(0).String())
			if err != nil {
				c.throw("'%s' is not a valid selector", call.Argument(0).String())
			}
			return c.wrapAll(out)
		},
		"getElementsByTagName": func(call goja.FunctionCall) goja.Value {
			return c.wrapAll(c.doc.Root.FindByTag(call.Argument(0).String()))
		},
		"getElementsByClassName": func(call goja.FunctionCall) goja.Value {
			return c.wrapAll(c.doc.Root.FindByClass(strings.Fields(call.Argument(0).String())...))
		},
		"addEventListener":    c.addListener(func(goja.FunctionCall) any { return documentTarget }),
		"removeEventListener": c.removeListener(func(goja.FunctionCall) any { return documentTarget }),
		"dispatchEvent": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(c.dispatchEvent(documentTarget, c.eventArg(call.Argument(0))))
		},
	}
	for name, fn := range methods {
		if err := d.Set(name, fn); err != nil {
			return nil, err
		}
	}

	getters := map[string]func() goja.Value{
		"body":            func() goja.Value { return c.wrap(c.doc.Body) },
		"head":            func() goja.Value { return c.wrap(c.doc.Head) },
		"documentElement": func() goja.Value { return c.wrap(c.doc.Root) },
		"readyState":      func() goja.Value { return c.vm.ToValue("complete") },
		"title": func() goja.Value {
			if t := c.doc.Head.FindByTag("title"); len(t) > 0 {
				return c.vm.ToValue(t[0].TextContent())
			}
			return c.vm.ToValue("")
		},
	}
	for name, get := range getters {
		get := get
		getter := c.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
		if err := d.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return nil, err
		}
	}
	_ = d.Set("nodeType", 9)
	return d, nil
}

func (c *Context) targetValue(key any) goja.Value {
	switch k := key.(type) {
	case *dom.Element:
		return c.wrap(k)
	case targetKey:
		if k == documentTarget {
			return c.document
		}
	}
	return c.vm.GlobalObject()
}

func (c *Context) addListener(target func(goja.FunctionCall) any) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		key := target(call)
		typ, fn := call.Argument(0).String(), call.Argument(1)
		if _, ok := goja.AssertFunction(fn); !ok {
			return goja.Undefined()
		}
		once := false
		if opts, ok := call.Argument(2).(*goja.Object); ok {
			if v := opts.Get("once"); v != nil {
				once = v.ToBoolean()
			}
		}
		if c.listeners[key] == nil {
			c.listeners[key] = make(map[string][]listener)
		}
		for _, l := range c.listeners[key][typ] {
			if l.fn.StrictEquals(fn) {
				return goja.Undefined()
			}
		}
		c.listeners[key][typ] = append(c.listeners[key][typ], listener{fn: fn, once: once})
		return goja.Undefined()
	}
}

func (c *Context) removeListener(target func(goja.FunctionCall) any) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		c.dropListener(target(call), call.Argument(0).String(), call.Argument(1))
		return goja.Undefined()
	}
}

func (c *Context) dropListener(key any, typ string, fn goja.Value) {
	list := c.listeners[key][typ]
	for i, l := range list {
		if l.fn.StrictEquals(fn) {
			c.listeners[key][typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// newEvent constructs a sandbox Event
func (c *Context) newEvent(typ string, bubbles bool) *goja.Object {
	init := c.vm.NewObject()
	_ = init.Set("bubbles", bubbles)
	_ = init.Set("cancelable", true)
	ev, err := c.vm.New(c.vm.Get("Event"), c.vm.ToValue(typ), init)
	if err != nil {
		c.rethrow(err)
	}
	return ev
}

func (c *Context) eventArg(v goja.Value) *goja.Object {
	ev, ok := v.(*goja.Object)
	if !ok || goja.IsUndefined(ev.Get("type")) {
		panic(c.vm.NewTypeError("parameter 1 is not of type 'Event'"))
	}
	return ev
}

// dispatchEvent delivers ev along the propagation path of target. Listener
// failures are reported and do not stop delivery.
func (c *Context) dispatchEvent(target any, ev *goja.Object) bool {
	path := []any{target}
	switch t := target.(type) {
	case *dom.Element:
		for n := t.Parent; n != nil; n = n.Parent {
			path = append(path, n)
		}
		if c.doc.Root.Contains(t) {
			path = append(path, documentTarget, windowTarget)
		}
	case targetKey:
		if t == documentTarget {
			path = append(path, windowTarget)
		}
	}

	typ := ev.Get("type").String()
	bubbles := ev.Get("bubbles").ToBoolean()
	_ = ev.Set("target", c.targetValue(target))

	for i, key := range path {
		if i > 0 && !bubbles {
			break
		}
		current := c.targetValue(key)
		_ = ev.Set("currentTarget", current)

		fns := make([]goja.Value, 0, len(c.listeners[key][typ])+1)
		for _, l := range append([]listener(nil), c.listeners[key][typ]...) {
			if l.once {
				c.dropListener(key, typ, l.fn)
			}
			fns = append(fns, l.fn)
		}
		if el, ok := key.(*dom.Element); ok {
			if h, ok := c.handlers[el][typ]; ok {
				fns = append(fns, h)
			}
		}
		for _, fn := range fns {
			if _, err := c.call(fn, current, ev); err != nil {
				c.reportError(err)
			}
			if ev.Get("_immediate").ToBoolean() {
				break
			}
		}
		if ev.Get("_stopped").ToBoolean() {
			break
		}
	}
	_ = ev.Set("currentTarget", goja.Null())
	return !ev.Get("defaultPrevented").ToBoolean()
}

func (c *Context) newMutationObserver(call goja.ConstructorCall) *goja.Object {
	cb := call.Argument(0)
	if _, ok := goja.AssertFunction(cb); !ok {
		panic(c.vm.NewTypeError("MutationObserver callback must be a function"))
	}
	self := call.This
	observer := c.doc.NewObserver(func(recs []dom.Record) {
		if _, err := c.call(cb, self, c.records(recs), self); err != nil {
			c.reportError(err)
		}
	})

	_ = self.Set("observe", func(call goja.FunctionCall) goja.Value {
		subtree := false
		if opts, ok := call.Argument(1).(*goja.Object); ok {
			if v := opts.Get("subtree"); v != nil {
				subtree = v.ToBoolean()
			}
		}
		observer.Observe(c.node(call.Argument(0)), subtree)
		return goja.Undefined()
	})
	_ = self.Set("disconnect", func(goja.FunctionCall) goja.Value {
		observer.Disconnect()
		return goja.Undefined()
	})
	_ = self.Set("takeRecords", func(goja.FunctionCall) goja.Value {
		return c.records(observer.TakeRecords())
	})
	return nil
}

func (c *Context) records(recs []dom.Record) goja.Value {
	out := make([]any, len(recs))
	for i, r := range recs {
		rec := c.vm.NewObject()
		_ = rec.Set("type", "childList")
		_ = rec.Set("target", c.wrap(r.Target))
		_ = rec.Set("addedNodes", c.wrapAll(r.Added))
		_ = rec.Set("removedNodes", c.wrapAll(r.Removed))
		out[i] = rec
	}
	return c.vm.NewArray(out...)
}

// styleObject exposes an element's inline style with camelCase properties
func (c *Context) styleObject(e *dom.Element) goja.Value {
	return c.vm.NewDynamicObject(&styleDecl{c: c, el: e})
}

type styleDecl struct {
	c  *Context
	el *dom.Element
}

func (s *styleDecl) Get(key string) goja.Value {
	st := s.el.Style()
	switch key {
	case "cssText":
		return s.c.vm.ToValue(st.String())
	case "length":
		return s.c.vm.ToValue(st.Len())
	case "setProperty":
		return s.c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			st.Set(dom.CSSName(call.Argument(0).String()), text(call.Argument(1)))
			return goja.Undefined()
		})
	case "getPropertyValue":
		return s.c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return s.c.vm.ToValue(st.Get(dom.CSSName(call.Argument(0).String())))
		})
	case "removeProperty":
		return s.c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			prop := dom.CSSName(call.Argument(0).String())
			old := st.Get(prop)
			st.Remove(prop)
			return s.c.vm.ToValue(old)
		})
	}
	return s.c.vm.ToValue(st.Get(dom.CSSName(key)))
}

func (s *styleDecl) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		s.el.Style().Parse(text(val))
		return true
	}
	s.el.Style().Set(dom.CSSName(key), text(val))
	return true
}

func (s *styleDecl) Has(key string) bool {
	return key == "cssText" || s.el.Style().Get(dom.CSSName(key)) != ""
}

func (s *styleDecl) Delete(key string) bool {
	s.el.Style().Remove(dom.CSSName(key))
	return true
}

func (s *styleDecl) Keys() []string {
	props := s.el.Style().Properties()
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = dom.JSName(p)
	}
	return out
}

// dataset maps camelCase keys to data-* attributes
type dataset struct {
	c  *Context
	el *dom.Element
}

func (d *dataset) attr(key string) string { return "data-" + dom.CSSName(key) }

func (d *dataset) Get(key string) goja.Value {
	if v, ok := d.el.GetAttribute(d.attr(key)); ok {
		return d.c.vm.ToValue(v)
	}
	return goja.Undefined()
}

func (d *dataset) Set(key string, val goja.Value) bool {
	d.el.SetAttribute(d.attr(key), text(val))
	return true
}

func (d *dataset) Has(key string) bool { return d.el.HasAttribute(d.attr(key)) }

func (d *dataset) Delete(key string) bool {
	d.el.RemoveAttribute(d.attr(key))
	return true
}

func (d *dataset) Keys() []string {
	var out []string
	for _, name := range d.el.AttributeNames() {
		if strings.HasPrefix(name, "data-") {
			out = append(out, dom.JSName(strings.TrimPrefix(name, "data-")))
		}
	}
	return out
}

func (c *Context) classList(e *dom.Element) goja.Value {
	list := c.vm.NewObject()
	fns := map[string]func(goja.FunctionCall) goja.Value{
		"add": func(call goja.FunctionCall) goja.Value {
			for _, a := range call.Arguments {
				e.AddClass(a.String())
			}
			return goja.Undefined()
		},
		"remove": func(call goja.FunctionCall) goja.Value {
			for _, a := range call.Arguments {
				e.RemoveClass(a.String())
			}
			return goja.Undefined()
		},
		"toggle": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			if force := call.Argument(1); !goja.IsUndefined(force) {
				if force.ToBoolean() {
					e.AddClass(name)
				} else {
					e.RemoveClass(name)
				}
				return c.vm.ToValue(force.ToBoolean())
			}
			return c.vm.ToValue(e.ToggleClass(name))
		},
		"contains": func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(e.HasClass(call.Argument(0).String()))
		},
		"item": func(call goja.FunctionCall) goja.Value {
			classes := e.ClassList()
			i := int(call.Argument(0).ToInteger())
			if i < 0 || i >= len(classes) {
				return goja.Null()
			}
			return c.vm.ToValue(classes[i])
		},
	}
	for name, fn := range fns {
		_ = list.Set(name, fn)
	}
	_ = list.Set("length", len(e.ClassList()))
	_ = list.Set("value", e.ClassName())
	return list
}
