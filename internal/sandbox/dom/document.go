package dom

import "strings"

// Document is the root of an element tree
type Document struct {
	Root *Element
	Head *Element
	Body *Element

	version   uint64
	observers []*Observer
}

// NewDocument creates <html><head></head><body></body></html>
func NewDocument() *Document {
	d := &Document{}
	d.Root = d.CreateElement("html")
	d.Head = d.CreateElement("head")
	d.Body = d.CreateElement("body")
	d.Root.Children = []*Element{d.Head, d.Body}
	d.Head.Parent, d.Body.Parent = d.Root, d.Root
	return d
}

// CreateElement makes a detached element owned by d
func (d *Document) CreateElement(tag string) *Element {
	return &Element{Type: ElementNode, TagName: strings.ToLower(tag), owner: d}
}

// CreateTextNode makes a detached text node owned by d
func (d *Document) CreateTextNode(text string) *Element {
	return &Element{Type: TextNode, Data: text, owner: d}
}

// GetElementByID searches the whole tree
func (d *Document) GetElementByID(id string) *Element {
	if d.Root.ID() == id {
		return d.Root
	}
	return d.Root.FindByID(id)
}

// Version increases on every mutation; callers compare it to detect change
func (d *Document) Version() uint64 { return d.version }

// Record is one childList mutation
type Record struct {
	Target  *Element
	Added   []*Element
	Removed []*Element
}

// Observer collects childList records for a target and calls back on flush
type Observer struct {
	doc      *Document
	callback func([]Record)
	targets  []observed
	pending  []Record
}

type observed struct {
	node    *Element
	subtree bool
}

// NewObserver registers an observer with no targets yet
func (d *Document) NewObserver(callback func([]Record)) *Observer {
	o := &Observer{doc: d, callback: callback}
	return o
}

// Observe is shorthand for NewObserver followed by Observe
func (d *Document) Observe(target *Element, subtree bool, callback func([]Record)) *Observer {
	o := d.NewObserver(callback)
	o.Observe(target, subtree)
	return o
}

// Observe starts watching target (and its subtree when asked)
func (o *Observer) Observe(target *Element, subtree bool) {
	if target == nil {
		return
	}
	for i, t := range o.targets {
		if t.node == target {
			o.targets[i].subtree = subtree
			return
		}
	}
	if len(o.targets) == 0 {
		o.doc.observers = append(o.doc.observers, o)
	}
	o.targets = append(o.targets, observed{node: target, subtree: subtree})
}

// Disconnect stops observation and drops pending records
func (o *Observer) Disconnect() {
	o.targets = nil
	o.pending = nil
	obs := o.doc.observers
	for i, candidate := range obs {
		if candidate == o {
			o.doc.observers = append(obs[:i], obs[i+1:]...)
			break
		}
	}
}

// TakeRecords returns and clears pending records
func (o *Observer) TakeRecords() []Record {
	recs := o.pending
	o.pending = nil
	return recs
}

// Active reports whether the observer still watches anything
func (o *Observer) Active() bool { return len(o.targets) > 0 }

func (o *Observer) wants(target *Element) bool {
	for _, t := range o.targets {
		if t.node == target || (t.subtree && t.node.Contains(target)) {
			return true
		}
	}
	return false
}

func (d *Document) record(r Record) {
	d.version++
	for _, o := range d.observers {
		if o.wants(r.Target) {
			o.pending = append(o.pending, r)
		}
	}
}

// Pending reports whether any observer has undelivered records
func (d *Document) Pending() bool {
	for _, o := range d.observers {
		if len(o.pending) > 0 {
			return true
		}
	}
	return false
}

// FlushMutations delivers pending records to their observers, repeating
// while callbacks cause further mutations, up to maxRounds. It returns the
// number of callbacks made.
func (d *Document) FlushMutations(maxRounds int) int {
	calls := 0
	for round := 0; round < maxRounds && d.Pending(); round++ {
		observers := append([]*Observer(nil), d.observers...)
		for _, o := range observers {
			recs := o.TakeRecords()
			if len(recs) == 0 || o.callback == nil {
				continue
			}
			o.callback(recs)
			calls++
		}
	}
	return calls
}
