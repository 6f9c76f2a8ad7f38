package dom

import (
	"regexp"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	snapshotPolicy     *bluemonday.Policy
	snapshotPolicyOnce sync.Once
)

// policy allows the markup a teaching sandbox renders (forms, canvases,
// inline styles) and strips scripts and event handler attributes.
func policy() *bluemonday.Policy {
	snapshotPolicyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowElements("canvas", "button", "input", "label", "select", "option", "textarea",
			"form", "fieldset", "legend", "section", "header", "footer", "main", "nav", "article",
			"aside", "figure", "figcaption", "progress", "meter", "output", "svg")
		p.AllowAttrs("width", "height").OnElements("canvas", "svg", "img")
		p.AllowAttrs("type", "value", "placeholder", "checked", "disabled", "name", "min", "max", "step").
			OnElements("input", "button", "select", "option", "textarea", "progress", "meter")
		p.AllowAttrs("for").OnElements("label")
		p.AllowAttrs("class").Globally()
		p.AllowAttrs("id").Matching(regexp.MustCompile(`^[A-Za-z][\w:.-]*$`)).Globally()
		p.AllowDataAttributes()
		p.AllowStyling()
		p.AllowStyles("color", "background", "background-color", "border", "border-radius",
			"margin", "padding", "width", "height", "display", "font-size", "font-weight",
			"font-family", "text-align", "gap", "flex-direction", "justify-content", "align-items",
			"opacity", "transform", "position", "top", "left", "right", "bottom").Globally()
		snapshotPolicy = p
	})
	return snapshotPolicy
}

// Sanitize cleans serialized markup before it leaves the context
func Sanitize(markup string) string {
	return policy().Sanitize(markup)
}

// Snapshot returns the sanitized inner HTML of e
func Snapshot(e *Element) string {
	return Sanitize(e.InnerHTML())
}
