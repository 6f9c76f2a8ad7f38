// Package template generates the self-contained sandbox documents loaded
// into isolated contexts. Generation is pure: the same mode and placeholder
// flag always produce byte-identical output.
package template

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/transpile"
)

const documentTemplate = `<!DOCTYPE html>
<html lang="en" data-mode="{{.Mode}}" data-theme="light">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Label}} sandbox</title>
<style>{{.Style}}</style>
{{range .Scripts}}<script src="{{.URL}}" data-capability="{{.Name}}"></script>
{{end}}{{range .Modules}}<script type="module" data-capability="{{.Name}}">{{.Source}}</script>
{{end}}</head>
<body>
<div id="root">{{.Placeholder}}</div>
<script data-runtime="sandbox">
(function () {
'use strict';
var PRESETS = {{.Presets}};
var FILENAME = {{.Filename}};
var PLACEHOLDER = {{.HeadlessPlaceholder}};
var DEFERRED = {{.Deferred}};
{{.Bootstrap}}
{{.RunLogic}}
{{.Dispatch}}
})();
</script>
</body>
</html>
`

const baseCSS = `html, body { margin: 0; padding: 0; background: var(--background); color: var(--text); font-family: system-ui, -apple-system, sans-serif; }
#root { padding: 16px; }
.placeholder { color: var(--text-muted); font-style: italic; }
canvas { display: block; max-width: 100%; }
button { background: var(--primary); color: #ffffff; border: 0; border-radius: 4px; padding: 6px 12px; }
`

// Option configures a Generator
type Option func(*Generator)

// WithAssetBase rewrites proxyable capability URLs to base + "/" + name
func WithAssetBase(base string) Option {
	return func(g *Generator) {
		g.assetBase = strings.TrimRight(base, "/")
	}
}

// Generator renders sandbox documents
type Generator struct {
	assetBase string
	tmpl      *template.Template
	style     template.CSS
}

// New creates a generator
func New(opts ...Option) *Generator {
	g := &Generator{
		tmpl:  template.Must(template.New("document").Parse(documentTemplate)),
		style: template.CSS(paletteCSS() + baseCSS),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type scriptTag struct {
	Name string
	URL  string
}

type moduleTag struct {
	Name   string
	Source template.JS
}

type documentData struct {
	Mode                mode.Mode
	Label               string
	Style               template.CSS
	Scripts             []scriptTag
	Modules             []moduleTag
	Placeholder         template.HTML
	Presets             []string
	Filename            string
	HeadlessPlaceholder string
	Deferred            bool
	Bootstrap           template.JS
	RunLogic            template.JS
	Dispatch            template.JS
}

// Generate renders the document for m. With showPlaceholder the output root
// starts with the mode's placeholder markup.
func (g *Generator) Generate(m mode.Mode, showPlaceholder bool) (string, error) {
	spec, err := mode.Lookup(m)
	if err != nil {
		return "", err
	}
	logic, ok := runLogic[m]
	if !ok {
		return "", fmt.Errorf("%w: no run logic for %q", mode.ErrUnknownMode, string(m))
	}

	data := documentData{
		Mode:      spec.Mode,
		Label:     spec.Label,
		Style:     g.style,
		Bootstrap: template.JS(bootstrapJS),
		RunLogic:  template.JS(logic),
		Dispatch:  template.JS(dispatchJS),
	}
	for _, c := range spec.Capabilities {
		if c.Module {
			// module scripts run after the inline runtime, before load
			data.Modules = append(data.Modules, moduleTag{Name: c.Name, Source: moduleSource(c)})
			data.Deferred = true
			continue
		}
		data.Scripts = append(data.Scripts, scriptTag{Name: c.Name, URL: g.capabilityURL(c)})
	}
	if showPlaceholder {
		data.Placeholder = template.HTML(spec.Placeholder)
	}
	if spec.Kind == mode.Headless {
		data.HeadlessPlaceholder = spec.Placeholder
	}
	if spec.NeedsTranspile() {
		for _, p := range spec.Presets {
			data.Presets = append(data.Presets, string(p))
		}
		data.Filename = transpile.Filename(spec.Presets)
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s document: %w", m, err)
	}
	return buf.String(), nil
}

// MustGenerate is Generate for callers with a known-good mode
func (g *Generator) MustGenerate(m mode.Mode, showPlaceholder bool) string {
	doc, err := g.Generate(m, showPlaceholder)
	if err != nil {
		panic(err)
	}
	return doc
}

func (g *Generator) capabilityURL(c mode.Capability) string {
	if g.assetBase != "" && c.Proxy {
		return g.assetBase + "/" + c.Name
	}
	return c.URL
}

func moduleSource(c mode.Capability) template.JS {
	return template.JS(fmt.Sprintf("import { %s } from %s; window.%s = %s;", c.Global, strconv.Quote(c.URL), c.Global, c.Global))
}

func paletteCSS() string {
	var sb strings.Builder
	for _, p := range Palettes {
		names := make([]string, 0, len(p.Colors))
		for name := range p.Colors {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(&sb, ":root[data-theme=%q] {\n", string(p.Theme))
		for _, name := range names {
			fmt.Fprintf(&sb, "  --%s: %s;\n", name, p.Colors[name])
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}
