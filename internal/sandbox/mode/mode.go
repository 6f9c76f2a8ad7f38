// Package mode defines the environment modes of the playground and the
// strategy table that drives document generation and context behaviour.
package mode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/playground/internal/sandbox/transpile"
)

// ErrUnknownMode is returned when a mode name is not in the table
var ErrUnknownMode = errors.New("unknown environment mode")

// Mode is one execution environment the user can pick
type Mode string

const (
	DOM        Mode = "dom"
	TypeScript Mode = "typescript"
	P5         Mode = "p5"
	React      Mode = "react"
	ReactTS    Mode = "react-ts"
	Express    Mode = "express"
	ExpressTS  Mode = "express-ts"
	Hono       Mode = "hono"
	HeadlessJS Mode = "headless-js"
	HeadlessTS Mode = "headless-ts"
)

func (m Mode) String() string { return string(m) }

// Kind groups modes by what their output root shows
type Kind string

const (
	Visual   Kind = "visual"
	Server   Kind = "server"
	Headless Kind = "headless"
)

// Capability is an external script a mode document loads before its bootstrap
type Capability struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Global string `json:"global"`
	// Module capabilities are ES modules imported into Global
	Module bool `json:"module,omitempty"`
	// Proxy marks assets the backend may mirror under /assets/<name>
	Proxy bool `json:"proxy,omitempty"`
}

// Spec is one row of the strategy table
type Spec struct {
	Mode         Mode               `json:"mode"`
	Label        string             `json:"label"`
	Language     string             `json:"language"`
	Extension    string             `json:"extension"`
	Kind         Kind               `json:"kind"`
	Presets      []transpile.Preset `json:"presets,omitempty"`
	Capabilities []Capability       `json:"capabilities,omitempty"`
	Placeholder  string             `json:"placeholder"`
}

// NeedsTranspile reports whether user code goes through the transpiler
func (s Spec) NeedsTranspile() bool { return len(s.Presets) > 0 }

// IsServer reports whether the mode hosts a mock server
func (s Spec) IsServer() bool { return s.Kind == Server }

// HasCapability reports whether the mode loads the named capability
func (s Spec) HasCapability(name string) bool {
	for _, c := range s.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Capability URLs are pinned so generated documents stay deterministic.
var (
	Babel = Capability{
		Name:   "babel",
		URL:    "https://unpkg.com/@babel/standalone@7.24.7/babel.min.js",
		Global: "Babel",
		Proxy:  true,
	}
	P5Engine = Capability{
		Name:   "p5",
		URL:    "https://cdnjs.cloudflare.com/ajax/libs/p5.js/1.9.4/p5.min.js",
		Global: "p5",
		Proxy:  true,
	}
	ReactLib = Capability{
		Name:   "react",
		URL:    "https://unpkg.com/react@18.3.1/umd/react.development.js",
		Global: "React",
		Proxy:  true,
	}
	ReactDOMLib = Capability{
		Name:   "react-dom",
		URL:    "https://unpkg.com/react-dom@18.3.1/umd/react-dom.development.js",
		Global: "ReactDOM",
		Proxy:  true,
	}
	HonoLib = Capability{
		Name:   "hono",
		URL:    "https://esm.sh/hono@4.6.3",
		Global: "Hono",
		Module: true,
	}
)

const (
	visualPlaceholder   = `<p class="placeholder">Press Run to see your output here.</p>`
	serverPlaceholder   = `<p class="placeholder">Server modes have no visual output. Use the request panel to call your routes.</p>`
	headlessPlaceholder = `<p class="placeholder">Headless mode: DOM access is disabled. Check the console.</p>`
)

var (
	tsPresets  = []transpile.Preset{transpile.TypeScript, transpile.Env}
	jsxPresets = []transpile.Preset{transpile.React, transpile.Env}
	tsxPresets = []transpile.Preset{transpile.React, transpile.TypeScript, transpile.Env}
)

var table = []Spec{
	{Mode: DOM, Label: "DOM", Language: "javascript", Extension: "js", Kind: Visual, Placeholder: visualPlaceholder},
	{Mode: TypeScript, Label: "TypeScript", Language: "typescript", Extension: "ts", Kind: Visual,
		Presets: tsPresets, Capabilities: []Capability{Babel}, Placeholder: visualPlaceholder},
	{Mode: P5, Label: "p5.js", Language: "javascript", Extension: "js", Kind: Visual,
		Capabilities: []Capability{P5Engine}, Placeholder: visualPlaceholder},
	{Mode: React, Label: "React", Language: "javascript", Extension: "jsx", Kind: Visual,
		Presets: jsxPresets, Capabilities: []Capability{ReactLib, ReactDOMLib, Babel}, Placeholder: visualPlaceholder},
	{Mode: ReactTS, Label: "React + TypeScript", Language: "typescript", Extension: "tsx", Kind: Visual,
		Presets: tsxPresets, Capabilities: []Capability{ReactLib, ReactDOMLib, Babel}, Placeholder: visualPlaceholder},
	{Mode: Express, Label: "Express", Language: "javascript", Extension: "js", Kind: Server, Placeholder: serverPlaceholder},
	{Mode: ExpressTS, Label: "Express + TypeScript", Language: "typescript", Extension: "ts", Kind: Server,
		Presets: tsPresets, Capabilities: []Capability{Babel}, Placeholder: serverPlaceholder},
	{Mode: Hono, Label: "Hono", Language: "javascript", Extension: "js", Kind: Server,
		Capabilities: []Capability{HonoLib}, Placeholder: serverPlaceholder},
	{Mode: HeadlessJS, Label: "Headless JS", Language: "javascript", Extension: "js", Kind: Headless, Placeholder: headlessPlaceholder},
	{Mode: HeadlessTS, Label: "Headless TS", Language: "typescript", Extension: "ts", Kind: Headless,
		Presets: tsPresets, Capabilities: []Capability{Babel}, Placeholder: headlessPlaceholder},
}

var index = func() map[Mode]Spec {
	m := make(map[Mode]Spec, len(table))
	for _, s := range table {
		m[s.Mode] = s
	}
	return m
}()

// All returns the strategy table in display order
func All() []Spec {
	out := make([]Spec, len(table))
	copy(out, table)
	return out
}

// Lookup returns the strategy entry for m
func Lookup(m Mode) (Spec, error) {
	s, ok := index[m]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownMode, string(m))
	}
	return s, nil
}

// Parse converts user input into a known mode
func Parse(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	if _, err := Lookup(m); err != nil {
		return "", err
	}
	return m, nil
}

// Capabilities returns every distinct capability in the table, keyed by name
func Capabilities() map[string]Capability {
	out := make(map[string]Capability)
	for _, s := range table {
		for _, c := range s.Capabilities {
			out[c.Name] = c
		}
	}
	return out
}
