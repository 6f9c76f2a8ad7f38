// Package transpile lowers TypeScript and JSX sources to plain ES2017
// CommonJS so an isolated context can evaluate them.
//
// Preset names mirror the browser transformer (env, typescript, react) so the
// same mode table drives both the generated documents and the Go contexts.
package transpile

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Preset names one source transformation
type Preset string

const (
	Env        Preset = "env"
	TypeScript Preset = "typescript"
	React      Preset = "react"
)

// Error is a syntax or type-stripping failure with its source position
type Error struct {
	Message string
	Line    int
	Column  int
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (%d:%d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

// Has reports whether presets contains p
func Has(presets []Preset, p Preset) bool {
	for _, candidate := range presets {
		if candidate == p {
			return true
		}
	}
	return false
}

// Filename returns the virtual source name used for a preset combination.
// The browser transformer needs it to pick the TSX parser.
func Filename(presets []Preset) string {
	ts, jsx := Has(presets, TypeScript), Has(presets, React)
	switch {
	case ts && jsx:
		return "main.tsx"
	case ts:
		return "main.ts"
	case jsx:
		return "main.jsx"
	default:
		return "main.js"
	}
}

func loader(presets []Preset) api.Loader {
	ts, jsx := Has(presets, TypeScript), Has(presets, React)
	switch {
	case ts && jsx:
		return api.LoaderTSX
	case ts:
		return api.LoaderTS
	case jsx:
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// Transform compiles source according to presets. With no presets the
// source is returned unchanged.
func Transform(source string, presets []Preset) (string, error) {
	if len(presets) == 0 {
		return source, nil
	}

	opts := api.TransformOptions{
		Loader:     loader(presets),
		Format:     api.FormatCommonJS,
		Target:     api.ESNext,
		Sourcefile: Filename(presets),
		LogLevel:   api.LogLevelSilent,
	}
	if Has(presets, Env) {
		opts.Target = api.ES2017
	}
	if Has(presets, React) {
		opts.JSX = api.JSXTransform
		opts.JSXFactory = "React.createElement"
		opts.JSXFragment = "React.Fragment"
	}

	result := api.Transform(source, opts)
	if len(result.Errors) > 0 {
		return "", toError(result.Errors[0])
	}
	return strings.TrimRight(string(result.Code), "\n") + "\n", nil
}

func toError(msg api.Message) *Error {
	err := &Error{Message: msg.Text}
	if msg.Location != nil {
		err.Line = msg.Location.Line
		err.Column = msg.Location.Column
	}
	return err
}

// ParsePresets converts browser preset names, ignoring unknown entries
func ParsePresets(names []string) []Preset {
	presets := make([]Preset, 0, len(names))
	for _, name := range names {
		switch p := Preset(strings.ToLower(name)); p {
		case Env, TypeScript, React:
			presets = append(presets, p)
		}
	}
	return presets
}
