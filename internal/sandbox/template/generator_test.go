package template

import (
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

func parse(t *testing.T, doc string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	require.NoError(t, err)
	return d
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := New()
	for _, spec := range mode.All() {
		for _, placeholder := range []bool{true, false} {
			a, err := g.Generate(spec.Mode, placeholder)
			require.NoError(t, err)
			b, err := New().Generate(spec.Mode, placeholder)
			require.NoError(t, err)
			assert.Equal(t, a, b, "%s placeholder=%v", spec.Mode, placeholder)
		}
	}
}

func TestDocumentStructure(t *testing.T) {
	g := New()
	for _, spec := range mode.All() {
		t.Run(string(spec.Mode), func(t *testing.T) {
			doc := parse(t, g.MustGenerate(spec.Mode, false))

			assert.Equal(t, string(spec.Mode), doc.Find("html").AttrOr("data-mode", ""))
			assert.Equal(t, "light", doc.Find("html").AttrOr("data-theme", ""))
			assert.Equal(t, 1, doc.Find("#root").Length())
			assert.Equal(t, 1, doc.Find(`script[data-runtime="sandbox"]`).Length())
			assert.Equal(t, len(spec.Capabilities), doc.Find("script[data-capability]").Length())

			runtime := doc.Find(`script[data-runtime="sandbox"]`).Text()
			assert.Contains(t, runtime, "function runMode(code, root)")
			assert.Contains(t, runtime, "'READY_SIGNAL'")
			assert.Contains(t, runtime, "'[Circular]'")
			assert.Equal(t, spec.IsServer(), strings.Contains(runtime, "function simulateRequest("))
			deferred := false
			for _, c := range spec.Capabilities {
				deferred = deferred || c.Module
			}
			assert.Regexp(t, `var DEFERRED =\s*`+strconv.FormatBool(deferred)+`\s*;`, runtime)
			if spec.NeedsTranspile() {
				assert.Contains(t, runtime, `var PRESETS = [`)
			} else {
				assert.Regexp(t, `var PRESETS =\s*null\s*;`, runtime)
			}
		})
	}
}

func TestCapabilitiesLoadBeforeRuntime(t *testing.T) {
	doc := New().MustGenerate(mode.ReactTS, false)

	react := strings.Index(doc, `data-capability="react"`)
	reactDOM := strings.Index(doc, `data-capability="react-dom"`)
	babel := strings.Index(doc, `data-capability="babel"`)
	runtime := strings.Index(doc, `data-runtime="sandbox"`)

	require.True(t, react > 0 && reactDOM > 0 && babel > 0)
	assert.Less(t, react, reactDOM)
	assert.Less(t, reactDOM, runtime)
	assert.Less(t, babel, runtime)
	assert.Contains(t, doc, `"main.tsx"`)
}

func TestPlaceholder(t *testing.T) {
	g := New()
	spec, _ := mode.Lookup(mode.P5)

	with := parse(t, g.MustGenerate(mode.P5, true))
	assert.Equal(t, 1, with.Find("#root .placeholder").Length())
	assert.Contains(t, spec.Placeholder, "Press Run")

	without := parse(t, g.MustGenerate(mode.P5, false))
	assert.Equal(t, 0, without.Find("#root").Children().Length())
}

func TestHonoLoadsAsModule(t *testing.T) {
	doc := parse(t, New(WithAssetBase("/assets/")).MustGenerate(mode.Hono, false))

	module := doc.Find(`script[type="module"][data-capability="hono"]`)
	require.Equal(t, 1, module.Length())
	assert.Contains(t, module.Text(), `import { Hono } from "https://esm.sh/hono@4.6.3"`)
}

func TestAssetBaseRewritesProxyableCapabilities(t *testing.T) {
	doc := parse(t, New(WithAssetBase("/assets/")).MustGenerate(mode.P5, false))
	assert.Equal(t, "/assets/p5", doc.Find(`script[data-capability="p5"]`).AttrOr("src", ""))

	doc = parse(t, New().MustGenerate(mode.P5, false))
	assert.Equal(t, mode.P5Engine.URL, doc.Find(`script[data-capability="p5"]`).AttrOr("src", ""))
}

func TestThemePalettes(t *testing.T) {
	doc := New().MustGenerate(mode.DOM, false)
	assert.Contains(t, doc, `:root[data-theme="light"]`)
	assert.Contains(t, doc, `:root[data-theme="dark"]`)
	assert.Contains(t, doc, "--text-muted:")
}

func TestUnknownMode(t *testing.T) {
	_, err := New().Generate("cobol", false)
	assert.ErrorIs(t, err, mode.ErrUnknownMode)
}
