package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/playground/internal/sandbox/transpile"
)

func TestTableCoversEveryMode(t *testing.T) {
	modes := []Mode{DOM, TypeScript, P5, React, ReactTS, Express, ExpressTS, Hono, HeadlessJS, HeadlessTS}
	require.Len(t, All(), len(modes))

	for _, m := range modes {
		spec, err := Lookup(m)
		require.NoError(t, err, m)
		assert.Equal(t, m, spec.Mode)
		assert.NotEmpty(t, spec.Placeholder)
		assert.NotEmpty(t, spec.Label)
	}
}

func TestTranspiledModesLoadBabel(t *testing.T) {
	for _, spec := range All() {
		assert.Equal(t, spec.NeedsTranspile(), spec.HasCapability("babel"), spec.Mode)
		if spec.Language == "typescript" {
			assert.True(t, transpile.Has(spec.Presets, transpile.TypeScript), spec.Mode)
		}
	}
}

func TestKinds(t *testing.T) {
	for _, m := range []Mode{Express, ExpressTS, Hono} {
		spec, _ := Lookup(m)
		assert.True(t, spec.IsServer(), m)
	}
	for _, m := range []Mode{HeadlessJS, HeadlessTS} {
		spec, _ := Lookup(m)
		assert.Equal(t, Headless, spec.Kind)
	}
	spec, _ := Lookup(P5)
	assert.Equal(t, Visual, spec.Kind)
}

func TestParse(t *testing.T) {
	m, err := Parse("  React-TS ")
	require.NoError(t, err)
	assert.Equal(t, ReactTS, m)

	_, err = Parse("cobol")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Len(t, caps, 5)
	assert.True(t, caps["hono"].Module)
	assert.False(t, caps["hono"].Proxy)
	assert.True(t, caps["p5"].Proxy)
}

func TestAllReturnsCopy(t *testing.T) {
	specs := All()
	specs[0].Label = "changed"
	spec, _ := Lookup(specs[0].Mode)
	assert.NotEqual(t, "changed", All()[0].Label)
	assert.NotEqual(t, "changed", spec.Label)
}
