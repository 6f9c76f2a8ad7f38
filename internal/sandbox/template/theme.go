package template

import "github.com/GriffinCanCode/playground/internal/sandbox/protocol"

// Palette is one colour scheme exposed to documents as CSS variables
type Palette struct {
	Theme  protocol.ThemeMode
	Colors map[string]string
}

// Palettes are emitted for both themes; applyTheme only flips data-theme.
var Palettes = []Palette{
	{
		Theme: protocol.Light,
		Colors: map[string]string{
			"background": "#ffffff",
			"surface":    "#f5f5f5",
			"primary":    "#3b82f6",
			"accent":     "#10b981",
			"text":       "#1a1a1a",
			"text-muted": "#666666",
			"border":     "#e0e0e0",
			"error":      "#dc2626",
		},
	},
	{
		Theme: protocol.Dark,
		Colors: map[string]string{
			"background": "#1a1a1a",
			"surface":    "#252525",
			"primary":    "#3b82f6",
			"accent":     "#10b981",
			"text":       "#ffffff",
			"text-muted": "#a0a0a0",
			"border":     "#404040",
			"error":      "#f87171",
		},
	},
}
