package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

var (
	ErrInvalidDocument   = errors.New("invalid sandbox document")
	ErrUnknownCapability = errors.New("unknown capability")
)

// Manifest is what a context needs from a generated document
type Manifest struct {
	Spec         mode.Spec
	Theme        protocol.ThemeMode
	Capabilities []string
	Root         *html.Node
}

// ParseManifest reads a generated sandbox document
func ParseManifest(source string) (*Manifest, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	root := doc.Find("html")
	m, err := mode.Parse(root.AttrOr("data-mode", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	spec, _ := mode.Lookup(m)

	theme, err := protocol.ParseTheme(root.AttrOr("data-theme", string(protocol.Light)))
	if err != nil {
		theme = protocol.Light
	}

	if n := doc.Find(`script[data-runtime="sandbox"]`).Length(); n != 1 {
		return nil, fmt.Errorf("%w: expected one sandbox runtime script, found %d", ErrInvalidDocument, n)
	}

	output := doc.Find("#root")
	if output.Length() != 1 {
		return nil, fmt.Errorf("%w: missing output root", ErrInvalidDocument)
	}

	manifest := &Manifest{Spec: spec, Theme: theme, Root: output.Get(0)}
	var unknown []string
	doc.Find("script[data-capability]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("data-capability", "")
		if _, ok := installers[name]; !ok {
			unknown = append(unknown, name)
			return
		}
		manifest.Capabilities = append(manifest.Capabilities, name)
	})
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, strings.Join(unknown, ", "))
	}
	return manifest, nil
}
