package workspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
)

// ErrNoDOM is returned when a workspace has not produced a DOM snapshot
var ErrNoDOM = errors.New("no DOM snapshot")

// Match is one node selected from a DOM snapshot
type Match struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// QueryDOM evaluates an XPath expression against a DOM snapshot
func QueryDOM(snapshot, xpath string) ([]Match, error) {
	if strings.TrimSpace(snapshot) == "" {
		return nil, ErrNoDOM
	}
	doc, err := htmlquery.Parse(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, xpath)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", xpath, err)
	}

	out := make([]Match, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, Match{
			HTML: htmlquery.OutputHTML(node, true),
			Text: strings.TrimSpace(htmlquery.InnerText(node)),
		})
	}
	return out, nil
}

// Inspect runs QueryDOM on the workspace's current snapshot
func (w *Workspace) Inspect(xpath string) ([]Match, error) {
	w.mu.Lock()
	dom := w.dom
	w.mu.Unlock()
	return QueryDOM(dom, xpath)
}
