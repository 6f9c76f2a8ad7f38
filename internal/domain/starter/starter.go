// Package starter provides the default editor contents for each mode
package starter

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

//go:embed starters.yaml
var fixtures []byte

// Starter is the default code for a mode
type Starter struct {
	Mode     mode.Mode `yaml:"mode" json:"mode"`
	Title    string    `yaml:"title" json:"title"`
	Code     string    `yaml:"code" json:"code"`
	Requests []string  `yaml:"requests,omitempty" json:"requests,omitempty"`
}

// Request is a suggested mock server request
type Request struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

var (
	loadOnce sync.Once
	byMode   map[mode.Mode]Starter
	loadErr  error
)

func load() {
	var list []Starter
	if err := yaml.Unmarshal(fixtures, &list); err != nil {
		loadErr = fmt.Errorf("parse starters: %w", err)
		return
	}
	byMode = make(map[mode.Mode]Starter, len(list))
	for _, s := range list {
		if _, err := mode.Lookup(s.Mode); err != nil {
			loadErr = fmt.Errorf("starter %q: %w", s.Mode, err)
			return
		}
		byMode[s.Mode] = s
	}
}

// For returns the starter for m
func For(m mode.Mode) (Starter, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return Starter{}, loadErr
	}
	s, ok := byMode[m]
	if !ok {
		return Starter{}, fmt.Errorf("%w: no starter for %q", mode.ErrUnknownMode, m)
	}
	return s, nil
}

// Code returns the default editor text for m, or "" when there is none
func Code(m mode.Mode) string {
	s, err := For(m)
	if err != nil {
		return ""
	}
	return s.Code
}

// All returns the starters in mode table order
func All() ([]Starter, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]Starter, 0, len(byMode))
	for _, spec := range mode.All() {
		if s, ok := byMode[spec.Mode]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// ParseRequest splits "GET /path" into a request. A bare path means GET.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 1:
		if strings.HasPrefix(fields[0], "/") {
			return Request{Method: "GET", Path: fields[0]}, nil
		}
	case 2:
		if strings.HasPrefix(fields[1], "/") {
			return Request{Method: strings.ToUpper(fields[0]), Path: fields[1]}, nil
		}
	}
	return Request{}, fmt.Errorf("invalid request %q: want \"METHOD /path\"", line)
}

// SuggestedRequests returns the parsed request presets for s
func (s Starter) SuggestedRequests() []Request {
	out := make([]Request, 0, len(s.Requests))
	for _, line := range s.Requests {
		if r, err := ParseRequest(line); err == nil {
			out = append(out, r)
		}
	}
	return out
}
