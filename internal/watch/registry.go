// Package watch fetches the configured pages and classifies each one.
package watch

import (
	"errors"
	"fmt"
	"strings"
)

var ErrDuplicateTarget = errors.New("duplicate target")

// Target is a single watched page. Name is its identity.
type Target struct {
	Name string
	URL  string
}

// Registry is the fixed, ordered set of targets. It never changes after
// construction.
type Registry struct {
	targets []Target
}

func NewRegistry(targets ...Target) (*Registry, error) {
	seen := make(map[string]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		t.Name = strings.TrimSpace(t.Name)
		t.URL = strings.TrimSpace(t.URL)
		if t.Name == "" || t.URL == "" {
			return nil, fmt.Errorf("target %q: name and url are required", t.Name)
		}
		if _, ok := seen[t.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, t.Name)
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
	}
	return &Registry{targets: out}, nil
}

// Targets returns the targets in registry order. The slice is a copy.
func (r *Registry) Targets() []Target {
	if r == nil {
		return nil
	}
	return append([]Target(nil), r.targets...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.targets)
}
