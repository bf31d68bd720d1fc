// Package prompt loads and renders the named prompt templates used by
// each pipeline stage — spec.md §4.E. Templates are plain strings with
// "{{VAR}}" placeholders; rendering substitutes a value map into a
// fresh copy of the template without mutating the cached original.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Builder loads named templates once and renders them against
// per-call variable maps. Safe for concurrent use: templates are
// read-only after registration and rendering never mutates cached
// state, matching the teacher's PromptBuilder's "stateless, no mutable
// state" contract (pkg/agent/prompt/builder.go).
type Builder struct {
	mu        sync.RWMutex
	templates map[string]string
}

// New creates a Builder pre-loaded with the four built-in stage
// templates (filter, categorize, summarize, extract) plus the daily
// summary roll-up template. Callers may register additional or
// overriding templates with Register.
func New() *Builder {
	b := &Builder{templates: make(map[string]string)}
	for name, tmpl := range defaultTemplates {
		b.templates[name] = tmpl
	}
	return b
}

// Register adds or overwrites a named template.
func (b *Builder) Register(name, template string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.templates[name] = template
}

// Render substitutes vars into the named template and returns the
// result. A placeholder with no matching key in vars is left verbatim
// in the output — spec.md §4.E's "unmatched placeholders pass through
// unchanged" rule, which lets templates reference optional context
// that a particular stage call may not supply.
//
// Scalar values (strings, numbers, bools) are substituted via their
// string form; everything else (slices, maps, structs) is substituted
// as its JSON encoding, so a template can embed e.g. a list of
// messages or a category taxonomy directly.
func (b *Builder) Render(name string, vars map[string]any) (string, error) {
	b.mu.RLock()
	tmpl, ok := b.templates[name]
	b.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("prompt: unknown template %q", name)
	}

	result := tmpl
	for key, val := range vars {
		rendered, err := renderValue(val)
		if err != nil {
			return "", fmt.Errorf("prompt: render template %q: var %q: %w", name, key, err)
		}
		result = strings.ReplaceAll(result, "{{"+key+"}}", rendered)
	}
	return result, nil
}

// renderValue converts one substitution value to its textual form.
func renderValue(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	}

	switch v.(type) {
	case int, int64, float64, float32, bool:
		return fmt.Sprintf("%v", v), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
