package templates

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Template is the resolved configuration of one event.
type Template struct {
	Variables map[string]Variable
	Event     string
	// Name is the renderer template file, e.g. "password_reset.md".
	Name    string
	Subject string
	Layout  string
	Tags    []string
}

// Registry maps event names to templates. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	templates map[string]Template
}

// NewRegistry validates entries and builds a registry.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{templates: make(map[string]Template, len(entries))}

	var errs []error
	for i, e := range entries {
		switch {
		case e.Event == "":
			errs = append(errs, fmt.Errorf("entry %d: event name is empty", i))
			continue
		case e.Template == "":
			errs = append(errs, fmt.Errorf("event %s: template is empty", e.Event))
		}
		if _, dup := r.templates[e.Event]; dup {
			errs = append(errs, fmt.Errorf("event %s: declared twice", e.Event))
		}
		for name, v := range e.Variables {
			if !v.Type.valid() {
				errs = append(errs, fmt.Errorf("event %s: variable %q: unknown type %q", e.Event, name, v.Type))
			}
		}

		r.templates[e.Event] = Template{
			Event:     e.Event,
			Name:      e.Template,
			Subject:   e.Subject,
			Layout:    e.Layout,
			Tags:      slices.Clone(e.Tags),
			Variables: maps.Clone(e.Variables),
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return r, nil
}

// Resolve returns the template registered for event.
func (r *Registry) Resolve(event string) (Template, error) {
	t, ok := r.templates[event]
	if !ok {
		return Template{}, unknownEvent(event)
	}
	return t, nil
}

// Events returns the registered event names in sorted order.
func (r *Registry) Events() []string {
	return slices.Sorted(maps.Keys(r.templates))
}

// Checker parses a layout and template without rendering them.
// *mailer.Renderer implements it.
type Checker interface {
	Check(layout, template string) error
}

// Check verifies that every registered template and its layout parse.
// defaultLayout is used for entries without a layout of their own.
func (r *Registry) Check(c Checker, defaultLayout string) error {
	var errs []error
	for _, event := range r.Events() {
		t := r.templates[event]
		layout := t.Layout
		if layout == "" {
			layout = defaultLayout
		}
		if err := c.Check(layout, t.Name); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event, err))
		}
	}
	return errors.Join(errs...)
}
