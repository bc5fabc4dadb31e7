package publish

import (
	logx "crosspost/pkg/logx"
)

// Registry holds the fixed, ordered set of targets. It is built once at
// startup and is safe for concurrent reads; it has no mutable state.
type Registry struct {
	targets []Target
	byName  map[string]Target
	log     logx.Logger
}

func NewRegistry(log logx.Logger, targets ...Target) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{log: log, byName: make(map[string]Target, len(targets))}
	for _, t := range targets {
		if t == nil {
			continue
		}
		if _, dup := r.byName[t.Name()]; dup {
			continue
		}
		r.targets = append(r.targets, t)
		r.byName[t.Name()] = t
	}
	return r
}

// List returns target names in registration order.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.Name())
	}
	return out
}

func (r *Registry) Get(name string) (Target, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Availability reports each target's availability. A check that panics is
// reported as unavailable and logged; one broken target must not block
// reporting on the rest.
func (r *Registry) Availability() map[string]bool {
	out := make(map[string]bool, len(r.targets))
	for _, t := range r.targets {
		out[t.Name()] = r.safeAvailable(t)
	}
	return out
}

// Filter returns the available targets among names, preserving the order of
// names and dropping duplicates and unknowns.
func (r *Registry) Filter(names []string) []Target {
	seen := make(map[string]bool, len(names))
	var out []Target
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		t, ok := r.byName[name]
		if !ok {
			continue
		}
		if r.safeAvailable(t) {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) safeAvailable(t Target) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("availability check failed", logx.String("target", t.Name()), logx.Any("panic", rec))
			ok = false
		}
	}()
	return t.Available()
}
