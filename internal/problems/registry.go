// Package problems holds a catalogue of named example programs and the
// YAML spec format used to run them with overrides.
package problems

import (
	"errors"
	"fmt"
	"sort"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// ErrUnknownProblem is returned for a name missing from the registry.
var ErrUnknownProblem = errors.New("unknown problem")

// Entry describes a registered problem.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  int    `json:"parameters"`
	Constraints int    `json:"constraints"`

	build func() optimization.Problem
}

// Registry maps problem names to constructors. Each Get returns a fresh
// Problem, so callers may modify it freely.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry returns a registry holding the built-in catalogue.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]Entry)}
	r.Register("simple", "distance to (1,1) outside the disc of radius 2", Simple)
	r.Register("multiple", "distance to (1,1) with a norm and a half-plane constraint", Multiple)
	r.Register("kopacek-926", "maximise x+y on the unit circle", Kopacek926)
	r.Register("kopacek-927", "minimise xyz on the unit sphere with x+y+z=0", Kopacek927)
	r.Register("numeric", "the multiple problem without derivatives", Numeric)
	r.Register("hs071", "Hock-Schittkowski problem 71", HS071)
	return r
}

// Register adds or replaces a problem.
func (r *Registry) Register(name, description string, build func() optimization.Problem) {
	p := build()
	n, m := p.Dims()
	r.entries[name] = Entry{
		Name:        name,
		Description: description,
		Parameters:  n,
		Constraints: m,
		build:       build,
	}
}

// Get builds the named problem.
func (r *Registry) Get(name string) (optimization.Problem, error) {
	e, ok := r.entries[name]
	if !ok {
		return optimization.Problem{}, fmt.Errorf("%w: %s", ErrUnknownProblem, name)
	}
	return e.build(), nil
}

// List returns the registered problems sorted by name.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve builds the problem named by s and applies its overrides.
func (r *Registry) Resolve(s *Spec) (optimization.Problem, error) {
	p, err := r.Get(s.Problem)
	if err != nil {
		return p, err
	}
	return s.Apply(p)
}
