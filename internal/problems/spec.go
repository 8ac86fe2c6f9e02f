package problems

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// Derivative sources accepted by Spec.Gradient and Spec.Jacobian besides
// the finite difference schemes.
const (
	Analytic = "analytic"
	Solver   = "solver"
)

// Spec selects a registered problem and overrides parts of it. It is
// read from YAML files and from JSON request bodies. Empty fields keep
// the problem's own values.
//
//	problem: hs071
//	start: [1, 5, 5, 1]
//	constraint_bounds:
//	  lower: [25, 40]
//	  upper: [.inf, 40]
//	options:
//	  - tol 1e-9
//	gradient: 3-point
//	jacobian: solver
type Spec struct {
	Problem          string               `json:"problem" yaml:"problem"`
	Start            []float64            `json:"start,omitempty" yaml:"start,omitempty"`
	ParameterBounds  *optimization.Bounds `json:"parameter_bounds,omitempty" yaml:"parameter_bounds,omitempty"`
	ConstraintBounds *optimization.Bounds `json:"constraint_bounds,omitempty" yaml:"constraint_bounds,omitempty"`
	Options          []string             `json:"options,omitempty" yaml:"options,omitempty"`
	Gradient         string               `json:"gradient,omitempty" yaml:"gradient,omitempty"`
	Jacobian         string               `json:"jacobian,omitempty" yaml:"jacobian,omitempty"`
}

// LoadSpec reads a YAML spec file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSpec decodes a YAML spec. Unknown keys are rejected.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode spec: %w", err)
	}
	if s.Problem == "" {
		return nil, errors.New("decode spec: problem is required")
	}
	return &s, nil
}

// Apply returns p with the overrides of s. Options are appended so they
// take precedence over the problem's own.
func (s *Spec) Apply(p optimization.Problem) (optimization.Problem, error) {
	if s.Start != nil {
		p.Start = append([]float64(nil), s.Start...)
	}
	if s.ParameterBounds != nil {
		p.ParameterBounds = *s.ParameterBounds
	}
	if s.ConstraintBounds != nil {
		p.ConstraintBounds = *s.ConstraintBounds
	}
	p.Options = append(append([]string(nil), p.Options...), s.Options...)

	switch s.Gradient {
	case "", Analytic:
	case Solver:
		return p, fmt.Errorf("%w: the objective gradient cannot be delegated to the solver", optimization.ErrInvalidOption)
	default:
		scheme, err := optimization.ParseScheme(s.Gradient)
		if err != nil {
			return p, err
		}
		p.Gradient = nil
		p.GradientScheme = scheme
	}

	switch s.Jacobian {
	case "", Analytic:
	default:
		scheme, err := optimization.ParseScheme(s.Jacobian)
		if err != nil {
			return p, err
		}
		p.Jacobian = nil
		p.JacobianScheme = scheme
	}
	return p, nil
}
