package optimization

import (
	"fmt"
	"math"
)

// ObjectiveFunc evaluates the objective at x. isNew reports whether x
// changed since the previous call to any callback of the same problem.
type ObjectiveFunc func(isNew bool, x []float64) (float64, error)

// ConstraintFunc evaluates the constraint vector at x into g.
type ConstraintFunc func(isNew bool, x, g []float64) error

// GradientFunc evaluates the objective gradient at x into grad.
type GradientFunc func(isNew bool, x, grad []float64) error

// JacobianFunc evaluates the dense constraint Jacobian at x into jac,
// stored row-major: jac[i*n+j] = dg_i/dx_j.
type JacobianFunc func(isNew bool, x, jac []float64) error

// Bounds holds lower and upper limits of equal length.
// Infinite values leave a side unbounded.
type Bounds struct {
	Lower []float64 `json:"lower" yaml:"lower"`
	Upper []float64 `json:"upper" yaml:"upper"`
}

// Len returns the number of bounded entries.
func (b Bounds) Len() int {
	return len(b.Lower)
}

// Validate reports mismatched lengths or crossed limits. name is used in
// the error message.
func (b Bounds) Validate(name string) error {
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("%w on %s: %d lower, %d upper", ErrBoundsMismatch, name, len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		lo, hi := b.Lower[i], b.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) {
			continue
		}
		if lo > hi {
			return fmt.Errorf("%w on %s[%d]: %g > %g", ErrInvalidBounds, name, i, lo, hi)
		}
	}
	return nil
}

// sanitized returns copies with NaN replaced by the matching infinity.
func (b Bounds) sanitized() (lower, upper []float64) {
	lower = make([]float64, len(b.Lower))
	upper = make([]float64, len(b.Upper))
	for i, v := range b.Lower {
		if math.IsNaN(v) {
			v = math.Inf(-1)
		}
		lower[i] = v
	}
	for i, v := range b.Upper {
		if math.IsNaN(v) {
			v = math.Inf(1)
		}
		upper[i] = v
	}
	return lower, upper
}

// Scheme selects how a missing derivative is approximated.
type Scheme int

const (
	// Default picks ThreePoint for the gradient and SolverApprox for the
	// constraint Jacobian.
	Default Scheme = iota
	// ThreePoint uses central differences.
	ThreePoint
	// TwoPoint uses forward differences.
	TwoPoint
	// SolverApprox leaves the approximation to the solver. Only valid for
	// the constraint Jacobian.
	SolverApprox
)

func (s Scheme) String() string {
	switch s {
	case Default:
		return "default"
	case ThreePoint:
		return "3-point"
	case TwoPoint:
		return "2-point"
	case SolverApprox:
		return "solver"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// ParseScheme parses "2-point", "3-point" or "solver". The empty string
// and "default" yield Default.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "", "default":
		return Default, nil
	case "3-point":
		return ThreePoint, nil
	case "2-point":
		return TwoPoint, nil
	case "solver":
		return SolverApprox, nil
	}
	return 0, fmt.Errorf("unknown finite difference scheme %q", s)
}

// Problem defines a constrained nonlinear program
//
//	minimize f(x) subject to xL <= x <= xU, gL <= g(x) <= gU.
//
// Gradient and Jacobian are optional.
type Problem struct {
	Objective   ObjectiveFunc
	Constraints ConstraintFunc
	Gradient    GradientFunc
	Jacobian    JacobianFunc

	Start            []float64
	ParameterBounds  Bounds
	ConstraintBounds Bounds

	// Options are "name value" lines passed to the solver.
	Options []string

	// GradientScheme applies when Gradient is nil. SolverApprox is rejected.
	GradientScheme Scheme
	// JacobianScheme applies when Jacobian is nil. Default and SolverApprox
	// delegate to the solver, the point schemes differentiate in Go.
	JacobianScheme Scheme
}

// Dims returns the number of parameters and constraints.
func (p *Problem) Dims() (n, m int) {
	return p.ParameterBounds.Len(), p.ConstraintBounds.Len()
}

// Validate checks the problem definition before the solver is invoked.
func (p *Problem) Validate() error {
	if err := p.ParameterBounds.Validate("parameter limits"); err != nil {
		return err
	}
	if err := p.ConstraintBounds.Validate("constraint limits"); err != nil {
		return err
	}

	n, m := p.Dims()
	if n == 0 {
		return fmt.Errorf("%w: no parameters", ErrDimension)
	}
	if len(p.Start) != n {
		return fmt.Errorf("%w: starting point has %d entries, parameter limits %d", ErrDimension, len(p.Start), n)
	}
	if p.Objective == nil {
		return fmt.Errorf("%w: objective", ErrMissingCallback)
	}
	if m > 0 && p.Constraints == nil {
		return fmt.Errorf("%w: constraints", ErrMissingCallback)
	}
	if p.Gradient == nil && p.GradientScheme == SolverApprox {
		return fmt.Errorf("%w: gradient scheme %s", ErrInvalidOption, p.GradientScheme)
	}
	return nil
}
