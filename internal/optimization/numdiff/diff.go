// Package numdiff approximates first derivatives by finite differences.
//
// The difference formulas come from gonum's diff/fd package. This package only
// decides, per coordinate, which formula and step to use so that every trial point
// stays inside the box defined by the lower and upper bounds.
package numdiff

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
	cbrtEps = math.Cbrt(math.Nextafter(1, 2) - 1)
)

var (
	ErrLength       = errors.New("numdiff: mismatched dimensions")
	ErrInvalidBound = errors.New("numdiff: lower bound exceeds upper bound")
	ErrMethod       = errors.New("numdiff: unknown method")
)

// Method selects the finite difference scheme.
type Method int

const (
	// Forward uses first order one-sided differences (2-point).
	Forward Method = iota
	// Central uses central differences in the interior and second order
	// one-sided differences near the bounds (3-point).
	Central
)

// Second order one-sided formulas used by Central near a bound.
var (
	forward3 = fd.Formula{
		Stencil:    []fd.Point{{Loc: 0, Coeff: -1.5}, {Loc: 1, Coeff: 2}, {Loc: 2, Coeff: -0.5}},
		Derivative: 1,
		Step:       2e-8,
	}
	backward3 = fd.Formula{
		Stencil:    []fd.Point{{Loc: 0, Coeff: 1.5}, {Loc: -1, Coeff: -2}, {Loc: -2, Coeff: 0.5}},
		Derivative: 1,
		Step:       2e-8,
	}
)

// Spec describes how derivatives are approximated.
type Spec struct {
	Method Method
	// Lower and Upper bound the trial points. Nil slices mean unbounded, NaN
	// entries are treated as infinite.
	Lower, Upper []float64
	// RelStep scales the absolute step h = RelStep * max(1, |x|).
	// Zero selects eps^(1/2) for Forward and eps^(1/3) for Central.
	RelStep float64
}

func (s *Spec) check(n int) error {
	if s.Method != Forward && s.Method != Central {
		return ErrMethod
	}
	if (s.Lower != nil && len(s.Lower) != n) || (s.Upper != nil && len(s.Upper) != n) {
		return ErrLength
	}
	for i := 0; i < n; i++ {
		if s.lower(i) > s.upper(i) {
			return ErrInvalidBound
		}
	}
	return nil
}

func (s *Spec) lower(i int) float64 {
	if s.Lower == nil || math.IsNaN(s.Lower[i]) {
		return math.Inf(-1)
	}
	return s.Lower[i]
}

func (s *Spec) upper(i int) float64 {
	if s.Upper == nil || math.IsNaN(s.Upper[i]) {
		return math.Inf(1)
	}
	return s.Upper[i]
}

func (s *Spec) relStep() float64 {
	switch {
	case s.RelStep > 0:
		return s.RelStep
	case s.Method == Central:
		return cbrtEps
	default:
		return sqrtEps
	}
}

// plan picks the formula and step for coordinate i at value x.
// A zero step means the coordinate is fixed by its bounds.
func (s *Spec) plan(i int, x float64) (fd.Formula, float64) {
	lo, hi := s.lower(i), s.upper(i)
	h := s.relStep() * math.Max(1, math.Abs(x))
	// Make h exactly representable as a difference of x values.
	h = (x + h) - x

	up, down := hi-x, x-lo

	if s.Method == Forward {
		switch {
		case h <= up:
			return fd.Forward, h
		case h <= down:
			return fd.Backward, h
		case up >= down:
			return fd.Forward, math.Max(up, 0)
		default:
			return fd.Backward, math.Max(down, 0)
		}
	}

	switch {
	case h <= up && h <= down:
		return fd.Central, h
	case 2*h <= up:
		return forward3, h
	case 2*h <= down:
		return backward3, h
	case up >= down:
		return forward3, math.Max(up, 0) / 2
	default:
		return backward3, math.Max(down, 0) / 2
	}
}

// Gradient approximates the gradient of f at x into dst. f0 must hold f(x).
// The first error returned by f aborts the approximation.
func (s *Spec) Gradient(dst, x []float64, f0 float64, f func(x []float64) (float64, error)) error {
	n := len(x)
	if len(dst) != n {
		return ErrLength
	}
	if err := s.check(n); err != nil {
		return err
	}

	xt := make([]float64, n)
	copy(xt, x)

	var ferr error
	for i := 0; i < n; i++ {
		formula, h := s.plan(i, x[i])
		if h == 0 {
			dst[i] = 0
			continue
		}

		fi := func(t float64) float64 {
			if ferr != nil {
				return math.NaN()
			}
			xt[i] = t
			v, err := f(xt)
			if err != nil {
				ferr = err
				return math.NaN()
			}
			return v
		}

		dst[i] = fd.Derivative(fi, x[i], &fd.Settings{
			Formula:     formula,
			Step:        h,
			OriginKnown: true,
			OriginValue: f0,
		})
		xt[i] = x[i]

		if ferr != nil {
			return ferr
		}
	}
	return nil
}

// Jacobian approximates the m×n Jacobian of f at x into dst. g0 must hold
// f(x). Columns are planned like Gradient coordinates, so trial points stay inside
// the bounds. The first error returned by f aborts the approximation.
func (s *Spec) Jacobian(dst *mat.Dense, x, g0 []float64, f func(y, x []float64) error) error {
	m, n := dst.Dims()
	if len(x) != n || len(g0) != m {
		return ErrLength
	}
	if err := s.check(n); err != nil {
		return err
	}

	xt := make([]float64, n)
	copy(xt, x)
	col := make([]float64, m)
	y := make([]float64, m)

	for j := 0; j < n; j++ {
		for i := range col {
			col[i] = 0
		}

		formula, h := s.plan(j, x[j])
		if h != 0 {
			for _, pt := range formula.Stencil {
				if pt.Loc == 0 {
					floats.AddScaled(col, pt.Coeff, g0)
					continue
				}
				xt[j] = x[j] + pt.Loc*h
				err := f(y, xt)
				xt[j] = x[j]
				if err != nil {
					return err
				}
				floats.AddScaled(col, pt.Coeff, y)
			}
			floats.Scale(1/h, col)
		}
		dst.SetCol(j, col)
	}
	return nil
}
