package problems

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

func box(n int, lo, hi float64) optimization.Bounds {
	b := optimization.Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := range b.Lower {
		b.Lower[i], b.Upper[i] = lo, hi
	}
	return b
}

// distance is the euclidean distance from x to (1, ..., 1).
func distance(_ bool, x []float64) (float64, error) {
	ones := make([]float64, len(x))
	floats.AddConst(1, ones)
	return floats.Distance(x, ones, 2), nil
}

func distanceGrad(_ bool, x, grad []float64) error {
	copy(grad, x)
	floats.AddConst(-1, grad)
	if d := floats.Norm(grad, 2); d > 0 {
		floats.Scale(1/d, grad)
	}
	return nil
}

// normGrad writes x/|x| into dst.
func normGrad(dst, x []float64) {
	copy(dst, x)
	if r := floats.Norm(x, 2); r > 0 {
		floats.Scale(1/r, dst)
	}
}

// Simple is min |x-1| s.t. |x| >= 2 on [0,5]^2.
func Simple() optimization.Problem {
	return optimization.Problem{
		Objective: distance,
		Gradient:  distanceGrad,
		Constraints: func(_ bool, x, g []float64) error {
			g[0] = floats.Norm(x, 2)
			return nil
		},
		Jacobian: func(_ bool, x, jac []float64) error {
			normGrad(jac, x)
			return nil
		},
		Start:            []float64{1, 3},
		ParameterBounds:  box(2, 0, 5),
		ConstraintBounds: optimization.Bounds{Lower: []float64{2}, Upper: []float64{math.Inf(1)}},
		Options:          []string{"print_level 0"},
	}
}

func multipleConstraints(_ bool, x, g []float64) error {
	g[0] = floats.Norm(x, 2)
	g[1] = 3 - floats.Sum(x)
	return nil
}

// Multiple is min |x-1| s.t. 0 <= |x| <= 5, x0+x1 >= 3 on [0,5]^2.
func Multiple() optimization.Problem {
	return optimization.Problem{
		Objective:   distance,
		Gradient:    distanceGrad,
		Constraints: multipleConstraints,
		Jacobian: func(_ bool, x, jac []float64) error {
			normGrad(jac[:2], x)
			jac[2], jac[3] = -1, -1
			return nil
		},
		Start:            []float64{4, 3},
		ParameterBounds:  box(2, 0, 5),
		ConstraintBounds: optimization.Bounds{Lower: []float64{0, math.Inf(-1)}, Upper: []float64{5, 0}},
		Options:          []string{"print_level 0"},
	}
}

// Numeric is Multiple with every derivative left to approximation. The
// solver's derivative checker compares the approximate gradient against
// its own differences; raise print_level to see the report.
func Numeric() optimization.Problem {
	p := Multiple()
	p.Gradient = nil
	p.Jacobian = nil
	p.Options = append(p.Options, "derivative_test first-order")
	return p
}

// Kopacek926 is min 2-x-y s.t. x^2+y^2 = 1 on [-5,5]^2.
func Kopacek926() optimization.Problem {
	return optimization.Problem{
		Objective: func(_ bool, x []float64) (float64, error) {
			return 2 - floats.Sum(x), nil
		},
		Gradient: func(_ bool, _, grad []float64) error {
			grad[0], grad[1] = -1, -1
			return nil
		},
		Constraints: func(_ bool, x, g []float64) error {
			g[0] = floats.Dot(x, x)
			return nil
		},
		Jacobian: func(_ bool, x, jac []float64) error {
			floats.ScaleTo(jac, 2, x)
			return nil
		},
		Start:            []float64{1, 0},
		ParameterBounds:  box(2, -5, 5),
		ConstraintBounds: optimization.Bounds{Lower: []float64{1}, Upper: []float64{1}},
		Options:          []string{"print_level 0"},
	}
}

// Kopacek927 is min xyz s.t. x^2+y^2+z^2 = 1, x+y+z = 0 on [-5,5]^3.
func Kopacek927() optimization.Problem {
	return optimization.Problem{
		Objective: func(_ bool, x []float64) (float64, error) {
			return floats.Prod(x), nil
		},
		Gradient: func(_ bool, x, grad []float64) error {
			grad[0] = x[1] * x[2]
			grad[1] = x[0] * x[2]
			grad[2] = x[0] * x[1]
			return nil
		},
		Constraints: func(_ bool, x, g []float64) error {
			g[0] = floats.Dot(x, x)
			g[1] = floats.Sum(x)
			return nil
		},
		Jacobian: func(_ bool, x, jac []float64) error {
			floats.ScaleTo(jac[:3], 2, x)
			jac[3], jac[4], jac[5] = 1, 1, 1
			return nil
		},
		Start:            []float64{1, 0, 0},
		ParameterBounds:  box(3, -5, 5),
		ConstraintBounds: optimization.Bounds{Lower: []float64{1, 0}, Upper: []float64{1, 0}},
		Options:          []string{"print_level 0"},
	}
}

// HS071 is the Hock-Schittkowski problem 71 shipped with IPOPT:
// min x0*x3*(x0+x1+x2)+x2 s.t. x0*x1*x2*x3 >= 25, |x|^2 = 40, 1 <= x <= 5.
func HS071() optimization.Problem {
	return optimization.Problem{
		Objective: func(_ bool, x []float64) (float64, error) {
			return x[0]*x[3]*floats.Sum(x[:3]) + x[2], nil
		},
		Gradient: func(_ bool, x, grad []float64) error {
			s := floats.Sum(x[:3])
			grad[0] = x[0]*x[3] + x[3]*s
			grad[1] = x[0] * x[3]
			grad[2] = x[0]*x[3] + 1
			grad[3] = x[0] * s
			return nil
		},
		Constraints: func(_ bool, x, g []float64) error {
			g[0] = floats.Prod(x)
			g[1] = floats.Dot(x, x)
			return nil
		},
		Jacobian: func(_ bool, x, jac []float64) error {
			jac[0] = x[1] * x[2] * x[3]
			jac[1] = x[0] * x[2] * x[3]
			jac[2] = x[0] * x[1] * x[3]
			jac[3] = x[0] * x[1] * x[2]
			floats.ScaleTo(jac[4:], 2, x)
			return nil
		},
		Start:            []float64{1, 5, 5, 1},
		ParameterBounds:  box(4, 1, 5),
		ConstraintBounds: optimization.Bounds{Lower: []float64{25, 40}, Upper: []float64{math.Inf(1), 40}},
		Options:          []string{"print_level 0"},
	}
}
