package optimization_test

import (
	"math"
	"testing"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// quadratic is sum((x_i - 1)^2).
func quadratic(isNew bool, x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += (v - 1) * (v - 1)
	}
	return sum, nil
}

func quadraticGrad(isNew bool, x, grad []float64) error {
	for i, v := range x {
		grad[i] = 2 * (v - 1)
	}
	return nil
}

// circle is g_0 = x_0^2 + x_1^2, g_1 = x_0 - x_1.
func circle(isNew bool, x, g []float64) error {
	g[0] = x[0]*x[0] + x[1]*x[1]
	g[1] = x[0] - x[1]
	return nil
}

func circleJac(isNew bool, x, jac []float64) error {
	copy(jac, []float64{2 * x[0], 2 * x[1], 1, -1})
	return nil
}

func testProblem() optimization.Problem {
	return optimization.Problem{
		Objective:        quadratic,
		Constraints:      circle,
		Gradient:         quadraticGrad,
		Jacobian:         circleJac,
		Start:            []float64{4, 3},
		ParameterBounds:  optimization.Bounds{Lower: []float64{0, 0}, Upper: []float64{5, 5}},
		ConstraintBounds: optimization.Bounds{Lower: []float64{2, math.Inf(-1)}, Upper: []float64{math.Inf(1), 0}},
		Options:          []string{"print_level 0"},
	}
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}
