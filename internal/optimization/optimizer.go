package optimization

import (
	"context"
)

// Solver runs a nonlinear program already marshaled into an NLP.
type Solver interface {
	// Solve blocks until the solver terminates or ctx is cancelled between
	// iterations. Solver failures are reported through Result.Status; a
	// non-nil error means the solve could not run or a callback failed.
	Solve(ctx context.Context, nlp *NLP) (*Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, nlp *NLP) (*Result, error)

// Solve calls f(ctx, nlp).
func (f SolverFunc) Solve(ctx context.Context, nlp *NLP) (*Result, error) {
	return f(ctx, nlp)
}

// NLP is the solver-facing form of a Problem: dimensions, flat bound
// arrays and callbacks with every derivative resolved. A nil Jacobian
// means the solver approximates it itself.
type NLP struct {
	N, M int

	XL, XU []float64
	GL, GU []float64
	Start  []float64

	Objective   ObjectiveFunc
	Gradient    GradientFunc
	Constraints ConstraintFunc
	Jacobian    JacobianFunc

	Options []Option
}

// JacobianLen returns the number of entries of the dense Jacobian.
func (nlp *NLP) JacobianLen() int {
	return nlp.N * nlp.M
}

// JacobianStructure fills row and column indices of the dense Jacobian in
// row-major order, 0-based.
func (nlp *NLP) JacobianStructure(rows, cols []int32) {
	for row, off := 0, 0; row < nlp.M; row++ {
		for col := 0; col < nlp.N; col++ {
			rows[off] = int32(row)
			cols[off] = int32(col)
			off++
		}
	}
}
