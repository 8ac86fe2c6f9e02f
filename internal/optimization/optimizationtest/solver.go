// Package optimizationtest provides a scripted Solver for tests.
//
// The Solver drives callbacks the way the native solver does: the objective
// first with isNew set, then the remaining callbacks at the same point with
// isNew cleared. It does not optimise anything.
package optimizationtest

import (
	"context"
	"sync"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// Call records one callback invocation.
type Call struct {
	Callback string
	IsNew    bool
	X        []float64
}

// Solver visits Start followed by Steps and reports the last point.
type Solver struct {
	// Status is reported when every point was visited.
	Status optimization.Status
	// Steps are the points visited after the starting point.
	Steps [][]float64
	// Err, when set, is returned from Solve without touching callbacks.
	Err error
	// Block makes Solve wait for ctx cancellation after the first point.
	Block bool

	mu    sync.Mutex
	nlp   *optimization.NLP
	calls []Call
}

// NLP returns the last problem handed to Solve.
func (s *Solver) NLP() *optimization.NLP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nlp
}

// Calls returns the recorded callback invocations.
func (s *Solver) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Solver) record(name string, isNew bool, x []float64) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Callback: name, IsNew: isNew, X: append([]float64(nil), x...)})
	s.mu.Unlock()
}

// Solve implements optimization.Solver.
func (s *Solver) Solve(ctx context.Context, nlp *optimization.NLP) (*optimization.Result, error) {
	s.mu.Lock()
	s.nlp = nlp
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	points := append([][]float64{nlp.Start}, s.Steps...)
	status := s.Status

	var (
		evals optimization.Evaluations
		x     []float64
		f     float64
		g     = make([]float64, nlp.M)
		grad  = make([]float64, nlp.N)
		jac   = make([]float64, nlp.JacobianLen())
		iters int
	)

	for i, p := range points {
		if ctx.Err() != nil {
			status = optimization.UserRequestedStop
			break
		}
		x = append([]float64(nil), p...)

		var err error
		s.record("objective", true, x)
		evals.Objective++
		if f, err = nlp.Objective(true, x); err != nil {
			return s.failed(x, iters, evals), &optimization.EvaluationError{Callback: "objective", Err: err}
		}

		s.record("gradient", false, x)
		evals.Gradient++
		if err = nlp.Gradient(false, x, grad); err != nil {
			return s.failed(x, iters, evals), &optimization.EvaluationError{Callback: "gradient", Err: err}
		}

		s.record("constraints", false, x)
		evals.Constraints++
		if err = nlp.Constraints(false, x, g); err != nil {
			return s.failed(x, iters, evals), &optimization.EvaluationError{Callback: "constraints", Err: err}
		}

		if nlp.Jacobian != nil && nlp.M > 0 {
			s.record("jacobian", false, x)
			evals.Jacobian++
			if err = nlp.Jacobian(false, x, jac); err != nil {
				return s.failed(x, iters, evals), &optimization.EvaluationError{Callback: "jacobian", Err: err}
			}
		}
		iters = i

		if s.Block && i == 0 {
			<-ctx.Done()
			status = optimization.UserRequestedStop
			break
		}
	}

	res := optimization.NewResult(status)
	res.Iterations = iters
	res.X = x
	res.F = f
	res.G = append([]float64(nil), g...)
	res.Evaluations = evals
	return res, nil
}

func (s *Solver) failed(x []float64, iters int, evals optimization.Evaluations) *optimization.Result {
	res := optimization.NewResult(optimization.InvalidNumberDetected)
	res.Iterations = iters
	res.X = x
	res.Evaluations = evals
	return res
}

// Gradient evaluates nlp's gradient at x.
func Gradient(nlp *optimization.NLP, x []float64) ([]float64, error) {
	if _, err := nlp.Objective(true, x); err != nil {
		return nil, err
	}
	grad := make([]float64, nlp.N)
	err := nlp.Gradient(false, x, grad)
	return grad, err
}

// Jacobian evaluates nlp's Jacobian at x.
func Jacobian(nlp *optimization.NLP, x []float64) ([]float64, error) {
	jac := make([]float64, nlp.JacobianLen())
	err := nlp.Jacobian(true, x, jac)
	return jac, err
}
