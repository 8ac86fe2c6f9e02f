package ipopt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// session is the Go side of one solve. The native callbacks translate C
// arguments into slices and delegate here.
type session struct {
	ctx    context.Context
	nlp    *optimization.NLP
	logger *zap.Logger

	x     []float64
	hasX  bool
	evals optimization.Evaluations
	iters int
	err   error
}

func newSession(ctx context.Context, nlp *optimization.NLP, logger *zap.Logger) *session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &session{ctx: ctx, nlp: nlp, logger: logger, x: make([]float64, nlp.N)}
}

// point returns the Go copy of the current iterate, refreshed only when
// the solver reports a new point.
func (s *session) point(x []float64, isNew bool) []float64 {
	if isNew || !s.hasX {
		copy(s.x, x)
		s.hasX = true
	}
	return s.x
}

// guard runs a user callback. Errors and panics are recorded and reported
// to the solver as a failed evaluation; after the first failure every
// callback fails and the next intermediate callback stops the solve.
func (s *session) guard(name string, fn func() error) (ok bool) {
	if s.err != nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.err = &optimization.EvaluationError{Callback: name, Err: fmt.Errorf("panic: %v", r)}
			ok = false
		}
	}()
	if err := fn(); err != nil {
		s.err = &optimization.EvaluationError{Callback: name, Err: err}
		return false
	}
	return true
}

func (s *session) objective(isNew bool, x []float64) (float64, bool) {
	var v float64
	ok := s.guard("objective", func() error {
		s.evals.Objective++
		var err error
		v, err = s.nlp.Objective(isNew, s.point(x, isNew))
		return err
	})
	return v, ok
}

func (s *session) gradient(isNew bool, x, grad []float64) bool {
	return s.guard("gradient", func() error {
		s.evals.Gradient++
		return s.nlp.Gradient(isNew, s.point(x, isNew), grad)
	})
}

func (s *session) constraints(isNew bool, x, g []float64) bool {
	return s.guard("constraints", func() error {
		s.evals.Constraints++
		return s.nlp.Constraints(isNew, s.point(x, isNew), g)
	})
}

// jacobian fills values; a nil Jacobian means the solver approximates it
// and never asks for values.
func (s *session) jacobian(isNew bool, x, values []float64) bool {
	if s.nlp.Jacobian == nil {
		return false
	}
	return s.guard("jacobian", func() error {
		s.evals.Jacobian++
		return s.nlp.Jacobian(isNew, s.point(x, isNew), values)
	})
}

// iteration records progress and reports whether the solve may continue.
func (s *session) iteration(iter int, obj, infPr, infDu, mu float64, restoration bool) bool {
	s.iters = iter
	if ce := s.logger.Check(zap.DebugLevel, "iteration"); ce != nil {
		ce.Write(
			zap.Int("iter", iter),
			zap.Float64("objective", obj),
			zap.Float64("inf_pr", infPr),
			zap.Float64("inf_du", infDu),
			zap.Float64("mu", mu),
			zap.Bool("restoration", restoration),
		)
	}
	return s.err == nil && s.ctx.Err() == nil
}

// result assembles the outcome of the solve. The first callback failure,
// if any, is returned alongside it.
func (s *session) result(status optimization.Status, x []float64, f float64, g, multG, multXL, multXU []float64) (*optimization.Result, error) {
	res := optimization.NewResult(status)
	res.Iterations = s.iters
	res.X = x
	res.F = f
	res.G = g
	res.MultG = multG
	res.MultXL = multXL
	res.MultXU = multXU
	res.Evaluations = s.evals
	return res, s.err
}
