package optimization

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/ipoptgo/internal/optimization/numdiff"
)

// Options always appended after user options: no banner, and a
// limited-memory Hessian since no Hessian callback is exposed.
var forcedOptions = []Option{
	{Key: "sb", Value: "yes"},
	{Key: "hessian_approximation", Value: "limited-memory"},
}

var solverJacobianOption = Option{Key: "jacobian_approximation", Value: "finite-difference-values"}

type minimizeConfig struct {
	logger   *zap.Logger
	relStep  float64
	defaults []string
}

// MinimizeOption configures Minimize.
type MinimizeOption func(*minimizeConfig)

// WithLogger sets the logger used to report solves.
func WithLogger(logger *zap.Logger) MinimizeOption {
	return func(c *minimizeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStep sets the relative finite difference step. Zero keeps the
// scheme's default.
func WithStep(relStep float64) MinimizeOption {
	return func(c *minimizeConfig) {
		c.relStep = relStep
	}
}

// WithDefaultOptions prepends solver option lines; the problem's own
// options override them.
func WithDefaultOptions(lines []string) MinimizeOption {
	return func(c *minimizeConfig) {
		c.defaults = append(c.defaults, lines...)
	}
}

// Minimize finds a local minimum of p using solver. Missing derivatives are
// filled in by finite differences, or by the solver for the constraint
// Jacobian. Invalid definitions are rejected before the solver runs.
func Minimize(ctx context.Context, solver Solver, p Problem, opts ...MinimizeOption) (*Result, error) {
	cfg := minimizeConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	nlp, err := marshal(p, &cfg)
	if err != nil {
		return nil, WrapError(err, "invalid problem").WithOperation("minimize")
	}

	logger := cfg.logger.With(zap.Int("parameters", nlp.N), zap.Int("constraints", nlp.M))
	logger.Debug("invoking solver",
		zap.Stringers("options", nlp.Options),
		zap.Bool("analytic_gradient", p.Gradient != nil),
		zap.Bool("analytic_jacobian", p.Jacobian != nil),
	)

	start := time.Now()
	res, err := solver.Solve(ctx, nlp)
	elapsed := time.Since(start)

	if err != nil {
		logger.Warn("solve failed", zap.Error(err), zap.Duration("elapsed", elapsed))
	}
	if res != nil {
		logger.Info("solve finished",
			zap.String("status", res.Message),
			zap.Int("iterations", res.Iterations),
			zap.Float64("objective", res.F),
			zap.Duration("elapsed", elapsed),
		)
	}
	return res, err
}

// Marshal converts p into the solver-facing form without running it.
func Marshal(p Problem, opts ...MinimizeOption) (*NLP, error) {
	cfg := minimizeConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return marshal(p, &cfg)
}

func marshal(p Problem, cfg *minimizeConfig) (*NLP, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n, m := p.Dims()
	nlp := &NLP{
		N:           n,
		M:           m,
		Start:       append([]float64(nil), p.Start...),
		Objective:   p.Objective,
		Gradient:    p.Gradient,
		Constraints: p.Constraints,
		Jacobian:    p.Jacobian,
	}
	nlp.XL, nlp.XU = p.ParameterBounds.sanitized()
	nlp.GL, nlp.GU = p.ConstraintBounds.sanitized()

	if nlp.Constraints == nil {
		nlp.Constraints = func(bool, []float64, []float64) error { return nil }
	}

	defaults, err := ParseOptions(cfg.defaults)
	if err != nil {
		return nil, err
	}
	user, err := ParseOptions(p.Options)
	if err != nil {
		return nil, err
	}
	nlp.Options = append(defaults, user...)

	// Finite difference trial points move the user's point behind the solver's
	// back; the next call at the real iterate must be flagged as new.
	var moves moveTracker
	if p.Gradient == nil || p.JacobianScheme == TwoPoint || p.JacobianScheme == ThreePoint {
		nlp.Objective = moves.objective(nlp.Objective)
		nlp.Constraints = moves.constraints(nlp.Constraints)
		if nlp.Gradient != nil {
			nlp.Gradient = moves.gradient(nlp.Gradient)
		}
		if nlp.Jacobian != nil {
			nlp.Jacobian = moves.jacobian(nlp.Jacobian)
		}
	}

	if p.Gradient == nil {
		method := numdiff.Central
		if p.GradientScheme == TwoPoint {
			method = numdiff.Forward
		}
		proxy := numdiff.NewProxy(nlp.Objective, numdiff.Spec{
			Method:  method,
			Lower:   nlp.XL,
			Upper:   nlp.XU,
			RelStep: cfg.relStep,
		})
		nlp.Objective = proxy.Value
		nlp.Gradient = func(isNew bool, x, grad []float64) error {
			calls := proxy.Calls
			err := proxy.Gradient(isNew, x, grad)
			if proxy.Calls > calls {
				moves.moved()
			}
			return err
		}
	}

	if p.Jacobian == nil {
		switch p.JacobianScheme {
		case Default, SolverApprox:
			nlp.Options = append(nlp.Options, solverJacobianOption)
		case TwoPoint, ThreePoint:
			jac := finiteDifferenceJacobian(nlp, p.JacobianScheme, cfg.relStep)
			nlp.Jacobian = func(isNew bool, x, dst []float64) error {
				defer moves.moved()
				return jac(isNew, x, dst)
			}
		default:
			return nil, fmt.Errorf("%w: jacobian scheme %s", ErrInvalidOption, p.JacobianScheme)
		}
	}

	nlp.Options = append(nlp.Options, forcedOptions...)
	return nlp, nil
}

// finiteDifferenceJacobian differentiates nlp.Constraints in Go.
func finiteDifferenceJacobian(nlp *NLP, scheme Scheme, relStep float64) JacobianFunc {
	if nlp.M == 0 {
		return func(bool, []float64, []float64) error { return nil }
	}

	method := numdiff.Central
	if scheme == TwoPoint {
		method = numdiff.Forward
	}
	spec := numdiff.Spec{Method: method, Lower: nlp.XL, Upper: nlp.XU, RelStep: relStep}
	constraints := nlp.Constraints

	g0 := make([]float64, nlp.M)
	dst := mat.NewDense(nlp.M, nlp.N, nil)

	return func(isNew bool, x, jac []float64) error {
		if err := constraints(isNew, x, g0); err != nil {
			return err
		}
		err := spec.Jacobian(dst, x, g0, func(y, xp []float64) error {
			return constraints(true, xp, y)
		})
		if err != nil {
			return err
		}
		copy(jac, dst.RawMatrix().Data)
		return nil
	}
}

// moveTracker forces isNew on the first user callback after finite
// difference steps evaluated the problem away from the current iterate.
type moveTracker struct {
	dirty bool
}

func (t *moveTracker) moved() {
	t.dirty = true
}

func (t *moveTracker) take(isNew bool) bool {
	isNew = isNew || t.dirty
	t.dirty = false
	return isNew
}

func (t *moveTracker) objective(f ObjectiveFunc) ObjectiveFunc {
	return func(isNew bool, x []float64) (float64, error) {
		return f(t.take(isNew), x)
	}
}

func (t *moveTracker) constraints(f ConstraintFunc) ConstraintFunc {
	return func(isNew bool, x, g []float64) error {
		return f(t.take(isNew), x, g)
	}
}

func (t *moveTracker) gradient(f GradientFunc) GradientFunc {
	return func(isNew bool, x, grad []float64) error {
		return f(t.take(isNew), x, grad)
	}
}

func (t *moveTracker) jacobian(f JacobianFunc) JacobianFunc {
	return func(isNew bool, x, jac []float64) error {
		return f(t.take(isNew), x, jac)
	}
}
