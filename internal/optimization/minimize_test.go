package optimization_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
	"github.com/copyleftdev/ipoptgo/internal/optimization/optimizationtest"
)

func TestMinimizeRejectsInvalidProblems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *optimization.Problem)
		wantErr error
	}{
		{
			name:    "parameter bounds mismatch",
			mutate:  func(p *optimization.Problem) { p.ParameterBounds.Upper = []float64{5} },
			wantErr: optimization.ErrBoundsMismatch,
		},
		{
			name:    "constraint bounds mismatch",
			mutate:  func(p *optimization.Problem) { p.ConstraintBounds.Lower = []float64{2} },
			wantErr: optimization.ErrBoundsMismatch,
		},
		{
			name:    "crossed bounds",
			mutate:  func(p *optimization.Problem) { p.ParameterBounds.Lower[1] = 6 },
			wantErr: optimization.ErrInvalidBounds,
		},
		{
			name:    "short start",
			mutate:  func(p *optimization.Problem) { p.Start = []float64{1} },
			wantErr: optimization.ErrDimension,
		},
		{
			name: "no parameters",
			mutate: func(p *optimization.Problem) {
				p.ParameterBounds = optimization.Bounds{}
				p.Start = nil
			},
			wantErr: optimization.ErrDimension,
		},
		{
			name:    "missing objective",
			mutate:  func(p *optimization.Problem) { p.Objective = nil },
			wantErr: optimization.ErrMissingCallback,
		},
		{
			name:    "missing constraints",
			mutate:  func(p *optimization.Problem) { p.Constraints = nil },
			wantErr: optimization.ErrMissingCallback,
		},
		{
			name: "solver gradient",
			mutate: func(p *optimization.Problem) {
				p.Gradient = nil
				p.GradientScheme = optimization.SolverApprox
			},
			wantErr: optimization.ErrInvalidOption,
		},
		{
			name:    "malformed option",
			mutate:  func(p *optimization.Problem) { p.Options = []string{"print_level"} },
			wantErr: optimization.ErrInvalidOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProblem()
			tt.mutate(&p)

			solver := &optimizationtest.Solver{}
			res, err := optimization.Minimize(context.Background(), solver, p)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Nil(t, solver.NLP(), "solver must not run")

			_, ok := optimization.IsOptimizationError(err)
			assert.True(t, ok)
		})
	}
}

func TestMinimizeMarshalsProblem(t *testing.T) {
	p := testProblem()
	p.ParameterBounds.Upper[1] = math.NaN()

	solver := &optimizationtest.Solver{Status: optimization.SolveSucceeded}
	res, err := optimization.Minimize(context.Background(), solver, p,
		optimization.WithDefaultOptions([]string{"print_level 5", "tol 1e-9"}))
	require.NoError(t, err)

	nlp := solver.NLP()
	require.NotNil(t, nlp)
	assert.Equal(t, 2, nlp.N)
	assert.Equal(t, 2, nlp.M)
	assert.Equal(t, []float64{0, 0}, nlp.XL)
	assert.Equal(t, []float64{5, math.Inf(1)}, nlp.XU)
	assert.Equal(t, []float64{2, math.Inf(-1)}, nlp.GL)
	assert.Equal(t, []float64{math.Inf(1), 0}, nlp.GU)
	assert.Equal(t, 4, nlp.JacobianLen())

	assert.Equal(t, []optimization.Option{
		{Key: "print_level", Value: "5"},
		{Key: "tol", Value: "1e-9"},
		{Key: "print_level", Value: "0"},
		{Key: "sb", Value: "yes"},
		{Key: "hessian_approximation", Value: "limited-memory"},
	}, nlp.Options)

	level, ok := optimization.Lookup(nlp.Options, "print_level")
	assert.True(t, ok)
	assert.Equal(t, "0", level)

	// The start is copied, not aliased.
	p.Start[0] = 100
	assert.Equal(t, 4.0, nlp.Start[0])

	// Result fields pass through untouched.
	assert.True(t, res.Success)
	assert.Equal(t, optimization.SolveSucceeded, res.Status)
	assert.Equal(t, "SOLVE_SUCCEEDED", res.Message)
	assert.Equal(t, []float64{4, 3}, res.X)
	assert.Equal(t, 13.0, res.F)
	assert.Equal(t, []float64{25, 1}, res.G)
	assert.Equal(t, optimization.Evaluations{Objective: 1, Gradient: 1, Constraints: 1, Jacobian: 1}, res.Evaluations)
}

func TestMinimizePassesFailureStatus(t *testing.T) {
	solver := &optimizationtest.Solver{
		Status: optimization.MaximumIterationsExceeded,
		Steps:  [][]float64{{3, 2}, {2, 1.5}},
	}
	res, err := optimization.Minimize(context.Background(), solver, testProblem())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "MAXIMUM_ITERATIONS_EXCEEDED", res.Message)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, []float64{2, 1.5}, res.X)
}

func TestMinimizeFiniteDifferenceGradient(t *testing.T) {
	var flags []bool
	p := testProblem()
	p.Gradient = nil
	p.Objective = func(isNew bool, x []float64) (float64, error) {
		flags = append(flags, isNew)
		return quadratic(isNew, x)
	}

	for _, scheme := range []optimization.Scheme{optimization.Default, optimization.ThreePoint, optimization.TwoPoint} {
		t.Run(scheme.String(), func(t *testing.T) {
			flags = nil
			p.GradientScheme = scheme

			solver := &optimizationtest.Solver{}
			_, err := optimization.Minimize(context.Background(), solver, p)
			require.NoError(t, err)

			grad, err := optimizationtest.Gradient(solver.NLP(), []float64{5, 0})
			require.NoError(t, err)
			// Forward differences at the upper bound flip to backward ones.
			assertFloat64SlicesEqual(t, grad, []float64{8, -2}, 1e-5)

			for _, isNew := range flags {
				assert.True(t, isNew)
			}
		})
	}
}

func TestMinimizeJacobianSchemes(t *testing.T) {
	x := []float64{1.5, 0.5}

	t.Run("solver approximation by default", func(t *testing.T) {
		p := testProblem()
		p.Jacobian = nil

		nlp, err := optimization.Marshal(p)
		require.NoError(t, err)
		assert.Nil(t, nlp.Jacobian)

		value, ok := optimization.Lookup(nlp.Options, "jacobian_approximation")
		assert.True(t, ok)
		assert.Equal(t, "finite-difference-values", value)
	})

	for _, scheme := range []optimization.Scheme{optimization.TwoPoint, optimization.ThreePoint} {
		t.Run(scheme.String(), func(t *testing.T) {
			p := testProblem()
			p.Jacobian = nil
			p.JacobianScheme = scheme

			nlp, err := optimization.Marshal(p, optimization.WithStep(1e-7))
			require.NoError(t, err)
			require.NotNil(t, nlp.Jacobian)

			_, ok := optimization.Lookup(nlp.Options, "jacobian_approximation")
			assert.False(t, ok)

			jac, err := optimizationtest.Jacobian(nlp, x)
			require.NoError(t, err)
			assertFloat64SlicesEqual(t, jac, []float64{3, 1, 1, -1}, 1e-5)
		})
	}

	t.Run("unknown scheme", func(t *testing.T) {
		p := testProblem()
		p.Jacobian = nil
		p.JacobianScheme = optimization.Scheme(42)

		_, err := optimization.Marshal(p)
		assert.ErrorIs(t, err, optimization.ErrInvalidOption)
	})
}

// cachedCircle evaluates quadratic and circle together and only when told
// the point moved, the way callers sharing work between callbacks do.
type cachedCircle struct {
	x    []float64
	f    float64
	g    []float64
	seen [][]float64
}

func (c *cachedCircle) update(isNew bool, x []float64) {
	if !isNew && c.x != nil {
		return
	}
	c.x = append(c.x[:0], x...)
	c.f, _ = quadratic(true, x)
	c.g = make([]float64, 2)
	_ = circle(true, x, c.g)
	c.seen = append(c.seen, append([]float64(nil), x...))
}

func (c *cachedCircle) objective(isNew bool, x []float64) (float64, error) {
	c.update(isNew, x)
	return c.f, nil
}

func (c *cachedCircle) constraints(isNew bool, x, g []float64) error {
	c.update(isNew, x)
	copy(g, c.g)
	return nil
}

func TestMinimizeDifferencingRestoresNewFlag(t *testing.T) {
	x := []float64{1.5, 0.5}

	t.Run("jacobian", func(t *testing.T) {
		cache := &cachedCircle{}
		p := testProblem()
		p.Constraints = cache.constraints
		p.Jacobian = nil
		p.JacobianScheme = optimization.ThreePoint

		nlp, err := optimization.Marshal(p)
		require.NoError(t, err)

		g := make([]float64, 2)
		require.NoError(t, nlp.Constraints(true, x, g))
		assert.Equal(t, []float64{2.5, 1}, g)

		jac := make([]float64, 4)
		require.NoError(t, nlp.Jacobian(false, x, jac))
		assertFloat64SlicesEqual(t, jac, []float64{3, 1, 1, -1}, 1e-5)

		require.NoError(t, nlp.Constraints(false, x, g))
		assert.Equal(t, []float64{2.5, 1}, g)
		assert.Equal(t, x, cache.seen[len(cache.seen)-1])
	})

	t.Run("gradient", func(t *testing.T) {
		cache := &cachedCircle{}
		p := testProblem()
		p.Objective = cache.objective
		p.Constraints = cache.constraints
		p.Gradient = nil

		nlp, err := optimization.Marshal(p)
		require.NoError(t, err)

		f, err := nlp.Objective(true, x)
		require.NoError(t, err)
		assert.Equal(t, 0.5, f)

		grad := make([]float64, 2)
		require.NoError(t, nlp.Gradient(false, x, grad))
		assertFloat64SlicesEqual(t, grad, []float64{1, -1}, 1e-6)

		g := make([]float64, 2)
		require.NoError(t, nlp.Constraints(false, x, g))
		assert.Equal(t, []float64{2.5, 1}, g)
		assert.Equal(t, x, cache.seen[len(cache.seen)-1])
	})
}

func TestMinimizeUnconstrained(t *testing.T) {
	p := testProblem()
	p.Constraints = nil
	p.Jacobian = nil
	p.ConstraintBounds = optimization.Bounds{}

	solver := &optimizationtest.Solver{}
	res, err := optimization.Minimize(context.Background(), solver, p)
	require.NoError(t, err)
	assert.Empty(t, res.G)
	assert.Equal(t, 0, solver.NLP().M)
}

func TestMinimizeCallbackErrors(t *testing.T) {
	boom := errors.New("boom")
	p := testProblem()
	p.Constraints = func(bool, []float64, []float64) error { return boom }

	solver := &optimizationtest.Solver{}
	res, err := optimization.Minimize(context.Background(), solver, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, optimization.ErrEvaluation)
	require.NotNil(t, res)
	assert.Equal(t, optimization.InvalidNumberDetected, res.Status)

	var evalErr *optimization.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "constraints", evalErr.Callback)
}

func TestMinimizeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	solver := &optimizationtest.Solver{Block: true, Steps: [][]float64{{1, 1}}}

	done := make(chan *optimization.Result)
	go func() {
		res, _ := optimization.Minimize(ctx, solver, testProblem())
		done <- res
	}()

	cancel()
	res := <-done
	assert.Equal(t, optimization.UserRequestedStop, res.Status)
	assert.False(t, res.Success)
}

func TestMinimizeLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	solver := &optimizationtest.Solver{}

	_, err := optimization.Minimize(context.Background(), solver, testProblem(),
		optimization.WithLogger(zap.New(core)))
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("invoking solver").Len())
	finished := logs.FilterMessage("solve finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "SOLVE_SUCCEEDED", finished[0].ContextMap()["status"])
	assert.Equal(t, int64(2), finished[0].ContextMap()["parameters"])
}
