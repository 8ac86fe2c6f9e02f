package ipopt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// recordingNLP returns a two-parameter, one-constraint program whose
// callbacks record the points they receive.
func recordingNLP(seen *[][]float64) *optimization.NLP {
	record := func(x []float64) {
		*seen = append(*seen, append([]float64(nil), x...))
	}
	return &optimization.NLP{
		N: 2, M: 1,
		Objective: func(_ bool, x []float64) (float64, error) {
			record(x)
			return x[0] + x[1], nil
		},
		Gradient: func(_ bool, x, grad []float64) error {
			record(x)
			grad[0], grad[1] = 1, 1
			return nil
		},
		Constraints: func(_ bool, x, g []float64) error {
			record(x)
			g[0] = x[0] * x[1]
			return nil
		},
		Jacobian: func(_ bool, x, jac []float64) error {
			record(x)
			jac[0], jac[1] = x[1], x[0]
			return nil
		},
	}
}

func TestSessionPointRefreshesOnNewFlag(t *testing.T) {
	var seen [][]float64
	s := newSession(context.Background(), recordingNLP(&seen), nil)

	native := []float64{1, 2}
	f, ok := s.objective(true, native)
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	// The solver reuses its buffer; without the new flag the cached copy
	// is handed out.
	native[0] = 7
	g := make([]float64, 1)
	require.True(t, s.constraints(false, native, g))
	assert.Equal(t, 2.0, g[0])

	grad := make([]float64, 2)
	require.True(t, s.gradient(true, native, grad))
	assert.Equal(t, []float64{1, 1}, grad)

	jac := make([]float64, 2)
	require.True(t, s.jacobian(false, native, jac))
	assert.Equal(t, []float64{2, 7}, jac)

	assert.Equal(t, [][]float64{{1, 2}, {1, 2}, {7, 2}, {7, 2}}, seen)
	assert.Equal(t, optimization.Evaluations{Objective: 1, Gradient: 1, Constraints: 1, Jacobian: 1}, s.evals)

	// Callbacks see a Go copy, not the solver's memory.
	native[1] = 9
	assert.Equal(t, []float64{7, 2}, s.x)
}

func TestSessionFirstErrorSticks(t *testing.T) {
	var seen [][]float64
	boom := errors.New("boom")
	nlp := recordingNLP(&seen)
	nlp.Constraints = func(bool, []float64, []float64) error { return boom }

	s := newSession(context.Background(), nlp, nil)
	x := []float64{1, 2}

	_, ok := s.objective(true, x)
	require.True(t, ok)
	assert.False(t, s.constraints(false, x, make([]float64, 1)))

	// Every later callback fails without reaching user code.
	_, ok = s.objective(true, x)
	assert.False(t, ok)
	assert.False(t, s.gradient(false, x, make([]float64, 2)))
	assert.False(t, s.jacobian(false, x, make([]float64, 2)))
	assert.Len(t, seen, 1)

	assert.False(t, s.iteration(3, 0, 0, 0, 0, false))

	res, err := s.result(optimization.UserRequestedStop, x, 3, []float64{0}, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, optimization.ErrEvaluation)
	var evalErr *optimization.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "constraints", evalErr.Callback)

	require.NotNil(t, res)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, optimization.Evaluations{Objective: 1, Constraints: 1}, res.Evaluations)
}

func TestSessionRecoversPanics(t *testing.T) {
	var seen [][]float64
	nlp := recordingNLP(&seen)
	nlp.Gradient = func(bool, []float64, []float64) error {
		var grad []float64
		grad[3] = 1
		return nil
	}

	s := newSession(context.Background(), nlp, nil)
	assert.False(t, s.gradient(true, []float64{1, 2}, make([]float64, 2)))

	var evalErr *optimization.EvaluationError
	require.ErrorAs(t, s.err, &evalErr)
	assert.Equal(t, "gradient", evalErr.Callback)
	assert.Contains(t, evalErr.Error(), "panic")

	_, ok := s.objective(true, []float64{1, 2})
	assert.False(t, ok)
}

func TestSessionJacobianLeftToSolver(t *testing.T) {
	var seen [][]float64
	nlp := recordingNLP(&seen)
	nlp.Jacobian = nil

	s := newSession(context.Background(), nlp, nil)
	assert.False(t, s.jacobian(true, []float64{1, 2}, make([]float64, 2)))
	assert.NoError(t, s.err)
	assert.Empty(t, seen)
}

func TestSessionIterationStopsOnCancel(t *testing.T) {
	var seen [][]float64
	core, logs := observer.New(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())

	s := newSession(ctx, recordingNLP(&seen), zap.New(core))
	assert.True(t, s.iteration(1, 4.5, 0.1, 0.2, 0.01, false))

	cancel()
	assert.False(t, s.iteration(2, 4.0, 0.1, 0.2, 0.01, true))
	assert.Equal(t, 2, s.iters)

	res, err := s.result(optimization.UserRequestedStop, []float64{1, 2}, 4, []float64{2}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "USER_REQUESTED_STOP", res.Message)
	assert.Equal(t, 2, res.Iterations)

	entries := logs.FilterMessage("iteration").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[1].ContextMap()["iter"])
	assert.Equal(t, true, entries[1].ContextMap()["restoration"])
}
