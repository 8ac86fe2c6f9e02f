package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/ipoptgo/internal/config"
	"github.com/copyleftdev/ipoptgo/internal/logging"
	"github.com/copyleftdev/ipoptgo/internal/optimization"
	"github.com/copyleftdev/ipoptgo/internal/optimization/optimizationtest"
	"github.com/copyleftdev/ipoptgo/internal/problems"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second
	cfg.HTTP.SolveTimeout = 10 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stdout"

	cfg.Solver.GradientScheme = "3-point"
	cfg.Optimization.WorkerCount = 1

	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	return logging.New(logging.DebugLevel, io.Discard)
}

type fixture struct {
	srv    *Server
	solver *optimizationtest.Solver
	router chi.Router
}

func newFixture(t *testing.T, solver *optimizationtest.Solver) *fixture {
	t.Helper()

	registry := problems.NewRegistry()
	registry.Register("broken", "objective always fails", func() optimization.Problem {
		p := problems.Simple()
		p.Objective = func(bool, []float64) (float64, error) {
			return 0, errors.New("domain error")
		}
		return p
	})
	registry.Register("overflow", "objective is infinite", func() optimization.Problem {
		p := problems.Simple()
		p.Objective = func(bool, []float64) (float64, error) {
			return math.Inf(1), nil
		}
		return p
	})

	srv := NewServer(testConfig(t), testLogger(t), solver, registry)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() { _ = srv.Close() })
	return &fixture{srv: srv, solver: solver, router: r}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (f *fixture) waitStatus(t *testing.T, id string, want JobStatus) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	require.Eventually(t, func() bool {
		rr := f.do(http.MethodGet, "/api/v1/status/"+id, "")
		if rr.Code != http.StatusOK {
			return false
		}
		last = decode(t, rr)
		return last["status"] == string(want)
	}, 5*time.Second, 5*time.Millisecond)
	return last
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), &optimizationtest.Solver{}, problems.NewRegistry())
	assert.NotNil(t, srv, "Server should be created")
	assert.Equal(t, 1, cap(srv.sem))
}

func TestRegisterRoutes(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/optimize", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/optimization/123", true},
		{"GET", "/api/v1/problems", true},
		{"POST", "/api/v1/solve", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false},
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := f.do(tt.method, tt.path, "")
			// Unknown routes are the only 404s without a JSON body.
			routed := rr.Code != http.StatusNotFound || strings.Contains(rr.Body.String(), "error")
			assert.Equal(t, tt.shouldExist, routed)
		})
	}
}

func TestListProblems(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	rr := f.do(http.MethodGet, "/api/v1/problems", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []problems.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "broken", entries[0].Name)

	var hs071 *problems.Entry
	for i := range entries {
		if entries[i].Name == "hs071" {
			hs071 = &entries[i]
		}
	}
	require.NotNil(t, hs071)
	assert.Equal(t, 4, hs071.Parameters)
	assert.Equal(t, 2, hs071.Constraints)
}

func TestSolve(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{Status: optimization.SolveSucceeded})

	rr := f.do(http.MethodPost, "/api/v1/solve", `{"problem": "hs071", "options": ["max_iter 20"], "jacobian": "solver"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "SOLVE_SUCCEEDED", body["message"])
	assert.Equal(t, []interface{}{1.0, 5.0, 5.0, 1.0}, body["x"])

	nlp := f.solver.NLP()
	require.NotNil(t, nlp)
	assert.Nil(t, nlp.Jacobian)
	v, ok := optimization.Lookup(nlp.Options, "max_iter")
	assert.True(t, ok)
	assert.Equal(t, "20", v)
	v, _ = optimization.Lookup(nlp.Options, "jacobian_approximation")
	assert.Equal(t, "finite-difference-values", v)
}

func TestSolveEncodesNonFinite(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{Status: optimization.InvalidNumberDetected})

	rr := f.do(http.MethodPost, "/api/v1/solve", `{"problem": "overflow"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "+Inf", body["f"])
	assert.Equal(t, "INVALID_NUMBER_DETECTED", body["message"])
}

func TestSolveErrors(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{"problem":`, http.StatusBadRequest},
		{"unknown field", `{"problem": "simple", "seed": 1}`, http.StatusBadRequest},
		{"missing problem", `{}`, http.StatusBadRequest},
		{"unknown problem", `{"problem": "rosenbrock"}`, http.StatusNotFound},
		{"bad scheme", `{"problem": "simple", "gradient": "solver"}`, http.StatusBadRequest},
		{"short start", `{"problem": "simple", "start": [1]}`, http.StatusBadRequest},
		{"callback error", `{"problem": "broken"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/api/v1/solve", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode(t, rr)["error"])
		})
	}
}

func TestOptimizeLifecycle(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{
		Status: optimization.SolveSucceeded,
		Steps:  [][]float64{{2, 2}},
	})

	rr := f.do(http.MethodPost, "/api/v1/optimize", `{"problem": "multiple"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	start := decode(t, rr)
	assert.Equal(t, "pending", start["status"])
	id, _ := start["optimization_id"].(string)
	require.NotEmpty(t, id)

	status := f.waitStatus(t, id, StatusCompleted)
	assert.Equal(t, "multiple", status["problem"])
	assert.NotEmpty(t, status["end_time"])

	result, ok := status["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{2.0, 2.0}, result["x"])
	assert.Equal(t, float64(1), result["iterations"])

	rr = f.do(http.MethodDelete, "/api/v1/optimization/"+id, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestOptimizeFailedJob(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	rr := f.do(http.MethodPost, "/api/v1/optimize", `{"problem": "broken"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["optimization_id"].(string)

	status := f.waitStatus(t, id, StatusFailed)
	assert.Contains(t, status["error"], "domain error")
}

func TestOptimizeRejectsInvalidSpec(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	rr := f.do(http.MethodPost, "/api/v1/optimize", `{"problem": "simple", "parameter_bounds": {"lower": [0], "upper": [1, 2]}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.srv.optimizations)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{Block: true, Steps: [][]float64{{2, 2}}})

	rr := f.do(http.MethodPost, "/api/v1/optimize", `{"problem": "simple"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["optimization_id"].(string)

	f.waitStatus(t, id, StatusRunning)

	rr = f.do(http.MethodDelete, "/api/v1/optimization/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	status := f.waitStatus(t, id, StatusCancelled)
	require.Eventually(t, func() bool {
		status = decode(t, f.do(http.MethodGet, "/api/v1/status/"+id, ""))
		return status["result"] != nil
	}, 5*time.Second, 5*time.Millisecond)
	result := status["result"].(map[string]interface{})
	assert.Equal(t, "USER_REQUESTED_STOP", result["message"])

	rr = f.do(http.MethodDelete, "/api/v1/optimization/"+id, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	rr := f.do(http.MethodGet, "/api/v1/status/opt_missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = f.do(http.MethodDelete, "/api/v1/optimization/opt_missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCloseCancelsJobs(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{Block: true})

	rr := f.do(http.MethodPost, "/api/v1/optimize", `{"problem": "kopacek-926"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["optimization_id"].(string)
	f.waitStatus(t, id, StatusRunning)

	require.NoError(t, f.srv.Close())

	status := decode(t, f.do(http.MethodGet, "/api/v1/status/"+id, ""))
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, "USER_REQUESTED_STOP", status["result"].(map[string]interface{})["message"])
}

func rpc(t *testing.T, f *fixture, body string) map[string]interface{} {
	t.Helper()
	rr := f.do(http.MethodPost, "/rpc", body)
	require.Equal(t, http.StatusOK, rr.Code)
	return decode(t, rr)
}

func TestJSONRPC(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{Status: optimization.SolveSucceeded})

	resp := rpc(t, f, `{"jsonrpc": "2.0", "id": 1, "method": "problems.list"}`)
	assert.Len(t, resp["result"], 7)

	resp = rpc(t, f, `{"jsonrpc": "2.0", "id": 2, "method": "optimization.start", "params": {"problem": "kopacek-927"}}`)
	require.Nil(t, resp["error"])
	id := resp["result"].(map[string]interface{})["optimization_id"].(string)
	f.waitStatus(t, id, StatusCompleted)

	resp = rpc(t, f, `{"jsonrpc": "2.0", "id": "3", "method": "optimization.status", "params": [{"optimization_id": "`+id+`"}]}`)
	assert.Equal(t, "3", resp["id"])
	assert.Equal(t, "completed", resp["result"].(map[string]interface{})["status"])

	resp = rpc(t, f, `{"jsonrpc": "2.0", "id": 4, "method": "optimization.cancel", "params": {"optimization_id": "`+id+`"}}`)
	assert.Equal(t, float64(rpcServerError), resp["error"].(map[string]interface{})["code"])
}

func TestJSONRPCErrors(t *testing.T) {
	f := newFixture(t, &optimizationtest.Solver{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{"jsonrpc":`, rpcParseError},
		{"wrong version", `{"jsonrpc": "1.0", "id": 1, "method": "problems.list"}`, rpcInvalidRequest},
		{"unknown method", `{"jsonrpc": "2.0", "id": 1, "method": "optimization.pause"}`, rpcMethodNotFound},
		{"missing params", `{"jsonrpc": "2.0", "id": 1, "method": "optimization.status"}`, rpcInvalidParams},
		{"missing id", `{"jsonrpc": "2.0", "id": 1, "method": "optimization.status", "params": {}}`, rpcInvalidParams},
		{"two params", `{"jsonrpc": "2.0", "id": 1, "method": "optimization.status", "params": [{}, {}]}`, rpcInvalidParams},
		{"unknown job", `{"jsonrpc": "2.0", "id": 1, "method": "optimization.status", "params": {"optimization_id": "x"}}`, rpcServerError},
		{"unknown problem", `{"jsonrpc": "2.0", "id": 1, "method": "optimization.start", "params": {"problem": "x"}}`, rpcServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpc(t, f, tt.body)
			errObj, ok := resp["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
		})
	}
}

func TestRespondWithError(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), &optimizationtest.Solver{}, problems.NewRegistry())

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{
			name:       "valid error response",
			code:       rpcInvalidParams,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
		},
		{
			name:       "nil id",
			code:       rpcServerError,
			message:    "server error",
			id:         nil,
			expectedID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel with HTTP 200
			assert.Equal(t, http.StatusOK, rr.Code)

			response := decode(t, rr)
			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}
