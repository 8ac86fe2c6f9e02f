package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/ipoptgo/internal/config"
	apierrors "github.com/copyleftdev/ipoptgo/internal/errors"
	"github.com/copyleftdev/ipoptgo/internal/logging"
	"github.com/copyleftdev/ipoptgo/internal/optimization"
	"github.com/copyleftdev/ipoptgo/internal/problems"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// JobStatus is the lifecycle state of an optimization job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// OptimizationState represents the state of an optimization job.
// Fields are guarded by Server.optimizationsMu.
type OptimizationState struct {
	ID          string
	Status      JobStatus
	Spec        problems.Spec
	StartTime   time.Time
	EndTime     *time.Time
	Result      *optimization.Result
	Err         error
	CancelFunc  context.CancelFunc
	LastUpdated time.Time
}

// Server implements the HTTP and JSON-RPC server for the solver service.
// It runs solves as background jobs that can be started, monitored and
// cancelled, and as synchronous requests.
type Server struct {
	cfg      *config.Config
	logger   Logger
	zap      *zap.Logger
	solver   optimization.Solver
	registry *problems.Registry

	// sem bounds the number of concurrent solves.
	sem chan struct{}
	seq atomic.Uint64
	wg  sync.WaitGroup

	// Optimization state management
	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex // Protects the optimizations map
}

// NewServer creates a new server running problems from registry on solver.
func NewServer(cfg *config.Config, logger Logger, solver optimization.Solver, registry *problems.Registry) *Server {
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Server{
		cfg:           cfg,
		logger:        logger,
		zap:           logging.NewZapLogger(logger.WithFields(map[string]interface{}{"component": "minimize"})),
		solver:        solver,
		registry:      registry,
		sem:           make(chan struct{}, workers),
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/problems", s.handleProblems)
		r.Post("/solve", s.handleSolve)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

var errNotFound = apierrors.New("optimization not found").WithStatus(http.StatusNotFound)

// resolve turns a spec into a problem ready for Minimize.
func (s *Server) resolve(spec *problems.Spec) (optimization.Problem, error) {
	p, err := s.registry.Resolve(spec)
	if err != nil {
		status := http.StatusBadRequest
		if apierrors.Is(err, problems.ErrUnknownProblem) {
			status = http.StatusNotFound
		}
		return p, apierrors.Wrap(err, "invalid spec").WithStatus(status)
	}
	s.cfg.ApplyDefaults(&p)
	return p, nil
}

// acquire waits for a solver slot.
func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apierrors.Wrap(ctx.Err(), "waiting for solver").WithStatus(http.StatusServiceUnavailable)
	}
}

func (s *Server) release() {
	<-s.sem
}

// minimize runs one solve; the caller holds a slot. Invalid problems come
// back as 400 errors; solver failures are reported through the result.
func (s *Server) minimize(ctx context.Context, p optimization.Problem, fields map[string]interface{}) (*optimization.Result, error) {
	logger := s.zap
	for k, v := range fields {
		logger = logger.With(zap.Any(k, v))
	}

	res, err := optimization.Minimize(ctx, s.solver, p, s.cfg.MinimizeOptions(logger)...)
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := optimization.IsOptimizationError(err); ok {
			status = http.StatusBadRequest
		} else if apierrors.Is(err, optimization.ErrEvaluation) || apierrors.Is(err, optimization.ErrInvalidOption) {
			status = http.StatusUnprocessableEntity
		}
		return res, apierrors.Wrap(err, "solve failed").WithStatus(status)
	}
	return res, nil
}

// startOptimization registers a job for spec and runs it in the background.
func (s *Server) startOptimization(spec problems.Spec) (*OptimizationState, error) {
	p, err := s.resolve(&spec)
	if err != nil {
		return nil, err
	}
	// Reject malformed problems before a job exists.
	if _, err := optimization.Marshal(p); err != nil {
		return nil, apierrors.Wrap(err, "invalid problem").WithStatus(http.StatusBadRequest)
	}

	id := fmt.Sprintf("opt_%d_%d", time.Now().UnixNano(), s.seq.Add(1))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.SolveTimeout)
	now := time.Now()
	state := &OptimizationState{
		ID:          id,
		Status:      StatusPending,
		Spec:        spec,
		StartTime:   now,
		CancelFunc:  cancel,
		LastUpdated: now,
	}

	s.optimizationsMu.Lock()
	s.optimizations[id] = state
	s.optimizationsMu.Unlock()

	s.wg.Add(1)
	go s.runOptimization(ctx, state, p)

	s.logger.Info("Optimization started", map[string]interface{}{
		"optimization_id": id,
		"problem":         spec.Problem,
	})
	return state, nil
}

// runOptimization executes the optimization process in a goroutine
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState, p optimization.Problem) {
	defer s.wg.Done()
	defer state.CancelFunc()

	if err := s.acquire(ctx); err != nil {
		s.finish(state, nil, err)
		return
	}
	defer s.release()

	s.optimizationsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
		state.LastUpdated = time.Now()
	}
	s.optimizationsMu.Unlock()

	res, err := s.minimize(ctx, p, map[string]interface{}{
		"optimization_id": state.ID,
		"problem":         state.Spec.Problem,
	})
	s.finish(state, res, err)
}

func (s *Server) finish(state *OptimizationState, res *optimization.Result, err error) {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state.Result = res
	state.Err = err
	if !state.Status.Terminal() {
		if err != nil {
			state.Status = StatusFailed
		} else {
			state.Status = StatusCompleted
		}
		now := time.Now()
		state.EndTime = &now
	}
	state.LastUpdated = time.Now()

	if err != nil {
		s.logger.Error("Optimization failed", map[string]interface{}{
			"optimization_id": state.ID,
			"error":           err.Error(),
		})
		return
	}
	if res != nil {
		s.logger.Info("Optimization finished", map[string]interface{}{
			"optimization_id": state.ID,
			"status":          res.Message,
			"iterations":      res.Iterations,
		})
	}
}

// optimizationStatus renders a job for API clients.
func (s *Server) optimizationStatus(id string) (*statusResponse, error) {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return nil, errNotFound
	}

	resp := &statusResponse{
		ID:         state.ID,
		Status:     state.Status,
		Problem:    state.Spec.Problem,
		StartTime:  state.StartTime.Format(time.RFC3339),
		LastUpdate: state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		resp.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if state.Result != nil {
		resp.Result = state.Result
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	return resp, nil
}

// cancelOptimization cancels a pending or running job.
func (s *Server) cancelOptimization(id string) error {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return errNotFound
	}

	if state.Status.Terminal() {
		return apierrors.Errorf("cannot cancel optimization with status: %s", state.Status).WithStatus(http.StatusConflict)
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// Close cancels all jobs and waits for them to stop.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeSpec(r *http.Request) (problems.Spec, error) {
	var spec problems.Spec
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, apierrors.Wrap(err, "invalid request body").WithStatus(http.StatusBadRequest)
	}
	if spec.Problem == "" {
		return spec, apierrors.New("problem is required").WithStatus(http.StatusBadRequest)
	}
	return spec, nil
}

// handleOptimize handles POST /api/v1/optimize, starting a background job.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(r)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}

	state, err := s.startOptimization(spec)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startResponse{ID: state.ID, Status: StatusPending})
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelOptimization(chi.URLParam(r, "id")); err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// handleProblems handles GET /api/v1/problems.
func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// handleSolve handles POST /api/v1/solve, answering once the solver
// terminates. Solver failures are reported with 200 and success=false.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(r)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	p, err := s.resolve(&spec)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HTTP.SolveTimeout)
	defer cancel()

	if err := s.acquire(ctx); err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	defer s.release()

	res, err := s.minimize(ctx, p, map[string]interface{}{
		"problem":    spec.Problem,
		"request_id": r.Header.Get("X-Request-Id"),
	})
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
