// Package ipopt runs nonlinear programs with the COIN-OR IPOPT library.
//
// The native binding needs cgo and the ipopt pkg-config module (IPOPT 3.14
// C interface). Building with the noipopt tag, or without cgo, yields a
// Solver that reports ErrUnavailable.
//
// The constraint Jacobian is handed to IPOPT as a dense matrix in C order.
// No Hessian callback is exposed, so the limited-memory approximation must
// be selected, which optimization.Minimize always does.
package ipopt

import (
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

var (
	// ErrUnavailable is returned when the binary was built without IPOPT.
	ErrUnavailable = errors.New("ipopt: native solver not available in this build")
	// ErrCreate is returned when IPOPT refuses the problem dimensions.
	ErrCreate = errors.New("ipopt: failed to create problem")
)

// Solver implements optimization.Solver on top of IPOPT.
type Solver struct {
	logger *zap.Logger
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithLogger sets the logger used for per-iteration debug output.
func WithLogger(logger *zap.Logger) SolverOption {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Solver.
func New(opts ...SolverOption) *Solver {
	s := &Solver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ optimization.Solver = (*Solver)(nil)

// StatusFromCode converts an ApplicationReturnStatus code.
func StatusFromCode(code int) optimization.Status {
	return optimization.Status(code)
}

type optionKind int

const (
	intOption optionKind = iota
	numOption
	strOption
)

// kinds lists the setters to try for value, most specific first. IPOPT
// rejects a setter whose type does not match the registered option, so an
// integer literal for a numeric option falls through to the next kind.
func kinds(value string) []optionKind {
	if _, err := strconv.ParseInt(value, 10, 32); err == nil {
		return []optionKind{intOption, numOption, strOption}
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return []optionKind{numOption, strOption}
	}
	return []optionKind{strOption}
}
