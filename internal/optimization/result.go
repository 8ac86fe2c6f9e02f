package optimization

import "fmt"

// Status mirrors the solver's application return status.
type Status int

const (
	SolveSucceeded            Status = 0
	SolvedToAcceptableLevel   Status = 1
	InfeasibleProblemDetected Status = 2
	SearchDirectionTooSmall   Status = 3
	DivergingIterates         Status = 4
	UserRequestedStop         Status = 5
	FeasiblePointFound        Status = 6
	MaximumIterationsExceeded Status = -1
	RestorationFailed         Status = -2
	ErrorInStepComputation    Status = -3
	MaximumCPUTimeExceeded    Status = -4
	MaximumWallTimeExceeded   Status = -5
	NotEnoughDegreesOfFreedom Status = -10
	InvalidProblemDefinition  Status = -11
	InvalidOption             Status = -12
	InvalidNumberDetected     Status = -13
	UnrecoverableException    Status = -100
	NonSolverExceptionThrown  Status = -101
	InsufficientMemory        Status = -102
	InternalError             Status = -199
)

var statusNames = map[Status]string{
	SolveSucceeded:            "SOLVE_SUCCEEDED",
	SolvedToAcceptableLevel:   "SOLVED_TO_ACCEPTABLE_LEVEL",
	InfeasibleProblemDetected: "INFEASIBLE_PROBLEM_DETECTED",
	SearchDirectionTooSmall:   "SEARCH_DIRECTION_BECOMES_TOO_SMALL",
	DivergingIterates:         "DIVERGING_ITERATES",
	UserRequestedStop:         "USER_REQUESTED_STOP",
	FeasiblePointFound:        "FEASIBLE_POINT_FOUND",
	MaximumIterationsExceeded: "MAXIMUM_ITERATIONS_EXCEEDED",
	RestorationFailed:         "RESTORATION_FAILED",
	ErrorInStepComputation:    "ERROR_IN_STEP_COMPUTATION",
	MaximumCPUTimeExceeded:    "MAXIMUM_CPUTIME_EXCEEDED",
	MaximumWallTimeExceeded:   "MAXIMUM_WALLTIME_EXCEEDED",
	NotEnoughDegreesOfFreedom: "NOT_ENOUGH_DEGREES_OF_FREEDOM",
	InvalidProblemDefinition:  "INVALID_PROBLEM_DEFINITION",
	InvalidOption:             "INVALID_OPTION",
	InvalidNumberDetected:     "INVALID_NUMBER_DETECTED",
	UnrecoverableException:    "UNRECOVERABLE_EXCEPTION",
	NonSolverExceptionThrown:  "NONIPOPT_EXCEPTION_THROWN",
	InsufficientMemory:        "INSUFFICIENT_MEMORY",
	InternalError:             "INTERNAL_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_STATUS(%d)", int(s))
}

// Success reports whether the solver converged to the requested tolerance.
func (s Status) Success() bool {
	return s == SolveSucceeded
}

// Evaluations counts callback invocations made by the solver.
type Evaluations struct {
	Objective   int `json:"objective"`
	Gradient    int `json:"gradient"`
	Constraints int `json:"constraints"`
	Jacobian    int `json:"jacobian"`
}

// Result is the outcome of a single solve. It is not modified after the
// solver returns it. The JSON form carries non-finite values as strings.
type Result struct {
	Success    bool   `yaml:"success"`
	Status     Status `yaml:"status"`
	Message    string `yaml:"message"`
	Iterations int    `yaml:"iterations"`

	// X is the final point, F the objective and G the constraints there.
	X []float64 `yaml:"x"`
	F float64   `yaml:"f"`
	G []float64 `yaml:"g"`

	// Lagrange multipliers of the constraints and of the parameter bounds.
	MultG  []float64 `yaml:"mult_g,omitempty"`
	MultXL []float64 `yaml:"mult_x_lower,omitempty"`
	MultXU []float64 `yaml:"mult_x_upper,omitempty"`

	Evaluations Evaluations `yaml:"evaluations"`
}

// NewResult fills Success and Message from status.
func NewResult(status Status) *Result {
	return &Result{
		Success: status.Success(),
		Status:  status,
		Message: status.String(),
	}
}
