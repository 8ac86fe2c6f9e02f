//go:build !cgo || noipopt

package ipopt

import (
	"context"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// Available reports whether the native solver is linked in.
const Available = false

// Solve implements optimization.Solver. It always fails with ErrUnavailable.
func (s *Solver) Solve(ctx context.Context, nlp *optimization.NLP) (*optimization.Result, error) {
	return nil, ErrUnavailable
}
