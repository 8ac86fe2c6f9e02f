//go:build cgo && !noipopt

package ipopt

/*
#cgo pkg-config: ipopt
#include <stdlib.h>
#include <stdint.h>
#include <stdbool.h>
#include "IpStdCInterface.h"

extern bool goEvalF(ipindex n, ipnumber* x, bool new_x, ipnumber* obj_value, UserDataPtr user_data);
extern bool goEvalGradF(ipindex n, ipnumber* x, bool new_x, ipnumber* grad_f, UserDataPtr user_data);
extern bool goEvalG(ipindex n, ipnumber* x, bool new_x, ipindex m, ipnumber* g, UserDataPtr user_data);
extern bool goEvalJacG(ipindex n, ipnumber* x, bool new_x, ipindex m, ipindex nele_jac, ipindex* iRow, ipindex* jCol, ipnumber* values, UserDataPtr user_data);
extern bool goEvalH(ipindex n, ipnumber* x, bool new_x, ipnumber obj_factor, ipindex m, ipnumber* lambda, bool new_lambda, ipindex nele_hess, ipindex* iRow, ipindex* jCol, ipnumber* values, UserDataPtr user_data);
extern bool goIntermediate(ipindex alg_mod, ipindex iter_count, ipnumber obj_value, ipnumber inf_pr, ipnumber inf_du, ipnumber mu, ipnumber d_norm, ipnumber regularization_size, ipnumber alpha_du, ipnumber alpha_pr, ipindex ls_trials, UserDataPtr user_data);
*/
import "C"

import (
	"context"
	"fmt"
	"runtime/cgo"
	"strconv"
	"sync"
	"unsafe"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

// Available reports whether the native solver is linked in.
const Available = true

// The linear solvers IPOPT links against are not reentrant.
var solveMu sync.Mutex

func sessionFrom(data C.UserDataPtr) *session {
	return cgo.Handle(*(*C.uintptr_t)(data)).Value().(*session)
}

func floats(p *C.ipnumber, n C.ipindex) []float64 {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(p)), int(n))
}

func indices(p *C.ipindex, n C.ipindex) []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(p)), int(n))
}

//export goEvalF
func goEvalF(n C.ipindex, x *C.ipnumber, newX C.bool, obj *C.ipnumber, data C.UserDataPtr) C.bool {
	v, ok := sessionFrom(data).objective(bool(newX), floats(x, n))
	if ok {
		*obj = C.ipnumber(v)
	}
	return C.bool(ok)
}

//export goEvalGradF
func goEvalGradF(n C.ipindex, x *C.ipnumber, newX C.bool, grad *C.ipnumber, data C.UserDataPtr) C.bool {
	return C.bool(sessionFrom(data).gradient(bool(newX), floats(x, n), floats(grad, n)))
}

//export goEvalG
func goEvalG(n C.ipindex, x *C.ipnumber, newX C.bool, m C.ipindex, g *C.ipnumber, data C.UserDataPtr) C.bool {
	return C.bool(sessionFrom(data).constraints(bool(newX), floats(x, n), floats(g, m)))
}

//export goEvalJacG
func goEvalJacG(n C.ipindex, x *C.ipnumber, newX C.bool, m C.ipindex, nele C.ipindex, iRow, jCol *C.ipindex, values *C.ipnumber, data C.UserDataPtr) C.bool {
	s := sessionFrom(data)
	// The first call asks for the sparsity structure only.
	if values == nil {
		s.nlp.JacobianStructure(indices(iRow, nele), indices(jCol, nele))
		return C.bool(true)
	}
	return C.bool(s.jacobian(bool(newX), floats(x, n), floats(values, nele)))
}

//export goEvalH
func goEvalH(n C.ipindex, x *C.ipnumber, newX C.bool, objFactor C.ipnumber, m C.ipindex, lambda *C.ipnumber, newLambda C.bool, nele C.ipindex, iRow, jCol *C.ipindex, values *C.ipnumber, data C.UserDataPtr) C.bool {
	return C.bool(false)
}

//export goIntermediate
func goIntermediate(algMod, iter C.ipindex, obj, infPr, infDu, mu, dNorm, regSize, alphaDu, alphaPr C.ipnumber, lsTrials C.ipindex, data C.UserDataPtr) C.bool {
	return C.bool(sessionFrom(data).iteration(int(iter), float64(obj), float64(infPr), float64(infDu), float64(mu), algMod == 1))
}

func ptr(v []float64) *C.ipnumber {
	if len(v) == 0 {
		return nil
	}
	return (*C.ipnumber)(unsafe.Pointer(&v[0]))
}

// Solve implements optimization.Solver.
func (s *Solver) Solve(ctx context.Context, nlp *optimization.NLP) (*optimization.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	solveMu.Lock()
	defer solveMu.Unlock()

	problem := C.CreateIpoptProblem(
		C.ipindex(nlp.N), ptr(nlp.XL), ptr(nlp.XU),
		C.ipindex(nlp.M), ptr(nlp.GL), ptr(nlp.GU),
		C.ipindex(nlp.JacobianLen()), 0, 0,
		(C.Eval_F_CB)(unsafe.Pointer(C.goEvalF)),
		(C.Eval_G_CB)(unsafe.Pointer(C.goEvalG)),
		(C.Eval_Grad_F_CB)(unsafe.Pointer(C.goEvalGradF)),
		(C.Eval_Jac_G_CB)(unsafe.Pointer(C.goEvalJacG)),
		(C.Eval_H_CB)(unsafe.Pointer(C.goEvalH)),
	)
	if problem == nil {
		return nil, ErrCreate
	}
	defer C.FreeIpoptProblem(problem)

	for _, opt := range nlp.Options {
		if !addOption(problem, opt) {
			res := optimization.NewResult(optimization.InvalidOption)
			return res, fmt.Errorf("%w: %s", optimization.ErrInvalidOption, opt)
		}
	}
	C.SetIntermediateCallback(problem, (C.Intermediate_CB)(unsafe.Pointer(C.goIntermediate)))

	sess := newSession(ctx, nlp, s.logger)
	handle := cgo.NewHandle(sess)
	defer handle.Delete()

	data := (*C.uintptr_t)(C.malloc(C.size_t(unsafe.Sizeof(C.uintptr_t(0)))))
	defer C.free(unsafe.Pointer(data))
	*data = C.uintptr_t(handle)

	x := append([]float64(nil), nlp.Start...)
	g := make([]float64, nlp.M)
	multG := make([]float64, nlp.M)
	multXL := make([]float64, nlp.N)
	multXU := make([]float64, nlp.N)
	var obj C.ipnumber

	code := C.IpoptSolve(problem, ptr(x), ptr(g), &obj, ptr(multG), ptr(multXL), ptr(multXU), C.UserDataPtr(unsafe.Pointer(data)))

	return sess.result(StatusFromCode(int(code)), x, float64(obj), g, multG, multXL, multXU)
}

// addOption tries the typed setters in turn until IPOPT accepts one.
func addOption(problem C.IpoptProblem, opt optimization.Option) bool {
	key := C.CString(opt.Key)
	defer C.free(unsafe.Pointer(key))

	for _, kind := range kinds(opt.Value) {
		switch kind {
		case intOption:
			v, _ := strconv.Atoi(opt.Value)
			if C.AddIpoptIntOption(problem, key, C.ipindex(v)) {
				return true
			}
		case numOption:
			v, _ := strconv.ParseFloat(opt.Value, 64)
			if C.AddIpoptNumOption(problem, key, C.ipnumber(v)) {
				return true
			}
		case strOption:
			val := C.CString(opt.Value)
			ok := C.AddIpoptStrOption(problem, key, val)
			C.free(unsafe.Pointer(val))
			if ok {
				return true
			}
		}
	}
	return false
}
