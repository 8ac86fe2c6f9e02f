package optimization

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Number is a float64 whose JSON form carries NaN and infinities as the
// strings "NaN", "+Inf" and "-Inf", which encoding/json rejects as numbers.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*n = Number(math.NaN())
		case "+Inf", "Inf":
			*n = Number(math.Inf(1))
		case "-Inf":
			*n = Number(math.Inf(-1))
		default:
			return fmt.Errorf("invalid number %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

func toNumbers(v []float64) []Number {
	if v == nil {
		return nil
	}
	out := make([]Number, len(v))
	for i, f := range v {
		out[i] = Number(f)
	}
	return out
}

func fromNumbers(v []Number) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, n := range v {
		out[i] = float64(n)
	}
	return out
}

// resultJSON is the wire form of Result.
type resultJSON struct {
	Success     bool        `json:"success"`
	Status      Status      `json:"status"`
	Message     string      `json:"message"`
	Iterations  int         `json:"iterations"`
	X           []Number    `json:"x"`
	F           Number      `json:"f"`
	G           []Number    `json:"g"`
	MultG       []Number    `json:"mult_g,omitempty"`
	MultXL      []Number    `json:"mult_x_lower,omitempty"`
	MultXU      []Number    `json:"mult_x_upper,omitempty"`
	Evaluations Evaluations `json:"evaluations"`
}

// MarshalJSON encodes r with non-finite values as strings, so results of
// failed solves can still be reported.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Success:     r.Success,
		Status:      r.Status,
		Message:     r.Message,
		Iterations:  r.Iterations,
		X:           toNumbers(r.X),
		F:           Number(r.F),
		G:           toNumbers(r.G),
		MultG:       toNumbers(r.MultG),
		MultXL:      toNumbers(r.MultXL),
		MultXU:      toNumbers(r.MultXU),
		Evaluations: r.Evaluations,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var v resultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Result{
		Success:     v.Success,
		Status:      v.Status,
		Message:     v.Message,
		Iterations:  v.Iterations,
		X:           fromNumbers(v.X),
		F:           float64(v.F),
		G:           fromNumbers(v.G),
		MultG:       fromNumbers(v.MultG),
		MultXL:      fromNumbers(v.MultXL),
		MultXU:      fromNumbers(v.MultXU),
		Evaluations: v.Evaluations,
	}
	return nil
}
