package numdiff

import "gonum.org/v1/gonum/floats"

// Proxy pairs an objective with a finite difference gradient and memoises
// both for the most recent point. The wrapped objective is always called
// with isNew set, since trial points move it on every call.
type Proxy struct {
	f    func(isNew bool, x []float64) (float64, error)
	spec Spec

	x       []float64
	fx      float64
	grad    []float64
	hasF    bool
	hasGrad bool

	// Calls counts every evaluation of the wrapped objective, trial points included.
	Calls int
}

// NewProxy returns a Proxy around f.
func NewProxy(f func(isNew bool, x []float64) (float64, error), spec Spec) *Proxy {
	return &Proxy{f: f, spec: spec}
}

// moveTo forgets cached values when the point changed.
func (p *Proxy) moveTo(isNew bool, x []float64) {
	if !isNew && p.x != nil && floats.Equal(p.x, x) {
		return
	}
	if len(p.x) != len(x) {
		p.x = make([]float64, len(x))
		p.grad = make([]float64, len(x))
	}
	copy(p.x, x)
	p.hasF = false
	p.hasGrad = false
}

func (p *Proxy) call(x []float64) (float64, error) {
	p.Calls++
	return p.f(true, x)
}

// Value returns the objective at x.
func (p *Proxy) Value(isNew bool, x []float64) (float64, error) {
	p.moveTo(isNew, x)
	if !p.hasF {
		v, err := p.call(p.x)
		if err != nil {
			return 0, err
		}
		p.fx = v
		p.hasF = true
	}
	return p.fx, nil
}

// Gradient writes the approximate gradient at x into grad.
func (p *Proxy) Gradient(isNew bool, x, grad []float64) error {
	if len(grad) != len(x) {
		return ErrLength
	}
	p.moveTo(isNew, x)
	if !p.hasGrad {
		f0, err := p.Value(false, p.x)
		if err != nil {
			return err
		}
		if err := p.spec.Gradient(p.grad, p.x, f0, p.call); err != nil {
			return err
		}
		p.hasGrad = true
	}
	copy(grad, p.grad)
	return nil
}
