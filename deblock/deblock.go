// Package deblock removes JPEG compression artifacts by optimizing the
// spatial image against its stored DCT coefficients.
//
// The estimate is kept inside the quantization boxes of the original
// coefficients, so it always re-encodes to the same JPEG data, while a joint
// total variation and second-order (TGV) regularizer smooths block edges and
// ringing. The optimization is an accelerated projected gradient descent.
package deblock

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Errors.
var (
	ErrChannelCount = errors.New("deblock: channel count must be between 1 and 3")
	ErrParams       = errors.New("deblock: invalid parameters")
)

// Params configures Run.
type Params struct {
	// Weight is the strength of the second-order term; 0 disables it.
	Weight float32
	// PWeight is the fidelity strength of every channel; 0 disables the
	// channel's term. It must have one non-negative value per channel.
	PWeight []float32
	// Iterations holds one shared budget or one budget per channel.
	// A channel whose budget is spent stays fixed while the others continue.
	Iterations []int
	// Width and Height set the shared resolution; 0 means the size of the
	// largest channel. Every channel upsampled by HSamp x VSamp must match
	// it exactly, otherwise Run panics.
	Width, Height int
	// Kernel computes the gradient terms; nil means Scalar.
	Kernel Kernel
	// Logger receives per-iteration diagnostics at debug level; nil disables them.
	Logger *slog.Logger
}

// Result holds the optimized channels at the shared resolution.
type Result struct {
	Width, Height int
	// Planes holds one row-major plane of Width*Height values per channel.
	// The first channel is still centered on zero (offset by -128).
	Planes [][]float32
}

// Run optimizes all channels jointly and returns the final estimates.
// The coefficients are not modified.
func Run(coefs []*Coefficient, p Params) (*Result, error) {
	n := len(coefs)
	if n == 0 || n > maxChannels {
		return nil, fmt.Errorf("got %d channels: %w", n, ErrChannelCount)
	}

	if len(p.PWeight) != n {
		return nil, fmt.Errorf("got %d fidelity weights for %d channels: %w", len(p.PWeight), n, ErrParams)
	}

	iterations, err := expandIterations(p.Iterations, n)
	if err != nil {
		return nil, err
	}

	if math.IsNaN(float64(p.Weight)) || p.Weight < 0 {
		return nil, fmt.Errorf("weight %v: %w", p.Weight, ErrParams)
	}

	for c, w := range p.PWeight {
		if math.IsNaN(float64(w)) || w < 0 {
			return nil, fmt.Errorf("fidelity weight %v of channel %d: %w", w, c, ErrParams)
		}
	}

	if p.Width < 0 || p.Height < 0 {
		return nil, fmt.Errorf("resolution %dx%d: %w", p.Width, p.Height, ErrParams)
	}

	kernel := p.Kernel
	if kernel == nil {
		kernel = Scalar{}
	}

	s := newSolver(coefs, p.Width, p.Height, p.Weight, p.PWeight, iterations, kernel)

	maxIter := 0
	for _, it := range iterations {
		maxIter = max(maxIter, it)
	}

	if p.Logger != nil {
		p.Logger.Debug("deblock: start",
			"channels", n, "width", s.maxW, "height", s.maxH,
			"iterations", iterations, "kernel", kernel.Name())
	}

	t := float32(1)
	for k := 0; k < maxIter; k++ {
		next := (1 + float32(math.Sqrt(float64(1+4*t*t)))) / 2
		factor := (t - 1) / next

		s.activate(k)
		s.extrapolate(factor)

		objective := s.step()
		t = next

		if p.Logger != nil {
			p.Logger.Debug("deblock: iteration", "k", k, "objective", objective)
		}
	}

	res := &Result{
		Width:  s.maxW,
		Height: s.maxH,
		Planes: make([][]float32, n),
	}

	for c, aux := range s.auxs {
		res.Planes[c] = aux.Pixels()
	}

	return res, nil
}

// expandIterations returns one budget per channel.
func expandIterations(iterations []int, n int) ([]int, error) {
	var out []int

	switch len(iterations) {
	case 1:
		out = make([]int, n)
		for c := range out {
			out[c] = iterations[0]
		}
	case n:
		out = append(out, iterations...)
	default:
		return nil, fmt.Errorf("got %d iteration counts for %d channels: %w", len(iterations), n, ErrParams)
	}

	for _, it := range out {
		if it < 0 {
			return nil, fmt.Errorf("negative iteration count %d: %w", it, ErrParams)
		}
	}

	return out, nil
}
