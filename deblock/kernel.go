package deblock

import (
	"fmt"
	"runtime"
	"strings"
)

// Kernel computes the three gradient terms of one optimization step.
// Every method adds into the objGradient buffers of the given channels and
// returns the value of its term of the objective.
//
// The methods work on the unexported buffers of Aux, so only the kernels of
// this package, Scalar and Parallel, can implement it. They produce the same
// gradients up to float rounding; Scalar is the reference.
type Kernel interface {
	// Name identifies the kernel, e.g. for logs and benchmarks.
	Name() string
	// Prob adds the data-fidelity gradient of one channel, scaled by alpha.
	Prob(maxW, maxH int, alpha float32, coef *Coefficient, aux *Aux) float64
	// TV adds the joint first-order total variation gradient of all channels
	// and stores the forward differences for TV2.
	TV(maxW, maxH int, auxs []*Aux) float64
	// TV2 adds the joint second-order gradient computed from the differences
	// stored by TV. It must only be called after TV returned.
	TV2(maxW, maxH int, auxs []*Aux, alpha float32) float64
}

// KernelByName returns the kernel registered under name ("scalar" or "parallel").
// The parallel kernel uses one worker per CPU.
func KernelByName(name string) (Kernel, error) {
	switch strings.ToLower(name) {
	case "", "scalar":
		return Scalar{}, nil
	case "parallel":
		return Parallel{Workers: runtime.NumCPU()}, nil
	default:
		return nil, fmt.Errorf("unknown kernel %q: %w", name, ErrParams)
	}
}
