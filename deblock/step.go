package deblock

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/blas/blas32"
)

// probScale converts a fidelity weight into the alpha of the prob term.
const probScale = 2 * 255 * math.Sqrt2

// solver holds the state of one optimization run.
type solver struct {
	maxW, maxH int
	coefs      []*Coefficient
	auxs       []*Aux
	kernel     Kernel

	weight  float32
	pweight []float32

	// stepSize is the constant descent length of every channel.
	stepSize []float32
	// active marks the channels whose budget is not spent yet.
	active []bool
	budget []int
}

func newSolver(coefs []*Coefficient, width, height int, weight float32, pweight []float32, iterations []int, kernel Kernel) *solver {
	s := &solver{
		coefs:    coefs,
		kernel:   kernel,
		weight:   weight,
		pweight:  pweight,
		auxs:     make([]*Aux, len(coefs)),
		stepSize: make([]float32, len(coefs)),
		active:   make([]bool, len(coefs)),
		budget:   iterations,
		maxW:     width,
		maxH:     height,
	}

	for _, coef := range coefs {
		s.maxW = max(s.maxW, coef.RoundedW)
		s.maxH = max(s.maxH, coef.RoundedH)
	}

	// Every channel upsampled by its factors must cover the shared grid exactly.
	for c, coef := range coefs {
		if coef.RoundedW*coef.HSamp != s.maxW || coef.RoundedH*coef.VSamp != s.maxH {
			panic(fmt.Sprintf("deblock: channel %d of %dx%d upsampled by %dx%d does not match %dx%d",
				c, coef.RoundedW, coef.RoundedH, coef.HSamp, coef.VSamp, s.maxW, s.maxH))
		}
	}

	// Radius of [-0.5, 0.5]^N.
	radius := math.Sqrt(float64(s.maxW*s.maxH)) / 2

	for c, coef := range coefs {
		s.auxs[c] = newAux(s.maxW, s.maxH, coef)
		s.stepSize[c] = float32(radius / math.Sqrt(1+float64(iterations[c])))
	}

	return s
}

// activate marks the channels that still have budget at iteration k.
func (s *solver) activate(k int) {
	for c, it := range s.budget {
		s.active[c] = k < it
	}
}

// perChannel runs fn for every active channel, one goroutine each.
func (s *solver) perChannel(fn func(c int)) {
	var wg sync.WaitGroup

	for c := range s.auxs {
		if !s.active[c] {
			continue
		}

		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			fn(c)
		}(c)
	}

	wg.Wait()
}

// extrapolate applies the momentum update to every active channel.
func (s *solver) extrapolate(factor float32) {
	s.perChannel(func(c int) {
		s.auxs[c].extrapolate(factor)
	})
}

// step takes one normalized gradient step followed by the projection and
// returns the objective normalized by the sum of the active term weights.
func (s *solver) step() float64 {
	probs := make([]float64, len(s.auxs))

	for _, aux := range s.auxs {
		aux.resetGradient()
	}

	s.perChannel(func(c int) {
		if s.pweight[c] == 0 {
			return
		}

		alpha := s.pweight[c] * probScale
		probs[c] = s.kernel.Prob(s.maxW, s.maxH, alpha, s.coefs[c], s.auxs[c])
	})

	tv := s.kernel.TV(s.maxW, s.maxH, s.auxs)

	var tv2 float64
	if s.weight != 0 {
		tv2 = s.kernel.TV2(s.maxW, s.maxH, s.auxs, s.weight/math.Sqrt2)
	}

	s.perChannel(func(c int) {
		aux := s.auxs[c]

		grad := blas32.Vector{N: len(aux.objGradient), Inc: 1, Data: aux.objGradient}
		norm := blas32.Nrm2(grad)

		if norm != 0 {
			fdata := blas32.Vector{N: len(aux.fdata), Inc: 1, Data: aux.fdata}
			blas32.Axpy(-s.stepSize[c]/norm, grad, fdata)
		}

		project(s.maxW, s.maxH, aux, s.coefs[c])
	})

	total := 1.0
	if s.weight != 0 {
		total += float64(s.weight)
	}

	var prob float64
	for c, p := range probs {
		prob += p

		if s.active[c] && s.pweight[c] != 0 {
			total += float64(s.pweight[c] * probScale)
		}
	}

	return (tv + tv2 + prob) / total
}
