package deblock

import (
	"math"
	"sync"
)

// Parallel splits every term into horizontal bands processed concurrently.
//
// Scattering into neighboring pixels would race across band edges, so TV and
// TV2 are computed in gather form: a first pass stores the normalized
// per-pixel terms, a second pass lets every pixel collect the contributions
// of its neighbors. The result matches Scalar up to float rounding.
type Parallel struct {
	// Workers is the number of bands; values below 1 mean 1.
	Workers int
}

// Name implements Kernel.
func (Parallel) Name() string {
	return "parallel"
}

func (p Parallel) workers() int {
	return max(p.Workers, 1)
}

// bands runs fn over [0, n) split into contiguous ranges, one goroutine per
// range, and returns the sum of the results in range order.
func bands(n, workers int, fn func(lo, hi int) float64) float64 {
	workers = min(workers, n)
	if workers <= 1 {
		return fn(0, n)
	}

	results := make([]float64, workers)
	size := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		lo := i * size
		hi := min(lo+size, n)
		if lo >= hi {
			continue
		}

		wg.Add(1)
		go func(i, lo, hi int) {
			defer wg.Done()
			results[i] = fn(lo, hi)
		}(i, lo, hi)
	}
	wg.Wait()

	var sum float64
	for _, r := range results {
		sum += r
	}

	return sum
}

// Prob implements Kernel. Block rows write disjoint pixel rows, so they are
// processed concurrently without synchronization.
func (p Parallel) Prob(maxW, maxH int, alpha float32, coef *Coefficient, aux *Aux) float64 {
	hs, vs := coef.HSamp, coef.VSamp
	grad := aux.objGradient

	if coef.BlockH*8*vs > maxH || coef.BlockW*8*hs > maxW {
		panic("deblock: prob gradient out of bounds")
	}

	dist := bands(coef.BlockH, p.workers(), func(lo, hi int) float64 {
		var dist float64
		var blk [64]float32

		for by := lo; by < hi; by++ {
			for bx := 0; bx < coef.BlockW; bx++ {
				i := by*coef.BlockW + bx
				dist += probBlock(&blk, aux.cos[i*64:(i+1)*64], coef.DCTCoefs[i*64:(i+1)*64], &coef.QuantTable)

				for iy := 0; iy < 8; iy++ {
					for sy := 0; sy < vs; sy++ {
						row := ((by*8+iy)*vs + sy) * maxW
						for ix := 0; ix < 8; ix++ {
							v := alpha * blk[iy*8+ix]
							col := (bx*8 + ix) * hs
							for sx := 0; sx < hs; sx++ {
								grad[row+col+sx] += v
							}
						}
					}
				}
			}
		}

		return dist
	})

	return float64(alpha) * dist
}

// ensureScratch allocates the gather buffers of every channel.
func ensureScratch(auxs []*Aux, n int) {
	for _, aux := range auxs {
		if len(aux.termA) != n {
			aux.termA = make([]float32, n)
			aux.termB = make([]float32, n)
			aux.termM = make([]float32, n)
		}
	}
}

// TV implements Kernel.
func (p Parallel) TV(maxW, maxH int, auxs []*Aux) float64 {
	nchannel := len(auxs)
	alpha := 1 / float32(math.Sqrt(float64(nchannel)))

	ensureScratch(auxs, maxW*maxH)

	// termA and termB hold alpha*g/norm in x and y.
	tv := bands(maxH, p.workers(), func(lo, hi int) float64 {
		var tv float64
		var gx, gy [maxChannels]float32

		for y := lo; y < hi; y++ {
			for x := 0; x < maxW; x++ {
				idx := y*maxW + x

				for c, aux := range auxs {
					gx[c], gy[c] = 0, 0

					if x < maxW-1 {
						gx[c] = aux.fdata[idx+1] - aux.fdata[idx]
					}

					if y < maxH-1 {
						gy[c] = aux.fdata[idx+maxW] - aux.fdata[idx]
					}

					aux.diffX[idx] = gx[c]
					aux.diffY[idx] = gy[c]
				}

				var norm float32
				for c := 0; c < nchannel; c++ {
					norm += gx[c]*gx[c] + gy[c]*gy[c]
				}
				norm = float32(math.Sqrt(float64(norm)))

				tv += float64(alpha * norm)

				for c, aux := range auxs {
					if norm == 0 {
						aux.termA[idx], aux.termB[idx] = 0, 0

						continue
					}

					aux.termA[idx] = alpha * gx[c] / norm
					aux.termB[idx] = alpha * gy[c] / norm
				}
			}
		}

		return tv
	})

	bands(maxH, p.workers(), func(lo, hi int) float64 {
		for _, aux := range auxs {
			ax, ay, g := aux.termA, aux.termB, aux.objGradient

			for y := lo; y < hi; y++ {
				for x := 0; x < maxW; x++ {
					idx := y*maxW + x
					v := -(ax[idx] + ay[idx])

					if x > 0 {
						v += ax[idx-1]
					}

					if y > 0 {
						v += ay[idx-maxW]
					}

					g[idx] += v
				}
			}
		}

		return 0
	})

	return tv
}

// TV2 implements Kernel.
func (p Parallel) TV2(maxW, maxH int, auxs []*Aux, alpha float32) float64 {
	nchannel := len(auxs)
	alpha /= float32(math.Sqrt(float64(nchannel)))

	ensureScratch(auxs, maxW*maxH)

	// termA, termB and termM hold alpha*g/norm for xx, yy and the mixed term.
	tv2 := bands(maxH, p.workers(), func(lo, hi int) float64 {
		var tv2 float64
		var gxx, gyy, gxy [maxChannels]float32

		for y := lo; y < hi; y++ {
			for x := 0; x < maxW; x++ {
				idx := y*maxW + x

				for c, aux := range auxs {
					gxx[c], gyy[c], gxy[c] = tgvDiffs(aux, maxW, x, y)
				}

				var norm float32
				for c := 0; c < nchannel; c++ {
					norm += gxx[c]*gxx[c] + 2*gxy[c]*gxy[c] + gyy[c]*gyy[c]
				}
				norm = float32(math.Sqrt(float64(norm)))

				tv2 += float64(alpha * norm)

				for c, aux := range auxs {
					if norm == 0 {
						aux.termA[idx], aux.termB[idx], aux.termM[idx] = 0, 0, 0

						continue
					}

					aux.termA[idx] = alpha * gxx[c] / norm
					aux.termB[idx] = alpha * gyy[c] / norm
					aux.termM[idx] = alpha * gxy[c] / norm
				}
			}
		}

		return tv2
	})

	bands(maxH, p.workers(), func(lo, hi int) float64 {
		for _, aux := range auxs {
			a, b, m, g := aux.termA, aux.termB, aux.termM, aux.objGradient

			for y := lo; y < hi; y++ {
				for x := 0; x < maxW; x++ {
					idx := y*maxW + x
					v := -(2*a[idx] + 2*m[idx] + 2*b[idx])

					if x > 0 {
						v += m[idx-1] + a[idx-1]
					}

					if x < maxW-1 {
						v += m[idx+1] + a[idx+1]
					}

					if y > 0 {
						v += b[idx-maxW] + m[idx-maxW]
					}

					if y < maxH-1 {
						v += b[idx+maxW] + m[idx+maxW]
					}

					if x > 0 && y < maxH-1 {
						v -= m[idx+maxW-1]
					}

					if x < maxW-1 && y > 0 {
						v -= m[idx-maxW+1]
					}

					g[idx] += v
				}
			}
		}

		return 0
	})

	return tv2
}
