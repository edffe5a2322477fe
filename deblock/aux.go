package deblock

// Aux holds the mutable working buffers of one channel for the duration of a run.
type Aux struct {
	// fdata is the current estimate at the shared resolution.
	fdata []float32
	// fista is the previous extrapolation point.
	fista []float32
	// objGradient accumulates the gradient of the current step.
	objGradient []float32
	// diffX and diffY hold the forward differences written by the TV pass
	// and read by the TV2 pass.
	diffX, diffY []float32

	// cos caches the clamped DCT coefficients of the last projection.
	cos []float32
	// boxed and mean are projection scratch at the channel's native resolution.
	boxed, mean []float32

	// termA, termB and termM are the per-pixel terms of the gather kernels.
	termA, termB, termM []float32
}

// newAux seeds the buffers of one channel from its coefficients.
// The initial reconstruction is upsampled by pixel replication when the
// channel is stored below the shared maxW x maxH resolution.
func newAux(maxW, maxH int, coef *Coefficient) *Aux {
	n := maxW * maxH

	a := &Aux{
		fdata:       make([]float32, n),
		objGradient: make([]float32, n),
		diffX:       make([]float32, n),
		diffY:       make([]float32, n),
		cos:         make([]float32, coef.BlockCount*64),
		boxed:       make([]float32, coef.PixelCount()),
		mean:        make([]float32, coef.PixelCount()),
	}

	upsampleNearestNeighbor(coef.ImageData, coef.RoundedW, coef.RoundedH, coef.HSamp, coef.VSamp, a.fdata, maxW, maxH)

	a.fista = make([]float32, n)
	copy(a.fista, a.fdata)

	for i := 0; i < coef.BlockCount; i++ {
		for j := 0; j < 64; j++ {
			a.cos[i*64+j] = coef.DCTCoefs[i*64+j] * coef.QuantTable[j]
		}
	}

	return a
}

// Pixels returns the current estimate. The slice is owned by the Aux.
func (a *Aux) Pixels() []float32 {
	return a.fdata
}

// extrapolate performs the momentum update fista = fdata + factor*(fdata - fista)
// and rotates the buffers so that the extrapolated point becomes the estimate.
func (a *Aux) extrapolate(factor float32) {
	fdata, fista := a.fdata, a.fista
	_ = fista[len(fdata)-1]

	for i, v := range fdata {
		fista[i] = v + factor*(v-fista[i])
	}

	a.fdata, a.fista = a.fista, a.fdata
}

// resetGradient zeroes the gradient accumulator.
func (a *Aux) resetGradient() {
	clear(a.objGradient)
}

// upsampleNearestNeighbor replicates each source pixel over an hs x vs cell of dst.
// Destination pixels outside the replicated area take the nearest edge value.
func upsampleNearestNeighbor(src []float32, srcW, srcH, hs, vs int, dst []float32, dstW, dstH int) {
	for y := 0; y < dstH; y++ {
		sy := min(y/vs, srcH-1)
		srcRow := src[sy*srcW : (sy+1)*srcW]
		dstRow := dst[y*dstW : (y+1)*dstW]

		if hs == 1 && srcW == dstW {
			copy(dstRow, srcRow)

			continue
		}

		for x := range dstRow {
			dstRow[x] = srcRow[min(x/hs, srcW-1)]
		}
	}
}
