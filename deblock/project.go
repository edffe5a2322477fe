package deblock

import (
	"fmt"

	"github.com/gen2brain/dejpeg/internal/dct"
)

// project maps the estimate of one channel back onto the set of images whose
// block DCT coefficients fall inside the quantization boxes.
//
// For subsampled channels only the mean of every HSamp x VSamp cell is
// constrained: the mean is split off, projected at the channel's native
// resolution and added back, while the residual is left untouched.
func project(maxW, maxH int, aux *Aux, coef *Coefficient) {
	resample := coef.subsampled(maxW, maxH)
	hs, vs := coef.HSamp, coef.VSamp

	planar := aux.fdata
	if resample {
		if coef.RoundedW*hs > maxW || coef.RoundedH*vs > maxH {
			panic(fmt.Sprintf("deblock: channel %dx%d upsampled by %dx%d exceeds %dx%d",
				coef.RoundedW, coef.RoundedH, hs, vs, maxW, maxH))
		}

		splitMean(aux.fdata, maxW, aux.mean, coef.RoundedW, coef.RoundedH, hs, vs)
		planar = aux.mean
	}

	dct.Box(planar, aux.boxed, coef.RoundedW, coef.RoundedH)

	for i := 0; i < coef.BlockCount; i++ {
		dct.DCT8x8(dct.Block(aux.boxed, i))
	}

	boxMin := coef.QuantBoxMin[:len(aux.boxed)]
	boxMax := coef.QuantBoxMax[:len(aux.boxed)]
	for i, v := range aux.boxed {
		aux.boxed[i] = min(max(v, boxMin[i]), boxMax[i])
	}

	copy(aux.cos, aux.boxed)

	for i := 0; i < coef.BlockCount; i++ {
		dct.IDCT8x8(dct.Block(aux.boxed, i))
	}

	dct.Unbox(aux.boxed, planar, coef.RoundedW, coef.RoundedH)

	if resample {
		addMean(aux.fdata, maxW, aux.mean, coef.RoundedW, coef.RoundedH, hs, vs)
	}
}

// splitMean stores the mean of every hs x vs cell of full into mean and
// subtracts it from the cell, leaving the residual in full.
func splitMean(full []float32, fullW int, mean []float32, w, h, hs, vs int) {
	count := float32(hs * vs)

	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			var m float32
			for sy := 0; sy < vs; sy++ {
				row := (cy*vs + sy) * fullW
				for sx := 0; sx < hs; sx++ {
					m += full[row+cx*hs+sx]
				}
			}

			m /= count
			mean[cy*w+cx] = m

			for sy := 0; sy < vs; sy++ {
				row := (cy*vs + sy) * fullW
				for sx := 0; sx < hs; sx++ {
					full[row+cx*hs+sx] -= m
				}
			}
		}
	}
}

// addMean adds every value of mean back onto its hs x vs cell of full.
func addMean(full []float32, fullW int, mean []float32, w, h, hs, vs int) {
	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			m := mean[cy*w+cx]
			for sy := 0; sy < vs; sy++ {
				row := (cy*vs + sy) * fullW
				for sx := 0; sx < hs; sx++ {
					full[row+cx*hs+sx] += m
				}
			}
		}
	}
}
