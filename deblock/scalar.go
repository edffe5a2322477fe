package deblock

import (
	"math"

	"github.com/gen2brain/dejpeg/internal/dct"
)

// maxChannels is the largest channel count supported by the joint terms.
const maxChannels = 3

// Scalar is the reference kernel. It visits pixels one at a time and
// scatters every contribution to the cells it affects.
type Scalar struct{}

// Name implements Kernel.
func (Scalar) Name() string {
	return "scalar"
}

// Prob implements Kernel.
//
// For every block the distance between the cached coefficients and the
// dequantized stored ones is measured in quantization steps; its derivative
// is brought back to the pixel domain with the IDCT and replicated over the
// channel's upsampling cell.
func (Scalar) Prob(maxW, maxH int, alpha float32, coef *Coefficient, aux *Aux) float64 {
	var dist float64
	var blk [64]float32

	hs, vs := coef.HSamp, coef.VSamp
	grad := aux.objGradient

	for by := 0; by < coef.BlockH; by++ {
		for bx := 0; bx < coef.BlockW; bx++ {
			i := by*coef.BlockW + bx
			dist += probBlock(&blk, aux.cos[i*64:(i+1)*64], coef.DCTCoefs[i*64:(i+1)*64], &coef.QuantTable)

			for iy := 0; iy < 8; iy++ {
				cy := by*8 + iy
				for ix := 0; ix < 8; ix++ {
					cx := bx*8 + ix
					v := alpha * blk[iy*8+ix]

					for sy := 0; sy < vs; sy++ {
						y := cy*vs + sy
						if y >= maxH {
							panic("deblock: prob gradient row out of bounds")
						}

						for sx := 0; sx < hs; sx++ {
							x := cx*hs + sx
							if x >= maxW {
								panic("deblock: prob gradient column out of bounds")
							}

							grad[y*maxW+x] += v
						}
					}
				}
			}
		}
	}

	return float64(alpha) * dist
}

// probBlock fills blk with the pixel-domain gradient of one block and returns
// its share of the objective, 0.5 * sum((cos - coef*q) / q)^2.
func probBlock(blk *[64]float32, cos, coefs []float32, quant *[64]float32) float64 {
	var dist float64

	for j := 0; j < 64; j++ {
		q := quant[j]
		delta := cos[j] - coefs[j]*q

		r := float64(delta) / float64(q)
		dist += 0.5 * r * r

		blk[j] = delta / (q * q)
	}

	dct.IDCT8x8(blk)

	return dist
}

// TV implements Kernel.
func (Scalar) TV(maxW, maxH int, auxs []*Aux) float64 {
	var tv float64
	var gx, gy [maxChannels]float32

	nchannel := len(auxs)
	alpha := 1 / float32(math.Sqrt(float64(nchannel)))

	for y := 0; y < maxH; y++ {
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
			}

			var norm float32
			for c := 0; c < nchannel; c++ {
				norm += gx[c]*gx[c] + gy[c]*gy[c]
			}
			norm = float32(math.Sqrt(float64(norm)))

			tv += float64(alpha * norm)

			if norm != 0 {
				for c, aux := range auxs {
					aux.objGradient[idx] += alpha * -(gx[c] + gy[c]) / norm

					if x < maxW-1 {
						aux.objGradient[idx+1] += alpha * gx[c] / norm
					}

					if y < maxH-1 {
						aux.objGradient[idx+maxW] += alpha * gy[c] / norm
					}
				}
			}

			for c, aux := range auxs {
				aux.diffX[idx] = gx[c]
				aux.diffY[idx] = gy[c]
			}
		}
	}

	return tv
}

// TV2 implements Kernel.
func (Scalar) TV2(maxW, maxH int, auxs []*Aux, alpha float32) float64 {
	var tv2 float64
	var gxx, gyy, gxy [maxChannels]float32

	nchannel := len(auxs)
	alpha /= float32(math.Sqrt(float64(nchannel)))

	for y := 0; y < maxH; y++ {
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

			if norm == 0 {
				continue
			}

			for c, aux := range auxs {
				g := aux.objGradient
				xx, yy, xy := gxx[c], gyy[c], gxy[c]

				g[idx] += alpha * (-(2*xx + 2*xy + 2*yy) / norm)

				if x > 0 {
					g[idx-1] += alpha * ((xy + xx) / norm)
				}

				if x < maxW-1 {
					g[idx+1] += alpha * ((xy + xx) / norm)
				}

				if y > 0 {
					g[idx-maxW] += alpha * ((yy + xy) / norm)
				}

				if y < maxH-1 {
					g[idx+maxW] += alpha * ((yy + xy) / norm)
				}

				if x < maxW-1 && y > 0 {
					g[idx-maxW+1] += alpha * (-xy / norm)
				}

				if x > 0 && y < maxH-1 {
					g[idx+maxW-1] += alpha * (-xy / norm)
				}
			}
		}
	}

	return tv2
}

// tgvDiffs returns the backward differences of the stored first-order field at
// (x, y): d/dx of diffX, d/dy of diffY and the symmetrized mixed term.
// Differences across the left and top edges are zero.
func tgvDiffs(aux *Aux, w, x, y int) (gxx, gyy, gxy float32) {
	idx := y*w + x

	var gyx, gxyRaw float32

	if x > 0 {
		gxx = aux.diffX[idx] - aux.diffX[idx-1]
		gyx = aux.diffY[idx] - aux.diffY[idx-1]
	}

	if y > 0 {
		gyy = aux.diffY[idx] - aux.diffY[idx-w]
		gxyRaw = aux.diffX[idx] - aux.diffX[idx-w]
	}

	return gxx, gyy, (gxyRaw + gyx) / 2
}
