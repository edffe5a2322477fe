// Package dct implements the fixed-size transforms used by the optimizer:
// an orthonormal floating point 8x8 DCT pair and the reshapes between a
// planar image and an array of contiguous 8x8 blocks.
package dct

// Butterfly constants for the 8-point short DCT (Ooura, shrtdct.c).
//
//	C8_kR = sqrt(2/8) * cos(pi/2 * k/8)
//	C8_kI = sqrt(2/8) * sin(pi/2 * k/8)
//	W8_4R = cos(pi/4)
const (
	c81R = 0.49039264020161522456
	c81I = 0.09754516100806413392
	c82R = 0.46193976625564337806
	c82I = 0.19134171618254488586
	c83R = 0.41573480615127261854
	c83I = 0.27778511650980111237
	c84R = 0.35355339059327376220
	w84R = 0.70710678118654752440
)

// IDCT8x8 applies the inverse transform to b in place, columns first.
func IDCT8x8(b *[64]float32) {
	for j := 0; j < 8; j++ {
		idct8(b, j, 8)
	}

	for j := 0; j < 8; j++ {
		idct8(b, j*8, 1)
	}
}

// DCT8x8 applies the forward transform to b in place, columns first.
func DCT8x8(b *[64]float32) {
	for j := 0; j < 8; j++ {
		dct8(b, j, 8)
	}

	for j := 0; j < 8; j++ {
		dct8(b, j*8, 1)
	}
}

// idct8 runs the 1-D inverse butterfly on the 8 elements b[o], b[o+s], ... b[o+7s].
func idct8(b *[64]float32, o, s int) {
	var x0r, x0i, x1r, x1i, x2r, x2i, x3r, x3i, xr, xi float32

	x1r = c81R*b[o+1*s] + c81I*b[o+7*s]
	x1i = c81R*b[o+7*s] - c81I*b[o+1*s]
	x3r = c83R*b[o+3*s] + c83I*b[o+5*s]
	x3i = c83R*b[o+5*s] - c83I*b[o+3*s]
	xr = x1r - x3r
	xi = x1i + x3i
	x1r += x3r
	x3i -= x1i
	x1i = w84R * (xr + xi)
	x3r = w84R * (xr - xi)
	xr = c82R*b[o+2*s] + c82I*b[o+6*s]
	xi = c82R*b[o+6*s] - c82I*b[o+2*s]
	x0r = c84R * (b[o] + b[o+4*s])
	x0i = c84R * (b[o] - b[o+4*s])
	x2r = x0r - xr
	x2i = x0i - xi
	x0r += xr
	x0i += xi

	b[o] = x0r + x1r
	b[o+7*s] = x0r - x1r
	b[o+2*s] = x0i + x1i
	b[o+5*s] = x0i - x1i
	b[o+4*s] = x2r - x3i
	b[o+3*s] = x2r + x3i
	b[o+6*s] = x2i - x3r
	b[o+1*s] = x2i + x3r
}

// dct8 runs the 1-D forward butterfly on the 8 elements b[o], b[o+s], ... b[o+7s].
func dct8(b *[64]float32, o, s int) {
	var x0r, x0i, x1r, x1i, x2r, x2i, x3r, x3i, xr, xi float32

	x0r = b[o] + b[o+7*s]
	x1r = b[o] - b[o+7*s]
	x0i = b[o+2*s] + b[o+5*s]
	x1i = b[o+2*s] - b[o+5*s]
	x2r = b[o+4*s] + b[o+3*s]
	x3r = b[o+4*s] - b[o+3*s]
	x2i = b[o+6*s] + b[o+1*s]
	x3i = b[o+6*s] - b[o+1*s]

	xr = x0r + x2r
	xi = x0i + x2i
	b[o] = c84R * (xr + xi)
	b[o+4*s] = c84R * (xr - xi)

	xr = x0r - x2r
	xi = x0i - x2i
	b[o+2*s] = c82R*xr - c82I*xi
	b[o+6*s] = c82R*xi + c82I*xr

	xr = w84R * (x1i - x3i)
	x1i = w84R * (x1i + x3i)
	x3i = x1i - x3r
	x1i += x3r
	x3r = x1r - xr
	x1r += xr

	b[o+1*s] = c81R*x1r - c81I*x1i
	b[o+7*s] = c81R*x1i + c81I*x1r
	b[o+3*s] = c83R*x3r - c83I*x3i
	b[o+5*s] = c83R*x3i + c83I*x3r
}

// Block returns the i-th 8x8 block of a boxed buffer as an array pointer.
func Block(boxed []float32, i int) *[64]float32 {
	return (*[64]float32)(boxed[i*64 : (i+1)*64])
}
