package deblock

import (
	"fmt"

	"github.com/gen2brain/dejpeg/internal/dct"
)

// Coefficient is the read-only description of one color channel as stored in a JPEG:
// its block grid, sampling factors, quantized DCT coefficients and quantization table.
// It is never modified by Run.
type Coefficient struct {
	// RoundedW and RoundedH are the channel dimensions rounded up to a multiple of 8.
	RoundedW, RoundedH int
	// BlockW, BlockH and BlockCount describe the 8x8 block grid.
	BlockW, BlockH, BlockCount int
	// HSamp and VSamp are the upsampling factors (1 or 2) from this channel to the largest one.
	HSamp, VSamp int

	// DCTCoefs holds BlockCount*64 quantized coefficients, block after block, natural order.
	DCTCoefs []float32
	// QuantTable holds the quantization steps in natural (row-major) order.
	QuantTable [64]float32
	// QuantBoxMin and QuantBoxMax bound every coefficient to the interval that still
	// rounds to the stored integer: (coef -/+ 0.5) * q.
	QuantBoxMin, QuantBoxMax []float32

	// ImageData is the plain IDCT reconstruction, planar, RoundedW*RoundedH values.
	ImageData []float32
}

// NewCoefficient builds a channel from quantized coefficients.
// w and h must be multiples of 8, hSamp and vSamp must be 1 or 2,
// and coefs must hold (w/8)*(h/8)*64 values; NewCoefficient panics otherwise.
func NewCoefficient(w, h, hSamp, vSamp int, coefs []int16, quant [64]uint16) *Coefficient {
	if w <= 0 || h <= 0 || w%8 != 0 || h%8 != 0 {
		panic(fmt.Sprintf("deblock: channel dimensions %dx%d are not positive multiples of 8", w, h))
	}

	if (hSamp != 1 && hSamp != 2) || (vSamp != 1 && vSamp != 2) {
		panic(fmt.Sprintf("deblock: sampling factors %dx%d are not 1 or 2", hSamp, vSamp))
	}

	c := &Coefficient{
		RoundedW: w,
		RoundedH: h,
		BlockW:   w / 8,
		BlockH:   h / 8,
		HSamp:    hSamp,
		VSamp:    vSamp,
	}
	c.BlockCount = c.BlockW * c.BlockH

	if len(coefs) != c.BlockCount*64 {
		panic(fmt.Sprintf("deblock: got %d coefficients, want %d", len(coefs), c.BlockCount*64))
	}

	for j, q := range quant {
		if q == 0 {
			panic(fmt.Sprintf("deblock: quantization step %d is zero", j))
		}

		c.QuantTable[j] = float32(q)
	}

	n := c.BlockCount * 64
	c.DCTCoefs = make([]float32, n)
	c.QuantBoxMin = make([]float32, n)
	c.QuantBoxMax = make([]float32, n)
	boxed := make([]float32, n)

	for i := 0; i < c.BlockCount; i++ {
		for j := 0; j < 64; j++ {
			k := i*64 + j
			v := float32(coefs[k])
			q := c.QuantTable[j]

			c.DCTCoefs[k] = v
			c.QuantBoxMin[k] = (v - 0.5) * q
			c.QuantBoxMax[k] = (v + 0.5) * q
			boxed[k] = v * q
		}

		dct.IDCT8x8(dct.Block(boxed, i))
	}

	c.ImageData = make([]float32, n)
	dct.Unbox(boxed, c.ImageData, w, h)

	return c
}

// PixelCount returns RoundedW*RoundedH.
func (c *Coefficient) PixelCount() int {
	return c.RoundedW * c.RoundedH
}

// subsampled reports whether the channel is stored below the shared resolution.
func (c *Coefficient) subsampled(maxW, maxH int) bool {
	return c.RoundedW != maxW || c.RoundedH != maxH
}
