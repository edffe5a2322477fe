package dejpeg

import (
	"fmt"
	"image"

	"github.com/gen2brain/dejpeg/deblock"
)

// Color conversion

// clampf rounds a float sample to the nearest byte.
func clampf(v float32) byte {
	v += 0.5
	if v <= 0 {
		return 0
	}

	if v >= 255 {
		return 255
	}

	return byte(v)
}

// ToImage converts optimized planes into an image cropped to the stored image
// size. Grayscale results become [*image.Gray], color results [*image.RGBA].
// With autoRotate, the EXIF orientation of c is applied.
func ToImage(res *deblock.Result, c *Coefficients, autoRotate bool) (image.Image, error) {
	if len(res.Planes) != len(c.Components) || res.Width < c.Width || res.Height < c.Height {
		return nil, fmt.Errorf("%dx%d result for %dx%d image: %w", res.Width, res.Height, c.Width, c.Height, ErrInternal)
	}

	width, height := c.Width, c.Height
	orientation := 1
	if autoRotate {
		orientation = c.Orientation
	}

	if c.ColorModel == Gray {
		pix := grayPixels(res, width, height)
		pix, width, height = transform(pix, width, height, 1, orientation)

		return &image.Gray{Pix: pix, Stride: width, Rect: image.Rect(0, 0, width, height)}, nil
	}

	var pix []byte
	if c.ColorModel == RGB {
		pix = rgbPixels(res, width, height)
	} else {
		pix = yCbCrPixels(res, width, height)
	}

	pix, width, height = transform(pix, width, height, 4, orientation)

	return &image.RGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}, nil
}

// grayPixels undoes the level shift of the luma plane.
func grayPixels(res *deblock.Result, width, height int) []byte {
	pix := make([]byte, width*height)
	y := res.Planes[0]

	for yy := 0; yy < height; yy++ {
		row := y[yy*res.Width:]
		out := pix[yy*width:]

		for x := 0; x < width; x++ {
			out[x] = clampf(row[x] + 128)
		}
	}

	return pix
}

// yCbCrPixels converts level shifted YCbCr planes to RGBA.
func yCbCrPixels(res *deblock.Result, width, height int) []byte {
	pix := make([]byte, width*height*4)
	pY, pCb, pCr := res.Planes[0], res.Planes[1], res.Planes[2]

	rgbaOffset := 0
	for yy := 0; yy < height; yy++ {
		base := yy * res.Width

		for x := 0; x < width; x++ {
			y := pY[base+x] + 128
			cb := pCb[base+x]
			cr := pCr[base+x]

			pix[rgbaOffset] = clampf(y + 1.402*cr)                 // R
			pix[rgbaOffset+1] = clampf(y - 0.34414*cb - 0.71414*cr) // G
			pix[rgbaOffset+2] = clampf(y + 1.772*cb)                // B
			pix[rgbaOffset+3] = 255                                 // A
			rgbaOffset += 4
		}
	}

	return pix
}

// rgbPixels interleaves level shifted RGB planes into RGBA.
func rgbPixels(res *deblock.Result, width, height int) []byte {
	pix := make([]byte, width*height*4)
	pR, pG, pB := res.Planes[0], res.Planes[1], res.Planes[2]

	rgbaOffset := 0
	for yy := 0; yy < height; yy++ {
		base := yy * res.Width

		for x := 0; x < width; x++ {
			pix[rgbaOffset] = clampf(pR[base+x] + 128)
			pix[rgbaOffset+1] = clampf(pG[base+x] + 128)
			pix[rgbaOffset+2] = clampf(pB[base+x] + 128)
			pix[rgbaOffset+3] = 255
			rgbaOffset += 4
		}
	}

	return pix
}

// transform applies rotation and flipping for an EXIF orientation tag to
// interleaved pixels of bpp bytes each. It returns the new dimensions.
func transform(src []byte, srcWidth, srcHeight, bpp, orientation int) ([]byte, int, int) {
	if orientation < 2 || orientation > 8 {
		return src, srcWidth, srcHeight
	}

	dstWidth, dstHeight := srcWidth, srcHeight

	// Orientations 5-8 involve 90/270 degree rotations, swapping width and height.
	if orientation >= 5 {
		dstWidth, dstHeight = srcHeight, srcWidth
	}

	dst := make([]byte, len(src))
	srcStride := srcWidth * bpp
	dstStride := dstWidth * bpp

	for sy := 0; sy < srcHeight; sy++ {
		for sx := 0; sx < srcWidth; sx++ {
			var dx, dy int

			switch orientation {
			case 2: // Flip horizontal
				dx, dy = srcWidth-1-sx, sy
			case 3: // Rotate 180
				dx, dy = srcWidth-1-sx, srcHeight-1-sy
			case 4: // Flip vertical
				dx, dy = sx, srcHeight-1-sy
			case 5: // Transpose
				dx, dy = sy, sx
			case 6: // Rotate 90 CW
				dx, dy = srcHeight-1-sy, sx
			case 7: // Transverse
				dx, dy = srcHeight-1-sy, srcWidth-1-sx
			case 8: // Rotate 270 CW
				dx, dy = sy, srcWidth-1-sx
			}

			srcOffset := sy*srcStride + sx*bpp
			dstOffset := dy*dstStride + dx*bpp
			copy(dst[dstOffset:dstOffset+bpp], src[srcOffset:srcOffset+bpp])
		}
	}

	return dst, dstWidth, dstHeight
}
