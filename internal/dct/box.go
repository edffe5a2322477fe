package dct

import "fmt"

// checkDims panics when w or h is not a multiple of 8 or a buffer cannot hold w*h values.
func checkDims(src, dst []float32, w, h int) {
	if w <= 0 || h <= 0 || w%8 != 0 || h%8 != 0 {
		panic(fmt.Sprintf("dct: dimensions %dx%d are not positive multiples of 8", w, h))
	}

	if len(src) < w*h || len(dst) < w*h {
		panic(fmt.Sprintf("dct: buffers of length %d and %d are too short for %dx%d", len(src), len(dst), w, h))
	}
}

// Box copies a planar row-major image into an array of contiguous 8x8 blocks.
// Blocks are laid out row-major over the block grid.
func Box(src, dst []float32, w, h int) {
	checkDims(src, dst, w, h)

	index := 0
	for by := 0; by < h/8; by++ {
		for bx := 0; bx < w/8; bx++ {
			for y := 0; y < 8; y++ {
				row := (by*8+y)*w + bx*8
				copy(dst[index:index+8], src[row:row+8])
				index += 8
			}
		}
	}
}

// Unbox is the inverse of Box.
func Unbox(src, dst []float32, w, h int) {
	checkDims(src, dst, w, h)

	index := 0
	for by := 0; by < h/8; by++ {
		for bx := 0; bx < w/8; bx++ {
			for y := 0; y < 8; y++ {
				row := (by*8+y)*w + bx*8
				copy(dst[row:row+8], src[index:index+8])
				index += 8
			}
		}
	}
}
