package dejpeg

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand/v2"
	"testing"
)

// baselineGray2x2 is a minimal 2x2, 8-bit grayscale, baseline JPEG.
var baselineGray2x2 = []byte{
	// SOI: Start of Image
	0xff, 0xd8,
	// APP0: JFIF segment
	0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46, 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01,
	0x00, 0x00,
	// DQT: Define Quantization Table
	0xff, 0xdb, 0x00, 0x43, 0x00, 0x03, 0x02, 0x02, 0x02, 0x02, 0x02, 0x03, 0x02, 0x02, 0x02, 0x03,
	0x03, 0x03, 0x03, 0x04, 0x06, 0x04, 0x04, 0x04, 0x05, 0x0a, 0x07, 0x07, 0x08, 0x0a, 0x0d, 0x0b,
	0x0d, 0x0c, 0x0c, 0x0b, 0x0b, 0x0c, 0x11, 0x0f, 0x12, 0x10, 0x13, 0x12, 0x11, 0x0f, 0x11, 0x10,
	0x10, 0x14, 0x18, 0x1a, 0x17, 0x14, 0x15, 0x18, 0x10, 0x10, 0x13, 0x1c, 0x15, 0x13, 0x15, 0x16,
	0x19, 0x1c, 0x19, 0x19, 0x19,

	// SOF0: Start of Frame (Baseline DCT)
	0xff, 0xc0, 0x00, 0x0b, 0x08, 0x00, 0x02, 0x00, 0x02, 0x01, 0x01, 0x11, 0x00,

	// DHT for DC table 0 (Standard Luminance DC)
	0xff, 0xc4, 0x00, 0x1f, 0x00,
	// Counts (16 bytes)
	0x00, 0x01, 0x05, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Values (12 bytes)
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b,

	// DHT for AC table 0 (Standard Luminance AC)
	0xff, 0xc4, 0x00, 0xb5, 0x10,
	// Counts (16 bytes)
	0x00, 0x02, 0x01, 0x03, 0x03, 0x02, 0x04, 0x03, 0x05, 0x05, 0x04, 0x04, 0x00, 0x00, 0x01, 0x7d,
	// Values (162 bytes)
	0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
	0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08, 0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
	0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
	0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
	0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
	0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
	0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
	0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
	0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
	0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
	0xf9, 0xfa,

	// SOS: Start of Scan
	0xff, 0xda, // Marker
	0x00, 0x08, // Length 8 (6 + 2*1 component)
	0x01,       // Ns=1 (1 component)
	0x01, 0x00, // Cs=1 (ID 1), Td/Ta=0 (DC/AC table 0)
	0x00, 0x3f, 0x00, // Ss=0, Se=63, Ah/Al=0 (Baseline parameters)

	// Scan data
	0xed, 0x9f, 0x2f, 0x84, 0xa2, 0x8b, 0x1f, 0x22, 0xa2, 0x80, 0x2a, 0x28,
	0xa2, 0x80, 0x2a, 0x28, 0xa2, 0x80, 0x2a, 0x28, 0xa2, 0x80, 0x3f, 0xff,

	// EOI: End of Image
	0xd9,
}

// A small tolerance is needed to account for differences in IDCT implementations.
const defaultTolerance = 2

// noOptimize disables the optimization so results match a plain decoder.
var noOptimize = &Options{}

// isClose checks if two color component values are within the allowed tolerance.
func isClose(a, b, tol uint8) bool {
	if a > b {
		return a-b <= tol
	}

	return b-a <= tol
}

// testImage returns a smooth color image with a few hard edges.
func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 127 / (w + h)),
				A: 255,
			}

			if x > w/2 && y > h/3 && y < 2*h/3 {
				c.R, c.G, c.B = 230, 40, 60
			}

			img.SetRGBA(x, y, c)
		}
	}

	return img
}

// testGray returns a smooth grayscale gradient.
func testGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8(20 + (x+y)*200/(w+h))
		}
	}

	return img
}

func encodeStd(tb testing.TB, img image.Image, quality int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		tb.Fatalf("jpeg.Encode failed: %v", err)
	}

	return buf.Bytes()
}

// compareImages returns the mean and maximum absolute channel difference.
func compareImages(a, b image.Image) (float64, int) {
	bounds := a.Bounds()

	var sum float64
	var maxDiff, n int

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, _ := a.At(x, y).RGBA()
			r2, g2, b2, _ := b.At(x, y).RGBA()

			for _, d := range []int{
				int(r1>>8) - int(r2>>8),
				int(g1>>8) - int(g2>>8),
				int(b1>>8) - int(b2>>8),
			} {
				if d < 0 {
					d = -d
				}

				sum += float64(d)
				maxDiff = max(maxDiff, d)
				n++
			}
		}
	}

	return sum / float64(n), maxDiff
}

// TestDecode2x2 tests the main Decode function with a valid grayscale baseline JPEG.
// It verifies image dimensions and pixel values.
func TestDecode2x2(t *testing.T) {
	img, err := Decode(bytes.NewReader(baselineGray2x2), noOptimize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("Expected *image.Gray, got %T", img)
	}

	bounds := gray.Bounds()
	if bounds.Dx() != 2 || bounds.Dy() != 2 {
		t.Fatalf("Expected 2x2 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	// These values are based on the output of a standard reference decoder.
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := gray.GrayAt(x, y).Y; !isClose(got, 150, defaultTolerance) {
				t.Errorf("Pixel at (%d, %d) - got %d, want close to 150", x, y, got)
			}
		}
	}
}

// TestDecodeMatchesStdLib decodes without optimization and compares against image/jpeg.
func TestDecodeMatchesStdLib(t *testing.T) {
	testCases := []struct {
		name string
		img  image.Image
	}{
		{"Gray", testGray(37, 29)},
		{"YCbCr420", testImage(41, 27)},
		{"YCbCr420Small", testImage(9, 7)},
		{"Gray1x1", testGray(1, 1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := encodeStd(t, tc.img, 90)

			ref, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("std jpeg.Decode failed: %v", err)
			}

			img, err := Decode(bytes.NewReader(data), noOptimize)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if img.Bounds() != ref.Bounds() {
				t.Fatalf("Bounds mismatch: got %v, want %v", img.Bounds(), ref.Bounds())
			}

			mean, maxDiff := compareImages(img, ref)
			if mean > 1.5 || maxDiff > 8 {
				t.Errorf("Too far from std decoder: mean %.2f, max %d", mean, maxDiff)
			}
		})
	}
}

// TestDecodeOptimized checks that the optimized image stays close to the
// plain decode while removing discontinuities at block boundaries.
func TestDecodeOptimized(t *testing.T) {
	data := encodeStd(t, testGray(64, 64), 10)

	ref, err := Decode(bytes.NewReader(data), noOptimize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	mean, _ := compareImages(img, ref)
	if mean > 10 {
		t.Errorf("Optimized image drifted too far: mean %.2f", mean)
	}

	if before, after := blockiness(ref.(*image.Gray)), blockiness(img.(*image.Gray)); after >= before {
		t.Errorf("Block edges not reduced: before %d, after %d", before, after)
	}
}

// blockiness sums the absolute steps across vertical and horizontal block boundaries.
func blockiness(img *image.Gray) int {
	b := img.Bounds()

	var sum int
	for y := 0; y < b.Dy(); y++ {
		for x := 8; x < b.Dx(); x += 8 {
			d := int(img.GrayAt(x, y).Y) - int(img.GrayAt(x-1, y).Y)
			sum += max(d, -d)
		}
	}

	for y := 8; y < b.Dy(); y += 8 {
		for x := 0; x < b.Dx(); x++ {
			d := int(img.GrayAt(x, y).Y) - int(img.GrayAt(x, y-1).Y)
			sum += max(d, -d)
		}
	}

	return sum
}

// TestDecodeSeparateComponents verifies per-component optimization of a subsampled image.
func TestDecodeSeparateComponents(t *testing.T) {
	data := encodeStd(t, testImage(48, 40), 85)

	ref, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("std jpeg.Decode failed: %v", err)
	}

	opts := DefaultOptions()
	opts.SeparateComponents = true
	opts.Iterations = [3]int{10, 5, 0}

	img, err := Decode(bytes.NewReader(data), opts)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if _, ok := img.(*image.RGBA); !ok {
		t.Fatalf("Expected *image.RGBA, got %T", img)
	}

	if img.Bounds() != ref.Bounds() {
		t.Fatalf("Bounds mismatch: got %v, want %v", img.Bounds(), ref.Bounds())
	}

	if mean, _ := compareImages(img, ref); mean > 6 {
		t.Errorf("Too far from std decoder: mean %.2f", mean)
	}
}

// randomBlocks returns quantized coefficients with long zero runs, large
// magnitudes and a share of empty blocks.
func randomBlocks(rng *rand.Rand, n int) [][]int16 {
	blocks := make([][]int16, n)

	for i := range blocks {
		blk := make([]int16, 64)
		blk[0] = int16(rng.IntN(801) - 400)

		if rng.IntN(3) != 0 {
			for j := 0; j < 1+rng.IntN(6); j++ {
				v := int16(rng.IntN(9) - 4)
				if rng.IntN(5) == 0 {
					v *= 60
				}

				blk[zz[1+rng.IntN(63)]] = v
			}
		}

		blocks[i] = blk
	}

	return blocks
}

func checkCoefficients(t *testing.T, data []byte, width, height int, blocks [][]int16, q uint16) {
	t.Helper()

	c, err := DecodeCoefficients(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeCoefficients failed: %v", err)
	}

	if c.Width != width || c.Height != height || c.ColorModel != Gray {
		t.Fatalf("Got %dx%d %v, want %dx%d gray", c.Width, c.Height, c.ColorModel, width, height)
	}

	if len(c.Components) != 1 {
		t.Fatalf("Got %d components, want 1", len(c.Components))
	}

	coef := c.Components[0]
	if coef.BlockCount != len(blocks) {
		t.Fatalf("Got %d blocks, want %d", coef.BlockCount, len(blocks))
	}

	if coef.QuantTable[0] != float32(q) || coef.QuantTable[63] != float32(q) {
		t.Errorf("Unexpected quantization table %v", coef.QuantTable)
	}

	for i, blk := range blocks {
		for j, want := range blk {
			if got := coef.DCTCoefs[i*64+j]; got != float32(want) {
				t.Fatalf("Block %d coefficient %d: got %v, want %d", i, j, got, want)
			}
		}
	}
}

// TestDecodeCoefficientsBaseline round-trips known coefficients through a baseline stream.
func TestDecodeCoefficientsBaseline(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	blocks := randomBlocks(rng, 4*3)

	for _, restart := range []int{0, 1, 2, 5} {
		data := encodeBaseline(30, 20, blocks, 3, restart)
		checkCoefficients(t, data, 30, 20, blocks, 3)
	}
}

// TestDecodeCoefficientsProgressive round-trips known coefficients through a
// progressive stream with spectral selection and successive approximation.
func TestDecodeCoefficientsProgressive(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	blocks := randomBlocks(rng, 5*4)

	// A run of empty bands for the EOB run path.
	for i := 6; i < 14; i++ {
		for j := 1; j < 64; j++ {
			blocks[i][j] = 0
		}
	}

	data := encodeProgressive(40, 25, blocks, 2)
	checkCoefficients(t, data, 40, 25, blocks, 2)

	img, err := Decode(bytes.NewReader(data), noOptimize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 25 {
		t.Errorf("Got %v, want 40x25", b)
	}
}

// TestDecodeProgressiveMatchesBaseline decodes the same coefficients from both stream kinds.
func TestDecodeProgressiveMatchesBaseline(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	blocks := randomBlocks(rng, 3*2)

	opts := DefaultOptions()
	opts.Iterations = [3]int{5, 5, 5}

	a, err := Decode(bytes.NewReader(encodeBaseline(17, 9, blocks, 4, 0)), opts)
	if err != nil {
		t.Fatalf("Decode baseline failed: %v", err)
	}

	b, err := Decode(bytes.NewReader(encodeProgressive(17, 9, blocks, 4)), opts)
	if err != nil {
		t.Fatalf("Decode progressive failed: %v", err)
	}

	if !bytes.Equal(a.(*image.Gray).Pix, b.(*image.Gray).Pix) {
		t.Error("Baseline and progressive results differ")
	}
}

// TestDecodeTruncated verifies that a scan cut short decodes with the missing data as zero.
func TestDecodeTruncated(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	blocks := randomBlocks(rng, 8*8)

	data := encodeBaseline(64, 64, blocks, 2, 0)
	truncated := data[:len(data)*2/3]

	c, err := DecodeCoefficients(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("DecodeCoefficients failed: %v", err)
	}

	// The first block is always complete.
	if got := c.Components[0].DCTCoefs[0]; got != float32(blocks[0][0]) {
		t.Errorf("First DC: got %v, want %d", got, blocks[0][0])
	}
}

// TestDecodeErrors checks the sentinel errors of malformed and unsupported streams.
func TestDecodeErrors(t *testing.T) {
	valid := encodeStd(t, testImage(16, 16), 75)

	// SOF0 of the valid stream.
	sof := bytes.Index(valid, []byte{0xFF, 0xC0})
	if sof < 0 {
		t.Fatal("SOF0 not found")
	}

	withSOF := func(patch func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		patch(b[sof:])

		return b
	}

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"Empty", nil, ErrNoJPEG},
		{"NotJPEG", []byte("GIF89a........"), ErrNoJPEG},
		{"OnlySOI", []byte{0xFF, 0xD8}, ErrSyntax},
		{"NoScan", []byte{0xFF, 0xD8, 0xFF, 0xD9}, ErrSyntax},
		{"Lossless", []byte{0xFF, 0xD8, 0xFF, 0xC3, 0x00, 0x02}, ErrUnsupported},
		{"Arithmetic", []byte{0xFF, 0xD8, 0xFF, 0xC9, 0x00, 0x02}, ErrUnsupported},
		{"Precision12", withSOF(func(b []byte) { b[4] = 12 }), ErrUnsupported},
		{"Sampling411", withSOF(func(b []byte) { b[11] = 0x41 }), ErrUnsupported},
		{"ZeroWidth", withSOF(func(b []byte) { b[7], b[8] = 0, 0 }), ErrSyntax},
		{"BadMarker", append([]byte{0xFF, 0xD8, 0x12, 0x34}, valid[2:]...), ErrSyntax},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCoefficients(bytes.NewReader(tc.data))
			if !errors.Is(err, tc.want) {
				t.Errorf("Got error %v, want %v", err, tc.want)
			}
		})
	}
}

// TestDecodeFallback verifies that unsupported streams are handed to image/jpeg.
func TestDecodeFallback(t *testing.T) {
	valid := encodeStd(t, testImage(16, 16), 75)

	// Rewrite the luma sampling factors to 4x1 and the chroma ones to 1x1,
	// which image/jpeg accepts while the coefficient decoder does not.
	sof := bytes.Index(valid, []byte{0xFF, 0xC0})
	data := append([]byte(nil), valid...)
	data[sof+11] = 0x41

	_, err := DecodeCoefficients(bytes.NewReader(data))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Expected ErrUnsupported, got %v", err)
	}

	ref, refErr := jpeg.Decode(bytes.NewReader(data))

	img, err := Decode(bytes.NewReader(data))
	if (err != nil) != (refErr != nil) {
		t.Fatalf("Got error %v, std decoder got %v", err, refErr)
	}

	if err == nil && img.Bounds() != ref.Bounds() {
		t.Errorf("Bounds mismatch: got %v, want %v", img.Bounds(), ref.Bounds())
	}
}

// TestDecodeConfig verifies dimensions and color models without a full decode.
func TestDecodeConfig(t *testing.T) {
	testCases := []struct {
		name  string
		img   image.Image
		model color.Model
	}{
		{"Gray", testGray(33, 21), color.GrayModel},
		{"Color", testImage(40, 30), color.RGBAModel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := encodeStd(t, tc.img, 80)

			cfg, err := DecodeConfig(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("DecodeConfig failed: %v", err)
			}

			b := tc.img.Bounds()
			if cfg.Width != b.Dx() || cfg.Height != b.Dy() {
				t.Errorf("Got %dx%d, want %dx%d", cfg.Width, cfg.Height, b.Dx(), b.Dy())
			}

			if cfg.ColorModel != tc.model {
				t.Errorf("Unexpected color model %v", cfg.ColorModel)
			}
		})
	}

	if _, err := DecodeConfig(bytes.NewReader(nil)); !errors.Is(err, ErrNoJPEG) {
		t.Errorf("Expected ErrNoJPEG for empty input, got %v", err)
	}
}

// withOrientation inserts an APP1 EXIF segment carrying the orientation tag after SOI.
func withOrientation(data []byte, orientation uint16) []byte {
	tiff := []byte{
		'I', 'I', 42, 0, 8, 0, 0, 0, // Header, IFD0 at 8.
		1, 0, // One entry.
		0x12, 0x01, 3, 0, 1, 0, 0, 0, byte(orientation), byte(orientation >> 8), 0, 0,
		0, 0, 0, 0, // No next IFD.
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)
	n := len(payload) + 2

	out := []byte{0xFF, 0xD8, 0xFF, 0xE1, byte(n >> 8), byte(n)}
	out = append(out, payload...)

	return append(out, data[2:]...)
}

// TestDecodeAutoRotate verifies that the decoder rotates the image based on the EXIF orientation tag.
func TestDecodeAutoRotate(t *testing.T) {
	src := testImage(24, 16)
	data := withOrientation(encodeStd(t, src, 95), 6)

	c, err := DecodeCoefficients(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeCoefficients failed: %v", err)
	}

	if c.Orientation != 6 {
		t.Errorf("Got orientation %d, want 6", c.Orientation)
	}

	plain, err := Decode(bytes.NewReader(data), noOptimize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if b := plain.Bounds(); b.Dx() != 24 || b.Dy() != 16 {
		t.Errorf("Without AutoRotate got %v, want 24x16", b)
	}

	rotated, err := Decode(bytes.NewReader(data), &Options{AutoRotate: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if b := rotated.Bounds(); b.Dx() != 16 || b.Dy() != 24 {
		t.Fatalf("With AutoRotate got %v, want 16x24", b)
	}

	// Rotate 90 CW: source (x, y) lands at (h-1-y, x).
	for _, p := range []image.Point{{0, 0}, {23, 0}, {5, 15}, {20, 9}} {
		want := plain.At(p.X, p.Y)
		got := rotated.At(15-p.Y, p.X)

		if want != got {
			t.Errorf("Pixel %v: got %v, want %v", p, got, want)
		}
	}
}

// TestDecodeFloat verifies the raw planes returned alongside the coefficients.
func TestDecodeFloat(t *testing.T) {
	data := encodeStd(t, testImage(20, 12), 80)

	res, c, err := DecodeFloat(bytes.NewReader(data), &Options{
		PWeight:    [3]float32{0.001, 0.001, 0.001},
		Iterations: [3]int{3, 3, 3},
	})
	if err != nil {
		t.Fatalf("DecodeFloat failed: %v", err)
	}

	if c.ColorModel != YCbCr || len(res.Planes) != 3 {
		t.Fatalf("Got %v with %d planes", c.ColorModel, len(res.Planes))
	}

	// 4:2:0 pads to 16x16 MCUs.
	if res.Width != 32 || res.Height != 16 {
		t.Errorf("Got %dx%d planes, want 32x16", res.Width, res.Height)
	}

	for i, p := range res.Planes {
		if len(p) != res.Width*res.Height {
			t.Errorf("Plane %d has %d values", i, len(p))
		}
	}
}

// BenchmarkDecode measures the full decode with default options.
func BenchmarkDecode(b *testing.B) {
	data := encodeStd(b, testImage(128, 128), 50)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := Decode(bytes.NewReader(data))
		if err != nil {
			b.Fatalf("Decode failed: %v", err)
		}
	}
}

// BenchmarkDecodeCoefficients measures the entropy decoder alone.
func BenchmarkDecodeCoefficients(b *testing.B) {
	data := encodeStd(b, testImage(512, 512), 75)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := DecodeCoefficients(bytes.NewReader(data))
		if err != nil {
			b.Fatalf("DecodeCoefficients failed: %v", err)
		}
	}
}

// BenchmarkDecodeStdLib measures the performance of the standard library's image/jpeg.Decode.
func BenchmarkDecodeStdLib(b *testing.B) {
	data := encodeStd(b, testImage(512, 512), 75)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			b.Fatalf("jpeg.Decode failed: %v", err)
		}
	}
}
