// Package dejpeg decodes JPEG images without compression artifacts.
//
// Instead of inverse transforming the stored DCT coefficients directly, the
// decoder searches for the smoothest image that still compresses to exactly
// the same coefficients (see package deblock). Blocking and ringing are
// removed while every detail that was actually stored is kept.
package dejpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/dejpeg/deblock"
)

// Standard error types for JPEG decoding.
var (
	ErrNoJPEG      = errors.New("not a JPEG file")
	ErrUnsupported = errors.New("unsupported format")
	ErrOutOfMemory = errors.New("out of memory")
	ErrInternal    = errors.New("internal error")
	ErrSyntax      = errors.New("syntax error")
)

// ColorModel is the color space of the stored components.
type ColorModel int

const (
	// Gray is a single luminance component.
	Gray ColorModel = iota
	// YCbCr is luminance plus two chroma components.
	YCbCr
	// RGB stores the color channels directly (Adobe transform 0).
	RGB
)

// String implements fmt.Stringer.
func (m ColorModel) String() string {
	switch m {
	case Gray:
		return "gray"
	case YCbCr:
		return "ycbcr"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("ColorModel(%d)", int(m))
	}
}

// Options specifies decoding parameters.
// Per-component values are indexed by component; grayscale images use index 0.
type Options struct {
	// Weight is the strength of the second-order smoothing term.
	// Joint optimization uses Weight[0]; SeparateComponents uses one per component.
	Weight [3]float32
	// PWeight is the strength of the fidelity term of every component.
	PWeight [3]float32
	// Iterations is the iteration budget of every component.
	Iterations [3]int
	// SeparateComponents optimizes every component on its own instead of
	// jointly, which ignores edges shared between channels.
	SeparateComponents bool
	// AutoRotate enables automatic image rotation based on the EXIF orientation tag.
	AutoRotate bool
	// Kernel selects the gradient implementation; nil means deblock.Scalar.
	Kernel deblock.Kernel
	// Logger receives debug diagnostics; nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions returns the default parameters: weight 0.3, pweight 0.001
// and 50 iterations for every component.
func DefaultOptions() *Options {
	return &Options{
		Weight:     [3]float32{0.3, 0.3, 0.3},
		PWeight:    [3]float32{0.001, 0.001, 0.001},
		Iterations: [3]int{50, 50, 50},
	}
}

// Coefficients is the quantized content of a JPEG, one optimizer channel per component.
type Coefficients struct {
	// Width and Height are the image dimensions as stored in the frame header.
	Width, Height int
	ColorModel    ColorModel
	// Orientation is the EXIF orientation tag (1-8), 1 if absent.
	Orientation int
	Components  []*deblock.Coefficient
}

// A reasonable upper limit for the size of JPEG headers.
// Most headers are well under this size (64KB).
const maxHeaderSize = 65536

// A pool for header-sized buffers to reduce allocations in DecodeConfig.
var headerBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, maxHeaderSize)

		return &b
	},
}

// decoderPool is a pool of decoder structs to reduce allocation overhead.
var decoderPool = sync.Pool{
	New: func() interface{} {
		return newDecoder()
	},
}

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// readAllData reads data from r, pre-allocating if the size is known.
func readAllData(r io.Reader) ([]byte, error) {
	if rl, ok := r.(readerWithLen); ok {
		size := rl.Len()
		if size > 0 {
			data := make([]byte, size)
			_, err := io.ReadFull(r, data)
			if err != nil {
				return nil, fmt.Errorf("failed to read image data: %w", err)
			}

			return data, nil
		}
	}

	return io.ReadAll(r)
}

func options(opts []*Options) *Options {
	if len(opts) > 0 && opts[0] != nil {
		return opts[0]
	}

	return DefaultOptions()
}

// DecodeCoefficients reads a JPEG image from r and returns its quantized
// coefficients without optimizing them.
func DecodeCoefficients(r io.Reader) (*Coefficients, error) {
	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	return decodeCoefficients(data)
}

func decodeCoefficients(data []byte) (*Coefficients, error) {
	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	d.autoRotate = true

	if err := d.decode(data, false); err != nil {
		return nil, err
	}

	c := &Coefficients{
		Width:       d.width,
		Height:      d.height,
		Orientation: d.orientation,
		Components:  d.coefficients(),
	}

	switch {
	case d.ncomp == 1:
		c.ColorModel = Gray
	case d.isRGB:
		c.ColorModel = RGB
	default:
		c.ColorModel = YCbCr
	}

	return c, nil
}

// Optimize runs the artifact removal on decoded coefficients.
func Optimize(c *Coefficients, opts ...*Options) (*deblock.Result, error) {
	o := options(opts)
	n := len(c.Components)
	start := time.Now()

	var res *deblock.Result
	var err error

	if n == 1 || !o.SeparateComponents {
		res, err = deblock.Run(c.Components, deblock.Params{
			Weight:     o.Weight[0],
			PWeight:    o.PWeight[:n],
			Iterations: o.Iterations[:n],
			Kernel:     o.Kernel,
			Logger:     o.Logger,
		})
	} else {
		res, err = optimizeSeparate(c, o)
	}

	if err != nil {
		return nil, err
	}

	if o.Logger != nil {
		o.Logger.Debug("dejpeg: optimized",
			"width", c.Width, "height", c.Height, "model", c.ColorModel,
			"separate", o.SeparateComponents, "elapsed", time.Since(start))
	}

	return res, nil
}

// optimizeSeparate runs one single-channel optimization per component concurrently.
func optimizeSeparate(c *Coefficients, o *Options) (*deblock.Result, error) {
	n := len(c.Components)

	var width, height int
	for _, coef := range c.Components {
		width = max(width, coef.RoundedW)
		height = max(height, coef.RoundedH)
	}

	results := make([]*deblock.Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range c.Components {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			results[i], errs[i] = deblock.Run(c.Components[i:i+1], deblock.Params{
				Weight:     o.Weight[i],
				PWeight:    o.PWeight[i : i+1],
				Iterations: o.Iterations[i : i+1],
				Width:      width,
				Height:     height,
				Kernel:     o.Kernel,
				Logger:     o.Logger,
			})
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	res := &deblock.Result{Width: width, Height: height, Planes: make([][]float32, n)}
	for i, r := range results {
		res.Planes[i] = r.Planes[0]
	}

	return res, nil
}

// DecodeFloat reads a JPEG image from r, optimizes it and returns the raw
// planes together with the coefficients they were computed from.
func DecodeFloat(r io.Reader, opts ...*Options) (*deblock.Result, *Coefficients, error) {
	c, err := DecodeCoefficients(r)
	if err != nil {
		return nil, nil, err
	}

	res, err := Optimize(c, opts...)
	if err != nil {
		return nil, nil, err
	}

	return res, c, nil
}

// Decode reads a JPEG image from r, removes compression artifacts and returns
// it as an [*image.Gray] or [*image.RGBA].
// If the JPEG format is unsupported (e.g., CMYK, 12-bit, arithmetic coding),
// it falls back to the standard library's decoder without artifact removal.
func Decode(r io.Reader, opts ...*Options) (image.Image, error) {
	o := options(opts)

	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	c, err := decodeCoefficients(data)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			if o.Logger != nil {
				o.Logger.Warn("dejpeg: falling back to image/jpeg", "err", err)
			}

			return jpeg.Decode(bytes.NewReader(data))
		}

		return nil, err
	}

	res, err := Optimize(c, o)
	if err != nil {
		return nil, err
	}

	return ToImage(res, c, o.AutoRotate)
}

// DecodeConfig returns the color model and dimensions of a JPEG image without decoding the entire image data.
// The dimensions returned are as stored in the file (SOF marker), ignoring any EXIF orientation tags.
func DecodeConfig(r io.Reader) (image.Config, error) {
	bufPtr := headerBufferPool.Get().(*[]byte)
	defer headerBufferPool.Put(bufPtr)
	headerData := *bufPtr

	// A short file yields io.ErrUnexpectedEOF (or io.EOF when empty), which is fine.
	n, err := io.ReadFull(r, headerData)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return image.Config{}, err
	}

	if n == 0 {
		return image.Config{}, ErrNoJPEG
	}

	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	if err := d.decode(headerData[:n], true); err != nil {
		if errors.Is(err, ErrUnsupported) {
			fullReader := io.MultiReader(bytes.NewReader(headerData[:n]), r)

			return jpeg.DecodeConfig(fullReader)
		}

		return image.Config{}, err
	}

	var cm color.Model
	switch {
	case d.ncomp == 1:
		cm = color.GrayModel
	default:
		cm = color.RGBAModel
	}

	return image.Config{
		ColorModel: cm,
		Width:      d.width,
		Height:     d.height,
	}, nil
}
