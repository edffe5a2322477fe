// Command dejpeg decodes JPEG images with compression artifacts removed.
//
// Usage:
//
//	dejpeg [options] <input.jpg>...
//
// The output format follows the extension of -o, or -format for batches:
// png, webp, tiff or bmp.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gen2brain/dejpeg"
	"github.com/gen2brain/dejpeg/deblock"
	"github.com/gen2brain/dejpeg/internal/cache"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "dejpeg: %v\n", err)
		}

		os.Exit(1)
	}
}

// config holds the parsed command line.
type config struct {
	output  string
	outdir  string
	format  string
	quality int
	jobs    int
	cache   cache.Dir
	opts    *dejpeg.Options
	logger  *slog.Logger
	inputs  []string
}

func parseArgs(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("dejpeg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dejpeg [options] <input.jpg>...\n\nOptions:\n")
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "output path (single input only)")
	outdir := fs.String("outdir", "", "output directory (default: next to the input)")
	format := fs.String("format", "png", "output format when -o is not set: png/webp/tiff/bmp")
	weight := fs.String("weight", "0.3", "second-order smoothing weight, one value or three comma-separated")
	pweight := fs.String("pweight", "0.001", "fidelity weight, one value or three comma-separated")
	iterations := fs.String("iterations", "50", "iterations, one value or three comma-separated")
	separate := fs.Bool("separate", false, "optimize each component separately")
	autoRotate := fs.Bool("autorotate", false, "apply the EXIF orientation")
	kernel := fs.String("kernel", "scalar", "gradient kernel: scalar/parallel")
	jobs := fs.Int("j", runtime.NumCPU(), "number of images processed concurrently")
	cacheDir := fs.String("cache", "", "cache directory for optimization results")
	verbose := fs.Bool("v", false, "verbose (debug) logging")
	quality := fs.Int("q", 90, "WebP quality 0-100")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() < 1 {
		fs.Usage()

		return nil, errors.New("missing input file")
	}

	if *output != "" && fs.NArg() > 1 {
		return nil, errors.New("-o requires a single input, use -outdir")
	}

	opts := dejpeg.DefaultOptions()
	opts.SeparateComponents = *separate
	opts.AutoRotate = *autoRotate

	var err error
	if opts.Weight, err = parseFloats("weight", *weight); err != nil {
		return nil, err
	}

	if opts.PWeight, err = parseFloats("pweight", *pweight); err != nil {
		return nil, err
	}

	if opts.Iterations, err = parseInts("iterations", *iterations); err != nil {
		return nil, err
	}

	if opts.Kernel, err = deblock.KernelByName(*kernel); err != nil {
		return nil, err
	}

	if _, err := encoderFor(*format); err != nil && *output == "" {
		return nil, err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
		opts.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	}

	return &config{
		output:  *output,
		outdir:  *outdir,
		format:  strings.ToLower(*format),
		quality: *quality,
		jobs:    max(1, *jobs),
		cache:   cache.Dir(*cacheDir),
		opts:    opts,
		logger:  slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		inputs:  fs.Args(),
	}, nil
}

// splitList splits a comma-separated list of one or three values.
func splitList(name, s string) ([]string, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 1 && len(parts) != 3 {
		return nil, fmt.Errorf("-%s: want 1 or 3 values, got %d", name, len(parts))
	}

	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts, nil
}

func parseFloats(name, s string) ([3]float32, error) {
	var out [3]float32

	parts, err := splitList(name, s)
	if err != nil {
		return out, err
	}

	for i := range out {
		v, err := strconv.ParseFloat(parts[min(i, len(parts)-1)], 32)
		if err != nil {
			return out, fmt.Errorf("-%s: %w", name, err)
		}

		if v < 0 {
			return out, fmt.Errorf("-%s: negative value %v", name, v)
		}

		out[i] = float32(v)
	}

	return out, nil
}

func parseInts(name, s string) ([3]int, error) {
	var out [3]int

	parts, err := splitList(name, s)
	if err != nil {
		return out, err
	}

	for i := range out {
		v, err := strconv.Atoi(parts[min(i, len(parts)-1)])
		if err != nil {
			return out, fmt.Errorf("-%s: %w", name, err)
		}

		if v < 0 {
			return out, fmt.Errorf("-%s: negative value %d", name, v)
		}

		out[i] = v
	}

	return out, nil
}

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// encoderFor returns the encoder of a format name or file extension.
func encoderFor(format string) (encodeFunc, error) {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "png":
		return func(w io.Writer, img image.Image, _ int) error {
			return png.Encode(w, img)
		}, nil
	case "webp":
		return func(w io.Writer, img image.Image, quality int) error {
			return webp.Encode(w, img, webp.Options{Quality: quality})
		}, nil
	case "tif", "tiff":
		return func(w io.Writer, img image.Image, _ int) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}, nil
	case "bmp":
		return func(w io.Writer, img image.Image, _ int) error {
			return bmp.Encode(w, img)
		}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// outputPath returns where the result of input is written.
func (c *config) outputPath(input string) string {
	if c.output != "" {
		return c.output
	}

	dir := c.outdir
	if dir == "" {
		dir = filepath.Dir(input)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	return filepath.Join(dir, base+"."+c.format)
}

// cacheKey identifies the optimization of data under the current options.
func (c *config) cacheKey(data []byte) string {
	o := c.opts

	return cache.Key(data, o.Weight, o.PWeight, o.Iterations, o.SeparateComponents, o.Kernel.Name())
}

// decode decodes and optimizes data, consulting the cache when enabled.
func (c *config) decode(data []byte) (image.Image, error) {
	coefs, err := dejpeg.DecodeCoefficients(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, dejpeg.ErrUnsupported) {
			// Decode falls back to image/jpeg.
			return dejpeg.Decode(bytes.NewReader(data), c.opts)
		}

		return nil, err
	}

	var res *deblock.Result
	var key string

	if c.cache != "" {
		key = c.cacheKey(data)

		var ok bool
		res, ok, err = c.cache.Get(key)
		if err != nil {
			c.logger.Warn("cache read failed", "err", err)
		}

		if ok {
			c.logger.Debug("cache hit", "key", key)
		}
	}

	if res == nil {
		if res, err = dejpeg.Optimize(coefs, c.opts); err != nil {
			return nil, err
		}

		if c.cache != "" {
			if err := c.cache.Put(key, res); err != nil {
				c.logger.Warn("cache write failed", "err", err)
			}
		}
	}

	return dejpeg.ToImage(res, coefs, c.opts.AutoRotate)
}

// process converts a single file.
func (c *config) process(input string) error {
	start := time.Now()

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	img, err := c.decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	output := c.outputPath(input)

	encode, err := encoderFor(filepath.Ext(output))
	if err != nil {
		return fmt.Errorf("%s: %w", output, err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, c.quality); err != nil {
		return fmt.Errorf("%s: %w", output, err)
	}

	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return err
	}

	c.logger.Info("processed", "input", input, "output", output, "elapsed", time.Since(start).Round(time.Millisecond))

	return nil
}

func run(args []string, stderr io.Writer) error {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	if cfg.outdir != "" {
		if err := os.MkdirAll(cfg.outdir, 0o755); err != nil {
			return err
		}
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)

	sem := make(chan struct{}, cfg.jobs)

	for _, input := range cfg.inputs {
		wg.Add(1)
		sem <- struct{}{}

		go func(input string) {
			defer func() {
				<-sem
				wg.Done()
			}()

			if err := cfg.process(input); err != nil {
				cfg.logger.Error("failed", "input", input, "err", err)

				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(input)
	}

	wg.Wait()

	return first
}
