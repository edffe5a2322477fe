// Package cache stores optimization results on disk, keyed by the input
// bytes and the parameters that produced them.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/gen2brain/dejpeg/deblock"
)

// ErrCorrupt is returned for entries that cannot be decoded.
var ErrCorrupt = errors.New("cache: corrupt entry")

// magic identifies entry files, including the format version.
var magic = [4]byte{'D', 'J', 'C', '1'}

const (
	headerSize = 16
	maxPlanes  = 3
	ext        = ".zst"
)

func mustNewZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		panic(err)
	}

	return enc
}

func mustNewZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		panic(err)
	}

	return dec
}

var zstdEncPool = sync.Pool{
	New: func() any {
		return mustNewZstdEncoder()
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		return mustNewZstdDecoder()
	},
}

// Key returns the cache key of an input and the parameters applied to it.
func Key(input []byte, params ...any) string {
	h := sha256.New()
	h.Write(input)

	for _, p := range params {
		fmt.Fprintf(h, "\x00%#v", p)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Dir is a cache directory. Entries are written atomically, so a Dir may be
// shared by concurrent workers and processes.
type Dir string

func (d Dir) path(key string) string {
	return filepath.Join(string(d), key[:2], key+ext)
}

// Get returns the entry for key. A missing entry is not an error.
func (d Dir) Get(key string) (*deblock.Result, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	dec := zstdDecPool.Get().(*zstd.Decoder)
	raw, err := dec.DecodeAll(data, nil)
	zstdDecPool.Put(dec)

	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	res, err := unmarshal(raw)
	if err != nil {
		return nil, false, err
	}

	return res, true, nil
}

// Put stores res under key.
func (d Dir) Put(key string, res *deblock.Result) error {
	raw, err := marshal(res)
	if err != nil {
		return err
	}

	enc := zstdEncPool.Get().(*zstd.Encoder)
	data := enc.EncodeAll(raw, nil)
	zstdEncPool.Put(enc)

	path := d.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), key+".tmp*")
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())

		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())

		return err
	}

	return os.Rename(f.Name(), path)
}

// marshal encodes the header followed by the planes as little-endian float32.
func marshal(res *deblock.Result) ([]byte, error) {
	n := res.Width * res.Height
	if len(res.Planes) == 0 || len(res.Planes) > maxPlanes {
		return nil, fmt.Errorf("cache: %d planes", len(res.Planes))
	}

	buf := make([]byte, headerSize, headerSize+len(res.Planes)*n*4)
	copy(buf, magic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(res.Width))
	binary.LittleEndian.PutUint32(buf[8:], uint32(res.Height))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(res.Planes)))

	for i, p := range res.Planes {
		if len(p) != n {
			return nil, fmt.Errorf("cache: plane %d has %d values, want %d", i, len(p), n)
		}

		for _, v := range p {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}

	return buf, nil
}

func unmarshal(raw []byte) (*deblock.Result, error) {
	if len(raw) < headerSize || [4]byte(raw[:4]) != magic {
		return nil, ErrCorrupt
	}

	w := int(binary.LittleEndian.Uint32(raw[4:]))
	h := int(binary.LittleEndian.Uint32(raw[8:]))
	planes := int(binary.LittleEndian.Uint32(raw[12:]))

	if planes == 0 || planes > maxPlanes || w <= 0 || h <= 0 || w > len(raw) || h > len(raw) {
		return nil, ErrCorrupt
	}

	n := w * h
	if len(raw) != headerSize+planes*n*4 {
		return nil, ErrCorrupt
	}

	res := &deblock.Result{Width: w, Height: h, Planes: make([][]float32, planes)}

	off := headerSize
	for i := range res.Planes {
		p := make([]float32, n)
		for j := range p {
			p[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}

		res.Planes[i] = p
	}

	return res, nil
}
