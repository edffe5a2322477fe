package dejpeg

import (
	"bytes"
	"math/bits"
)

// testWriter assembles grayscale JPEG streams from known quantized
// coefficients. It uses fixed 4-bit DC codes and 8-bit AC codes, which keeps
// the tables trivial while exercising every entropy coding path.
type testWriter struct {
	out     bytes.Buffer
	acc     uint32
	nacc    int
	eobRun  int
	acIndex map[byte]int
}

// acSymbols lists every AC symbol the writer emits, in code order.
var acSymbols = func() []byte {
	s := []byte{0x00}
	for r := 1; r < 15; r++ {
		s = append(s, byte(r<<4)) // EOBn
	}

	s = append(s, 0xF0)
	for r := 0; r < 16; r++ {
		for size := 1; size <= 10; size++ {
			s = append(s, byte(r<<4|size))
		}
	}

	return s
}()

func newTestWriter() *testWriter {
	w := &testWriter{acIndex: make(map[byte]int)}
	for i, s := range acSymbols {
		w.acIndex[s] = i
	}

	return w
}

func (w *testWriter) marker(m byte, payload ...byte) {
	w.out.WriteByte(0xFF)
	w.out.WriteByte(m)

	if payload == nil {
		return
	}

	n := len(payload) + 2
	w.out.WriteByte(byte(n >> 8))
	w.out.WriteByte(byte(n))
	w.out.Write(payload)
}

// header writes SOI, a flat quantization table of q, SOFn and both Huffman tables.
func (w *testWriter) header(sof byte, width, height int, q byte, restart int) {
	w.marker(0xD8)

	dqt := []byte{0x00}
	for i := 0; i < 64; i++ {
		dqt = append(dqt, q)
	}

	w.marker(0xDB, dqt...)
	w.marker(sof, 8, byte(height>>8), byte(height), byte(width>>8), byte(width), 1, 1, 0x11, 0)

	// DC class 0: twelve 4-bit codes.
	dht := []byte{0x00, 0, 0, 0, 12, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	for s := 0; s < 12; s++ {
		dht = append(dht, byte(s))
	}

	// AC class 0: 8-bit codes.
	dht = append(dht, 0x10, 0, 0, 0, 0, 0, 0, 0, byte(len(acSymbols)), 0, 0, 0, 0, 0, 0, 0, 0)
	dht = append(dht, acSymbols...)
	w.marker(0xC4, dht...)

	if restart > 0 {
		w.marker(0xDD, byte(restart>>8), byte(restart))
	}
}

func (w *testWriter) sos(ss, se, ah, al int) {
	w.marker(0xDA, 1, 1, 0x00, byte(ss), byte(se), byte(ah<<4|al))
}

func (w *testWriter) bits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | (v>>i)&1
		w.nacc++

		if w.nacc == 8 {
			b := byte(w.acc)
			w.out.WriteByte(b)
			if b == 0xFF {
				w.out.WriteByte(0x00)
			}

			w.acc, w.nacc = 0, 0
		}
	}
}

// flush pads the last byte with ones.
func (w *testWriter) flush() {
	if w.nacc > 0 {
		w.bits(0xFF, 8-w.nacc)
	}
}

func (w *testWriter) dcSymbol(s int) {
	w.bits(uint32(s), 4)
}

func (w *testWriter) acSymbol(s byte) {
	w.bits(uint32(w.acIndex[s]), 8)
}

// magnitude returns the size category and the extra bits of v.
func magnitude(v int) (int, uint32) {
	a := v
	if a < 0 {
		a = -a
	}

	s := bits.Len(uint(a))
	if v < 0 {
		v += (1 << s) - 1
	}

	return s, uint32(v) & (1<<s - 1)
}

func (w *testWriter) dcDiff(diff int) {
	s, extra := magnitude(diff)
	w.dcSymbol(s)
	w.bits(extra, s)
}

func (w *testWriter) flushEOBRun() {
	if w.eobRun == 0 {
		return
	}

	r := bits.Len(uint(w.eobRun)) - 1
	w.acSymbol(byte(r << 4))
	w.bits(uint32(w.eobRun-1<<r), r)
	w.eobRun = 0
}

// baselineBlock encodes one block of natural order coefficients.
func (w *testWriter) baselineBlock(blk []int16, pred *int) {
	w.dcDiff(int(blk[0]) - *pred)
	*pred = int(blk[0])

	r := 0
	for k := 1; k < 64; k++ {
		v := int(blk[zz[k]])
		if v == 0 {
			r++

			continue
		}

		for ; r > 15; r -= 16 {
			w.acSymbol(0xF0)
		}

		s, extra := magnitude(v)
		w.acSymbol(byte(r<<4 | s))
		w.bits(extra, s)
		r = 0
	}

	if r > 0 {
		w.acSymbol(0x00)
	}
}

// restart ends an interval with RSTn.
func (w *testWriter) restart(n int) {
	w.flushEOBRun()
	w.flush()
	w.out.WriteByte(0xFF)
	w.out.WriteByte(byte(0xD0 + n&7))
}

// shiftMagnitude shifts the magnitude of v right by al, keeping the sign.
func shiftMagnitude(v int16, al int) int {
	if v < 0 {
		return -(int(-v) >> al)
	}

	return int(v) >> al
}

func (w *testWriter) acFirstBlock(blk []int16, ss, se, al int) {
	r := 0
	for k := ss; k <= se; k++ {
		v := shiftMagnitude(blk[zz[k]], al)
		if v == 0 {
			r++

			continue
		}

		w.flushEOBRun()

		for ; r > 15; r -= 16 {
			w.acSymbol(0xF0)
		}

		s, extra := magnitude(v)
		w.acSymbol(byte(r<<4 | s))
		w.bits(extra, s)
		r = 0
	}

	if r > 0 {
		w.eobRun++
		if w.eobRun == 0x7FFF {
			w.flushEOBRun()
		}
	}
}

func (w *testWriter) acRefineBlock(blk []int16, ss, se, al int) {
	var abs [64]int

	eob := 0
	for k := ss; k <= se; k++ {
		v := int(blk[zz[k]])
		if v < 0 {
			v = -v
		}

		abs[k] = v >> al
		if abs[k] == 1 {
			eob = k
		}
	}

	var correction []uint32

	r := 0
	for k := ss; k <= se; k++ {
		if abs[k] == 0 {
			r++

			continue
		}

		for r > 15 && k <= eob {
			w.acSymbol(0xF0)
			r -= 16

			for _, b := range correction {
				w.bits(b, 1)
			}

			correction = correction[:0]
		}

		if abs[k] > 1 {
			correction = append(correction, uint32(abs[k]&1))

			continue
		}

		w.acSymbol(byte(r<<4 | 1))
		if blk[zz[k]] > 0 {
			w.bits(1, 1)
		} else {
			w.bits(0, 1)
		}

		for _, b := range correction {
			w.bits(b, 1)
		}

		correction = correction[:0]
		r = 0
	}

	if r > 0 || len(correction) > 0 {
		w.acSymbol(0x00)

		for _, b := range correction {
			w.bits(b, 1)
		}
	}
}

// encodeBaseline returns a baseline grayscale JPEG of the given blocks.
func encodeBaseline(width, height int, blocks [][]int16, q byte, restart int) []byte {
	w := newTestWriter()
	w.header(0xC0, width, height, q, restart)
	w.sos(0, 63, 0, 0)

	pred := 0
	for i, blk := range blocks {
		if restart > 0 && i > 0 && i%restart == 0 {
			w.restart(i/restart - 1)
			pred = 0
		}

		w.baselineBlock(blk, &pred)
	}

	w.flush()
	w.marker(0xD9)

	return w.out.Bytes()
}

// encodeProgressive returns a progressive grayscale JPEG of the given blocks
// with successive approximation of the DC and of two AC bands.
func encodeProgressive(width, height int, blocks [][]int16, q byte) []byte {
	w := newTestWriter()
	w.header(0xC2, width, height, q, 0)

	// DC first, al=1.
	w.sos(0, 0, 0, 1)
	pred := 0
	for _, blk := range blocks {
		v := int(blk[0]) >> 1
		w.dcDiff(v - pred)
		pred = v
	}
	w.flush()

	// AC first for both bands, al=1.
	for _, band := range [][2]int{{1, 5}, {6, 63}} {
		w.sos(band[0], band[1], 0, 1)
		for _, blk := range blocks {
			w.acFirstBlock(blk, band[0], band[1], 1)
		}
		w.flushEOBRun()
		w.flush()
	}

	// DC refine.
	w.sos(0, 0, 1, 0)
	for _, blk := range blocks {
		w.bits(uint32(blk[0])&1, 1)
	}
	w.flush()

	// AC refine for both bands.
	for _, band := range [][2]int{{1, 5}, {6, 63}} {
		w.sos(band[0], band[1], 1, 0)
		for _, blk := range blocks {
			w.acRefineBlock(blk, band[0], band[1], 0)
		}
		w.flush()
	}

	w.marker(0xD9)

	return w.out.Bytes()
}
