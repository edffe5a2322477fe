package dejpeg

import (
	"fmt"

	"github.com/gen2brain/dejpeg/deblock"
)

// vlcCode represents a single entry in the pre-calculated Huffman lookup table.
// It stores the number of bits for the code and the decoded value.
type vlcCode struct {
	bits, code uint8
}

// component stores information about a single color component (e.g., Y, Cb, or Cr).
type component struct {
	id                 int     // Component identifier (e.g., 1 for Y, 2 for Cb, 3 for Cr).
	ssX, ssY           int     // Sampling factors for X and Y axes.
	width, height      int     // Dimensions of this component in pixels.
	blocksW, blocksH   int     // Dimensions of the MCU-padded block grid.
	qtSel              int     // Quantization table selector.
	acTabSel, dcTabSel int     // Huffman table selectors for AC and DC coefficients.
	dcPred             int     // DC prediction value for differential coding.
	coefs              []int16 // Quantized coefficients, 64 per block in natural order.
}

// decoder holds the state of the JPEG parsing process.
type decoder struct {
	jpegData          []byte             // Input buffer containing the entire JPEG file.
	pos               int                // Current position index in the input buffer.
	size              int                // Remaining bytes to be processed.
	length            int                // Length of the current marker segment.
	width, height     int                // Dimensions of the image.
	mbWidth, mbHeight int                // Dimensions of the image in MCU (Minimum Coded Unit) blocks.
	mbSizeX, mbSizeY  int                // Dimensions of a single MCU in pixels.
	ssxMax, ssyMax    int                // Largest sampling factors.
	ncomp             int                // Number of color components (1 for grayscale, 3 for color).
	comp              [3]component       // Array to hold data for each color component.
	qtUsed, qtAvail   int                // Bitmasks tracking used and available quantization tables.
	qtab              [4]*[64]uint16     // Quantization tables in natural order.
	vlcTab            [8]*[65536]vlcCode // Huffman lookup tables, DC 0-3 then AC 0-3.
	buf               uint64             // Bit buffer, valid bits are the low bufBits.
	bufBits           int                // Number of valid bits in the bit buffer.
	markerHit         bool               // The entropy coded segment ended; the buffer is padded with zeros.
	rstInterval       int                // Restart interval in MCUs.
	eobRun            int                // Remaining blocks of a progressive end-of-band run.
	progressive       bool               // True for SOF2 frames.
	scans             int                // Number of decoded scans.
	isRGB             bool               // True if the image is encoded as RGB instead of YCbCr.
	autoRotate        bool               // Whether to parse the EXIF orientation.
	orientation       int                // EXIF orientation tag (1-8).
}

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }

// newDecoder creates a new decoder instance and allocates the large tables.
func newDecoder() *decoder {
	d := new(decoder)
	for i := range d.qtab {
		d.qtab[i] = new([64]uint16)
	}

	for i := range d.vlcTab {
		d.vlcTab[i] = new([65536]vlcCode)
	}

	return d
}

// reset clears the decoder state for reuse, preserving the allocated tables.
func (d *decoder) reset() {
	vlcTmp := d.vlcTab
	qtabTmp := d.qtab

	*d = decoder{}

	d.vlcTab = vlcTmp
	d.qtab = qtabTmp
}

// panic triggers an internal panic to signal a decoding error in the hot path.
func (d *decoder) panic(err error) {
	panic(errDecode{err})
}

// zz is the zigzag ordering table. It maps the 1D order of coefficients in the JPEG stream to their 2D position in an 8x8 block.
var zz = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// skip advances the current position in the jpegData buffer by 'count' bytes.
func (d *decoder) skip(count int) error {
	d.pos += count
	d.size -= count

	if d.length >= count {
		d.length -= count
	} else {
		d.length = 0
	}

	if d.size < 0 {
		return ErrSyntax
	}

	return nil
}

// decode16 reads a 16-bit big-endian integer from the specified offset.
func (d *decoder) decode16(offset int) int {
	p := d.pos + offset

	return (int(d.jpegData[p]) << 8) | int(d.jpegData[p+1])
}

// decodeLength reads the 16-bit length field of a marker segment.
// d.length then holds the size of the remaining payload.
func (d *decoder) decodeLength() error {
	if d.size < 2 {
		return ErrSyntax
	}

	d.length = d.decode16(0)
	if d.length > d.size {
		return ErrSyntax
	}

	if d.length < 2 {
		return ErrSyntax
	}

	return d.skip(2)
}

// skipMarker reads the length of the current marker's payload and skips it.
func (d *decoder) skipMarker() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	return d.skip(d.length)
}

// Marker Decoders

// decodeAPP1 decodes the APP1 marker segment. The EXIF orientation is only
// parsed when auto-rotation is enabled.
func (d *decoder) decodeAPP1() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	if !d.autoRotate {
		return d.skip(d.length)
	}

	if d.length >= 6 && string(d.jpegData[d.pos:d.pos+6]) == "Exif\x00\x00" {
		if o := exifOrientation(d.jpegData[d.pos+6 : d.pos+d.length]); o != 0 {
			d.orientation = o
		}
	}

	return d.skip(d.length)
}

// decodeAPP14 decodes the APP14 "Adobe" marker segment, which specifies the color space transformation.
func (d *decoder) decodeAPP14() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length >= 12 && string(d.jpegData[d.pos:d.pos+5]) == "Adobe" {
		// The colorTransform byte is at offset 11.
		// 0: RGB (or Grayscale for 1-component)
		// 1: YCbCr
		// 2: YCCK
		switch d.jpegData[d.pos+11] {
		case 0:
			d.isRGB = true
		case 2:
			return fmt.Errorf("YCCK color transform: %w", ErrUnsupported)
		}
	}

	return d.skip(d.length)
}

// decodeSOF decodes the Start of Frame segment. It extracts image dimensions,
// number of components and their sampling factors, and sizes the coefficient
// grids. If configOnly is true, it doesn't allocate coefficient memory.
func (d *decoder) decodeSOF(configOnly bool) error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length < 9 {
		return ErrSyntax
	}

	if d.jpegData[d.pos] != 8 {
		return fmt.Errorf("%d-bit precision: %w", d.jpegData[d.pos], ErrUnsupported)
	}

	d.height = d.decode16(1)
	d.width = d.decode16(3)
	if d.width == 0 || d.height == 0 {
		return ErrSyntax
	}

	d.ncomp = int(d.jpegData[d.pos+5])
	if err := d.skip(6); err != nil {
		return err
	}

	switch d.ncomp {
	case 1, 3: // Grayscale or YCbCr/RGB
	default:
		return fmt.Errorf("%d components: %w", d.ncomp, ErrUnsupported)
	}

	if d.length < (d.ncomp * 3) {
		return ErrSyntax
	}

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.id = int(d.jpegData[d.pos])

		c.ssX = int(d.jpegData[d.pos+1]) >> 4
		if c.ssX == 0 || (c.ssX&(c.ssX-1)) != 0 {
			return ErrUnsupported // Sampling factor must be a power of two.
		}

		c.ssY = int(d.jpegData[d.pos+1]) & 15
		if c.ssY == 0 || (c.ssY&(c.ssY-1)) != 0 {
			return ErrUnsupported
		}

		c.qtSel = int(d.jpegData[d.pos+2])
		if (c.qtSel & 0xFC) != 0 {
			return ErrSyntax
		}

		if err := d.skip(3); err != nil {
			return err
		}

		d.qtUsed |= 1 << c.qtSel
		d.ssxMax = max(d.ssxMax, c.ssX)
		d.ssyMax = max(d.ssyMax, c.ssY)
	}

	if d.ncomp == 1 {
		// A single component is never interleaved, its factors are irrelevant.
		d.comp[0].ssX, d.comp[0].ssY = 1, 1
		d.ssxMax, d.ssyMax = 1, 1
	} else {
		if d.comp[0].id == 'R' && d.comp[1].id == 'G' && d.comp[2].id == 'B' {
			d.isRGB = true
		}

		// Every channel must be an integer upsampling of 1 or 2 away from the largest one.
		for i := 0; i < d.ncomp; i++ {
			c := &d.comp[i]
			hs, vs := d.ssxMax/c.ssX, d.ssyMax/c.ssY

			if hs > 2 || vs > 2 {
				y, cb, cr := &d.comp[0], &d.comp[1], &d.comp[2]

				return fmt.Errorf("unsupported sampling factors (Y:%dx%d, Cb:%dx%d, Cr:%dx%d): %w",
					y.ssX, y.ssY, cb.ssX, cb.ssY, cr.ssX, cr.ssY, ErrUnsupported)
			}
		}
	}

	// Calculate MCU dimensions and image dimensions in MCUs.
	d.mbSizeX = d.ssxMax << 3
	d.mbSizeY = d.ssyMax << 3
	d.mbWidth = (d.width + d.mbSizeX - 1) / d.mbSizeX
	d.mbHeight = (d.height + d.mbSizeY - 1) / d.mbSizeY

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.width = (d.width*c.ssX + d.ssxMax - 1) / d.ssxMax
		c.height = (d.height*c.ssY + d.ssyMax - 1) / d.ssyMax
		c.blocksW = d.mbWidth * c.ssX
		c.blocksH = d.mbHeight * c.ssY

		if !configOnly {
			n := c.blocksW * c.blocksH * 64
			if n <= 0 {
				return ErrOutOfMemory
			}

			c.coefs = make([]int16, n)
		}
	}

	if d.length > 0 {
		return d.skip(d.length)
	}

	return nil
}

// decodeDHT decodes the Define Huffman Table segment. It parses Huffman table
// specifications and builds fast lookup tables for entropy decoding.
func (d *decoder) decodeDHT() error {
	var counts [16]uint8
	if err := d.decodeLength(); err != nil {
		return err
	}

	for d.length >= 17 {
		i := int(d.jpegData[d.pos])
		if (i & 0xEC) != 0 {
			return ErrSyntax
		}

		// Table index: 0-3 for DC, 4-7 for AC.
		i = (i>>4)*4 + (i & 3)

		for codeLen := 1; codeLen <= 16; codeLen++ {
			counts[codeLen-1] = d.jpegData[d.pos+codeLen]
		}

		if err := d.skip(17); err != nil {
			return err
		}

		var n int
		for _, num := range counts {
			n += int(num)
		}

		if n > 256 || n > d.length {
			return ErrSyntax
		}

		// Build the lookup table using canonical Huffman codes.
		vlc := d.vlcTab[i]
		*vlc = [65536]vlcCode{}

		var huffCode uint32
		valueIdx := 0

		for codeLen := 1; codeLen <= 16; codeLen++ {
			numCodes := int(counts[codeLen-1])
			for k := 0; k < numCodes; k++ {
				huffVal := d.jpegData[d.pos+valueIdx]
				valueIdx++
				shift := 16 - codeLen
				numEntries := 1 << shift
				baseIndex := huffCode << shift

				for j := 0; j < numEntries; j++ {
					index := baseIndex + uint32(j)
					if index < 65536 {
						vlc[index].bits = uint8(codeLen)
						vlc[index].code = huffVal
					}
				}

				huffCode++
			}

			huffCode <<= 1
		}

		if err := d.skip(n); err != nil {
			return err
		}
	}

	if d.length != 0 {
		return ErrSyntax
	}

	return nil
}

// decodeDQT decodes the Define Quantization Table segment. Both 8-bit and
// 16-bit tables are accepted; values are stored in natural order.
func (d *decoder) decodeDQT() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	for d.length > 0 {
		pq := int(d.jpegData[d.pos]) >> 4
		i := int(d.jpegData[d.pos]) & 0x0F
		if pq > 1 || i > 3 {
			return ErrSyntax
		}

		n := 64 << pq
		if d.length < n+1 {
			return ErrSyntax
		}

		d.qtAvail |= 1 << i
		t := d.qtab[i]

		for j := 0; j < 64; j++ {
			var v uint16
			if pq == 0 {
				v = uint16(d.jpegData[d.pos+1+j])
			} else {
				v = uint16(d.decode16(1 + 2*j))
			}

			if v == 0 {
				return ErrSyntax
			}

			t[zz[j]] = v
		}

		if err := d.skip(n + 1); err != nil {
			return err
		}
	}

	return nil
}

// decodeDRI decodes the Define Restart Interval segment. This specifies how often
// restart markers are embedded in the scan data for error resilience.
func (d *decoder) decodeDRI() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length < 2 {
		return ErrSyntax
	}

	d.rstInterval = d.decode16(0)

	return d.skip(d.length)
}

// nextMarker advances to the next marker after an entropy coded segment.
func (d *decoder) nextMarker() {
	for d.size >= 2 {
		if d.jpegData[d.pos] == 0xFF {
			if b := d.jpegData[d.pos+1]; b != 0x00 && b != 0xFF {
				return
			}
		}

		d.pos++
		d.size--
	}

	// Nothing but trailing garbage.
	d.pos += d.size
	d.size = 0
}

// decode parses the JPEG stream from a byte slice and entropy decodes all scans
// into the component coefficient grids.
// If configOnly is true, it stops after reading the image metadata (SOF marker).
func (d *decoder) decode(jpegData []byte, configOnly bool) error {
	d.jpegData = jpegData
	d.pos = 0
	d.size = len(jpegData)
	d.orientation = 1 // Default orientation (Top-Left)

	// Check for SOI (Start of Image) marker.
	if d.size < 2 || d.jpegData[0] != 0xFF || d.jpegData[1] != 0xD8 {
		return ErrNoJPEG
	}

	if err := d.skip(2); err != nil {
		return err
	}

	var sofDecoded bool

markerLoop:
	for {
		if d.size < 2 {
			break markerLoop
		}

		if d.jpegData[d.pos] != 0xFF {
			return ErrSyntax
		}

		marker := d.jpegData[d.pos+1]
		if marker == 0xFF {
			// Fill byte before a marker.
			if err := d.skip(1); err != nil {
				return err
			}

			continue
		}

		if err := d.skip(2); err != nil {
			return err
		}

		switch {
		case marker == 0xC0 || marker == 0xC1 || marker == 0xC2: // SOF0, SOF1, SOF2
			if sofDecoded {
				return ErrSyntax // Only one frame per image.
			}

			d.progressive = marker == 0xC2
			if err := d.decodeSOF(configOnly); err != nil {
				return err
			}

			sofDecoded = true
			if configOnly {
				break markerLoop
			}
		case marker == 0xC4: // DHT (Define Huffman Table)
			if err := d.decodeDHT(); err != nil {
				return err
			}
		case marker >= 0xC3 && marker <= 0xCF: // Lossless, hierarchical and arithmetic frames.
			return fmt.Errorf("SOF marker 0x%02X: %w", marker, ErrUnsupported)
		case marker == 0xDB: // DQT (Define Quantization Table)
			if err := d.decodeDQT(); err != nil {
				return err
			}
		case marker == 0xDD: // DRI (Define Restart Interval)
			if err := d.decodeDRI(); err != nil {
				return err
			}
		case marker == 0xDA: // SOS (Start of Scan)
			if !sofDecoded {
				return ErrSyntax // Scan data found before SOF.
			}

			if err := d.decodeScan(); err != nil {
				return err
			}

			d.scans++
			d.nextMarker()
		case marker == 0xD9: // EOI (End of Image)
			break markerLoop
		case marker >= 0xD0 && marker <= 0xD7:
			// Stray RSTn outside a scan.
		case marker == 0xE1: // APP1 (EXIF)
			if err := d.decodeAPP1(); err != nil {
				return err
			}
		case marker == 0xEE: // APP14 (Adobe)
			if err := d.decodeAPP14(); err != nil {
				return err
			}
		case marker >= 0xE0 && marker <= 0xEF, marker == 0xFE, marker == 0xDC: // APPn, COM, DNL
			if err := d.skipMarker(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("marker 0x%02X: %w", marker, ErrUnsupported)
		}
	}

	if !sofDecoded {
		return ErrSyntax // No image configuration found.
	}

	if configOnly {
		return nil
	}

	if d.scans == 0 {
		return ErrSyntax
	}

	if (d.qtUsed &^ d.qtAvail) != 0 {
		return ErrSyntax
	}

	return nil
}

// coefficients converts the decoded components into optimizer channels.
func (d *decoder) coefficients() []*deblock.Coefficient {
	coefs := make([]*deblock.Coefficient, d.ncomp)

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		coefs[i] = deblock.NewCoefficient(c.blocksW*8, c.blocksH*8,
			d.ssxMax/c.ssX, d.ssyMax/c.ssY, c.coefs, *d.qtab[c.qtSel])
	}

	return coefs
}
