package dejpeg

import (
	"testing"
)

// tiffWithOrientation builds a TIFF header whose first IFD holds a filler tag and the orientation tag.
func tiffWithOrientation(bigEndian bool, typ uint16, orientation uint16) []byte {
	put16 := func(b []byte, v uint16) {
		if bigEndian {
			b[0], b[1] = byte(v>>8), byte(v)
		} else {
			b[0], b[1] = byte(v), byte(v>>8)
		}
	}

	put32 := func(b []byte, v uint32) {
		if bigEndian {
			b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
		} else {
			b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
		}
	}

	data := make([]byte, 8+2+2*12+4)
	if bigEndian {
		copy(data, "MM")
	} else {
		copy(data, "II")
	}

	put16(data[2:], 42)
	put32(data[4:], 8)
	put16(data[8:], 2)

	// ImageWidth.
	put16(data[10:], 0x0100)
	put16(data[12:], typeUnsignedShort)
	put32(data[14:], 1)
	put16(data[18:], 640)

	put16(data[22:], tagOrientation)
	put16(data[24:], typ)
	put32(data[26:], 1)
	put16(data[30:], orientation)

	return data
}

// TestExifOrientation covers both byte orders and malformed payloads.
func TestExifOrientation(t *testing.T) {
	valid := tiffWithOrientation(false, typeUnsignedShort, 8)

	badIFD := append([]byte(nil), valid...)
	badIFD[4] = 200

	testCases := []struct {
		name string
		data []byte
		want int
	}{
		{"LittleEndian", valid, 8},
		{"BigEndian", tiffWithOrientation(true, typeUnsignedShort, 3), 3},
		{"OutOfRange", tiffWithOrientation(false, typeUnsignedShort, 9), 0},
		{"WrongType", tiffWithOrientation(true, 4, 6), 0},
		{"BadByteOrder", append([]byte("XX"), valid[2:]...), 0},
		{"BadMagic", append([]byte{'I', 'I', 43, 0}, valid[4:]...), 0},
		{"BadIFDOffset", badIFD, 0},
		{"Truncated", valid[:24], 0},
		{"Short", []byte("II*"), 0},
		{"Empty", nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exifOrientation(tc.data); got != tc.want {
				t.Errorf("Got orientation %d, want %d", got, tc.want)
			}
		})
	}
}
