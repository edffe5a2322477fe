package dejpeg

const (
	tagOrientation    = 0x0112
	typeUnsignedShort = 3
)

// exifReader wraps the TIFF structure of an EXIF payload and reads integers
// in its byte order. Out of range reads return 0.
type exifReader struct {
	data         []byte
	littleEndian bool
}

func (r *exifReader) uint16(offset int) uint16 {
	if offset < 0 || offset+1 >= len(r.data) {
		return 0
	}

	if r.littleEndian {
		return uint16(r.data[offset]) | (uint16(r.data[offset+1]) << 8)
	}

	return (uint16(r.data[offset]) << 8) | uint16(r.data[offset+1])
}

func (r *exifReader) uint32(offset int) uint32 {
	if offset < 0 || offset+3 >= len(r.data) {
		return 0
	}

	if r.littleEndian {
		return uint32(r.data[offset]) | (uint32(r.data[offset+1]) << 8) |
			(uint32(r.data[offset+2]) << 16) | (uint32(r.data[offset+3]) << 24)
	}

	return (uint32(r.data[offset]) << 24) | (uint32(r.data[offset+1]) << 16) |
		(uint32(r.data[offset+2]) << 8) | uint32(r.data[offset+3])
}

// exifOrientation returns the orientation tag (1-8) of the first IFD of a
// TIFF header, or 0 if it is missing or invalid.
func exifOrientation(data []byte) int {
	if len(data) < 8 {
		return 0
	}

	r := &exifReader{data: data}

	switch {
	case data[0] == 'I' && data[1] == 'I':
		r.littleEndian = true
	case data[0] == 'M' && data[1] == 'M':
	default:
		return 0
	}

	if r.uint16(2) != 42 {
		return 0
	}

	ifd := r.uint32(4)
	if ifd < 8 || uint64(ifd)+2 > uint64(len(data)) {
		return 0
	}

	offset := int(ifd)
	numEntries := int(r.uint16(offset))
	offset += 2

	for i := 0; i < numEntries; i++ {
		entry := offset + i*12
		if entry+11 >= len(data) {
			break
		}

		if r.uint16(entry) != tagOrientation {
			continue
		}

		if r.uint16(entry+2) != typeUnsignedShort || r.uint32(entry+4) != 1 {
			return 0
		}

		if o := int(r.uint16(entry + 8)); o >= 1 && o <= 8 {
			return o
		}

		return 0
	}

	return 0
}
