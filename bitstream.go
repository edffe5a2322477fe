package dejpeg

// Bitstream handling

// fill tops up the bit buffer to more than 56 bits. It handles JPEG byte
// stuffing (0xFF00) and stops at the first marker; from then on, and at the end
// of the data, the buffer is padded with zero bytes. Truncated scans therefore
// decode as if the missing data were zero.
func (d *decoder) fill() {
	for d.bufBits <= 56 {
		var b byte

		if !d.markerHit && d.size > 0 {
			b = d.jpegData[d.pos]

			if b == 0xFF && d.size > 1 {
				if d.jpegData[d.pos+1] == 0x00 {
					// Stuffed 0xFF00: consume the 0x00 and treat 0xFF as data.
					d.pos += 2
					d.size -= 2
				} else {
					// Marker: leave it for the marker parser.
					d.markerHit = true
					b = 0
				}
			} else {
				d.pos++
				d.size--
			}
		} else {
			d.markerHit = true
		}

		d.buf = (d.buf << 8) | uint64(b)
		d.bufBits += 8
	}
}

// showBits returns the next 'bits' (at most 16) bits without consuming them.
func (d *decoder) showBits(bits int) int {
	if d.bufBits < bits {
		d.fill()
	}

	return int((d.buf >> (d.bufBits - bits)) & ((1 << bits) - 1))
}

// skipBits consumes 'bits' bits that were made available by showBits.
func (d *decoder) skipBits(bits int) {
	d.bufBits -= bits
}

// getBits reads and consumes 'bits' number of bits from the bitstream.
func (d *decoder) getBits(bits int) int {
	if bits == 0 {
		return 0
	}

	res := d.showBits(bits)
	d.bufBits -= bits

	return res
}

// getBit reads a single bit from the bitstream. Used for successive approximation.
func (d *decoder) getBit() int {
	if d.bufBits == 0 {
		d.fill()
	}

	d.bufBits--

	return int((d.buf >> d.bufBits) & 1)
}

// receiveExtend reads a magnitude of 'bits' bits and sign-extends it (JPEG F.2.2.1).
func (d *decoder) receiveExtend(bits int) int {
	if bits == 0 {
		return 0
	}

	value := d.getBits(bits)
	if value < (1 << (bits - 1)) {
		value += ((-1) << bits) + 1
	}

	return value
}

// resetBits discards the bit buffer, e.g. at the start of a scan or a restart interval.
func (d *decoder) resetBits() {
	d.buf = 0
	d.bufBits = 0
	d.markerHit = false
}
