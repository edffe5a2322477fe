package dejpeg

// Entropy Decoding

// decodeHuffman decodes a single Huffman symbol using the pre-built lookup table.
func (d *decoder) decodeHuffman(vlc *[65536]vlcCode) int {
	entry := vlc[d.showBits(16)]
	if entry.bits == 0 {
		d.panic(ErrSyntax) // Invalid Huffman code.
	}

	d.skipBits(int(entry.bits))

	return int(entry.code)
}

// getVLC decodes a Huffman symbol followed by its magnitude bits and returns
// the sign-extended value. The symbol is stored in code if it is not nil.
func (d *decoder) getVLC(vlc *[65536]vlcCode, code *uint8) int {
	value16 := d.showBits(16)

	entry := vlc[value16]
	huffBits := int(entry.bits)
	if huffBits == 0 {
		d.panic(ErrSyntax)
	}

	if code != nil {
		*code = entry.code
	}

	valBits := int(entry.code & 15)
	if valBits == 0 {
		// EOB, ZRL or a zero DC difference.
		d.skipBits(huffBits)

		return 0
	}

	totalBits := huffBits + valBits

	// Fast path: code and value are both in the buffer.
	if d.bufBits >= totalBits {
		shift := d.bufBits - totalBits
		value := int((d.buf >> shift) & ((uint64(1) << valBits) - 1))
		d.bufBits -= totalBits

		if value < (1 << (valBits - 1)) {
			value += ((-1) << valBits) + 1
		}

		return value
	}

	d.skipBits(huffBits)

	return d.receiveExtend(valBits)
}

// scanHeader describes the parameters of one SOS segment.
type scanHeader struct {
	comps  []*component
	ss, se int // Spectral selection.
	ah, al int // Successive approximation.
}

// decodeScan decodes one scan. It parses the SOS header and dispatches to the
// baseline or progressive block decoder.
// Handles panics from the hot path.
func (d *decoder) decodeScan() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				err = de.error
			} else {
				panic(r)
			}
		}
	}()

	h, err := d.decodeSOS()
	if err != nil {
		return err
	}

	d.resetBits()
	d.eobRun = 0

	for _, c := range h.comps {
		c.dcPred = 0
	}

	var block func(c *component, blk []int16)

	switch {
	case !d.progressive:
		block = d.decodeBlock
	case h.ss == 0 && h.ah == 0:
		block = func(c *component, blk []int16) { d.decodeDCFirst(c, blk, h.al) }
	case h.ss == 0:
		block = func(c *component, blk []int16) { d.decodeDCRefine(blk, h.al) }
	case h.ah == 0:
		block = func(c *component, blk []int16) { d.decodeACFirst(c, blk, h.ss, h.se, h.al) }
	default:
		block = func(c *component, blk []int16) { d.decodeACRefine(c, blk, h.ss, h.se, h.al) }
	}

	if len(h.comps) == 1 {
		d.decodeNonInterleaved(h.comps[0], block)
	} else {
		d.decodeInterleaved(h.comps, block)
	}

	return nil
}

// decodeSOS parses and validates the Start of Scan header.
func (d *decoder) decodeSOS() (scanHeader, error) {
	var h scanHeader

	if err := d.decodeLength(); err != nil {
		return h, err
	}

	nCompScan := int(d.jpegData[d.pos])
	if d.length < (4+2*nCompScan) || nCompScan < 1 || nCompScan > d.ncomp {
		return h, ErrSyntax
	}

	if err := d.skip(1); err != nil {
		return h, err
	}

	for i := 0; i < nCompScan; i++ {
		scanID := int(d.jpegData[d.pos])

		var c *component
		for j := 0; j < d.ncomp; j++ {
			if d.comp[j].id == scanID {
				c = &d.comp[j]

				break
			}
		}

		if c == nil {
			return h, ErrSyntax
		}

		c.dcTabSel = int(d.jpegData[d.pos+1]) >> 4
		c.acTabSel = int(d.jpegData[d.pos+1]) & 0x0F
		if c.dcTabSel > 3 || c.acTabSel > 3 {
			return h, ErrSyntax
		}

		h.comps = append(h.comps, c)

		if err := d.skip(2); err != nil {
			return h, err
		}
	}

	h.ss = int(d.jpegData[d.pos])
	h.se = int(d.jpegData[d.pos+1])
	h.ah = int(d.jpegData[d.pos+2]) >> 4
	h.al = int(d.jpegData[d.pos+2]) & 0x0F

	if err := d.skip(d.length); err != nil {
		return h, err
	}

	if !d.progressive {
		if h.ss != 0 || h.se != 63 || h.ah != 0 || h.al != 0 {
			return h, ErrUnsupported
		}

		return h, nil
	}

	if h.ss > h.se || h.se > 63 || h.ah > 13 || h.al > 13 {
		return h, ErrSyntax
	}

	if h.ss == 0 {
		if h.se != 0 {
			return h, ErrSyntax
		}
	} else if nCompScan > 1 {
		return h, ErrSyntax // AC scans must be non-interleaved.
	}

	return h, nil
}

// decodeInterleaved walks the MCUs of an interleaved scan.
func (d *decoder) decodeInterleaved(comps []*component, block func(*component, []int16)) {
	total := d.mbWidth * d.mbHeight
	mcu := 0

	for mby := 0; mby < d.mbHeight; mby++ {
		for mbx := 0; mbx < d.mbWidth; mbx++ {
			for _, c := range comps {
				for sby := 0; sby < c.ssY; sby++ {
					for sbx := 0; sbx < c.ssX; sbx++ {
						i := ((mby*c.ssY+sby)*c.blocksW + mbx*c.ssX + sbx) * 64
						block(c, c.coefs[i:i+64:i+64])
					}
				}
			}

			mcu++
			d.checkRestart(mcu, total, comps)
		}
	}
}

// decodeNonInterleaved walks the blocks of a single-component scan. Only the
// blocks covering the component are coded; MCU padding blocks stay zero.
func (d *decoder) decodeNonInterleaved(c *component, block func(*component, []int16)) {
	bw := (c.width + 7) / 8
	bh := (c.height + 7) / 8
	total := bw * bh
	n := 0

	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			i := (by*c.blocksW + bx) * 64
			block(c, c.coefs[i:i+64:i+64])

			n++
			d.checkRestart(n, total, []*component{c})
		}
	}
}

// checkRestart processes a restart marker after 'done' of 'total' units when an interval ends.
func (d *decoder) checkRestart(done, total int, comps []*component) {
	if d.rstInterval == 0 || done >= total || done%d.rstInterval != 0 {
		return
	}

	// The marker follows the byte-aligned data, which never crosses it.
	d.resetBits()

	expected := byte(0xD0 + (done/d.rstInterval-1)&7)

	if d.size < 2 || d.jpegData[d.pos] != 0xFF || d.jpegData[d.pos+1] != expected {
		d.nextMarker()

		if d.size < 2 || d.jpegData[d.pos+1]&0xF8 != 0xD0 {
			// Data ends early; the remaining units decode from zero padding.
			d.markerHit = true

			return
		}

		if d.jpegData[d.pos+1] != expected {
			d.panic(ErrSyntax)
		}
	}

	d.pos += 2
	d.size -= 2

	for _, c := range comps {
		c.dcPred = 0
	}

	d.eobRun = 0
}

// decodeBlock decodes the quantized coefficients of a single baseline block.
func (d *decoder) decodeBlock(c *component, blk []int16) {
	var code uint8

	dcVLC := d.vlcTab[c.dcTabSel]
	acVLC := d.vlcTab[4+c.acTabSel]

	c.dcPred += d.getVLC(dcVLC, nil)
	blk[0] = int16(c.dcPred)

	// coef is the zigzag index.
	for coef := 1; coef <= 63; {
		value := d.getVLC(acVLC, &code)

		if code == 0 { // EOB (End of Block)
			break
		}

		if (code & 0x0F) == 0 {
			if code != 0xF0 { // ZRL (Zero Run Length)
				d.panic(ErrSyntax)
			}

			coef += 16

			continue
		}

		coef += int(code >> 4) // Skip run of zeros.
		if coef > 63 {
			d.panic(ErrSyntax)
		}

		blk[zz[coef]] = int16(value)
		coef++
	}
}

// decodeDCFirst decodes the first pass of a progressive DC scan.
func (d *decoder) decodeDCFirst(c *component, blk []int16, al int) {
	c.dcPred += d.getVLC(d.vlcTab[c.dcTabSel], nil)
	blk[0] = int16(c.dcPred << al)
}

// decodeDCRefine adds one refinement bit to the DC coefficient.
func (d *decoder) decodeDCRefine(blk []int16, al int) {
	if d.getBit() != 0 {
		blk[0] |= int16(1 << al)
	}
}

// decodeACFirst decodes the first pass of a progressive AC scan over the band [ss, se].
func (d *decoder) decodeACFirst(c *component, blk []int16, ss, se, al int) {
	if d.eobRun > 0 {
		d.eobRun--

		return
	}

	var code uint8
	acVLC := d.vlcTab[4+c.acTabSel]

	for k := ss; k <= se; {
		value := d.getVLC(acVLC, &code)
		r := int(code >> 4)

		if code&0x0F == 0 {
			if r == 15 { // ZRL
				k += 16

				continue
			}

			// EOBn: this block and the next (1<<r)+bits-1 ones end here.
			d.eobRun = (1 << r) - 1
			if r > 0 {
				d.eobRun += d.getBits(r)
			}

			return
		}

		k += r
		if k > se {
			d.panic(ErrSyntax)
		}

		blk[zz[k]] = int16(value * (1 << al))
		k++
	}
}

// decodeACRefine decodes a refinement pass of a progressive AC scan (JPEG G.1.2.3).
func (d *decoder) decodeACRefine(c *component, blk []int16, ss, se, al int) {
	delta := int16(1 << al)
	k := ss

	if d.eobRun == 0 {
		acVLC := d.vlcTab[4+c.acTabSel]

	loop:
		for k <= se {
			var z int16

			code := d.decodeHuffman(acVLC)
			r := code >> 4

			switch code & 0x0F {
			case 0:
				if r != 15 {
					d.eobRun = 1 << r
					if r > 0 {
						d.eobRun += d.getBits(r)
					}

					break loop
				}
			case 1:
				z = delta
				if d.getBit() == 0 {
					z = -z
				}
			default:
				d.panic(ErrSyntax)
			}

			k = d.refineNonZeroes(blk, k, se, r, delta)
			if k > se {
				d.panic(ErrSyntax)
			}

			if z != 0 {
				blk[zz[k]] = z
			}

			k++
		}
	}

	if d.eobRun > 0 {
		d.eobRun--
		d.refineNonZeroes(blk, k, se, -1, delta)
	}
}

// refineNonZeroes refines the non-zero coefficients of the band starting at k
// and stops on the (nz+1)-th zero coefficient, whose index it returns.
// With nz < 0 the whole band is refined.
func (d *decoder) refineNonZeroes(blk []int16, k, se, nz int, delta int16) int {
	for ; k <= se; k++ {
		u := zz[k]

		if blk[u] == 0 {
			if nz == 0 {
				break
			}

			nz--

			continue
		}

		if d.getBit() == 0 {
			continue
		}

		if blk[u] >= 0 {
			blk[u] += delta
		} else {
			blk[u] -= delta
		}
	}

	return k
}
