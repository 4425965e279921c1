package zio

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// S-EBXA embeds a compressed region inside an otherwise plain START file.
// Bytes below the window start are stored verbatim at their logical offsets.
// Inside the window the text is cut into 2048-byte slices; a table of 4-byte
// big-endian entries at sebxaIndexLocation maps each slice to its physical
// offset relative to sebxaIndexBase. Slices use an LZSS scheme, not deflate.

func (z *Zio) readSEBXA(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		pos := z.pos + int64(total)
		if pos >= z.fileSize {
			break
		}
		if pos < z.sebxaStart {
			// Plain zone in front of the compression window.
			max := z.sebxaStart - pos
			chunk := p
			if int64(len(chunk)) > max {
				chunk = chunk[:max]
			}
			n, err := z.file.ReadAt(chunk, pos)
			total += n
			if err != nil {
				return total, err
			}
			p = p[n:]
			continue
		}
		sliceStart := pos - (pos-z.sebxaStart)%Page
		if err := z.loadSEBXASlice(sliceStart); err != nil {
			return total, err
		}
		n := copy(p, z.cache[pos-sliceStart:])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (z *Zio) loadSEBXASlice(start int64) error {
	if z.cachedAt == start {
		return nil
	}
	slice := (start - z.sebxaStart) / Page
	var entry [4]byte
	if err := readFullAt(z.file, entry[:], z.sebxaIndexLocation+slice*4); err != nil {
		return xerrors.Errorf("sebxa slice index %d: %w", slice, ErrBadContainer)
	}
	location := z.sebxaIndexBase + int64(binary.BigEndian.Uint32(entry[:]))
	if cap(z.cache) < Page {
		z.cache = make([]byte, Page)
	}
	z.cache = z.cache[:Page]
	z.cachedAt = -1
	if err := z.unzipSEBXASlice(z.cache, location); err != nil {
		return xerrors.Errorf("sebxa slice %d: %w", slice, err)
	}
	z.cachedAt = start
	return nil
}

// unzipSEBXASlice inflates the 2048-byte slice stored at the given physical
// offset. The stream is a sequence of tag bytes each followed by 8 items,
// bit i of the tag (LSB first) selecting the item form: set for a literal
// byte, clear for a 2-byte copy reference. A reference packs a 12-bit
// absolute offset into the output slice (high nibble of the first byte
// shifted, plus the second byte) and a length of the low nibble plus 3;
// positions not yet produced read as zero.
func (z *Zio) unzipSEBXASlice(out []byte, location int64) error {
	// A compressed slice never outgrows its page by more than the tag
	// overhead, so two pages of lookahead always cover one slice.
	var in [2 * Page]byte
	inLen, err := z.file.ReadAt(in[:], location)
	if inLen <= 0 && err != nil {
		return ErrUnexpectedEOF
	}
	inPos := 0
	outLen := 0
	for outLen < Page {
		if inPos >= inLen {
			return ErrUnexpectedEOF
		}
		tag := in[inPos]
		inPos++
		for bit := 0; bit < 8 && outLen < Page; bit++ {
			if tag&(1<<uint(bit)) != 0 {
				if inPos >= inLen {
					return ErrUnexpectedEOF
				}
				out[outLen] = in[inPos]
				inPos++
				outLen++
				continue
			}
			if inPos+2 > inLen {
				return ErrUnexpectedEOF
			}
			c0, c1 := in[inPos], in[inPos+1]
			inPos += 2
			copyOffset := int(c0&0xf0)<<4 | int(c1)
			copyLength := int(c0&0x0f) + 3
			if outLen+copyLength > Page {
				copyLength = Page - outLen
			}
			for j := 0; j < copyLength; j++ {
				if copyOffset < outLen {
					out[outLen] = out[copyOffset]
				} else {
					out[outLen] = 0
				}
				outLen++
				copyOffset++
			}
		}
	}
	return nil
}
