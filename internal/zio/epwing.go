package zio

import (
	"encoding/binary"
	"sort"

	"golang.org/x/xerrors"
)

// EPWING compression stores the text as huffman-coded 2048-byte pages. The
// first bytes of the file locate an index table and a frequency table: each
// 36-byte index entry holds a 4-byte base offset followed by sixteen 2-byte
// compressed-page lengths, covering sixteen consecutive pages. The huffman
// tree is rebuilt from the frequency table at open; EPWING6 widens the
// frequency values to four bytes.

const epwingIndexEntrySize = 36 // 4-byte base + 16 page lengths

type huffNode struct {
	leaf  bool
	value int // byte value, or epwingEOF
	freq  uint32
	left  *huffNode
	right *huffNode
}

const epwingEOF = 256

func (z *Zio) openEPWing() error {
	var header [16]byte
	if err := readFullAt(z.file, header[:], 0); err != nil {
		return ErrBadContainer
	}
	z.epwingIndexLocation = int64(binary.BigEndian.Uint32(header[0:4]))
	z.epwingIndexLength = int64(binary.BigEndian.Uint32(header[4:8]))
	frequenciesLocation := int64(binary.BigEndian.Uint32(header[8:12]))
	if z.epwingIndexLength == 0 || z.epwingIndexLength%epwingIndexEntrySize != 0 ||
		z.epwingIndexLocation+z.epwingIndexLength > z.physSize {
		return ErrBadContainer
	}
	z.sliceSize = Page
	z.fileSize = z.epwingIndexLength / epwingIndexEntrySize * 16 * Page

	freqWidth := 2
	if z.code == EPWing6 {
		freqWidth = 4
	}
	freqs := make([]byte, 256*freqWidth)
	if err := readFullAt(z.file, freqs, frequenciesLocation); err != nil {
		return ErrBadContainer
	}
	leaves := make([]*huffNode, 0, 257)
	for i := 0; i < 256; i++ {
		var f uint32
		if freqWidth == 2 {
			f = uint32(binary.BigEndian.Uint16(freqs[i*2:]))
		} else {
			f = binary.BigEndian.Uint32(freqs[i*4:])
		}
		leaves = append(leaves, &huffNode{leaf: true, value: i, freq: f})
	}
	leaves = append(leaves, &huffNode{leaf: true, value: epwingEOF, freq: 1})
	z.huffman = buildHuffman(leaves)
	return nil
}

// buildHuffman combines the two scarcest nodes until one root remains. Ties
// break on the earlier value so that the tree is identical across runs.
func buildHuffman(nodes []*huffNode) *huffNode {
	pending := make([]*huffNode, len(nodes))
	copy(pending, nodes)
	for len(pending) > 1 {
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].freq < pending[j].freq
		})
		a, b := pending[0], pending[1]
		merged := &huffNode{freq: a.freq + b.freq, left: a, right: b}
		pending = append([]*huffNode{merged}, pending[2:]...)
	}
	return pending[0]
}

func (z *Zio) readEPWing(p []byte) (int, error) {
	total := 0
	for len(p) > 0 && z.pos+int64(total) < z.fileSize {
		pos := z.pos + int64(total)
		pageStart := pos - pos%Page
		if err := z.loadEPWingPage(pageStart); err != nil {
			return total, err
		}
		n := copy(p, z.cache[pos-pageStart:])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (z *Zio) loadEPWingPage(start int64) error {
	if z.cachedAt == start {
		return nil
	}
	page := start / Page
	entry := page / 16
	sub := int(page % 16)
	var raw [epwingIndexEntrySize]byte
	if err := readFullAt(z.file, raw[:], z.epwingIndexLocation+entry*epwingIndexEntrySize); err != nil {
		return xerrors.Errorf("epwing index entry %d: %w", entry, ErrBadContainer)
	}
	location := int64(binary.BigEndian.Uint32(raw[0:4]))
	for i := 0; i < sub; i++ {
		location += int64(binary.BigEndian.Uint16(raw[4+i*2:]))
	}
	length := int(binary.BigEndian.Uint16(raw[4+sub*2:]))
	if length == 0 || location+int64(length) > z.physSize {
		return xerrors.Errorf("epwing page %d: %w", page, ErrBadContainer)
	}
	if cap(z.cache) < Page {
		z.cache = make([]byte, Page)
	}
	z.cache = z.cache[:Page]
	z.cachedAt = -1
	compressed := make([]byte, length)
	if err := readFullAt(z.file, compressed, location); err != nil {
		return xerrors.Errorf("epwing page %d: %w", page, ErrUnexpectedEOF)
	}
	if err := huffmanDecodePage(z.cache, compressed, z.huffman); err != nil {
		return xerrors.Errorf("epwing page %d: %w", page, err)
	}
	z.cachedAt = start
	return nil
}

// huffmanDecodePage walks the tree bit by bit, most significant bit first,
// until a full page is produced or the EOF leaf appears; the remainder of a
// short page is zero.
func huffmanDecodePage(out, in []byte, root *huffNode) error {
	outLen := 0
	bit := 0
	node := root
	for outLen < Page {
		if bit>>3 >= len(in) {
			return ErrBadContainer
		}
		if in[bit>>3]&(0x80>>uint(bit&7)) != 0 {
			node = node.right
		} else {
			node = node.left
		}
		bit++
		if node == nil {
			return ErrBadContainer
		}
		if !node.leaf {
			continue
		}
		if node.value == epwingEOF {
			break
		}
		out[outLen] = byte(node.value)
		outLen++
		node = root
	}
	for i := outLen; i < Page; i++ {
		out[i] = 0
	}
	return nil
}
