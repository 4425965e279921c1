// Package zio reads the physical files of EB/EPWING CD-ROM books through a
// uniform positioned-read interface, regardless of how the file is stored on
// disc: plain, ebzip (EBZIP1 container), EPWING compression, or the S-EBXA
// region embedded in some EB START files.
//
// Reads and seeks address the logical (decompressed) byte stream. Compressed
// kinds are inflated one slice at a time; the most recently decoded slice is
// kept so that sequential reads touch each slice once.
package zio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/xerrors"
)

const (
	// Page is the allocation unit of all EB/EPWING on-disc structures.
	Page = 2048

	// HeaderSize is the length of the fixed EBZIP1 file header.
	HeaderSize = 22

	// MaxLevel is the largest supported ebzip compression level. The slice
	// size at level n is Page << n.
	MaxLevel = 5

	// Margin is the headroom a compression buffer needs beyond the slice
	// size: zlib may grow incompressible input by a stream header, a
	// trailer and per-block overhead.
	Margin = 1024
)

// Kind identifies how a physical file is stored.
type Kind int

const (
	Plain Kind = iota
	EBZip1
	EPWing
	EPWing6
	SEBXA
)

// Invalid marks a file that is absent or whose storage could not be
// recognized.
const Invalid Kind = -1

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case EBZip1:
		return "ebzip"
	case EPWing:
		return "epwing"
	case EPWing6:
		return "epwing6"
	case SEBXA:
		return "sebxa"
	}
	return "invalid"
}

var (
	// ErrBadContainer reports a file whose header, slice index or length
	// does not form a consistent container.
	ErrBadContainer = errors.New("broken compression container")

	// ErrCRCMismatch reports decompressed data that disagrees with the
	// checksum stored in the container header.
	ErrCRCMismatch = errors.New("CRC error")

	// ErrUnexpectedEOF reports a file shorter than its declared size.
	ErrUnexpectedEOF = errors.New("unexpected EOF")
)

// Zio is one open physical file. It implements io.ReadSeeker over the
// logical byte stream.
type Zio struct {
	file       *os.File
	code       Kind
	fileSize   int64 // logical (decompressed) size
	physSize   int64
	sliceSize  int64
	indexWidth int
	zipLevel   int
	crc        uint32
	mtime      time.Time
	pos        int64

	// S-EBXA offsets, set by SetSEBXAMode after the index-page probe.
	sebxaIndexLocation int64
	sebxaIndexBase     int64
	sebxaStart         int64
	sebxaEnd           int64

	// EPWING compression tables.
	epwingIndexLocation int64
	epwingIndexLength   int64
	huffman             *huffNode

	cachedAt int64 // logical offset of the cached slice, -1 when empty
	cache    []byte
	sliceBuf []byte
}

// Open opens path read-only as the given storage kind and validates its
// header. For SEBXA the compression window is not known until the caller has
// probed the index page; until SetSEBXAMode the file reads as plain.
func Open(path string, code Kind) (*Zio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	z := &Zio{
		file:     f,
		code:     code,
		physSize: st.Size(),
		fileSize: st.Size(),
		mtime:    st.ModTime(),
		cachedAt: -1,
	}
	switch code {
	case Plain, SEBXA:
		// An S-EBXA file reads as plain until the caller has probed the
		// index page and attached the window via SetSEBXAMode; the probe
		// itself needs those raw reads.
		z.code = Plain
		z.sliceSize = Page
	case EBZip1:
		err = z.openEBZip1()
	case EPWing, EPWing6:
		err = z.openEPWing()
	default:
		err = xerrors.Errorf("%s: %w", path, ErrBadContainer)
	}
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return z, nil
}

func (z *Zio) openEBZip1() error {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(z.file, header[:]); err != nil {
		return ErrBadContainer
	}
	if string(header[0:5]) != "EBZip" {
		return ErrBadContainer
	}
	version := int(header[5] >> 4)
	level := int(header[5] & 0x0f)
	if (version != 1 && version != 2) || level > MaxLevel {
		return ErrBadContainer
	}
	z.zipLevel = level
	z.sliceSize = Page << level
	z.fileSize = int64(binary.BigEndian.Uint32(header[10:14]))
	if version == 2 {
		z.fileSize |= int64(header[9]) << 32
	}
	z.crc = binary.BigEndian.Uint32(header[14:18])
	z.mtime = time.Unix(int64(binary.BigEndian.Uint32(header[18:22])), 0)
	if version == 2 {
		z.indexWidth = 5
	} else {
		z.indexWidth = IndexWidth(z.fileSize)
	}
	slices := (z.fileSize + z.sliceSize - 1) / z.sliceSize
	indexEnd := HeaderSize + (slices+1)*int64(z.indexWidth)
	if indexEnd > z.physSize {
		return ErrBadContainer
	}
	return nil
}

// SetSEBXAMode attaches the offsets found by the S-EBXA index-page probe.
// The logical stream then ends at the last byte of the compression window;
// bytes below start are served verbatim and bytes inside the window are
// inflated slice by slice.
func (z *Zio) SetSEBXAMode(indexLocation, indexBase, start, end int64) {
	z.code = SEBXA
	z.sebxaIndexLocation = indexLocation
	z.sebxaIndexBase = indexBase
	z.sebxaStart = start
	z.sebxaEnd = end
	z.fileSize = end + 1
	z.sliceSize = Page
	z.cachedAt = -1
}

// Mode reports the storage kind the file is currently read as. A file opened
// as SEBXA reports Plain until SetSEBXAMode attaches its window.
func (z *Zio) Mode() Kind { return z.code }

// Size reports the logical (decompressed) size.
func (z *Zio) Size() int64 { return z.fileSize }

// Level reports the ebzip compression level; meaningful for EBZip1 only.
func (z *Zio) Level() int { return z.zipLevel }

// CRC reports the Adler-32 checksum stored in the EBZIP1 header.
func (z *Zio) CRC() uint32 { return z.crc }

// ModTime reports the modification time recorded for the file: the header
// stamp for EBZIP1, the filesystem stamp otherwise.
func (z *Zio) ModTime() time.Time { return z.mtime }

func (z *Zio) Close() error {
	if z.file == nil {
		return nil
	}
	err := z.file.Close()
	z.file = nil
	return err
}

// Seek positions the logical stream.
func (z *Zio) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = z.pos + offset
	case io.SeekEnd:
		pos = z.fileSize + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}
	z.pos = pos
	return pos, nil
}

// Read reads from the logical stream at the current position. At most the
// bytes up to the logical end of file are returned.
func (z *Zio) Read(p []byte) (int, error) {
	if z.pos >= z.fileSize {
		return 0, io.EOF
	}
	if max := z.fileSize - z.pos; int64(len(p)) > max {
		p = p[:max]
	}
	var (
		n   int
		err error
	)
	switch z.code {
	case Plain:
		n, err = z.file.ReadAt(p, z.pos)
	case EBZip1:
		n, err = z.readEBZip1(p)
	case SEBXA:
		n, err = z.readSEBXA(p)
	case EPWing, EPWing6:
		n, err = z.readEPWing(p)
	default:
		return 0, ErrBadContainer
	}
	z.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (z *Zio) readEBZip1(p []byte) (int, error) {
	total := 0
	for len(p) > 0 && z.pos+int64(total) < z.fileSize {
		pos := z.pos + int64(total)
		sliceStart := pos - pos%z.sliceSize
		if err := z.loadEBZip1Slice(sliceStart); err != nil {
			return total, err
		}
		n := copy(p, z.cache[pos-sliceStart:])
		total += n
		p = p[n:]
	}
	return total, nil
}

// loadEBZip1Slice decodes the slice containing logical offset start (a
// multiple of the slice size) into the cache.
func (z *Zio) loadEBZip1Slice(start int64) error {
	if z.cachedAt == start {
		return nil
	}
	slice := start / z.sliceSize
	var entry [10]byte
	w := int64(z.indexWidth)
	if err := readFullAt(z.file, entry[:2*w], HeaderSize+slice*w); err != nil {
		return xerrors.Errorf("slice index %d: %w", slice, ErrBadContainer)
	}
	from := readIndexEntry(entry[:w], z.indexWidth)
	to := readIndexEntry(entry[w:2*w], z.indexWidth)
	if from > to || to-from > z.sliceSize || to > z.physSize {
		return xerrors.Errorf("slice index %d: %w", slice, ErrBadContainer)
	}
	if cap(z.cache) < int(z.sliceSize) {
		z.cache = make([]byte, z.sliceSize)
		z.sliceBuf = make([]byte, z.sliceSize)
	}
	z.cache = z.cache[:z.sliceSize]
	z.cachedAt = -1
	raw := z.sliceBuf[:to-from]
	if err := readFullAt(z.file, raw, from); err != nil {
		return xerrors.Errorf("slice %d: %w", slice, ErrUnexpectedEOF)
	}
	// A slice is stored verbatim when compression did not shrink it; the
	// writer only records a compressed slice strictly smaller than the
	// slice size.
	if int64(len(raw)) == z.sliceSize {
		copy(z.cache, raw)
	} else if err := DecompressSlice(z.cache, raw); err != nil {
		return xerrors.Errorf("slice %d: %w", slice, err)
	}
	z.cachedAt = start
	return nil
}

// readFullAt reads exactly len(b) bytes at off. Unlike a bare ReadAt it
// treats a full read that touches end of file as success.
func readFullAt(f *os.File, b []byte, off int64) error {
	n, err := f.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// IndexWidth reports the per-entry width in bytes of an EBZIP1 slice index
// for a file of the given logical size.
func IndexWidth(fileSize int64) int {
	switch {
	case fileSize < 1<<16:
		return 2
	case fileSize < 1<<24:
		return 3
	case fileSize < 1<<32:
		return 4
	}
	return 5
}

// Version reports the EBZIP1 header version for a file of the given logical
// size.
func Version(fileSize int64) int {
	if fileSize < 1<<32 {
		return 1
	}
	return 2
}

// PutIndexEntry encodes one big-endian slice-index entry of the given width.
func PutIndexEntry(b []byte, width int, value int64) {
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(value)
		value >>= 8
	}
}

func readIndexEntry(b []byte, width int) int64 {
	var v int64
	for i := 0; i < width; i++ {
		v = v<<8 | int64(b[i])
	}
	return v
}

// EncodeHeader fills a 22-byte EBZIP1 header.
func EncodeHeader(b []byte, level int, fileSize int64, crc uint32, mtime time.Time) {
	copy(b[0:5], "EBZip")
	b[5] = byte(Version(fileSize)<<4) | byte(level&0x0f)
	b[6], b[7], b[8] = 0, 0, 0
	b[9] = byte(fileSize >> 32)
	binary.BigEndian.PutUint32(b[10:14], uint32(fileSize))
	binary.BigEndian.PutUint32(b[14:18], crc)
	binary.BigEndian.PutUint32(b[18:22], uint32(mtime.Unix()))
}
