package ebzip

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// SEBXAIndexes are the byte offsets a START file's index page declares for
// its embedded compression region.
type SEBXAIndexes struct {
	IndexLocation int64 // slice-index table (entry code 0x22)
	IndexBase     int64 // base the table entries are relative to (0x21)
	ZioStart      int64 // first logical byte of the compression window (0x00)
	ZioEnd        int64 // last logical byte of the compression window (0x00)
}

// GetSEBXAIndexes parses the index page of a START file. Each 16-byte entry
// starting at offset 16 holds a code byte, a big-endian first page at bytes
// 2..5 and a page count at bytes 6..9. The probe is read-only.
func GetSEBXAIndexes(path string, indexPage int) (SEBXAIndexes, error) {
	var indexes SEBXAIndexes
	if indexPage == 0 {
		indexPage = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return indexes, xerrors.Errorf("failed to open the file: %w", err)
	}
	defer f.Close()

	var page [zio.Page]byte
	if n, _ := f.ReadAt(page[:], int64(indexPage-1)*zio.Page); n != len(page) {
		return indexes, xerrors.Errorf("%s: %w", path, zio.ErrUnexpectedEOF)
	}
	indexCount := int(page[1])
	for i := 0; i < indexCount && 16+(i+1)*16 <= len(page); i++ {
		entry := page[16+i*16:]
		pageNo := int64(binary.BigEndian.Uint32(entry[2:6]))
		pageCount := int64(binary.BigEndian.Uint32(entry[6:10]))
		switch entry[0] {
		case 0x00:
			indexes.ZioStart = (pageNo - 1) * zio.Page
			indexes.ZioEnd = (pageNo+pageCount-1)*zio.Page - 1
		case 0x21:
			indexes.IndexBase = (pageNo - 1) * zio.Page
		case 0x22:
			indexes.IndexLocation = (pageNo - 1) * zio.Page
		}
	}
	return indexes, nil
}

// RewriteSEBXAStart compacts the index page of a decompressed START file in
// place, dropping the 0x21 and 0x22 entries that described the embedded
// compression region which no longer exists. It must run after the
// decompressed body has been written.
func (r *Run) RewriteSEBXAStart(path string, indexPage int) error {
	if indexPage == 0 {
		indexPage = 1
	}
	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "==> rewrite %s <==\n", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	defer f.Close()

	var page [zio.Page]byte
	pageLocation := int64(indexPage-1) * zio.Page
	if n, _ := f.ReadAt(page[:], pageLocation); n != len(page) {
		return xerrors.Errorf("%s: %w", path, zio.ErrUnexpectedEOF)
	}

	indexCount := int(page[1])
	removed := 0
	out := 16
	for i := 0; i < indexCount && 16+(i+1)*16 <= len(page); i++ {
		in := 16 + i*16
		if page[in] == 0x21 || page[in] == 0x22 {
			removed++
			continue
		}
		if in != out {
			copy(page[out:out+16], page[in:in+16])
		}
		out += 16
	}
	for i := 0; i < removed; i++ {
		for j := 0; j < 16; j++ {
			page[out+j] = 0
		}
		out += 16
	}
	page[1] = byte(indexCount - removed)

	if _, err := f.WriteAt(page[:], pageLocation); err != nil {
		return xerrors.Errorf("failed to write the file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("failed to write the file %s: %w", path, err)
	}

	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "completed (%d / %d bytes)\n\n", zio.Page, zio.Page)
	}
	return nil
}
