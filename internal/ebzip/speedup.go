package ebzip

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// maxSpeedupRegions bounds how many stored-uncompressed regions one HONMON
// or START file may declare.
const maxSpeedupRegions = 3

type speedupRegion struct {
	startPage int
	endPage   int
}

// Speedup marks the page regions of a text file that readers scan linearly
// and that therefore must be stored rather than deflated, whatever the
// compression level.
type Speedup struct {
	regions []speedupRegion
}

// SetZipSpeedup reads the index page of the text file and records up to
// three regions flagged by index codes 0x90..0x92: each names its first
// page; the page count sits in byte 3 of that first page.
func (s *Speedup) SetZipSpeedup(path string, code zio.Kind, indexPage int) error {
	s.regions = s.regions[:0]

	z, err := zio.Open(path, code)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	defer z.Close()

	var page [zio.Page]byte
	if _, err := z.Seek(int64(indexPage-1)*zio.Page, io.SeekStart); err != nil {
		return xerrors.Errorf("failed to read the file %s: %w", path, err)
	}
	if _, err := io.ReadFull(z, page[:]); err != nil {
		return xerrors.Errorf("failed to read the file %s: %w", path, err)
	}

	indexCount := int(page[1])
	for i := 0; i < indexCount && 16+(i+1)*16 <= len(page); i++ {
		entry := page[16+i*16:]
		if entry[0] < 0x90 || entry[0] > 0x92 {
			continue
		}
		if len(s.regions) >= maxSpeedupRegions {
			break
		}
		s.regions = append(s.regions, speedupRegion{
			startPage: int(binary.BigEndian.Uint32(entry[2:6])),
		})
	}

	for i := range s.regions {
		start := s.regions[i].startPage
		if _, err := z.Seek(int64(start-1)*zio.Page, io.SeekStart); err != nil {
			return xerrors.Errorf("failed to read the file %s: %w", path, err)
		}
		if _, err := io.ReadFull(z, page[:]); err != nil {
			return xerrors.Errorf("failed to read the file %s: %w", path, err)
		}
		s.regions[i].endPage = start + int(page[3]) - 1
	}
	return nil
}

// IsSpeedupSlice reports whether the slice at the given compression level
// overlaps any recorded region. A slice covers pages
// [slice*2^level+1, (slice+1)*2^level].
func (s *Speedup) IsSpeedupSlice(slice, level int) bool {
	startPage := slice*(1<<uint(level)) + 1
	endPage := (slice + 1) * (1 << uint(level))
	for _, region := range s.regions {
		if startPage <= region.startPage && region.startPage <= endPage {
			return true
		}
		if startPage <= region.endPage && region.endPage <= endPage {
			return true
		}
		if region.startPage <= startPage && endPage <= region.endPage {
			return true
		}
	}
	return false
}
