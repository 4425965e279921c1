// Package book binds an EB or EPWING CD-ROM book directory and enumerates
// the physical files of its subbooks: catalog geometry, directory layout,
// font files, and the storage kind each file currently uses. It is the
// subset of an EB reader library that a compression tool needs.
package book

import (
	"encoding/binary"
	"io"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// DiscKind tells the two generations of books apart; it is determined
// solely by which catalog file is present.
type DiscKind int

const (
	DiscEB DiscKind = iota
	DiscEPWing
)

func (d DiscKind) String() string {
	if d == DiscEB {
		return "EB"
	}
	return "EPWING"
}

// Catalog geometry shared with ebrefile.
const (
	MaxSubbooks        = 50
	MaxDirectoryLength = 8
	ebTitleLength      = 30
	epwingTitleLength  = 80

	// CatalogSizeEB and CatalogSizeEPWing are the per-subbook record sizes
	// of CATALOG and CATALOGS files.
	CatalogSizeEB     = 40
	CatalogSizeEPWing = 164
)

// Book is a bound book directory.
type Book struct {
	Path        string
	DiscKind    DiscKind
	CatalogFile string // on-disk name of CATALOG / CATALOGS
	Subbooks    []*Subbook
}

// Subbook describes one title within a book and the physical files that
// belong to it. File fields hold on-disk names (empty when absent); Kind
// fields hold the storage probe result for the corresponding file.
type Subbook struct {
	Title     string
	Directory string // on-disk directory name, <= 8 bytes
	IndexPage int    // START index page (EB); 1 for EPWING

	// EB
	TextFile string
	TextKind zio.Kind

	// EPWING
	DataDir     string
	GaijiDir    string
	MovieDir    string
	SoundFile   string
	SoundKind   zio.Kind
	GraphicFile string
	GraphicKind zio.Kind
	NarrowFonts []Font
	WideFonts   []Font
}

// Font is one gaiji bitmap file.
type Font struct {
	Height int
	File   string
	Kind   zio.Kind
}

// FontHeights lists the bitmap heights a subbook may carry, in the order
// they are processed.
var FontHeights = [4]int{16, 24, 30, 48}

// Bind opens the book rooted at path: it locates the catalog, parses the
// subbook records, and probes every physical file of every subbook.
func Bind(path string) (*Book, error) {
	path = CanonicalizePath(path)
	b := &Book{Path: path}
	if name, err := FindFileName(path, "catalog"); err == nil {
		b.DiscKind = DiscEB
		b.CatalogFile = name
	} else if name, err := FindFileName(path, "catalogs"); err == nil {
		b.DiscKind = DiscEPWing
		b.CatalogFile = name
	} else {
		return nil, xerrors.Errorf("no catalog file: %s", path)
	}
	if err := b.loadCatalog(); err != nil {
		return nil, err
	}
	for _, sub := range b.Subbooks {
		if err := b.loadSubbook(sub); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Book) loadCatalog() error {
	f, err := os.Open(ComposePath(b.Path, b.CatalogFile))
	if err != nil {
		return err
	}
	defer f.Close()

	var header [16]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return xerrors.Errorf("reading catalog header: %w", err)
	}
	count := int(binary.BigEndian.Uint16(header[0:2]))
	if count == 0 || count > MaxSubbooks {
		return xerrors.Errorf("invalid subbook count %d in %s", count, b.CatalogFile)
	}

	recordSize := CatalogSizeEB
	titleLength := ebTitleLength
	if b.DiscKind == DiscEPWing {
		recordSize = CatalogSizeEPWing
		titleLength = epwingTitleLength
	}
	record := make([]byte, recordSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(f, record); err != nil {
			return xerrors.Errorf("reading catalog record %d: %w", i, err)
		}
		sub := &Subbook{
			Title:     strings.TrimRight(string(record[2:2+titleLength]), "\x00 "),
			Directory: strings.TrimRight(string(record[2+titleLength:2+titleLength+MaxDirectoryLength]), "\x00 "),
			IndexPage: 1,
		}
		if b.DiscKind == DiscEB {
			if page := int(binary.BigEndian.Uint16(record[0:2])); page > 0 {
				sub.IndexPage = page
			}
		}
		if sub.Directory == "" {
			return xerrors.Errorf("empty directory name in catalog record %d", i)
		}
		b.Subbooks = append(b.Subbooks, sub)
	}
	return nil
}

// FindSubbook resolves a subbook name case-insensitively against the
// directory names declared in the catalog.
func (b *Book) FindSubbook(name string) (*Subbook, bool) {
	for _, sub := range b.Subbooks {
		if strings.EqualFold(sub.Directory, name) {
			return sub, true
		}
	}
	return nil, false
}

func (b *Book) loadSubbook(sub *Subbook) error {
	// The catalog records the directory name in whatever case the
	// mastering tool chose; resolve the real one.
	if dir, err := FindDirectoryName(b.Path, sub.Directory); err == nil {
		sub.Directory = dir
	}
	if b.DiscKind == DiscEB {
		return b.loadSubbookEB(sub)
	}
	return b.loadSubbookEPWing(sub)
}

func (b *Book) loadSubbookEB(sub *Subbook) error {
	dir := ComposePath(b.Path, sub.Directory)
	name, err := FindFileName(dir, "start")
	if err != nil {
		sub.TextKind = zio.Invalid
		return nil
	}
	sub.TextFile = name
	sub.TextKind = PathKind(ComposePath(dir, name))
	if sub.TextKind == zio.Plain && isSEBXAStart(ComposePath(dir, name), sub.IndexPage) {
		sub.TextKind = zio.SEBXA
	}
	return nil
}

func (b *Book) loadSubbookEPWing(sub *Subbook) error {
	subDir := ComposePath(b.Path, sub.Directory)
	dataDir, err := FindDirectoryName(subDir, "data")
	if err != nil {
		return xerrors.Errorf("subbook %s: %w", sub.Directory, err)
	}
	sub.DataDir = dataDir

	sub.TextKind = zio.Invalid
	for _, base := range []string{"honmon2", "honmon"} {
		name, err := FindFileName(ComposePath(subDir, dataDir), base)
		if err != nil {
			continue
		}
		sub.TextFile = name
		sub.TextKind = PathKind(ComposePath(subDir, dataDir, name))
		// A bare HONMON2 is EPWING-compressed; HONMON2.org is the already
		// decompressed copy and stays plain.
		if sub.TextKind == zio.Plain &&
			strings.ToLower(strings.TrimSuffix(name, ";1")) == "honmon2" {
			sub.TextKind = zio.EPWing
		}
		break
	}

	sub.SoundKind = zio.Invalid
	if name, err := FindFileName(ComposePath(subDir, dataDir), "honmons"); err == nil {
		sub.SoundFile = name
		sub.SoundKind = PathKind(ComposePath(subDir, dataDir, name))
	}
	sub.GraphicKind = zio.Invalid
	if name, err := FindFileName(ComposePath(subDir, dataDir), "honmong"); err == nil {
		sub.GraphicFile = name
		sub.GraphicKind = PathKind(ComposePath(subDir, dataDir, name))
	}

	if gaijiDir, err := FindDirectoryName(subDir, "gaiji"); err == nil {
		sub.GaijiDir = gaijiDir
		for _, height := range FontHeights {
			narrow, wide := fontBases(height)
			if name, err := FindFileName(ComposePath(subDir, gaijiDir), narrow); err == nil {
				sub.NarrowFonts = append(sub.NarrowFonts, Font{
					Height: height,
					File:   name,
					Kind:   PathKind(ComposePath(subDir, gaijiDir, name)),
				})
			}
			if name, err := FindFileName(ComposePath(subDir, gaijiDir), wide); err == nil {
				sub.WideFonts = append(sub.WideFonts, Font{
					Height: height,
					File:   name,
					Kind:   PathKind(ComposePath(subDir, gaijiDir, name)),
				})
			}
		}
	}

	if movieDir, err := FindDirectoryName(subDir, "movie"); err == nil {
		sub.MovieDir = movieDir
	}
	return nil
}

// fontBases reports the gaiji file base names for one height: half-width
// (narrow) and full-width (wide).
func fontBases(height int) (narrow, wide string) {
	switch height {
	case 16:
		return "ga16han", "ga16ful"
	case 24:
		return "ga24han", "ga24ful"
	case 30:
		return "ga30han", "ga30ful"
	case 48:
		return "ga48han", "ga48ful"
	}
	return "", ""
}

// PathKind decides how a physical file is stored: the `.ebz` suffix or an
// EBZip magic means an EBZIP1 container, `.org` forces plain.
func PathKind(path string) zio.Kind {
	lower := strings.ToLower(strings.TrimSuffix(path, ";1"))
	if strings.HasSuffix(lower, ".ebz") {
		return zio.EBZip1
	}
	if strings.HasSuffix(lower, ".org") {
		return zio.Plain
	}
	f, err := os.Open(path)
	if err != nil {
		return zio.Invalid
	}
	defer f.Close()
	var magic [5]byte
	if n, _ := f.Read(magic[:]); n == len(magic) && string(magic[:]) == "EBZip" {
		return zio.EBZip1
	}
	return zio.Plain
}

// isSEBXAStart reports whether a plain EB START file carries an embedded
// S-EBXA region: its index page lists both a 0x21 and a 0x22 entry.
func isSEBXAStart(path string, indexPage int) bool {
	if indexPage < 1 {
		indexPage = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var page [zio.Page]byte
	if n, _ := f.ReadAt(page[:], int64(indexPage-1)*zio.Page); n != len(page) {
		return false
	}
	indexCount := int(page[1])
	var have21, have22 bool
	for i := 0; i < indexCount && 16+(i+1)*16 <= len(page); i++ {
		switch page[16+i*16] {
		case 0x21:
			have21 = true
		case 0x22:
			have22 = true
		}
	}
	return have21 && have22
}
