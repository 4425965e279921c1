package ebzip

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/book"
	"github.com/mistydemeo/eb/internal/zio"
)

// File name suffix handling: compressed files carry .ebz, decompressed ones
// none, except HONMON2 which decompresses to HONMON2.org because removing
// the suffix would collide with the compressed input's own name.
const (
	suffixNone = ""
	suffixEbz  = ".ebz"
	suffixOrg  = ".org"
)

// fixSuffix strips an ISO-9660 `;1` version and any ebzip suffix from a
// file name and appends the wanted one.
func fixSuffix(name, suffix string) string {
	name = strings.TrimSuffix(name, ";1")
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, suffixEbz) || strings.HasSuffix(lower, suffixOrg) {
		name = name[:len(name)-4]
	}
	return name + suffix
}

// selectSubbooks resolves the --subbook filter against the catalog. An
// unknown name aborts the run.
func selectSubbooks(b *book.Book, names []string) ([]*book.Subbook, error) {
	if len(names) == 0 {
		return b.Subbooks, nil
	}
	var selected []*book.Subbook
	for _, name := range names {
		sub, ok := b.FindSubbook(name)
		if !ok {
			return nil, fmt.Errorf("unknown subbook name `%s'", name)
		}
		selected = append(selected, sub)
	}
	return selected, nil
}

func (r *Run) makeDirectory(path string) error {
	if r.Test {
		return nil
	}
	if err := os.MkdirAll(path, 0777); err != nil {
		return xerrors.Errorf("failed to create a directory: %w", err)
	}
	return nil
}

// ZipBook compresses every selected physical file of the book at bookPath,
// mirroring its directory layout under outTop.
func (r *Run) ZipBook(outTop, bookPath string, subbookNames []string) error {
	return r.walkBook(outTop, bookPath, subbookNames, actionZip)
}

// UnzipBook decompresses every selected physical file of the book at
// bookPath, mirroring its directory layout under outTop.
func (r *Run) UnzipBook(outTop, bookPath string, subbookNames []string) error {
	return r.walkBook(outTop, bookPath, subbookNames, actionUnzip)
}

// ZipInfoBook prints the storage summary of every selected physical file.
// The filesystem is left untouched.
func (r *Run) ZipInfoBook(bookPath string, subbookNames []string) error {
	return r.walkBook("", bookPath, subbookNames, actionInfo)
}

type action int

const (
	actionZip action = iota
	actionUnzip
	actionInfo
)

func (r *Run) walkBook(outTop, bookPath string, subbookNames []string, act action) error {
	outTop = book.CanonicalizePath(outTop)
	bookPath = book.CanonicalizePath(bookPath)

	b, err := book.Bind(bookPath)
	if err != nil {
		return err
	}
	subbooks, err := selectSubbooks(b, subbookNames)
	if err != nil {
		return err
	}

	var seen stringList
	for _, sub := range subbooks {
		if b.DiscKind == book.DiscEB {
			err = r.walkSubbookEB(outTop, b, sub, act, &seen)
		} else {
			err = r.walkSubbookEPWing(outTop, b, sub, act, &seen)
		}
		if err != nil {
			return err
		}
	}

	// The book-level LANGUAGE file of EB discs travels through the codec
	// like any other physical file.
	if b.DiscKind == book.DiscEB {
		if name, err := book.FindFileName(b.Path, "language"); err == nil {
			inPath := book.ComposePath(b.Path, name)
			kind := book.PathKind(inPath)
			switch act {
			case actionZip:
				out := book.ComposePath(outTop, fixSuffix(name, suffixEbz))
				if err := r.ZipFile(out, inPath, kind, nil); err != nil {
					return err
				}
			case actionUnzip:
				out := book.ComposePath(outTop, fixSuffix(name, suffixNone))
				if err := r.UnzipFile(out, inPath, kind); err != nil {
					return err
				}
			case actionInfo:
				if err := r.ZipInfoFile(inPath, kind); err != nil {
					return err
				}
			}
		}
	}

	// The catalog is copied, never encoded; the information action still
	// reports on it.
	in := book.ComposePath(b.Path, b.CatalogFile)
	if act == actionInfo {
		if err := r.ZipInfoFile(in, zio.Plain); err != nil {
			return err
		}
	} else {
		out := book.ComposePath(outTop, b.CatalogFile)
		if err := r.CopyFile(out, in); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) walkSubbookEB(outTop string, b *book.Book, sub *book.Subbook, act action, seen *stringList) error {
	if act != actionInfo {
		if err := r.makeDirectory(book.ComposePath(outTop, sub.Directory)); err != nil {
			return err
		}
	}
	if sub.TextKind == zio.Invalid {
		return nil
	}
	inPath := book.ComposePath(b.Path, sub.Directory, sub.TextFile)
	switch act {
	case actionZip:
		outPath := book.ComposePath(outTop, sub.Directory, fixSuffix(sub.TextFile, suffixEbz))
		if !seen.has(inPath) {
			speedup := new(Speedup)
			if err := speedup.SetZipSpeedup(inPath, sub.TextKind, sub.IndexPage); err != nil {
				speedup = nil
			}
			if err := r.ZipStartFile(outPath, inPath, sub.TextKind, sub.IndexPage, speedup); err != nil {
				return err
			}
			seen.add(inPath)
		}
	case actionUnzip:
		outPath := book.ComposePath(outTop, sub.Directory, fixSuffix(sub.TextFile, suffixNone))
		if !seen.has(inPath) {
			if err := r.UnzipStartFile(outPath, inPath, sub.TextKind, sub.IndexPage); err != nil {
				return err
			}
		}
		// Whatever the START file was stored as, its index page must not
		// keep advertising the embedded compression region.
		if !r.Test {
			if err := r.RewriteSEBXAStart(outPath, sub.IndexPage); err != nil {
				return err
			}
		}
		seen.add(inPath)
	case actionInfo:
		if !seen.has(inPath) {
			if err := r.ZipInfoStartFile(inPath, sub.TextKind, sub.IndexPage); err != nil {
				return err
			}
			seen.add(inPath)
		}
	}
	return nil
}

func (r *Run) walkSubbookEPWing(outTop string, b *book.Book, sub *book.Subbook, act action, seen *stringList) error {
	subIn := book.ComposePath(b.Path, sub.Directory)
	subOut := book.ComposePath(outTop, sub.Directory)
	if act != actionInfo {
		if err := r.makeDirectory(subOut); err != nil {
			return err
		}
		if err := r.makeDirectory(book.ComposePath(subOut, sub.DataDir)); err != nil {
			return err
		}
	}

	// Text.
	if sub.TextKind != zio.Invalid {
		inPath := book.ComposePath(subIn, sub.DataDir, sub.TextFile)
		if !seen.has(inPath) {
			switch act {
			case actionZip:
				outPath := book.ComposePath(subOut, sub.DataDir, fixSuffix(sub.TextFile, suffixEbz))
				speedup := new(Speedup)
				if err := speedup.SetZipSpeedup(inPath, sub.TextKind, sub.IndexPage); err != nil {
					speedup = nil
				}
				if err := r.ZipFile(outPath, inPath, sub.TextKind, speedup); err != nil {
					return err
				}
			case actionUnzip:
				suffix := suffixNone
				if strings.HasPrefix(strings.ToLower(sub.TextFile), "honmon2") {
					suffix = suffixOrg
				}
				outPath := book.ComposePath(subOut, sub.DataDir, fixSuffix(sub.TextFile, suffix))
				if err := r.UnzipFile(outPath, inPath, sub.TextKind); err != nil {
					return err
				}
			case actionInfo:
				if err := r.ZipInfoFile(inPath, sub.TextKind); err != nil {
					return err
				}
			}
			seen.add(inPath)
		}
	}

	// Sound.
	if !r.SkipSound && sub.SoundKind != zio.Invalid {
		inPath := book.ComposePath(subIn, sub.DataDir, sub.SoundFile)
		if !seen.has(inPath) {
			if err := r.applyFile(act,
				book.ComposePath(subOut, sub.DataDir), sub.SoundFile, inPath, sub.SoundKind); err != nil {
				return err
			}
			seen.add(inPath)
		}
	}

	// Graphic.
	if !r.SkipGraphic && sub.GraphicKind != zio.Invalid {
		inPath := book.ComposePath(subIn, sub.DataDir, sub.GraphicFile)
		if !seen.has(inPath) {
			if err := r.applyFile(act,
				book.ComposePath(subOut, sub.DataDir), sub.GraphicFile, inPath, sub.GraphicKind); err != nil {
				return err
			}
			seen.add(inPath)
		}
	}

	// Fonts.
	if !r.SkipFont && sub.GaijiDir != "" {
		gaijiOut := book.ComposePath(subOut, sub.GaijiDir)
		if act != actionInfo {
			if err := r.makeDirectory(gaijiOut); err != nil {
				return err
			}
		}
		for _, fonts := range [][]book.Font{sub.NarrowFonts, sub.WideFonts} {
			for _, font := range fonts {
				if font.Kind == zio.Invalid {
					continue
				}
				inPath := book.ComposePath(subIn, sub.GaijiDir, font.File)
				if seen.has(inPath) {
					continue
				}
				if err := r.applyFile(act, gaijiOut, font.File, inPath, font.Kind); err != nil {
					return err
				}
				seen.add(inPath)
			}
		}
	}

	// Movies are opaque and travel as byte copies; the information action
	// lists them file by file.
	if !r.SkipMovie && sub.MovieDir != "" {
		if act == actionInfo {
			if err := r.ZipInfoFilesInDirectory(book.ComposePath(subIn, sub.MovieDir)); err != nil {
				return err
			}
		} else if err := r.CopyFilesInDirectory(
			book.ComposePath(subOut, sub.MovieDir),
			book.ComposePath(subIn, sub.MovieDir)); err != nil {
			return err
		}
	}
	return nil
}

// applyFile runs one action on a non-text physical file.
func (r *Run) applyFile(act action, outDir, name, inPath string, kind zio.Kind) error {
	switch act {
	case actionZip:
		return r.ZipFile(book.ComposePath(outDir, fixSuffix(name, suffixEbz)), inPath, kind, nil)
	case actionUnzip:
		return r.UnzipFile(book.ComposePath(outDir, fixSuffix(name, suffixNone)), inPath, kind)
	}
	return r.ZipInfoFile(inPath, kind)
}
