// Package refile rewrites the catalog of an EB/EPWING book so that it lists
// only a chosen subset of its subbooks. The surgery is byte-preserving: kept
// records are copied verbatim, the trailing catalog bytes travel unchanged,
// and only the subbook count is rewritten.
package refile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/book"
	"github.com/mistydemeo/eb/internal/zio"
)

// Book filters the catalog of the book at inPath down to subbookNames,
// writing the result to the same catalog name under outPath. The previous
// output catalog, if any, is preserved as <name>.old unless such a backup
// already exists; the new catalog reaches its final name by rename only.
func Book(outPath, inPath string, subbookNames []string) error {
	inPath = book.CanonicalizePath(inPath)
	outPath = book.CanonicalizePath(outPath)

	var discKind book.DiscKind
	baseName, err := book.FindFileName(inPath, "catalog")
	if err == nil {
		discKind = book.DiscEB
	} else if baseName, err = book.FindFileName(inPath, "catalogs"); err == nil {
		discKind = book.DiscEPWing
	} else {
		return xerrors.Errorf("no catalog file: %s", inPath)
	}

	inFile := book.ComposePath(inPath, baseName)
	outFile := book.ComposePath(outPath, baseName)
	oldFile := fixSuffix(outFile, ".old")

	// Keep one backup of the catalog being replaced; never clobber an
	// earlier one.
	backedUp := false
	if _, err := os.Stat(oldFile); os.IsNotExist(err) {
		if st, err := os.Stat(outFile); err == nil && st.Mode().IsRegular() {
			if err := copyFile(oldFile, outFile); err != nil {
				return err
			}
			backedUp = true
		}
	}

	t, err := renameio.TempFile("", outFile)
	if err != nil {
		return xerrors.Errorf("failed to create a temporary file: %w", err)
	}
	defer t.Cleanup()
	if err := catalog(t, inFile, discKind, subbookNames); err != nil {
		// Put the backup taken above back in place of whatever state the
		// output was left in.
		if backedUp {
			os.Rename(oldFile, outFile)
		}
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("failed to move the file to %s: %w", outFile, err)
	}
	return nil
}

// catalog streams the filtered catalog into w.
func catalog(w io.WriteSeeker, inFile string, discKind book.DiscKind, subbookNames []string) error {
	in, err := os.Open(inFile)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	defer in.Close()

	recordSize := book.CatalogSizeEB
	if discKind == book.DiscEPWing {
		recordSize = book.CatalogSizeEPWing
	}

	var header [16]byte
	if _, err := io.ReadFull(in, header[:]); err != nil {
		return xerrors.Errorf("failed to read the file %s: %w", inFile, err)
	}
	inSubbookCount := int(binary.BigEndian.Uint16(header[0:2]))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	outOffset := int64(16)

	// First pass: basic records, remembering which input slots were kept
	// so that the EPWING extended table can mirror the selection.
	kept := make([]bool, inSubbookCount)
	matched := make([]bool, len(subbookNames))
	record := make([]byte, recordSize)
	for i := 0; i < inSubbookCount; i++ {
		if _, err := io.ReadFull(in, record); err != nil {
			return xerrors.Errorf("failed to read the file %s: %w", inFile, err)
		}
		if len(subbookNames) > 0 {
			directory := recordDirectory(record, discKind)
			idx := findName(subbookNames, directory)
			if idx < 0 {
				continue
			}
			matched[idx] = true
		}
		kept[i] = true
		if _, err := w.Write(record); err != nil {
			return err
		}
		outOffset += int64(recordSize)
	}

	if discKind == book.DiscEPWing {
		for i := 0; i < inSubbookCount; i++ {
			if _, err := io.ReadFull(in, record); err != nil {
				return xerrors.Errorf("failed to read the file %s: %w", inFile, err)
			}
			if !kept[i] {
				continue
			}
			if _, err := w.Write(record); err != nil {
				return err
			}
			outOffset += int64(recordSize)
		}
	}

	for i, name := range subbookNames {
		if !matched[i] {
			fmt.Fprintf(os.Stderr, "warning: no such subbook: %s\n", name)
		}
	}

	// The remainder of the catalog travels verbatim.
	buffer := make([]byte, zio.Page)
	for {
		n, err := in.Read(buffer)
		if n > 0 {
			if _, werr := w.Write(buffer[:n]); werr != nil {
				return werr
			}
			outOffset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return xerrors.Errorf("failed to read the file %s: %w", inFile, err)
		}
	}

	if pad := outOffset % zio.Page; pad > 0 {
		zero := make([]byte, zio.Page-pad)
		if _, err := w.Write(zero); err != nil {
			return err
		}
	}

	// Patch the subbook count: the requested name count when filtering,
	// the input count otherwise.
	count := inSubbookCount
	if len(subbookNames) > 0 {
		count = len(subbookNames)
	}
	binary.BigEndian.PutUint16(header[0:2], uint16(count))
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(header[0:2]); err != nil {
		return err
	}
	return nil
}

func recordDirectory(record []byte, discKind book.DiscKind) string {
	offset := 2 + 30 // EB title length
	if discKind == book.DiscEPWing {
		offset = 2 + 80
	}
	return strings.TrimRight(string(record[offset:offset+book.MaxDirectoryLength]), "\x00 ")
}

func findName(names []string, directory string) int {
	for i, name := range names {
		if strings.EqualFold(name, directory) {
			return i
		}
	}
	return -1
}

// fixSuffix swaps the file-name suffix, tolerating an ISO-9660 `;1`.
func fixSuffix(path, suffix string) string {
	path = strings.TrimSuffix(path, ";1")
	if idx := strings.LastIndexByte(path, '.'); idx > strings.LastIndexByte(path, '/') {
		path = path[:idx]
	}
	return path + suffix
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return xerrors.Errorf("failed to write the file %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	os.Chtimes(dst, st.ModTime(), st.ModTime())
	return nil
}
