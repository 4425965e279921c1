package ebzip

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// CopyFile copies one file byte for byte, page at a time, with the same
// banner, overwrite policy, trap and timestamp handling as the codec
// operations. Catalogs and movie files travel this way.
func (r *Run) CopyFile(outPath, inPath string) error {
	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "==> copy %s <==\n", inPath)
		fmt.Fprintf(os.Stderr, "output to %s\n", outPath)
	}

	inStatus, err := os.Stat(inPath)
	if err != nil || !inStatus.Mode().IsRegular() {
		return fmt.Errorf("no such file: %s", inPath)
	}
	if sameFile(outPath, inPath) {
		if !r.Quiet {
			fmt.Fprintf(os.Stderr, "the input and output files are the same, skipped.\n\n")
		}
		return nil
	}
	if r.Test {
		if !r.Quiet {
			fmt.Fprintf(os.Stderr, "completed (%d / %d bytes)\n\n",
				inStatus.Size(), inStatus.Size())
		}
		return nil
	}
	if proceed, err := r.checkOverwrite(outPath); err != nil || !proceed {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	defer in.Close()

	armTrap(outPath)
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		disarmTrap()
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	setTrapFile(out)
	fail := func(err error) error {
		out.Close()
		disarmTrap()
		return err
	}

	totalSlices := int((inStatus.Size() + zio.Page - 1) / zio.Page)
	interval := progressInterval(totalSlices, 0)
	var (
		buffer      [zio.Page]byte
		totalLength int64
	)
	for i := 0; i < totalSlices; i++ {
		inLength, err := in.Read(buffer[:])
		if err != nil || inLength == 0 {
			return fail(xerrors.Errorf("%s: %w", inPath, zio.ErrUnexpectedEOF))
		}
		if inLength != zio.Page && totalLength+int64(inLength) != inStatus.Size() {
			return fail(xerrors.Errorf("%s: %w", inPath, zio.ErrUnexpectedEOF))
		}
		if _, err := out.Write(buffer[:inLength]); err != nil {
			return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
		}
		totalLength += int64(inLength)
		r.progress(i+1, totalSlices, totalLength, inStatus.Size(), interval)
	}

	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "completed (%d / %d bytes)\n\n",
			totalLength, inStatus.Size())
	}

	if err := out.Close(); err != nil {
		disarmTrap()
		return xerrors.Errorf("failed to write to the file %s: %w", outPath, err)
	}
	disarmTrap()
	os.Chtimes(outPath, atime(inStatus), inStatus.ModTime())
	return nil
}

// CopyFilesInDirectory copies every regular file of inDir into outDir,
// which is created if missing. A missing input directory is not an error,
// and a failed individual copy does not stop the remaining files.
func (r *Run) CopyFilesInDirectory(outDir, inDir string) error {
	st, err := os.Stat(inDir)
	if err != nil || !st.IsDir() {
		return nil
	}
	if !r.Test {
		if err := os.MkdirAll(outDir, 0777); err != nil {
			return xerrors.Errorf("failed to create a directory %s: %w", outDir, err)
		}
	}
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return xerrors.Errorf("failed to open the directory %s: %w", inDir, err)
	}
	for _, entry := range entries {
		inPath := filepath.Join(inDir, entry.Name())
		if st, err := os.Stat(inPath); err != nil || !st.Mode().IsRegular() {
			continue
		}
		r.CopyFile(filepath.Join(outDir, entry.Name()), inPath)
	}
	return nil
}
