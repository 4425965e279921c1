package ebzip

import (
	"fmt"
	"hash/adler32"
	"io"
	"os"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// UnzipFile materializes the decompressed form of one physical file at
// outPath. A plain input is delegated to a byte copy.
func (r *Run) UnzipFile(outPath, inPath string, inKind zio.Kind) error {
	return r.unzipFile(outPath, inPath, inKind, 0)
}

// UnzipStartFile decompresses an EB START file; indexPage locates the
// S-EBXA redirection tables when the input is S-EBXA compressed.
func (r *Run) UnzipStartFile(outPath, inPath string, inKind zio.Kind, indexPage int) error {
	return r.unzipFile(outPath, inPath, inKind, indexPage)
}

func (r *Run) unzipFile(outPath, inPath string, inKind zio.Kind, indexPage int) error {
	if inKind == zio.Plain {
		return r.CopyFile(outPath, inPath)
	}

	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "==> uncompress %s <==\n", inPath)
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
	if !r.Test {
		if proceed, err := r.checkOverwrite(outPath); err != nil || !proceed {
			return err
		}
	}

	in, err := zio.Open(inPath, inKind)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	defer in.Close()
	if inKind == zio.SEBXA {
		indexes, err := GetSEBXAIndexes(inPath, indexPage)
		if err != nil {
			return err
		}
		in.SetSEBXAMode(indexes.IndexLocation, indexes.IndexBase, indexes.ZioStart, indexes.ZioEnd)
	}

	var out *os.File
	if !r.Test {
		armTrap(outPath)
		out, err = os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			disarmTrap()
			return xerrors.Errorf("failed to open the file: %w", err)
		}
		setTrapFile(out)
	}
	fail := func(err error) error {
		if out != nil {
			out.Close()
			disarmTrap()
		}
		return err
	}

	sliceSize := int64(zio.Page) << uint(in.Level())
	fileSize := in.Size()
	totalSlices := int((fileSize + sliceSize - 1) / sliceSize)
	interval := progressInterval(totalSlices, 0)
	buffer := make([]byte, sliceSize)
	crc := adler32.New()

	var totalLength int64
	for i := 0; i < totalSlices; i++ {
		if _, err := in.Seek(totalLength, io.SeekStart); err != nil {
			return fail(xerrors.Errorf("failed to seek the file %s: %w", inPath, err))
		}
		length, err := io.ReadFull(in, buffer)
		if err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err != nil || length == 0 {
			return fail(xerrors.Errorf("%s: %w", inPath, zio.ErrUnexpectedEOF))
		}
		if int64(length) != sliceSize && totalLength+int64(length) != fileSize {
			return fail(xerrors.Errorf("%s: %w", inPath, zio.ErrUnexpectedEOF))
		}
		if in.Mode() == zio.EBZip1 {
			crc.Write(buffer[:length])
		}
		if !r.Test {
			if _, err := out.Write(buffer[:length]); err != nil {
				return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
			}
		}
		totalLength += int64(length)
		r.progress(i+1, totalSlices, totalLength, fileSize, interval)
	}

	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "completed (%d / %d bytes)\n", fileSize, fileSize)
		fmt.Fprintf(os.Stderr, "%d -> %d bytes\n\n", inStatus.Size(), totalLength)
	}

	in.Close()
	if !r.Test {
		if err := out.Close(); err != nil {
			disarmTrap()
			return xerrors.Errorf("failed to write to the file %s: %w", outPath, err)
		}
		disarmTrap()
	}

	// The checksum covers the whole decompressed stream; a mismatch means
	// the container was damaged, so the freshly written output is removed.
	if in.Mode() == zio.EBZip1 && in.CRC() != crc.Sum32() {
		if !r.Test {
			os.Remove(outPath)
		}
		return xerrors.Errorf("%s: %w", outPath, zio.ErrCRCMismatch)
	}

	if !r.Test && !r.Keep {
		r.ScheduleUnlink(inPath)
	}
	if !r.Test {
		os.Chtimes(outPath, atime(inStatus), inStatus.ModTime())
	}
	return nil
}
