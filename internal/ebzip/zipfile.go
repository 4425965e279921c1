package ebzip

import (
	"bytes"
	"fmt"
	"hash/adler32"
	"io"
	"os"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// ZipFile compresses one physical file into an EBZIP1 container at outPath.
// For START files use ZipStartFile, which knows about the S-EBXA index page.
func (r *Run) ZipFile(outPath, inPath string, inKind zio.Kind, speedup *Speedup) error {
	return r.zipFile(outPath, inPath, inKind, 0, speedup)
}

// ZipStartFile compresses an EB START file; indexPage locates the S-EBXA
// redirection tables when the input is S-EBXA compressed.
func (r *Run) ZipStartFile(outPath, inPath string, inKind zio.Kind, indexPage int, speedup *Speedup) error {
	return r.zipFile(outPath, inPath, inKind, indexPage, speedup)
}

func (r *Run) zipFile(outPath, inPath string, inKind zio.Kind, indexPage int, speedup *Speedup) error {
	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "==> compress %s <==\n", inPath)
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

	level := r.Level
	sliceSize := int64(zio.Page) << uint(level)
	fileSize := in.Size()
	indexWidth := zio.IndexWidth(fileSize)
	totalSlices := int((fileSize + sliceSize - 1) / sliceSize)
	indexLength := int64(totalSlices+1) * int64(indexWidth)

	// Reserve the header and index as zeroes; the real bytes are patched
	// in as slices are produced, the header last.
	inBuffer := make([]byte, sliceSize)
	if !r.Test {
		remaining := zio.HeaderSize + indexLength
		zero := make([]byte, sliceSize)
		for remaining > 0 {
			n := remaining
			if n > sliceSize {
				n = sliceSize
			}
			if _, err := out.Write(zero[:n]); err != nil {
				return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
			}
			remaining -= n
		}
	}

	var (
		crc            = adler32.New()
		compressed     bytes.Buffer
		inTotalLength  int64
		outTotalLength int64
		sliceLocation  int64 = zio.HeaderSize + indexLength
		entry          [10]byte
	)
	compressed.Grow(int(sliceSize) + zio.Margin)
	interval := progressInterval(totalSlices, level)

	for i := 0; i < totalSlices; i++ {
		if _, err := in.Seek(inTotalLength, io.SeekStart); err != nil {
			return fail(xerrors.Errorf("failed to seek the file %s: %w", inPath, err))
		}
		inLength, err := io.ReadFull(in, inBuffer)
		if err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err != nil || inLength == 0 {
			return fail(xerrors.Errorf("%s: %w", inPath, zio.ErrUnexpectedEOF))
		}
		if int64(inLength) != sliceSize && inTotalLength+int64(inLength) != fileSize {
			return fail(xerrors.Errorf("%s: %w", inPath, zio.ErrUnexpectedEOF))
		}
		crc.Write(inBuffer[:inLength])

		// Zero-fill the tail of a short final slice.
		for j := inLength; j < int(sliceSize); j++ {
			inBuffer[j] = 0
		}

		var sliceBytes []byte
		if speedup != nil && speedup.IsSpeedupSlice(i, level) {
			sliceBytes = inBuffer
		} else {
			if err := zio.CompressSlice(&compressed, inBuffer); err != nil {
				return fail(xerrors.Errorf("compressing %s: %w", inPath, err))
			}
			sliceBytes = compressed.Bytes()
			if int64(len(sliceBytes)) >= sliceSize {
				sliceBytes = inBuffer
			}
		}

		if !r.Test {
			location, err := out.Seek(0, io.SeekEnd)
			if err != nil {
				return fail(xerrors.Errorf("failed to seek the file %s: %w", outPath, err))
			}
			sliceLocation = location
			if _, err := out.Write(sliceBytes); err != nil {
				return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
			}
		}

		nextLocation := sliceLocation + int64(len(sliceBytes))
		zio.PutIndexEntry(entry[:indexWidth], indexWidth, sliceLocation)
		zio.PutIndexEntry(entry[indexWidth:2*indexWidth], indexWidth, nextLocation)
		if !r.Test {
			if _, err := out.WriteAt(entry[:2*indexWidth], zio.HeaderSize+int64(i)*int64(indexWidth)); err != nil {
				return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
			}
		}

		inTotalLength += sliceSize
		outTotalLength += int64(len(sliceBytes)) + int64(indexWidth)
		r.progress(i+1, totalSlices, inTotalLength, fileSize, interval)
	}

	if totalSlices == 0 && !r.Test {
		// An empty input still gets its one index entry: the end of the
		// (empty) slice data.
		zio.PutIndexEntry(entry[:indexWidth], indexWidth, sliceLocation)
		if _, err := out.WriteAt(entry[:indexWidth], zio.HeaderSize); err != nil {
			return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
		}
	}

	var header [zio.HeaderSize]byte
	zio.EncodeHeader(header[:], level, fileSize, crc.Sum32(), inStatus.ModTime())
	if !r.Test {
		if _, err := out.WriteAt(header[:], 0); err != nil {
			return fail(xerrors.Errorf("failed to write to the file %s: %w", outPath, err))
		}
	}

	outTotalLength += zio.HeaderSize + int64(indexWidth)
	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "completed (%d / %d bytes)\n", fileSize, fileSize)
		if inTotalLength != 0 {
			fmt.Fprintf(os.Stderr, "%d -> %d bytes (%4.1f%%)\n\n",
				fileSize, outTotalLength,
				float64(outTotalLength)*100.0/float64(fileSize))
		} else {
			fmt.Fprintf(os.Stderr, "%d -> %d bytes\n\n", fileSize, outTotalLength)
		}
	}

	in.Close()
	if !r.Test {
		if err := out.Close(); err != nil {
			disarmTrap()
			return xerrors.Errorf("failed to write to the file %s: %w", outPath, err)
		}
		disarmTrap()
		// Give the output the input's stamps; failure here is not fatal.
		os.Chtimes(outPath, atime(inStatus), inStatus.ModTime())
	}
	if !r.Test && !r.Keep {
		r.ScheduleUnlink(inPath)
	}
	return nil
}
