package ebzip

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/mistydemeo/eb/internal/zio"
)

// ZipInfoFile prints a banner and a one-line storage summary for one
// physical file on stdout. Nothing is modified.
func (r *Run) ZipInfoFile(inPath string, inKind zio.Kind) error {
	return r.zipInfoFile(inPath, inKind, 0)
}

// ZipInfoStartFile inspects an EB START file; indexPage locates the S-EBXA
// redirection tables when the input is S-EBXA compressed.
func (r *Run) ZipInfoStartFile(inPath string, inKind zio.Kind, indexPage int) error {
	return r.zipInfoFile(inPath, inKind, indexPage)
}

// ZipInfoFilesInDirectory prints the storage summary of every regular file
// in inDir. A missing input directory is not an error; movie files are
// always stored plain.
func (r *Run) ZipInfoFilesInDirectory(inDir string) error {
	st, err := os.Stat(inDir)
	if err != nil || !st.IsDir() {
		return nil
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
		if err := r.ZipInfoFile(inPath, zio.Plain); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) zipInfoFile(inPath string, inKind zio.Kind, indexPage int) error {
	fmt.Printf("==> %s <==\n", inPath)

	inStatus, err := os.Stat(inPath)
	if err != nil || !inStatus.Mode().IsRegular() {
		return fmt.Errorf("failed to open the file: %s", inPath)
	}
	in, err := zio.Open(inPath, inKind)
	if err != nil {
		return xerrors.Errorf("failed to open the file: %w", err)
	}
	if inKind == zio.SEBXA {
		indexes, err := GetSEBXAIndexes(inPath, indexPage)
		if err != nil {
			in.Close()
			return err
		}
		in.SetSEBXAMode(indexes.IndexLocation, indexes.IndexBase, indexes.ZioStart, indexes.ZioEnd)
	}
	in.Close()

	if in.Mode() == zio.Plain {
		fmt.Printf("%d bytes (not compressed)\n", inStatus.Size())
	} else {
		fmt.Printf("%d -> %d bytes ", in.Size(), inStatus.Size())
		if in.Size() == 0 {
			fmt.Print("(empty original file, ")
		} else {
			fmt.Printf("(%4.1f%%, ", float64(inStatus.Size())*100.0/float64(in.Size()))
		}
		switch in.Mode() {
		case zio.EBZip1:
			fmt.Printf("ebzip level %d compression)\n", in.Level())
		case zio.SEBXA:
			fmt.Print("S-EBXA compression)\n")
		default:
			fmt.Print("EPWING compression)\n")
		}
	}
	fmt.Println()
	return nil
}
