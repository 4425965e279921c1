package ebzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mistydemeo/eb/internal/zio"
)

func quietRun() *Run {
	r := NewRun()
	r.Quiet = true
	r.Overwrite = OverwriteForce
	r.Keep = true
	return r
}

func mixedData(zeros, noise int) []byte {
	data := make([]byte, zeros+noise)
	rnd := rand.New(rand.NewSource(23))
	rnd.Read(data[zeros:])
	return data
}

func writeInput(t *testing.T, dir, name string, data []byte, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestZipUnzipIdentity(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Unix(1234567890, 0)
	data := mixedData(10000, 5000)
	in := writeInput(t, dir, "HONMON", data, mtime)
	zipped := filepath.Join(dir, "HONMON.ebz")
	restored := filepath.Join(dir, "HONMON.out")

	r := quietRun()
	r.Level = 3
	if err := r.ZipFile(zipped, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.UnzipFile(restored, zipped, zio.EBZip1); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("restored file differs from the original")
	}
	for _, path := range []string{zipped, restored} {
		st, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if got := st.ModTime().Unix(); got != mtime.Unix() {
			t.Errorf("%s: mtime %d, want %d", filepath.Base(path), got, mtime.Unix())
		}
	}
}

func TestZipLevelZeroLayout(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "HONMONS", mixedData(2048, 2048), time.Unix(1000000000, 0))
	out := filepath.Join(dir, "HONMONS.ebz")

	r := quietRun()
	if err := r.ZipFile(out, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(raw[0:5]), "EBZip"; got != want {
		t.Fatalf("magic: got %q", got)
	}
	// Version 1, level 0; 4096 bytes make two slices indexed with two-byte
	// entries.
	if got, want := raw[5], byte(1<<4); got != want {
		t.Errorf("mode byte: got %#x, want %#x", got, want)
	}
	if got, want := binary.BigEndian.Uint32(raw[10:14]), uint32(4096); got != want {
		t.Errorf("file size: got %d, want %d", got, want)
	}
	end := binary.BigEndian.Uint16(raw[zio.HeaderSize+4:])
	if got, want := int(end), len(raw); got != want {
		t.Errorf("index[2]: got %d, want physical end %d", got, want)
	}
}

func TestUnzipDetectsCRCMismatch(t *testing.T) {
	dir := t.TempDir()
	// Noise refuses to deflate, so slice 0 is stored verbatim and a flipped
	// byte survives decoding into the checksum comparison.
	noise := make([]byte, 4096)
	rand.New(rand.NewSource(9)).Read(noise)
	in := writeInput(t, dir, "HONMON", noise, time.Unix(1000000000, 0))
	zipped := filepath.Join(dir, "HONMON.ebz")
	restored := filepath.Join(dir, "HONMON.out")

	r := quietRun()
	if err := r.ZipFile(zipped, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(zipped)
	if err != nil {
		t.Fatal(err)
	}
	sliceStart := int(binary.BigEndian.Uint16(raw[zio.HeaderSize:]))
	raw[sliceStart] ^= 0xff
	if err := os.WriteFile(zipped, raw, 0644); err != nil {
		t.Fatal(err)
	}

	err = r.UnzipFile(restored, zipped, zio.EBZip1)
	if !errors.Is(err, zio.ErrCRCMismatch) {
		t.Fatalf("got %v, want CRC mismatch", err)
	}
	if _, err := os.Stat(restored); !os.IsNotExist(err) {
		t.Error("partial output left behind after CRC error")
	}
}

func TestOverwriteNoIsNoOp(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "HONMON", mixedData(4096, 0), time.Unix(1000000000, 0))
	out := filepath.Join(dir, "HONMON.ebz")
	if err := os.WriteFile(out, []byte("pre-existing"), 0644); err != nil {
		t.Fatal(err)
	}

	r := quietRun()
	r.Overwrite = OverwriteNo
	if err := r.ZipFile(out, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pre-existing" {
		t.Error("output was overwritten despite --overwrite no")
	}
	if len(r.ledger.paths) != 0 {
		t.Error("skipped input was scheduled for unlink")
	}
}

func TestOverwriteConfirmDeclined(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "HONMON", mixedData(2048, 0), time.Unix(1000000000, 0))
	out := filepath.Join(dir, "HONMON.ebz")
	if err := os.WriteFile(out, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	r := quietRun()
	r.Overwrite = OverwriteConfirm
	r.Confirm = func(string) bool { return false }
	if err := r.ZipFile(out, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "keep me" {
		t.Error("declined overwrite still replaced the file")
	}
}

func TestTestModeWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "HONMON", mixedData(5000, 3000), time.Unix(1000000000, 0))
	out := filepath.Join(dir, "HONMON.ebz")

	r := quietRun()
	r.Keep = false
	r.Test = true
	if err := r.ZipFile(out, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("test mode created an output file")
	}
	if len(r.ledger.paths) != 0 {
		t.Error("test mode scheduled an unlink")
	}
	if err := r.UnzipFile(filepath.Join(dir, "HONMON.out"), in, zio.Plain); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "HONMON.out")); !os.IsNotExist(err) {
		t.Error("test mode copy created an output file")
	}
}

func TestZipEmptyInput(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "HONMONS", nil, time.Unix(1000000000, 0))
	zipped := filepath.Join(dir, "HONMONS.ebz")
	restored := filepath.Join(dir, "HONMONS.out")

	r := quietRun()
	if err := r.ZipFile(zipped, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(zipped)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(raw), zio.HeaderSize+2; got != want {
		t.Fatalf("container length: got %d, want %d", got, want)
	}
	if err := r.UnzipFile(restored, zipped, zio.EBZip1); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(restored)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != 0 {
		t.Errorf("restored size: got %d, want 0", st.Size())
	}
}

func TestZipSameFileSkipped(t *testing.T) {
	dir := t.TempDir()
	data := mixedData(2048, 0)
	in := writeInput(t, dir, "HONMON", data, time.Unix(1000000000, 0))

	r := quietRun()
	if err := r.ZipFile(in, in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(in)
	if !bytes.Equal(got, data) {
		t.Error("same-file transformation touched the input")
	}
}

func TestScheduledUnlinkAfterZip(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "HONMON", mixedData(2048, 0), time.Unix(1000000000, 0))

	r := quietRun()
	r.Keep = false
	if err := r.ZipFile(filepath.Join(dir, "HONMON.ebz"), in, zio.Plain, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(in); err != nil {
		t.Fatal("input removed before the ledger was committed")
	}
	if err := r.UnlinkScheduled(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(in); !os.IsNotExist(err) {
		t.Error("committed ledger left the input in place")
	}
}
