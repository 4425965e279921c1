package ebzip

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/mistydemeo/eb/internal/zio"
)

// sebxaLiteralEncode is the trivial S-EBXA encoding: every tag byte 0xff
// announces eight literal bytes.
func sebxaLiteralEncode(slice []byte) []byte {
	var out []byte
	for len(slice) > 0 {
		n := 8
		if n > len(slice) {
			n = len(slice)
		}
		out = append(out, 0xff)
		out = append(out, slice[:n]...)
		slice = slice[n:]
	}
	return out
}

func putSEBXAEntry(page []byte, slot int, code byte, firstPage, pageCount uint32) {
	entry := page[16+slot*16:]
	entry[0] = code
	binary.BigEndian.PutUint32(entry[2:6], firstPage)
	binary.BigEndian.PutUint32(entry[6:10], pageCount)
}

// buildSEBXAStart lays out a START file whose index page advertises a
// compressed window over logical pages 3..4: raw pages 0..1, the slice
// table at physical page 5, slice data at physical page 6 onward. The
// decoded logical stream is returned alongside the file bytes.
func buildSEBXAStart(t *testing.T) (file, logical []byte) {
	t.Helper()
	const (
		indexLocation = 4 * zio.Page // entry 0x22: page 5
		indexBase     = 5 * zio.Page // entry 0x21: page 6
	)
	rnd := rand.New(rand.NewSource(17))
	raw := make([]byte, 2*zio.Page)
	rnd.Read(raw)
	// Page 0 is the index page itself.
	for i := 0; i < 16+4*16; i++ {
		raw[i] = 0
	}
	raw[1] = 4
	putSEBXAEntry(raw, 0, 0x00, 3, 2)
	putSEBXAEntry(raw, 1, 0x21, 6, 0)
	putSEBXAEntry(raw, 2, 0x22, 5, 0)
	putSEBXAEntry(raw, 3, 0x90, 3, 1)

	text := make([]byte, 2*zio.Page)
	rnd.Read(text)
	slice0 := sebxaLiteralEncode(text[:zio.Page])
	slice1 := sebxaLiteralEncode(text[zio.Page:])

	file = make([]byte, indexBase)
	copy(file, raw)
	binary.BigEndian.PutUint32(file[indexLocation:], 0)
	binary.BigEndian.PutUint32(file[indexLocation+4:], uint32(len(slice0)))
	file = append(file, slice0...)
	file = append(file, slice1...)

	logical = append(append([]byte{}, raw...), text...)
	return file, logical
}

func TestGetSEBXAIndexes(t *testing.T) {
	file, _ := buildSEBXAStart(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "START")
	if err := os.WriteFile(path, file, 0644); err != nil {
		t.Fatal(err)
	}

	indexes, err := GetSEBXAIndexes(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := SEBXAIndexes{
		IndexLocation: 4 * zio.Page,
		IndexBase:     5 * zio.Page,
		ZioStart:      2 * zio.Page,
		ZioEnd:        4*zio.Page - 1,
	}
	if indexes != want {
		t.Errorf("got %+v, want %+v", indexes, want)
	}

	// The probe is read-only.
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, file) {
		t.Error("probe modified the file")
	}
}

func TestUnzipSEBXAStartPipeline(t *testing.T) {
	file, logical := buildSEBXAStart(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "START")
	out := filepath.Join(dir, "START.out")
	if err := os.WriteFile(in, file, 0644); err != nil {
		t.Fatal(err)
	}

	r := quietRun()
	if err := r.UnzipStartFile(out, in, zio.SEBXA, 1); err != nil {
		t.Fatal(err)
	}
	if err := r.RewriteSEBXAStart(out, 1); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(logical) {
		t.Fatalf("output length: got %d, want %d", len(got), len(logical))
	}

	// The rewrite drops the 0x21 and 0x22 entries and compacts the rest.
	want := append([]byte{}, logical...)
	want[1] = 2
	putSEBXAEntry(want, 0, 0x00, 3, 2)
	putSEBXAEntry(want, 1, 0x90, 3, 1)
	for i := 16 + 2*16; i < 16+4*16; i++ {
		want[i] = 0
	}
	if !bytes.Equal(got, want) {
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("first difference at byte %d: got %#x, want %#x", i, got[i], want[i])
			}
		}
	}
}

func TestRewriteSEBXAStartKeepsOtherEntries(t *testing.T) {
	page := make([]byte, 2*zio.Page)
	rnd := rand.New(rand.NewSource(29))
	rnd.Read(page[zio.Page:]) // second page must stay untouched
	page[1] = 4
	putSEBXAEntry(page, 0, 0x00, 3, 2)
	putSEBXAEntry(page, 1, 0x21, 6, 0)
	putSEBXAEntry(page, 2, 0x22, 5, 0)
	putSEBXAEntry(page, 3, 0x90, 7, 1)

	dir := t.TempDir()
	path := filepath.Join(dir, "START")
	if err := os.WriteFile(path, page, 0644); err != nil {
		t.Fatal(err)
	}
	r := quietRun()
	if err := r.RewriteSEBXAStart(path, 1); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != 2 {
		t.Errorf("index count: got %d, want 2", got[1])
	}
	if got[16] != 0x00 || got[32] != 0x90 {
		t.Errorf("entry codes: got %#x, %#x; want 0x00, 0x90", got[16], got[32])
	}
	for i := 16 + 2*16; i < 16+4*16; i++ {
		if got[i] != 0 {
			t.Fatalf("freed entry slot not zeroed at byte %d", i)
		}
	}
	if !bytes.Equal(got[zio.Page:], page[zio.Page:]) {
		t.Error("bytes outside the index page changed")
	}

	// A second rewrite finds nothing left to remove.
	if err := r.RewriteSEBXAStart(path, 1); err != nil {
		t.Fatal(err)
	}
	again, _ := os.ReadFile(path)
	if !bytes.Equal(again, got) {
		t.Error("rewrite of an already rewritten page changed bytes")
	}
}
