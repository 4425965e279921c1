package book

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/mistydemeo/eb/internal/zio"
)

func write(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func epwingCatalog(dirs ...string) []byte {
	buf := make([]byte, 16+2*CatalogSizeEPWing*len(dirs))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(dirs)))
	for i, dir := range dirs {
		record := buf[16+i*CatalogSizeEPWing:]
		copy(record[2:82], "Title of "+dir)
		copy(record[82:90], dir)
	}
	return buf
}

func ebCatalog(indexPage uint16, dirs ...string) []byte {
	buf := make([]byte, 16+CatalogSizeEB*len(dirs))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(dirs)))
	for i, dir := range dirs {
		record := buf[16+i*CatalogSizeEB:]
		binary.BigEndian.PutUint16(record[0:2], indexPage)
		copy(record[2:32], "Title of "+dir)
		copy(record[32:40], dir)
	}
	return buf
}

func TestBindEPWing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "book")
	write(t, filepath.Join(root, "CATALOGS"), epwingCatalog("dict1", "dict2"))
	write(t, filepath.Join(root, "dict1", "DATA", "HONMON"), make([]byte, 4096))
	write(t, filepath.Join(root, "dict1", "DATA", "HONMONS.ebz"), []byte("EBZipx"))
	write(t, filepath.Join(root, "dict1", "GAIJI", "GA16HAN"), make([]byte, 2048))
	write(t, filepath.Join(root, "dict1", "GAIJI", "GA16FUL;1"), make([]byte, 2048))
	write(t, filepath.Join(root, "dict1", "MOVIE", "clip.mpg"), []byte("m"))
	write(t, filepath.Join(root, "dict2", "data", "HONMON2.org"), make([]byte, 2048))

	b, err := Bind(root)
	if err != nil {
		t.Fatal(err)
	}
	if b.DiscKind != DiscEPWing {
		t.Fatalf("disc kind: got %v", b.DiscKind)
	}
	if len(b.Subbooks) != 2 {
		t.Fatalf("subbooks: got %d, want 2", len(b.Subbooks))
	}

	dict1 := b.Subbooks[0]
	if dict1.Directory != "dict1" || dict1.DataDir != "DATA" {
		t.Errorf("dict1 layout: %q/%q", dict1.Directory, dict1.DataDir)
	}
	if dict1.TextFile != "HONMON" || dict1.TextKind != zio.Plain {
		t.Errorf("dict1 text: %q kind %v", dict1.TextFile, dict1.TextKind)
	}
	if dict1.SoundFile != "HONMONS.ebz" || dict1.SoundKind != zio.EBZip1 {
		t.Errorf("dict1 sound: %q kind %v", dict1.SoundFile, dict1.SoundKind)
	}
	if dict1.GraphicKind != zio.Invalid {
		t.Errorf("dict1 graphic kind: %v, want invalid", dict1.GraphicKind)
	}
	if len(dict1.NarrowFonts) != 1 || dict1.NarrowFonts[0].File != "GA16HAN" || dict1.NarrowFonts[0].Height != 16 {
		t.Errorf("dict1 narrow fonts: %+v", dict1.NarrowFonts)
	}
	if len(dict1.WideFonts) != 1 || dict1.WideFonts[0].File != "GA16FUL;1" {
		t.Errorf("dict1 wide fonts: %+v", dict1.WideFonts)
	}
	if dict1.MovieDir != "MOVIE" {
		t.Errorf("dict1 movie dir: %q", dict1.MovieDir)
	}

	dict2 := b.Subbooks[1]
	if dict2.TextFile != "HONMON2.org" || dict2.TextKind != zio.Plain {
		t.Errorf("dict2 text: %q kind %v", dict2.TextFile, dict2.TextKind)
	}

	if _, ok := b.FindSubbook("DICT2"); !ok {
		t.Error("FindSubbook is not case-insensitive")
	}
	if _, ok := b.FindSubbook("dict3"); ok {
		t.Error("FindSubbook invented a subbook")
	}
}

func TestBindEB(t *testing.T) {
	root := filepath.Join(t.TempDir(), "book")
	write(t, filepath.Join(root, "CATALOG"), ebCatalog(1, "sub1"))
	write(t, filepath.Join(root, "sub1", "START;1"), make([]byte, 4096))

	b, err := Bind(root)
	if err != nil {
		t.Fatal(err)
	}
	if b.DiscKind != DiscEB {
		t.Fatalf("disc kind: got %v", b.DiscKind)
	}
	sub := b.Subbooks[0]
	if sub.TextFile != "START;1" || sub.TextKind != zio.Plain {
		t.Errorf("text: %q kind %v", sub.TextFile, sub.TextKind)
	}
	if sub.IndexPage != 1 {
		t.Errorf("index page: got %d", sub.IndexPage)
	}
}

func TestBindDetectsSEBXAStart(t *testing.T) {
	root := filepath.Join(t.TempDir(), "book")
	write(t, filepath.Join(root, "CATALOG"), ebCatalog(1, "sub1"))
	start := make([]byte, 4*zio.Page)
	start[1] = 3
	start[16] = 0x00
	start[16+16] = 0x21
	start[16+32] = 0x22
	write(t, filepath.Join(root, "sub1", "START"), start)

	b, err := Bind(root)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := b.Subbooks[0].TextKind, zio.SEBXA; got != want {
		t.Errorf("text kind: got %v, want %v", got, want)
	}
}

func TestBindWithoutCatalog(t *testing.T) {
	if _, err := Bind(t.TempDir()); err == nil {
		t.Fatal("Bind accepted a directory without a catalog")
	}
}

func TestFindFileName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"CATALOGS", "HONMON.EBZ;1", "Language"} {
		write(t, filepath.Join(dir, name), []byte("x"))
	}
	for _, tt := range []struct {
		base string
		want string
	}{
		{"catalogs", "CATALOGS"},
		{"honmon", "HONMON.EBZ;1"},
		{"language", "Language"},
	} {
		got, err := FindFileName(dir, tt.base)
		if err != nil {
			t.Errorf("FindFileName(%q): %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FindFileName(%q): got %q, want %q", tt.base, got, tt.want)
		}
	}
	if _, err := FindFileName(dir, "honmons"); err == nil {
		t.Error("FindFileName found a file that is not there")
	}
}

func TestPathKind(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.ebz"), []byte("anything"))
	write(t, filepath.Join(dir, "b.org"), []byte("anything"))
	write(t, filepath.Join(dir, "c"), []byte("EBZip and more"))
	write(t, filepath.Join(dir, "d"), []byte("plain old bytes"))

	for _, tt := range []struct {
		name string
		want zio.Kind
	}{
		{"a.ebz", zio.EBZip1},
		{"b.org", zio.Plain},
		{"c", zio.EBZip1},
		{"d", zio.Plain},
		{"missing", zio.Invalid},
	} {
		if got := PathKind(filepath.Join(dir, tt.name)); got != tt.want {
			t.Errorf("PathKind(%s): got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCanonicalizePath(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"/", ""},
		{"/books/", "/books"},
		{"/books", "/books"},
		{".", "."},
	} {
		if got := CanonicalizePath(tt.in); got != tt.want {
			t.Errorf("CanonicalizePath(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
