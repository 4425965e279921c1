package zio

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/xerrors"
)

// CompressSlice deflates one slice into dst at the highest compression
// level. dst is reset first. Callers compare dst.Len() against len(src): a
// result that did not shrink is discarded and the raw slice stored instead.
func CompressSlice(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	w, err := zlib.NewWriterLevel(dst, zlib.BestCompression)
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// DecompressSlice inflates one compressed slice into dst, which must have
// the exact decompressed length.
func DecompressSlice(dst, src []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return xerrors.Errorf("inflating slice: %w", ErrBadContainer)
	}
	defer r.Close()
	if _, err := io.ReadFull(r, dst); err != nil {
		return xerrors.Errorf("inflating slice: %w", ErrBadContainer)
	}
	return nil
}
