// Package archive stream-decodes the two package container formats this
// spec cares about (spec §4.3): Arch's pkg.tar.{zst,gz,xz} and Debian's
// .deb (an ar archive nesting data.tar.{gz,xz,zst,bz2}). Entries are
// streamed; a single-path lookup reads sequentially and stops at the first
// match, and a separate batch mode walks every entry for cache population
// (C6).
//
// Grounded on the ar+tar streaming idiom used throughout the retrieval
// pack's .deb readers (e.g. blakesmith/ar wrapped around archive/tar), and
// on distri's own gzip-wrapping-over-HTTP pattern in cmd/distri/install.go.
package archive

import (
	"archive/tar"
	"bufio"
	"compress/bzip2"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Compression identifies the outer compression wrapping a tar stream.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionXz
	CompressionBzip2
)

// DetectCompression infers the compression from a file name's suffix, the
// way both Arch's pkg.tar.* and Debian's data.tar.* are named.
func DetectCompression(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(name, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(name, ".xz"):
		return CompressionXz
	case strings.HasSuffix(name, ".bz2"):
		return CompressionBzip2
	default:
		return CompressionNone
	}
}

// decompressedReader wraps r with the decompressor named by c. Callers must
// call Close (even for CompressionNone/Bzip2, where it is a no-op) so
// zstd/gzip readers release their internal buffers/goroutines.
type decompressedReader struct {
	io.Reader
	closeFn func() error
}

func (d *decompressedReader) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

func newDecompressedReader(r io.Reader, c Compression) (*decompressedReader, error) {
	switch c {
	case CompressionGzip:
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &decompressedReader{Reader: zr, closeFn: zr.Close}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &decompressedReader{Reader: zr, closeFn: func() error { zr.Close(); return nil }}, nil
	case CompressionXz:
		xr, err := xz.NewReader(bufio.NewReader(r))
		if err != nil {
			return nil, err
		}
		return &decompressedReader{Reader: xr}, nil
	case CompressionBzip2:
		return &decompressedReader{Reader: bzip2.NewReader(r)}, nil
	default:
		return &decompressedReader{Reader: r}, nil
	}
}

// TarReader is a streaming tar reader plus the handle to close once done.
type TarReader struct {
	Tar *tar.Reader

	underlying io.Closer
	dr         *decompressedReader
}

// Close releases the decompressor and the underlying stream.
func (t *TarReader) Close() error {
	var err error
	if t.dr != nil {
		if cerr := t.dr.Close(); cerr != nil {
			err = cerr
		}
	}
	if t.underlying != nil {
		if cerr := t.underlying.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// NewTarReader wraps r (closed together with the returned TarReader, if
// non-nil) with the decompressor for c and returns a streaming tar reader
// over the result.
func NewTarReader(r io.ReadCloser, c Compression) (*TarReader, error) {
	dr, err := newDecompressedReader(r, c)
	if err != nil {
		return nil, err
	}
	return &TarReader{Tar: tar.NewReader(dr), underlying: r, dr: dr}, nil
}

// EntryFunc is called once per tar entry during a batch walk (ExtractAll).
// Returning an error aborts the walk.
type EntryFunc func(hdr *tar.Header, r io.Reader) error

// ExtractAll streams every entry in t to fn. This is the slow path used to
// populate the disk-cache summary (C6) in one pass rather than re-decoding
// the whole archive per path.
func ExtractAll(t *TarReader, fn EntryFunc) error {
	for {
		hdr, err := t.Tar.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(hdr, t.Tar); err != nil {
			return err
		}
	}
}

// ExtractPath reads entries sequentially until path is found, returning its
// full decompressed content, or *NotFound if the stream ends first (spec
// §4.3: "random access to a single path reads sequentially and stops at the
// first match").
func ExtractPath(t *TarReader, path string) ([]byte, *tar.Header, error) {
	clean := strings.TrimPrefix(path, "./")
	for {
		hdr, err := t.Tar.Next()
		if err == io.EOF {
			return nil, nil, &NotFound{Path: path}
		}
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimPrefix(hdr.Name, "./") != clean {
			continue
		}
		b, err := io.ReadAll(t.Tar)
		if err != nil {
			return nil, nil, err
		}
		return b, hdr, nil
	}
}
