package archive

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/blakesmith/ar"
)

// OpenDebData opens the .deb at path, locates its data.tar.{gz,xz,zst,bz2}
// member inside the outer ar container, and returns a streaming tar reader
// over the decompressed nested tar (spec §4.3).
func OpenDebData(path string) (*TarReader, error) {
	return openDebMember(path, "data.tar")
}

// OpenDebControl is the analogous opener for the control.tar.* member,
// which carries md5sums/control/conffiles used by the Debian backend (C2)
// when the .deb itself (rather than the installed dpkg database) is the
// source of truth.
func OpenDebControl(path string) (*TarReader, error) {
	return openDebMember(path, "control.tar")
}

func openDebMember(path, prefix string) (*TarReader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NeedDownload{Package: path}
		}
		return nil, err
	}

	arRd := ar.NewReader(f)
	for {
		hdr, err := arRd.Next()
		if err == io.EOF {
			f.Close()
			return nil, &Corrupt{Package: path, Err: &NotFound{Path: prefix + ".*"}}
		}
		if err != nil {
			f.Close()
			return nil, &Corrupt{Package: path, Err: err}
		}
		name := strings.TrimSpace(hdr.Name)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		c := DetectCompression(name)
		// ar.Reader has no Close method of its own; buffer the member
		// fully (data.tar.* members are small enough, tens of MB at
		// most) and close the underlying file immediately afterwards.
		b, err := io.ReadAll(arRd)
		if err != nil {
			f.Close()
			return nil, &Corrupt{Package: path, Path: name, Err: err}
		}
		f.Close()
		tr, err := NewTarReader(io.NopCloser(bytes.NewReader(b)), c)
		if err != nil {
			return nil, &Corrupt{Package: path, Path: name, Err: err}
		}
		return tr, nil
	}
}
