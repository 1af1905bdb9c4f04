package archive

import (
	"os"
	"strings"
)

// OpenArchPackage opens an Arch pkg.tar.{zst,gz,xz} file at path and returns
// a streaming tar reader over its contents (spec §4.3).
func OpenArchPackage(path string) (*TarReader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NeedDownload{Package: path}
		}
		return nil, err
	}
	c := detectArchCompression(path)
	tr, err := NewTarReader(f, c)
	if err != nil {
		f.Close()
		return nil, &Corrupt{Package: path, Err: err}
	}
	return tr, nil
}

func detectArchCompression(path string) Compression {
	// strip the ".pkg.tar.*" suffix's final extension, e.g.
	// "foo-1.2-1-x86_64.pkg.tar.zst" -> ".zst"
	base := path
	if idx := strings.LastIndex(base, ".pkg.tar."); idx >= 0 {
		return DetectCompression(base[idx+len(".pkg.tar"):])
	}
	return DetectCompression(base)
}
