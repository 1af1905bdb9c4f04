package debian

import (
	"bufio"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/xerrors"
)

// MD5SumsEntry is one line of a package's info/<pkg>.md5sums sidecar: a
// file's path (relative to /) and its expected MD5 digest (spec §4.2).
type MD5SumsEntry struct {
	Path string
	MD5  [16]byte
}

// ParseMD5Sums parses an info/<pkg>.md5sums file.
func ParseMD5Sums(r io.Reader) ([]MD5SumsEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1*1024*1024)
	var out []MD5SumsEntry
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		// format: "<32 hex chars>  path" (two spaces, but tolerate one)
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return nil, xerrors.Errorf("malformed md5sums line: %q", line)
		}
		hexDigest := fields[0]
		path := strings.TrimLeft(fields[1], " ")
		var b [16]byte
		decoded, err := hex.DecodeString(hexDigest)
		if err != nil || len(decoded) != 16 {
			return nil, xerrors.Errorf("malformed md5 digest in line: %q", line)
		}
		copy(b[:], decoded)
		out = append(out, MD5SumsEntry{Path: "/" + strings.TrimPrefix(path, "/"), MD5: b})
	}
	return out, sc.Err()
}

// ParseFileList parses an info/<pkg>.list file: one absolute path per line,
// covering every path the package installs (including directories and
// non-regular files that have no md5sums entry).
func ParseFileList(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1*1024*1024)
	var out []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
