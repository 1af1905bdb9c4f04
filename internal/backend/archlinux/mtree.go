// Package archlinux implements the Arch backend: parsing a package's
// .MTREE manifest (spec §4.1, "C1 Manifest parser (Arch)") and its pacman
// local-database "desc"/"files" records (spec §4.2's Debian analogue,
// mirrored for Arch), plus pkg.tar.* archive access for FilesystemOwner.
//
// The "manifest" spec.md describes — indented records carrying type, mode,
// uid, gid, time, size, sha256, link, honouring /set sticky defaults and
// octal/NetBSD filename escapes — is BSD mtree(5) format, which is exactly
// what pacman ships per package as a gzip-compressed .MTREE file. This
// parser targets that format directly.
package archlinux

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"golang.org/x/xerrors"
)

// ParseError is returned for a malformed mtree record (spec §4.1).
type ParseError struct {
	Line    int
	Context string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mtree parse error at line %d: %s", e.Line, e.Context)
}

// mtreeDefaults holds the sticky key/value defaults established by the most
// recent "/set" line, scoped to the current block (spec §4.1).
type mtreeDefaults struct {
	kv map[string]string
}

func newDefaults() mtreeDefaults { return mtreeDefaults{kv: make(map[string]string)} }

func (d mtreeDefaults) clone() mtreeDefaults {
	out := newDefaults()
	for k, v := range d.kv {
		out.kv[k] = v
	}
	return out
}

// ParseMtree reads an uncompressed mtree stream and calls fn once per
// resolved FileEntry. root is the path the manifest's relative tree is
// rooted at (default "/").
func ParseMtree(r io.Reader, root string, fn func(pkgmodel.FileEntry) error) error {
	if root == "" {
		root = "/"
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	defaults := newDefaults()
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := splitUnescapedSpace(trimmed)
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "/set" {
			for _, kv := range fields[1:] {
				k, v, ok := splitKV(kv)
				if !ok {
					continue // unrecognised key: warn-and-skip (spec §4.1)
				}
				defaults.kv[k] = v
			}
			continue
		}
		if fields[0] == "/unset" {
			for _, k := range fields[1:] {
				delete(defaults.kv, k)
			}
			continue
		}

		namePath := fields[0]
		if !strings.HasPrefix(namePath, "./") && namePath != "." {
			return &ParseError{Line: lineNo, Context: "entry does not begin with ./"}
		}
		decodedName, err := unescapeName(namePath)
		if err != nil {
			return &ParseError{Line: lineNo, Context: err.Error()}
		}
		abs := resolveRelative(root, decodedName)

		kv := defaults.clone()
		for _, f := range fields[1:] {
			k, v, ok := splitKV(f)
			if !ok {
				continue
			}
			kv.kv[k] = v
		}

		entry, err := buildEntry(abs, kv.kv)
		if err != nil {
			return &ParseError{Line: lineNo, Context: err.Error()}
		}
		if entry == nil {
			continue // e.g. a comment-only /set scope change
		}
		if err := fn(*entry); err != nil {
			return err
		}
	}
	return sc.Err()
}

func splitKV(s string) (key, val string, ok bool) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// splitUnescapedSpace splits on whitespace but does not split inside a
// backslash escape sequence (so "\ " inside a filename does not end the
// token prematurely).
func splitUnescapedSpace(s string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == ' ' || r == '\t':
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

func resolveRelative(root, rel string) string {
	root = strings.TrimSuffix(root, "/")
	if root == "" {
		root = "/"
	}
	parts := strings.Split(rel, "/")
	stack := strings.Split(strings.TrimPrefix(root, "/"), "/")
	if len(stack) == 1 && stack[0] == "" {
		stack = stack[:0]
	}
	for _, p := range parts {
		switch p {
		case "", ".":
			// no-op
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			// going above the root is silently capped at the root (spec §4.1)
		default:
			stack = append(stack, p)
		}
	}
	return "/" + strings.Join(stack, "/")
}

func buildEntry(path string, kv map[string]string) (*pkgmodel.FileEntry, error) {
	typ := kv["type"]
	if typ == "" {
		return nil, nil
	}
	mode, err := parseMode(kv["mode"])
	if err != nil {
		return nil, err
	}
	uid, _ := parseUint32(kv["uid"])
	gid, _ := parseUint32(kv["gid"])

	var props pkgmodel.Properties
	switch typ {
	case "file":
		size, _ := parseUint64(kv["size"])
		var mtime *int64
		if t, ok := kv["time"]; ok {
			secs := strings.SplitN(t, ".", 2)[0]
			if v, err := strconv.ParseInt(secs, 10, 64); err == nil {
				mtime = &v
			}
		}
		var checksum *pkgmodel.Checksum
		if h, ok := kv["sha256digest"]; ok {
			var b [32]byte
			if n, err := decodeHex(h, b[:]); err == nil && n == 32 {
				c := pkgmodel.NewSHA256(b)
				checksum = &c
			}
		}
		props = pkgmodel.RegularFile{Mode: mode, UID: uid, GID: gid, Size: size, Mtime: mtime, Checksum: checksum}
	case "dir":
		props = pkgmodel.Directory{Mode: mode, UID: uid, GID: gid}
	case "link":
		target, err := unescapeName(kv["link"])
		if err != nil {
			return nil, err
		}
		props = pkgmodel.Symlink{Target: target, Mode: mode, UID: uid, GID: gid}
	case "fifo":
		props = pkgmodel.Fifo{Mode: mode, UID: uid, GID: gid}
	case "socket":
		props = pkgmodel.Socket{Mode: mode, UID: uid, GID: gid}
	case "char", "block":
		major, _ := parseUint32(kv["major"])
		minor, _ := parseUint32(kv["minor"])
		k := pkgmodel.DeviceChar
		if typ == "block" {
			k = pkgmodel.DeviceBlock
		}
		props = pkgmodel.Device{Mode: mode, UID: uid, GID: gid, Kind: k, Major: major, Minor: minor}
	default:
		return nil, xerrors.Errorf("unsupported mtree type %q", typ)
	}

	return &pkgmodel.FileEntry{
		Path:       path,
		Properties: props,
		Source:     pkgmodel.SourcePackageManager,
	}, nil
}

func parseMode(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 8, 16)
	if err != nil {
		return 0, xerrors.Errorf("invalid mode %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseUint32(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseUint64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func decodeHex(s string, dst []byte) (int, error) {
	if len(s) != len(dst)*2 {
		return 0, xerrors.Errorf("wrong hex length")
	}
	for i := range dst {
		var b byte
		for j := 0; j < 2; j++ {
			c := s[i*2+j]
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= c - '0'
			case c >= 'a' && c <= 'f':
				b |= c - 'a' + 10
			case c >= 'A' && c <= 'F':
				b |= c - 'A' + 10
			default:
				return 0, xerrors.Errorf("invalid hex digit %q", c)
			}
		}
		dst[i] = b
	}
	return len(dst), nil
}

// unescapeName decodes mtree filename escapes: octal (\nnn), NetBSD
// high-bit (\M-^x, i.e. \M followed by a caret-quoted control char), and
// the standard C escapes \n \t \\ (spec §4.1). Non-UTF-8 byte sequences are
// preserved as-is, since the decoded bytes are never re-validated as UTF-8.
func unescapeName(s string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '\\' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", xerrors.Errorf("trailing backslash in name %q", s)
		}
		next := s[i+1]
		switch next {
		case 'n':
			out.WriteByte('\n')
			i += 2
		case 't':
			out.WriteByte('\t')
			i += 2
		case '\\':
			out.WriteByte('\\')
			i += 2
		case 'M':
			// \M-^x or \M^x: NetBSD high-bit encoding. Pattern is
			// "\M" then optional "-" then "^" then one char; the
			// resulting byte has the high bit set and the char XORed
			// with 0x40 (caret-notation control char decoding).
			j := i + 2
			if j < len(s) && s[j] == '-' {
				j++
			}
			if j >= len(s) || s[j] != '^' {
				return "", xerrors.Errorf("malformed \\M escape in name %q", s)
			}
			j++
			if j >= len(s) {
				return "", xerrors.Errorf("malformed \\M escape in name %q", s)
			}
			ctrl := s[j] ^ 0x40
			out.WriteByte(ctrl | 0x80)
			i = j + 1
		case '0', '1', '2', '3', '4', '5', '6', '7':
			if i+4 > len(s) {
				return "", xerrors.Errorf("truncated octal escape in name %q", s)
			}
			v, err := strconv.ParseUint(s[i+1:i+4], 8, 8)
			if err != nil {
				return "", xerrors.Errorf("invalid octal escape in name %q: %w", s, err)
			}
			out.WriteByte(byte(v))
			i += 4
		default:
			// unknown escape: keep literally, matching "warn and skip"
			// leniency elsewhere in the parser.
			out.WriteByte('\\')
			out.WriteByte(next)
			i += 2
		}
	}
	return out.String(), nil
}
