// Package scan implements the parallel filesystem walker (spec §2 C7,
// §4.5): producing observed pkgmodel.FileEntry values for everything under
// a root, honouring an ignore set, hashing file content only when needed.
//
// Grounded on the errgroup fan-out idiom in distri's
// cmd/distri/install.go (parallel fetch/unpack), generalised from "one
// goroutine per package" to "one goroutine per directory subtree".
package scan

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/VorpalBlade/paketkoll/internal/globset"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// DefaultIgnores are the default scanner exclusions (spec §4.5).
var DefaultIgnores = []string{
	"/dev/**", "/proc/**", "/sys/**", "/run/**", "/tmp/**", "/var/tmp/**",
	"/home/**", "/root/**", "/media/**", "/mnt/**", "/**/lost+found",
}

// ExpectedMtime looks up the expected mtime for path, if any is known, so
// the scanner can decide whether trust-mtime mode lets it skip hashing.
type ExpectedMtime func(path string) (mtime int64, ok bool)

// Options configures a Scanner.
type Options struct {
	Ignores    *globset.Set
	TrustMtime bool
	// HashSizeWarnThreshold is the file size (bytes) above which hashing
	// logs a warning (spec §4.5). Zero disables the warning.
	HashSizeWarnThreshold int64
	Concurrency           int
	Expected              ExpectedMtime
	Logger                *log.Logger
	// ChecksumKind selects which digest the scanner computes, so it
	// matches whichever backend owns the tree being scanned (Arch:
	// sha256, Debian: md5 from md5sums) — comparing across checksum
	// kinds is a backend mismatch, not a content difference (spec §3).
	// Defaults to ChecksumSHA256.
	ChecksumKind pkgmodel.ChecksumKind
}

// Scanner walks a filesystem root producing observed FileEntry values.
type Scanner struct {
	opts Options
}

func New(opts Options) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Ignores == nil {
		opts.Ignores = globset.New(DefaultIgnores...)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "scan: ", log.LstdFlags)
	}
	return &Scanner{opts: opts}
}

// Scan walks root, sending one FileEntry per non-ignored path to fn. fn is
// called from multiple goroutines, but never concurrently: Scan serialises
// the calls. Scan returns the first fatal error; per-entry stat/read errors are
// logged and skipped, matching spec §7 ("Parse and I/O errors during
// scanning are collected, not fatal").
func (s *Scanner) Scan(ctx context.Context, root string, fn func(pkgmodel.FileEntry) error) error {
	sem := make(chan struct{}, s.opts.Concurrency)
	var mu sync.Mutex // serialises fn, since callers may not expect concurrent calls
	g, ctx := errgroup.WithContext(ctx)

	var walk func(dir string) error
	walk = func(dir string) error {
		if s.opts.Ignores.Match(dir) {
			return nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.opts.Logger.Printf("readdir %s: %v", dir, err)
			return nil
		}
		for _, de := range entries {
			de := de
			full := filepath.Join(dir, de.Name())
			if s.opts.Ignores.Match(full) {
				continue
			}
			if de.IsDir() {
				sub := full
				g.Go(func() error { return walk(sub) }) // directory is also an entry, statted below
			}
			sem <- struct{}{}
			g.Go(func() error {
				defer func() { <-sem }()
				entry, err := s.statOne(full)
				if err != nil {
					s.opts.Logger.Printf("stat %s: %v", full, err)
					return nil
				}
				if entry == nil {
					return nil
				}
				mu.Lock()
				err = fn(*entry)
				mu.Unlock()
				return err
			})
		}
		return nil
	}

	g.Go(func() error { return walk(root) })
	return g.Wait()
}

func (s *Scanner) statOne(path string) (*pkgmodel.FileEntry, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, err
	}

	mode := uint16(st.Mode & 0o7777)
	uid := st.Uid
	gid := st.Gid

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return &pkgmodel.FileEntry{Path: path, Properties: pkgmodel.Directory{Mode: mode, UID: uid, GID: gid}}, nil
	case unix.S_IFLNK:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		return &pkgmodel.FileEntry{Path: path, Properties: pkgmodel.Symlink{Target: target, Mode: mode, UID: uid, GID: gid}}, nil
	case unix.S_IFCHR, unix.S_IFBLK:
		kind := pkgmodel.DeviceChar
		if st.Mode&unix.S_IFMT == unix.S_IFBLK {
			kind = pkgmodel.DeviceBlock
		}
		major := uint32(unix.Major(uint64(st.Rdev)))
		minor := uint32(unix.Minor(uint64(st.Rdev)))
		return &pkgmodel.FileEntry{Path: path, Properties: pkgmodel.Device{Mode: mode, UID: uid, GID: gid, Kind: kind, Major: major, Minor: minor}}, nil
	case unix.S_IFIFO:
		return &pkgmodel.FileEntry{Path: path, Properties: pkgmodel.Fifo{Mode: mode, UID: uid, GID: gid}}, nil
	case unix.S_IFSOCK:
		return &pkgmodel.FileEntry{Path: path, Properties: pkgmodel.Socket{Mode: mode, UID: uid, GID: gid}}, nil
	default: // regular file
		size := uint64(st.Size)
		mtime := int64(st.Mtim.Sec)
		var checksum *pkgmodel.Checksum
		needHash := !s.opts.TrustMtime
		if s.opts.TrustMtime && s.opts.Expected != nil {
			if expectedMtime, ok := s.opts.Expected(path); !ok || expectedMtime != mtime {
				needHash = true
			}
		}
		if needHash {
			if s.opts.HashSizeWarnThreshold > 0 && int64(size) > s.opts.HashSizeWarnThreshold {
				s.opts.Logger.Printf("hashing large file %s (%d bytes)", path, size)
			}
			c, err := hashFile(path, s.opts.ChecksumKind)
			if err != nil {
				return nil, err
			}
			checksum = &c
		}
		return &pkgmodel.FileEntry{Path: path, Properties: pkgmodel.RegularFile{
			Mode: mode, UID: uid, GID: gid, Size: size, Mtime: &mtime, Checksum: checksum,
		}}, nil
	}
}

func hashFile(path string, kind pkgmodel.ChecksumKind) (pkgmodel.Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return pkgmodel.Checksum{}, err
	}
	defer f.Close()

	var h hash.Hash
	switch kind {
	case pkgmodel.ChecksumMD5:
		h = md5.New()
	default:
		h = sha256.New()
	}
	if _, err := io.Copy(h, f); err != nil {
		return pkgmodel.Checksum{}, err
	}

	if kind == pkgmodel.ChecksumMD5 {
		var out [16]byte
		copy(out[:], h.Sum(nil))
		return pkgmodel.NewMD5(out), nil
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return pkgmodel.NewSHA256(out), nil
}
