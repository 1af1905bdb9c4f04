package archlinux

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/VorpalBlade/paketkoll/internal/archive"
	"github.com/VorpalBlade/paketkoll/internal/backend"
	"github.com/VorpalBlade/paketkoll/internal/diskcache"
	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"
)

// Backend implements backend.Files, backend.Packages and
// backend.FilesystemOwner against a local pacman installation.
type Backend struct {
	interner *interner.Interner
	root     string // chroot root, "/" for the live system
	cache    *diskcache.Cache
	// PkgCacheDirs lists directories pacman caches pkg.tar.* archives in
	// (typically /var/cache/pacman/pkg), searched in order.
	PkgCacheDirs []string
}

// New constructs an Arch backend rooted at root (use "/" for the live
// system), caching archive lookups in cache.
func New(in *interner.Interner, root string, cache *diskcache.Cache) *Backend {
	return &Backend{
		interner:     in,
		root:         root,
		cache:        cache,
		PkgCacheDirs: []string{filepath.Join(root, "var/cache/pacman/pkg")},
	}
}

func (b *Backend) ID() pkgmodel.BackendID { return pkgmodel.BackendArch }

func (b *Backend) localDBDir() string {
	return filepath.Join(b.root, "var/lib/pacman/local")
}

func (b *Backend) packageDirs() ([]os.DirEntry, error) {
	return os.ReadDir(b.localDBDir())
}

// ListPackages parses every var/lib/pacman/local/<pkg>-<version>/desc file
// (spec §4.2's Arch analogue).
func (b *Backend) ListPackages(ctx context.Context) (map[pkgmodel.PackageRef]*pkgmodel.Package, error) {
	dirs, err := b.packageDirs()
	if err != nil {
		return nil, err
	}
	out := make(map[pkgmodel.PackageRef]*pkgmodel.Package, len(dirs))
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		descPath := filepath.Join(b.localDBDir(), d.Name(), "desc")
		f, err := os.Open(descPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		rec, err := parseDesc(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		pkg := rec.toPackage(b.interner)
		out[pkg.ID] = pkg
	}
	return out, nil
}

// ListFiles streams FileEntry values decoded from each package's
// gzip-compressed mtree manifest (spec §4.1).
func (b *Backend) ListFiles(ctx context.Context, fn func(pkgmodel.FileEntry) error) error {
	dirs, err := b.packageDirs()
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		mtreePath := filepath.Join(b.localDBDir(), d.Name(), "mtree")
		pkgName := stripVersionSuffix(d.Name())
		owner := pkgmodel.PackageRef(b.interner.Intern(pkgName))

		f, err := os.Open(mtreePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		gr, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return xerrors.Errorf("mtree %s: %w", mtreePath, err)
		}
		err = ParseMtree(gr, "/", func(e pkgmodel.FileEntry) error {
			e.OwnerPkg = &owner
			return fn(e)
		})
		gr.Close()
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Install(ctx context.Context, pkgs []pkgmodel.PackageRef) error {
	return b.pacman(ctx, append([]string{"-S", "--noconfirm"}, b.names(pkgs)...))
}

func (b *Backend) Remove(ctx context.Context, pkgs []pkgmodel.PackageRef) error {
	return b.pacman(ctx, append([]string{"-R", "--noconfirm"}, b.names(pkgs)...))
}

func (b *Backend) MarkReason(ctx context.Context, pkg pkgmodel.PackageRef, reason pkgmodel.InstallReason) error {
	flag := "--asdeps"
	if reason == pkgmodel.ReasonExplicit {
		flag = "--asexplicit"
	}
	return b.pacman(ctx, []string{"-D", flag, b.interner.Lookup(interner.Ref(pkg))})
}

func (b *Backend) names(pkgs []pkgmodel.PackageRef) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = b.interner.Lookup(interner.Ref(p))
	}
	return out
}

func (b *Backend) pacman(ctx context.Context, args []string) error {
	if b.root != "/" {
		args = append([]string{"--root", b.root}, args...)
	}
	cmd := exec.CommandContext(ctx, "pacman", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return xerrors.Errorf("pacman %v: %w: %s", args, err, stderr.String())
	}
	return nil
}

// OriginalFileContents extracts path's pristine bytes from pkg's pkg.tar.*
// archive in PkgCacheDirs, routing through the disk cache (spec §4.4). An
// archive that is not in PkgCacheDirs is not downloaded: the call returns
// *archive.NeedDownload.
func (b *Backend) OriginalFileContents(ctx context.Context, pkg pkgmodel.PackageRef, path string) ([]byte, pkgmodel.Properties, error) {
	name := b.interner.Lookup(interner.Ref(pkg))
	version, err := b.versionOf(name)
	if err != nil {
		return nil, nil, err
	}

	key := diskcache.Key{Backend: string(pkgmodel.BackendArch), Package: name, Version: version, Path: path}
	if b.cache != nil {
		if cached, ok := b.cache.GetBytes(key); ok {
			return cached, nil, nil
		}
	}

	archivePath, err := b.findArchive(name, version)
	if err != nil {
		return nil, nil, err
	}
	tr, err := archive.OpenArchPackage(archivePath)
	if err != nil {
		return nil, nil, err
	}
	defer tr.Close()

	data, _, err := archive.ExtractPath(tr, strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, nil, err
	}
	if b.cache != nil {
		_ = b.cache.PutBytes(key, data)
	}
	return data, nil, nil
}

func (b *Backend) versionOf(name string) (string, error) {
	dirs, err := b.packageDirs()
	if err != nil {
		return "", err
	}
	for _, d := range dirs {
		if stripVersionSuffix(d.Name()) == name {
			return versionSuffix(d.Name()), nil
		}
	}
	return "", xerrors.Errorf("package %q not found in local database", name)
}

func (b *Backend) findArchive(name, version string) (string, error) {
	for _, dir := range b.PkgCacheDirs {
		matches, err := filepath.Glob(filepath.Join(dir, name+"-"+version+"-*.pkg.tar.*"))
		if err != nil {
			continue
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", &archive.NeedDownload{Package: name, Version: version}
}

// stripVersionSuffix splits a pacman local-db directory name
// "pkg-epoch:pkgver-pkgrel" into just "pkg".
func stripVersionSuffix(dirName string) string {
	// pacman directory names are "<name>-<version>-<release>"; version and
	// release never contain '-', so trim the last two hyphen-separated
	// components.
	idx := lastNHyphen(dirName, 2)
	if idx < 0 {
		return dirName
	}
	return dirName[:idx]
}

func versionSuffix(dirName string) string {
	idx := lastNHyphen(dirName, 2)
	if idx < 0 {
		return ""
	}
	return dirName[idx+1:]
}

func lastNHyphen(s string, n int) int {
	idx := len(s)
	for i := 0; i < n; i++ {
		j := lastIndexByte(s[:idx], '-')
		if j < 0 {
			return -1
		}
		idx = j
	}
	return idx
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.FilesystemOwner = (*Backend)(nil)
