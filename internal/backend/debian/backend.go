package debian

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
	"golang.org/x/xerrors"
)

// Backend implements backend.Files, backend.Packages and
// backend.FilesystemOwner against a local dpkg/apt installation.
type Backend struct {
	interner *interner.Interner
	root     string
	cache    *diskcache.Cache
	// AptCacheDirs lists directories apt caches .deb archives in
	// (typically /var/cache/apt/archives), searched in order.
	AptCacheDirs []string

	diversions []Diversion
}

func New(in *interner.Interner, root string, cache *diskcache.Cache) (*Backend, error) {
	b := &Backend{
		interner:     in,
		root:         root,
		cache:        cache,
		AptCacheDirs: []string{filepath.Join(root, "var/cache/apt/archives")},
	}
	if f, err := os.Open(filepath.Join(root, "var/lib/dpkg/diversions")); err == nil {
		defer f.Close()
		divs, err := ParseDiversions(f)
		if err != nil {
			return nil, err
		}
		b.diversions = divs
	}
	return b, nil
}

func (b *Backend) ID() pkgmodel.BackendID { return pkgmodel.BackendDebian }

func (b *Backend) statusPath() string { return filepath.Join(b.root, "var/lib/dpkg/status") }
func (b *Backend) infoDir() string    { return filepath.Join(b.root, "var/lib/dpkg/info") }

func (b *Backend) autoInstalled() map[string]bool {
	f, err := os.Open(filepath.Join(b.root, "var/lib/apt/extended_states"))
	if err != nil {
		return nil
	}
	defer f.Close()
	m, err := ParseExtendedStates(f)
	if err != nil {
		return nil
	}
	return m
}

// ListPackages parses the dpkg status file (spec §4.2).
func (b *Backend) ListPackages(ctx context.Context) (map[pkgmodel.PackageRef]*pkgmodel.Package, error) {
	f, err := os.Open(b.statusPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stanzas, err := ParseStatus(f)
	if err != nil {
		return nil, err
	}
	auto := b.autoInstalled()
	out := make(map[pkgmodel.PackageRef]*pkgmodel.Package, len(stanzas))
	for _, s := range stanzas {
		pkg := s.toPackage(b.interner, auto[s.Get("package")])
		out[pkg.ID] = pkg
	}
	return out, nil
}

// ListFiles streams FileEntry values built from each installed package's
// info/<pkg>.md5sums and info/<pkg>.list sidecars, with diversions applied
// before the caller dedups by path (spec §4.2).
func (b *Backend) ListFiles(ctx context.Context, fn func(pkgmodel.FileEntry) error) error {
	f, err := os.Open(b.statusPath())
	if err != nil {
		return err
	}
	stanzas, err := ParseStatus(f)
	f.Close()
	if err != nil {
		return err
	}

	for _, s := range stanzas {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := s.Get("package")
		owner := pkgmodel.PackageRef(b.interner.Intern(name))
		infoBase := filepath.Join(b.infoDir(), name)
		if arch := s.Get("architecture"); arch != "" {
			if _, err := os.Stat(infoBase + ":" + arch + ".list"); err == nil {
				infoBase = infoBase + ":" + arch
			}
		}

		md5set := make(map[string][16]byte)
		if mf, err := os.Open(infoBase + ".md5sums"); err == nil {
			entries, err := ParseMD5Sums(mf)
			mf.Close()
			if err != nil {
				return err
			}
			for _, e := range entries {
				md5set[e.Path] = e.MD5
			}
		}

		lf, err := os.Open(infoBase + ".list")
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		paths, err := ParseFileList(lf)
		lf.Close()
		if err != nil {
			return err
		}

		for _, p := range paths {
			effective, _ := Apply(b.diversions, p)
			var props pkgmodel.Properties
			if md5, ok := md5set[p]; ok {
				c := pkgmodel.NewMD5(md5)
				props = pkgmodel.RegularFile{Checksum: &c}
			} else {
				props = pkgmodel.Unknown{}
			}
			entry := pkgmodel.FileEntry{
				Path:       effective,
				OwnerPkg:   &owner,
				Properties: props,
				Source:     pkgmodel.SourcePackageManager,
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) Install(ctx context.Context, pkgs []pkgmodel.PackageRef) error {
	return b.apt(ctx, append([]string{"install", "-y"}, b.names(pkgs)...))
}

func (b *Backend) Remove(ctx context.Context, pkgs []pkgmodel.PackageRef) error {
	return b.apt(ctx, append([]string{"remove", "-y"}, b.names(pkgs)...))
}

func (b *Backend) MarkReason(ctx context.Context, pkg pkgmodel.PackageRef, reason pkgmodel.InstallReason) error {
	flag := "auto"
	if reason == pkgmodel.ReasonExplicit {
		flag = "manual"
	}
	cmd := exec.CommandContext(ctx, "apt-mark", flag, b.interner.Lookup(interner.Ref(pkg)))
	if b.root != "/" {
		cmd.Env = append(os.Environ(), "DPKG_ROOT="+b.root)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return xerrors.Errorf("apt-mark %s: %w: %s", flag, err, stderr.String())
	}
	return nil
}

func (b *Backend) names(pkgs []pkgmodel.PackageRef) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = b.interner.Lookup(interner.Ref(p))
	}
	return out
}

func (b *Backend) apt(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "apt-get", args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	if b.root != "/" {
		cmd.Env = append(cmd.Env, "DPKG_ROOT="+b.root)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return xerrors.Errorf("apt-get %v: %w: %s", args, err, stderr.String())
	}
	return nil
}

// OriginalFileContents extracts path's pristine bytes from pkg's .deb
// archive in AptCacheDirs, caching the extracted bytes per package version
// and path so that a repeated call for the same path skips the archive. An
// archive that is not in AptCacheDirs is not downloaded: the call returns
// *archive.NeedDownload.
func (b *Backend) OriginalFileContents(ctx context.Context, pkg pkgmodel.PackageRef, path string) ([]byte, pkgmodel.Properties, error) {
	name := b.interner.Lookup(interner.Ref(pkg))
	version, err := b.versionOf(name)
	if err != nil {
		return nil, nil, err
	}

	key := diskcache.Key{Backend: string(pkgmodel.BackendDebian), Package: name, Version: version, Path: path}
	if b.cache != nil {
		if cached, ok := b.cache.GetBytes(key); ok {
			return cached, nil, nil
		}
	}

	debPath, err := b.findArchive(name, version)
	if err != nil {
		return nil, nil, err
	}
	tr, err := archive.OpenDebData(debPath)
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
	f, err := os.Open(b.statusPath())
	if err != nil {
		return "", err
	}
	defer f.Close()
	stanzas, err := ParseStatus(f)
	if err != nil {
		return "", err
	}
	for _, s := range stanzas {
		if s.Get("package") == name {
			return s.Get("version"), nil
		}
	}
	return "", xerrors.Errorf("package %q not found in dpkg status", name)
}

func (b *Backend) findArchive(name, version string) (string, error) {
	for _, dir := range b.AptCacheDirs {
		matches, err := filepath.Glob(filepath.Join(dir, name+"_"+debianEpochless(version)+"_*.deb"))
		if err != nil {
			continue
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", &archive.NeedDownload{Package: name, Version: version}
}

// debianEpochless strips a leading "N:" epoch, since apt encodes the colon
// as "%3a" in cached filenames. findArchive globs for the epoch-less name
// only, so an archive cached under its "%3a" name is not found and is
// reported as *archive.NeedDownload.
func debianEpochless(version string) string {
	if idx := strings.IndexByte(version, ':'); idx >= 0 {
		return version[idx+1:]
	}
	return version
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.FilesystemOwner = (*Backend)(nil)
