// Package backend defines the uniform view (spec §2 C5) the reconciliation
// engine and the script host (C12) use over Arch, Debian and (as an
// external collaborator) Flatpak: listing packages, listing the files a
// package claims to own, fetching a file's original bytes, and applying
// package transactions.
package backend

import (
	"context"

	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

// Files is implemented by a backend that can enumerate the files its
// packages claim to install (spec §1 item 1(a)).
type Files interface {
	// ListFiles streams every FileEntry the backend knows about to fn. The
	// backend decides its own concurrency internally; fn must be safe to
	// call concurrently unless the implementation documents otherwise.
	ListFiles(ctx context.Context, fn func(pkgmodel.FileEntry) error) error
}

// Packages is implemented by a backend that can enumerate installed
// packages and apply package transactions.
type Packages interface {
	// ListPackages returns every package the backend's database knows
	// about, keyed by interned package ref.
	ListPackages(ctx context.Context) (map[pkgmodel.PackageRef]*pkgmodel.Package, error)

	// Install adds pkgs (installing dependencies as needed) and marks them
	// Explicit. Returns the first error reported by the package manager; it
	// does not report which of pkgs were installed before that error.
	Install(ctx context.Context, pkgs []pkgmodel.PackageRef) error

	// Remove uninstalls pkgs.
	Remove(ctx context.Context, pkgs []pkgmodel.PackageRef) error

	// MarkReason changes a package's explicit/dependency bookkeeping
	// without installing or removing it (spec §3 "PkgDepMark").
	MarkReason(ctx context.Context, pkg pkgmodel.PackageRef, reason pkgmodel.InstallReason) error
}

// FilesystemOwner is implemented by a backend that can, on demand, extract
// the original bytes of a specific file from the package archive that owns
// it (spec §1 item 1(b)). The archive must already be present locally; a
// missing archive is reported as *archive.NeedDownload and is not fetched.
type FilesystemOwner interface {
	// OriginalFileContents returns the pristine bytes of path as shipped by
	// pkg. The Arch and Debian backends return nil Properties.
	// Implementations should route through a disk cache (C6); see
	// internal/diskcache.
	OriginalFileContents(ctx context.Context, pkg pkgmodel.PackageRef, path string) ([]byte, pkgmodel.Properties, error)
}

// Backend bundles the three traits a concrete package-manager adapter may
// implement. Not every backend implements every trait (Files/Packages is
// the minimum; FilesystemOwner requires archive access).
type Backend interface {
	ID() pkgmodel.BackendID
	Files
	Packages
}

// Registry resolves backend IDs (spec §6 "Settings.enable_pkg_backend") to
// constructed Backend instances; it owns the process-wide interner handed
// to every backend, matching spec §9's "must be initialised before any
// backend is constructed" rule for global state.
type Registry struct {
	Interner *interner.Interner
	backends map[pkgmodel.BackendID]Backend
}

// NewRegistry constructs an empty Registry over in, the shared interner.
func NewRegistry(in *interner.Interner) *Registry {
	return &Registry{Interner: in, backends: make(map[pkgmodel.BackendID]Backend)}
}

// Enable registers b under its own ID, implementing
// Settings.enable_pkg_backend (spec §6).
func (r *Registry) Enable(b Backend) {
	r.backends[b.ID()] = b
}

// Get returns the backend registered under id, or nil if none was enabled.
func (r *Registry) Get(id pkgmodel.BackendID) Backend {
	return r.backends[id]
}

// All returns every enabled backend.
func (r *Registry) All() []Backend {
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	return out
}
