package archive

import "fmt"

// NeedDownload is returned when a package archive referenced by a backend
// is not present in the local package-manager cache and must be fetched
// before its contents can be read (spec §4.3).
type NeedDownload struct {
	Package string
	Version string
}

func (e *NeedDownload) Error() string {
	return fmt.Sprintf("archive for %s %s not present locally, download required", e.Package, e.Version)
}

// Corrupt is returned when an archive's container (ar/tar) or compression
// framing cannot be decoded (spec §4.3 "ArchiveCorrupt").
type Corrupt struct {
	Package string
	Path    string
	Err     error
}

func (e *Corrupt) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive for %s is corrupt at %s: %v", e.Package, e.Path, e.Err)
	}
	return fmt.Sprintf("archive for %s is corrupt: %v", e.Package, e.Err)
}

func (e *Corrupt) Unwrap() error { return e.Err }

// NotFound is returned by ExtractPath when the requested path does not
// appear in the archive at all.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("path %s not present in archive", e.Path)
}
