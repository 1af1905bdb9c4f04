// Package diskcache implements the on-disk memoising layer in front of slow
// per-backend queries (spec §2 C6, §4.4): mainly original-file extraction,
// which for Debian means re-fetching and decompressing an archive per
// lookup unless cached.
//
// Storage is a content-addressed blob directory plus a protobuf-wire-format
// index file (index.pb), mirroring distri's own convention of keeping
// structured metadata on disk in protobuf form (see distri's pb/ package,
// adapted here to use encoding/protowire directly rather than a generated
// message, since no .proto/codegen toolchain runs in this environment).
package diskcache

import "fmt"

// Key identifies one cache entry: a specific path inside a specific package
// version, read through a specific backend (spec §4.4).
type Key struct {
	Backend string
	Package string
	Version string
	Path    string
}

func (k Key) string() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s", k.Backend, k.Package, k.Version, k.Path)
}
