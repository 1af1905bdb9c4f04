package pkgmodel

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/xerrors"
)

// ChecksumKind discriminates which digest a Checksum carries. Backends fix
// which variant they populate (Arch: sha256, Debian: md5 from md5sums); the
// comparator treats comparing across variants as an error (spec §3).
type ChecksumKind int

const (
	ChecksumSHA256 ChecksumKind = iota
	ChecksumMD5
)

// Checksum is a sum type over the digest kinds backends produce.
type Checksum struct {
	Kind   ChecksumKind
	MD5    [16]byte
	SHA256 [32]byte
}

// NewMD5 builds a Checksum carrying an MD5 digest.
func NewMD5(b [16]byte) Checksum { return Checksum{Kind: ChecksumMD5, MD5: b} }

// NewSHA256 builds a Checksum carrying a SHA-256 digest.
func NewSHA256(b [32]byte) Checksum { return Checksum{Kind: ChecksumSHA256, SHA256: b} }

// ErrChecksumKindMismatch is returned by Equal when asked to compare two
// checksums of different kinds.
type ErrChecksumKindMismatch struct {
	A, B ChecksumKind
}

func (e *ErrChecksumKindMismatch) Error() string {
	return fmt.Sprintf("cannot compare checksums of different kinds (%v vs %v)", e.A, e.B)
}

// Equal reports whether c and other carry the same digest. It errors if the
// two checksums are of different kinds rather than silently reporting
// inequality, since that situation indicates a backend mismatch bug rather
// than a real content difference.
func (c Checksum) Equal(other Checksum) (bool, error) {
	if c.Kind != other.Kind {
		return false, &ErrChecksumKindMismatch{A: c.Kind, B: other.Kind}
	}
	switch c.Kind {
	case ChecksumMD5:
		return c.MD5 == other.MD5, nil
	case ChecksumSHA256:
		return c.SHA256 == other.SHA256, nil
	default:
		return false, xerrors.Errorf("unknown checksum kind %v", c.Kind)
	}
}

func (c Checksum) String() string {
	switch c.Kind {
	case ChecksumMD5:
		return "md5:" + hex.EncodeToString(c.MD5[:])
	case ChecksumSHA256:
		return "sha256:" + hex.EncodeToString(c.SHA256[:])
	default:
		return "unknown-checksum"
	}
}
