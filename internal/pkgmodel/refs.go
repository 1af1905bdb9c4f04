// Package pkgmodel defines the data model shared by every backend and by
// the reconciliation engine: package and file metadata (spec §3), the
// instruction union (spec §3 "Instruction"), and diagnostic types (Issue).
//
// Interned handles (PackageRef, ArchRef) are integers under the hood so
// equality and hashing are cheap; resolving one to a string always goes
// through an *interner.Interner, never a method on the ref itself, matching
// spec §9's "no owning back-pointers" rule.
package pkgmodel

import "github.com/VorpalBlade/paketkoll/internal/interner"

// PackageRef is an interned package name handle.
type PackageRef interner.Ref

// ArchRef is an interned architecture name handle (e.g. "amd64", "x86_64").
type ArchRef interner.Ref

// Status is the installation state of a Package (spec §3).
type Status int

const (
	StatusInstalled Status = iota
	StatusConfigFiles
	StatusNotInstalled
)

func (s Status) String() string {
	switch s {
	case StatusInstalled:
		return "installed"
	case StatusConfigFiles:
		return "config-files"
	case StatusNotInstalled:
		return "not-installed"
	default:
		return "unknown"
	}
}

// InstallReason records whether a package was requested by the user or
// pulled in to satisfy a dependency (spec §3, §4.8 "PkgDepMark").
type InstallReason int

const (
	ReasonExplicit InstallReason = iota
	ReasonAsDependency
)

func (r InstallReason) String() string {
	if r == ReasonAsDependency {
		return "dependency"
	}
	return "explicit"
}
