// Package reconcile implements the instruction model (spec §2 C9, §4.7):
// folding a configuration's instruction stream into a State, expanding that
// State against backend-reported package file sets into a desired view of
// the filesystem, and diffing the desired view against what the scanner
// observed to produce an ordered apply Plan.
//
// Grounded on distri's fuse/pkg.go tree-merge logic for the idea of
// "later write wins per (kind, path)", generalised from distri's single
// fixed filesystem tree to an explicit fold over an instruction stream.
package reconcile

import (
	"fmt"

	"github.com/VorpalBlade/paketkoll/internal/globset"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

// UnownedRestore is returned by Fold when a FileRestoreFromPkg instruction
// names a path no backend reports owning (spec §4.7).
type UnownedRestore struct {
	Path string
}

func (e *UnownedRestore) Error() string {
	return fmt.Sprintf("restore-from-package requested for unowned path %q", e.Path)
}

// ConflictingOwners is returned when two packages claim the same path with
// incompatible properties (spec §8 scenario 6: "two packages owning the
// same path with different properties is fatal, not merged").
type ConflictingOwners struct {
	Path     string
	FirstPkg pkgmodel.PackageRef
	OtherPkg pkgmodel.PackageRef
}

func (e *ConflictingOwners) Error() string {
	return fmt.Sprintf("path %q is owned by conflicting packages", e.Path)
}

// FileAction records the most recent content-level instruction applied to
// a path; it is the "kind" that later instructions on the same path
// override (spec §4.7: "later instructions override earlier ones on the
// same (kind, path) pair").
type FileAction int

const (
	ActionNone FileAction = iota
	ActionWrite
	ActionCopyFromConfig
	ActionRestoreFromPkg
	ActionRemove
	ActionMkdir
	ActionSymlink
	ActionMkFifo
	ActionMkDevice
)

// PathState accumulates every instruction that has touched a path. Mode,
// User and Group are tracked independently of Action: a Chmod following a
// FileWrite does not erase the write, and a later FileWrite does not erase
// an earlier Chmod (each is its own (kind, path) pair).
type PathState struct {
	Action FileAction

	// Bytes holds literal content for ActionWrite.
	Bytes []byte
	// ConfigSource holds the config-relative source path for
	// ActionCopyFromConfig.
	ConfigSource string
	// SymlinkTarget holds the target for ActionSymlink.
	SymlinkTarget string
	// DeviceKind/Major/Minor describe ActionMkDevice.
	DeviceKind   pkgmodel.DeviceKind
	Major, Minor uint32

	Mode  *uint16
	User  *pkgmodel.UserRef
	Group *pkgmodel.GroupRef
}

// explicit reports whether the path's content is authoritatively set by
// configuration rather than derived from a package manager default.
func (p *PathState) explicit() bool {
	switch p.Action {
	case ActionWrite, ActionCopyFromConfig, ActionSymlink, ActionMkFifo, ActionMkDevice, ActionMkdir:
		return true
	default:
		return false
	}
}

// PkgWant records a desired package-manager state for one package.
type PkgWant struct {
	Install bool // false means "explicitly removed"
	Reason  *pkgmodel.InstallReason
}

// State is the result of folding an instruction stream (spec §4.7).
type State struct {
	Paths    map[string]*PathState
	Packages map[pkgmodel.BackendID]map[pkgmodel.PackageRef]*PkgWant

	Ignores        *globset.Set
	EarlyGlobs     *globset.Set
	SensitiveGlobs *globset.Set

	// Comments are preserved verbatim for Save but have no apply effect
	// (spec §4.7: "Comment instructions are preserved when saving but
	// ignored on apply").
	Comments []string
}

func newState() *State {
	return &State{
		Paths:    make(map[string]*PathState),
		Packages: make(map[pkgmodel.BackendID]map[pkgmodel.PackageRef]*PkgWant),
	}
}

func (s *State) path(p string) *PathState {
	ps, ok := s.Paths[p]
	if !ok {
		ps = &PathState{}
		s.Paths[p] = ps
	}
	return ps
}

// Owned reports whether path is known to be owned by some backend's
// package, used by Fold to validate FileRestoreFromPkg.
type Owned func(path string) bool

// DefaultEarlyGlobs are early-restored by default regardless of any
// early_config instruction, so that package post-install scripts see
// consistent IDs (spec §4.8: "/etc/passwd, /etc/group, /etc/shadow,
// /etc/gshadow are early by default"), mirroring how scan.DefaultIgnores
// seeds that package's glob set.
var DefaultEarlyGlobs = []string{
	"/etc/passwd", "/etc/group", "/etc/shadow", "/etc/gshadow",
}

// DefaultSensitiveGlobs are elided from save output by default (spec §8
// Sensitive-elision: "default: /etc/shadow, /etc/gshadow, /etc/shadow-,
// /etc/gshadow-").
var DefaultSensitiveGlobs = []string{
	"/etc/shadow", "/etc/gshadow", "/etc/shadow-", "/etc/gshadow-",
}

// Fold builds a State from an instruction stream, in order (spec §4.7).
// owned is consulted for every FileRestoreFromPkg instruction.
func Fold(instructions []pkgmodel.Instruction, owned Owned) (*State, error) {
	s := newState()
	var ignores []string
	early := append([]string(nil), DefaultEarlyGlobs...)
	sensitive := append([]string(nil), DefaultSensitiveGlobs...)

	for _, instr := range instructions {
		switch in := instr.(type) {
		case pkgmodel.PkgAdd:
			s.wantPkg(in.Backend, in.Pkg, true, nil)
		case pkgmodel.PkgRemove:
			s.wantPkg(in.Backend, in.Pkg, false, nil)
		case pkgmodel.PkgDepMark:
			reason := in.Reason
			s.wantPkg(in.Backend, in.Pkg, true, &reason)

		case pkgmodel.FileWrite:
			p := s.path(in.Path)
			p.Action = ActionWrite
			p.Bytes = in.Bytes
		case pkgmodel.FileCopyFromConfig:
			p := s.path(in.Path)
			p.Action = ActionCopyFromConfig
			p.ConfigSource = in.Source
		case pkgmodel.FileRestoreFromPkg:
			if owned != nil && !owned(in.Path) {
				return nil, &UnownedRestore{Path: in.Path}
			}
			p := s.path(in.Path)
			p.Action = ActionRestoreFromPkg
		case pkgmodel.FileRemove:
			p := s.path(in.Path)
			p.Action = ActionRemove

		case pkgmodel.Mkdir:
			p := s.path(in.Path)
			p.Action = ActionMkdir
		case pkgmodel.Symlink:
			p := s.path(in.Path)
			p.Action = ActionSymlink
			p.SymlinkTarget = in.Target
		case pkgmodel.MkFifo:
			p := s.path(in.Path)
			p.Action = ActionMkFifo
		case pkgmodel.MkDevice:
			p := s.path(in.Path)
			p.Action = ActionMkDevice
			p.DeviceKind = in.Kind
			p.Major = in.Major
			p.Minor = in.Minor

		case pkgmodel.Chmod:
			mode := in.Mode
			s.path(in.Path).Mode = &mode
		case pkgmodel.Chown:
			user := in.User
			s.path(in.Path).User = &user
		case pkgmodel.Chgrp:
			group := in.Group
			s.path(in.Path).Group = &group

		case pkgmodel.IgnorePath:
			ignores = append(ignores, in.Glob)
		case pkgmodel.EarlyConfig:
			early = append(early, in.Glob)
		case pkgmodel.SensitiveFile:
			sensitive = append(sensitive, in.Glob)
		case pkgmodel.Comment:
			s.Comments = append(s.Comments, in.Text)
		}
	}

	s.Ignores = globset.New(ignores...)
	s.EarlyGlobs = globset.New(early...)
	s.SensitiveGlobs = globset.New(sensitive...)
	return s, nil
}

func (s *State) wantPkg(backend pkgmodel.BackendID, pkg pkgmodel.PackageRef, install bool, reason *pkgmodel.InstallReason) {
	m, ok := s.Packages[backend]
	if !ok {
		m = make(map[pkgmodel.PackageRef]*PkgWant)
		s.Packages[backend] = m
	}
	w, ok := m[pkg]
	if !ok {
		w = &PkgWant{}
		m[pkg] = w
	}
	w.Install = install
	if reason != nil {
		w.Reason = reason
	}
}
