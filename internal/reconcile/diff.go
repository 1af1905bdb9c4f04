package reconcile

import (
	"path"
	"sort"
	"strings"

	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

// FileWriteOp is one content-writing step of a Plan: either literal bytes or
// a config-relative source, mirroring PathState.Action (spec §4.7).
type FileWriteOp struct {
	Path         string
	Bytes        []byte
	ConfigSource string
	OwnerPkg     *pkgmodel.PackageRef // set when the write replaces a package-owned default, for Save's trailing comment
}

type SymlinkOp struct {
	Path   string
	Target string
}

type SpecialOp struct {
	Path string
	Kind pkgmodel.PropsKind // KindFifo or KindDevice
	Dev  pkgmodel.Device    // populated when Kind == KindDevice
}

type ChmodOp struct {
	Path string
	Mode uint16
}

type ChownOp struct {
	Path string
	User pkgmodel.UserRef
}

type ChgrpOp struct {
	Path  string
	Group pkgmodel.GroupRef
}

// PkgMarkOp is a dependency-reason change for an already-installed package.
type PkgMarkOp struct {
	Pkg    pkgmodel.PackageRef
	Reason pkgmodel.InstallReason
}

// Plan is the ordered apply plan produced by Diff, grouped into the seven
// phases of spec §4.8. Apply (C10) drains each field in the order listed
// here, one phase fully before the next.
type Plan struct {
	EarlyRestorePaths []string // phase 1, path order

	PackageInstalls map[pkgmodel.BackendID][]pkgmodel.PackageRef // phase 2a
	PackageMarks    map[pkgmodel.BackendID][]PkgMarkOp           // phase 2a
	PackageRemovals map[pkgmodel.BackendID][]pkgmodel.PackageRef // phase 2b

	FileRemovals []string // phase 3, innermost-first

	RestoreToPackage []string // phase 4

	DirCreations []string // phase 5, outermost-first

	FileWrites []FileWriteOp // phase 6
	Symlinks   []SymlinkOp   // phase 6
	Specials   []SpecialOp   // phase 6

	Chmods []ChmodOp // phase 7a
	Chowns []ChownOp // phase 7b
	Chgrps []ChgrpOp // phase 7c
}

// ObservedPackages is the set of packages a backend currently reports
// installed, keyed the same way State.Packages is.
type ObservedPackages map[pkgmodel.BackendID]map[pkgmodel.PackageRef]*pkgmodel.Package

// Diff compares desired (already expanded via BuildDesired) against the
// scanner's observed filesystem and each backend's installed-package set,
// producing an ordered Plan (spec §4.7 "diff semantics").
func Diff(state *State, desired map[string]*DesiredFile, observed map[string]pkgmodel.Properties, installed ObservedPackages) *Plan {
	plan := &Plan{
		PackageInstalls: map[pkgmodel.BackendID][]pkgmodel.PackageRef{},
		PackageMarks:    map[pkgmodel.BackendID][]PkgMarkOp{},
		PackageRemovals: map[pkgmodel.BackendID][]pkgmodel.PackageRef{},
	}

	diffPackages(state, installed, plan)

	var removals, restores, dirCreations []string

	for p, df := range desired {
		actual, exists := observed[p]

		if df.Tombstone {
			if exists {
				removals = append(removals, p)
			}
			continue
		}

		if !df.Explicit {
			// Package-manager-owned path: only a mismatch against the
			// backend's own expectation warrants a restore, and early
			// paths are handled by the early-restore phase instead.
			if state.EarlyGlobs.Match(p) {
				if !exists || !propertiesEqual(actual, df.Properties) {
					plan.EarlyRestorePaths = append(plan.EarlyRestorePaths, p)
				}
				continue
			}
			if !exists || !propertiesEqual(actual, df.Properties) {
				restores = append(restores, p)
			}
			continue
		}

		// Explicit path: ensure parent directories, write content/metadata
		// as a standalone metadata op when only mode/owner/group differ
		// (spec §4.7: "a metadata-only change is emitted as a standalone
		// Chmod/Chown/Chgrp rather than a full rewrite").
		for _, dir := range parentDirs(p) {
			if _, ok := observed[dir]; !ok {
				dirCreations = append(dirCreations, dir)
			}
		}

		sameKind := exists && actual.Kind() == df.Properties.Kind()

		switch props := df.Properties.(type) {
		case pkgmodel.RegularFile:
			contentChanged := !sameKind
			if sameKind {
				af := actual.(pkgmodel.RegularFile)
				contentChanged = af.Size != props.Size
				if !contentChanged && af.Checksum != nil && props.Checksum != nil {
					if eq, err := af.Checksum.Equal(*props.Checksum); err == nil {
						contentChanged = !eq
					}
				}
			}
			if contentChanged {
				plan.FileWrites = append(plan.FileWrites, FileWriteOp{
					Path: p, Bytes: df.ContentBytes, ConfigSource: df.ConfigSource, OwnerPkg: df.OwnerPkg,
				})
			}
			// Metadata is reconciled regardless of whether the content also
			// changed: phase 7 (permission fixes) runs after phase 6 (file
			// writes), so a freshly written file still gets its desired
			// mode/owner/group even though the write itself always lands
			// with renameio's default permissions.
			baseline := pkgmodel.RegularFile{}
			if sameKind {
				baseline = actual.(pkgmodel.RegularFile)
			}
			diffMeta(p, props.Mode, props.UID, props.GID, baseline, plan)
		case pkgmodel.Symlink:
			if !sameKind || actual.(pkgmodel.Symlink).Target != props.Target {
				plan.Symlinks = append(plan.Symlinks, SymlinkOp{Path: p, Target: props.Target})
			}
			// Symlinks have no meaningful permission bits to chmod
			// (comparator never compares Symlink.Mode either), but
			// ownership can still drift from desired state and must
			// still be corrected.
			if sameKind {
				a := actual.(pkgmodel.Symlink)
				if props.UID != a.UID {
					uid := props.UID
					plan.Chowns = append(plan.Chowns, ChownOp{Path: p, User: pkgmodel.UserRef{UID: &uid}})
				}
				if props.GID != a.GID {
					gid := props.GID
					plan.Chgrps = append(plan.Chgrps, ChgrpOp{Path: p, Group: pkgmodel.GroupRef{GID: &gid}})
				}
			}
		case pkgmodel.Directory:
			if !sameKind {
				dirCreations = append(dirCreations, p)
			}
			baseline := pkgmodel.Directory{}
			if sameKind {
				baseline = actual.(pkgmodel.Directory)
			}
			diffMeta(p, props.Mode, props.UID, props.GID, baseline, plan)
		case pkgmodel.Fifo:
			if !sameKind {
				plan.Specials = append(plan.Specials, SpecialOp{Path: p, Kind: pkgmodel.KindFifo})
			}
			baseline := pkgmodel.Fifo{}
			if sameKind {
				baseline = actual.(pkgmodel.Fifo)
			}
			diffMeta(p, props.Mode, props.UID, props.GID, baseline, plan)
		case pkgmodel.Device:
			if !sameKind {
				plan.Specials = append(plan.Specials, SpecialOp{Path: p, Kind: pkgmodel.KindDevice, Dev: props})
			}
			baseline := pkgmodel.Device{}
			if sameKind {
				baseline = actual.(pkgmodel.Device)
			}
			diffMeta(p, props.Mode, props.UID, props.GID, baseline, plan)
		}
	}

	// Paths observed but absent from desired and not ignored: the caller
	// (comparator, spec §4.6) reports these as Unexpected. Diff does not
	// remove them on its own; only an explicit FileRemove tombstone does.

	sort.Sort(sort.Reverse(byDepthThenName(removals)))
	plan.FileRemovals = removals
	sort.Strings(restores)
	plan.RestoreToPackage = restores
	dirs := dedup(dirCreations)
	sort.Sort(byDepthThenName(dirs))
	plan.DirCreations = dirs

	return plan
}

func diffMeta(p string, mode uint16, uid, gid uint32, actual pkgmodel.Properties, plan *Plan) {
	var aMode uint16
	var aUID, aGID uint32
	switch a := actual.(type) {
	case pkgmodel.RegularFile:
		aMode, aUID, aGID = a.Mode, a.UID, a.GID
	case pkgmodel.Directory:
		aMode, aUID, aGID = a.Mode, a.UID, a.GID
	case pkgmodel.Fifo:
		aMode, aUID, aGID = a.Mode, a.UID, a.GID
	case pkgmodel.Device:
		aMode, aUID, aGID = a.Mode, a.UID, a.GID
	default:
		return
	}
	if mode != aMode {
		plan.Chmods = append(plan.Chmods, ChmodOp{Path: p, Mode: mode})
	}
	if uid != aUID {
		u := uid
		plan.Chowns = append(plan.Chowns, ChownOp{Path: p, User: pkgmodel.UserRef{UID: &u}})
	}
	if gid != aGID {
		g := gid
		plan.Chgrps = append(plan.Chgrps, ChgrpOp{Path: p, Group: pkgmodel.GroupRef{GID: &g}})
	}
}

func diffPackages(state *State, installed ObservedPackages, plan *Plan) {
	for backendID, wants := range state.Packages {
		have := installed[backendID]
		for pkg, want := range wants {
			_, isInstalled := have[pkg]
			switch {
			case want.Install && !isInstalled:
				plan.PackageInstalls[backendID] = append(plan.PackageInstalls[backendID], pkg)
				if want.Reason != nil {
					plan.PackageMarks[backendID] = append(plan.PackageMarks[backendID], PkgMarkOp{Pkg: pkg, Reason: *want.Reason})
				}
			case want.Install && isInstalled:
				if want.Reason != nil && *want.Reason != have[pkg].InstallReason {
					plan.PackageMarks[backendID] = append(plan.PackageMarks[backendID], PkgMarkOp{Pkg: pkg, Reason: *want.Reason})
				}
			case !want.Install && isInstalled:
				plan.PackageRemovals[backendID] = append(plan.PackageRemovals[backendID], pkg)
			}
		}
	}
}

func parentDirs(p string) []string {
	var out []string
	dir := path.Dir(p)
	for dir != "/" && dir != "." {
		out = append([]string{dir}, out...)
		dir = path.Dir(dir)
	}
	return out
}

func dedup(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// byDepthThenName orders paths outermost-first (shallow depth, then
// lexical); sort.Reverse over it gives innermost-first for removals (spec
// §4.7/§4.8/§8 "Phase ordering").
type byDepthThenName []string

func (b byDepthThenName) Len() int      { return len(b) }
func (b byDepthThenName) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b byDepthThenName) Less(i, j int) bool {
	di, dj := strings.Count(b[i], "/"), strings.Count(b[j], "/")
	if di != dj {
		return di < dj
	}
	return b[i] < b[j]
}
