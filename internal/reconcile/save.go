package reconcile

import "github.com/VorpalBlade/paketkoll/internal/pkgmodel"

// SaveEntry is one line of a save-mode instruction stream: either a real
// Instruction or an elided placeholder for a sensitive path.
type SaveEntry struct {
	Instruction pkgmodel.Instruction
	Elided      bool
	ElidedPath  string
	OwnerPkg    *pkgmodel.PackageRef
}

// Save turns a Plan back into the inverse instruction stream spec §4.8
// describes for the staging file: every mutating step the plan would take,
// elided behind a comment for paths matched by sensitiveGlobs, annotated
// with the owning package where known.
func Save(plan *Plan, comments []string, sensitiveGlobs interface{ Match(string) bool }) []SaveEntry {
	var out []SaveEntry

	emit := func(path string, instr pkgmodel.Instruction, owner *pkgmodel.PackageRef) {
		if sensitiveGlobs != nil && sensitiveGlobs.Match(path) {
			out = append(out, SaveEntry{Elided: true, ElidedPath: path})
			return
		}
		out = append(out, SaveEntry{Instruction: instr, OwnerPkg: owner})
	}

	for _, p := range plan.EarlyRestorePaths {
		emit(p, pkgmodel.FileRestoreFromPkg{Path: p}, nil)
	}
	for backend, pkgs := range plan.PackageInstalls {
		for _, pkg := range pkgs {
			out = append(out, SaveEntry{Instruction: pkgmodel.PkgAdd{Backend: backend, Pkg: pkg}})
		}
	}
	for backend, pkgs := range plan.PackageRemovals {
		for _, pkg := range pkgs {
			out = append(out, SaveEntry{Instruction: pkgmodel.PkgRemove{Backend: backend, Pkg: pkg}})
		}
	}
	for backend, marks := range plan.PackageMarks {
		for _, m := range marks {
			out = append(out, SaveEntry{Instruction: pkgmodel.PkgDepMark{Backend: backend, Pkg: m.Pkg, Reason: m.Reason}})
		}
	}
	for _, p := range plan.FileRemovals {
		emit(p, pkgmodel.FileRemove{Path: p}, nil)
	}
	for _, p := range plan.RestoreToPackage {
		emit(p, pkgmodel.FileRestoreFromPkg{Path: p}, nil)
	}
	for _, p := range plan.DirCreations {
		emit(p, pkgmodel.Mkdir{Path: p}, nil)
	}
	for _, w := range plan.FileWrites {
		var instr pkgmodel.Instruction
		if w.ConfigSource != "" {
			instr = pkgmodel.FileCopyFromConfig{Path: w.Path, Source: w.ConfigSource}
		} else {
			instr = pkgmodel.FileWrite{Path: w.Path, Bytes: w.Bytes}
		}
		emit(w.Path, instr, w.OwnerPkg)
	}
	for _, s := range plan.Symlinks {
		emit(s.Path, pkgmodel.Symlink{Path: s.Path, Target: s.Target}, nil)
	}
	for _, sp := range plan.Specials {
		if sp.Kind == pkgmodel.KindFifo {
			emit(sp.Path, pkgmodel.MkFifo{Path: sp.Path}, nil)
		} else {
			emit(sp.Path, pkgmodel.MkDevice{Path: sp.Path, Kind: sp.Dev.Kind, Major: sp.Dev.Major, Minor: sp.Dev.Minor}, nil)
		}
	}
	for _, c := range plan.Chmods {
		emit(c.Path, pkgmodel.Chmod{Path: c.Path, Mode: c.Mode}, nil)
	}
	for _, c := range plan.Chowns {
		emit(c.Path, pkgmodel.Chown{Path: c.Path, User: c.User}, nil)
	}
	for _, c := range plan.Chgrps {
		emit(c.Path, pkgmodel.Chgrp{Path: c.Path, Group: c.Group}, nil)
	}

	for _, c := range comments {
		out = append(out, SaveEntry{Instruction: pkgmodel.Comment{Text: c}})
	}

	return out
}
