// Package scripthost implements the external interface adapter (spec §2
// C12, §6 "Script host surface"): the conversion boundary between the
// dynamically typed embedded configuration language (out of scope here,
// spec §1) and the closed pkgmodel.Instruction sum type the rest of the
// engine operates on.
//
// Grounded on distri's cmd/distri/distri.go command-dispatch idiom
// (a flat table of named operations, each validating its own arguments)
// generalised from CLI subcommands to script-host builtins.
package scripthost

import (
	"os"
	"path/filepath"

	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"
)

// Host accumulates Instruction values emitted by script-host builtin calls,
// plus the Settings state that configures the run (spec §6 "Settings").
type Host struct {
	Instructions []pkgmodel.Instruction
	Settings     Settings

	lookupPkg func(backend pkgmodel.BackendID, name string) (pkgmodel.PackageRef, bool)
	lookupUID func(name string) (uint32, bool)
	lookupGID func(name string) (uint32, bool)
	hasSource func(path string) bool
}

// Settings mirrors spec §6's Settings builtins.
type Settings struct {
	EnabledBackends []pkgmodel.BackendID
	FileBackend     pkgmodel.BackendID
	SavePrefix      string
	DiffArgv        []string
	PagerArgv       []string
}

// Deps supplies the lookups Host's builtins need to resolve symbolic names
// (package names, user/group names, config-relative source existence) into
// the interned/typed values Instruction fields require.
type Deps struct {
	LookupPkg func(backend pkgmodel.BackendID, name string) (pkgmodel.PackageRef, bool)
	LookupUID func(name string) (uint32, bool)
	LookupGID func(name string) (uint32, bool)
	HasSource func(path string) bool
}

// New builds a Host over deps.
func New(deps Deps) *Host {
	return &Host{
		lookupPkg: deps.LookupPkg,
		lookupUID: deps.LookupUID,
		lookupGID: deps.LookupGID,
		hasSource: deps.HasSource,
	}
}

func (h *Host) emit(i pkgmodel.Instruction) { h.Instructions = append(h.Instructions, i) }

// canon canonicalises an absolute path or glob as it crosses the script
// host boundary (spec §9(c) Open Question: canonicalise at the earliest
// observation point), so that e.g. "/etc//passwd" and "/etc/./passwd"
// fold to the same path the scanner and reconciler key state on.
// filepath.Clean leaves doublestar wildcards ("**", "*") untouched, so
// this is safe to apply to glob arguments as well as literal paths.
func canon(path string) string {
	if path == "" {
		return path
	}
	return filepath.Clean(path)
}

// Commands

// IgnorePath implements the ignore_path builtin.
func (h *Host) IgnorePath(glob string) { h.emit(pkgmodel.IgnorePath{Glob: canon(glob)}) }

// AddPkg implements the add_pkg builtin.
func (h *Host) AddPkg(backend pkgmodel.BackendID, name string) error {
	pkg, ok := h.lookupPkg(backend, name)
	if !ok {
		return xerrors.Errorf("add_pkg: unknown package %q for backend %s", name, backend)
	}
	h.emit(pkgmodel.PkgAdd{Backend: backend, Pkg: pkg})
	return nil
}

// RemovePkg implements the remove_pkg builtin.
func (h *Host) RemovePkg(backend pkgmodel.BackendID, name string) error {
	pkg, ok := h.lookupPkg(backend, name)
	if !ok {
		return xerrors.Errorf("remove_pkg: unknown package %q for backend %s", name, backend)
	}
	h.emit(pkgmodel.PkgRemove{Backend: backend, Pkg: pkg})
	return nil
}

// Mkdir implements the mkdir builtin.
func (h *Host) Mkdir(path string) { h.emit(pkgmodel.Mkdir{Path: canon(path)}) }

// Copy implements the copy builtin: literal inline bytes.
func (h *Host) Copy(path string, content []byte) {
	h.emit(pkgmodel.FileWrite{Path: canon(path), Bytes: content})
}

// CopyFrom implements the copy_from builtin: copy a config-relative source
// file's content to path.
func (h *Host) CopyFrom(path, source string) error {
	if h.hasSource != nil && !h.hasSource(source) {
		return xerrors.Errorf("copy_from: source %q not found under the config files/ tree", source)
	}
	h.emit(pkgmodel.FileCopyFromConfig{Path: canon(path), Source: source})
	return nil
}

// Write is an alias for Copy matching spec §6's separate `write` builtin
// name (the two differ in the script host's calling convention, not in the
// Instruction they produce).
func (h *Host) Write(path string, content []byte) { h.Copy(path, content) }

// Chmod implements the chmod builtin.
func (h *Host) Chmod(path string, mode uint16) {
	h.emit(pkgmodel.Chmod{Path: canon(path), Mode: mode})
}

// Chown implements the chown builtin, resolving user through
// Deps.LookupUID. A numeric user is not parsed here; it resolves only if
// LookupUID accepts it.
func (h *Host) Chown(path, user string) error {
	ref, err := h.resolveUser(user)
	if err != nil {
		return err
	}
	h.emit(pkgmodel.Chown{Path: canon(path), User: ref})
	return nil
}

// Chgrp implements the chgrp builtin.
func (h *Host) Chgrp(path, group string) error {
	ref, err := h.resolveGroup(group)
	if err != nil {
		return err
	}
	h.emit(pkgmodel.Chgrp{Path: canon(path), Group: ref})
	return nil
}

// Ln implements the ln builtin (symlink creation). target is the symlink's
// contents, not a path on this host's filesystem, so it is left verbatim.
func (h *Host) Ln(target, path string) {
	h.emit(pkgmodel.Symlink{Path: canon(path), Target: target})
}

// HasSourceFile implements the has_source_file builtin: a pure query, not
// an Instruction-emitting command.
func (h *Host) HasSourceFile(path string) bool {
	if h.hasSource == nil {
		return false
	}
	return h.hasSource(path)
}

func (h *Host) resolveUser(user string) (pkgmodel.UserRef, error) {
	if uid, ok := h.lookupUID(user); ok {
		return pkgmodel.UserRef{UID: &uid, Name: user}, nil
	}
	return pkgmodel.UserRef{}, xerrors.Errorf("chown: unknown user %q", user)
}

func (h *Host) resolveGroup(group string) (pkgmodel.GroupRef, error) {
	if gid, ok := h.lookupGID(group); ok {
		return pkgmodel.GroupRef{GID: &gid, Name: group}, nil
	}
	return pkgmodel.GroupRef{}, xerrors.Errorf("chgrp: unknown group %q", group)
}

// Settings builtins

func (h *Host) EnablePkgBackend(name pkgmodel.BackendID) {
	h.Settings.EnabledBackends = append(h.Settings.EnabledBackends, name)
}

func (h *Host) SetFileBackend(name pkgmodel.BackendID) { h.Settings.FileBackend = name }

func (h *Host) EarlyConfig(glob string) { h.emit(pkgmodel.EarlyConfig{Glob: canon(glob)}) }

func (h *Host) SensitiveFile(glob string) { h.emit(pkgmodel.SensitiveFile{Glob: canon(glob)}) }

func (h *Host) SetSavePrefix(prefix string) { h.Settings.SavePrefix = prefix }

func (h *Host) SetDiff(argv []string) { h.Settings.DiffArgv = argv }

func (h *Host) SetPager(argv []string) { h.Settings.PagerArgv = argv }

// InteractiveAllowed reports whether the current process is attached to a
// terminal, gating whether the per-item confirmation prompts described in
// spec §4.8 should be offered at all (a non-interactive run, e.g. piped
// output or a cron job, always proceeds unattended).
func InteractiveAllowed() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
