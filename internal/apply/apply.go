// Package apply implements the apply/save orchestrator (spec §2 C10, §4.8):
// executing a reconcile.Plan's seven phases in order, or emitting it as a
// save-mode instruction stream.
//
// Grounded on distri's cmd/distri/install.go unpack sequencing (fetch,
// verify, then a fixed extract/link/register order) for the idea of
// fully draining one phase before the next, and on
// github.com/google/renameio for atomic file writes.
package apply

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/VorpalBlade/paketkoll/internal/backend"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/VorpalBlade/paketkoll/internal/reconcile"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// ConfigReader reads the content of a config-relative path for
// FileCopyFromConfig instructions (spec §6 "files/" tree).
type ConfigReader func(source string) ([]byte, error)

// Confirm is consulted in interactive mode at the granularity the spec
// describes (spec §4.8: "a per-phase summary and a per-item confirmation;
// packages can be skipped at granularity of a single install"). A nil
// Confirm means non-interactive: everything proceeds.
type Confirm func(phase, item string) bool

// Options configures an Orchestrator.
type Options struct {
	DryRun       bool
	Interactive  bool
	Confirm      Confirm
	ReadConfig   ConfigReader
	Logger       *log.Logger
	RestoreOwner func(path string) error // restores one path to package-manager defaults (used by phases 1 and 4)
}

// Orchestrator executes reconcile.Plan values against a backend registry.
type Orchestrator struct {
	registry *backend.Registry
	opts     Options
}

func New(registry *backend.Registry, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "apply: ", log.LstdFlags)
	}
	return &Orchestrator{registry: registry, opts: opts}
}

// Result summarises one Apply call for the caller (e.g. a CLI front end) to
// report.
type Result struct {
	Skipped []string // items the user declined in interactive mode
}

// Apply drains plan's phases in the fixed order from spec §4.8, fully
// completing each before starting the next. Dry-run short-circuits before
// any mutating syscall (spec §4.8).
func (o *Orchestrator) Apply(ctx context.Context, plan *reconcile.Plan) (*Result, error) {
	res := &Result{}

	phases := []struct {
		name string
		fn   func(context.Context, *reconcile.Plan, *Result) error
	}{
		{"early-restore", o.phaseEarlyRestore},
		{"package-transactions", o.phasePackages},
		{"file-removals", o.phaseFileRemovals},
		{"restore-to-package", o.phaseRestoreToPackage},
		{"directory-creation", o.phaseDirCreation},
		{"file-writes", o.phaseFileWrites},
		{"permission-fixes", o.phasePermissionFixes},
	}

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if o.opts.DryRun {
			o.opts.Logger.Printf("dry-run: skipping phase %s", phase.name)
			continue
		}
		if err := phase.fn(ctx, plan, res); err != nil {
			return res, xerrors.Errorf("phase %s: %w", phase.name, err)
		}
	}
	return res, nil
}

func (o *Orchestrator) confirmItem(phase, item string) bool {
	if !o.opts.Interactive || o.opts.Confirm == nil {
		return true
	}
	return o.opts.Confirm(phase, item)
}

func (o *Orchestrator) phaseEarlyRestore(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	for _, p := range plan.EarlyRestorePaths {
		if !o.confirmItem("early-restore", p) {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if o.opts.RestoreOwner == nil {
			continue
		}
		if err := o.opts.RestoreOwner(p); err != nil {
			return xerrors.Errorf("restore %s: %w", p, err)
		}
	}
	return nil
}

func (o *Orchestrator) phasePackages(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	// Installs before removals so transient file dependencies are
	// satisfied (spec §4.8).
	for id, pkgs := range plan.PackageInstalls {
		b := o.registry.Get(id)
		if b == nil {
			return xerrors.Errorf("no backend registered for %s", id)
		}
		var toInstall []pkgmodel.PackageRef
		for _, p := range pkgs {
			if o.confirmItem("package-install", string(id)) {
				toInstall = append(toInstall, p)
			} else {
				res.Skipped = append(res.Skipped, string(id)+":"+fmt.Sprint(p))
			}
		}
		if len(toInstall) > 0 {
			if err := b.Install(ctx, toInstall); err != nil {
				return err
			}
		}
	}
	for id, marks := range plan.PackageMarks {
		b := o.registry.Get(id)
		if b == nil {
			continue
		}
		for _, m := range marks {
			if err := b.MarkReason(ctx, m.Pkg, m.Reason); err != nil {
				return err
			}
		}
	}
	for id, pkgs := range plan.PackageRemovals {
		b := o.registry.Get(id)
		if b == nil {
			return xerrors.Errorf("no backend registered for %s", id)
		}
		if err := b.Remove(ctx, pkgs); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) phaseFileRemovals(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	for _, p := range plan.FileRemovals {
		if !o.confirmItem("file-removal", p) {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) phaseRestoreToPackage(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	for _, p := range plan.RestoreToPackage {
		if !o.confirmItem("restore-to-package", p) {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if o.opts.RestoreOwner == nil {
			continue
		}
		if err := o.opts.RestoreOwner(p); err != nil {
			return xerrors.Errorf("restore %s: %w", p, err)
		}
	}
	return nil
}

func (o *Orchestrator) phaseDirCreation(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	for _, d := range plan.DirCreations {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) phaseFileWrites(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	for _, w := range plan.FileWrites {
		if !o.confirmItem("file-write", w.Path) {
			res.Skipped = append(res.Skipped, w.Path)
			continue
		}
		content := w.Bytes
		if w.ConfigSource != "" {
			if o.opts.ReadConfig == nil {
				return xerrors.Errorf("write %s: no config reader configured for source %q", w.Path, w.ConfigSource)
			}
			b, err := o.opts.ReadConfig(w.ConfigSource)
			if err != nil {
				return xerrors.Errorf("write %s: %w", w.Path, err)
			}
			content = b
		}
		if err := renameio.WriteFile(w.Path, content, 0o644); err != nil {
			return xerrors.Errorf("write %s: %w", w.Path, err)
		}
	}
	for _, s := range plan.Symlinks {
		if err := os.RemoveAll(s.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Symlink(s.Target, s.Path); err != nil {
			return err
		}
	}
	for _, sp := range plan.Specials {
		if err := createSpecial(sp); err != nil {
			return err
		}
	}
	return nil
}

// phasePermissionFixes applies chmod, then chown, then chgrp (spec §4.8).
func (o *Orchestrator) phasePermissionFixes(ctx context.Context, plan *reconcile.Plan, res *Result) error {
	for _, c := range plan.Chmods {
		if err := os.Chmod(c.Path, filePerm(c.Mode)); err != nil {
			return err
		}
	}
	for _, c := range plan.Chowns {
		if c.User.UID == nil {
			continue
		}
		if err := chownPath(c.Path, int(*c.User.UID), -1); err != nil {
			return err
		}
	}
	for _, c := range plan.Chgrps {
		if c.Group.GID == nil {
			continue
		}
		if err := chownPath(c.Path, -1, int(*c.Group.GID)); err != nil {
			return err
		}
	}
	return nil
}

// filePerm maps a raw mode (spec §3: "includes the sticky/setuid/setgid
// bits") to the os.FileMode os.Chmod actually honours — it only sets those
// bits from os.ModeSetuid/ModeSetgid/ModeSticky, never from their numeric
// 0o4000/0o2000/0o1000 equivalents (grounded on distri's own chmod step in
// cmd/distri/build.go, which ORs os.ModeSetuid onto the stat'd permission
// bits the same way).
func filePerm(mode uint16) os.FileMode {
	perm := os.FileMode(mode) & os.ModePerm
	if mode&0o4000 != 0 {
		perm |= os.ModeSetuid
	}
	if mode&0o2000 != 0 {
		perm |= os.ModeSetgid
	}
	if mode&0o1000 != 0 {
		perm |= os.ModeSticky
	}
	return perm
}
