package apply

import (
	"fmt"
	"strings"

	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/VorpalBlade/paketkoll/internal/reconcile"
	"github.com/google/renameio"
)

// RenderSave formats entries as lines for the staging file (spec §4.8 "save
// mode"): each mutating instruction prefixed with identifier, elided
// entries replaced by a comment, and the owning package appended as a
// trailing comment when known.
func RenderSave(identifier string, entries []reconcile.SaveEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		if e.Elided {
			fmt.Fprintf(&sb, "# %s elided: %s\n", identifier, e.ElidedPath)
			continue
		}
		line := renderInstruction(identifier, e.Instruction)
		if e.OwnerPkg != nil {
			line += fmt.Sprintf(" # owned by %d", uint32(*e.OwnerPkg))
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderInstruction(identifier string, instr pkgmodel.Instruction) string {
	switch in := instr.(type) {
	case pkgmodel.PkgAdd:
		return fmt.Sprintf("%s add_pkg %s %d", identifier, in.Backend, uint32(in.Pkg))
	case pkgmodel.PkgRemove:
		return fmt.Sprintf("%s remove_pkg %s %d", identifier, in.Backend, uint32(in.Pkg))
	case pkgmodel.PkgDepMark:
		return fmt.Sprintf("%s mark_pkg %s %d %s", identifier, in.Backend, uint32(in.Pkg), in.Reason)
	case pkgmodel.FileWrite:
		return fmt.Sprintf("%s write %s %d bytes", identifier, in.Path, len(in.Bytes))
	case pkgmodel.FileCopyFromConfig:
		return fmt.Sprintf("%s copy_from %s %s", identifier, in.Source, in.Path)
	case pkgmodel.FileRestoreFromPkg:
		return fmt.Sprintf("%s restore %s", identifier, in.Path)
	case pkgmodel.FileRemove:
		return fmt.Sprintf("%s remove %s", identifier, in.Path)
	case pkgmodel.Mkdir:
		return fmt.Sprintf("%s mkdir %s", identifier, in.Path)
	case pkgmodel.Symlink:
		return fmt.Sprintf("%s ln %s %s", identifier, in.Target, in.Path)
	case pkgmodel.MkFifo:
		return fmt.Sprintf("%s mkfifo %s", identifier, in.Path)
	case pkgmodel.MkDevice:
		return fmt.Sprintf("%s mknod %s %d %d", identifier, in.Path, in.Major, in.Minor)
	case pkgmodel.Chmod:
		return fmt.Sprintf("%s chmod %s %#o", identifier, in.Path, in.Mode)
	case pkgmodel.Chown:
		return fmt.Sprintf("%s chown %s %s", identifier, in.Path, userRefString(in.User))
	case pkgmodel.Chgrp:
		return fmt.Sprintf("%s chgrp %s %s", identifier, in.Path, groupRefString(in.Group))
	case pkgmodel.Comment:
		return fmt.Sprintf("# %s", in.Text)
	default:
		return fmt.Sprintf("# %s unsupported instruction %T", identifier, instr)
	}
}

func userRefString(u pkgmodel.UserRef) string {
	if u.Name != "" {
		return u.Name
	}
	if u.UID != nil {
		return fmt.Sprint(*u.UID)
	}
	return "?"
}

func groupRefString(g pkgmodel.GroupRef) string {
	if g.Name != "" {
		return g.Name
	}
	if g.GID != nil {
		return fmt.Sprint(*g.GID)
	}
	return "?"
}

// WriteSaveFile atomically writes entries to path, e.g. the configured
// "ctx.cmds" staging file (spec §4.8).
func WriteSaveFile(path, identifier string, entries []reconcile.SaveEntry) error {
	return renameio.WriteFile(path, []byte(RenderSave(identifier, entries)), 0o644)
}
