package apply

import (
	"os"

	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/VorpalBlade/paketkoll/internal/reconcile"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// createSpecial creates a FIFO or device node, replacing anything already
// at the path.
func createSpecial(sp reconcile.SpecialOp) error {
	if err := os.RemoveAll(sp.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	switch sp.Kind {
	case pkgmodel.KindFifo:
		return unix.Mkfifo(sp.Path, 0o644)
	case pkgmodel.KindDevice:
		mode := uint32(0o644) | unix.S_IFCHR
		if sp.Dev.Kind == pkgmodel.DeviceBlock {
			mode = uint32(0o644) | unix.S_IFBLK
		}
		dev := unix.Mkdev(sp.Dev.Major, sp.Dev.Minor)
		return unix.Mknod(sp.Path, mode, int(dev))
	default:
		return xerrors.Errorf("createSpecial: unsupported kind %v", sp.Kind)
	}
}

// chownPath changes uid and/or gid for path, leaving either alone when
// passed -1 (matching os.Chown's convention, which Chmod/Chown/Chgrp being
// emitted as independent instructions, spec §4.7, relies on).
func chownPath(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}
