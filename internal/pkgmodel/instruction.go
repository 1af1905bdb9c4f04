package pkgmodel

// Instruction is the closed sum type the instruction stream is made of
// (spec §3, §9 "Dynamic instruction stream"). It is modelled as a sealed
// interface with one concrete type per variant rather than open
// polymorphism: the conversion boundary from the dynamically typed script
// host lives in internal/scripthost (C12), not here.
type Instruction interface {
	instruction()
}

type PkgAdd struct {
	Backend BackendID
	Pkg     PackageRef
}

func (PkgAdd) instruction() {}

type PkgRemove struct {
	Backend BackendID
	Pkg     PackageRef
}

func (PkgRemove) instruction() {}

type PkgDepMark struct {
	Backend BackendID
	Pkg     PackageRef
	Reason  InstallReason
}

func (PkgDepMark) instruction() {}

type FileWrite struct {
	Path  string
	Bytes []byte
}

func (FileWrite) instruction() {}

// FileCopyFromConfig copies the content of Source (a path relative to the
// config directory's files/ tree, spec §6) to Path.
type FileCopyFromConfig struct {
	Path   string
	Source string
}

func (FileCopyFromConfig) instruction() {}

type FileRestoreFromPkg struct {
	Path string
}

func (FileRestoreFromPkg) instruction() {}

// FileRemove produces a tombstone (spec §4.7): distinct from "path never
// mentioned", used to force a path to not exist even if a package installs
// it.
type FileRemove struct {
	Path string
}

func (FileRemove) instruction() {}

type Mkdir struct {
	Path string
}

func (Mkdir) instruction() {}

type Symlink struct {
	Path   string
	Target string
}

func (Symlink) instruction() {}

type MkFifo struct {
	Path string
}

func (MkFifo) instruction() {}

type MkDevice struct {
	Path         string
	Kind         DeviceKind
	Major, Minor uint32
}

func (MkDevice) instruction() {}

type Chmod struct {
	Path string
	Mode uint16
}

func (Chmod) instruction() {}

type Chown struct {
	Path string
	User UserRef
}

func (Chown) instruction() {}

type Chgrp struct {
	Path  string
	Group GroupRef
}

func (Chgrp) instruction() {}

type IgnorePath struct {
	Glob string
}

func (IgnorePath) instruction() {}

type Comment struct {
	Text string
}

func (Comment) instruction() {}

type EarlyConfig struct {
	Glob string
}

func (EarlyConfig) instruction() {}

type SensitiveFile struct {
	Glob string
}

func (SensitiveFile) instruction() {}
