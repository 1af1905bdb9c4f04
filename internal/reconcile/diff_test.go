package reconcile

import (
	"crypto/sha256"
	"testing"

	"github.com/VorpalBlade/paketkoll/internal/globset"
	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/google/go-cmp/cmp"
)

func TestDiffPhaseOrderingDirectoryCreation(t *testing.T) {
	s, err := Fold([]pkgmodel.Instruction{
		pkgmodel.FileWrite{Path: "/a/b/c", Bytes: []byte("x")},
		pkgmodel.FileWrite{Path: "/a/x", Bytes: []byte("y")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	desired := BuildDesired(s, nil)
	plan := Diff(s, desired, map[string]pkgmodel.Properties{}, nil)

	want := []string{"/a", "/a/b"}
	if diff := cmp.Diff(want, plan.DirCreations); diff != "" {
		t.Errorf("DirCreations mismatch, outermost-first expected (-want +got):\n%s", diff)
	}
}

func TestDiffPhaseOrderingFileRemovalInnermostFirst(t *testing.T) {
	s, err := Fold(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	desired := map[string]*DesiredFile{
		"/a":     {Tombstone: true},
		"/a/b":   {Tombstone: true},
		"/a/b/c": {Tombstone: true},
	}
	observed := map[string]pkgmodel.Properties{
		"/a":     pkgmodel.Directory{},
		"/a/b":   pkgmodel.Directory{},
		"/a/b/c": pkgmodel.RegularFile{},
	}
	plan := Diff(s, desired, observed, nil)

	want := []string{"/a/b/c", "/a/b", "/a"}
	if diff := cmp.Diff(want, plan.FileRemovals); diff != "" {
		t.Errorf("FileRemovals mismatch, innermost-first expected (-want +got):\n%s", diff)
	}
}

func TestDiffMinimalWhenDesiredMatchesObserved(t *testing.T) {
	mode := uint16(0o644)
	checksum := pkgmodel.NewSHA256(sha256.Sum256([]byte("abc")))
	rf := pkgmodel.RegularFile{Mode: mode, Size: 3, Checksum: &checksum}

	desired := map[string]*DesiredFile{
		"/etc/foo": {Explicit: true, Properties: rf, ContentBytes: []byte("abc")},
	}
	observed := map[string]pkgmodel.Properties{
		"/etc/foo": rf,
	}

	s, err := Fold(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	plan := Diff(s, desired, observed, nil)

	if len(plan.FileWrites) != 0 || len(plan.Chmods) != 0 || len(plan.DirCreations) != 0 {
		t.Fatalf("expected an empty plan when desired == observed, got %+v", plan)
	}
}

func TestDiffPackageInstallAndRemove(t *testing.T) {
	in := interner.New()
	vim := pkgmodel.PackageRef(in.Intern("vim"))
	nano := pkgmodel.PackageRef(in.Intern("nano"))

	s, err := Fold([]pkgmodel.Instruction{
		pkgmodel.PkgAdd{Backend: pkgmodel.BackendArch, Pkg: vim},
		pkgmodel.PkgRemove{Backend: pkgmodel.BackendArch, Pkg: nano},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	installed := ObservedPackages{
		pkgmodel.BackendArch: {
			nano: &pkgmodel.Package{ID: nano},
		},
	}
	plan := Diff(s, map[string]*DesiredFile{}, map[string]pkgmodel.Properties{}, installed)

	if diff := cmp.Diff([]pkgmodel.PackageRef{vim}, plan.PackageInstalls[pkgmodel.BackendArch]); diff != "" {
		t.Errorf("PackageInstalls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]pkgmodel.PackageRef{nano}, plan.PackageRemovals[pkgmodel.BackendArch]); diff != "" {
		t.Errorf("PackageRemovals mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDesiredFileWriteSetsSizeForIdempotence(t *testing.T) {
	s, err := Fold([]pkgmodel.Instruction{
		pkgmodel.FileWrite{Path: "/etc/foo", Bytes: []byte("hello")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	desired := BuildDesired(s, nil)
	observed := map[string]pkgmodel.Properties{
		"/etc/foo": pkgmodel.RegularFile{Mode: 0o644, Size: 5},
	}
	plan := Diff(s, desired, observed, nil)
	if len(plan.FileWrites) != 0 {
		t.Fatalf("expected no rewrite once sizes match, got %+v", plan.FileWrites)
	}
}

func TestDiffSymlinkOwnerDriftIsCorrected(t *testing.T) {
	uid := uint32(0)
	s, err := Fold([]pkgmodel.Instruction{
		pkgmodel.Symlink{Path: "/etc/foo", Target: "/etc/bar"},
		pkgmodel.Chown{Path: "/etc/foo", User: pkgmodel.UserRef{UID: &uid}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	desired := BuildDesired(s, nil)
	observed := map[string]pkgmodel.Properties{
		"/etc/foo": pkgmodel.Symlink{Target: "/etc/bar", UID: 1000},
	}
	plan := Diff(s, desired, observed, nil)
	if len(plan.Symlinks) != 0 {
		t.Errorf("target matches, expected no re-link, got %+v", plan.Symlinks)
	}
	if len(plan.Chowns) != 1 || plan.Chowns[0].Path != "/etc/foo" || *plan.Chowns[0].User.UID != 0 {
		t.Fatalf("expected a Chown fixing symlink owner drift, got %+v", plan.Chowns)
	}
}

func TestDiffEarlyGlobRestoresPasswd(t *testing.T) {
	s, err := Fold(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.EarlyGlobs = globset.New("/etc/passwd")

	desired := map[string]*DesiredFile{
		"/etc/passwd": {Properties: pkgmodel.RegularFile{Mode: 0o644}},
	}
	observed := map[string]pkgmodel.Properties{
		"/etc/passwd": pkgmodel.RegularFile{Mode: 0o600},
	}
	plan := Diff(s, desired, observed, nil)

	if diff := cmp.Diff([]string{"/etc/passwd"}, plan.EarlyRestorePaths); diff != "" {
		t.Errorf("EarlyRestorePaths mismatch (-want +got):\n%s", diff)
	}
	if len(plan.RestoreToPackage) != 0 {
		t.Errorf("expected the early-restore path not to also appear in RestoreToPackage, got %v", plan.RestoreToPackage)
	}
}
