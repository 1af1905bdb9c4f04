package reconcile

import (
	"errors"
	"testing"

	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"github.com/google/go-cmp/cmp"
)

func TestFoldLaterInstructionWins(t *testing.T) {
	instrs := []pkgmodel.Instruction{
		pkgmodel.FileWrite{Path: "/etc/foo", Bytes: []byte("v1")},
		pkgmodel.FileWrite{Path: "/etc/foo", Bytes: []byte("v2")},
	}
	s, err := Fold(instrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Paths["/etc/foo"]
	if got == nil || string(got.Bytes) != "v2" {
		t.Fatalf("expected last write to win, got %+v", got)
	}
}

func TestFoldChmodIndependentOfWrite(t *testing.T) {
	mode := uint16(0o600)
	instrs := []pkgmodel.Instruction{
		pkgmodel.FileWrite{Path: "/etc/foo", Bytes: []byte("v1")},
		pkgmodel.Chmod{Path: "/etc/foo", Mode: mode},
		pkgmodel.FileWrite{Path: "/etc/foo", Bytes: []byte("v2")},
	}
	s, err := Fold(instrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Paths["/etc/foo"]
	if got.Mode == nil || *got.Mode != mode {
		t.Fatalf("expected chmod to survive a later write to the same path, got %+v", got.Mode)
	}
	if string(got.Bytes) != "v2" {
		t.Fatalf("expected content to be the later write, got %q", got.Bytes)
	}
}

func TestFoldRestoreFromPkgRequiresOwnership(t *testing.T) {
	owned := func(path string) bool { return path == "/etc/owned" }
	instrs := []pkgmodel.Instruction{
		pkgmodel.FileRestoreFromPkg{Path: "/etc/unowned"},
	}
	_, err := Fold(instrs, owned)
	if err == nil {
		t.Fatal("expected UnownedRestore error")
	}
	var target *UnownedRestore
	if !errors.As(err, &target) {
		t.Fatalf("expected *UnownedRestore, got %T: %v", err, err)
	}
	if target.Path != "/etc/unowned" {
		t.Fatalf("wrong path in error: %+v", target)
	}
}

func TestFoldRestoreFromPkgDowngradesExplicitSource(t *testing.T) {
	owned := func(path string) bool { return true }
	instrs := []pkgmodel.Instruction{
		pkgmodel.FileWrite{Path: "/etc/foo", Bytes: []byte("custom")},
		pkgmodel.FileRestoreFromPkg{Path: "/etc/foo"},
	}
	s, err := Fold(instrs, owned)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Paths["/etc/foo"]
	if got.Action != ActionRestoreFromPkg {
		t.Fatalf("expected restore to win over the earlier write, got action %v", got.Action)
	}
	if got.explicit() {
		t.Fatalf("restored path should no longer be explicit")
	}
}

func TestFoldPackageWantLaterWins(t *testing.T) {
	in := interner.New()
	vim := pkgmodel.PackageRef(in.Intern("vim"))
	instrs := []pkgmodel.Instruction{
		pkgmodel.PkgAdd{Backend: pkgmodel.BackendArch, Pkg: vim},
		pkgmodel.PkgRemove{Backend: pkgmodel.BackendArch, Pkg: vim},
	}
	s, err := Fold(instrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := s.Packages[pkgmodel.BackendArch][vim]
	if want == nil || want.Install {
		t.Fatalf("expected the remove to win, got %+v", want)
	}
}

func TestFoldGlobsCollected(t *testing.T) {
	instrs := []pkgmodel.Instruction{
		pkgmodel.IgnorePath{Glob: "/var/log/**"},
		pkgmodel.EarlyConfig{Glob: "/etc/passwd"},
		pkgmodel.SensitiveFile{Glob: "/etc/shadow"},
	}
	s, err := Fold(instrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Ignores.Match("/var/log/foo") {
		t.Error("expected ignore glob to be collected")
	}
	if !s.EarlyGlobs.Match("/etc/passwd") {
		t.Error("expected early glob to be collected")
	}
	if !s.SensitiveGlobs.Match("/etc/shadow") {
		t.Error("expected sensitive glob to be collected")
	}
}

func TestFoldSeedsDefaultEarlyAndSensitiveGlobs(t *testing.T) {
	s, err := Fold(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/etc/passwd", "/etc/group", "/etc/shadow", "/etc/gshadow"} {
		if !s.EarlyGlobs.Match(p) {
			t.Errorf("expected %s to be early by default", p)
		}
	}
	for _, p := range []string{"/etc/shadow", "/etc/gshadow", "/etc/shadow-", "/etc/gshadow-"} {
		if !s.SensitiveGlobs.Match(p) {
			t.Errorf("expected %s to be sensitive by default", p)
		}
	}
	if s.Ignores.Match("/etc/passwd") {
		t.Error("Ignores should have no default entries")
	}
}

func TestFoldCommentsPreserved(t *testing.T) {
	instrs := []pkgmodel.Instruction{
		pkgmodel.Comment{Text: "hello"},
		pkgmodel.Comment{Text: "world"},
	}
	s, err := Fold(instrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"hello", "world"}, s.Comments); diff != "" {
		t.Errorf("Comments mismatch (-want +got):\n%s", diff)
	}
}
