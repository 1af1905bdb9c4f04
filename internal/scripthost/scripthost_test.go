package scripthost

import (
	"testing"

	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

func testHost(in *interner.Interner) *Host {
	return New(Deps{
		LookupPkg: func(backend pkgmodel.BackendID, name string) (pkgmodel.PackageRef, bool) {
			return pkgmodel.PackageRef(in.Intern(name)), true
		},
		LookupUID: func(name string) (uint32, bool) {
			if name == "root" {
				return 0, true
			}
			return 0, false
		},
		LookupGID: func(name string) (uint32, bool) {
			if name == "root" {
				return 0, true
			}
			return 0, false
		},
		HasSource: func(path string) bool { return path == "known.txt" },
	})
}

func TestAddPkgEmitsPkgAdd(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	if err := h.AddPkg(pkgmodel.BackendArch, "vim"); err != nil {
		t.Fatal(err)
	}
	if len(h.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(h.Instructions))
	}
	got, ok := h.Instructions[0].(pkgmodel.PkgAdd)
	if !ok || got.Backend != pkgmodel.BackendArch {
		t.Fatalf("unexpected instruction %+v", h.Instructions[0])
	}
}

func TestCopyFromRejectsUnknownSource(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	if err := h.CopyFrom("/etc/foo", "missing.txt"); err == nil {
		t.Fatal("expected an error for an unknown source file")
	}
	if len(h.Instructions) != 0 {
		t.Fatalf("expected no instruction emitted on error, got %+v", h.Instructions)
	}
}

func TestCopyFromAcceptsKnownSource(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	if err := h.CopyFrom("/etc/foo", "known.txt"); err != nil {
		t.Fatal(err)
	}
	got, ok := h.Instructions[0].(pkgmodel.FileCopyFromConfig)
	if !ok || got.Source != "known.txt" {
		t.Fatalf("unexpected instruction %+v", h.Instructions[0])
	}
}

func TestChownUnknownUserFails(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	if err := h.Chown("/etc/foo", "nobody-unknown"); err == nil {
		t.Fatal("expected an error for an unknown user")
	}
}

func TestChownKnownUserEmitsChown(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	if err := h.Chown("/etc/foo", "root"); err != nil {
		t.Fatal(err)
	}
	got, ok := h.Instructions[0].(pkgmodel.Chown)
	if !ok || got.User.UID == nil || *got.User.UID != 0 {
		t.Fatalf("unexpected instruction %+v", h.Instructions[0])
	}
}

func TestMkdirCanonicalisesPath(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	h.Mkdir("/etc//foo/../bar")
	got, ok := h.Instructions[0].(pkgmodel.Mkdir)
	if !ok || got.Path != "/etc/bar" {
		t.Fatalf("expected canonicalised path /etc/bar, got %+v", h.Instructions[0])
	}
}

func TestIgnorePathCanonicalisesGlobButKeepsWildcards(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	h.IgnorePath("/var//cache/**")
	got, ok := h.Instructions[0].(pkgmodel.IgnorePath)
	if !ok || got.Glob != "/var/cache/**" {
		t.Fatalf("expected /var/cache/**, got %+v", h.Instructions[0])
	}
}

func TestSettingsBuiltins(t *testing.T) {
	in := interner.New()
	h := testHost(in)
	h.EnablePkgBackend(pkgmodel.BackendDebian)
	h.SetSavePrefix("ctx.cmds")
	h.SetDiff([]string{"diff", "-u"})

	if len(h.Settings.EnabledBackends) != 1 || h.Settings.EnabledBackends[0] != pkgmodel.BackendDebian {
		t.Fatalf("unexpected enabled backends %+v", h.Settings.EnabledBackends)
	}
	if h.Settings.SavePrefix != "ctx.cmds" {
		t.Fatalf("unexpected save prefix %q", h.Settings.SavePrefix)
	}
}
