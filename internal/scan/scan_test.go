package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/VorpalBlade/paketkoll/internal/globset"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

func TestScanFindsRegularFilesDirsAndSymlinks(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "file"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("file", filepath.Join(root, "sub", "link")); err != nil {
		t.Fatal(err)
	}

	s := New(Options{})
	var paths []string
	var kinds = map[string]pkgmodel.PropsKind{}
	err := s.Scan(context.Background(), root, func(e pkgmodel.FileEntry) error {
		paths = append(paths, e.Path)
		kinds[e.Path] = e.Properties.Kind()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(paths)

	wantFile := filepath.Join(root, "sub", "file")
	wantLink := filepath.Join(root, "sub", "link")
	wantDir := filepath.Join(root, "sub")

	if kinds[wantFile] != pkgmodel.KindRegularFile {
		t.Errorf("expected %s to be a regular file, got %v", wantFile, kinds[wantFile])
	}
	if kinds[wantLink] != pkgmodel.KindSymlink {
		t.Errorf("expected %s to be a symlink, got %v", wantLink, kinds[wantLink])
	}
	if kinds[wantDir] != pkgmodel.KindDirectory {
		t.Errorf("expected %s to be a directory, got %v", wantDir, kinds[wantDir])
	}
}

func TestScanHonoursIgnoreSet(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "skip"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "skip", "file"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "keep"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(Options{Ignores: globset.New(filepath.Join(root, "skip") + "/**")})
	var paths []string
	err := s.Scan(context.Background(), root, func(e pkgmodel.FileEntry) error {
		paths = append(paths, e.Path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if p == filepath.Join(root, "skip", "file") {
			t.Errorf("expected ignored path not to be emitted, got %v", paths)
		}
	}
}

func TestScanTrustMtimeSkipsHashWhenMtimeMatches(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	expectedMtime := fi.ModTime().Unix()

	s := New(Options{
		TrustMtime: true,
		Expected:   func(path string) (int64, bool) { return expectedMtime, true },
	})
	var got pkgmodel.RegularFile
	err = s.Scan(context.Background(), root, func(e pkgmodel.FileEntry) error {
		if e.Path == file {
			got = e.Properties.(pkgmodel.RegularFile)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Checksum != nil {
		t.Errorf("expected no checksum to be computed when trust-mtime matches, got %v", got.Checksum)
	}
}
