package comparator

import (
	"testing"

	"github.com/VorpalBlade/paketkoll/internal/globset"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

func TestCompareMissing(t *testing.T) {
	expected := pkgmodel.RegularFile{Mode: 0o644}
	got := Compare("/etc/foo", expected, nil, Options{})
	if got == nil || got.Kinds != pkgmodel.IssueMissing {
		t.Fatalf("expected Missing, got %+v", got)
	}
}

func TestCompareUnexpected(t *testing.T) {
	actual := pkgmodel.RegularFile{Mode: 0o644}
	got := Compare("/etc/foo", nil, actual, Options{})
	if got == nil || got.Kinds != pkgmodel.IssueUnexpected {
		t.Fatalf("expected Unexpected, got %+v", got)
	}
}

func TestCompareNoIssueWhenEqual(t *testing.T) {
	rf := pkgmodel.RegularFile{Mode: 0o644, UID: 0, GID: 0, Size: 10}
	if got := Compare("/etc/foo", rf, rf, Options{}); got != nil {
		t.Fatalf("expected no issue, got %+v", got)
	}
}

func TestCompareTypeMismatchStopsFieldComparison(t *testing.T) {
	expected := pkgmodel.RegularFile{Mode: 0o644}
	actual := pkgmodel.Directory{Mode: 0o755}
	got := Compare("/etc/foo", expected, actual, Options{})
	if got == nil || got.Kinds != pkgmodel.IssueType {
		t.Fatalf("expected bare Type mismatch (no other bits), got %+v", got)
	}
}

func TestCompareUnknownKindSkipped(t *testing.T) {
	// Debian's "checksum unavailable, type unverifiable" case: existence
	// alone is checked elsewhere (Missing/Unexpected), never field-compared.
	expected := pkgmodel.Unknown{}
	actual := pkgmodel.Symlink{Target: "/usr/bin/x"}
	if got := Compare("/etc/foo", expected, actual, Options{}); got != nil {
		t.Fatalf("expected no issue for an unverifiable expected entry, got %+v", got)
	}
}

func TestCompareChecksumShortCircuitOnSizeMismatch(t *testing.T) {
	eSum := pkgmodel.NewSHA256([32]byte{1})
	aSum := pkgmodel.NewSHA256([32]byte{2})
	expected := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Checksum: &eSum}
	actual := pkgmodel.RegularFile{Mode: 0o644, Size: 20, Checksum: &aSum}

	got := Compare("/etc/foo", expected, actual, Options{})
	if got == nil {
		t.Fatal("expected an issue")
	}
	if !got.Kinds.Has(pkgmodel.IssueSize) {
		t.Errorf("expected Size bit set, kinds=%v", got.Kinds)
	}
	if got.Kinds.Has(pkgmodel.IssueChecksum) {
		t.Errorf("checksum should not be reported once size already differs (short-circuit), kinds=%v", got.Kinds)
	}
}

func TestCompareChecksumReportedWhenSizeMatches(t *testing.T) {
	eSum := pkgmodel.NewSHA256([32]byte{1})
	aSum := pkgmodel.NewSHA256([32]byte{2})
	expected := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Checksum: &eSum}
	actual := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Checksum: &aSum}

	got := Compare("/etc/foo", expected, actual, Options{})
	if got == nil || !got.Kinds.Has(pkgmodel.IssueChecksum) {
		t.Fatalf("expected Checksum bit set, got %+v", got)
	}
}

func TestCompareChecksumKindMismatchIsReportedNotSwallowed(t *testing.T) {
	// Debian populates MD5 checksums while the scanner may have hashed
	// SHA-256 for a mixed-backend tree; this must surface as a checksum
	// issue rather than be silently treated as "equal".
	eSum := pkgmodel.NewMD5([16]byte{1})
	aSum := pkgmodel.NewSHA256([32]byte{2})
	expected := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Checksum: &eSum}
	actual := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Checksum: &aSum}

	got := Compare("/var/lib/dpkg/foo", expected, actual, Options{})
	if got == nil || !got.Kinds.Has(pkgmodel.IssueChecksum) {
		t.Fatalf("expected Checksum bit set on kind mismatch, got %+v", got)
	}
}

func TestCompareTrustMtimeSkipsChecksumWhenMtimeMatches(t *testing.T) {
	mtime := int64(1000)
	eSum := pkgmodel.NewSHA256([32]byte{1})
	aSum := pkgmodel.NewSHA256([32]byte{2})
	expected := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Mtime: &mtime, Checksum: &eSum}
	actual := pkgmodel.RegularFile{Mode: 0o644, Size: 10, Mtime: &mtime, Checksum: &aSum}

	got := Compare("/etc/foo", expected, actual, Options{TrustMtime: true})
	if got != nil {
		t.Fatalf("expected trust-mtime to short-circuit before checksum, got %+v", got)
	}
}

func TestCompareOwnerModeOnlyForDirectory(t *testing.T) {
	expected := pkgmodel.Directory{Mode: 0o755, UID: 0, GID: 0}
	actual := pkgmodel.Directory{Mode: 0o700, UID: 1000, GID: 0}

	got := Compare("/etc/foo", expected, actual, Options{})
	if got == nil {
		t.Fatal("expected an issue")
	}
	if !got.Kinds.Has(pkgmodel.IssueMode) || !got.Kinds.Has(pkgmodel.IssueOwner) {
		t.Errorf("expected Mode and Owner bits, got %v", got.Kinds)
	}
	if got.Kinds.Has(pkgmodel.IssueGroup) {
		t.Errorf("did not expect Group bit, got %v", got.Kinds)
	}
}

func TestCompareSymlinkTarget(t *testing.T) {
	expected := pkgmodel.Symlink{Target: "/usr/bin/a"}
	actual := pkgmodel.Symlink{Target: "/usr/bin/b"}
	got := Compare("/etc/foo", expected, actual, Options{})
	if got == nil || !got.Kinds.Has(pkgmodel.IssueTarget) {
		t.Fatalf("expected Target bit, got %+v", got)
	}
}

func TestAuditReportsMissingAndUnexpected(t *testing.T) {
	expected := map[string]pkgmodel.Properties{
		"/etc/foo": pkgmodel.RegularFile{Mode: 0o644},
	}
	observed := map[string]pkgmodel.Properties{
		"/etc/bar": pkgmodel.RegularFile{Mode: 0o644},
	}
	issues := Audit(expected, observed, nil, Options{})
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues (Missing + Unexpected), got %d: %+v", len(issues), issues)
	}
	var sawMissing, sawUnexpected bool
	for _, iss := range issues {
		switch iss.Path {
		case "/etc/foo":
			sawMissing = iss.Kinds == pkgmodel.IssueMissing
		case "/etc/bar":
			sawUnexpected = iss.Kinds == pkgmodel.IssueUnexpected
		}
	}
	if !sawMissing || !sawUnexpected {
		t.Fatalf("expected one Missing and one Unexpected issue, got %+v", issues)
	}
}

func TestAuditIgnoreSuppressesBothMissingAndUnexpected(t *testing.T) {
	expected := map[string]pkgmodel.Properties{
		"/x/missing": pkgmodel.RegularFile{Mode: 0o644},
	}
	observed := map[string]pkgmodel.Properties{
		"/x/extra": pkgmodel.RegularFile{Mode: 0o644},
	}
	ignores := globset.New("/x/**")
	if issues := Audit(expected, observed, ignores, Options{}); len(issues) != 0 {
		t.Fatalf("expected ignored paths to produce no issues, got %+v", issues)
	}
}

func TestAuditIgnoreDoesNotSuppressExplicitMismatch(t *testing.T) {
	// A path both expected and observed, but differing, is reported even
	// when it falls under an ignore glob: ignore semantics only affect the
	// Missing/Unexpected classification of paths with no counterpart on one
	// side, not paths present on both sides with diverging properties.
	expected := map[string]pkgmodel.Properties{
		"/x/conf": pkgmodel.RegularFile{Mode: 0o644},
	}
	observed := map[string]pkgmodel.Properties{
		"/x/conf": pkgmodel.RegularFile{Mode: 0o600},
	}
	ignores := globset.New("/x/**")
	issues := Audit(expected, observed, ignores, Options{})
	if len(issues) != 1 || !issues[0].Kinds.Has(pkgmodel.IssueMode) {
		t.Fatalf("expected a Mode mismatch issue despite the ignore glob, got %+v", issues)
	}
}
