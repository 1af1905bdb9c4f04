// Package comparator implements the integrity comparator (spec §2 C8,
// §4.6): classifying an expected FileEntry against an observed one (or
// absence thereof) into an Issue.
package comparator

import (
	"github.com/VorpalBlade/paketkoll/internal/globset"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

// Options tunes comparison behaviour.
type Options struct {
	// TrustMtime, when true, lets a matching mtime stand in for a matching
	// checksum (spec §4.6, §4.5 "Trust-mtime mode").
	TrustMtime bool
}

// Compare classifies expected against actual, both possibly nil (nil
// expected + non-nil actual means Unexpected; non-nil expected + nil actual
// means Missing). It returns nil if there is nothing to report.
func Compare(path string, expected, actual pkgmodel.Properties, opts Options) *pkgmodel.Issue {
	switch {
	case expected == nil && actual == nil:
		return nil
	case expected == nil:
		return &pkgmodel.Issue{Path: path, Actual: actual, Kinds: pkgmodel.IssueUnexpected}
	case actual == nil:
		return &pkgmodel.Issue{Path: path, Expected: expected, Kinds: pkgmodel.IssueMissing}
	}

	if expected.Kind() == pkgmodel.KindUnknown {
		// type unverifiable: we can only confirm existence (spec §4.2).
		return nil
	}

	if expected.Kind() != actual.Kind() {
		// "type mismatch → Type (and stop; no field-wise comparison)" (§4.6)
		return &pkgmodel.Issue{Path: path, Expected: expected, Actual: actual, Kinds: pkgmodel.IssueType}
	}

	switch e := expected.(type) {
	case pkgmodel.RegularFile:
		a := actual.(pkgmodel.RegularFile)
		return compareRegularFile(path, e, a, opts)
	case pkgmodel.Directory:
		a := actual.(pkgmodel.Directory)
		return compareOwnerModeOnly(path, expected, actual, e.Mode, a.Mode, e.UID, a.UID, e.GID, a.GID)
	case pkgmodel.Symlink:
		a := actual.(pkgmodel.Symlink)
		var kinds pkgmodel.IssueKind
		if e.Target != a.Target {
			kinds |= pkgmodel.IssueTarget
		}
		if e.UID != a.UID {
			kinds |= pkgmodel.IssueOwner
		}
		if e.GID != a.GID {
			kinds |= pkgmodel.IssueGroup
		}
		if kinds == 0 {
			return nil
		}
		return &pkgmodel.Issue{Path: path, Expected: expected, Actual: actual, Kinds: kinds}
	case pkgmodel.Device:
		a := actual.(pkgmodel.Device)
		kinds := modeOwnerGroupKinds(e.Mode, a.Mode, e.UID, a.UID, e.GID, a.GID)
		if e.Kind != a.Kind || e.Major != a.Major || e.Minor != a.Minor {
			kinds |= pkgmodel.IssueType
		}
		if kinds == 0 {
			return nil
		}
		return &pkgmodel.Issue{Path: path, Expected: expected, Actual: actual, Kinds: kinds}
	case pkgmodel.Fifo:
		a := actual.(pkgmodel.Fifo)
		return compareOwnerModeOnly(path, expected, actual, e.Mode, a.Mode, e.UID, a.UID, e.GID, a.GID)
	case pkgmodel.Socket:
		a := actual.(pkgmodel.Socket)
		return compareOwnerModeOnly(path, expected, actual, e.Mode, a.Mode, e.UID, a.UID, e.GID, a.GID)
	default:
		return nil
	}
}

// Audit compares an expected filesystem view (e.g. reconcile.BuildDesired's
// output, flattened to Properties) against what the scanner observed,
// reporting Missing for expected paths never seen and Unexpected for
// observed paths the walk found but nothing expects. ignores, when
// non-nil, suppresses both: a path beneath an ignored glob is neither
// Missing nor Unexpected (spec §4.6 "and not ignored").
func Audit(expected, observed map[string]pkgmodel.Properties, ignores *globset.Set, opts Options) []*pkgmodel.Issue {
	var issues []*pkgmodel.Issue
	seen := make(map[string]bool, len(observed))
	for p, a := range observed {
		seen[p] = true
		e, ok := expected[p]
		if !ok {
			if ignores != nil && ignores.Match(p) {
				continue
			}
			e = nil
		}
		if issue := Compare(p, e, a, opts); issue != nil {
			issues = append(issues, issue)
		}
	}
	for p, e := range expected {
		if seen[p] {
			continue
		}
		if ignores != nil && ignores.Match(p) {
			continue
		}
		if issue := Compare(p, e, nil, opts); issue != nil {
			issues = append(issues, issue)
		}
	}
	return issues
}

func modeOwnerGroupKinds(eMode, aMode uint16, eUID, aUID, eGID, aGID uint32) pkgmodel.IssueKind {
	var kinds pkgmodel.IssueKind
	if eMode != aMode {
		kinds |= pkgmodel.IssueMode
	}
	if eUID != aUID {
		kinds |= pkgmodel.IssueOwner
	}
	if eGID != aGID {
		kinds |= pkgmodel.IssueGroup
	}
	return kinds
}

func compareOwnerModeOnly(path string, expected, actual pkgmodel.Properties, eMode, aMode uint16, eUID, aUID, eGID, aGID uint32) *pkgmodel.Issue {
	kinds := modeOwnerGroupKinds(eMode, aMode, eUID, aUID, eGID, aGID)
	if kinds == 0 {
		return nil
	}
	return &pkgmodel.Issue{Path: path, Expected: expected, Actual: actual, Kinds: kinds}
}

// compareRegularFile implements the short-circuit order from spec §4.6:
// size, then mtime (if trusted), then checksum — stopping at the first
// discrepancy found via size, per the "Checksum short-circuit" testable
// property in spec §8 (once size differs, checksum is not computed/
// reported).
func compareRegularFile(path string, e, a pkgmodel.RegularFile, opts Options) *pkgmodel.Issue {
	kinds := modeOwnerGroupKinds(e.Mode, a.Mode, e.UID, a.UID, e.GID, a.GID)

	if e.Size != 0 && a.Size != 0 && e.Size != a.Size {
		kinds |= pkgmodel.IssueSize
		if kinds == 0 {
			return nil
		}
		return &pkgmodel.Issue{Path: path, Expected: e, Actual: a, Kinds: kinds}
	}

	if opts.TrustMtime && e.Mtime != nil && a.Mtime != nil {
		if *e.Mtime == *a.Mtime {
			if kinds == 0 {
				return nil
			}
			return &pkgmodel.Issue{Path: path, Expected: e, Actual: a, Kinds: kinds}
		}
		kinds |= pkgmodel.IssueMtime
	}

	if e.Checksum != nil && a.Checksum != nil {
		eq, err := e.Checksum.Equal(*a.Checksum)
		// A kind mismatch (e.g. the scanner hashed sha256 while the
		// backend recorded md5) means content equality could not be
		// verified at all — surface it rather than silently treating
		// the file as unchanged.
		if err != nil || !eq {
			kinds |= pkgmodel.IssueChecksum
		}
	}

	if kinds == 0 {
		return nil
	}
	return &pkgmodel.Issue{Path: path, Expected: e, Actual: a, Kinds: kinds}
}
