// Package debian implements the Debian backend: parsing dpkg's status
// file, per-package md5sums/list sidecars and the diversions table (spec
// §4.2, "C2 Package-DB reader (Debian)"), plus .deb archive access for
// FilesystemOwner.
//
// Grounded on the RFC822-stanza parsing idiom used throughout the
// retrieval pack's Debian-adjacent tools (e.g. etnz-apt-repo-builder's
// control-file reader).
package debian

import (
	"bufio"
	"io"
	"strings"

	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
	"golang.org/x/xerrors"
)

// Stanza is one RFC822-ish record from dpkg's status file: blank-line
// delimited, continuation lines begin with a space, keys are ASCII
// case-insensitive (spec §4.2).
type Stanza struct {
	fields map[string]string // canonicalised (lower-case) key -> joined value
}

func (s *Stanza) Get(key string) string {
	return s.fields[strings.ToLower(key)]
}

// ParseStatus parses the full dpkg status file into stanzas, in file
// order.
func ParseStatus(r io.Reader) ([]*Stanza, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var stanzas []*Stanza
	cur := &Stanza{fields: make(map[string]string)}
	var lastKey string

	flush := func() {
		if len(cur.fields) > 0 {
			stanzas = append(stanzas, cur)
		}
		cur = &Stanza{fields: make(map[string]string)}
		lastKey = ""
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			// continuation line
			cur.fields[lastKey] += "\n" + strings.TrimPrefix(line, " ")
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, xerrors.Errorf("malformed status line (no colon): %q", line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		cur.fields[key] = val
		lastKey = key
	}
	flush()
	return stanzas, sc.Err()
}

// splitDepList splits a Depends/Pre-Depends/Recommends-style field into its
// comma-separated alternatives, taking only the first alternative of each
// "a | b" OR-group (the first listed alternative is what dpkg treats as
// primary for simple dependency-closure purposes; full alternative
// resolution is an apt-level concern out of scope here).
func splitDepList(field string) []string {
	if field == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		alt := strings.SplitN(part, "|", 2)[0]
		out = append(out, depName(alt))
	}
	return out
}

// depName strips the "(>= 1.2.3)" version constraint and any
// architecture qualifier (":any", ":amd64") from one dependency term.
func depName(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '('); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// toPackage converts a status stanza into a pkgmodel.Package. autoInstalled
// comes from /var/lib/apt/extended_states ("Auto-Installed: 1"), since
// dpkg's own status file carries no explicit/dependency distinction (spec
// §3's install_reason is an apt-layer concept on Debian).
func (s *Stanza) toPackage(in *interner.Interner, autoInstalled bool) *pkgmodel.Package {
	name := s.Get("package")
	arch := s.Get("architecture")

	p := &pkgmodel.Package{
		ID:            pkgmodel.PackageRef(in.Intern(name)),
		Arch:          pkgmodel.ArchRef(in.Intern(arch)),
		Version:       s.Get("version"),
		Status:        statusFromField(s.Get("status")),
		InstallReason: pkgmodel.ReasonExplicit,
		Depends:       make(map[pkgmodel.PackageRef]struct{}),
		Provides:      make(map[pkgmodel.PackageRef]struct{}),
		Replaces:      make(map[pkgmodel.PackageRef]struct{}),
	}
	if autoInstalled {
		p.InstallReason = pkgmodel.ReasonAsDependency
	}

	// Dependency closure uses Pre-Depends ∪ Depends; Recommends/Suggests
	// are parsed (available via Stanza.Get for display) but never folded
	// into Depends (spec §4.2).
	for _, d := range splitDepList(s.Get("pre-depends")) {
		p.Depends[pkgmodel.PackageRef(in.Intern(d))] = struct{}{}
	}
	for _, d := range splitDepList(s.Get("depends")) {
		p.Depends[pkgmodel.PackageRef(in.Intern(d))] = struct{}{}
	}
	for _, d := range splitDepList(s.Get("provides")) {
		p.Provides[pkgmodel.PackageRef(in.Intern(d))] = struct{}{}
	}
	for _, d := range splitDepList(s.Get("replaces")) {
		p.Replaces[pkgmodel.PackageRef(in.Intern(d))] = struct{}{}
	}
	return p
}

func statusFromField(status string) pkgmodel.Status {
	parts := strings.Fields(status)
	if len(parts) < 3 {
		return pkgmodel.StatusNotInstalled
	}
	switch parts[2] {
	case "installed":
		return pkgmodel.StatusInstalled
	case "config-files":
		return pkgmodel.StatusConfigFiles
	default:
		return pkgmodel.StatusNotInstalled
	}
}

// ParseExtendedStates parses apt's extended_states file into a set of
// package names marked Auto-Installed.
func ParseExtendedStates(r io.Reader) (map[string]bool, error) {
	stanzas, err := ParseStatus(r) // same RFC822 stanza framing
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, s := range stanzas {
		if s.Get("auto-installed") == "1" {
			out[s.Get("package")] = true
		}
	}
	return out, nil
}
