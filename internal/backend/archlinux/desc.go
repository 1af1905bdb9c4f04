package archlinux

import (
	"bufio"
	"io"
	"strings"

	"github.com/VorpalBlade/paketkoll/internal/interner"
	"github.com/VorpalBlade/paketkoll/internal/pkgmodel"
)

// descRecord is the parsed form of a pacman local-database "desc" file:
// %KEY%\nvalue(s)\n\n blocks.
type descRecord struct {
	fields map[string][]string
}

func parseDesc(r io.Reader) (*descRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1*1024*1024)
	rec := &descRecord{fields: make(map[string][]string)}

	var key string
	var vals []string
	flush := func() {
		if key != "" {
			rec.fields[key] = append(rec.fields[key], vals...)
		}
		key = ""
		vals = nil
	}
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			flush()
			key = strings.ToUpper(strings.Trim(line, "%"))
			continue
		}
		if line == "" {
			continue
		}
		vals = append(vals, line)
	}
	flush()
	return rec, sc.Err()
}

func (d *descRecord) first(key string) string {
	v := d.fields[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// stripDepOperator drops a pacman dependency's version constraint, e.g.
// "glibc>=2.30" -> "glibc".
func stripDepOperator(s string) string {
	for _, op := range []string{">=", "<=", "==", ">", "<", "="} {
		if idx := strings.Index(s, op); idx >= 0 {
			return s[:idx]
		}
	}
	return s
}

// toPackage converts a parsed desc record into a pkgmodel.Package. Recommends
// has no pacman equivalent (Arch has no such field); this exists purely so
// the Debian backend's "parsed but ignored for dependency closure" rule has
// a symmetric no-op on the Arch side.
func (d *descRecord) toPackage(in *interner.Interner) *pkgmodel.Package {
	name := d.first("NAME")
	version := d.first("VERSION")
	arch := d.first("ARCH")

	p := &pkgmodel.Package{
		ID:            pkgmodel.PackageRef(in.Intern(name)),
		Arch:          pkgmodel.ArchRef(in.Intern(arch)),
		Version:       version,
		Status:        pkgmodel.StatusInstalled,
		InstallReason: pkgmodel.ReasonAsDependency,
		Depends:       make(map[pkgmodel.PackageRef]struct{}),
		Provides:      make(map[pkgmodel.PackageRef]struct{}),
		Replaces:      make(map[pkgmodel.PackageRef]struct{}),
	}
	if d.first("REASON") == "0" {
		p.InstallReason = pkgmodel.ReasonExplicit
	}
	for _, dep := range d.fields["DEPENDS"] {
		p.Depends[pkgmodel.PackageRef(in.Intern(stripDepOperator(dep)))] = struct{}{}
	}
	for _, prov := range d.fields["PROVIDES"] {
		p.Provides[pkgmodel.PackageRef(in.Intern(stripDepOperator(prov)))] = struct{}{}
	}
	for _, rep := range d.fields["REPLACES"] {
		p.Replaces[pkgmodel.PackageRef(in.Intern(stripDepOperator(rep)))] = struct{}{}
	}
	return p
}
