package debian

import (
	"bufio"
	"io"
)

// Diversion records that dpkg-divert has rerouted a path to an alternate
// location, optionally reassigning the effective owner (spec §4.2:
// "Diversions rewrite the effective owner of specific paths; must be
// applied before dedup").
type Diversion struct {
	Original string
	Diverted string
	// By is the package that owns the diversion, or "" for a local
	// diversion ("LOCAL" in the file).
	By string
}

// ParseDiversions parses dpkg's diversions file: groups of three lines
// (original path, diverted-to path, package name or "LOCAL").
func ParseDiversions(r io.Reader) ([]Diversion, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1*1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	var out []Diversion
	for i := 0; i+2 < len(lines); i += 3 {
		by := lines[i+2]
		if by == "LOCAL" {
			by = ""
		}
		out = append(out, Diversion{Original: lines[i], Diverted: lines[i+1], By: by})
	}
	return out, nil
}

// Apply returns where a file listed at path actually lives: the diverted-to
// path of the first diversion whose original is path, or path itself when
// there is none. Callers should apply diversions to the expected-file stream
// before deduplicating entries by path, per spec §4.2.
func Apply(diversions []Diversion, path string) (effectivePath string, diverted bool) {
	for _, d := range diversions {
		if d.Original == path {
			return d.Diverted, true
		}
	}
	return path, false
}
