// Package sysusers parses systemd-style sysusers.d line records (supplement
// to spec §4.2: original_source/ tracks these for Arch/Debian packages that
// declare service users declaratively rather than via postinst useradd
// calls). Read-only: this package never writes sysusers.d files.
package sysusers

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Kind discriminates a sysusers.d record's first field.
type Kind byte

const (
	KindUser        Kind = 'u'
	KindGroup       Kind = 'g'
	KindUserInGroup Kind = 'm'
	KindRange       Kind = 'r'
)

// Entry is one parsed sysusers.d line.
type Entry struct {
	Kind    Kind
	Name    string
	ID      string // numeric uid/gid, "-" for auto-assign, or a path for dynamic ranges
	Comment string
	Home    string
	Shell   string
}

// ParseError reports a malformed sysusers.d line, identified by its
// 1-based line number within the file being parsed.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sysusers.d:%d: %s", e.Line, e.Msg)
}

// Parse reads sysusers.d records from r, skipping blank lines and
// '#'-prefixed comments.
func Parse(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	var out []Entry
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields, err := splitFields(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}
		if len(fields) < 2 {
			return nil, &ParseError{Line: lineNo, Msg: "expected at least type and name fields"}
		}
		if len(fields[0]) != 1 {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("unknown record type %q", fields[0])}
		}
		e := Entry{Kind: Kind(fields[0][0]), Name: fields[1]}
		if len(fields) > 2 {
			e.ID = fields[2]
		}
		if len(fields) > 3 {
			e.Comment = unquote(fields[3])
		}
		if len(fields) > 4 {
			e.Home = fields[4]
		}
		if len(fields) > 5 {
			e.Shell = fields[5]
		}
		switch e.Kind {
		case KindUser, KindGroup, KindUserInGroup, KindRange:
		default:
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("unknown record type %q", string(e.Kind))}
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// splitFields splits a sysusers.d line on whitespace, honouring double
// quotes around a field (used for the GECOS comment field, which may
// contain spaces).
func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if inQuotes {
				cur.WriteByte(c)
			} else {
				flush()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, xerrors.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// NumericID parses e.ID as a uid/gid, reporting ok=false for "-" (meaning
// auto-assign) or a dynamic range path.
func (e Entry) NumericID() (id uint32, ok bool) {
	if e.ID == "" || e.ID == "-" {
		return 0, false
	}
	n, err := strconv.ParseUint(e.ID, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
