package sysusers

import (
	"strings"
	"testing"
)

func TestParseBasicUserAndGroup(t *testing.T) {
	in := `
# a comment
u httpd 83 "HTTP server user" /var/www /usr/bin/nologin
g httpd 83
m alice httpd
`
	entries, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	u := entries[0]
	if u.Kind != KindUser || u.Name != "httpd" || u.ID != "83" || u.Comment != "HTTP server user" {
		t.Fatalf("unexpected user entry: %+v", u)
	}
	if u.Home != "/var/www" || u.Shell != "/usr/bin/nologin" {
		t.Fatalf("unexpected home/shell: %+v", u)
	}
	if id, ok := u.NumericID(); !ok || id != 83 {
		t.Fatalf("expected numeric id 83, got %d ok=%v", id, ok)
	}
}

func TestParseAutoAssignID(t *testing.T) {
	entries, err := Parse(strings.NewReader("u svc -\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := entries[0].NumericID(); ok {
		t.Fatalf("expected auto-assign id to report ok=false")
	}
}

func TestParseUnterminatedQuoteFails(t *testing.T) {
	_, err := Parse(strings.NewReader(`u bad - "oops`))
	if err == nil {
		t.Fatal("expected an error for an unterminated quote")
	}
}

func TestParseUnknownKindFails(t *testing.T) {
	_, err := Parse(strings.NewReader("x foo bar\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown record type")
	}
}
