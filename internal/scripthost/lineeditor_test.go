package scripthost

import (
	"regexp"
	"testing"
)

func TestApplyDeleteRemovesLine(t *testing.T) {
	content := "keep\ndrop\nkeep2\n"
	rules := []Rule{
		{Selector: SelectRegex, Regex: regexp.MustCompile(`^drop$`), Action: ActionDelete},
	}
	got, err := Apply(content, rules)
	if err != nil {
		t.Fatal(err)
	}
	want := "keep\nkeep2\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyReplaceFirstOnlyAffectsLeftmostMatch(t *testing.T) {
	content := "a=1 a=2\n"
	rules := []Rule{
		{Selector: SelectAll, Action: ActionRegexReplace, Regex: regexp.MustCompile(`a=\d`), Repl: "x"},
	}
	got, err := Apply(content, rules)
	if err != nil {
		t.Fatal(err)
	}
	want := "x a=2\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyRegexReplaceAllReplacesEveryMatch(t *testing.T) {
	content := "a=1 a=2\n"
	rules := []Rule{
		{Selector: SelectAll, Action: ActionRegexReplaceAll, Regex: regexp.MustCompile(`a=\d`), Repl: "x"},
	}
	got, err := Apply(content, rules)
	if err != nil {
		t.Fatal(err)
	}
	want := "x x\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyInsertAfterAddsLine(t *testing.T) {
	content := "one\n"
	rules := []Rule{
		{Selector: SelectAll, Action: ActionInsertAfter, Text: "two"},
	}
	got, err := Apply(content, rules)
	if err != nil {
		t.Fatal(err)
	}
	want := "one\ntwo\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
