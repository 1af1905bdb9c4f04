package scripthost

import (
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/xerrors"
)

// Selector discriminates which lines a LineEdit rule's Action applies to
// (spec §6 "LineEditor").
type Selector int

const (
	SelectAll Selector = iota
	SelectRegex
	SelectEOF
)

// ActionKind discriminates a LineEdit rule's effect.
type ActionKind int

const (
	ActionReplace ActionKind = iota
	ActionRegexReplace
	ActionRegexReplaceAll
	ActionInsertAfter
	ActionDelete
	ActionNextLine
	ActionSubProgram
	ActionFunction
)

// Rule is one (Selector, Action) pair of the sed-like pipeline described in
// spec §6.
type Rule struct {
	Selector Selector
	Regex    *regexp.Regexp // set when Selector == SelectRegex

	Action ActionKind
	Text   string              // ActionReplace/ActionInsertAfter literal text
	Repl   string              // ActionRegexReplace/ActionRegexReplaceAll replacement
	Argv   []string            // ActionSubProgram
	Fn     func(line string) (string, error) // ActionFunction
}

// Apply runs the rule pipeline over content line by line, matching spec
// §6's "applied as a sed-like pipeline over lines" description.
func Apply(content string, rules []Rule) (string, error) {
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}
	var out []string
	skipNext := false
	for i, line := range lines {
		if skipNext {
			skipNext = false
			continue
		}
		edited, deleted, advance, err := applyLine(line, i == len(lines)-1, rules)
		if err != nil {
			return "", err
		}
		if deleted {
			continue
		}
		out = append(out, edited)
		if advance {
			skipNext = true
		}
	}
	joined := strings.Join(out, "\n")
	if trailingNewline {
		joined += "\n"
	}
	return joined, nil
}

func applyLine(line string, isEOF bool, rules []Rule) (edited string, deleted bool, advance bool, err error) {
	edited = line
	for _, r := range rules {
		if !selects(r, edited, isEOF) {
			continue
		}
		switch r.Action {
		case ActionReplace:
			edited = r.Text
		case ActionRegexReplace:
			edited = replaceFirst(r.Regex, edited, r.Repl)
		case ActionRegexReplaceAll:
			edited = r.Regex.ReplaceAllString(edited, r.Repl)
		case ActionInsertAfter:
			edited = edited + "\n" + r.Text
		case ActionDelete:
			return "", true, false, nil
		case ActionNextLine:
			advance = true
		case ActionSubProgram:
			edited, err = runSubProgram(r.Argv, edited)
			if err != nil {
				return "", false, false, err
			}
		case ActionFunction:
			if r.Fn == nil {
				return "", false, false, xerrors.Errorf("lineeditor: ActionFunction rule with no Fn")
			}
			edited, err = r.Fn(edited)
			if err != nil {
				return "", false, false, err
			}
		}
	}
	return edited, false, advance, nil
}

func selects(r Rule, line string, isEOF bool) bool {
	switch r.Selector {
	case SelectAll:
		return true
	case SelectRegex:
		return r.Regex != nil && r.Regex.MatchString(line)
	case SelectEOF:
		return isEOF
	default:
		return false
	}
}

// replaceFirst replaces only the leftmost match of re in s, unlike
// regexp's own ReplaceAll family which always replaces every match.
func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	var result []byte
	result = append(result, s[:loc[0]]...)
	result = re.ExpandString(result, repl, s, loc)
	result = append(result, s[loc[1]:]...)
	return string(result)
}

func runSubProgram(argv []string, stdin string) (string, error) {
	if len(argv) == 0 {
		return stdin, nil
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.Output()
	if err != nil {
		return "", xerrors.Errorf("lineeditor: sub-program %v: %w", argv, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}
