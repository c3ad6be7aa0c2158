// Package match compiles keyword query lines into a boolean rule and tests
// free text against it.
//
// Each non-empty line is a Clause. Inside a line, OR starts a new AndGroup
// and AND is only a separator. Every other token, or "quoted phrase", is a
// term. A rule matches when any clause has any group whose terms all occur
// in the text as plain substrings, case-insensitively.
package match

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// AndGroup matches when all of its terms are present.
type AndGroup []string

// Clause matches when any of its groups matches.
type Clause []AndGroup

// Rule matches when any of its clauses matches. A Rule with no clauses
// matches everything.
type Rule struct {
	clauses []Clause
}

var tokenPattern = regexp.MustCompile(`"[^"]+"|\S+`)

// Compile builds a Rule from query lines. Blank lines and lines starting
// with # are ignored, as are lines that contain no terms.
func Compile(lines []string) *Rule {
	r := &Rule{}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if clause := compileLine(line); len(clause) > 0 {
			r.clauses = append(r.clauses, clause)
		}
	}
	return r
}

func compileLine(line string) Clause {
	var clause Clause
	var group AndGroup

	for _, tok := range tokenPattern.FindAllString(line, -1) {
		switch strings.ToUpper(tok) {
		case "OR":
			if len(group) > 0 {
				clause = append(clause, group)
				group = nil
			}
		case "AND":
		default:
			if term := normalize(strings.Trim(tok, `"`)); term != "" {
				group = append(group, term)
			}
		}
	}
	if len(group) > 0 {
		clause = append(clause, group)
	}
	return clause
}

// normalize lowercases and composes s so that precomposed and combining
// forms of the same letter compare equal.
func normalize(s string) string {
	return norm.NFC.String(cases.Lower(language.Und).String(s))
}

// Matches reports whether text satisfies the rule.
func (r *Rule) Matches(text string) bool {
	if r == nil || len(r.clauses) == 0 {
		return true
	}
	s := normalize(text)
	for _, clause := range r.clauses {
		for _, group := range clause {
			if group.matches(s) {
				return true
			}
		}
	}
	return false
}

func (g AndGroup) matches(s string) bool {
	for _, term := range g {
		if !strings.Contains(s, term) {
			return false
		}
	}
	return true
}

// Len returns the number of clauses.
func (r *Rule) Len() int {
	return len(r.clauses)
}

func (r *Rule) String() string {
	if len(r.clauses) == 0 {
		return "<match all>"
	}
	parts := make([]string, 0, len(r.clauses))
	for _, clause := range r.clauses {
		groups := make([]string, 0, len(clause))
		for _, group := range clause {
			groups = append(groups, fmt.Sprintf("%q", []string(group)))
		}
		parts = append(parts, strings.Join(groups, " | "))
	}
	return strings.Join(parts, " || ")
}

// ReadLines reads query lines from a keywords file.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return lines, nil
}
