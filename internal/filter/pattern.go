// Package filter compiles the filename filters used by watchers.
//
// A filter is a single filename segment where '*' matches any run of characters and
// '?' matches exactly one character. Every other character is literal. A filter may
// carry a directory qualifier ("docs/*.md"), which is folded into the base path
// returned by Parse rather than matched per call.
package filter

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/TFMV/vfswatch/internal/upath"
)

// MatchAll is the filter that accepts every name.
const MatchAll = "*"

type matchKind int

const (
	matchAny matchKind = iota
	matchExact
	matchWildcard
)

// foldCase mirrors the host path convention.
var foldCase = runtime.GOOS == "windows"

// Pattern is a compiled filter. The zero value matches every name.
type Pattern struct {
	text  string
	kind  matchKind
	re    *regexp.Regexp
	fold  bool
	exact string
}

// Parse compiles pattern relative to base and returns the compiled matcher along
// with the base extended by the directory qualifier of pattern, if any.
//
// Parsing is deterministic, and parsing the returned base with p.String() again
// yields the same pattern and base.
func Parse(base upath.Path, pattern string) (Pattern, upath.Path, error) {
	if base.IsNull() {
		return Pattern{}, upath.Null, fmt.Errorf("filter base path is null: %w", upath.ErrInvalidArgument)
	}
	if strings.HasPrefix(pattern, "/") {
		return Pattern{}, upath.Null, fmt.Errorf("filter %q cannot start with a separator: %w", pattern, upath.ErrInvalidArgument)
	}

	if i := strings.LastIndexByte(pattern, upath.Separator); i > 0 {
		dir, err := upath.New(pattern[:i])
		if err != nil {
			return Pattern{}, upath.Null, fmt.Errorf("filter %q: %w", pattern, err)
		}
		if base, err = upath.Combine(base, dir); err != nil {
			return Pattern{}, upath.Null, fmt.Errorf("filter %q: %w", pattern, err)
		}
		pattern = pattern[i+1:]
	}

	compiled, err := compile(pattern, foldCase)
	if err != nil {
		return Pattern{}, upath.Null, err
	}
	return compiled, base, nil
}

// compile builds the matcher for a single segment. An empty segment, as left by
// a trailing separator, accepts every name.
func compile(segment string, fold bool) (Pattern, error) {
	if segment == "" {
		segment = MatchAll
	}
	p := Pattern{text: segment, fold: fold}
	if segment == MatchAll {
		p.kind = matchAny
		return p, nil
	}
	if !strings.ContainsAny(segment, "*?") {
		p.kind = matchExact
		p.exact = segment
		return p, nil
	}

	re, err := regexp.Compile(wildcardExpr(segment, fold))
	if err != nil {
		return Pattern{}, fmt.Errorf("compile filter %q: %w", segment, err)
	}
	p.kind = matchWildcard
	p.re = re
	return p, nil
}

// wildcardExpr translates a segment into an expression anchored at both ends:
// '*' becomes ".*", '?' becomes "." and every other rune is quoted.
func wildcardExpr(segment string, fold bool) string {
	var b strings.Builder
	b.Grow(len(segment)*2 + 8)
	if fold {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	start := 0
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c != '*' && c != '?' {
			continue
		}
		b.WriteString(regexp.QuoteMeta(segment[start:i]))
		if c == '*' {
			b.WriteString(".*")
		} else {
			b.WriteByte('.')
		}
		start = i + 1
	}
	b.WriteString(regexp.QuoteMeta(segment[start:]))
	b.WriteByte('$')
	return b.String()
}

// String returns the compiled filename segment.
func (p Pattern) String() string {
	if p.kind == matchAny && p.text == "" {
		return MatchAll
	}
	return p.text
}

// MatchesAll reports whether p accepts every name.
func (p Pattern) MatchesAll() bool {
	return p.kind == matchAny
}

// Match reports whether the name of path is accepted by p.
func (p Pattern) Match(path upath.Path) (bool, error) {
	name, err := path.Name()
	if err != nil {
		return false, err
	}
	return p.MatchName(name), nil
}

// MatchName tests a bare filename against p.
func (p Pattern) MatchName(name string) bool {
	switch p.kind {
	case matchExact:
		if p.fold {
			return strings.EqualFold(p.exact, name)
		}
		return p.exact == name
	case matchWildcard:
		return p.re.MatchString(name)
	}
	return true
}
