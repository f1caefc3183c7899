package filter

import (
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/TFMV/vfswatch/internal/upath"
)

func TestPatternMatchTable(t *testing.T) {
	testCases := []struct {
		pattern string
		path    string
		want    bool
	}{
		// Match everything
		{"*", "/a", true},
		{"*", "/a/b/c.txt", true},
		{"*", "/", true},

		// Single character wildcard
		{"x?z", "/xyz", true},
		{"x?z", "/xyzz", false},
		{"x?z", "/xz", false},

		// Star in the middle
		{"x*z", "/xyz", true},
		{"x*z", "/xblablaz", true},
		{"x*z", "/axyz", false},
		{"x*z", "/xyza", false},

		// Extensions, no legacy truncated-extension quirks
		{"*.txt", "/x.txt", true},
		{"*.txt", "/dir/x.txt", true},
		{"*.txt", "/x.txt1", false},
		{"*.txt", "/x.tx", false},

		// Exact length wildcards
		{"??", "/ab", true},
		{"??", "/a", false},
		{"??", "/abc", false},

		// Exact match fast path
		{"file.go", "/src/file.go", true},
		{"file.go", "/src/other.go", false},

		// Glob and regular expression meta characters are literal
		{"[a]*", "/[a]bc", true},
		{"[a]*", "/abc", false},
		{"{a,b}", "/{a,b}", true},
		{"{a,b}", "/a", false},
		{"a+b(c)*", "/a+b(c)d", true},
		{"a+b(c)*", "/aab(c)", false},

		// Literal prefix and suffix may not overlap
		{"a*a", "/a", false},
		{"a*a", "/aa", true},
		{".*.", "/..x", false},
		{"}*}", "/}}", true},

		// Wildcards count runes, not bytes
		{"?.txt", "/\u00fc.txt", true},
		{"b?!", "/b\u00e9!", true},
		{"\u00e9*\u00e9", "/\u00e9", false},
		{"\u00e9*\u00e9", "/\u00e9\u00e9", true},
		{"??", "/\u00e9", false},
	}

	for _, tc := range testCases {
		p, _, err := Parse(upath.Root, tc.pattern)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.pattern, err)
			continue
		}
		got, err := p.Match(upath.MustNew(tc.path))
		if err != nil {
			t.Errorf("Match(%q, %q): %v", tc.pattern, tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Pattern %q on path %q returned %v, expected %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestParseFoldsDirectoryQualifier(t *testing.T) {
	p, base, err := Parse(upath.MustNew("/a/b/c"), "d/x")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if base.String() != "/a/b/c/d" {
		t.Errorf("Extended base = %q, expected /a/b/c/d", base)
	}
	if p.String() != "x" {
		t.Errorf("Remaining pattern = %q, expected x", p)
	}

	// Only the trailing name is tested; the directory route was folded into base.
	for _, candidate := range []string{"/a/b/c/d/x", "/elsewhere/x"} {
		ok, _ := p.Match(upath.MustNew(candidate))
		if !ok {
			t.Errorf("Expected %q to match", candidate)
		}
	}
}

func TestParseIsFixedPoint(t *testing.T) {
	testCases := []struct {
		base    string
		pattern string
	}{
		{"/", "*"},
		{"/a", "d/e/*.txt"},
		{"/a/b", "x?z"},
		{"rel", "sub/file"},
	}
	for _, tc := range testCases {
		p1, base1, err := Parse(upath.MustNew(tc.base), tc.pattern)
		if err != nil {
			t.Fatalf("Parse(%q, %q): %v", tc.base, tc.pattern, err)
		}
		p2, base2, err := Parse(base1, p1.String())
		if err != nil {
			t.Fatalf("Reparse(%q, %q): %v", base1, p1, err)
		}
		if base1 != base2 || p1.String() != p2.String() {
			t.Errorf("Reparse of (%q, %q) changed to (%q, %q)", base1, p1, base2, p2)
		}
	}
}

func TestParseErrors(t *testing.T) {
	if _, _, err := Parse(upath.Null, "*"); !errors.Is(err, upath.ErrInvalidArgument) {
		t.Errorf("Null base: expected ErrInvalidArgument, got %v", err)
	}
	if _, _, err := Parse(upath.Root, "/abs"); !errors.Is(err, upath.ErrInvalidArgument) {
		t.Errorf("Leading separator: expected ErrInvalidArgument, got %v", err)
	}
	p, _, _ := Parse(upath.Root, "*")
	if _, err := p.Match(upath.Null); !errors.Is(err, upath.ErrInvalidArgument) {
		t.Errorf("Matching a null path: expected ErrInvalidArgument, got %v", err)
	}
}

func TestZeroPatternMatchesAll(t *testing.T) {
	var p Pattern
	if !p.MatchesAll() || p.String() != MatchAll {
		t.Errorf("Zero pattern should match all, got %q", p)
	}
	if !p.MatchName("anything") {
		t.Error("Zero pattern rejected a name")
	}
}

func TestCaseFolding(t *testing.T) {
	p, err := compile("*.TXT", true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !p.MatchName("readme.txt") {
		t.Error("Folded glob should ignore case")
	}
	exact, _ := compile("README", true)
	if !exact.MatchName("readme") {
		t.Error("Folded exact match should ignore case")
	}
	strict, _ := compile("*.TXT", false)
	if strict.MatchName("readme.txt") {
		t.Error("Unfolded glob should respect case")
	}
}

func TestMatchNameEdgeCases(t *testing.T) {
	testCases := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"?", "", false},
		{"*", "", true},
		{"*?", "", false},
		{".*.", ".", false},
		{".*.", "..", true},
		{"}*}", "}", false},
		{"\u00e9*\u00e9", "\u00e9", false},
	}
	for _, tc := range testCases {
		p, _, err := Parse(upath.Root, tc.pattern)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.pattern, err)
		}
		if got := p.MatchName(tc.name); got != tc.want {
			t.Errorf("Pattern %q on name %q returned %v, expected %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}

// anchoredExpr builds the reference expression for a filter one rune at a time.
func anchoredExpr(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.MustCompile(b.String())
}

func TestMatchAgreesWithAnchoredExpression(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	patternRunes := []rune("ab.}*?\u00e9\u00fc")
	nameRunes := []rune("ab.}\u00e9\u00fc")
	randomString := func(alphabet []rune, max int) string {
		n := rng.Intn(max + 1)
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(out)
	}

	for i := 0; i < 5000; i++ {
		pattern := randomString(patternRunes, 5)
		if pattern == "" {
			continue
		}
		p, err := compile(pattern, false)
		if err != nil {
			t.Fatalf("compile(%q): %v", pattern, err)
		}
		oracle := anchoredExpr(pattern)
		for j := 0; j < 8; j++ {
			name := randomString(nameRunes, 6)
			if got, want := p.MatchName(name), oracle.MatchString(name); got != want {
				t.Fatalf("Pattern %q on name %q returned %v, expected %v", pattern, name, got, want)
			}
		}
	}
}

func TestTrailingSeparatorMatchesAll(t *testing.T) {
	p, base, err := Parse(upath.Root, "docs/")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if base.String() != "/docs" {
		t.Errorf("Extended base = %q, expected /docs", base)
	}
	if !p.MatchesAll() || p.String() != MatchAll {
		t.Errorf("Pattern = %q, expected %q", p, MatchAll)
	}
	if !p.MatchName("readme.md") {
		t.Error("Trailing separator pattern rejected a name")
	}
}

func BenchmarkPatternMatch(b *testing.B) {
	p, _, _ := Parse(upath.Root, "x*z.txt")
	name := "xblablablaz.txt"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.MatchName(name)
	}
}
