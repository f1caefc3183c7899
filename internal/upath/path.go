// Package upath provides the normalized, slash-separated path value used by every
// virtual filesystem and watcher in vfswatch.
package upath

import (
	"errors"
	"fmt"
	"strings"
)

// Separator is the only directory separator a Path ever contains.
const Separator = '/'

// ErrInvalidArgument is returned for null operands, relative paths where an absolute
// path is required and malformed input.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	// Root is the absolute root path "/".
	Root = Path{path: "/", valid: true}

	// Empty is the empty relative path "".
	Empty = Path{valid: true}

	// Null is the path with no value at all. It is the zero value of Path.
	Null = Path{}
)

// Path is an immutable, normalized path. The zero value is the null path, which is
// distinct from the empty relative path.
type Path struct {
	path  string
	valid bool
}

// New validates and normalizes s into a Path.
//
// Backslashes are converted to slashes, repeated separators collapse, trailing
// separators are dropped, "." segments vanish and ".." removes the previous segment.
// Going above the root of an absolute path is an error.
func New(s string) (Path, error) {
	normalized, err := normalize(s)
	if err != nil {
		return Null, err
	}
	return Path{path: normalized, valid: true}, nil
}

// MustNew is like New but panics on error. It is meant for constant paths.
func MustNew(s string) Path {
	p, err := New(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the normalized path. The null path prints as the empty string.
func (p Path) String() string {
	return p.path
}

// IsNull reports whether p carries no value.
func (p Path) IsNull() bool {
	return !p.valid
}

// IsEmpty reports whether p is the empty relative path.
func (p Path) IsEmpty() bool {
	return p.valid && p.path == ""
}

// IsAbsolute reports whether p starts with the separator.
func (p Path) IsAbsolute() bool {
	return p.valid && len(p.path) > 0 && p.path[0] == Separator
}

// IsRelative reports whether p is a non-null path that is not absolute.
func (p Path) IsRelative() bool {
	return p.valid && !p.IsAbsolute()
}

// Compare orders paths by their normalized string. The null path sorts first.
func (p Path) Compare(other Path) int {
	switch {
	case !p.valid && !other.valid:
		return 0
	case !p.valid:
		return -1
	case !other.valid:
		return 1
	}
	return strings.Compare(p.path, other.path)
}

// RequireAbsolute returns an error unless p is a non-null absolute path.
func (p Path) RequireAbsolute() error {
	if err := p.requireValid(); err != nil {
		return err
	}
	if !p.IsAbsolute() {
		return fmt.Errorf("path %q must be absolute: %w", p.path, ErrInvalidArgument)
	}
	return nil
}

func (p Path) requireValid() error {
	if !p.valid {
		return fmt.Errorf("path is null: %w", ErrInvalidArgument)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := New(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// normalize converts raw into canonical form.
func normalize(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	s := strings.ReplaceAll(raw, "\\", "/")
	if !dirty(s) {
		return s, nil
	}

	absolute := s[0] == Separator
	segments := make([]string, 0, strings.Count(s, "/")+1)
	for _, segment := range strings.Split(s, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if n := len(segments); n > 0 && segments[n-1] != ".." {
				segments = segments[:n-1]
				continue
			}
			if absolute {
				return "", fmt.Errorf("path %q goes above the root: %w", raw, ErrInvalidArgument)
			}
			segments = append(segments, segment)
		default:
			segments = append(segments, segment)
		}
	}

	joined := strings.Join(segments, "/")
	if absolute {
		return "/" + joined, nil
	}
	return joined, nil
}

// dirty reports whether s needs the slow normalization path: repeated or trailing
// separators, or "." and ".." segments.
func dirty(s string) bool {
	if len(s) > 1 && s[len(s)-1] == Separator {
		return true
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != Separator {
			continue
		}
		segment := s[start:i]
		if (segment == "" && start > 0) || segment == "." || segment == ".." {
			return true
		}
		start = i + 1
	}
	return false
}
