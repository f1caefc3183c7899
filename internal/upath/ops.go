package upath

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Conversion
// --------------------------------------------------------------------------

// ToRelative strips the leading separator. Root maps to the empty path and
// relative paths are returned unchanged.
func (p Path) ToRelative() (Path, error) {
	if err := p.requireValid(); err != nil {
		return Null, err
	}
	if !p.IsAbsolute() {
		return p, nil
	}
	return Path{path: p.path[1:], valid: true}, nil
}

// ToAbsolute adds the leading separator. The empty path maps to root and absolute
// paths are returned unchanged.
func (p Path) ToAbsolute() (Path, error) {
	if err := p.requireValid(); err != nil {
		return Null, err
	}
	if p.IsAbsolute() {
		return p, nil
	}
	return Path{path: "/" + p.path, valid: true}, nil
}

// --------------------------------------------------------------------------
// Combination
// --------------------------------------------------------------------------

// Combine appends b to a. If b is absolute it is returned as is.
func Combine(a, b Path) (Path, error) {
	if err := a.requireValid(); err != nil {
		return Null, err
	}
	if err := b.requireValid(); err != nil {
		return Null, err
	}
	switch {
	case b.IsAbsolute():
		return b, nil
	case b.IsEmpty():
		return a, nil
	case a.IsEmpty():
		return b, nil
	case a.path == "/":
		return New("/" + b.path)
	}
	return New(a.path + "/" + b.path)
}

// Join combines p with each raw element in turn.
func (p Path) Join(elements ...string) (Path, error) {
	result := p
	for _, element := range elements {
		next, err := New(element)
		if err != nil {
			return Null, err
		}
		if result, err = Combine(result, next); err != nil {
			return Null, err
		}
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Decomposition
// --------------------------------------------------------------------------

// Dir returns the portion of p before the last separator. Root and single segment
// relative paths yield the empty path; "/name" yields root.
func (p Path) Dir() (Path, error) {
	if err := p.requireValid(); err != nil {
		return Null, err
	}
	if p.path == "/" {
		return Empty, nil
	}
	i := strings.LastIndexByte(p.path, Separator)
	switch {
	case i > 0:
		return Path{path: p.path[:i], valid: true}, nil
	case i == 0:
		return Root, nil
	}
	return Empty, nil
}

// FirstDirectory splits the first segment of p from the rest. The remaining path is
// relative and empty when p has a single segment.
func (p Path) FirstDirectory() (string, Path, error) {
	if err := p.requireValid(); err != nil {
		return "", Null, err
	}
	offset := 0
	if p.IsAbsolute() {
		offset = 1
	}
	i := strings.IndexByte(p.path[offset:], Separator)
	if i < 0 {
		return p.path[offset:], Empty, nil
	}
	i += offset
	return p.path[offset:i], Path{path: p.path[i+1:], valid: true}, nil
}

// Split returns the segments of p in order.
func (p Path) Split() ([]string, error) {
	if err := p.requireValid(); err != nil {
		return nil, err
	}
	if p.path == "" || p.path == "/" {
		return []string{}, nil
	}
	return strings.Split(strings.TrimPrefix(p.path, "/"), "/"), nil
}

// Name returns the last segment of p. Root and the empty path have no name.
func (p Path) Name() (string, error) {
	if err := p.requireValid(); err != nil {
		return "", err
	}
	return p.name(), nil
}

func (p Path) name() string {
	return p.path[strings.LastIndexByte(p.path, Separator)+1:]
}

// NameWithoutExtension returns the name of p without its extension.
func (p Path) NameWithoutExtension() (string, error) {
	if err := p.requireValid(); err != nil {
		return "", err
	}
	name := p.name()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], nil
	}
	return name, nil
}

// ExtensionWithDot returns the extension of p including the leading dot, or the
// empty string when the name has no extension or ends with a dot.
func (p Path) ExtensionWithDot() (string, error) {
	if err := p.requireValid(); err != nil {
		return "", err
	}
	name := p.name()
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", nil
	}
	return name[i:], nil
}

// ChangeExtension replaces the extension of p with ext. A missing leading dot is
// added; an empty ext removes the extension.
func (p Path) ChangeExtension(ext string) (Path, error) {
	if err := p.requireValid(); err != nil {
		return Null, err
	}
	name := p.name()
	if name == "" {
		return Null, fmt.Errorf("path %q has no name to change the extension of: %w", p.path, ErrInvalidArgument)
	}
	base := p.path
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base = base[:len(base)-len(name)+i]
	}
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return New(base + ext)
}

// --------------------------------------------------------------------------
// Containment
// --------------------------------------------------------------------------

// IsInDirectory reports whether p is dir itself or lies below dir. When recursive
// is false only direct children qualify. Mixing absolute and relative paths is an
// error.
func (p Path) IsInDirectory(dir Path, recursive bool) (bool, error) {
	if err := p.requireValid(); err != nil {
		return false, err
	}
	if err := dir.requireValid(); err != nil {
		return false, err
	}
	if p.IsAbsolute() != dir.IsAbsolute() {
		return false, fmt.Errorf("cannot mix absolute path %q and relative path %q: %w", p.path, dir.path, ErrInvalidArgument)
	}

	target, prefix := p.path, dir.path
	if !strings.HasPrefix(target, prefix) {
		return false, nil
	}
	if len(target) == len(prefix) {
		return true, nil
	}

	// Root and the empty path already end where the first child segment starts.
	next := len(prefix)
	switch {
	case prefix == "/", prefix == "":
	case target[next] == Separator:
		next++
	default:
		return false, nil
	}
	return recursive || strings.IndexByte(target[next:], Separator) < 0, nil
}
