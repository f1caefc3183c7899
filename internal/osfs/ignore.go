package osfs

import (
	"fmt"
	"strings"

	"github.com/TFMV/vfswatch/internal/upath"
	"github.com/TFMV/vfswatch/internal/watch"
	"github.com/gobwas/glob"
)

// ignoreSet holds globs over root-relative slash paths. An entry is ignored when
// its own path or the path of any ancestor matches, so "build" hides the whole
// tree below it.
type ignoreSet []glob.Glob

func compileIgnore(patterns []string) (ignoreSet, error) {
	set := make(ignoreSet, 0, len(patterns))
	for _, p := range patterns {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %v: %w", p, err, watch.ErrInvalidArgument)
		}
		set = append(set, g)
	}
	return set, nil
}

// match reports whether path, or one of its ancestors, is ignored.
func (s ignoreSet) match(path upath.Path) bool {
	if len(s) == 0 || path == upath.Root {
		return false
	}
	rel := strings.TrimPrefix(path.String(), "/")
	for end := 0; end <= len(rel); end++ {
		if end < len(rel) && rel[end] != '/' {
			continue
		}
		prefix := rel[:end]
		for _, g := range s {
			if g.Match(prefix) {
				return true
			}
		}
	}
	return false
}
