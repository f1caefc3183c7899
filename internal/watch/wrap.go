package watch

import (
	"fmt"

	"github.com/TFMV/vfswatch/internal/upath"
)

// Wrapper presents the events of one child watcher under another namespace, for
// example a backend mounted below a different path. Incoming paths go through
// Options.PathConverter before the wrapper's own gating.
type Wrapper struct {
	*Watcher

	child *Watcher
	subs  []*Subscription
}

// NewWrapper subscribes a new watcher for path on fs to child. The wrapper owns the
// child: closing the wrapper unsubscribes and closes it.
func NewWrapper(fs FileSystem, path upath.Path, child *Watcher, opts Options) (*Wrapper, error) {
	if child == nil {
		return nil, fmt.Errorf("wrapped watcher is nil: %w", ErrInvalidArgument)
	}
	w, err := NewWithOptions(fs, path, opts)
	if err != nil {
		return nil, err
	}

	wr := &Wrapper{Watcher: w, child: child}
	wr.subs = []*Subscription{
		child.OnChanged(w.raiseChange),
		child.OnCreated(w.raiseChange),
		child.OnDeleted(w.raiseChange),
		child.OnRenamed(w.raiseRename),
		child.OnError(w.raiseError),
	}
	w.addRelease(wr, func() error {
		for _, sub := range wr.subs {
			sub.Cancel()
		}
		return child.Close()
	})
	return wr, nil
}

// Child returns the wrapped watcher.
func (wr *Wrapper) Child() *Watcher {
	return wr.child
}

// MountConverter returns a PathConverter that re-roots absolute backend paths below
// mount, so "/x" becomes mount + "/x".
func MountConverter(mount upath.Path) PathConverter {
	return func(path upath.Path) (upath.Path, error) {
		if err := mount.RequireAbsolute(); err != nil {
			return upath.Null, err
		}
		rel, err := path.ToRelative()
		if err != nil {
			return upath.Null, err
		}
		return upath.Combine(mount, rel)
	}
}
