package watch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TFMV/vfswatch/internal/upath"
	"go.uber.org/zap"
)

// Aggregator is a watcher that republishes the events of a set of child watchers,
// typically one per backing filesystem. Child events pass through the aggregator's
// own gating before reaching its subscribers.
type Aggregator struct {
	*Watcher

	mu       sync.Mutex
	children []aggregatedChild
}

type aggregatedChild struct {
	watcher *Watcher
	subs    []*Subscription
}

// NewAggregator creates an empty aggregator for path on fs. Closing it closes
// every child.
func NewAggregator(fs FileSystem, path upath.Path, opts Options) (*Aggregator, error) {
	w, err := NewWithOptions(fs, path, opts)
	if err != nil {
		return nil, err
	}
	a := &Aggregator{Watcher: w}
	w.addRelease(a, a.Clear)
	return a, nil
}

// Add subscribes the aggregator to child. Adding nil or a child that is already
// present fails with ErrInvalidArgument.
func (a *Aggregator) Add(child *Watcher) error {
	if child == nil {
		return fmt.Errorf("child watcher is nil: %w", ErrInvalidArgument)
	}
	if child == a.Watcher {
		return fmt.Errorf("aggregator cannot contain itself: %w", ErrInvalidArgument)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State() == StateDisposed {
		return fmt.Errorf("aggregator for %q is disposed: %w", a.Path(), ErrInvalidArgument)
	}
	for _, existing := range a.children {
		if existing.watcher == child {
			return fmt.Errorf("watcher for %q is already aggregated: %w", child.Path(), ErrInvalidArgument)
		}
	}

	// A child closed on its own leaves the set without being closed again.
	if !child.addRelease(a, func() error {
		a.detach(child)
		return nil
	}) {
		return fmt.Errorf("watcher for %q is disposed: %w", child.Path(), ErrInvalidArgument)
	}

	subs := []*Subscription{
		child.OnChanged(a.raiseChange),
		child.OnCreated(a.raiseChange),
		child.OnDeleted(a.raiseChange),
		child.OnRenamed(a.raiseRename),
		child.OnError(a.raiseError),
	}
	a.children = append(a.children, aggregatedChild{watcher: child, subs: subs})
	a.logger.Debug("child added", zap.String("child_fs", child.FileSystem().Name()))
	return nil
}

// Children returns the current child watchers in insertion order.
func (a *Aggregator) Children() []*Watcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	children := make([]*Watcher, len(a.children))
	for i, child := range a.children {
		children[i] = child.watcher
	}
	return children
}

// RemoveAllFrom unsubscribes and closes every child owned by fs.
func (a *Aggregator) RemoveAllFrom(fs FileSystem) error {
	a.mu.Lock()
	var removed []aggregatedChild
	kept := a.children[:0:0]
	for _, child := range a.children {
		if child.watcher.FileSystem() == fs {
			removed = append(removed, child)
		} else {
			kept = append(kept, child)
		}
	}
	a.children = kept
	a.mu.Unlock()

	return a.release(removed)
}

// Clear unsubscribes and closes every child.
func (a *Aggregator) Clear() error {
	a.mu.Lock()
	removed := a.children
	a.children = nil
	a.mu.Unlock()

	return a.release(removed)
}

// release disposes children that were already taken out of the set.
func (a *Aggregator) release(children []aggregatedChild) error {
	var errs []error
	for _, child := range children {
		for _, sub := range child.subs {
			sub.Cancel()
		}
		child.watcher.removeRelease(a)
		if err := child.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// detach drops child from the set without closing it.
func (a *Aggregator) detach(child *Watcher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.children {
		if existing.watcher != child {
			continue
		}
		for _, sub := range existing.subs {
			sub.Cancel()
		}
		a.children = append(a.children[:i:i], a.children[i+1:]...)
		return
	}
}
