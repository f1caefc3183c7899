// Package watch implements filesystem change notification for virtual filesystems:
// watchers that gate raw events by scope and filter, the dispatcher that delivers
// them off the backend's goroutine, and the Aggregator and Wrapper composites.
package watch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TFMV/vfswatch/internal/filter"
	"github.com/TFMV/vfswatch/internal/upath"
	"go.uber.org/zap"
)

// State is the lifecycle state of a watcher.
type State int32

const (
	StateDisabled State = iota // Initial state, no events flow
	StateEnabled               // Events are gated and delivered
	StateDisposed              // Terminal, all registrations released
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// PathConverter maps a path from a child namespace into the watcher's namespace
// before the event is gated and re-raised.
type PathConverter func(path upath.Path) (upath.Path, error)

// EventGate is an additional predicate consulted after scope and filter checks.
type EventGate func(event ChangeEvent) bool

// Options configures a watcher.
type Options struct {
	Filter        string        // Filename filter, "*" when empty
	Recursive     bool          // Include subdirectories of the watched path
	NotifyFilter  NotifyFilters // Categories of Changed events wanted, DefaultNotifyFilters when zero
	Enabled       bool          // Start in the enabled state
	PathConverter PathConverter // Applied to every incoming path, identity when nil
	EventGate     EventGate     // Extra gating, none when nil
	Logger        *zap.Logger
}

// Watcher surfaces the change events of one filesystem below one absolute path.
type Watcher struct {
	fs      FileSystem
	path    upath.Path
	convert PathConverter
	gate    EventGate
	logger  *zap.Logger

	mu        sync.RWMutex
	state     State
	recursive bool
	filter    string
	pattern   filter.Pattern
	notify    NotifyFilters

	changed listenerList[ChangeEvent]
	created listenerList[ChangeEvent]
	deleted listenerList[ChangeEvent]
	renamed listenerList[RenameEvent]
	errored listenerList[ErrorEvent]

	releaseMu sync.Mutex
	releases  []releaseHook
	released  bool // hooks already drained by Close
}

type releaseHook struct {
	owner any
	fn    func() error
}

// New creates a disabled watcher for path on fs with default options.
func New(fs FileSystem, path upath.Path) (*Watcher, error) {
	return NewWithOptions(fs, path, Options{})
}

// NewWithOptions creates a watcher for path on fs.
func NewWithOptions(fs FileSystem, path upath.Path, opts Options) (*Watcher, error) {
	if fs == nil {
		return nil, fmt.Errorf("watcher filesystem is nil: %w", ErrInvalidArgument)
	}
	if err := path.RequireAbsolute(); err != nil {
		return nil, fmt.Errorf("watcher path: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notify := opts.NotifyFilter
	if notify == 0 {
		notify = DefaultNotifyFilters
	}

	w := &Watcher{
		fs:        fs,
		path:      path,
		convert:   opts.PathConverter,
		gate:      opts.EventGate,
		logger:    logger.With(zap.String("fs", fs.Name()), zap.Stringer("path", path)),
		recursive: opts.Recursive,
		notify:    notify,
	}
	if err := w.SetFilter(opts.Filter); err != nil {
		return nil, err
	}
	if opts.Enabled {
		w.state = StateEnabled
	}
	return w, nil
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// FileSystem returns the backend this watcher belongs to.
func (w *Watcher) FileSystem() FileSystem {
	return w.fs
}

// Path returns the watched absolute path.
func (w *Watcher) Path() upath.Path {
	return w.path
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Enabled reports whether events are currently delivered.
func (w *Watcher) Enabled() bool {
	return w.State() == StateEnabled
}

// SetEnabled enables or disables delivery. It has no effect once disposed.
func (w *Watcher) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateDisposed {
		return
	}
	if enabled {
		w.state = StateEnabled
	} else {
		w.state = StateDisabled
	}
}

// Enable is shorthand for SetEnabled(true).
func (w *Watcher) Enable() { w.SetEnabled(true) }

// Disable is shorthand for SetEnabled(false).
func (w *Watcher) Disable() { w.SetEnabled(false) }

// Recursive reports whether subdirectories are included.
func (w *Watcher) Recursive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.recursive
}

// SetRecursive sets whether subdirectories are included.
func (w *Watcher) SetRecursive(recursive bool) {
	w.mu.Lock()
	w.recursive = recursive
	w.mu.Unlock()
}

// NotifyFilter returns the categories of Changed events the watcher wants.
func (w *Watcher) NotifyFilter() NotifyFilters {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.notify
}

// SetNotifyFilter replaces the categories of Changed events the watcher wants.
func (w *Watcher) SetNotifyFilter(notify NotifyFilters) {
	w.mu.Lock()
	w.notify = notify
	w.mu.Unlock()
}

// Filter returns the filename filter.
func (w *Watcher) Filter() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filter
}

// SetFilter replaces the filename filter. The pattern is recompiled only when the
// filter actually changes; an empty filter means "*".
//
// A directory qualifier in the filter does not narrow the watched scope, only the
// trailing name is matched.
func (w *Watcher) SetFilter(value string) error {
	if value == "" {
		value = filter.MatchAll
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if value == w.filter {
		return nil
	}
	pattern, _, err := filter.Parse(w.path, value)
	if err != nil {
		return err
	}
	w.filter = value
	w.pattern = pattern
	return nil
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

// OnChanged registers fn for Changed events.
func (w *Watcher) OnChanged(fn Handler[ChangeEvent]) *Subscription {
	return subscribe(&w.changed, fn)
}

// OnCreated registers fn for Created events.
func (w *Watcher) OnCreated(fn Handler[ChangeEvent]) *Subscription {
	return subscribe(&w.created, fn)
}

// OnDeleted registers fn for Deleted events.
func (w *Watcher) OnDeleted(fn Handler[ChangeEvent]) *Subscription {
	return subscribe(&w.deleted, fn)
}

// OnRenamed registers fn for Renamed events.
func (w *Watcher) OnRenamed(fn Handler[RenameEvent]) *Subscription {
	return subscribe(&w.renamed, fn)
}

// OnError registers fn for Error events. Failures of fn are logged and dropped.
func (w *Watcher) OnError(fn Handler[ErrorEvent]) *Subscription {
	return subscribe(&w.errored, fn)
}

func subscribe[T any](list *listenerList[T], fn Handler[T]) *Subscription {
	if fn == nil {
		return newSubscription(nil)
	}
	id := list.add(fn)
	return newSubscription(func() { list.remove(id) })
}

// --------------------------------------------------------------------------
// Gating and delivery
// --------------------------------------------------------------------------

// shouldRaise applies the enabled, filter and scope checks to ev.
func (w *Watcher) shouldRaise(ev ChangeEvent) bool {
	w.mu.RLock()
	state, pattern, recursive := w.state, w.pattern, w.recursive
	w.mu.RUnlock()

	if state != StateEnabled {
		return false
	}
	if !pattern.MatchName(ev.Name) {
		return false
	}
	inScope, err := ev.Path.IsInDirectory(w.path, recursive)
	if err != nil || !inScope {
		return false
	}
	return w.gate == nil || w.gate(ev)
}

// convertEvent moves ev into this watcher's namespace when a converter is set.
func (w *Watcher) convertEvent(ev ChangeEvent) (ChangeEvent, error) {
	if w.convert == nil {
		return ev, nil
	}
	path, err := w.convert(ev.Path)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("convert %q: %w", ev.Path, err)
	}
	if err := path.RequireAbsolute(); err != nil {
		return ChangeEvent{}, fmt.Errorf("convert %q: %w", ev.Path, err)
	}
	return ev.withPath(w.fs, path), nil
}

// raiseChange delivers a Created, Deleted or Changed event to the subscribers of
// the matching category if it passes the gate.
func (w *Watcher) raiseChange(ev ChangeEvent) error {
	ev, err := w.convertEvent(ev)
	if err != nil {
		return err
	}
	if !w.shouldRaise(ev) {
		return nil
	}
	switch ev.Type {
	case Created:
		return w.created.fire(ev)
	case Deleted:
		return w.deleted.fire(ev)
	case Changed:
		return w.changed.fire(ev)
	}
	return fmt.Errorf("change type %s needs a dedicated event: %w", ev.Type, ErrInvalidArgument)
}

// raiseRename delivers a Renamed event. Gating uses the new path.
func (w *Watcher) raiseRename(ev RenameEvent) error {
	current, err := w.convertEvent(ev.ChangeEvent)
	if err != nil {
		return err
	}
	old := ev.OldPath
	if w.convert != nil {
		if old, err = w.convert(ev.OldPath); err != nil {
			return fmt.Errorf("convert %q: %w", ev.OldPath, err)
		}
	}
	if !w.shouldRaise(current) {
		return nil
	}
	oldName, _ := old.Name()
	return w.renamed.fire(RenameEvent{ChangeEvent: current, OldPath: old, OldName: oldName})
}

// raiseError delivers ev if the watcher is enabled. Scope and filter do not apply.
func (w *Watcher) raiseError(ev ErrorEvent) error {
	if !w.Enabled() {
		return nil
	}
	return w.errored.fire(ev)
}

// --------------------------------------------------------------------------
// Disposal
// --------------------------------------------------------------------------

// addRelease registers fn to run on Close, replacing any hook of the same owner.
// It reports false if the watcher is already disposed.
func (w *Watcher) addRelease(owner any, fn func() error) bool {
	w.releaseMu.Lock()
	defer w.releaseMu.Unlock()
	if w.released {
		return false
	}
	for i := range w.releases {
		if w.releases[i].owner == owner {
			w.releases[i].fn = fn
			return true
		}
	}
	w.releases = append(w.releases, releaseHook{owner: owner, fn: fn})
	return true
}

// removeRelease drops the hook registered by owner.
func (w *Watcher) removeRelease(owner any) {
	w.releaseMu.Lock()
	defer w.releaseMu.Unlock()
	for i := range w.releases {
		if w.releases[i].owner == owner {
			w.releases = append(w.releases[:i:i], w.releases[i+1:]...)
			return
		}
	}
}

// Close disposes the watcher: it detaches from its dispatcher or parent, releases
// owned children and drops every subscription. Calling Close again is a no-op.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.state == StateDisposed {
		w.mu.Unlock()
		return nil
	}
	w.state = StateDisposed
	w.mu.Unlock()

	w.releaseMu.Lock()
	releases := w.releases
	w.releases = nil
	w.released = true
	w.releaseMu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := releases[i].fn(); err != nil {
			errs = append(errs, err)
		}
	}

	w.changed.clear()
	w.created.clear()
	w.deleted.clear()
	w.renamed.clear()
	w.errored.clear()

	w.logger.Debug("watcher disposed", zap.Int("releases", len(releases)))
	return errors.Join(errs...)
}
