package watch

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/TFMV/vfswatch/internal/upath"
	"go.uber.org/zap"
	"gopkg.in/tomb.v2"
)

// DefaultQueueCapacity is the number of pending fan-outs a dispatcher buffers before
// raisers block.
const DefaultQueueCapacity = 64

// ErrClosed is returned when raising events on or adding watchers to a dispatcher
// that has shut down.
var ErrClosed = errors.New("dispatcher is closed")

// DispatcherOptions configures a dispatcher.
type DispatcherOptions struct {
	QueueCapacity int // Pending fan-outs before Raise blocks, DefaultQueueCapacity when <= 0
	Logger        *zap.Logger
}

// DispatcherStats holds delivery counters.
type DispatcherStats struct {
	Raised      int64 // Fan-outs accepted into the queue
	Invocations int64 // Watcher deliveries executed
	Failures    int64 // Deliveries that failed and produced an Error event
	Pending     int   // Fan-outs waiting in the queue
}

// Dispatcher decouples the goroutine that detects a change from the one that runs
// watcher handlers. A single worker executes fan-outs strictly in the order they
// were raised; every watcher registered at raise time sees an event before any
// watcher sees the next one.
type Dispatcher struct {
	mu       sync.Mutex
	watchers []*Watcher

	queue     chan fanout
	backlog   []fanout // error fan-outs produced by the worker itself
	tomb      tomb.Tomb
	closeOnce sync.Once
	closeErr  error
	logger    *zap.Logger

	raised      atomic.Int64
	invocations atomic.Int64
	failures    atomic.Int64
}

// fanout is one queued delivery of an event to a snapshot of watchers.
type fanout struct {
	kind     string
	watchers []*Watcher
	deliver  func(w *Watcher) error
	isError  bool
}

// NewDispatcher creates a dispatcher and starts its worker.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		queue:  make(chan fanout, capacity),
		logger: logger,
	}
	d.tomb.Go(d.run)
	return d
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Add registers w. Closing w later removes it again. Adding a registered watcher
// is a no-op.
func (d *Dispatcher) Add(w *Watcher) error {
	if w == nil {
		return fmt.Errorf("watcher is nil: %w", ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dying() {
		return ErrClosed
	}
	if slices.Contains(d.watchers, w) {
		return nil
	}
	if !w.addRelease(d, func() error {
		d.Remove(w)
		return nil
	}) {
		return fmt.Errorf("watcher for %q is disposed: %w", w.Path(), ErrInvalidArgument)
	}
	d.watchers = append(d.watchers, w)
	return nil
}

// Remove unregisters w. Fan-outs already queued still reach it.
func (d *Dispatcher) Remove(w *Watcher) {
	if w == nil {
		return
	}
	d.mu.Lock()
	i := slices.Index(d.watchers, w)
	if i >= 0 {
		d.watchers = slices.Delete(d.watchers, i, i+1)
	}
	d.mu.Unlock()
	if i >= 0 {
		w.removeRelease(d)
	}
}

// Len returns the number of registered watchers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers)
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Raised:      d.raised.Load(),
		Invocations: d.invocations.Load(),
		Failures:    d.failures.Load(),
		Pending:     len(d.queue),
	}
}

// --------------------------------------------------------------------------
// Raising
// --------------------------------------------------------------------------

// RaiseCreated queues a Created event for path on fs.
func (d *Dispatcher) RaiseCreated(fs FileSystem, path upath.Path) error {
	return d.raiseKind(fs, Created, path)
}

// RaiseDeleted queues a Deleted event for path on fs.
func (d *Dispatcher) RaiseDeleted(fs FileSystem, path upath.Path) error {
	return d.raiseKind(fs, Deleted, path)
}

// RaiseChanged queues a Changed event for path on fs.
func (d *Dispatcher) RaiseChanged(fs FileSystem, path upath.Path) error {
	return d.raiseKind(fs, Changed, path)
}

// RaiseChangedFor queues a Changed event for path that only reaches watchers whose
// notify filter shares a category with notify. Filters are read at delivery, so
// SetNotifyFilter applies to events already queued.
func (d *Dispatcher) RaiseChangedFor(fs FileSystem, path upath.Path, notify NotifyFilters) error {
	ev, err := NewChangeEvent(fs, Changed, path)
	if err != nil {
		return err
	}
	return d.enqueue(Changed.String(), func(w *Watcher) error {
		if w.NotifyFilter()&notify == 0 {
			return nil
		}
		return w.raiseChange(ev)
	}, false)
}

// RaiseRenamed queues a Renamed event for an entry moved from oldPath to path.
func (d *Dispatcher) RaiseRenamed(fs FileSystem, path, oldPath upath.Path) error {
	ev, err := NewRenameEvent(fs, path, oldPath)
	if err != nil {
		return err
	}
	return d.RaiseRename(ev)
}

// RaiseError queues an Error event on behalf of fs.
func (d *Dispatcher) RaiseError(fs FileSystem, err error) error {
	if err == nil {
		return nil
	}
	ev := ErrorEvent{FileSystem: fs, Err: err}
	return d.enqueue("error", func(w *Watcher) error { return w.raiseError(ev) }, true)
}

func (d *Dispatcher) raiseKind(fs FileSystem, typ ChangeType, path upath.Path) error {
	ev, err := NewChangeEvent(fs, typ, path)
	if err != nil {
		return err
	}
	return d.RaiseChange(ev)
}

// RaiseChange queues a prebuilt Created, Deleted or Changed event.
func (d *Dispatcher) RaiseChange(ev ChangeEvent) error {
	if ev.Type == Renamed || !ev.Type.single() {
		return fmt.Errorf("cannot raise %s as a change event: %w", ev.Type, ErrInvalidArgument)
	}
	if err := ev.Path.RequireAbsolute(); err != nil {
		return err
	}
	return d.enqueue(ev.Type.String(), func(w *Watcher) error { return w.raiseChange(ev) }, false)
}

// RaiseRename queues a prebuilt Renamed event.
func (d *Dispatcher) RaiseRename(ev RenameEvent) error {
	if err := ev.Path.RequireAbsolute(); err != nil {
		return err
	}
	if err := ev.OldPath.RequireAbsolute(); err != nil {
		return err
	}
	return d.enqueue(Renamed.String(), func(w *Watcher) error { return w.raiseRename(ev) }, false)
}

// enqueue snapshots the registered watchers and queues one fan-out. It blocks while
// the queue is full and returns ErrClosed once shutdown has begun.
func (d *Dispatcher) enqueue(kind string, deliver func(w *Watcher) error, isError bool) error {
	d.mu.Lock()
	if d.dying() {
		d.mu.Unlock()
		return ErrClosed
	}
	if len(d.watchers) == 0 {
		d.mu.Unlock()
		return nil
	}
	snapshot := slices.Clone(d.watchers)
	d.mu.Unlock()

	task := fanout{kind: kind, watchers: snapshot, deliver: deliver, isError: isError}
	select {
	case d.queue <- task:
		d.raised.Add(1)
		return nil
	case <-d.tomb.Dying():
		return ErrClosed
	}
}

// --------------------------------------------------------------------------
// Worker
// --------------------------------------------------------------------------

func (d *Dispatcher) dying() bool {
	select {
	case <-d.tomb.Dying():
		return true
	default:
		return false
	}
}

// run is the single worker. Error fan-outs produced while executing a task run
// before the next queued task is taken.
func (d *Dispatcher) run() error {
	for {
		select {
		case <-d.tomb.Dying():
			return nil
		case task := <-d.queue:
			d.execute(task)
			for len(d.backlog) > 0 && !d.dying() {
				next := d.backlog[0]
				d.backlog = d.backlog[1:]
				d.execute(next)
			}
			d.backlog = nil
		}
	}
}

// execute delivers task to every watcher of its snapshot.
func (d *Dispatcher) execute(task fanout) {
	for _, w := range task.watchers {
		d.invocations.Add(1)
		err := safeDeliver(task.deliver, w)
		if err == nil {
			continue
		}
		if task.isError {
			d.logger.Warn("error handler failed",
				zap.String("path", w.Path().String()),
				zap.Error(err),
			)
			continue
		}

		d.failures.Add(1)
		d.logger.Debug("listener failed",
			zap.String("event", task.kind),
			zap.String("path", w.Path().String()),
			zap.Error(err),
		)
		d.backlog = append(d.backlog, d.errorFanout(w.FileSystem(), err))
	}
}

// errorFanout builds the Error delivery for a failed listener invocation.
func (d *Dispatcher) errorFanout(fs FileSystem, err error) fanout {
	d.mu.Lock()
	snapshot := slices.Clone(d.watchers)
	d.mu.Unlock()

	ev := ErrorEvent{FileSystem: fs, Err: err}
	return fanout{
		kind:     "error",
		watchers: snapshot,
		deliver:  func(w *Watcher) error { return w.raiseError(ev) },
		isError:  true,
	}
}

// safeDeliver runs deliver, converting a panic in gates or converters into an error.
func safeDeliver(deliver func(w *Watcher) error, w *Watcher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
		}
	}()
	return deliver(w)
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// Close stops accepting events, discards queued fan-outs, waits for the worker to
// finish its current delivery and disposes every watcher still registered. It is
// safe to call more than once. Calling it from a handler blocks forever; close
// from another goroutine instead.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.tomb.Kill(nil)
		d.mu.Unlock()

		waitErr := d.tomb.Wait()

		discarded := 0
	drain:
		for {
			select {
			case <-d.queue:
				discarded++
			default:
				break drain
			}
		}

		d.mu.Lock()
		watchers := d.watchers
		d.watchers = nil
		d.mu.Unlock()

		errs := []error{waitErr}
		for _, w := range watchers {
			w.removeRelease(d)
			errs = append(errs, w.Close())
		}
		d.closeErr = errors.Join(errs...)

		d.logger.Debug("dispatcher closed",
			zap.Int("discarded", discarded),
			zap.Int("watchers", len(watchers)),
		)
	})
	return d.closeErr
}
