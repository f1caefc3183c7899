package watch

import (
	"errors"
	"fmt"
	"sync"
)

// ErrListenerPanic wraps the value recovered from a panicking handler.
var ErrListenerPanic = errors.New("listener panicked")

// Handler receives one category of events. A returned error, like a panic, is
// reported through the Error events of the watcher's dispatcher.
type Handler[T any] func(event T) error

// listenerList is an ordered set of handlers for one event category.
type listenerList[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id uint64
	fn Handler[T]
}

func (l *listenerList[T]) add(fn Handler[T]) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.entries = append(l.entries, listenerEntry[T]{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listenerList[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listenerList[T]) clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func (l *listenerList[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// snapshot returns the handlers in registration order. The returned slice is never
// mutated by later add or remove calls.
func (l *listenerList[T]) snapshot() []Handler[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	handlers := make([]Handler[T], len(l.entries))
	for i, entry := range l.entries {
		handlers[i] = entry.fn
	}
	return handlers
}

// fire invokes every handler in order and joins their failures.
func (l *listenerList[T]) fire(event T) error {
	var errs []error
	for _, fn := range l.snapshot() {
		if err := invoke(fn, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// invoke calls fn, converting a panic into an error.
func invoke[T any](fn Handler[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
		}
	}()
	return fn(event)
}

// Subscription is returned by the On* methods of a watcher. Cancel removes the
// handler; it is safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel removes the handler from its watcher.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
