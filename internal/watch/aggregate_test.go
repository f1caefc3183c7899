package watch

import (
	"errors"
	"testing"

	"github.com/TFMV/vfswatch/internal/upath"
)

func newAggregator(t *testing.T, opts Options) *Aggregator {
	t.Helper()
	a, err := NewAggregator(&testFS{name: "aggregate"}, upath.Root, opts)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestAggregatorRepublishesChildEvents(t *testing.T) {
	fsA := &testFS{name: "a"}
	fsB := &testFS{name: "b"}
	a := newAggregator(t, Options{Recursive: true, Enabled: true, Filter: "*.txt"})
	defer a.Close()

	childA := newEnabled(t, fsA, "/")
	childB := newEnabled(t, fsB, "/")
	if err := a.Add(childA); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Add(childB); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var sources []FileSystem
	r := newRecorder()
	r.attach(a.Watcher)
	a.OnCreated(func(ev ChangeEvent) error {
		sources = append(sources, ev.FileSystem)
		return nil
	})

	_ = childA.raiseChange(mustChange(t, fsA, Created, "/one.txt"))
	_ = childB.raiseChange(mustChange(t, fsB, Created, "/dir/two.txt"))
	_ = childB.raiseChange(mustChange(t, fsB, Created, "/skip.bin"))
	rename, _ := NewRenameEvent(fsA, upath.MustNew("/new.txt"), upath.MustNew("/old.txt"))
	_ = childA.raiseRename(rename)
	_ = childB.raiseError(ErrorEvent{FileSystem: fsB, Err: errors.New("lost")})

	events, errs := r.snapshot()
	want := []string{"created:/one.txt", "created:/dir/two.txt", "renamed:/old.txt->/new.txt"}
	if len(events) != len(want) {
		t.Fatalf("Events = %v, expected %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("Event %d = %q, expected %q", i, events[i], want[i])
		}
	}
	if len(errs) != 1 {
		t.Errorf("Errors = %v, expected one", errs)
	}
	if len(sources) != 2 || sources[0] != fsA || sources[1] != fsB {
		t.Errorf("Events should keep their originating filesystem, got %v", sources)
	}
}

func TestAggregatorAddValidation(t *testing.T) {
	fs := &testFS{name: "a"}
	a := newAggregator(t, Options{})
	defer a.Close()

	child := newEnabled(t, fs, "/")
	if err := a.Add(child); err != nil {
		t.Fatalf("Add: %v", err)
	}

	testCases := []struct {
		name  string
		child *Watcher
	}{
		{"nil", nil},
		{"self", a.Watcher},
		{"duplicate", child},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.Add(tc.child); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}
	if n := len(a.Children()); n != 1 {
		t.Errorf("Children = %d, expected 1", n)
	}

	disposed := newEnabled(t, fs, "/")
	_ = disposed.Close()
	if err := a.Add(disposed); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Add(disposed): expected ErrInvalidArgument, got %v", err)
	}
}

func TestAggregatorRemoveAllFrom(t *testing.T) {
	fsA := &testFS{name: "a"}
	fsB := &testFS{name: "b"}
	a := newAggregator(t, Options{Recursive: true, Enabled: true})
	defer a.Close()

	a1 := newEnabled(t, fsA, "/")
	a2 := newEnabled(t, fsA, "/sub")
	b1 := newEnabled(t, fsB, "/")
	for _, child := range []*Watcher{a1, b1, a2} {
		if err := a.Add(child); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := a.RemoveAllFrom(fsA); err != nil {
		t.Fatalf("RemoveAllFrom: %v", err)
	}
	if a1.State() != StateDisposed || a2.State() != StateDisposed {
		t.Error("Children of the removed filesystem should be disposed")
	}
	if b1.State() != StateEnabled {
		t.Errorf("Unrelated child state = %s", b1.State())
	}
	children := a.Children()
	if len(children) != 1 || children[0] != b1 {
		t.Errorf("Children = %v, expected only b1", children)
	}

	r := newRecorder()
	r.attach(a.Watcher)
	_ = b1.raiseChange(mustChange(t, fsB, Changed, "/still"))
	if events, _ := r.snapshot(); len(events) != 1 {
		t.Errorf("Remaining child events = %v", events)
	}

	if err := a.RemoveAllFrom(&testFS{name: "unknown"}); err != nil {
		t.Errorf("RemoveAllFrom unknown filesystem: %v", err)
	}
}

func TestAggregatorChildClosedOnItsOwn(t *testing.T) {
	fs := &testFS{name: "a"}
	a := newAggregator(t, Options{Enabled: true})
	defer a.Close()

	child := newEnabled(t, fs, "/")
	_ = a.Add(child)
	_ = child.Close()

	if n := len(a.Children()); n != 0 {
		t.Errorf("Children = %d after child close, expected 0", n)
	}
	// The same watcher may not come back once disposed, but a new one can.
	if err := a.Add(newEnabled(t, fs, "/")); err != nil {
		t.Errorf("Add after detach: %v", err)
	}
}

func TestAggregatorCloseDisposesTree(t *testing.T) {
	fs := &testFS{name: "a"}
	outer := newAggregator(t, Options{Enabled: true})
	inner := newAggregator(t, Options{Enabled: true})
	leaf := newEnabled(t, fs, "/")

	if err := inner.Add(leaf); err != nil {
		t.Fatalf("inner.Add: %v", err)
	}
	if err := outer.Add(inner.Watcher); err != nil {
		t.Fatalf("outer.Add: %v", err)
	}

	if err := outer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := outer.Close(); err != nil {
		t.Fatalf("Second Close: %v", err)
	}
	for name, w := range map[string]*Watcher{"outer": outer.Watcher, "inner": inner.Watcher, "leaf": leaf} {
		if w.State() != StateDisposed {
			t.Errorf("%s state = %s, expected disposed", name, w.State())
		}
	}
	if err := outer.Add(newEnabled(t, fs, "/")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Add to disposed aggregator: expected ErrInvalidArgument, got %v", err)
	}
}

func TestAggregatorWithDispatcher(t *testing.T) {
	fs := &testFS{name: "a"}
	d := NewDispatcher(DispatcherOptions{})
	defer d.Close()

	a := newAggregator(t, Options{Recursive: true, Enabled: true})
	defer a.Close()
	child := newEnabled(t, fs, "/")
	_ = d.Add(child)
	_ = a.Add(child)

	r := newRecorder()
	r.attach(a.Watcher)
	_ = d.RaiseDeleted(fs, upath.MustNew("/gone"))
	r.wait(t, 1)

	// Closing the aggregator disposes the child, which leaves the dispatcher.
	_ = a.Close()
	if d.Len() != 0 {
		t.Errorf("Dispatcher still holds %d watchers", d.Len())
	}
}
