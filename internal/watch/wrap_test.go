package watch

import (
	"errors"
	"testing"

	"github.com/TFMV/vfswatch/internal/upath"
)

func TestMountConverter(t *testing.T) {
	testCases := []struct {
		mount string
		path  string
		want  string
	}{
		{"/mnt", "/", "/mnt"},
		{"/mnt", "/a/b", "/mnt/a/b"},
		{"/", "/a", "/a"},
		{"/x/y", "/z.txt", "/x/y/z.txt"},
	}
	for _, tc := range testCases {
		got, err := MountConverter(upath.MustNew(tc.mount))(upath.MustNew(tc.path))
		if err != nil {
			t.Errorf("Convert %q under %q: %v", tc.path, tc.mount, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("Convert %q under %q = %q, expected %q", tc.path, tc.mount, got, tc.want)
		}
	}

	if _, err := MountConverter(upath.MustNew("rel"))(upath.Root); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Relative mount: expected ErrInvalidArgument, got %v", err)
	}
}

func TestWrapperRemapsChildEvents(t *testing.T) {
	backend := &testFS{name: "backend"}
	mounted := &testFS{name: "mounted"}

	child := newEnabled(t, backend, "/")
	wr, err := NewWrapper(mounted, upath.MustNew("/data"), child, Options{
		Recursive:     true,
		Enabled:       true,
		PathConverter: MountConverter(upath.MustNew("/data")),
	})
	if err != nil {
		t.Fatalf("NewWrapper: %v", err)
	}
	defer wr.Close()
	if wr.Child() != child {
		t.Error("Child() should return the wrapped watcher")
	}

	var got []ChangeEvent
	wr.OnChanged(func(ev ChangeEvent) error {
		got = append(got, ev)
		return nil
	})
	var renamed RenameEvent
	wr.OnRenamed(func(ev RenameEvent) error {
		renamed = ev
		return nil
	})

	_ = child.raiseChange(mustChange(t, backend, Changed, "/logs/app.log"))
	rename, _ := NewRenameEvent(backend, upath.MustNew("/b"), upath.MustNew("/a"))
	_ = child.raiseRename(rename)

	if len(got) != 1 {
		t.Fatalf("Wrapper delivered %d changes, expected 1", len(got))
	}
	if got[0].Path.String() != "/data/logs/app.log" || got[0].Name != "app.log" || got[0].FileSystem != mounted {
		t.Errorf("Unexpected remapped event %+v", got[0])
	}
	if renamed.Path.String() != "/data/b" || renamed.OldPath.String() != "/data/a" || renamed.OldName != "a" {
		t.Errorf("Unexpected remapped rename %+v", renamed)
	}
}

func TestWrapperGatesOnOwnScope(t *testing.T) {
	backend := &testFS{name: "backend"}
	child := newEnabled(t, backend, "/")
	wr, err := NewWrapper(&testFS{name: "mounted"}, upath.MustNew("/data/logs"), child, Options{
		Enabled:       true,
		Filter:        "*.log",
		PathConverter: MountConverter(upath.MustNew("/data")),
	})
	if err != nil {
		t.Fatalf("NewWrapper: %v", err)
	}
	defer wr.Close()

	r := newRecorder()
	r.attach(wr.Watcher)
	_ = child.raiseChange(mustChange(t, backend, Created, "/logs/a.log"))
	_ = child.raiseChange(mustChange(t, backend, Created, "/logs/deep/b.log"))
	_ = child.raiseChange(mustChange(t, backend, Created, "/logs/c.txt"))
	_ = child.raiseChange(mustChange(t, backend, Created, "/other/d.log"))

	events, _ := r.snapshot()
	if len(events) != 1 || events[0] != "created:/data/logs/a.log" {
		t.Errorf("Events = %v", events)
	}

	wr.Disable()
	_ = child.raiseChange(mustChange(t, backend, Created, "/logs/e.log"))
	if events, _ := r.snapshot(); len(events) != 1 {
		t.Errorf("Disabled wrapper delivered %v", events)
	}
}

func TestWrapperCloseDisposesChild(t *testing.T) {
	backend := &testFS{name: "backend"}
	d := NewDispatcher(DispatcherOptions{})
	defer d.Close()

	child := newEnabled(t, backend, "/")
	_ = d.Add(child)
	wr, err := NewWrapper(&testFS{name: "mounted"}, upath.Root, child, Options{Enabled: true})
	if err != nil {
		t.Fatalf("NewWrapper: %v", err)
	}

	if err := wr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := wr.Close(); err != nil {
		t.Fatalf("Second Close: %v", err)
	}
	if child.State() != StateDisposed {
		t.Errorf("Child state = %s after wrapper close", child.State())
	}
	if d.Len() != 0 {
		t.Errorf("Dispatcher still holds %d watchers", d.Len())
	}
}

func TestNewWrapperValidation(t *testing.T) {
	fs := &testFS{name: "mounted"}
	if _, err := NewWrapper(fs, upath.Root, nil, Options{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Nil child: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewWrapper(fs, upath.MustNew("rel"), newEnabled(t, fs, "/"), Options{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Relative path: expected ErrInvalidArgument, got %v", err)
	}
}
