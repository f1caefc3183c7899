// Package osfs exposes a host directory as a virtual filesystem whose changes are
// reported through watch.Watcher values.
//
// Raw notifications come from fsnotify. They are translated into virtual paths
// rooted at "/" and raised on the filesystem's own dispatcher, so handlers never
// run on the fsnotify goroutine.
package osfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TFMV/vfswatch/internal/upath"
	"github.com/TFMV/vfswatch/internal/watch"
	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/tomb.v2"
)

// ErrOutsideRoot is returned when a host path does not lie below the filesystem root.
var ErrOutsideRoot = errors.New("path is outside the filesystem root")

// Options configures a host filesystem.
type Options struct {
	// Register every subdirectory with fsnotify, not only the root
	Recursive bool

	// Whether to watch hidden directories and report hidden entries
	IncludeHidden bool

	// Globs over root-relative paths ("build", "**/*.tmp") whose entries are
	// neither watched nor reported
	Ignore []string

	// Pending fan-outs on the dispatcher before the pump blocks
	QueueCapacity int

	Logger *zap.Logger
}

// FS is a host directory mounted as "/".
type FS struct {
	root      string
	recursive bool
	hidden    bool
	ignore    ignoreSet
	logger    *zap.Logger

	dispatcher *watch.Dispatcher
	notifier   *fsnotify.Watcher
	tomb       tomb.Tomb

	closeOnce sync.Once
	closeErr  error
}

// New starts watching root. The directory must exist.
func New(root string, opts Options) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("error reading root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory: %w", abs, watch.ErrInvalidArgument)
	}

	ignore, err := compileIgnore(opts.Ignore)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}

	fs := &FS{
		root:      abs,
		recursive: opts.Recursive,
		hidden:    opts.IncludeHidden,
		ignore:    ignore,
		logger:    logger.With(zap.String("root", abs)),
		notifier:  notifier,
	}
	fs.dispatcher = watch.NewDispatcher(watch.DispatcherOptions{
		QueueCapacity: opts.QueueCapacity,
		Logger:        fs.logger,
	})

	if err := fs.register(abs); err != nil {
		notifier.Close()
		fs.dispatcher.Close()
		return nil, err
	}
	fs.tomb.Go(fs.pump)
	return fs, nil
}

// Name identifies the filesystem in logs and output.
func (fs *FS) Name() string {
	return "os:" + fs.root
}

// Root returns the absolute host directory mounted as "/".
func (fs *FS) Root() string {
	return fs.root
}

// Dispatcher returns the dispatcher that delivers this filesystem's events.
func (fs *FS) Dispatcher() *watch.Dispatcher {
	return fs.dispatcher
}

// Watch creates a watcher for path and registers it with the dispatcher. Without
// an explicit logger the watcher logs through the filesystem's logger.
func (fs *FS) Watch(path upath.Path, opts watch.Options) (*watch.Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = fs.logger
	}
	w, err := watch.NewWithOptions(fs, path, opts)
	if err != nil {
		return nil, err
	}
	if err := fs.dispatcher.Add(w); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// ToVirtual maps a host path below the root to its virtual path. Names are
// normalized to NFC so paths from different host encodings compare equal.
func (fs *FS) ToVirtual(hostPath string) (upath.Path, error) {
	rel, err := filepath.Rel(fs.root, hostPath)
	if err != nil {
		return upath.Null, fmt.Errorf("%s: %w", hostPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return upath.Null, fmt.Errorf("%s: %w", hostPath, ErrOutsideRoot)
	}
	if rel == "." {
		return upath.Root, nil
	}
	return upath.New("/" + norm.NFC.String(filepath.ToSlash(rel)))
}

// ToHost maps a virtual path to the host path it names.
func (fs *FS) ToHost(path upath.Path) (string, error) {
	if err := path.RequireAbsolute(); err != nil {
		return "", err
	}
	rel, err := path.ToRelative()
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(rel.String())), nil
}

// Close stops the pump, shuts down the dispatcher and disposes every watcher
// created through Watch. It is safe to call more than once.
func (fs *FS) Close() error {
	fs.closeOnce.Do(func() {
		fs.tomb.Kill(nil)
		// The dispatcher goes first so a pump blocked on a full queue is released.
		dispatchErr := fs.dispatcher.Close()
		notifyErr := fs.notifier.Close()
		fs.closeErr = errors.Join(dispatchErr, notifyErr, fs.tomb.Wait())
	})
	return fs.closeErr
}

// register adds dir, and all of its subdirectories when recursive, to fsnotify.
func (fs *FS) register(dir string) error {
	if !fs.recursive {
		if err := fs.notifier.Add(dir); err != nil {
			return fmt.Errorf("error watching directory %s: %w", dir, err)
		}
		return nil
	}

	return godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if osPathname != dir && !fs.hidden && isHidden(de.Name()) {
				return godirwalk.SkipThis
			}
			if path, err := fs.ToVirtual(osPathname); err == nil && fs.ignore.match(path) {
				return godirwalk.SkipThis
			}
			if err := fs.notifier.Add(osPathname); err != nil {
				if osPathname == dir {
					return fmt.Errorf("error watching directory %s: %w", osPathname, err)
				}
				fs.logger.Warn("error watching directory",
					zap.String("dir", osPathname),
					zap.Error(err),
				)
			}
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			fs.logger.Warn("error walking directory",
				zap.String("path", osPathname),
				zap.Error(err),
			)
			return godirwalk.SkipNode
		},
	})
}

// pump translates fsnotify notifications until the filesystem is closed.
func (fs *FS) pump() error {
	for {
		select {
		case <-fs.tomb.Dying():
			return nil
		case ev, ok := <-fs.notifier.Events:
			if !ok {
				return nil
			}
			if err := fs.translate(ev); errors.Is(err, watch.ErrClosed) {
				return nil
			}
		case err, ok := <-fs.notifier.Errors:
			if !ok {
				return nil
			}
			if err := fs.dispatcher.RaiseError(fs, fmt.Errorf("watcher error: %w", err)); errors.Is(err, watch.ErrClosed) {
				return nil
			}
		}
	}
}

// translate raises the watch event matching one fsnotify notification. A rename
// reports the old name as deleted; fsnotify delivers the new name as a create.
// Writes and attribute changes only reach watchers whose notify filter asks for
// them.
func (fs *FS) translate(ev fsnotify.Event) error {
	path, err := fs.ToVirtual(ev.Name)
	if err != nil {
		fs.logger.Debug("dropping event", zap.String("name", ev.Name), zap.Error(err))
		return nil
	}
	if !fs.hidden && isHidden(filepath.Base(ev.Name)) {
		return nil
	}
	if fs.ignore.match(path) {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Create):
		if fs.recursive {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := fs.register(ev.Name); err != nil {
					_ = fs.dispatcher.RaiseError(fs, err)
				}
			}
		}
		return fs.dispatcher.RaiseCreated(fs, path)
	case ev.Has(fsnotify.Write):
		return fs.dispatcher.RaiseChangedFor(fs, path, watch.LastWrite|watch.Size)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return fs.dispatcher.RaiseDeleted(fs, path)
	case ev.Has(fsnotify.Chmod):
		return fs.dispatcher.RaiseChangedFor(fs, path, watch.Attributes|watch.Security)
	}
	return nil
}

// isHidden checks if a file or directory name is hidden.
func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}
