// Package memfs provides an afero filesystem that raises watch events for its own
// mutations. It backs tests and mounts that have no host directory behind them.
package memfs

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/TFMV/vfswatch/internal/upath"
	"github.com/TFMV/vfswatch/internal/watch"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Options configures an in-memory filesystem.
type Options struct {
	// Backing store, afero.NewMemMapFs() when nil
	Base afero.Fs

	// Pending fan-outs on the dispatcher before mutations block
	QueueCapacity int

	Logger *zap.Logger
}

// FS is an afero.Fs whose mutations are reported to watchers created with Watch.
// Paths are virtual: '\' and '/' both separate segments and relative names are
// taken from the root.
type FS struct {
	name       string
	base       afero.Fs
	dispatcher *watch.Dispatcher
	logger     *zap.Logger
}

var _ afero.Fs = (*FS)(nil)

// New creates a filesystem identified by name.
func New(name string, opts Options) *FS {
	base := opts.Base
	if base == nil {
		base = afero.NewMemMapFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("fs", name))
	return &FS{
		name: name,
		base: base,
		dispatcher: watch.NewDispatcher(watch.DispatcherOptions{
			QueueCapacity: opts.QueueCapacity,
			Logger:        logger,
		}),
		logger: logger,
	}
}

// Name identifies the filesystem.
func (fs *FS) Name() string {
	return fs.name
}

// Dispatcher returns the dispatcher that delivers this filesystem's events.
func (fs *FS) Dispatcher() *watch.Dispatcher {
	return fs.dispatcher
}

// Watch creates a watcher for path and registers it with the dispatcher.
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

// Close shuts down the dispatcher and disposes every watcher. The file contents
// stay readable; later mutations are no longer reported.
func (fs *FS) Close() error {
	return fs.dispatcher.Close()
}

// --------------------------------------------------------------------------
// afero.Fs
// --------------------------------------------------------------------------

func (fs *FS) Create(name string) (afero.File, error) {
	path, err := resolve(name)
	if err != nil {
		return nil, err
	}
	existed := fs.exists(path)
	f, err := fs.base.Create(path.String())
	if err != nil {
		return nil, err
	}
	if existed {
		fs.raise(watch.Changed, path)
	} else {
		fs.raise(watch.Created, path)
	}
	return fs.track(f, path), nil
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	path, err := resolve(name)
	if err != nil {
		return err
	}
	if err := fs.base.Mkdir(path.String(), perm); err != nil {
		return err
	}
	fs.raise(watch.Created, path)
	return nil
}

// MkdirAll reports every directory it had to create, parents first.
func (fs *FS) MkdirAll(name string, perm os.FileMode) error {
	path, err := resolve(name)
	if err != nil {
		return err
	}
	var missing []upath.Path
	for p := path; !p.IsEmpty() && p != upath.Root; {
		if fs.exists(p) {
			break
		}
		missing = append(missing, p)
		if p, err = p.Dir(); err != nil {
			return err
		}
	}
	if err := fs.base.MkdirAll(path.String(), perm); err != nil {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		fs.raise(watch.Created, missing[i])
	}
	return nil
}

func (fs *FS) Open(name string) (afero.File, error) {
	path, err := resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.base.Open(path.String())
}

// OpenFile reports a creation when flag creates a missing file. Writes through
// the returned file are reported as a change when it is closed.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	path, err := resolve(name)
	if err != nil {
		return nil, err
	}
	existed := fs.exists(path)
	f, err := fs.base.OpenFile(path.String(), flag, perm)
	if err != nil {
		return nil, err
	}
	switch {
	case !existed && flag&os.O_CREATE != 0:
		fs.raise(watch.Created, path)
	case existed && flag&os.O_TRUNC != 0:
		fs.raise(watch.Changed, path)
	}
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return f, nil
	}
	return fs.track(f, path), nil
}

func (fs *FS) Remove(name string) error {
	path, err := resolve(name)
	if err != nil {
		return err
	}
	if err := fs.base.Remove(path.String()); err != nil {
		return err
	}
	fs.raise(watch.Deleted, path)
	return nil
}

// RemoveAll reports every removed entry, children before their parent.
func (fs *FS) RemoveAll(name string) error {
	path, err := resolve(name)
	if err != nil {
		return err
	}
	var removed []upath.Path
	if fs.exists(path) {
		err := afero.Walk(fs.base, path.String(), func(p string, _ os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			entry, err := resolve(p)
			if err != nil {
				return err
			}
			removed = append(removed, entry)
			return nil
		})
		if err != nil {
			return err
		}
	}
	if err := fs.base.RemoveAll(path.String()); err != nil {
		return err
	}
	// Walk yields parents before children.
	slices.Reverse(removed)
	for _, entry := range removed {
		fs.raise(watch.Deleted, entry)
	}
	return nil
}

// Rename reports a single Renamed event carrying both paths.
func (fs *FS) Rename(oldname, newname string) error {
	oldPath, err := resolve(oldname)
	if err != nil {
		return err
	}
	newPath, err := resolve(newname)
	if err != nil {
		return err
	}
	if err := fs.base.Rename(oldPath.String(), newPath.String()); err != nil {
		return err
	}
	if err := fs.dispatcher.RaiseRenamed(fs, newPath, oldPath); err != nil {
		fs.dropped(watch.Renamed, newPath, err)
	}
	return nil
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	path, err := resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.base.Stat(path.String())
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	return fs.modify(name, watch.Attributes, func(p string) error { return fs.base.Chmod(p, mode) })
}

func (fs *FS) Chown(name string, uid, gid int) error {
	return fs.modify(name, watch.Security, func(p string) error { return fs.base.Chown(p, uid, gid) })
}

func (fs *FS) Chtimes(name string, atime, mtime time.Time) error {
	return fs.modify(name, watch.LastWrite|watch.LastAccess, func(p string) error { return fs.base.Chtimes(p, atime, mtime) })
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// resolve turns an afero name into an absolute virtual path.
func resolve(name string) (upath.Path, error) {
	path, err := upath.New(filepath.ToSlash(name))
	if err != nil {
		return upath.Null, &os.PathError{Op: "resolve", Path: name, Err: err}
	}
	return path.ToAbsolute()
}

func (fs *FS) exists(path upath.Path) bool {
	ok, err := afero.Exists(fs.base, path.String())
	return err == nil && ok
}

func (fs *FS) modify(name string, notify watch.NotifyFilters, apply func(p string) error) error {
	path, err := resolve(name)
	if err != nil {
		return err
	}
	if err := apply(path.String()); err != nil {
		return err
	}
	if err := fs.dispatcher.RaiseChangedFor(fs, path, notify); err != nil {
		fs.dropped(watch.Changed, path, err)
	}
	return nil
}

// raise reports a completed mutation. Delivery failures never undo the mutation.
func (fs *FS) raise(typ watch.ChangeType, path upath.Path) {
	var err error
	switch typ {
	case watch.Created:
		err = fs.dispatcher.RaiseCreated(fs, path)
	case watch.Deleted:
		err = fs.dispatcher.RaiseDeleted(fs, path)
	default:
		err = fs.dispatcher.RaiseChanged(fs, path)
	}
	if err != nil {
		fs.dropped(typ, path, err)
	}
}

func (fs *FS) dropped(typ watch.ChangeType, path upath.Path, err error) {
	if errors.Is(err, watch.ErrClosed) {
		fs.logger.Debug("event dropped after close", zap.Stringer("type", typ), zap.Stringer("path", path))
		return
	}
	fs.logger.Warn("event dropped", zap.Stringer("type", typ), zap.Stringer("path", path), zap.Error(err))
}

func (fs *FS) track(f afero.File, path upath.Path) afero.File {
	return &file{File: f, fs: fs, path: path}
}

// file reports a Changed event on Close if it was written to.
type file struct {
	afero.File
	fs    *FS
	path  upath.Path
	dirty atomic.Bool
}

func (f *file) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	if n > 0 {
		f.dirty.Store(true)
	}
	return n, err
}

func (f *file) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.File.WriteAt(p, off)
	if n > 0 {
		f.dirty.Store(true)
	}
	return n, err
}

func (f *file) WriteString(s string) (int, error) {
	n, err := f.File.WriteString(s)
	if n > 0 {
		f.dirty.Store(true)
	}
	return n, err
}

func (f *file) Truncate(size int64) error {
	if err := f.File.Truncate(size); err != nil {
		return err
	}
	f.dirty.Store(true)
	return nil
}

func (f *file) Close() error {
	err := f.File.Close()
	if f.dirty.Swap(false) {
		f.fs.raise(watch.Changed, f.path)
	}
	return err
}
