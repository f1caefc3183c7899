// Package watch provides change notification for virtual filesystems.
//
// This package re-exports the public surface of the internal packages: virtual
// paths, filename filters, watchers and their dispatcher, the Aggregator and
// Wrapper composites, and two ready-made backends (a host directory and an
// in-memory afero filesystem).
package watch

import (
	"github.com/TFMV/vfswatch/internal/filter"
	"github.com/TFMV/vfswatch/internal/memfs"
	"github.com/TFMV/vfswatch/internal/osfs"
	"github.com/TFMV/vfswatch/internal/upath"
	internal "github.com/TFMV/vfswatch/internal/watch"
	"go.uber.org/zap"
)

// Re-export the types from the internal packages
type (
	// Path is a normalized virtual path. The zero value is the null path.
	Path = upath.Path

	// Pattern is a compiled filename filter.
	Pattern = filter.Pattern

	// FileSystem identifies the backend an event or watcher belongs to.
	FileSystem = internal.FileSystem

	// ChangeType is a change category.
	ChangeType = internal.ChangeType

	// NotifyFilters selects the kinds of changes a caller cares about.
	NotifyFilters = internal.NotifyFilters

	ChangeEvent = internal.ChangeEvent
	RenameEvent = internal.RenameEvent
	ErrorEvent  = internal.ErrorEvent

	// Watcher surfaces the change events of one filesystem below one path.
	Watcher = internal.Watcher

	// Options configures a watcher.
	Options = internal.Options

	State         = internal.State
	PathConverter = internal.PathConverter
	EventGate     = internal.EventGate
	Subscription  = internal.Subscription

	// Dispatcher delivers raised events to watchers on its own goroutine.
	Dispatcher        = internal.Dispatcher
	DispatcherOptions = internal.DispatcherOptions
	DispatcherStats   = internal.DispatcherStats

	// Aggregator republishes the events of several child watchers.
	Aggregator = internal.Aggregator

	// Wrapper presents one child watcher under another namespace.
	Wrapper = internal.Wrapper

	// LogLevel defines the verbosity of logging.
	LogLevel = internal.LogLevel

	// OSFS is a host directory mounted as "/".
	OSFS        = osfs.FS
	OSFSOptions = osfs.Options

	// MemFS is an afero filesystem that reports its own mutations.
	MemFS        = memfs.FS
	MemFSOptions = memfs.Options
)

// Re-export all the constants
const (
	Created    = internal.Created
	Deleted    = internal.Deleted
	Changed    = internal.Changed
	Renamed    = internal.Renamed
	AllChanges = internal.AllChanges

	FileName             = internal.FileName
	DirectoryName        = internal.DirectoryName
	Attributes           = internal.Attributes
	Size                 = internal.Size
	LastWrite            = internal.LastWrite
	LastAccess           = internal.LastAccess
	CreationTime         = internal.CreationTime
	Security             = internal.Security
	DefaultNotifyFilters = internal.DefaultNotifyFilters

	StateDisabled = internal.StateDisabled
	StateEnabled  = internal.StateEnabled
	StateDisposed = internal.StateDisposed

	DefaultQueueCapacity = internal.DefaultQueueCapacity
	MatchAll             = filter.MatchAll

	// Log levels
	LogLevelError = internal.LogLevelError
	LogLevelWarn  = internal.LogLevelWarn
	LogLevelInfo  = internal.LogLevelInfo
	LogLevelDebug = internal.LogLevelDebug
)

// Re-export the errors
var (
	ErrInvalidArgument = internal.ErrInvalidArgument
	ErrClosed          = internal.ErrClosed
	ErrListenerPanic   = internal.ErrListenerPanic
	ErrOutsideRoot     = osfs.ErrOutsideRoot

	// Root is the absolute path "/".
	Root = upath.Root
	// Empty is the empty relative path.
	Empty = upath.Empty
)

// NewPath normalizes s into a virtual path.
func NewPath(s string) (Path, error) {
	return upath.New(s)
}

// MustPath is like NewPath but panics on an invalid path.
func MustPath(s string) Path {
	return upath.MustNew(s)
}

// ParseFilter compiles a filename filter relative to base and returns the base
// extended by the filter's directory qualifier.
func ParseFilter(base Path, pattern string) (Pattern, Path, error) {
	return filter.Parse(base, pattern)
}

// New creates a disabled watcher for path on fs.
func New(fs FileSystem, path Path) (*Watcher, error) {
	return internal.New(fs, path)
}

// NewWithOptions creates a watcher for path on fs.
func NewWithOptions(fs FileSystem, path Path, opts Options) (*Watcher, error) {
	return internal.NewWithOptions(fs, path, opts)
}

// NewDispatcher creates a dispatcher and starts its worker.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	return internal.NewDispatcher(opts)
}

// NewAggregator creates an empty aggregator for path on fs.
func NewAggregator(fs FileSystem, path Path, opts Options) (*Aggregator, error) {
	return internal.NewAggregator(fs, path, opts)
}

// NewWrapper subscribes a new watcher for path on fs to child.
func NewWrapper(fs FileSystem, path Path, child *Watcher, opts Options) (*Wrapper, error) {
	return internal.NewWrapper(fs, path, child, opts)
}

// MountConverter re-roots backend paths below mount.
func MountConverter(mount Path) PathConverter {
	return internal.MountConverter(mount)
}

// OpenDir mounts a host directory and starts watching it.
func OpenDir(root string, opts OSFSOptions) (*OSFS, error) {
	return osfs.New(root, opts)
}

// NewMemFS creates an in-memory filesystem identified by name.
func NewMemFS(name string, opts MemFSOptions) *MemFS {
	return memfs.New(name, opts)
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel) *zap.Logger {
	return internal.NewLogger(level)
}

// LoggingHandler returns a change handler that logs every event it receives.
func LoggingHandler(logger *zap.Logger) func(ChangeEvent) error {
	return func(ev ChangeEvent) error {
		fs := ""
		if ev.FileSystem != nil {
			fs = ev.FileSystem.Name()
		}
		logger.Info("change",
			zap.Stringer("type", ev.Type),
			zap.Stringer("path", ev.Path),
			zap.String("fs", fs),
		)
		return nil
	}
}
