package watch

import (
	"fmt"
	"strings"

	"github.com/TFMV/vfswatch/internal/upath"
)

// ErrInvalidArgument is returned when a caller violates a contract: null or relative
// paths where absolute ones are required, malformed filters, duplicate registrations.
var ErrInvalidArgument = upath.ErrInvalidArgument

// FileSystem is the opaque handle of a backing filesystem. Watchers never call into
// it; it only identifies which backend an event or watcher belongs to, so
// implementations must be comparable (typically a pointer).
type FileSystem interface {
	// Name identifies the backend in logs and output.
	Name() string
}

// ChangeType is a change category. Categories combine as bit flags for filtering,
// but a single event always carries exactly one.
type ChangeType uint8

const (
	Created ChangeType = 1 << iota
	Deleted
	Changed
	Renamed

	AllChanges = Created | Deleted | Changed | Renamed
)

// Has reports whether t includes every flag of other.
func (t ChangeType) Has(other ChangeType) bool {
	return t&other == other
}

func (t ChangeType) single() bool {
	return t != 0 && t&(t-1) == 0 && t&^AllChanges == 0
}

// String returns a human-readable representation of the change type.
func (t ChangeType) String() string {
	names := flagNames(uint32(t), changeTypeNames)
	if names == "" {
		return "none"
	}
	return names
}

var changeTypeNames = []string{"created", "deleted", "changed", "renamed"}

// NotifyFilters selects which kinds of Changed events a watcher wants. Sources
// raise content and metadata changes with Dispatcher.RaiseChangedFor, which skips
// watchers whose filter shares no category with the change.
type NotifyFilters uint32

const (
	FileName NotifyFilters = 1 << iota
	DirectoryName
	Attributes
	Size
	LastWrite
	LastAccess
	CreationTime
	Security

	DefaultNotifyFilters = FileName | DirectoryName | LastWrite
)

var notifyFilterNames = []string{
	"file_name", "directory_name", "attributes", "size",
	"last_write", "last_access", "creation_time", "security",
}

// Has reports whether f includes every flag of other.
func (f NotifyFilters) Has(other NotifyFilters) bool {
	return f&other == other
}

// String returns the flags joined by '|'.
func (f NotifyFilters) String() string {
	names := flagNames(uint32(f), notifyFilterNames)
	if names == "" {
		return "none"
	}
	return names
}

// ParseNotifyFilters parses a '|' or ',' separated list of flag names.
func ParseNotifyFilters(s string) (NotifyFilters, error) {
	var result NotifyFilters
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		field = strings.TrimSpace(strings.ToLower(field))
		found := false
		for i, name := range notifyFilterNames {
			if name == field {
				result |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown notify filter %q: %w", field, ErrInvalidArgument)
		}
	}
	return result, nil
}

func flagNames(bits uint32, names []string) string {
	var parts []string
	for i, name := range names {
		if bits&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ChangeEvent describes a created, deleted or changed entry.
type ChangeEvent struct {
	FileSystem FileSystem
	Type       ChangeType
	Path       upath.Path // Absolute path in the namespace of FileSystem
	Name       string     // Last segment of Path
}

// NewChangeEvent validates path and builds an event of a single change type.
func NewChangeEvent(fs FileSystem, typ ChangeType, path upath.Path) (ChangeEvent, error) {
	if err := path.RequireAbsolute(); err != nil {
		return ChangeEvent{}, err
	}
	if !typ.single() {
		return ChangeEvent{}, fmt.Errorf("change type %s must be a single kind: %w", typ, ErrInvalidArgument)
	}
	name, _ := path.Name()
	return ChangeEvent{FileSystem: fs, Type: typ, Path: path, Name: name}, nil
}

// withPath returns a copy of e moved to another path.
func (e ChangeEvent) withPath(fs FileSystem, path upath.Path) ChangeEvent {
	name, _ := path.Name()
	return ChangeEvent{FileSystem: fs, Type: e.Type, Path: path, Name: name}
}

// RenameEvent describes an entry moved from OldPath to Path.
type RenameEvent struct {
	ChangeEvent
	OldPath upath.Path
	OldName string
}

// NewRenameEvent validates both paths and builds a Renamed event.
func NewRenameEvent(fs FileSystem, path, oldPath upath.Path) (RenameEvent, error) {
	ev, err := NewChangeEvent(fs, Renamed, path)
	if err != nil {
		return RenameEvent{}, err
	}
	if err := oldPath.RequireAbsolute(); err != nil {
		return RenameEvent{}, err
	}
	oldName, _ := oldPath.Name()
	return RenameEvent{ChangeEvent: ev, OldPath: oldPath, OldName: oldName}, nil
}

// ErrorEvent carries a failure observed by a backend or while delivering events.
type ErrorEvent struct {
	FileSystem FileSystem
	Err        error
}

func (e ErrorEvent) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Err.Error()
}

func (e ErrorEvent) Unwrap() error {
	return e.Err
}
