package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/TFMV/vfswatch/internal/osfs"
	"github.com/TFMV/vfswatch/internal/upath"
	"github.com/TFMV/vfswatch/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [mount=dir | dir]...",
	Short: "Watch mounted directories for changes",
	Long: `Mount host directories into one virtual namespace and print every change
below it. A bare directory is mounted at "/" when it is the only one and at
"/<base name>" otherwise; "/point=dir" mounts it explicitly.

Examples:
  vfswatch watch .
  vfswatch watch --recursive --filter "*.go" /src=./src /docs=./docs
  vfswatch watch --format json --events created,deleted --timeout 1m /tmp
  vfswatch watch --recursive --exec 'echo {event} {}' .
  vfswatch watch --exec 'touch /tmp/seen/{"base"}' /tmp/in

Placeholders for --exec are {} (path), {old}, {base}, {dir}, {event}, {source}
and {time}. A quoted form such as {"base"} expands to the value in double
quotes, so names with spaces stay one argument.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		args = append(args, viper.GetStringSlice("watch.mount")...)
		if len(args) == 0 {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("error getting current directory: %w", err)
			}
			args = []string{wd}
		}
		mounts, err := parseMounts(args)
		if err != nil {
			return err
		}
		return runWatch(cmd.Context(), mounts)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	// Define flags for the watch command
	watchCmd.Flags().StringSlice("mount", nil, "Additional mounts as /point=dir")
	watchCmd.Flags().String("filter", "*", "Filename filter (e.g., *.go)")
	watchCmd.Flags().Bool("recursive", false, "Watch subdirectories recursively")
	watchCmd.Flags().StringSlice("events", nil, "Events to report (created, deleted, changed, renamed, error)")
	watchCmd.Flags().String("notify", "", "Notify filters (e.g., file_name|last_write|attributes)")
	watchCmd.Flags().Int("queue", watch.DefaultQueueCapacity, "Pending events per mount before the source blocks")
	watchCmd.Flags().Duration("timeout", 0, "Duration to watch before exiting (e.g., 1h, 30m)")
	watchCmd.Flags().Bool("include-hidden", false, "Include hidden files and directories")
	watchCmd.Flags().StringSlice("ignore", nil, "Globs of mount-relative paths to skip (e.g., node_modules, **/*.tmp)")
	watchCmd.Flags().String("exec", "", "Command to execute for each event ({}, {old}, {base}, {dir}, {event}, {source}, {time})")

	for _, name := range []string{"mount", "filter", "recursive", "events", "notify", "queue", "timeout", "include-hidden", "ignore", "exec"} {
		viper.BindPFlag("watch."+name, watchCmd.Flags().Lookup(name))
	}
}

// mountSpec is one host directory and where it appears in the namespace.
type mountSpec struct {
	Point upath.Path
	Dir   string
}

// parseMounts resolves mount arguments. Bare directories are placed at "/" when
// alone and at their base name otherwise; two mounts may not share a point.
func parseMounts(args []string) ([]mountSpec, error) {
	mounts := make([]mountSpec, 0, len(args))
	seen := make(map[upath.Path]bool)
	for _, arg := range args {
		var m mountSpec
		if point, dir, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(point, "/") {
			p, err := upath.New(point)
			if err != nil {
				return nil, fmt.Errorf("invalid mount point %q: %w", point, err)
			}
			m = mountSpec{Point: p, Dir: dir}
		} else if len(args) == 1 {
			m = mountSpec{Point: upath.Root, Dir: arg}
		} else {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid directory %q: %w", arg, err)
			}
			p, err := upath.Root.Join(filepath.Base(abs))
			if err != nil {
				return nil, fmt.Errorf("invalid directory %q: %w", arg, err)
			}
			m = mountSpec{Point: p, Dir: arg}
		}
		if m.Dir == "" {
			return nil, fmt.Errorf("mount %q has no directory", arg)
		}
		if seen[m.Point] {
			return nil, fmt.Errorf("mount point %s is used twice", m.Point)
		}
		seen[m.Point] = true
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// namespace is the handle of the combined view every mount feeds.
type namespace struct {
	name string
}

func (n *namespace) Name() string { return n.name }

// eventRecord is one printed event.
type eventRecord struct {
	Time    time.Time `json:"time" yaml:"time"`
	Event   string    `json:"event" yaml:"event"`
	Path    string    `json:"path,omitempty" yaml:"path,omitempty"`
	OldPath string    `json:"old_path,omitempty" yaml:"old_path,omitempty"`
	Source  string    `json:"source,omitempty" yaml:"source,omitempty"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r eventRecord) Text() string {
	switch {
	case r.Error != "":
		return fmt.Sprintf("ERROR: %s (%s)", r.Error, r.Source)
	case r.OldPath != "":
		return fmt.Sprintf("%s: %s -> %s", strings.ToUpper(r.Event), r.OldPath, r.Path)
	}
	return fmt.Sprintf("%s: %s", strings.ToUpper(r.Event), r.Path)
}

func sourceName(fs watch.FileSystem) string {
	if fs == nil {
		return ""
	}
	return fs.Name()
}

// parseEvents turns --events into a change type mask; error events are reported
// unless the list is non-empty and leaves them out.
func parseEvents(names []string) (watch.ChangeType, bool, error) {
	if len(names) == 0 {
		return watch.AllChanges, true, nil
	}
	var mask watch.ChangeType
	errorsToo := false
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "create", "created":
			mask |= watch.Created
		case "delete", "deleted", "remove":
			mask |= watch.Deleted
		case "change", "changed", "modify", "write":
			mask |= watch.Changed
		case "rename", "renamed":
			mask |= watch.Renamed
		case "error", "errors":
			errorsToo = true
		default:
			return 0, false, fmt.Errorf("unknown event type: %s", name)
		}
	}
	return mask, errorsToo, nil
}

func runWatch(ctx context.Context, mounts []mountSpec) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	out, err := newPrinter(os.Stdout, viper.GetString("format"))
	if err != nil {
		return err
	}
	mask, reportErrors, err := parseEvents(viper.GetStringSlice("watch.events"))
	if err != nil {
		return err
	}
	notify := watch.DefaultNotifyFilters
	if s := viper.GetString("watch.notify"); s != "" {
		if notify, err = watch.ParseNotifyFilters(s); err != nil {
			return err
		}
	}
	// Depth is limited per mount; the namespace itself spans every mount point.
	agg, err := watch.NewAggregator(&namespace{name: "vfswatch"}, upath.Root, watch.Options{
		Filter:       viper.GetString("watch.filter"),
		Recursive:    true,
		NotifyFilter: notify,
		Enabled:      true,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer agg.Close()

	var backends []*osfs.FS
	defer func() {
		for _, backend := range backends {
			if err := backend.Close(); err != nil {
				logger.Warn("error closing mount", zap.String("root", backend.Root()), zap.Error(err))
			}
		}
	}()
	for _, m := range mounts {
		backend, err := mountDir(agg, m, notify, logger)
		if err != nil {
			return err
		}
		backends = append(backends, backend)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if timeout := viper.GetDuration("watch.timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execTemplate := viper.GetString("watch.exec")
	emit := func(record eventRecord) error {
		record.Time = time.Now()
		// A failing command is reported back as an error event.
		if execTemplate != "" && record.Error == "" {
			return executeCommand(ctx, formatCommand(execTemplate, record), os.Stdout)
		}
		if err := out.print(record); err != nil {
			logger.Error("error writing event", zap.Error(err))
		}
		return nil
	}
	onChange := func(ev watch.ChangeEvent) error {
		if !mask.Has(ev.Type) {
			return nil
		}
		return emit(eventRecord{Event: ev.Type.String(), Path: ev.Path.String(), Source: sourceName(ev.FileSystem)})
	}
	agg.OnCreated(onChange)
	agg.OnDeleted(onChange)
	agg.OnChanged(onChange)
	agg.OnRenamed(func(ev watch.RenameEvent) error {
		if !mask.Has(watch.Renamed) {
			return nil
		}
		return emit(eventRecord{
			Event:   ev.Type.String(),
			Path:    ev.Path.String(),
			OldPath: ev.OldPath.String(),
			Source:  sourceName(ev.FileSystem),
		})
	})
	if reportErrors {
		agg.OnError(func(ev watch.ErrorEvent) error {
			return emit(eventRecord{Event: "error", Error: ev.Error(), Source: sourceName(ev.FileSystem)})
		})
	}

	if !viper.GetBool("silent") && viper.GetString("format") == formatText {
		for _, m := range mounts {
			fmt.Fprintf(os.Stderr, "Watching %s at %s\n", m.Dir, m.Point)
		}
		fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit.")
	}

	<-ctx.Done()
	return nil
}

// mountDir starts a host source for m and feeds it into agg below m.Point.
func mountDir(agg *watch.Aggregator, m mountSpec, notify watch.NotifyFilters, logger *zap.Logger) (*osfs.FS, error) {
	recursive := viper.GetBool("watch.recursive")
	backend, err := osfs.New(m.Dir, osfs.Options{
		Recursive:     recursive,
		IncludeHidden: viper.GetBool("watch.include-hidden"),
		Ignore:        viper.GetStringSlice("watch.ignore"),
		QueueCapacity: viper.GetInt("watch.queue"),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	child, err := backend.Watch(upath.Root, watch.Options{
		Recursive:    recursive,
		NotifyFilter: notify,
		Enabled:      true,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	wrapper, err := watch.NewWrapper(backend, m.Point, child, watch.Options{
		Recursive:     true,
		NotifyFilter:  notify,
		Enabled:       true,
		PathConverter: watch.MountConverter(m.Point),
		Logger:        logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := agg.Add(wrapper.Watcher); err != nil {
		backend.Close()
		return nil, err
	}
	logger.Debug("mounted", zap.String("dir", backend.Root()), zap.Stringer("point", m.Point))
	return backend, nil
}
