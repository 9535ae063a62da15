package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/pipeline"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// Builder runs one build of the vault.
type Builder interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}

// Config configures the watcher.
type Config struct {
	Root string
	// Parse selects which paths are watched, using the same rules as the build walk.
	Parse    vault.ParseOptions
	Debounce time.Duration
	Verbose  bool
	NoColor  bool
	JSON     bool
	Writer   io.Writer
}

// Watcher watches a vault and rebuilds it when files change.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	builder   Builder
	parser    *vault.Parser
	debouncer *Debouncer
	logger    *Logger

	// buildMu prevents overlapping builds.
	buildMu sync.Mutex
}

// New creates a watcher for cfg.Root that runs builder on changes.
func New(cfg Config, builder Builder) (*Watcher, error) {
	if builder == nil {
		return nil, errors.New("watch: nil builder")
	}
	parser, err := vault.NewParser(afero.NewOsFs(), cfg.Parse)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		builder:   builder,
		parser:    parser,
		logger: NewLogger(LoggerConfig{
			Writer:  cfg.Writer,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		}),
	}, nil
}

// Run builds once, then rebuilds on every debounced batch of changes.
// It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	window := w.config.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}
	w.debouncer = NewDebouncer(window, func(paths []string) { w.rebuild(ctx, paths) })
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.config.Root); err != nil {
		return fmt.Errorf("failed to watch vault: %w", err)
	}

	files := 0
	if sum := w.rebuild(ctx, nil); sum != nil {
		files = sum.Counts.Total() - sum.Counts.Removed
	}
	w.logger.Ready(files, w.config.Root)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive adds a directory and all its walked subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if path != w.config.Root && w.parser.Skip(w.config.Root, path, true) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %v\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// changeType maps an event to a change, or false for events that do not
// affect the build (chmod).
func changeType(event fsnotify.Event) (ChangeType, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return ChangeAdded, true
	case event.Has(fsnotify.Write):
		return ChangeModified, true
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		return ChangeDeleted, true
	default:
		return "", false
	}
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.parser.Skip(w.config.Root, path, isDir) {
		return
	}

	change, ok := changeType(event)
	if !ok {
		return
	}

	// Files moved in with a new directory produce no events of their own,
	// so a new directory is watched and then rebuilt like any other change.
	if isDir {
		if err := w.addRecursive(path); err != nil {
			w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
		}
	}

	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return
	}
	w.logger.FileChanged(rel, change)
	w.debouncer.Add(rel)
}

// rebuild runs one build. Builds never overlap; a cancelled context skips the build.
func (w *Watcher) rebuild(ctx context.Context, paths []string) *pipeline.Summary {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	if len(paths) > 0 {
		w.logger.Building(paths)
	}

	sum, err := w.builder.Run(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error(fmt.Errorf("build failed: %w", err))
		}
		return nil
	}
	w.logger.Built(sum)
	return sum
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
