package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/pipeline"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
)

type fakeBuilder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *fakeBuilder) Run(ctx context.Context) (*pipeline.Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &pipeline.Summary{RunID: "r", Counts: pipeline.Counts{Cached: 2}}, nil
}

func (b *fakeBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newTestWatcher(t *testing.T, root string, b Builder) (*Watcher, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	w, err := New(Config{
		Root:     root,
		Parse:    vault.ParseOptions{ExcludePaths: []string{filepath.Join(root, "dist")}},
		Debounce: 30 * time.Millisecond,
		NoColor:  true,
		Writer:   &buf,
	}, b)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, &buf
}

func TestIsWatchLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"not exist", &os.PathError{Op: "watch", Path: "/foo", Err: os.ErrNotExist}, false},
		{"permission", os.ErrPermission, false},
		{"no space", &os.PathError{Op: "inotify_add_watch", Path: "/foo", Err: syscall.ENOSPC}, true},
		{"too many files", errors.New("too many open files"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWatchLimitError(tt.err); got != tt.expected {
				t.Errorf("isWatchLimitError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestChangeType(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		want   ChangeType
		wantOK bool
	}{
		{fsnotify.Create, ChangeAdded, true},
		{fsnotify.Write, ChangeModified, true},
		{fsnotify.Remove, ChangeDeleted, true},
		{fsnotify.Rename, ChangeDeleted, true},
		{fsnotify.Chmod, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, ok := changeType(fsnotify.Event{Name: "/vault/a.md", Op: tt.op})
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("changeType(%s) = %q, %v; want %q, %v", tt.op, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNew_NilBuilder(t *testing.T) {
	if _, err := New(Config{Root: t.TempDir()}, nil); err == nil {
		t.Error("New() with nil builder should fail")
	}
}

func TestNew_InvalidIgnorePattern(t *testing.T) {
	cfg := Config{Root: t.TempDir(), Parse: vault.ParseOptions{Ignore: []string{"[unclosed"}}}
	if _, err := New(cfg, &fakeBuilder{}); err == nil {
		t.Error("New() with invalid glob should fail")
	}
}

func TestHandleEvent_Filters(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root, &fakeBuilder{})
	w.debouncer = NewDebouncer(time.Hour, func([]string) {})
	defer w.debouncer.Stop()

	events := []fsnotify.Event{
		{Name: filepath.Join(root, "a.md"), Op: fsnotify.Write},
		{Name: filepath.Join(root, "img.png"), Op: fsnotify.Create},
		{Name: filepath.Join(root, "a.md"), Op: fsnotify.Chmod},
		{Name: filepath.Join(root, ".obsidian"), Op: fsnotify.Remove},
		{Name: filepath.Join(root, ".hidden.md"), Op: fsnotify.Write},
		{Name: filepath.Join(root, "dist"), Op: fsnotify.Remove},
	}
	for _, ev := range events {
		w.handleEvent(ev)
	}

	if got := w.debouncer.PendingCount(); got != 2 {
		t.Errorf("pending = %d, want 2 (a.md and img.png)", got)
	}
}

func TestHandleEvent_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root, &fakeBuilder{})
	w.debouncer = NewDebouncer(time.Hour, func([]string) {})
	defer w.debouncer.Stop()

	dir := filepath.Join(root, "Projects")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	w.handleEvent(fsnotify.Event{Name: dir, Op: fsnotify.Create})

	watched := false
	for _, p := range w.fsWatcher.WatchList() {
		if p == dir {
			watched = true
		}
	}
	if !watched {
		t.Errorf("new directory %s not in watch list %v", dir, w.fsWatcher.WatchList())
	}
	if w.debouncer.PendingCount() != 1 {
		t.Error("a new directory should trigger a rebuild")
	}
}

func TestRebuild(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		b := &fakeBuilder{}
		w, buf := newTestWatcher(t, t.TempDir(), b)
		if sum := w.rebuild(context.Background(), []string{"a.md"}); sum == nil {
			t.Fatal("rebuild returned nil summary")
		}
		if w.logger.Stats().BuildCount != 1 {
			t.Error("build should be counted")
		}
		if buf.Len() == 0 {
			t.Error("rebuild should log")
		}
	})

	t.Run("failure", func(t *testing.T) {
		b := &fakeBuilder{err: errors.New("disk full")}
		w, _ := newTestWatcher(t, t.TempDir(), b)
		if sum := w.rebuild(context.Background(), nil); sum != nil {
			t.Error("failed rebuild should return nil")
		}
		if w.logger.Stats().ErrorCount != 1 {
			t.Error("failure should be counted as an error")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		b := &fakeBuilder{}
		w, _ := newTestWatcher(t, t.TempDir(), b)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w.rebuild(ctx, []string{"a.md"})
		if b.Calls() != 0 {
			t.Error("cancelled context must skip the build")
		}
	})
}

func TestRun_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	b := &fakeBuilder{}
	w, _ := newTestWatcher(t, root, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return b.Calls() >= 1 })

	if err := os.WriteFile(filepath.Join(root, "a.md"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return b.Calls() >= 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherCloseNilFsWatcher(t *testing.T) {
	w := &Watcher{fsWatcher: nil}
	if err := w.Close(); err != nil {
		t.Errorf("Close() on nil fsWatcher error = %v", err)
	}
}
