package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/history"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/publish"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

const (
	vaultRoot  = "/vault"
	outputDir  = "/site/dist"
	reportPath = "/vault/.vaultbuild/build-report.json"
)

type fakeRecorder struct {
	runs []history.Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run history.Run) error {
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

type fixture struct {
	fs       afero.Fs
	recorder *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs(), recorder: &fakeRecorder{}}
	f.write(t, "/vault/.obsidian/app.json", "{}")
	f.write(t, "/vault/a.md", "alpha")
	f.write(t, "/vault/Notes/Hello World.md", "hello")
	f.write(t, "/vault/img.png", "png-bytes")
	return f
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	if err := afero.WriteFile(f.fs, path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) exists(path string) bool {
	ok, _ := afero.Exists(f.fs, path)
	return ok
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func (f *fixture) builder(t *testing.T, mutate ...func(*Options)) *Builder {
	t.Helper()
	opts := Options{
		VaultRoot:  vaultRoot,
		OutputDir:  outputDir,
		AssetsDir:  "assets",
		ReportPath: reportPath,
		History:    f.recorder,
		Logger:     log.Discard(),
		Clock:      func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, m := range mutate {
		m(&opts)
	}
	b, err := New(f.fs, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func (f *fixture) run(t *testing.T, mutate ...func(*Options)) *Summary {
	t.Helper()
	sum, err := f.builder(t, mutate...).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sum.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", sum.Failures)
	}
	return sum
}

func statesByOrigin(s *Summary) map[string]vault.BuildState {
	m := make(map[string]vault.BuildState, len(s.Changes))
	for _, c := range s.Changes {
		m[c.Origin] = c.State
	}
	return m
}

func TestNew_RequiresAbsolutePaths(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing vault root", Options{OutputDir: "/out", ReportPath: "/r.json"}},
		{"relative output", Options{VaultRoot: "/vault", OutputDir: "dist", ReportPath: "/r.json"}},
		{"relative report", Options{VaultRoot: "/vault", OutputDir: "/out", ReportPath: "r.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(afero.NewMemMapFs(), tt.opts); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestRun_ColdBuild(t *testing.T) {
	f := newFixture(t)
	sum := f.run(t)

	if !sum.ColdStart || !sum.Saved {
		t.Errorf("ColdStart = %v, Saved = %v, want both true", sum.ColdStart, sum.Saved)
	}
	if diff := cmp.Diff(Counts{Added: 3}, sum.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if sum.Stats.Text != 2 || sum.Stats.Images != 1 {
		t.Errorf("stats = %+v", sum.Stats)
	}
	if sum.RunID == "" {
		t.Error("run id should be set")
	}

	if got := f.read(t, "/site/dist/notes/hello-world.md"); got != "hello" {
		t.Errorf("published note = %q", got)
	}
	if got := f.read(t, "/site/dist/assets/img.png"); got != "png-bytes" {
		t.Errorf("published image = %q", got)
	}
	if !f.exists(reportPath) {
		t.Error("report should be saved")
	}
	if f.exists("/site/dist/app.json") || f.exists("/site/dist/assets/app.json") {
		t.Error(".obsidian contents must not be published")
	}

	if len(f.recorder.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(f.recorder.runs))
	}
	if r := f.recorder.runs[0]; r.RunID != sum.RunID || r.Added != 3 || !r.ColdStart {
		t.Errorf("recorded run = %+v", r)
	}
}

func TestRun_IdempotentRebuild(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	sum := f.run(t)
	if sum.ColdStart {
		t.Error("second run should load the report")
	}
	if diff := cmp.Diff(Counts{Cached: 3}, sum.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if len(sum.Changes) != 0 {
		t.Errorf("changes = %+v, want none", sum.Changes)
	}
	if sum.Publish == nil || len(sum.Publish.Operations) != 0 {
		t.Errorf("cached run should publish nothing, got %+v", sum.Publish)
	}
}

func TestRun_Rename(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	if err := f.fs.Rename("/vault/a.md", "/vault/b.md"); err != nil {
		t.Fatal(err)
	}
	sum := f.run(t)

	want := map[string]vault.BuildState{"/vault/b.md": vault.StateMoved}
	if diff := cmp.Diff(want, statesByOrigin(sum)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if f.exists("/site/dist/a.md") {
		t.Error("old artifact should be deleted")
	}
	if got := f.read(t, "/site/dist/b.md"); got != "alpha" {
		t.Errorf("moved artifact = %q", got)
	}
}

func TestRun_Edit(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	f.write(t, "/vault/a.md", "alpha, revised")
	sum := f.run(t)

	want := map[string]vault.BuildState{"/vault/a.md": vault.StateUpdated}
	if diff := cmp.Diff(want, statesByOrigin(sum)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if got := f.read(t, "/site/dist/a.md"); got != "alpha, revised" {
		t.Errorf("updated artifact = %q", got)
	}
}

func TestRun_Delete(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	if err := f.fs.Remove("/vault/Notes/Hello World.md"); err != nil {
		t.Fatal(err)
	}
	sum := f.run(t)

	if diff := cmp.Diff(Counts{Cached: 2, Removed: 1}, sum.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if f.exists("/site/dist/notes/hello-world.md") {
		t.Error("removed artifact should be deleted")
	}

	// REMOVED records are not persisted, so the next run forgets them.
	sum = f.run(t)
	if diff := cmp.Diff(Counts{Cached: 2}, sum.Counts); diff != "" {
		t.Errorf("follow-up counts mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ReAddAtVacatedPath(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	if err := f.fs.Rename("/vault/a.md", "/vault/b.md"); err != nil {
		t.Fatal(err)
	}
	f.write(t, "/vault/a.md", "brand new")
	sum := f.run(t)

	got := statesByOrigin(sum)
	if got["/vault/b.md"] != vault.StateMoved {
		t.Errorf("b.md state = %s, want MOVED", got["/vault/b.md"])
	}
	// a.md is walked before b.md, but the move is reconciled first.
	if s := got["/vault/a.md"]; s != vault.StateAdded {
		t.Errorf("a.md state = %s, want ADDED", s)
	}
	if sum.Counts.Removed != 0 {
		t.Errorf("nothing was removed, got %+v", sum.Counts)
	}
	if got := f.read(t, "/site/dist/a.md"); got != "brand new" {
		t.Errorf("a.md artifact = %q", got)
	}
	if got := f.read(t, "/site/dist/b.md"); got != "alpha" {
		t.Errorf("b.md artifact = %q", got)
	}
}

func TestRun_HealsMissingArtifact(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	if err := f.fs.Remove("/site/dist/a.md"); err != nil {
		t.Fatal(err)
	}
	sum := f.run(t)
	if sum.Counts.Cached != 3 {
		t.Errorf("counts = %+v", sum.Counts)
	}
	if got := f.read(t, "/site/dist/a.md"); got != "alpha" {
		t.Errorf("healed artifact = %q", got)
	}
}

func TestRun_Force(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	sum := f.run(t, func(o *Options) { o.Force = true })
	if !sum.ColdStart {
		t.Error("forced run should be a cold start")
	}
	if diff := cmp.Diff(Counts{Added: 3}, sum.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t)
	sum := f.run(t, func(o *Options) { o.DryRun = true })

	if sum.Saved {
		t.Error("dry run must not save")
	}
	if f.exists(reportPath) || f.exists(outputDir) {
		t.Error("dry run must not write the report or the output")
	}
	if sum.Publish == nil || sum.Publish.Count(publish.ActionCopy) != 3 {
		t.Errorf("dry run should plan 3 copies, got %+v", sum.Publish)
	}
	if len(f.recorder.runs) != 0 {
		t.Error("dry run must not be recorded")
	}
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	f.write(t, "/vault/c.md", "gamma")

	sum, err := f.builder(t).Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !sum.Planned || sum.Publish != nil || sum.Saved {
		t.Errorf("plan summary = %+v", sum)
	}
	want := map[string]vault.BuildState{"/vault/c.md": vault.StateAdded}
	if diff := cmp.Diff(want, statesByOrigin(sum)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if f.exists("/site/dist/c.md") {
		t.Error("plan must not publish")
	}

	// The plan left the report alone, so a real build still sees c.md as new.
	if got := f.run(t).Counts.Added; got != 1 {
		t.Errorf("Added after plan = %d, want 1", got)
	}
}

func TestRun_DuplicateContentAcrossRuns(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/vault/empty-a.md", "")
	f.write(t, "/vault/empty-c.md", "")
	f.run(t)

	f.write(t, "/vault/empty-a.md", "typed")
	sum := f.run(t)

	want := map[string]vault.BuildState{"/vault/empty-a.md": vault.StateUpdated}
	if diff := cmp.Diff(want, statesByOrigin(sum)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Counts{Updated: 1, Cached: 4}, sum.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if got := f.read(t, "/site/dist/empty-a.md"); got != "typed" {
		t.Errorf("empty-a.md output = %q, want typed", got)
	}
}

func TestRun_DuplicateContentIgnoresWalkOrder(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/vault/z.md", "same")
	f.run(t)

	// b.md sorts before z.md but z.md keeps the id the report knows.
	f.write(t, "/vault/b.md", "same")
	sum := f.run(t)

	want := map[string]vault.BuildState{"/vault/b.md": vault.StateAdded}
	if diff := cmp.Diff(want, statesByOrigin(sum)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CachedBuildPathShift(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/vault/a/cat.png", "AAAA")
	f.write(t, "/vault/b/cat.png", "BBBB")
	f.run(t)
	if got := f.read(t, "/site/dist/assets/cat-1.png"); got != "BBBB" {
		t.Fatalf("cat-1.png = %q, want BBBB", got)
	}

	if err := f.fs.Remove("/vault/a/cat.png"); err != nil {
		t.Fatal(err)
	}
	sum := f.run(t)

	if sum.Counts.Removed != 1 {
		t.Errorf("Removed = %d, want 1", sum.Counts.Removed)
	}
	if got := f.read(t, "/site/dist/assets/cat.png"); got != "BBBB" {
		t.Errorf("cat.png = %q, want BBBB", got)
	}
	if f.exists("/site/dist/assets/cat-1.png") {
		t.Error("cat-1.png should not be left behind")
	}

	// The next run finds everything in place.
	again := f.run(t)
	if again.Counts.Changed() != 0 || again.Publish.Count(publish.ActionCopy) != 0 {
		t.Errorf("third run should be a no-op: counts %+v, ops %+v", again.Counts, again.Publish.Operations)
	}
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.builder(t).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if f.exists(reportPath) {
		t.Error("cancelled run must not save the report")
	}
}

func TestRun_HistoryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errors.New("disk full")

	sum := f.run(t)
	if !sum.Saved {
		t.Error("history failures must not affect the build")
	}
}

func TestRun_ReportInsideVaultIsNotTracked(t *testing.T) {
	f := newFixture(t)
	f.run(t, func(o *Options) { o.ReportPath = "/vault/report.json" })

	sum := f.run(t, func(o *Options) { o.ReportPath = "/vault/report.json" })
	if diff := cmp.Diff(Counts{Cached: 3}, sum.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSummary_HistoryRun(t *testing.T) {
	s := &Summary{
		RunID:     "r1",
		Counts:    Counts{Added: 1, Cached: 4, Removed: 2},
		Failures:  []Failure{{Path: "/vault/x.md"}},
		Saved:     true,
		ColdStart: false,
	}
	got := s.HistoryRun()
	want := history.Run{RunID: "r1", Added: 1, Cached: 4, Removed: 2, Failed: 1, Saved: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HistoryRun mismatch (-want +got):\n%s", diff)
	}
	if s.Counts.Changed() != 3 || s.Counts.Total() != 7 {
		t.Errorf("Changed = %d, Total = %d", s.Counts.Changed(), s.Counts.Total())
	}
}
