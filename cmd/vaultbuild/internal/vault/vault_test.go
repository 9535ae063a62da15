package vault

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.FileName)
	}
	return out
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		want Category
	}{
		{"note.md", CategoryText},
		{"Note.MD", CategoryText},
		{"long.markdown", CategoryText},
		{"photo.JPG", CategoryImage},
		{"diagram.svg", CategoryImage},
		{"voice.m4a", CategoryAudio},
		{"clip.webm", CategoryAudio},
		{"data.csv", CategoryUnknown},
		{"Makefile", CategoryUnknown},
	}

	for _, tt := range tests {
		if got := CategoryOf(tt.name); got != tt.want {
			t.Errorf("CategoryOf(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestCategoryIsTracked(t *testing.T) {
	if CategoryFolder.IsTracked() {
		t.Error("folders should not be tracked")
	}
	for _, c := range []Category{CategoryText, CategoryImage, CategoryAudio, CategoryUnknown} {
		if !c.IsTracked() {
			t.Errorf("%s should be tracked", c)
		}
	}
}

func TestParse(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/vault/b.md":                    "b",
		"/vault/a.md":                    "a",
		"/vault/img/cat.png":             "png",
		"/vault/notes/deep/c.md":         "c",
		"/vault/.obsidian/app.json":      "{}",
		"/vault/.trash/old.md":           "old",
		"/vault/.hidden.md":              "hidden",
		"/vault/templates/daily.md":      "tpl",
		"/vault/dist/index.md":           "built",
		"/vault/node_modules/x/index.js": "js",
	})

	root, err := Parse(context.Background(), fs, "/vault", ParseOptions{
		Ignore:       []string{"templates/**"},
		ExcludePaths: []string{"/vault/dist"},
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if diff := cmp.Diff([]string{"a.md", "b.md", "img", "notes"}, names(root.Children)); diff != "" {
		t.Errorf("root children mismatch (-want +got):\n%s", diff)
	}

	files := root.Files()
	var paths []string
	for _, f := range files {
		paths = append(paths, f.AbsolutePath)
	}
	want := []string{"/vault/a.md", "/vault/b.md", "/vault/img/cat.png", "/vault/notes/deep/c.md"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	deep := files[3]
	if deep.Depth != 3 {
		t.Errorf("depth of c.md = %d, want 3", deep.Depth)
	}
	if deep.Parent == nil || deep.Parent.FileName != "deep" {
		t.Error("c.md parent should be deep/")
	}
	if files[2].Category != CategoryImage {
		t.Errorf("cat.png category = %s", files[2].Category)
	}
}

func TestParse_IncludeHidden(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/vault/.hidden.md":         "hidden",
		"/vault/.obsidian/app.json": "{}",
	})

	root, err := Parse(context.Background(), fs, "/vault", ParseOptions{IncludeHidden: true})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]string{".hidden.md"}, names(root.Children)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/vault/a.md": "a"})

	if _, err := Parse(context.Background(), fs, "/missing", ParseOptions{}); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := Parse(context.Background(), fs, "/vault/a.md", ParseOptions{}); err == nil {
		t.Error("expected error for file root")
	}
	if _, err := Parse(context.Background(), fs, "/vault", ParseOptions{Ignore: []string{"[oops"}}); err == nil {
		t.Error("expected error for invalid glob")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Parse(ctx, fs, "/vault", ParseOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled parse error = %v, want context.Canceled", err)
	}
}

func tree() *Node {
	root := &Node{FileName: "root", Category: CategoryFolder}
	a := &Node{FileName: "a", Category: CategoryFolder, Parent: root, Depth: 1}
	b := &Node{FileName: "b.md", Category: CategoryText, Parent: root, Depth: 1}
	a1 := &Node{FileName: "a1.md", Category: CategoryText, Parent: a, Depth: 2}
	a2 := &Node{FileName: "a2.png", Category: CategoryImage, Parent: a, Depth: 2}
	a.Children = []*Node{a1, a2}
	root.Children = []*Node{a, b}
	return root
}

func TestWalkOrder(t *testing.T) {
	root := tree()

	var dfs, bfs []*Node
	if err := root.WalkDFS(func(n *Node) error { dfs = append(dfs, n); return nil }); err != nil {
		t.Fatal(err)
	}
	if err := root.WalkBFS(func(n *Node) error { bfs = append(bfs, n); return nil }); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"root", "a", "a1.md", "a2.png", "b.md"}, names(dfs)); diff != "" {
		t.Errorf("DFS order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"root", "a", "b.md", "a1.md", "a2.png"}, names(bfs)); diff != "" {
		t.Errorf("BFS order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkSkipChildren(t *testing.T) {
	root := tree()
	skipA := func(visited *[]*Node) WalkFunc {
		return func(n *Node) error {
			*visited = append(*visited, n)
			if n.FileName == "a" {
				return SkipChildren
			}
			return nil
		}
	}

	var dfs, bfs []*Node
	if err := root.WalkDFS(skipA(&dfs)); err != nil {
		t.Fatal(err)
	}
	if err := root.WalkBFS(skipA(&bfs)); err != nil {
		t.Fatal(err)
	}
	want := []string{"root", "a", "b.md"}
	if diff := cmp.Diff(want, names(dfs)); diff != "" {
		t.Errorf("DFS mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, names(bfs)); diff != "" {
		t.Errorf("BFS mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	var seen int
	err := tree().WalkDFS(func(n *Node) error {
		seen++
		if n.FileName == "a1.md" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("WalkDFS error = %v, want stop", err)
	}
	if seen != 3 {
		t.Errorf("visited %d nodes, want 3", seen)
	}
}

func TestInjectBuildInfo(t *testing.T) {
	n := &Node{FileName: "My Note.md", Category: CategoryText}
	info := BuildInfo{ID: "abc", BuildPath: BuildPath{Origin: "/v/My Note.md", Build: "/o/my-note.md"}}
	n.InjectBuildInfo(info)

	info.ID = "mutated"
	if n.BuildInfo == nil || n.BuildInfo.ID != "abc" {
		t.Error("InjectBuildInfo should store a copy")
	}
	if n.Stem() != "My Note" {
		t.Errorf("Stem() = %q", n.Stem())
	}
}

func TestCountCategories(t *testing.T) {
	s := CountCategories(tree())
	want := Stats{Folders: 1, Text: 2, Images: 1}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if s.Files() != 3 {
		t.Errorf("Files() = %d, want 3", s.Files())
	}
	if CountCategories(nil) != (Stats{}) {
		t.Error("nil root should count nothing")
	}
}
