package vault

import (
	"errors"
	"path/filepath"
	"strings"
)

// BuildState is the classification assigned to an artifact by the most
// recent reconciliation pass.
type BuildState string

const (
	StateAdded   BuildState = "ADDED"
	StateUpdated BuildState = "UPDATED"
	StateCached  BuildState = "CACHED"
	StateMoved   BuildState = "MOVED"
	StateRemoved BuildState = "REMOVED"
)

// States lists every build state in report order.
var States = []BuildState{StateAdded, StateUpdated, StateCached, StateMoved, StateRemoved}

// BuildPath pairs the source path of an artifact with its output path.
type BuildPath struct {
	Origin string `json:"origin"`
	Build  string `json:"build"`
}

// BuildInfo is the identity and classification injected into a node.
type BuildInfo struct {
	ID         string
	BuildPath  BuildPath
	BuildState BuildState // empty until reconciled
}

// Node is a file or folder observed in the vault.
type Node struct {
	AbsolutePath string
	FileName     string // base name, with extension
	Category     Category
	Depth        int // root is 0
	Parent       *Node
	Children     []*Node

	BuildInfo *BuildInfo
}

// SkipChildren is returned by a walk function to skip a node's subtree.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for each node during a walk.
type WalkFunc func(n *Node) error

// InjectBuildInfo sets the node's build info.
func (n *Node) InjectBuildInfo(info BuildInfo) {
	n.BuildInfo = &info
}

// IsFolder reports whether the node is a directory.
func (n *Node) IsFolder() bool {
	return n.Category == CategoryFolder
}

// Stem returns the file name without its extension.
func (n *Node) Stem() string {
	return strings.TrimSuffix(n.FileName, filepath.Ext(n.FileName))
}

// WalkDFS visits n and its descendants depth-first, pre-order, children in order.
// Returning SkipChildren from fn prunes the node's subtree; any other error stops the walk.
func (n *Node) WalkDFS(fn WalkFunc) error {
	err := n.walkDFS(fn)
	if errors.Is(err, SkipChildren) {
		return nil
	}
	return err
}

func (n *Node) walkDFS(fn WalkFunc) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := child.walkDFS(fn); err != nil {
			if errors.Is(err, SkipChildren) {
				continue
			}
			return err
		}
	}
	return nil
}

// WalkBFS visits n and its descendants level by level.
// Returning SkipChildren from fn prunes the node's subtree; any other error stops the walk.
func (n *Node) WalkBFS(fn WalkFunc) error {
	queue := []*Node{n}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if err := fn(node); err != nil {
			if errors.Is(err, SkipChildren) {
				continue
			}
			return err
		}
		queue = append(queue, node.Children...)
	}
	return nil
}

// Files returns all non-folder nodes under n in DFS order.
func (n *Node) Files() []*Node {
	var files []*Node
	_ = n.WalkDFS(func(node *Node) error {
		if !node.IsFolder() {
			files = append(files, node)
		}
		return nil
	})
	return files
}
