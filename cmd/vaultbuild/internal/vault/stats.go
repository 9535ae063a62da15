package vault

// Stats counts nodes per category.
type Stats struct {
	Folders int `json:"folders"`
	Text    int `json:"text"`
	Images  int `json:"images"`
	Audio   int `json:"audio"`
	Unknown int `json:"unknown"`
}

// Files returns the number of non-folder nodes.
func (s Stats) Files() int {
	return s.Text + s.Images + s.Audio + s.Unknown
}

// CountCategories walks root and counts every node below it.
// The root itself is not counted.
func CountCategories(root *Node) Stats {
	var s Stats
	if root == nil {
		return s
	}
	_ = root.WalkDFS(func(n *Node) error {
		if n == root {
			return nil
		}
		switch n.Category {
		case CategoryFolder:
			s.Folders++
		case CategoryText:
			s.Text++
		case CategoryImage:
			s.Images++
		case CategoryAudio:
			s.Audio++
		default:
			s.Unknown++
		}
		return nil
	})
	return s
}
