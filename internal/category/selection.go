package category

// Selection holds at most one node per level. If a level is set, every level
// above it is set as well and holds its ancestor.
type Selection struct {
	Level1 *Node `json:"level1,omitempty"`
	Level2 *Node `json:"level2,omitempty"`
	Level3 *Node `json:"level3,omitempty"`
	Level4 *Node `json:"level4,omitempty"`
}

// At returns the node at level, or nil.
func (s *Selection) At(level int) *Node {
	switch level {
	case 1:
		return s.Level1
	case 2:
		return s.Level2
	case 3:
		return s.Level3
	case 4:
		return s.Level4
	}
	return nil
}

func (s *Selection) set(level int, n *Node) {
	switch level {
	case 1:
		s.Level1 = n
	case 2:
		s.Level2 = n
	case 3:
		s.Level3 = n
	case 4:
		s.Level4 = n
	}
}

// Depth returns the number of consecutive levels set from the top.
func (s *Selection) Depth() int {
	depth := 0
	for level := 1; level <= MaxLevel; level++ {
		if s.At(level) == nil {
			break
		}
		depth = level
	}
	return depth
}

// Deepest returns the deepest resolved node, or nil when nothing resolved.
func (s *Selection) Deepest() *Node {
	return s.At(s.Depth())
}

// CategoryID returns the id of the deepest resolved node.
func (s *Selection) CategoryID() (string, bool) {
	if n := s.Deepest(); n != nil {
		return n.ID, true
	}
	return "", false
}

// Valid reports whether the selection satisfies the ancestor invariant.
func (s *Selection) Valid() bool {
	depth := s.Depth()
	for level := depth + 1; level <= MaxLevel; level++ {
		if s.At(level) != nil {
			return false
		}
	}
	for level := 1; level <= depth; level++ {
		n := s.At(level)
		if n.Level != level {
			return false
		}
		if level > 1 && n.ParentID != s.At(level-1).ID {
			return false
		}
	}
	return true
}
