// Package category resolves free-text category guesses into the marketplace
// category tree.
package category

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxLevel is the deepest level of the category hierarchy.
const MaxLevel = 4

// FallbackLocale is consulted when a node has no translation for the requested locale.
const FallbackLocale = "en"

// Translation is a localized category name.
type Translation struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Node is a category as supplied by the category store.
type Node struct {
	ID           string                 `json:"id"`
	Level        int                    `json:"level"`
	ParentID     string                 `json:"parent_id,omitempty"` // empty for top-level nodes
	Slug         string                 `json:"slug"`
	Translations map[string]Translation `json:"translations"`
}

// Name returns the translated name for locale, or "" if there is none.
func (n *Node) Name(locale string) string {
	if n.Translations == nil {
		return ""
	}
	return n.Translations[locale].Name
}

// Label returns the best display name: locale, then English, then slug.
func (n *Node) Label(locale string) string {
	if name := n.Name(locale); name != "" {
		return name
	}
	if name := n.Name(FallbackLocale); name != "" {
		return name
	}
	return n.Slug
}

// Tree indexes category nodes for level-by-level navigation.
type Tree struct {
	nodeByID map[string]*Node
	byLevel  map[int][]*Node
	children map[string][]*Node
}

// NewTree builds a tree from a flat node list. Nodes with an empty id, a level
// outside 1..MaxLevel, or a missing parent reference below level 1 are skipped.
// Input order is preserved among siblings.
func NewTree(nodes []Node) *Tree {
	t := &Tree{
		nodeByID: make(map[string]*Node, len(nodes)),
		byLevel:  make(map[int][]*Node),
		children: make(map[string][]*Node),
	}

	for i := range nodes {
		n := nodes[i]
		if !isWellFormed(&n) {
			log.Warn().Str("id", n.ID).Int("level", n.Level).Str("slug", n.Slug).Msg("skipping malformed category node")
			continue
		}
		if _, exists := t.nodeByID[n.ID]; exists {
			log.Warn().Str("id", n.ID).Msg("skipping duplicate category node")
			continue
		}
		t.nodeByID[n.ID] = &n
		t.byLevel[n.Level] = append(t.byLevel[n.Level], &n)
	}

	for _, level := range []int{2, 3, 4} {
		for _, n := range t.byLevel[level] {
			t.children[n.ParentID] = append(t.children[n.ParentID], n)
		}
	}

	return t
}

func isWellFormed(n *Node) bool {
	if strings.TrimSpace(n.ID) == "" || n.Level < 1 || n.Level > MaxLevel {
		return false
	}
	if n.Level > 1 && n.ParentID == "" {
		return false
	}
	return true
}

// Len returns the number of indexed nodes.
func (t *Tree) Len() int {
	return len(t.nodeByID)
}

// GetNode returns the node for id, or nil.
func (t *Tree) GetNode(id string) *Node {
	return t.nodeByID[id]
}

// Roots returns the level-1 nodes.
func (t *Tree) Roots() []*Node {
	return t.byLevel[1]
}

// Children returns the nodes one level below parent whose parent is parent.
func (t *Tree) Children(parent *Node) []*Node {
	if parent == nil {
		return nil
	}
	var out []*Node
	for _, c := range t.children[parent.ID] {
		if c.Level == parent.Level+1 {
			out = append(out, c)
		}
	}
	return out
}

// Path returns the chain of nodes from the root down to id, or nil if id is unknown
// or its ancestry is broken.
func (t *Tree) Path(id string) []*Node {
	node := t.nodeByID[id]
	var path []*Node
	for node != nil {
		path = append([]*Node{node}, path...)
		if node.Level == 1 {
			return path
		}
		parent := t.nodeByID[node.ParentID]
		if parent == nil || parent.Level != node.Level-1 {
			return nil
		}
		node = parent
	}
	return nil
}

// PathLabel renders the path to id as "A > B > C".
func (t *Tree) PathLabel(id, locale string) string {
	path := t.Path(id)
	labels := make([]string, len(path))
	for i, n := range path {
		labels[i] = n.Label(locale)
	}
	return strings.Join(labels, " > ")
}
