package category

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Tier is a matching strategy of the resolver, from most to least precise.
type Tier string

const (
	TierDirect    Tier = "direct"
	TierSemantic  Tier = "semantic"
	TierInference Tier = "inference"
)

// Status summarizes how far resolution got.
type Status int

const (
	// StatusUnresolved means not even a top-level category matched.
	StatusUnresolved Status = iota
	// StatusPartial means only the top-level category matched.
	StatusPartial
	// StatusResolved means at least one level below the top matched.
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusPartial:
		return "partial"
	case StatusResolved:
		return "resolved"
	default:
		return "unresolved"
	}
}

// Attempt records one tier consulted for one level.
type Attempt struct {
	Level   int
	Tier    Tier
	Matched bool
	NodeID  string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Selection Selection
	Status    Status
	Trace     []Attempt
}

// Consulted reports whether tier was tried for level.
func (r *Resolution) Consulted(level int, tier Tier) bool {
	for _, a := range r.Trace {
		if a.Level == level && a.Tier == tier {
			return true
		}
	}
	return false
}

// MatchedBy returns the tier that resolved level, or "".
func (r *Resolution) MatchedBy(level int) Tier {
	for _, a := range r.Trace {
		if a.Level == level && a.Matched {
			return a.Tier
		}
	}
	return ""
}

// Request carries the free-text guesses for one item.
type Request struct {
	Category    string
	Subcategory string
	// Text is the item title and description, used by the inference tier.
	Text string
}

// Resolver maps free-text category guesses onto a Tree.
type Resolver struct {
	tree   *Tree
	tables Tables
	locale string
}

// NewResolver creates a resolver that compares against names in locale.
func NewResolver(tree *Tree, tables Tables, locale string) *Resolver {
	if tree == nil {
		tree = NewTree(nil)
	}
	if locale == "" {
		locale = FallbackLocale
	}
	normalized := Tables{
		Mappings: make(map[int]Mapping, len(tables.Mappings)),
		Rules:    tables.Rules,
	}
	for level, m := range tables.Mappings {
		normalized.Mappings[level] = m.Normalized()
	}
	return &Resolver{tree: tree, tables: normalized, locale: locale}
}

// Resolve walks the tree level by level. Each level below the top tries the
// direct, semantic and inference tiers in order and stops at the first match;
// a level that does not resolve ends the walk. Level four is only tried when
// the tables carry level-four entries.
func (r *Resolver) Resolve(req Request) Resolution {
	var res Resolution

	root := r.matchDirect(r.tree.Roots(), req.Category)
	res.Trace = append(res.Trace, Attempt{Level: 1, Tier: TierDirect, Matched: root != nil, NodeID: nodeID(root)})
	if root == nil {
		log.Debug().Str("category", req.Category).Msg("top-level category unresolved")
		res.Status = StatusUnresolved
		return res
	}
	res.Selection.Level1 = root

	text := strings.ToLower(req.Text)
	sub := strings.TrimSpace(req.Subcategory)

	for level := 2; level <= MaxLevel && r.tables.Covers(level); level++ {
		children := r.tree.Children(res.Selection.At(level - 1))
		if len(children) == 0 {
			break
		}

		node := r.resolveLevel(&res, level, children, sub, text)
		if node == nil {
			break
		}
		res.Selection.set(level, node)
	}

	res.Status = StatusPartial
	if res.Selection.Depth() > 1 {
		res.Status = StatusResolved
	}

	log.Debug().
		Str("category", req.Category).
		Str("subcategory", req.Subcategory).
		Int("depth", res.Selection.Depth()).
		Str("status", res.Status.String()).
		Msg("category resolved")

	return res
}

func (r *Resolver) resolveLevel(res *Resolution, level int, children []*Node, sub, text string) *Node {
	if sub != "" {
		node := r.matchDirect(children, sub)
		res.Trace = append(res.Trace, Attempt{Level: level, Tier: TierDirect, Matched: node != nil, NodeID: nodeID(node)})
		if node != nil {
			return node
		}

		node = r.matchSemantic(children, r.tables.Mapping(level).Candidates(sub))
		res.Trace = append(res.Trace, Attempt{Level: level, Tier: TierSemantic, Matched: node != nil, NodeID: nodeID(node)})
		if node != nil {
			return node
		}
	}

	node := r.matchInference(children, text, r.tables.Rules[level])
	res.Trace = append(res.Trace, Attempt{Level: level, Tier: TierInference, Matched: node != nil, NodeID: nodeID(node)})
	return node
}

// matchDirect finds the first node whose name contains or is contained in the
// free text, or whose slug is contained in the slugified free text.
func (r *Resolver) matchDirect(nodes []*Node, freeText string) *Node {
	text := normalize(freeText)
	if text == "" {
		return nil
	}
	textSlug := Slugify(freeText)

	for _, n := range nodes {
		for _, name := range r.names(n) {
			if strings.Contains(name, text) || strings.Contains(text, name) {
				return n
			}
		}
		slug := strings.ToLower(n.Slug)
		if slug != "" && textSlug != "" && strings.Contains(textSlug, slug) {
			return n
		}
	}
	return nil
}

// matchSemantic finds a node whose name or slug contains a candidate term.
// Earlier candidates take precedence.
func (r *Resolver) matchSemantic(nodes []*Node, candidates []string) *Node {
	for _, term := range candidates {
		for _, n := range nodes {
			if strings.Contains(strings.ToLower(n.Slug), term) {
				return n
			}
			for _, name := range r.names(n) {
				if strings.Contains(name, term) {
					return n
				}
			}
		}
	}
	return nil
}

// matchInference finds the first node whose name or slug occurs in the text, or
// that a special-case rule assigns to the text.
func (r *Resolver) matchInference(nodes []*Node, text string, rules []InferenceRule) *Node {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, n := range nodes {
		for _, name := range r.names(n) {
			if strings.Contains(text, name) {
				return n
			}
		}
		slug := strings.ToLower(n.Slug)
		if slug != "" {
			if strings.Contains(text, slug) || strings.Contains(text, strings.ReplaceAll(slug, "-", " ")) {
				return n
			}
		}
		for _, rule := range rules {
			if rule.Matches(slug, text) {
				return n
			}
		}
	}
	return nil
}

// names returns the normalized, non-empty names of n in the resolver locale and
// the fallback locale.
func (r *Resolver) names(n *Node) []string {
	var out []string
	if name := normalize(n.Name(r.locale)); name != "" {
		out = append(out, name)
	}
	if r.locale != FallbackLocale {
		if name := normalize(n.Name(FallbackLocale)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func nodeID(n *Node) string {
	if n == nil {
		return ""
	}
	return n.ID
}
