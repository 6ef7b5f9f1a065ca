package category

import "strings"

// Mapping maps a normalized keyword to candidate terms for one hierarchy level.
// It is consulted when the free text does not directly match a category.
type Mapping map[string][]string

// Candidates returns the candidate terms for keyword, or nil.
func (m Mapping) Candidates(keyword string) []string {
	if m == nil {
		return nil
	}
	return m[normalize(keyword)]
}

// Normalized returns a copy with lower-cased, trimmed keys and terms.
func (m Mapping) Normalized() Mapping {
	out := make(Mapping, len(m))
	for k, terms := range m {
		key := normalize(k)
		if key == "" {
			continue
		}
		for _, term := range terms {
			term = normalize(term)
			if term != "" {
				out[key] = append(out[key], term)
			}
		}
	}
	return out
}

// InferenceRule is a special case for the text inference tier: a category whose
// slug contains one of SlugTokens matches when the item text mentions one of
// TextKeywords, e.g. a car category for a text naming a car brand.
type InferenceRule struct {
	SlugTokens   []string `yaml:"slugTokens" json:"slugTokens"`
	TextKeywords []string `yaml:"textKeywords" json:"textKeywords"`
}

// Matches reports whether the rule applies to a node slug and a lower-cased text.
func (r InferenceRule) Matches(slug, text string) bool {
	slug = strings.ToLower(slug)
	slugHit := false
	for _, tok := range r.SlugTokens {
		tok = normalize(tok)
		if tok != "" && strings.Contains(slug, tok) {
			slugHit = true
			break
		}
	}
	if !slugHit {
		return false
	}
	for _, kw := range r.TextKeywords {
		kw = normalize(kw)
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Tables bundles the per-level semantic mappings and inference rules.
type Tables struct {
	Mappings map[int]Mapping
	Rules    map[int][]InferenceRule
}

// Mapping returns the mapping for level, or nil.
func (t Tables) Mapping(level int) Mapping {
	return t.Mappings[level]
}

// Covers reports whether the resolver should descend to level. Levels up to
// three are always tried; deeper levels need a mapping or rule of their own.
func (t Tables) Covers(level int) bool {
	if level <= 3 {
		return true
	}
	return len(t.Mappings[level]) > 0 || len(t.Rules[level]) > 0
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var slugReplacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// Slugify turns free text into slug form: lower case, umlauts transliterated,
// runs of other characters collapsed to a single dash.
func Slugify(s string) string {
	s = slugReplacer.Replace(strings.ToLower(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
