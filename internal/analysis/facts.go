package analysis

import (
	"regexp"
	"strings"
)

// DefaultFactHeader labels the section appended to the merged description.
const DefaultFactHeader = "Angaben aus Dokumenten:"

// DefaultFactKeywords mark lines in a document photo worth keeping, in addition
// to lines with a colon, a year or a mileage.
var DefaultFactKeywords = []string{
	"tüv",
	"hauptuntersuchung",
	"hu bis",
	"erstzulassung",
	"baujahr",
}

var (
	yearPattern    = regexp.MustCompile(`\b\d{4}\b`)
	mileagePattern = regexp.MustCompile(`(?i)\d[\d.,]*\s*km\b`)
)

// FactExtractor picks fact-like lines out of document descriptions.
type FactExtractor struct {
	keywords []string
	header   string
}

// NewFactExtractor creates an extractor. Nil keywords and an empty header fall
// back to the defaults.
func NewFactExtractor(keywords []string, header string) *FactExtractor {
	if keywords == nil {
		keywords = DefaultFactKeywords
	}
	if header == "" {
		header = DefaultFactHeader
	}
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	return &FactExtractor{keywords: kws, header: header}
}

// IsFact reports whether a single line qualifies as a fact.
func (f *FactExtractor) IsFact(line string) bool {
	if strings.Contains(line, ":") {
		return true
	}
	if yearPattern.MatchString(line) || mileagePattern.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Extract returns the trimmed qualifying lines of text, in order.
func (f *FactExtractor) Extract(text string) []string {
	var facts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !f.IsFact(line) {
			continue
		}
		facts = append(facts, line)
	}
	return facts
}

// AppendSection appends the facts to description as a labelled bullet list.
func (f *FactExtractor) AppendSection(description string, facts []string) string {
	if len(facts) == 0 {
		return description
	}
	var b strings.Builder
	b.WriteString(description)
	b.WriteString("\n\n")
	b.WriteString(f.header)
	for _, fact := range facts {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(fact))
	}
	return b.String()
}
