package analysis

import (
	"sort"
	"strings"
)

// MergedAnalysis is the canonical listing built from several analyses.
type MergedAnalysis struct {
	AnalysisResult

	// BaseIndex is the input index of the analysis the listing is based on.
	BaseIndex int `json:"-"`
	// Facts are the document lines appended to the description.
	Facts []string `json:"-"`
	// FactSources are the input indexes of the documents the facts came from.
	FactSources []int `json:"-"`
	// Provenance maps each non-empty vehicle field to the input index that supplied it.
	Provenance map[string]int `json:"-"`
}

// Fuser merges scored analyses into a MergedAnalysis.
type Fuser struct {
	facts *FactExtractor
}

// NewFuser creates a fuser. A nil extractor uses the default fact keywords.
func NewFuser(facts *FactExtractor) *Fuser {
	if facts == nil {
		facts = NewFactExtractor(nil, "")
	}
	return &Fuser{facts: facts}
}

// Fuse merges the scored analyses. scored must be sorted by descending score,
// as returned by Scorer.Rank; its head becomes the base of the listing.
func (f *Fuser) Fuse(scored []ScoredAnalysis) (*MergedAnalysis, error) {
	if len(scored) == 0 {
		return nil, ErrNoAnalyses
	}

	base := scored[0]
	acc := newAccumulator(base)

	if len(scored) == 1 {
		return acc.build(), nil
	}

	acc.collapseLists()

	// Merge the alternates in their original input order.
	others := make([]ScoredAnalysis, 0, len(scored)-1)
	others = append(others, scored[1:]...)
	sort.SliceStable(others, func(i, j int) bool {
		return others[i].Index < others[j].Index
	})
	for _, other := range others {
		acc.mergeLists(&other.Analysis)
		acc.fillVehicle(&other.Analysis, other.Index)
	}

	inputOrder := make([]ScoredAnalysis, len(scored))
	copy(inputOrder, scored)
	sort.SliceStable(inputOrder, func(i, j int) bool {
		return inputOrder[i].Index < inputOrder[j].Index
	})
	for _, s := range inputOrder {
		if !s.IsDocument || strings.TrimSpace(s.Analysis.Description) == "" {
			continue
		}
		facts := f.facts.Extract(s.Analysis.Description)
		if len(facts) == 0 {
			continue
		}
		acc.merged.Facts = append(acc.merged.Facts, facts...)
		acc.merged.FactSources = append(acc.merged.FactSources, s.Index)
	}

	if len(acc.merged.Facts) > 0 {
		acc.merged.Description = f.facts.AppendSection(acc.merged.Description, acc.merged.Facts)
	}

	return acc.build(), nil
}

// accumulator builds the merged listing and remembers where values came from.
type accumulator struct {
	merged MergedAnalysis
	seen   map[string]map[string]bool
}

func newAccumulator(base ScoredAnalysis) *accumulator {
	acc := &accumulator{
		merged: MergedAnalysis{
			AnalysisResult: base.Analysis.Clone(),
			BaseIndex:      base.Index,
			Provenance:     make(map[string]int),
		},
		seen: make(map[string]map[string]bool),
	}
	for _, field := range vehicleFields {
		if *field.ptr(&acc.merged.AnalysisResult) != "" {
			acc.merged.Provenance[field.name] = base.Index
		}
	}
	return acc
}

// collapseLists removes duplicates from the base lists, keeping first occurrences.
func (a *accumulator) collapseLists() {
	for _, field := range listFields {
		list := field.ptr(&a.merged.AnalysisResult)
		seen := make(map[string]bool, len(*list))
		var out []string
		for _, v := range *list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
		*list = out
		a.seen[field.name] = seen
	}
}

func (a *accumulator) mergeLists(other *AnalysisResult) {
	for _, field := range listFields {
		list := field.ptr(&a.merged.AnalysisResult)
		seen := a.seen[field.name]
		for _, v := range *field.ptr(other) {
			if seen[v] {
				continue
			}
			seen[v] = true
			*list = append(*list, v)
		}
	}
}

// fillVehicle copies vehicle fields the listing still lacks. The first
// analysis to supply a value wins.
func (a *accumulator) fillVehicle(other *AnalysisResult, index int) {
	for _, field := range vehicleFields {
		dst := field.ptr(&a.merged.AnalysisResult)
		if strings.TrimSpace(*dst) != "" {
			continue
		}
		src := *field.ptr(other)
		if strings.TrimSpace(src) == "" {
			continue
		}
		*dst = src
		a.merged.Provenance[field.name] = index
	}
}

func (a *accumulator) build() *MergedAnalysis {
	m := a.merged
	return &m
}
