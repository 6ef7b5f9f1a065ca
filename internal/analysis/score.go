package analysis

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Scoring weights.
const (
	documentPenalty   = 1000.0
	brandBonus        = 100.0
	featureWeight     = 10.0
	descriptionDivide = 10.0
	coverImageBonus   = 1.0
)

// DefaultDocumentKeywords are German stems that mark a photo of a paper document
// rather than of the item itself.
var DefaultDocumentKeywords = []string{
	"zertifikat",
	"dokument",
	"papier",
	"fahrzeugschein",
	"fahrzeugbrief",
	"zulassungsbescheinigung",
	"brief",
	"urkunde",
	"rechnung",
	"quittung",
	"bescheinigung",
	"gutachten",
}

// ScoredAnalysis is an analysis with its trust score.
type ScoredAnalysis struct {
	Analysis   AnalysisResult
	Score      float64
	Index      int // position in the input sequence
	IsDocument bool
}

// Scorer ranks analyses by how likely they describe the sellable item.
type Scorer struct {
	documentKeywords []string
}

// NewScorer creates a scorer. A nil keyword list falls back to DefaultDocumentKeywords.
func NewScorer(documentKeywords []string) *Scorer {
	if documentKeywords == nil {
		documentKeywords = DefaultDocumentKeywords
	}
	kws := make([]string, 0, len(documentKeywords))
	for _, kw := range documentKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	return &Scorer{documentKeywords: kws}
}

// IsDocument reports whether the title names a paper document.
func (s *Scorer) IsDocument(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range s.documentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Score computes the additive trust score for a single analysis.
func (s *Scorer) Score(a AnalysisResult, index int) ScoredAnalysis {
	isDoc := s.IsDocument(a.Title)

	score := 0.0
	if isDoc {
		score -= documentPenalty
	}
	score += a.PriceValue()
	score += float64(utf8.RuneCountInString(a.Description)) / descriptionDivide
	if strings.TrimSpace(a.Brand) != "" {
		score += brandBonus
	}
	score += featureWeight * float64(len(a.Features))
	if index == 0 {
		score += coverImageBonus
	}

	return ScoredAnalysis{
		Analysis:   a,
		Score:      score,
		Index:      index,
		IsDocument: isDoc,
	}
}

// Rank validates and scores all analyses and sorts them by descending score.
// Equal scores keep their input order.
func (s *Scorer) Rank(analyses []AnalysisResult) ([]ScoredAnalysis, error) {
	indexes := make([]int, len(analyses))
	for i := range analyses {
		indexes[i] = i
	}
	return s.RankIndexed(analyses, indexes)
}

// RankIndexed is like Rank but takes the original input position of every
// analysis, for callers that dropped some inputs before scoring.
func (s *Scorer) RankIndexed(analyses []AnalysisResult, indexes []int) ([]ScoredAnalysis, error) {
	if len(analyses) == 0 {
		return nil, ErrNoAnalyses
	}
	if len(indexes) != len(analyses) {
		return nil, fmt.Errorf("got %d indexes for %d analyses", len(indexes), len(analyses))
	}

	scored := make([]ScoredAnalysis, len(analyses))
	for i := range analyses {
		if err := validateAt(&analyses[i], indexes[i]); err != nil {
			return nil, err
		}
		scored[i] = s.Score(analyses[i].Clone(), indexes[i])
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored, nil
}
