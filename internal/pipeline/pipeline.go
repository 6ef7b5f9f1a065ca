// Package pipeline turns the photos of one item into a fused, categorized
// listing draft.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/raine/marktplatz-bot/internal/llm"
	"github.com/raine/marktplatz-bot/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxParallel bounds concurrent vision calls when Options leaves it unset.
const DefaultMaxParallel = 4

// ErrAllAnalysesFailed is returned when not a single image could be analyzed.
var ErrAllAnalysesFailed = errors.New("all image analyses failed")

// Image is one photo of the item. Err marks a photo that could not be fetched;
// it keeps its position so indexes still match the photos as sent.
type Image struct {
	Data     []byte
	MIMEType string
	Err      error
}

// ImageFailure records why the image at Index produced no analysis.
type ImageFailure struct {
	Index int
	Err   error
}

func (f ImageFailure) Error() string {
	return fmt.Sprintf("image %d: %v", f.Index, f.Err)
}

func (f ImageFailure) Unwrap() error {
	return f.Err
}

// CategorySource supplies the category tree.
type CategorySource interface {
	LoadCategories(ctx context.Context) ([]category.Node, error)
}

// ItemStore persists finished drafts.
type ItemStore interface {
	SaveItem(item *storage.StoredItem) (string, error)
}

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	Scorer         *analysis.Scorer
	Facts          *analysis.FactExtractor
	CategoryTables category.Tables
	Locale         string
	MaxParallel    int
}

// Result is the outcome of one pipeline run.
type Result struct {
	Merged     *analysis.MergedAnalysis
	Ranked     []analysis.ScoredAnalysis
	Resolution category.Resolution
	Tree       *category.Tree
	ImageCount int
	Failures   []ImageFailure
	Usage      llm.Usage
}

// CategoryPath renders the resolved category path, or "" when nothing resolved.
func (r *Result) CategoryPath(locale string) string {
	id, ok := r.Resolution.Selection.CategoryID()
	if !ok || r.Tree == nil {
		return ""
	}
	return r.Tree.PathLabel(id, locale)
}

// Pipeline analyzes images in parallel, then ranks, fuses and categorizes the
// results.
type Pipeline struct {
	analyzer llm.Analyzer
	source   CategorySource
	scorer   *analysis.Scorer
	fuser    *analysis.Fuser
	tables   category.Tables
	locale   string
	limit    int
}

// New creates a pipeline.
func New(analyzer llm.Analyzer, source CategorySource, opts Options) *Pipeline {
	p := &Pipeline{
		analyzer: analyzer,
		source:   source,
		scorer:   opts.Scorer,
		fuser:    analysis.NewFuser(opts.Facts),
		tables:   opts.CategoryTables,
		locale:   opts.Locale,
		limit:    opts.MaxParallel,
	}
	if p.scorer == nil {
		p.scorer = analysis.NewScorer(nil)
	}
	if p.locale == "" {
		p.locale = category.FallbackLocale
	}
	if p.limit < 1 {
		p.limit = DefaultMaxParallel
	}
	return p
}

// Locale returns the locale categories are matched and labelled in.
func (p *Pipeline) Locale() string {
	return p.locale
}

// Run analyzes every image and waits for all of them before continuing. Images
// that fail are reported in Result.Failures; the run only fails when none
// succeeded.
func (p *Pipeline) Run(ctx context.Context, images []Image) (*Result, error) {
	if len(images) == 0 {
		return nil, analysis.ErrNoAnalyses
	}

	results := p.analyzeAll(ctx, images)

	res := &Result{ImageCount: len(images)}
	var analyses []analysis.AnalysisResult
	var indexes []int
	for i, r := range results {
		if r.err != nil {
			res.Failures = append(res.Failures, ImageFailure{Index: i, Err: r.err})
			continue
		}
		analyses = append(analyses, *r.result.Analysis)
		indexes = append(indexes, i)
		res.Usage = res.Usage.Add(r.result.Usage)
	}

	if len(analyses) == 0 {
		errs := make([]error, len(res.Failures))
		for i, f := range res.Failures {
			errs[i] = f
		}
		return nil, fmt.Errorf("%w: %w", ErrAllAnalysesFailed, errors.Join(errs...))
	}

	ranked, err := p.scorer.RankIndexed(analyses, indexes)
	if err != nil {
		return nil, fmt.Errorf("failed to rank analyses: %w", err)
	}
	res.Ranked = ranked

	merged, err := p.fuser.Fuse(ranked)
	if err != nil {
		return nil, fmt.Errorf("failed to fuse analyses: %w", err)
	}
	res.Merged = merged

	res.Tree = p.loadTree(ctx)
	res.Resolution = category.NewResolver(res.Tree, p.tables, p.locale).Resolve(category.Request{
		Category:    merged.Category,
		Subcategory: merged.Subcategory,
		Text:        merged.Title + "\n" + merged.Description,
	})

	log.Info().
		Int("imageCount", len(images)).
		Int("failed", len(res.Failures)).
		Int("baseIndex", merged.BaseIndex).
		Int("facts", len(merged.Facts)).
		Str("categoryStatus", res.Resolution.Status.String()).
		Float64("costUSD", res.Usage.CostUSD).
		Msg("item analyzed")

	return res, nil
}

type imageOutcome struct {
	result *llm.Result
	err    error
}

func (p *Pipeline) analyzeAll(ctx context.Context, images []Image) []imageOutcome {
	outcomes := make([]imageOutcome, len(images))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, img := range images {
		g.Go(func() error {
			outcomes[i] = p.analyzeOne(ctx, i, img)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *Pipeline) analyzeOne(ctx context.Context, index int, img Image) imageOutcome {
	if img.Err != nil {
		return imageOutcome{err: img.Err}
	}
	if err := ctx.Err(); err != nil {
		return imageOutcome{err: err}
	}
	r, err := p.analyzer.AnalyzeImage(ctx, img.Data, img.MIMEType)
	if err != nil {
		log.Warn().Err(err).Int("index", index).Msg("image analysis failed")
		return imageOutcome{err: err}
	}
	if r == nil || r.Analysis == nil {
		return imageOutcome{err: errors.New("analyzer returned no analysis")}
	}
	if err := analysis.Validate(r.Analysis); err != nil {
		log.Warn().Err(err).Int("index", index).Msg("image analysis incomplete")
		return imageOutcome{err: err}
	}
	return imageOutcome{result: r}
}

// loadTree fetches the category tree. A failing source degrades to an empty
// tree so the item is still saved, just without a category.
func (p *Pipeline) loadTree(ctx context.Context) *category.Tree {
	if p.source == nil {
		return category.NewTree(nil)
	}
	nodes, err := p.source.LoadCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load categories")
		return category.NewTree(nil)
	}
	return category.NewTree(nodes)
}

// Persist saves the draft described by res and returns the stored item.
func Persist(store ItemStore, res *Result) (*storage.StoredItem, error) {
	if res == nil || res.Merged == nil {
		return nil, errors.New("nothing to persist")
	}
	m := res.Merged
	item := &storage.StoredItem{
		Title:          strings.TrimSpace(m.Title),
		Description:    m.Description,
		Price:          m.Price,
		CategoryStatus: res.Resolution.Status.String(),
		ImageCount:     res.ImageCount,
		FailedImages:   len(res.Failures),
		Analysis:       m.AnalysisResult,
	}
	if id, ok := res.Resolution.Selection.CategoryID(); ok {
		item.CategoryID = id
	}
	if _, err := store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("failed to persist item: %w", err)
	}
	return item, nil
}
