package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/fusion"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/storage"
)

// Default ranking parameters.
const (
	DefaultAlpha        = 0.7
	DefaultRecallMargin = 40
)

// VectorRecaller returns nearest neighbours of a query vector, best first.
type VectorRecaller interface {
	SearchKNN(query []float32, k int) ([]core.Candidate, error)
}

// KeywordRecaller returns text matches for a query, best first.
type KeywordRecaller interface {
	Search(query string, k int) []core.Candidate
}

// Request describes one pipeline run. At least one of Vector and Text must
// be set; when both are, vector and keyword recall are fused.
type Request struct {
	Vector  []float32
	Text    string
	K       int
	Exclude *roaring64.Bitmap // Item ids never returned; may be nil
}

// Pipeline ranks items for a request: recall, filter, then blend relevance
// with popularity.
type Pipeline struct {
	vectors  VectorRecaller
	keywords KeywordRecaller
	items    storage.ItemRepository
	ranker   *fusion.Ranker
	alpha    float64
	margin   int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithAlpha sets the weight of relevance in the final score; popularity gets
// 1 - alpha.
// Default is 0.7.
func WithAlpha(alpha float64) Option {
	return func(p *Pipeline) error {
		if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
			return fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
		}
		p.alpha = alpha
		return nil
	}
}

// WithRecallMargin sets how many candidates beyond K recall fetches.
// Default is 40.
func WithRecallMargin(margin int) Option {
	return func(p *Pipeline) error {
		if margin < 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidMargin, margin)
		}
		p.margin = margin
		return nil
	}
}

// WithFusion sets the ranker used to merge vector and keyword recall.
// Default is fusion.NewRanker(fusion.DefaultK).
func WithFusion(ranker *fusion.Ranker) Option {
	return func(p *Pipeline) error {
		if ranker != nil {
			p.ranker = ranker
		}
		return nil
	}
}

// WithMetrics reports filtered candidate counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// NewPipeline creates a scoring pipeline over the given indexes and item store.
func NewPipeline(
	vectors VectorRecaller,
	keywords KeywordRecaller,
	items storage.ItemRepository,
	opts ...Option,
) (*Pipeline, error) {
	if vectors == nil {
		return nil, ErrVectorIndexRequired
	}
	if keywords == nil {
		return nil, ErrKeywordIndexRequired
	}
	if items == nil {
		return nil, ErrItemRepositoryRequired
	}

	p := &Pipeline{
		vectors:  vectors,
		keywords: keywords,
		items:    items,
		ranker:   fusion.NewRanker(fusion.DefaultK),
		alpha:    DefaultAlpha,
		margin:   DefaultRecallMargin,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Alpha returns the relevance weight.
func (p *Pipeline) Alpha() float64 {
	return p.alpha
}

// RecallMargin returns the number of extra candidates recalled beyond K.
func (p *Pipeline) RecallMargin() int {
	return p.margin
}

// Run executes req. The monitor may be nil.
func (p *Pipeline) Run(ctx context.Context, req Request, monitor SearchMonitor) (*core.RankedResult, error) {
	if req.K <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, req.K)
	}
	if len(req.Vector) == 0 && req.Text == "" {
		return nil, ErrEmptyRequest
	}
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(req)

	// 1. Recall
	candidates, rawSimilarity, err := p.recall(req, monitor)
	if err != nil {
		return nil, err
	}
	recalled := len(candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Filter
	candidates, filtered := filterExcluded(candidates, req.Exclude)
	monitor.AfterFilter(candidates, filtered)
	p.metrics.AddFiltered(filtered)

	result := &core.RankedResult{
		Items:         []core.ScoredItem{},
		FilteredCount: filtered,
		Candidates:    recalled,
	}
	if len(candidates) == 0 {
		monitor.Finish(result)
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Rank
	ids := make([]core.ID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ItemId
	}
	items, err := p.items.GetItems(ctx, ids...)
	if err != nil {
		p.logger.Error("error retrieving candidate items", "count", len(ids), "err", err)
		return nil, err
	}
	byID := make(map[core.ID]*core.Item, len(items))
	for _, item := range items {
		byID[item.Id] = item
	}
	if missing := len(candidates) - len(byID); missing > 0 {
		p.logger.Warn("recalled items missing from store", "missing", missing)
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if _, ok := byID[c.ItemId]; ok {
			kept = append(kept, c)
		}
	}
	candidates = kept

	relevance := make([]float64, len(candidates))
	popularity := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = float64(c.Score)
		popularity[i] = float64(byID[c.ItemId].Popularity)
	}
	if !rawSimilarity {
		minMax(relevance)
	}
	minMax(popularity)

	scored := make([]core.ScoredItem, len(candidates))
	for i, c := range candidates {
		final := p.alpha*relevance[i] + (1-p.alpha)*popularity[i]
		scored[i] = core.ScoredItem{
			ItemId:     c.ItemId,
			FinalScore: float32(final),
			Similarity: float32(relevance[i]),
			Popularity: float32(popularity[i]),
			Item:       byID[c.ItemId],
		}
	}
	slices.SortStableFunc(scored, func(a, b core.ScoredItem) int {
		if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemId, b.ItemId)
	})
	if len(scored) > req.K {
		scored = scored[:req.K]
	}

	result.Items = scored
	monitor.Finish(result)
	return result, nil
}

// recall gathers candidates for req. The boolean reports whether scores are
// raw cosine similarities rather than values needing normalization.
func (p *Pipeline) recall(req Request, monitor SearchMonitor) ([]core.Candidate, bool, error) {
	k := req.K + p.margin

	var vectorHits, keywordHits []core.Candidate
	if len(req.Vector) > 0 {
		hits, err := p.vectors.SearchKNN(req.Vector, k)
		if err != nil {
			p.logger.Error("error querying vector index", "k", k, "err", err)
			return nil, false, err
		}
		vectorHits = hits
		monitor.AfterRecall(SourceVector, vectorHits)
	}
	if req.Text != "" {
		keywordHits = p.keywords.Search(req.Text, k)
		monitor.AfterRecall(SourceKeyword, keywordHits)
	}

	switch {
	case len(req.Vector) > 0 && req.Text != "":
		fused := p.ranker.Fuse(vectorHits, keywordHits)
		monitor.AfterFusion(fused)
		return fused, false, nil
	case len(req.Vector) > 0:
		return vectorHits, true, nil
	default:
		return keywordHits, false, nil
	}
}

// filterExcluded drops candidates whose id is in exclude and reports how many
// were removed.
func filterExcluded(candidates []core.Candidate, exclude *roaring64.Bitmap) ([]core.Candidate, int) {
	if exclude == nil || exclude.IsEmpty() {
		return candidates, 0
	}
	kept := make([]core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if exclude.Contains(uint64(c.ItemId)) {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(candidates) - len(kept)
}

// minMax rescales values in place to [0, 1]. A constant slice maps to 0.5.
func minMax(values []float64) {
	if len(values) == 0 {
		return
	}
	lo, hi := slices.Min(values), slices.Max(values)
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			values[i] = 0.5
			continue
		}
		values[i] = (v - lo) / span
	}
}
