package learning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/feedback"
	"github.com/docgraph/backend/internal/graph"
	"github.com/docgraph/backend/internal/metrics"
	"github.com/docgraph/backend/pkg/config"
	"github.com/docgraph/backend/pkg/logger"
)

// ErrLearningBusy is returned by TryTriggerLearning and TryPruneWeak when
// another learning pass or prune holds the serialization lock.
var ErrLearningBusy = errors.New("learning pass already in progress")

// Stats reports what a learning pass did.
type Stats struct {
	AnalyzedFeedback          int
	NewRelationships          int
	StrengthenedRelationships int
	DiscoveredPatterns        int
}

// FeedbackLog is the slice of the feedback store the engine reads.
type FeedbackLog interface {
	Record(ctx context.Context, event *feedback.Event) (string, error)
	QueryEvents(ctx context.Context, q feedback.Query) ([]feedback.Event, error)
	SourceAggregates(ctx context.Context) ([]feedback.SourceAggregate, error)
}

// Engine coordinates the feedback store, the analyzers and the graph
// store. Learning passes and prunes are serialized by a single mutex:
// passes read-then-write the same edges, and two passes over overlapping
// windows would double-apply the EMA update. Feedback recording never
// takes that lock.
type Engine struct {
	log     FeedbackLog
	graph   graph.Store
	updater *Updater
	miner   *Miner
	cfg     config.LearningConfig

	mu           sync.Mutex
	learnPending atomic.Bool
}

func NewEngine(log FeedbackLog, store graph.Store, cfg config.LearningConfig) *Engine {
	return &Engine{
		log:     log,
		graph:   store,
		updater: NewUpdater(store, cfg.LearningRate, cfg.StrengthThreshold),
		miner:   NewMiner(nil),
		cfg:     cfg,
	}
}

// RecordFeedback appends the event to the log and returns its ID. When
// auto-learning is enabled and the event is positive, a background pass is
// scheduled; its failures are logged, never surfaced to the caller.
func (e *Engine) RecordFeedback(ctx context.Context, event *feedback.Event) (string, error) {
	id, err := e.log.Record(ctx, event)
	if err != nil {
		return "", err
	}

	metrics.FeedbackRecorded.WithLabelValues(positivityLabel(event)).Inc()

	if e.cfg.AutoLearn && event.Positive() {
		e.scheduleLearning()
	}

	return id, nil
}

// scheduleLearning queues at most one background pass behind whatever is
// currently running. A pass reads the log at execution time, so an event
// arriving while one is already queued will be covered by it.
func (e *Engine) scheduleLearning() {
	if !e.learnPending.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer e.learnPending.Store(false)

		window := e.cfg.AutoLearnWindowDays
		stats, err := e.TriggerLearning(context.Background(), &window)
		if err != nil {
			logger.Error("Background learning pass failed", zap.Error(err))
			return
		}
		logger.Info("Background learning pass complete",
			zap.Int("analyzed", stats.AnalyzedFeedback),
			zap.Int("new", stats.NewRelationships),
			zap.Int("strengthened", stats.StrengthenedRelationships),
		)
	}()
}

// TriggerLearning runs a full learning pass over the requested window,
// queueing behind any in-progress pass or prune. A nil window clamps the
// recomputation to the configured decay horizon; an explicit window of
// zero or less covers the entire history.
func (e *Engine) TriggerLearning(ctx context.Context, windowDays *int) (*Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runPass(ctx, windowDays)
}

// TryTriggerLearning is TriggerLearning, except it returns ErrLearningBusy
// instead of queueing when the lock is held.
func (e *Engine) TryTriggerLearning(ctx context.Context, windowDays *int) (*Stats, error) {
	if !e.mu.TryLock() {
		return nil, ErrLearningBusy
	}
	defer e.mu.Unlock()
	return e.runPass(ctx, windowDays)
}

func (e *Engine) runPass(ctx context.Context, windowDays *int) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	q := feedback.Query{PositiveOnly: true}
	days := e.cfg.DecayDays
	if windowDays != nil {
		days = *windowDays
	}
	if days > 0 {
		since := time.Now().AddDate(0, 0, -days)
		q.Since = &since
	}

	events, err := e.log.QueryEvents(ctx, q)
	if err != nil {
		return stats, err
	}
	stats.AnalyzedFeedback = len(events)

	if len(events) == 0 {
		logger.Info("No positive feedback in window, nothing to learn")
		return stats, nil
	}

	candidates := AnalyzeCooccurrence(events, e.cfg.MinSupport, e.cfg.MinConfidence)
	for _, cand := range candidates {
		status, err := e.updater.ApplyRelationship(ctx, cand)
		if err != nil {
			// Partial stats reflect the work already committed; the pass
			// is safe to retry because recomputation is idempotent.
			return stats, err
		}
		e.countStatus(stats, status)
	}

	patterns := e.miner.Mine(events, e.cfg.MinSupport, e.cfg.MinConfidence)
	stats.DiscoveredPatterns = len(patterns)
	for _, p := range patterns {
		status, err := e.updater.ApplyAssociation(ctx, p)
		if err != nil {
			return stats, err
		}
		e.countStatus(stats, status)
	}

	for _, sibling := range SiblingPairs(patterns) {
		status, err := e.updater.ApplySibling(ctx, sibling)
		if err != nil {
			return stats, err
		}
		e.countStatus(stats, status)
	}

	metrics.LearningPassDuration.Observe(time.Since(start).Seconds())
	metrics.RelationshipsCreated.Add(float64(stats.NewRelationships))
	metrics.RelationshipsStrengthened.Add(float64(stats.StrengthenedRelationships))

	logger.Info("Learning pass complete",
		zap.Int("analyzed_feedback", stats.AnalyzedFeedback),
		zap.Int("candidates", len(candidates)),
		zap.Int("patterns", len(patterns)),
		zap.Int("new_relationships", stats.NewRelationships),
		zap.Int("strengthened_relationships", stats.StrengthenedRelationships),
		zap.Duration("took", time.Since(start)),
	)

	return stats, nil
}

func (e *Engine) countStatus(stats *Stats, status ApplyStatus) {
	switch status {
	case StatusCreated:
		stats.NewRelationships++
	case StatusStrengthened:
		stats.StrengthenedRelationships++
	}
}

// PruneWeak removes learned edges and associations below minWeight. It
// takes the same lock as learning passes, so a prune never races a pass
// that is about to reinforce an edge. minWeight of zero or less falls
// back to the configured floor.
func (e *Engine) PruneWeak(ctx context.Context, minWeight float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prune(ctx, minWeight)
}

// TryPruneWeak is PruneWeak with ErrLearningBusy instead of queueing.
func (e *Engine) TryPruneWeak(ctx context.Context, minWeight float64) (int, error) {
	if !e.mu.TryLock() {
		return 0, ErrLearningBusy
	}
	defer e.mu.Unlock()
	return e.prune(ctx, minWeight)
}

func (e *Engine) prune(ctx context.Context, minWeight float64) (int, error) {
	if minWeight <= 0 {
		minWeight = e.cfg.PruneMinWeight
	}

	removed, err := e.graph.PruneLearned(ctx, minWeight)
	if err != nil {
		return 0, err
	}

	metrics.RelationshipsPruned.Add(float64(removed))
	logger.Info("Weak relationships pruned",
		zap.Int("removed", removed),
		zap.Float64("min_weight", minWeight),
	)
	return removed, nil
}

// Statistics returns aggregate numbers over all learned edges.
func (e *Engine) Statistics(ctx context.Context) (*graph.Stats, error) {
	stats, err := e.graph.LearnedStats(ctx)
	if err != nil {
		return nil, err
	}
	metrics.LearnedEdges.Set(float64(stats.TotalLearned))
	return stats, nil
}

// SourceQuality recomputes quality scores for every document from the
// full feedback history.
func (e *Engine) SourceQuality(ctx context.Context) ([]QualityScore, error) {
	aggs, err := e.log.SourceAggregates(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeQualityScores(aggs), nil
}

// RelatedDocuments lists edges touching the document ordered by weight.
func (e *Engine) RelatedDocuments(ctx context.Context, documentID string, kind graph.EdgeKind, minWeight float64) ([]graph.RelationshipEdge, error) {
	return e.graph.ListEdges(ctx, graph.EdgeFilter{
		Document:  documentID,
		Kind:      kind,
		MinWeight: minWeight,
	})
}

func positivityLabel(event *feedback.Event) string {
	if event.Positive() {
		return "positive"
	}
	return "other"
}
