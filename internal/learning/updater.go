package learning

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/graph"
	"github.com/docgraph/backend/pkg/logger"
)

// ApplyStatus reports what an update did to the graph.
type ApplyStatus int

const (
	StatusCreated ApplyStatus = iota
	StatusStrengthened
	StatusSkipped
)

// Updater writes candidate relationships through to the graph store. New
// edges start at the observed confidence; existing learned edges move
// toward it by an exponential moving average, so repeated passes over an
// unchanged window converge to the confidence instead of saturating at 1.
// Curated (non-learned) edges are read but never written.
type Updater struct {
	store             graph.Store
	learningRate      float64
	strengthThreshold float64
	now               func() time.Time
}

func NewUpdater(store graph.Store, learningRate, strengthThreshold float64) *Updater {
	return &Updater{
		store:             store,
		learningRate:      learningRate,
		strengthThreshold: strengthThreshold,
		now:               time.Now,
	}
}

// ApplyRelationship creates or strengthens the edge for a candidate pair.
func (u *Updater) ApplyRelationship(ctx context.Context, cand Candidate) (ApplyStatus, error) {
	key := graph.NewPairKey(cand.DocumentA, cand.DocumentB)

	existing, err := u.store.GetEdge(ctx, key)
	if err != nil {
		return StatusSkipped, err
	}

	if existing == nil {
		edge := &graph.RelationshipEdge{
			From:        key.A,
			To:          key.B,
			Kind:        u.kindFor(cand.Confidence),
			Weight:      clamp01(cand.Confidence),
			Learned:     true,
			LastUpdated: u.now(),
		}
		if err := u.store.UpsertEdge(ctx, edge); err != nil {
			return StatusSkipped, err
		}
		logger.Debug("Relationship created",
			zap.String("from", edge.From),
			zap.String("to", edge.To),
			zap.String("kind", string(edge.Kind)),
			zap.Float64("weight", edge.Weight),
		)
		return StatusCreated, nil
	}

	if !existing.Learned {
		return StatusSkipped, nil
	}

	existing.Weight = clamp01(emaToward(existing.Weight, cand.Confidence, u.learningRate))
	existing.LastUpdated = u.now()
	if err := u.store.UpsertEdge(ctx, existing); err != nil {
		return StatusSkipped, err
	}
	logger.Debug("Relationship strengthened",
		zap.String("from", existing.From),
		zap.String("to", existing.To),
		zap.Float64("weight", existing.Weight),
	)
	return StatusStrengthened, nil
}

// ApplySibling creates a weak RELATED_TO edge for documents sharing mined
// keywords, but only when no edge exists yet. Sibling evidence is too
// indirect to strengthen an edge built from direct co-citation.
func (u *Updater) ApplySibling(ctx context.Context, cand Candidate) (ApplyStatus, error) {
	key := graph.NewPairKey(cand.DocumentA, cand.DocumentB)

	existing, err := u.store.GetEdge(ctx, key)
	if err != nil {
		return StatusSkipped, err
	}
	if existing != nil {
		return StatusSkipped, nil
	}

	edge := &graph.RelationshipEdge{
		From:        key.A,
		To:          key.B,
		Kind:        graph.KindRelatedTo,
		Weight:      clamp01(cand.Confidence),
		Learned:     true,
		LastUpdated: u.now(),
	}
	if err := u.store.UpsertEdge(ctx, edge); err != nil {
		return StatusSkipped, err
	}
	return StatusCreated, nil
}

// ApplyAssociation creates or strengthens a keyword-to-document
// association using the same EMA rule as document pairs.
func (u *Updater) ApplyAssociation(ctx context.Context, pattern Pattern) (ApplyStatus, error) {
	existing, err := u.store.GetAssociation(ctx, pattern.Keyword, pattern.DocumentID)
	if err != nil {
		return StatusSkipped, err
	}

	if existing == nil {
		assoc := &graph.KeywordAssociation{
			Keyword:     pattern.Keyword,
			DocumentID:  pattern.DocumentID,
			Weight:      clamp01(pattern.Confidence),
			Learned:     true,
			LastUpdated: u.now(),
		}
		if err := u.store.UpsertAssociation(ctx, assoc); err != nil {
			return StatusSkipped, err
		}
		return StatusCreated, nil
	}

	if !existing.Learned {
		return StatusSkipped, nil
	}

	existing.Weight = clamp01(emaToward(existing.Weight, pattern.Confidence, u.learningRate))
	existing.LastUpdated = u.now()
	if err := u.store.UpsertAssociation(ctx, existing); err != nil {
		return StatusSkipped, err
	}
	return StatusStrengthened, nil
}

func (u *Updater) kindFor(confidence float64) graph.EdgeKind {
	if confidence >= u.strengthThreshold {
		return graph.KindComplements
	}
	return graph.KindRelatedTo
}

// emaToward nudges weight a fixed fraction of the way to the observed
// confidence: w' = w + rate*(conf - w).
func emaToward(weight, confidence, rate float64) float64 {
	return weight + rate*(confidence-weight)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
