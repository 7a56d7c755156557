package learning

import (
	"context"
	"testing"
	"time"

	"github.com/docgraph/backend/internal/graph"
)

func newTestUpdater(store graph.Store) *Updater {
	u := NewUpdater(store, 0.1, 0.75)
	u.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return u
}

func TestApplyRelationshipCreatesComplements(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	status, err := u.ApplyRelationship(ctx, Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.8})
	if err != nil {
		t.Fatalf("ApplyRelationship failed: %v", err)
	}
	if status != StatusCreated {
		t.Fatalf("expected StatusCreated, got %v", status)
	}

	edge, _ := store.GetEdge(ctx, graph.NewPairKey("a", "b"))
	if edge == nil {
		t.Fatal("expected edge")
	}
	if edge.Kind != graph.KindComplements {
		t.Fatalf("confidence 0.8 should create COMPLEMENTS, got %v", edge.Kind)
	}
	if !almostEqual(edge.Weight, 0.8) {
		t.Fatalf("expected initial weight 0.8, got %v", edge.Weight)
	}
	if !edge.Learned {
		t.Fatal("created edge must be marked learned")
	}
}

func TestApplyRelationshipKindThreshold(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	u.ApplyRelationship(ctx, Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.75})
	u.ApplyRelationship(ctx, Candidate{DocumentA: "a", DocumentB: "c", Confidence: 0.74})

	strong, _ := store.GetEdge(ctx, graph.NewPairKey("a", "b"))
	weak, _ := store.GetEdge(ctx, graph.NewPairKey("a", "c"))

	if strong.Kind != graph.KindComplements {
		t.Fatalf("0.75 is COMPLEMENTS, got %v", strong.Kind)
	}
	if weak.Kind != graph.KindRelatedTo {
		t.Fatalf("0.74 is RELATED_TO, got %v", weak.Kind)
	}
}

func TestApplyRelationshipStrengthensByEMA(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	store.UpsertEdge(ctx, &graph.RelationshipEdge{
		From: "a", To: "b", Kind: graph.KindComplements, Weight: 0.75, Learned: true,
	})

	status, err := u.ApplyRelationship(ctx, Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.83})
	if err != nil {
		t.Fatalf("ApplyRelationship failed: %v", err)
	}
	if status != StatusStrengthened {
		t.Fatalf("expected StatusStrengthened, got %v", status)
	}

	edge, _ := store.GetEdge(ctx, graph.NewPairKey("a", "b"))
	if !almostEqual(edge.Weight, 0.758) {
		t.Fatalf("expected 0.75 + 0.1*(0.83-0.75) = 0.758, got %v", edge.Weight)
	}
}

func TestApplyRelationshipConvergesWithoutOvershoot(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	cand := Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.9}
	if _, err := u.ApplyRelationship(ctx, cand); err != nil {
		t.Fatalf("ApplyRelationship failed: %v", err)
	}

	prev := 0.9
	for i := 0; i < 100; i++ {
		if _, err := u.ApplyRelationship(ctx, cand); err != nil {
			t.Fatalf("ApplyRelationship failed: %v", err)
		}
		edge, _ := store.GetEdge(ctx, graph.NewPairKey("a", "b"))
		if edge.Weight > 0.9+1e-9 {
			t.Fatalf("weight overshot confidence: %v", edge.Weight)
		}
		if edge.Weight < prev-1e-9 {
			t.Fatalf("weight moved away from confidence: %v after %v", edge.Weight, prev)
		}
		prev = edge.Weight
	}
	if !almostEqual(prev, 0.9) {
		t.Fatalf("expected convergence at 0.9, got %v", prev)
	}
}

func TestApplyRelationshipNeverTouchesCuratedEdges(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	store.UpsertEdge(ctx, &graph.RelationshipEdge{
		From: "a", To: "b", Kind: graph.KindRelatedTo, Weight: 0.5, Learned: false,
	})

	status, err := u.ApplyRelationship(ctx, Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.95})
	if err != nil {
		t.Fatalf("ApplyRelationship failed: %v", err)
	}
	if status != StatusSkipped {
		t.Fatalf("expected StatusSkipped for curated edge, got %v", status)
	}

	edge, _ := store.GetEdge(ctx, graph.NewPairKey("a", "b"))
	if edge.Weight != 0.5 || edge.Learned {
		t.Fatalf("curated edge mutated: %+v", edge)
	}
}

func TestApplySiblingOnlySeedsMissingEdges(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	status, err := u.ApplySibling(ctx, Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.5})
	if err != nil {
		t.Fatalf("ApplySibling failed: %v", err)
	}
	if status != StatusCreated {
		t.Fatalf("expected StatusCreated, got %v", status)
	}

	edge, _ := store.GetEdge(ctx, graph.NewPairKey("a", "b"))
	if edge.Kind != graph.KindRelatedTo || !almostEqual(edge.Weight, 0.5) {
		t.Fatalf("unexpected sibling edge: %+v", edge)
	}

	// A second application must not strengthen the edge.
	status, err = u.ApplySibling(ctx, Candidate{DocumentA: "a", DocumentB: "b", Confidence: 0.5})
	if err != nil {
		t.Fatalf("ApplySibling failed: %v", err)
	}
	if status != StatusSkipped {
		t.Fatalf("expected StatusSkipped on existing edge, got %v", status)
	}
	edge, _ = store.GetEdge(ctx, graph.NewPairKey("a", "b"))
	if !almostEqual(edge.Weight, 0.5) {
		t.Fatalf("sibling evidence must not strengthen, got %v", edge.Weight)
	}
}

func TestApplyAssociationCreateAndStrengthen(t *testing.T) {
	store := graph.NewMemoryStore()
	u := newTestUpdater(store)
	ctx := context.Background()

	status, err := u.ApplyAssociation(ctx, Pattern{Keyword: "hydrant", DocumentID: "doc-1", Confidence: 0.7})
	if err != nil {
		t.Fatalf("ApplyAssociation failed: %v", err)
	}
	if status != StatusCreated {
		t.Fatalf("expected StatusCreated, got %v", status)
	}

	status, err = u.ApplyAssociation(ctx, Pattern{Keyword: "hydrant", DocumentID: "doc-1", Confidence: 0.9})
	if err != nil {
		t.Fatalf("ApplyAssociation failed: %v", err)
	}
	if status != StatusStrengthened {
		t.Fatalf("expected StatusStrengthened, got %v", status)
	}

	assoc, _ := store.GetAssociation(ctx, "hydrant", "doc-1")
	if !almostEqual(assoc.Weight, 0.72) {
		t.Fatalf("expected 0.7 + 0.1*(0.9-0.7) = 0.72, got %v", assoc.Weight)
	}
}

func TestClampAndEMA(t *testing.T) {
	if clamp01(-0.2) != 0 || clamp01(1.7) != 1 || clamp01(0.4) != 0.4 {
		t.Fatal("clamp01 bounds wrong")
	}
	if !almostEqual(emaToward(0.5, 1.0, 0.1), 0.55) {
		t.Fatalf("emaToward(0.5, 1.0, 0.1) = %v", emaToward(0.5, 1.0, 0.1))
	}
}
