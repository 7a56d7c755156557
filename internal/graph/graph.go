package graph

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps graph-store I/O failures. Learning passes abort on
// it and report the work completed so far; recomputation is idempotent, so
// retrying is safe.
var ErrUnavailable = errors.New("graph store unavailable")

// EdgeKind is the relationship type between two documents.
type EdgeKind string

const (
	KindComplements EdgeKind = "COMPLEMENTS"
	KindRelatedTo   EdgeKind = "RELATED_TO"
)

// PairKey identifies an unordered document pair. The pair is normalized so
// (a,b) and (b,a) address the same edge.
type PairKey struct {
	A string
	B string
}

func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// RelationshipEdge is a weighted document-to-document relationship. Edges
// with Learned=true are owned by the learning engine; curated edges are
// read alongside but never written or pruned.
type RelationshipEdge struct {
	From        string
	To          string
	Kind        EdgeKind
	Weight      float64
	Learned     bool
	LastUpdated time.Time
}

func (e *RelationshipEdge) Key() PairKey {
	return NewPairKey(e.From, e.To)
}

// KeywordAssociation is a learned edge from a normalized query keyword to a
// document, with the same weight and prune semantics as RelationshipEdge.
type KeywordAssociation struct {
	Keyword     string
	DocumentID  string
	Weight      float64
	Learned     bool
	LastUpdated time.Time
}

// EdgeFilter narrows ListEdges.
type EdgeFilter struct {
	Document    string
	Kind        EdgeKind
	MinWeight   float64
	LearnedOnly bool
}

// Stats summarizes learned relationships.
type Stats struct {
	TotalLearned int
	AvgWeight    float64
	MinWeight    float64
	MaxWeight    float64
}

// Store is the persistence collaborator for the relationship graph. The
// engine owns all learned edges; the store is dumb storage.
type Store interface {
	UpsertEdge(ctx context.Context, edge *RelationshipEdge) error
	GetEdge(ctx context.Context, key PairKey) (*RelationshipEdge, error)
	DeleteEdge(ctx context.Context, key PairKey) error
	ListEdges(ctx context.Context, filter EdgeFilter) ([]RelationshipEdge, error)

	UpsertAssociation(ctx context.Context, assoc *KeywordAssociation) error
	GetAssociation(ctx context.Context, keyword, documentID string) (*KeywordAssociation, error)

	LearnedStats(ctx context.Context) (*Stats, error)

	// PruneLearned removes every learned edge and association with weight
	// strictly below minWeight and returns the number removed. Curated
	// edges are never touched.
	PruneLearned(ctx context.Context, minWeight float64) (int, error)
}
