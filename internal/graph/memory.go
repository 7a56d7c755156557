package graph

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and small single-node
// deployments that do not run Neo4j. Reads take the read lock and copy
// whole edges, so a reader sees either the pre- or post-update state of an
// edge, never a torn one.
type MemoryStore struct {
	mu     sync.RWMutex
	edges  map[PairKey]RelationshipEdge
	assocs map[assocKey]KeywordAssociation
}

type assocKey struct {
	keyword    string
	documentID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges:  make(map[PairKey]RelationshipEdge),
		assocs: make(map[assocKey]KeywordAssociation),
	}
}

func (m *MemoryStore) UpsertEdge(_ context.Context, edge *RelationshipEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edge.Key()] = *edge
	return nil
}

func (m *MemoryStore) GetEdge(_ context.Context, key PairKey) (*RelationshipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.edges[key]; ok {
		copied := e
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryStore) DeleteEdge(_ context.Context, key PairKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, key)
	return nil
}

func (m *MemoryStore) ListEdges(_ context.Context, filter EdgeFilter) ([]RelationshipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var edges []RelationshipEdge
	for _, e := range m.edges {
		if filter.Document != "" && e.From != filter.Document && e.To != filter.Document {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if e.Weight < filter.MinWeight {
			continue
		}
		if filter.LearnedOnly && !e.Learned {
			continue
		}
		edges = append(edges, e)
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges, nil
}

func (m *MemoryStore) UpsertAssociation(_ context.Context, assoc *KeywordAssociation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assocs[assocKey{assoc.Keyword, assoc.DocumentID}] = *assoc
	return nil
}

func (m *MemoryStore) GetAssociation(_ context.Context, keyword, documentID string) (*KeywordAssociation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.assocs[assocKey{keyword, documentID}]; ok {
		copied := a
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryStore) LearnedStats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{}
	var sum float64
	for _, e := range m.edges {
		if !e.Learned {
			continue
		}
		if stats.TotalLearned == 0 || e.Weight < stats.MinWeight {
			stats.MinWeight = e.Weight
		}
		if e.Weight > stats.MaxWeight {
			stats.MaxWeight = e.Weight
		}
		stats.TotalLearned++
		sum += e.Weight
	}
	for _, a := range m.assocs {
		if !a.Learned {
			continue
		}
		if stats.TotalLearned == 0 || a.Weight < stats.MinWeight {
			stats.MinWeight = a.Weight
		}
		if a.Weight > stats.MaxWeight {
			stats.MaxWeight = a.Weight
		}
		stats.TotalLearned++
		sum += a.Weight
	}
	if stats.TotalLearned > 0 {
		stats.AvgWeight = sum / float64(stats.TotalLearned)
	}
	return stats, nil
}

func (m *MemoryStore) PruneLearned(_ context.Context, minWeight float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.edges {
		if e.Learned && e.Weight < minWeight {
			delete(m.edges, key)
			removed++
		}
	}
	for key, a := range m.assocs {
		if a.Learned && a.Weight < minWeight {
			delete(m.assocs, key)
			removed++
		}
	}
	return removed, nil
}
