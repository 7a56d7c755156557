package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/graph"
	"github.com/docgraph/backend/pkg/circuitbreaker"
	"github.com/docgraph/backend/pkg/logger"
	"github.com/docgraph/backend/pkg/retry"
)

// Client implements graph.Store on Neo4j. Document nodes are keyed by id;
// learned relationships carry weight, learned and updated_at properties.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

var _ graph.Store = (*Client)(nil)

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	if err = driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j graph store initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// InitIndexes creates lookup indexes for document and keyword nodes.
func (c *Client) InitIndexes(ctx context.Context) error {
	return c.execute(ctx, func(session neo4j.SessionWithContext) error {
		statements := []string{
			`CREATE INDEX document_id IF NOT EXISTS FOR (d:DOCUMENT) ON (d.id)`,
			`CREATE INDEX keyword_name IF NOT EXISTS FOR (k:KEYWORD) ON (k.name)`,
		}
		for _, stmt := range statements {
			if _, err := session.Run(ctx, stmt, nil); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}
		return nil
	})
}

func (c *Client) execute(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", graph.ErrUnavailable, err)
	}
	return nil
}

func edgeKindLabel(kind graph.EdgeKind) (string, error) {
	// Relationship types cannot be parameterized in Cypher, so the kind is
	// spliced into the query text and must come from the closed enum.
	switch kind {
	case graph.KindComplements, graph.KindRelatedTo:
		return string(kind), nil
	}
	return "", fmt.Errorf("unknown edge kind %q", kind)
}

func (c *Client) UpsertEdge(ctx context.Context, edge *graph.RelationshipEdge) error {
	label, err := edgeKindLabel(edge.Kind)
	if err != nil {
		return err
	}

	key := edge.Key()
	query := fmt.Sprintf(`
		MERGE (a:DOCUMENT {id: $from})
		MERGE (b:DOCUMENT {id: $to})
		MERGE (a)-[r:%s]->(b)
		SET r.weight = $weight,
		    r.learned = $learned,
		    r.updated_at = $updated_at
	`, label)

	return c.execute(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]interface{}{
			"from":       key.A,
			"to":         key.B,
			"weight":     edge.Weight,
			"learned":    edge.Learned,
			"updated_at": edge.LastUpdated.UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert edge: %w", err)
		}
		logger.Debug("Edge upserted",
			zap.String("from", key.A),
			zap.String("to", key.B),
			zap.String("kind", label),
			zap.Float64("weight", edge.Weight),
		)
		return nil
	})
}

func (c *Client) GetEdge(ctx context.Context, key graph.PairKey) (*graph.RelationshipEdge, error) {
	var edge *graph.RelationshipEdge

	err := c.execute(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH (a:DOCUMENT {id: $from})-[r]-(b:DOCUMENT {id: $to})
			WHERE type(r) IN ['COMPLEMENTS', 'RELATED_TO']
			RETURN type(r) AS kind, r.weight AS weight, r.learned AS learned,
			       r.updated_at AS updated_at
			LIMIT 1
		`, map[string]interface{}{"from": key.A, "to": key.B})
		if err != nil {
			return fmt.Errorf("failed to get edge: %w", err)
		}

		if result.Next(ctx) {
			record := result.Record()
			edge = recordToEdge(record, key)
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func (c *Client) DeleteEdge(ctx context.Context, key graph.PairKey) error {
	return c.execute(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, `
			MATCH (a:DOCUMENT {id: $from})-[r]-(b:DOCUMENT {id: $to})
			WHERE type(r) IN ['COMPLEMENTS', 'RELATED_TO']
			DELETE r
		`, map[string]interface{}{"from": key.A, "to": key.B})
		if err != nil {
			return fmt.Errorf("failed to delete edge: %w", err)
		}
		return nil
	})
}

func (c *Client) ListEdges(ctx context.Context, filter graph.EdgeFilter) ([]graph.RelationshipEdge, error) {
	var edges []graph.RelationshipEdge

	query := `
		MATCH (a:DOCUMENT)-[r]->(b:DOCUMENT)
		WHERE type(r) IN ['COMPLEMENTS', 'RELATED_TO']
		  AND r.weight >= $min_weight
		  AND ($document = '' OR a.id = $document OR b.id = $document)
		  AND ($kind = '' OR type(r) = $kind)
		  AND (NOT $learned_only OR r.learned = true)
		RETURN a.id AS from, b.id AS to, type(r) AS kind, r.weight AS weight,
		       r.learned AS learned, r.updated_at AS updated_at
		ORDER BY r.weight DESC
	`

	err := c.execute(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, query, map[string]interface{}{
			"min_weight":   filter.MinWeight,
			"document":     filter.Document,
			"kind":         string(filter.Kind),
			"learned_only": filter.LearnedOnly,
		})
		if err != nil {
			return fmt.Errorf("failed to list edges: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			from, _ := record.Get("from")
			to, _ := record.Get("to")
			key := graph.NewPairKey(from.(string), to.(string))
			edges = append(edges, *recordToEdge(record, key))
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (c *Client) UpsertAssociation(ctx context.Context, assoc *graph.KeywordAssociation) error {
	return c.execute(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, `
			MERGE (k:KEYWORD {name: $keyword})
			MERGE (d:DOCUMENT {id: $document})
			MERGE (k)-[r:ASSOCIATED_WITH]->(d)
			SET r.weight = $weight,
			    r.learned = $learned,
			    r.updated_at = $updated_at
		`, map[string]interface{}{
			"keyword":    assoc.Keyword,
			"document":   assoc.DocumentID,
			"weight":     assoc.Weight,
			"learned":    assoc.Learned,
			"updated_at": assoc.LastUpdated.UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert association: %w", err)
		}
		return nil
	})
}

func (c *Client) GetAssociation(ctx context.Context, keyword, documentID string) (*graph.KeywordAssociation, error) {
	var assoc *graph.KeywordAssociation

	err := c.execute(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH (k:KEYWORD {name: $keyword})-[r:ASSOCIATED_WITH]->(d:DOCUMENT {id: $document})
			RETURN r.weight AS weight, r.learned AS learned, r.updated_at AS updated_at
			LIMIT 1
		`, map[string]interface{}{"keyword": keyword, "document": documentID})
		if err != nil {
			return fmt.Errorf("failed to get association: %w", err)
		}

		if result.Next(ctx) {
			record := result.Record()
			weight, _ := record.Get("weight")
			learned, _ := record.Get("learned")
			updatedAt, _ := record.Get("updated_at")
			assoc = &graph.KeywordAssociation{
				Keyword:     keyword,
				DocumentID:  documentID,
				Weight:      asFloat(weight),
				Learned:     asBool(learned),
				LastUpdated: asTime(updatedAt),
			}
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return assoc, nil
}

func (c *Client) LearnedStats(ctx context.Context) (*graph.Stats, error) {
	stats := &graph.Stats{}

	err := c.execute(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH ()-[r]->()
			WHERE r.learned = true
			RETURN count(r) AS total, avg(r.weight) AS avg_weight,
			       min(r.weight) AS min_weight, max(r.weight) AS max_weight
		`, nil)
		if err != nil {
			return fmt.Errorf("failed to get learned stats: %w", err)
		}

		if result.Next(ctx) {
			record := result.Record()
			total, _ := record.Get("total")
			avgWeight, _ := record.Get("avg_weight")
			minWeight, _ := record.Get("min_weight")
			maxWeight, _ := record.Get("max_weight")

			if n, ok := total.(int64); ok {
				stats.TotalLearned = int(n)
			}
			if stats.TotalLearned > 0 {
				stats.AvgWeight = asFloat(avgWeight)
				stats.MinWeight = asFloat(minWeight)
				stats.MaxWeight = asFloat(maxWeight)
			}
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) PruneLearned(ctx context.Context, minWeight float64) (int, error) {
	removed := 0

	err := c.execute(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH ()-[r]->()
			WHERE r.learned = true AND r.weight < $min_weight
			DELETE r
			RETURN count(r) AS deleted
		`, map[string]interface{}{"min_weight": minWeight})
		if err != nil {
			return fmt.Errorf("failed to prune relationships: %w", err)
		}

		if result.Next(ctx) {
			if deleted, ok := result.Record().Values[0].(int64); ok {
				removed = int(deleted)
			}
		}
		return result.Err()
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Pruned weak relationships",
		zap.Int("removed", removed),
		zap.Float64("min_weight", minWeight),
	)
	return removed, nil
}

func recordToEdge(record *neo4j.Record, key graph.PairKey) *graph.RelationshipEdge {
	kind, _ := record.Get("kind")
	weight, _ := record.Get("weight")
	learned, _ := record.Get("learned")
	updatedAt, _ := record.Get("updated_at")

	return &graph.RelationshipEdge{
		From:        key.A,
		To:          key.B,
		Kind:        graph.EdgeKind(kind.(string)),
		Weight:      asFloat(weight),
		Learned:     asBool(learned),
		LastUpdated: asTime(updatedAt),
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v interface{}) time.Time {
	if ms, ok := v.(int64); ok {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}
