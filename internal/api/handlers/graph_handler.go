package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/cache/redis"
	"github.com/docgraph/backend/internal/graph"
	"github.com/docgraph/backend/internal/learning"
	"github.com/docgraph/backend/pkg/logger"
)

const relatedCacheType = "related"

// GraphHandler serves read views over the relationship graph.
type GraphHandler struct {
	engine *learning.Engine
	cache  *redis.Client
}

func NewGraphHandler(engine *learning.Engine, cache *redis.Client) *GraphHandler {
	return &GraphHandler{engine: engine, cache: cache}
}

func (h *GraphHandler) GetRelatedDocuments(c *fiber.Ctx) error {
	documentID := c.Query("document")
	if documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "document is required",
		})
	}

	kind := graph.EdgeKind(c.Query("kind"))
	if kind != "" && kind != graph.KindComplements && kind != graph.KindRelatedTo {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind must be COMPLEMENTS or RELATED_TO",
		})
	}

	minWeight := c.QueryFloat("min_weight", 0)
	if minWeight < 0 || minWeight > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "min_weight must be between 0 and 1",
		})
	}

	cacheKey := documentID + ":" + string(kind)
	var cached []graph.RelationshipEdge
	if minWeight == 0 && h.cache.Get(c.Context(), relatedCacheType, cacheKey, &cached) {
		return c.JSON(fiber.Map{
			"document": documentID,
			"related":  edgesResponse(documentID, cached),
		})
	}

	edges, err := h.engine.RelatedDocuments(c.Context(), documentID, kind, minWeight)
	if err != nil {
		if errors.Is(err, graph.ErrUnavailable) {
			logger.Warn("Graph store unavailable", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Relationship graph is unavailable",
			})
		}
		logger.Error("Failed to list related documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list related documents",
		})
	}

	if minWeight == 0 {
		h.cache.Set(c.Context(), relatedCacheType, cacheKey, edges)
	}

	return c.JSON(fiber.Map{
		"document": documentID,
		"related":  edgesResponse(documentID, edges),
	})
}

// edgesResponse orients each undirected edge so the queried document is
// always the "from" side of the response row.
func edgesResponse(documentID string, edges []graph.RelationshipEdge) []fiber.Map {
	out := make([]fiber.Map, 0, len(edges))
	for _, e := range edges {
		other := e.To
		if other == documentID {
			other = e.From
		}
		out = append(out, fiber.Map{
			"document_id":  other,
			"kind":         e.Kind,
			"weight":       e.Weight,
			"learned":      e.Learned,
			"last_updated": e.LastUpdated,
		})
	}
	return out
}
