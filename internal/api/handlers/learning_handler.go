package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/cache/redis"
	"github.com/docgraph/backend/internal/learning"
	"github.com/docgraph/backend/pkg/logger"
)

// LearningHandler exposes the learning passes collaborators trigger
// explicitly: recomputation over the feedback log and pruning of weak
// learned edges. Passes are serialized inside the engine; an overlapping
// request is rejected with 409 rather than queued.
type LearningHandler struct {
	engine *learning.Engine
	cache  *redis.Client
}

func NewLearningHandler(engine *learning.Engine, cache *redis.Client) *LearningHandler {
	return &LearningHandler{engine: engine, cache: cache}
}

func (h *LearningHandler) TriggerLearning(c *fiber.Ctx) error {
	var req struct {
		WindowDays *int `json:"window_days"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	stats, err := h.engine.TryTriggerLearning(c.Context(), req.WindowDays)
	if err != nil {
		if errors.Is(err, learning.ErrLearningBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A learning pass is already running",
			})
		}
		logger.Error("Learning pass failed", zap.Error(err))
		resp := fiber.Map{"error": "Learning pass failed"}
		if stats != nil {
			resp["partial_stats"] = statsResponse(stats)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}

	h.cache.Invalidate(c.Context(), relatedCacheType)

	return c.JSON(statsResponse(stats))
}

func (h *LearningHandler) PruneRelationships(c *fiber.Ctx) error {
	var req struct {
		MinWeight float64 `json:"min_weight"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if req.MinWeight < 0 || req.MinWeight > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "min_weight must be between 0 and 1",
		})
	}

	pruned, err := h.engine.TryPruneWeak(c.Context(), req.MinWeight)
	if err != nil {
		if errors.Is(err, learning.ErrLearningBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A learning pass is already running",
			})
		}
		logger.Error("Prune failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to prune relationships",
		})
	}

	if pruned > 0 {
		h.cache.Invalidate(c.Context(), relatedCacheType)
	}

	return c.JSON(fiber.Map{
		"pruned": pruned,
	})
}

func (h *LearningHandler) GetStatistics(c *fiber.Ctx) error {
	stats, err := h.engine.Statistics(c.Context())
	if err != nil {
		logger.Error("Failed to load learning statistics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load learning statistics",
		})
	}

	return c.JSON(fiber.Map{
		"total_learned": stats.TotalLearned,
		"avg_weight":    stats.AvgWeight,
		"min_weight":    stats.MinWeight,
		"max_weight":    stats.MaxWeight,
	})
}

func statsResponse(stats *learning.Stats) fiber.Map {
	return fiber.Map{
		"analyzed_feedback":          stats.AnalyzedFeedback,
		"new_relationships":          stats.NewRelationships,
		"strengthened_relationships": stats.StrengthenedRelationships,
		"discovered_patterns":        stats.DiscoveredPatterns,
	}
}
