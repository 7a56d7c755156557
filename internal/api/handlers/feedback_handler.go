package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/cache/redis"
	"github.com/docgraph/backend/internal/feedback"
	"github.com/docgraph/backend/internal/learning"
	"github.com/docgraph/backend/pkg/logger"
)

const qualityCacheType = "quality"

type sourceFeedbackRequest struct {
	DocumentID string `json:"document_id"`
	Page       *int   `json:"page"`
	Judgment   string `json:"judgment"`
	Stars      *int   `json:"stars"`
	Comment    string `json:"comment"`
}

type highlightRequest struct {
	Text             string `json:"text"`
	Sentiment        string `json:"sentiment"`
	SourceDocumentID string `json:"source_document_id"`
	Comment          string `json:"comment"`
}

type feedbackRequest struct {
	Query         string                  `json:"query"`
	Response      string                  `json:"response"`
	Type          string                  `json:"type"`
	OverallRating *int                    `json:"overall_rating"`
	Dimensions    map[string]int          `json:"dimensions"`
	Sources       []sourceFeedbackRequest `json:"sources"`
	Highlights    []highlightRequest      `json:"highlights"`
	Comment       string                  `json:"comment"`
}

// FeedbackHandler accepts judgments on query/response pairs and serves
// the statistics derived from the feedback log.
type FeedbackHandler struct {
	engine *learning.Engine
	store  *feedback.Store
	cache  *redis.Client
}

func NewFeedbackHandler(engine *learning.Engine, store *feedback.Store, cache *redis.Client) *FeedbackHandler {
	return &FeedbackHandler{
		engine: engine,
		store:  store,
		cache:  cache,
	}
}

func (h *FeedbackHandler) RecordFeedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse feedback body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	event := &feedback.Event{
		Timestamp:     time.Now(),
		Query:         req.Query,
		Response:      req.Response,
		Type:          feedback.EventType(req.Type),
		OverallRating: req.OverallRating,
		Dimensions:    req.Dimensions,
		Comment:       req.Comment,
	}
	for _, s := range req.Sources {
		event.Sources = append(event.Sources, feedback.SourceFeedback{
			DocumentID: s.DocumentID,
			Page:       s.Page,
			Judgment:   feedback.Judgment(s.Judgment),
			Stars:      s.Stars,
			Comment:    s.Comment,
		})
	}
	for _, hl := range req.Highlights {
		event.Highlights = append(event.Highlights, feedback.Highlight{
			Text:             hl.Text,
			Sentiment:        feedback.Sentiment(hl.Sentiment),
			SourceDocumentID: hl.SourceDocumentID,
			Comment:          hl.Comment,
		})
	}

	id, err := h.engine.RecordFeedback(c.Context(), event)
	if err != nil {
		var verr *feedback.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": verr.Error(),
				"field": verr.Field,
			})
		}
		logger.Error("Failed to record feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record feedback",
		})
	}

	h.cache.Invalidate(c.Context(), qualityCacheType)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     id,
		"status": "recorded",
	})
}

func (h *FeedbackHandler) GetStatistics(c *fiber.Ctx) error {
	stats, err := h.store.Statistics(c.Context())
	if err != nil {
		logger.Error("Failed to compute feedback statistics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute statistics",
		})
	}

	return c.JSON(fiber.Map{
		"total_events":       stats.TotalEvents,
		"avg_overall_rating": stats.AvgOverallRating,
		"source_feedbacks":   stats.SourceFeedbacks,
		"helpful_count":      stats.HelpfulCount,
		"not_helpful_count":  stats.NotHelpfulCount,
		"irrelevant_count":   stats.IrrelevantCount,
		"total_highlights":   stats.TotalHighlights,
	})
}

func (h *FeedbackHandler) GetSourceQuality(c *fiber.Ctx) error {
	var cached []learning.QualityScore
	if h.cache.Get(c.Context(), qualityCacheType, "all", &cached) {
		return c.JSON(fiber.Map{"sources": qualityResponse(cached)})
	}

	scores, err := h.engine.SourceQuality(c.Context())
	if err != nil {
		logger.Error("Failed to compute source quality", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute source quality",
		})
	}

	h.cache.Set(c.Context(), qualityCacheType, "all", scores)

	return c.JSON(fiber.Map{"sources": qualityResponse(scores)})
}

func (h *FeedbackHandler) GetPositiveHighlights(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	snippets, err := h.store.PositiveHighlights(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to load highlights", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load highlights",
		})
	}

	out := make([]fiber.Map, 0, len(snippets))
	for _, s := range snippets {
		out = append(out, fiber.Map{
			"text":               s.Text,
			"source_document_id": s.SourceDocumentID,
			"frequency":          s.Frequency,
		})
	}

	return c.JSON(fiber.Map{"highlights": out})
}

func qualityResponse(scores []learning.QualityScore) []fiber.Map {
	out := make([]fiber.Map, 0, len(scores))
	for _, s := range scores {
		out = append(out, fiber.Map{
			"document_id":       s.DocumentID,
			"quality_score":     s.QualityScore,
			"avg_rating":        s.AvgRating,
			"helpful_count":     s.HelpfulCount,
			"not_helpful_count": s.NotHelpfulCount,
			"irrelevant_count":  s.IrrelevantCount,
			"total_feedbacks":   s.TotalFeedbacks,
		})
	}
	return out
}
