package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/docgraph/backend/internal/feedback"
	"github.com/docgraph/backend/internal/graph"
	"github.com/docgraph/backend/internal/learning"
	"github.com/docgraph/backend/pkg/config"
)

type testEnv struct {
	app   *fiber.App
	store *feedback.Store
	graph *graph.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := feedback.NewStore(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	graphStore := graph.NewMemoryStore()
	engine := learning.NewEngine(store, graphStore, config.LearningConfig{
		MinConfidence:     0.6,
		MinSupport:        3,
		LearningRate:      0.1,
		DecayDays:         30,
		StrengthThreshold: 0.75,
		PruneMinWeight:    0.3,
	})

	feedbackHandler := NewFeedbackHandler(engine, store, nil)
	learningHandler := NewLearningHandler(engine, nil)
	graphHandler := NewGraphHandler(engine, nil)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/feedback", feedbackHandler.RecordFeedback)
	api.Get("/feedback/stats", feedbackHandler.GetStatistics)
	api.Get("/feedback/quality", feedbackHandler.GetSourceQuality)
	api.Get("/feedback/highlights", feedbackHandler.GetPositiveHighlights)
	api.Post("/learning/trigger", learningHandler.TriggerLearning)
	api.Post("/learning/prune", learningHandler.PruneRelationships)
	api.Get("/learning/stats", learningHandler.GetStatistics)
	api.Get("/graph/related", graphHandler.GetRelatedDocuments)

	return &testEnv{app: app, store: store, graph: graphStore}
}

func (env *testEnv) request(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func feedbackBody(rating int, docs ...string) map[string]interface{} {
	var sources []map[string]interface{}
	for _, d := range docs {
		sources = append(sources, map[string]interface{}{
			"document_id": d,
			"judgment":    "helpful",
		})
	}
	return map[string]interface{}{
		"query":          "sprinkler obstruction rules",
		"response":       "Obstructions within 18 inches...",
		"overall_rating": rating,
		"sources":        sources,
	}
}

func TestRecordFeedbackEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, "POST", "/api/v1/feedback", feedbackBody(5, "doc-a", "doc-b"))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
	}
	if body["id"] == "" || body["id"] == nil {
		t.Fatalf("expected event id, got %v", body)
	}
}

func TestRecordFeedbackRejectsMissingQuery(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, "POST", "/api/v1/feedback", map[string]interface{}{
		"response": "r",
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRecordFeedbackRejectsBadRating(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, "POST", "/api/v1/feedback", feedbackBody(9, "doc-a"))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["field"] != "overall_rating" {
		t.Fatalf("expected overall_rating field in error, got %v", body)
	}
}

func TestLearningTriggerEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 4; i++ {
		resp, _ := env.request(t, "POST", "/api/v1/feedback", feedbackBody(5, "doc-a", "doc-b"))
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("seed feedback failed: %d", resp.StatusCode)
		}
	}

	resp, body := env.request(t, "POST", "/api/v1/learning/trigger", map[string]interface{}{})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["analyzed_feedback"].(float64) != 4 {
		t.Fatalf("expected 4 analyzed events, got %v", body)
	}
	if body["new_relationships"].(float64) == 0 {
		t.Fatalf("expected new relationships, got %v", body)
	}

	resp, body = env.request(t, "GET", "/api/v1/graph/related?document=doc-a", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	related := body["related"].([]interface{})
	if len(related) == 0 {
		t.Fatal("expected related documents after learning")
	}
	first := related[0].(map[string]interface{})
	if first["document_id"] != "doc-b" {
		t.Fatalf("expected doc-b related to doc-a, got %v", first)
	}
}

func TestGraphRelatedRequiresDocument(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, "GET", "/api/v1/graph/related", nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGraphRelatedRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, "GET", "/api/v1/graph/related?document=doc-a&kind=FRIENDS", nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPruneEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.graph.UpsertEdge(ctx, &graph.RelationshipEdge{From: "a", To: "b", Weight: 0.1, Learned: true})
	env.graph.UpsertEdge(ctx, &graph.RelationshipEdge{From: "a", To: "c", Weight: 0.9, Learned: true})

	resp, body := env.request(t, "POST", "/api/v1/learning/prune", map[string]interface{}{
		"min_weight": 0.3,
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["pruned"].(float64) != 1 {
		t.Fatalf("expected 1 pruned, got %v", body)
	}
}

func TestPruneRejectsOutOfRangeWeight(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, "POST", "/api/v1/learning/prune", map[string]interface{}{
		"min_weight": 1.5,
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestFeedbackStatsAndQualityEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.request(t, "POST", "/api/v1/feedback", feedbackBody(5, "doc-a"))
	env.request(t, "POST", "/api/v1/feedback", feedbackBody(3, "doc-b"))

	resp, body := env.request(t, "GET", "/api/v1/feedback/stats", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["total_events"].(float64) != 2 {
		t.Fatalf("expected 2 events, got %v", body)
	}
	if body["avg_overall_rating"].(float64) != 4 {
		t.Fatalf("expected avg 4, got %v", body)
	}

	resp, body = env.request(t, "GET", "/api/v1/feedback/quality", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	sources := body["sources"].([]interface{})
	if len(sources) != 2 {
		t.Fatalf("expected 2 quality scores, got %v", sources)
	}
}

func TestLearningStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.graph.UpsertEdge(ctx, &graph.RelationshipEdge{From: "a", To: "b", Weight: 0.6, Learned: true})

	resp, body := env.request(t, "GET", "/api/v1/learning/stats", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["total_learned"].(float64) != 1 {
		t.Fatalf("expected 1 learned edge, got %v", body)
	}
}
