package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedbackRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_feedback_recorded_total",
			Help: "Total feedback events recorded",
		},
		[]string{"positivity"},
	)

	LearningPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docgraph_learning_pass_duration_seconds",
			Help:    "Learning pass duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	RelationshipsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docgraph_relationships_created_total",
			Help: "Total learned relationships created",
		},
	)

	RelationshipsStrengthened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docgraph_relationships_strengthened_total",
			Help: "Total learned relationships strengthened",
		},
	)

	RelationshipsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docgraph_relationships_pruned_total",
			Help: "Total learned relationships removed by pruning",
		},
	)

	LearnedEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docgraph_learned_edges",
			Help: "Learned edges currently in the graph",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(FeedbackRecorded)
	prometheus.MustRegister(LearningPassDuration)
	prometheus.MustRegister(RelationshipsCreated)
	prometheus.MustRegister(RelationshipsStrengthened)
	prometheus.MustRegister(RelationshipsPruned)
	prometheus.MustRegister(LearnedEdges)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
