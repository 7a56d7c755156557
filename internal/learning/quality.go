package learning

import (
	"sort"

	"github.com/docgraph/backend/internal/feedback"
)

// QualityScore is the derived 0-100 quality of one source document.
type QualityScore struct {
	DocumentID      string
	AvgRating       float64
	HelpfulCount    int
	NotHelpfulCount int
	IrrelevantCount int
	TotalFeedbacks  int
	QualityScore    float64
}

// Raw score weights per judgment.
const (
	helpfulWeight    = 10
	notHelpfulWeight = -5
	irrelevantWeight = -10
)

// ComputeQualityScores derives per-document quality from the full feedback
// aggregates. Raw scores are min-max scaled to 0-100 against the observed
// range; when every document shares the same raw score they all land on
// the 50 midpoint. The computation is wholesale every time, never an
// incremental patch, so the output is always consistent with the complete
// feedback history.
func ComputeQualityScores(aggs []feedback.SourceAggregate) []QualityScore {
	if len(aggs) == 0 {
		return nil
	}

	raw := make([]float64, len(aggs))
	minRaw, maxRaw := 0.0, 0.0
	for i, a := range aggs {
		raw[i] = float64(a.HelpfulCount*helpfulWeight +
			a.NotHelpfulCount*notHelpfulWeight +
			a.IrrelevantCount*irrelevantWeight)
		if i == 0 || raw[i] < minRaw {
			minRaw = raw[i]
		}
		if i == 0 || raw[i] > maxRaw {
			maxRaw = raw[i]
		}
	}

	scores := make([]QualityScore, len(aggs))
	for i, a := range aggs {
		score := QualityScore{
			DocumentID:      a.DocumentID,
			HelpfulCount:    a.HelpfulCount,
			NotHelpfulCount: a.NotHelpfulCount,
			IrrelevantCount: a.IrrelevantCount,
			TotalFeedbacks:  a.TotalFeedbacks,
		}
		if a.StarsCount > 0 {
			score.AvgRating = float64(a.StarsSum) / float64(a.StarsCount)
		}
		if maxRaw == minRaw {
			score.QualityScore = 50
		} else {
			score.QualityScore = 100 * (raw[i] - minRaw) / (maxRaw - minRaw)
		}
		scores[i] = score
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].QualityScore != scores[j].QualityScore {
			return scores[i].QualityScore > scores[j].QualityScore
		}
		return scores[i].DocumentID < scores[j].DocumentID
	})

	return scores
}
