package learning

import (
	"sort"

	"github.com/docgraph/backend/internal/feedback"
	"github.com/docgraph/backend/internal/graph"
)

// Candidate is a document pair whose co-citation in positive feedback
// cleared both the support and confidence thresholds. DocumentA sorts
// before DocumentB so the pair is an unordered key.
type Candidate struct {
	DocumentA  string
	DocumentB  string
	Support    int
	Confidence float64
}

// AnalyzeCooccurrence counts document pairs cited together in the same
// positive event and scores each pair with an asymmetric-denominator
// confidence: C(a,b) / max(F(a), F(b)), where F is the number of positive
// events citing a document at all. Dividing by the more frequent partner
// keeps generically popular documents from dragging every pair above the
// threshold. Output is sorted by pair key, so identical input yields
// identical output.
func AnalyzeCooccurrence(events []feedback.Event, minSupport int, minConfidence float64) []Candidate {
	pairCounts := make(map[graph.PairKey]int)
	docCounts := make(map[string]int)

	for i := range events {
		docs := events[i].SourceDocuments()
		for _, doc := range docs {
			docCounts[doc]++
		}
		for j := 0; j < len(docs); j++ {
			for k := j + 1; k < len(docs); k++ {
				pairCounts[graph.NewPairKey(docs[j], docs[k])]++
			}
		}
	}

	var candidates []Candidate
	for pair, count := range pairCounts {
		if count < minSupport {
			continue
		}
		maxSingle := docCounts[pair.A]
		if docCounts[pair.B] > maxSingle {
			maxSingle = docCounts[pair.B]
		}
		if maxSingle == 0 {
			continue
		}
		confidence := float64(count) / float64(maxSingle)
		if confidence < minConfidence {
			continue
		}
		candidates = append(candidates, Candidate{
			DocumentA:  pair.A,
			DocumentB:  pair.B,
			Support:    count,
			Confidence: confidence,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DocumentA != candidates[j].DocumentA {
			return candidates[i].DocumentA < candidates[j].DocumentA
		}
		return candidates[i].DocumentB < candidates[j].DocumentB
	})

	return candidates
}
