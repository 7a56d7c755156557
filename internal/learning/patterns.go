package learning

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"

	"github.com/docgraph/backend/internal/feedback"
)

// Pattern is a mined keyword-to-document association: across positive
// events whose query contains the keyword, the document was cited in
// Support of them, at Confidence = Support / events-containing-keyword.
type Pattern struct {
	Keyword    string
	DocumentID string
	Support    int
	Confidence float64
}

// Miner extracts keyword patterns from positive query text.
type Miner struct {
	stopwords map[string]struct{}
}

// NewMiner builds a pattern miner. When stopwords is nil the built-in
// English list is used.
func NewMiner(stopwords []string) *Miner {
	m := &Miner{stopwords: make(map[string]struct{})}
	if stopwords == nil {
		for _, w := range defaultStopwords {
			m.stopwords[w] = struct{}{}
		}
		return m
	}
	for _, w := range stopwords {
		m.stopwords[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// Mine tokenizes each positive query, then for every keyword counts the
// distinct events containing it and, per document, the distinct events
// where the keyword and a citation of that document coincide. Output is
// sorted by keyword then document.
func (m *Miner) Mine(events []feedback.Event, minSupport int, minConfidence float64) []Pattern {
	keywordEvents := make(map[string]int)
	keywordDocEvents := make(map[string]map[string]int)

	for i := range events {
		event := &events[i]
		if event.Query == "" {
			continue
		}

		keywords := m.Tokenize(event.Query)
		if len(keywords) == 0 {
			continue
		}
		docs := event.SourceDocuments()

		for _, kw := range keywords {
			keywordEvents[kw]++
			if len(docs) == 0 {
				continue
			}
			byDoc, ok := keywordDocEvents[kw]
			if !ok {
				byDoc = make(map[string]int)
				keywordDocEvents[kw] = byDoc
			}
			for _, doc := range docs {
				byDoc[doc]++
			}
		}
	}

	var patterns []Pattern
	for kw, byDoc := range keywordDocEvents {
		total := keywordEvents[kw]
		if total == 0 {
			continue
		}
		for doc, hits := range byDoc {
			if hits < minSupport {
				continue
			}
			confidence := float64(hits) / float64(total)
			if confidence < minConfidence {
				continue
			}
			patterns = append(patterns, Pattern{
				Keyword:    kw,
				DocumentID: doc,
				Support:    hits,
				Confidence: confidence,
			})
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Keyword != patterns[j].Keyword {
			return patterns[i].Keyword < patterns[j].Keyword
		}
		return patterns[i].DocumentID < patterns[j].DocumentID
	})

	return patterns
}

// Tokenize lowercases the query and returns its distinct keywords:
// alphabetic tokens longer than three characters that are not stopwords,
// in first-seen order.
func (m *Miner) Tokenize(query string) []string {
	doc, err := prose.NewDocument(query,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var keywords []string
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if len(word) <= 3 || !alphabetic(word) {
			continue
		}
		if _, stop := m.stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

// SiblingPairs returns the document pairs that share a mined keyword,
// deduplicated and sorted. Documents answering the same vocabulary are
// weakly related even when they are never co-cited.
func SiblingPairs(patterns []Pattern) []Candidate {
	byKeyword := make(map[string][]string)
	for _, p := range patterns {
		byKeyword[p.Keyword] = append(byKeyword[p.Keyword], p.DocumentID)
	}

	seen := make(map[[2]string]struct{})
	var pairs []Candidate
	for _, docs := range byKeyword {
		sort.Strings(docs)
		for i := 0; i < len(docs); i++ {
			for j := i + 1; j < len(docs); j++ {
				key := [2]string{docs[i], docs[j]}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				pairs = append(pairs, Candidate{
					DocumentA:  docs[i],
					DocumentB:  docs[j],
					Confidence: siblingSeedWeight,
				})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].DocumentA != pairs[j].DocumentA {
			return pairs[i].DocumentA < pairs[j].DocumentA
		}
		return pairs[i].DocumentB < pairs[j].DocumentB
	})

	return pairs
}

// siblingSeedWeight is the initial weight for keyword-sibling edges.
const siblingSeedWeight = 0.5

func alphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

var defaultStopwords = []string{
	"about", "above", "after", "again", "against", "because", "been",
	"before", "being", "below", "between", "both", "cannot", "could",
	"does", "doing", "down", "during", "each", "from", "further",
	"have", "having", "here", "into", "itself", "more", "most", "once",
	"only", "other", "over", "same", "should", "some", "such", "than",
	"that", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "under", "until", "very", "were", "what", "when",
	"where", "which", "while", "whom", "will", "with", "would", "your",
}
