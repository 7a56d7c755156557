package feedback

import (
	"fmt"
	"time"
)

// Judgment is a user's verdict on one cited source.
type Judgment string

const (
	JudgmentHelpful    Judgment = "helpful"
	JudgmentNotHelpful Judgment = "not_helpful"
	JudgmentIrrelevant Judgment = "irrelevant"
)

func ValidJudgment(j Judgment) bool {
	switch j {
	case JudgmentHelpful, JudgmentNotHelpful, JudgmentIrrelevant:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

func ValidSentiment(s Sentiment) bool {
	return s == SentimentPositive || s == SentimentNegative
}

// EventType is an optional explicit positivity marker carried over from the
// legacy thumbs-up/down feedback form.
type EventType string

const (
	EventTypePositive EventType = "positive"
	EventTypeNegative EventType = "negative"
)

// Rating dimensions recognized on an event.
const (
	DimensionRelevance    = "relevance"
	DimensionClarity      = "clarity"
	DimensionCompleteness = "completeness"
)

// SourceFeedback is a judgment on one cited document within one event.
type SourceFeedback struct {
	DocumentID string
	Page       *int
	Judgment   Judgment
	Stars      *int
	Comment    string
}

// Highlight is a user-marked span of response text.
type Highlight struct {
	Text             string
	Sentiment        Sentiment
	SourceDocumentID string
	Comment          string
}

// Event is one user judgment on one query/response pair. Events are
// append-only: they are written once and never mutated.
type Event struct {
	ID            string
	Timestamp     time.Time
	Query         string
	Response      string
	Type          EventType
	OverallRating *int
	Dimensions    map[string]int
	Sources       []SourceFeedback
	Highlights    []Highlight
	Comment       string
}

// Positive reports whether the event counts as positive feedback for
// learning purposes: overall rating of 4 or better, or an explicit
// positive marker.
func (e *Event) Positive() bool {
	if e.OverallRating != nil && *e.OverallRating >= 4 {
		return true
	}
	return e.Type == EventTypePositive
}

// SourceDocuments returns the distinct document IDs cited by the event's
// source feedbacks, in first-seen order.
func (e *Event) SourceDocuments() []string {
	seen := make(map[string]struct{}, len(e.Sources))
	var docs []string
	for _, s := range e.Sources {
		if s.DocumentID == "" {
			continue
		}
		if _, ok := seen[s.DocumentID]; ok {
			continue
		}
		seen[s.DocumentID] = struct{}{}
		docs = append(docs, s.DocumentID)
	}
	return docs
}

// ValidationError describes a malformed feedback payload. Events failing
// validation are rejected synchronously and never recorded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid feedback: %s: %s", e.Field, e.Reason)
}

func ratingInRange(r int) bool {
	return r >= 1 && r <= 5
}

// Validate checks rating bounds and closed enum fields.
func (e *Event) Validate() error {
	if e.OverallRating != nil && !ratingInRange(*e.OverallRating) {
		return &ValidationError{Field: "overall_rating", Reason: "must be between 1 and 5"}
	}
	if e.Type != "" && e.Type != EventTypePositive && e.Type != EventTypeNegative {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", e.Type)}
	}
	for name, rating := range e.Dimensions {
		switch name {
		case DimensionRelevance, DimensionClarity, DimensionCompleteness:
		default:
			return &ValidationError{Field: "dimensions", Reason: fmt.Sprintf("unknown dimension %q", name)}
		}
		if !ratingInRange(rating) {
			return &ValidationError{Field: "dimensions." + name, Reason: "must be between 1 and 5"}
		}
	}
	for i, s := range e.Sources {
		if s.DocumentID == "" {
			return &ValidationError{Field: fmt.Sprintf("sources[%d].document_id", i), Reason: "required"}
		}
		if !ValidJudgment(s.Judgment) {
			return &ValidationError{Field: fmt.Sprintf("sources[%d].judgment", i), Reason: fmt.Sprintf("unknown judgment %q", s.Judgment)}
		}
		if s.Stars != nil && !ratingInRange(*s.Stars) {
			return &ValidationError{Field: fmt.Sprintf("sources[%d].stars", i), Reason: "must be between 1 and 5"}
		}
	}
	for i, h := range e.Highlights {
		if h.Text == "" {
			return &ValidationError{Field: fmt.Sprintf("highlights[%d].text", i), Reason: "required"}
		}
		if !ValidSentiment(h.Sentiment) {
			return &ValidationError{Field: fmt.Sprintf("highlights[%d].sentiment", i), Reason: fmt.Sprintf("unknown sentiment %q", h.Sentiment)}
		}
	}
	return nil
}

// Query filters a read over the feedback log.
type Query struct {
	Since        *time.Time
	PositiveOnly bool
}

// SourceAggregate holds the per-document feedback counts the quality
// scorer consumes. Aggregates are always recomputed from the full log.
type SourceAggregate struct {
	DocumentID      string
	HelpfulCount    int
	NotHelpfulCount int
	IrrelevantCount int
	TotalFeedbacks  int
	StarsSum        int
	StarsCount      int
}

// Statistics summarizes the whole feedback log.
type Statistics struct {
	TotalEvents      int
	AvgOverallRating float64
	SourceFeedbacks  int
	HelpfulCount     int
	NotHelpfulCount  int
	IrrelevantCount  int
	TotalHighlights  int
}

// HighlightSnippet is a frequently highlighted span of response text.
type HighlightSnippet struct {
	Text             string
	SourceDocumentID string
	Frequency        int
}
