package feedback

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestEventPositive(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"rating 5", Event{OverallRating: intPtr(5)}, true},
		{"rating 4", Event{OverallRating: intPtr(4)}, true},
		{"rating 3", Event{OverallRating: intPtr(3)}, false},
		{"explicit positive", Event{Type: EventTypePositive}, true},
		{"explicit negative", Event{Type: EventTypeNegative}, false},
		{"low rating with positive type", Event{OverallRating: intPtr(2), Type: EventTypePositive}, true},
		{"empty", Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Positive(); got != tt.want {
				t.Fatalf("Positive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourceDocumentsDistinctFirstSeen(t *testing.T) {
	e := Event{Sources: []SourceFeedback{
		{DocumentID: "nfpa-13", Judgment: JudgmentHelpful},
		{DocumentID: "nfpa-72", Judgment: JudgmentHelpful},
		{DocumentID: "nfpa-13", Judgment: JudgmentNotHelpful},
		{DocumentID: "", Judgment: JudgmentHelpful},
	}}

	docs := e.SourceDocuments()
	if len(docs) != 2 {
		t.Fatalf("expected 2 distinct documents, got %v", docs)
	}
	if docs[0] != "nfpa-13" || docs[1] != "nfpa-72" {
		t.Fatalf("expected first-seen order, got %v", docs)
	}
}

func TestValidateAcceptsWellFormedEvent(t *testing.T) {
	e := Event{
		Query:         "sprinkler spacing requirements",
		OverallRating: intPtr(4),
		Dimensions:    map[string]int{DimensionRelevance: 5, DimensionClarity: 3},
		Sources: []SourceFeedback{
			{DocumentID: "doc-1", Judgment: JudgmentHelpful, Stars: intPtr(5)},
		},
		Highlights: []Highlight{
			{Text: "spacing shall not exceed", Sentiment: SentimentPositive},
		},
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		event     Event
		wantField string
	}{
		{
			"rating out of range",
			Event{OverallRating: intPtr(6)},
			"overall_rating",
		},
		{
			"rating zero",
			Event{OverallRating: intPtr(0)},
			"overall_rating",
		},
		{
			"unknown event type",
			Event{Type: EventType("meh")},
			"type",
		},
		{
			"unknown dimension",
			Event{Dimensions: map[string]int{"speed": 3}},
			"dimensions",
		},
		{
			"dimension rating out of range",
			Event{Dimensions: map[string]int{DimensionClarity: 9}},
			"dimensions.clarity",
		},
		{
			"source without document",
			Event{Sources: []SourceFeedback{{Judgment: JudgmentHelpful}}},
			"sources[0].document_id",
		},
		{
			"unknown judgment",
			Event{Sources: []SourceFeedback{{DocumentID: "d", Judgment: Judgment("great")}}},
			"sources[0].judgment",
		},
		{
			"stars out of range",
			Event{Sources: []SourceFeedback{{DocumentID: "d", Judgment: JudgmentHelpful, Stars: intPtr(7)}}},
			"sources[0].stars",
		},
		{
			"highlight without text",
			Event{Highlights: []Highlight{{Sentiment: SentimentPositive}}},
			"highlights[0].text",
		},
		{
			"unknown sentiment",
			Event{Highlights: []Highlight{{Text: "x", Sentiment: Sentiment("mixed")}}},
			"highlights[0].sentiment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Fatalf("expected field %q, got %q (%v)", tt.wantField, verr.Field, verr)
			}
		})
	}
}
