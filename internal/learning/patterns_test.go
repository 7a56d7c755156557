package learning

import (
	"reflect"
	"testing"

	"github.com/docgraph/backend/internal/feedback"
)

func queryEvent(query string, docs ...string) feedback.Event {
	e := eventCiting(docs...)
	e.Query = query
	return e
}

func TestTokenizeFiltersAndDeduplicates(t *testing.T) {
	m := NewMiner(nil)

	got := m.Tokenize("Where should THAT Sprinkler sprinkler valve info be about")
	want := []string{"sprinkler", "valve", "info"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeDropsShortAndNonAlphabetic(t *testing.T) {
	m := NewMiner(nil)

	got := m.Tokenize("max 250 psi on pipe риser4")
	for _, kw := range got {
		if len(kw) <= 3 {
			t.Fatalf("short token %q survived", kw)
		}
		if kw == "250" || kw == "риser4" {
			t.Fatalf("non-alphabetic token %q survived", kw)
		}
	}
}

func TestTokenizeCustomStopwords(t *testing.T) {
	m := NewMiner([]string{"sprinkler"})

	got := m.Tokenize("sprinkler valve spacing")
	want := []string{"valve", "spacing"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
}

func TestMineKeywordPatterns(t *testing.T) {
	events := []feedback.Event{
		queryEvent("hydrant flow testing", "doc-1"),
		queryEvent("hydrant flow requirements", "doc-1"),
		queryEvent("hydrant maintenance schedule", "doc-1"),
	}

	patterns := NewMiner(nil).Mine(events, 3, 0.6)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %+v", patterns)
	}

	p := patterns[0]
	if p.Keyword != "hydrant" || p.DocumentID != "doc-1" {
		t.Fatalf("unexpected pattern: %+v", p)
	}
	if p.Support != 3 || !almostEqual(p.Confidence, 1.0) {
		t.Fatalf("expected support 3 at confidence 1.0, got %+v", p)
	}
}

func TestMineConfidenceDenominatorCountsAllKeywordEvents(t *testing.T) {
	// "alarm" appears in five events but only three cite doc-1, so the
	// pattern confidence is 3/5 and fails a 0.7 threshold.
	events := []feedback.Event{
		queryEvent("alarm panel wiring", "doc-1"),
		queryEvent("alarm panel location", "doc-1"),
		queryEvent("alarm testing interval", "doc-1"),
		queryEvent("alarm battery backup"),
		queryEvent("alarm audibility levels"),
	}

	if patterns := NewMiner(nil).Mine(events, 3, 0.7); len(patterns) != 0 {
		t.Fatalf("expected no patterns above 0.7, got %+v", patterns)
	}

	patterns := NewMiner(nil).Mine(events, 3, 0.5)
	if len(patterns) != 1 || !almostEqual(patterns[0].Confidence, 0.6) {
		t.Fatalf("expected one pattern at 0.6, got %+v", patterns)
	}
}

func TestMineSkipsEventsWithoutQueries(t *testing.T) {
	events := []feedback.Event{
		eventCiting("doc-1"),
		eventCiting("doc-1"),
		eventCiting("doc-1"),
	}
	for i := range events {
		events[i].Query = ""
	}

	if patterns := NewMiner(nil).Mine(events, 1, 0.1); len(patterns) != 0 {
		t.Fatalf("expected no patterns from queryless events, got %+v", patterns)
	}
}

func TestSiblingPairs(t *testing.T) {
	patterns := []Pattern{
		{Keyword: "hydrant", DocumentID: "doc-b"},
		{Keyword: "hydrant", DocumentID: "doc-a"},
		{Keyword: "hydrant", DocumentID: "doc-c"},
		{Keyword: "valve", DocumentID: "doc-a"},
		{Keyword: "valve", DocumentID: "doc-b"},
	}

	pairs := SiblingPairs(patterns)
	if len(pairs) != 3 {
		t.Fatalf("expected 3 deduplicated pairs, got %+v", pairs)
	}
	want := [][2]string{{"doc-a", "doc-b"}, {"doc-a", "doc-c"}, {"doc-b", "doc-c"}}
	for i, p := range pairs {
		if p.DocumentA != want[i][0] || p.DocumentB != want[i][1] {
			t.Fatalf("unexpected pair order: %+v", pairs)
		}
		if !almostEqual(p.Confidence, 0.5) {
			t.Fatalf("sibling pairs seed at 0.5, got %v", p.Confidence)
		}
	}
}
