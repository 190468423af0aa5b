package recall

import (
	"context"
	"strings"
	"testing"
	"time"

	"memodb/pkg/models"
	"memodb/pkg/recall/embedder/mock"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(mock.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func textMsg(id, threadID, resourceID, text string) models.Message {
	return models.Message{
		ID:         id,
		ThreadID:   threadID,
		ResourceID: resourceID,
		Role:       models.RoleUser,
		Content: models.Content{
			FormatVersion: models.ContentFormatVersion,
			Parts:         []models.Part{models.TextPart{Text: text}},
		},
		CreatedTS: time.Now().UTC().UnixNano(),
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	docs := []models.Message{
		textMsg("m1", "t1", "r1", "my favorite color is purple"),
		textMsg("m2", "t1", "r1", "the weather in Oslo is rainy today"),
		textMsg("m3", "t1", "r1", "remind me to buy groceries tomorrow"),
	}
	for _, m := range docs {
		if err := e.Index(ctx, m); err != nil {
			t.Fatalf("index %s: %v", m.ID, err)
		}
	}

	got, err := e.Search(ctx, "what color does the user like", SearchParams{ResourceID: "r1", TopK: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no hits")
	}
	if got[0].ID != "m1" {
		t.Fatalf("top hit = %s (%q), want m1", got[0].ID, got[0].TextContent())
	}
}

func TestSearchNeverLeavesResourceScope(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_ = e.Index(ctx, textMsg("a1", "t1", "res-alice", "alice likes purple"))
	_ = e.Index(ctx, textMsg("b1", "t2", "res-bob", "bob likes purple"))

	got, err := e.Search(ctx, "who likes purple", SearchParams{ResourceID: "res-alice", TopK: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, m := range got {
		if m.ResourceID != "res-alice" {
			t.Fatalf("hit from foreign resource: %+v", m)
		}
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("hits = %+v, want only a1", got)
	}
}

func TestSearchThreadFilter(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_ = e.Index(ctx, textMsg("m1", "t1", "r1", "purple in thread one"))
	_ = e.Index(ctx, textMsg("m2", "t2", "r1", "purple in thread two"))

	got, err := e.Search(ctx, "purple", SearchParams{ResourceID: "r1", ThreadID: "t2", TopK: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ThreadID != "t2" {
		t.Fatalf("hits = %+v, want only thread t2", got)
	}
}

func TestIndexSkipsMessagesWithoutText(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	m := models.Message{
		ID: "tool-only", ThreadID: "t1", ResourceID: "r1", Role: models.RoleAssistant,
		Content: models.Content{
			FormatVersion: models.ContentFormatVersion,
			Parts:         []models.Part{models.ToolPart{ToolName: "calc", CallID: "c1", State: models.ToolStateResult}},
		},
	}
	if err := e.Index(ctx, m); err != nil {
		t.Fatalf("index: %v", err)
	}
	_ = e.Index(ctx, textMsg("m1", "t1", "r1", "something searchable"))

	got, err := e.Search(ctx, "searchable", SearchParams{ResourceID: "r1", TopK: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range got {
		if h.ID == "tool-only" {
			t.Fatal("text-less message was indexed")
		}
	}
}

func TestSearchMinScoreFilters(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_ = e.Index(ctx, textMsg("m1", "t1", "r1", "completely unrelated gardening tips"))

	got, err := e.Search(ctx, "quantum chromodynamics lattice", SearchParams{ResourceID: "r1", TopK: 10, MinScore: 0.9})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("hits below min score returned: %+v", got)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	e := newEngine(t)
	got, err := e.Search(context.Background(), "anything", SearchParams{ResourceID: "r-empty", TopK: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("hits = %+v, want none", got)
	}
}

func TestRemoveDropsFromIndex(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_ = e.Index(ctx, textMsg("m1", "t1", "r1", "purple preference"))
	if err := e.Remove(ctx, "r1", "m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, err := e.Search(ctx, "purple", SearchParams{ResourceID: "r1", TopK: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("removed message still returned: %+v", got)
	}
}

// Hits carry the full persisted message, parts included, so composers can
// splice them into context without a second store read.
func TestSearchReturnsFullMessage(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	src := textMsg("m1", "t1", "r1", "the export job finished with 42 rows")
	src.Seq = 7
	if err := e.Index(ctx, src); err != nil {
		t.Fatalf("index: %v", err)
	}

	got, err := e.Search(ctx, "export job rows", SearchParams{ResourceID: "r1", TopK: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("hits = %d, want 1", len(got))
	}
	m := got[0]
	if m.Seq != 7 || m.ThreadID != "t1" || !strings.Contains(m.TextContent(), "42 rows") {
		t.Fatalf("payload lost fields: %+v", m)
	}
}
