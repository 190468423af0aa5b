package engine

import (
	"context"
	"testing"
	"time"

	"memodb/pkg/compose"
	"memodb/pkg/errs"
	"memodb/pkg/models"
	"memodb/pkg/recall"
	"memodb/pkg/recall/embedder/mock"
	"memodb/pkg/store"
	"memodb/pkg/validation"
	"memodb/pkg/workingmem"
)

func newEngine(t *testing.T) (*Engine, *recall.Indexer) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mem := workingmem.New(st)
	rec, err := recall.New(mock.New())
	if err != nil {
		t.Fatalf("recall.New: %v", err)
	}
	ix := recall.NewIndexer(rec, recall.IndexerOptions{Workers: 1, QueueCapacity: 64})
	ix.Start(context.Background())
	t.Cleanup(ix.Stop)

	comp := compose.New(st, rec, mem)
	return New(st, mem, rec, ix, comp, Options{}), ix
}

func appendText(t *testing.T, e *Engine, threadID, role, text string) models.Message {
	t.Helper()
	m, err := e.AppendMessage(context.Background(), models.Message{
		ThreadID: threadID,
		Role:     role,
		Content: models.Content{
			FormatVersion: models.ContentFormatVersion,
			Parts:         []models.Part{models.TextPart{Text: text}},
		},
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	return m
}

// waitIndexed polls until the semantic index answers for the given query,
// bounded; the indexer is async by design.
func waitIndexed(t *testing.T, e *Engine, threadID, query string, want int) models.RecallResult {
	t.Helper()
	zero := 0
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := e.SemanticSearch(context.Background(), query, threadID, "", 10, &MemoryConfig{LastMessages: &zero})
		if err != nil {
			t.Fatalf("SemanticSearch: %v", err)
		}
		if len(res.SemanticHits) >= want {
			return res
		}
		if time.Now().After(deadline) {
			t.Fatalf("indexer never caught up: %d hits, want %d", len(res.SemanticHits), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAppendFlowsThroughAsyncIndexer(t *testing.T) {
	e, _ := newEngine(t)
	th, err := e.CreateThread(models.Thread{ResourceID: "r1"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	appendText(t, e, th.ID, "user", "my favorite color is purple")
	appendText(t, e, th.ID, "assistant", "noted, purple it is")

	res := waitIndexed(t, e, th.ID, "favorite color", 1)
	if res.SemanticHits[0].ThreadID != th.ID {
		t.Fatalf("hit from wrong thread: %+v", res.SemanticHits[0])
	}
}

func TestWorkingMemoryScopeResolution(t *testing.T) {
	e, _ := newEngine(t)

	if _, err := e.UpdateWorkingMemory("t1", "", "thread doc", workingmem.UpdateOptions{}); err != nil {
		t.Fatalf("thread update: %v", err)
	}
	if _, err := e.UpdateWorkingMemory("", "r1", "resource doc", workingmem.UpdateOptions{}); err != nil {
		t.Fatalf("resource update: %v", err)
	}

	td, err := e.GetWorkingMemory("t1", "")
	if err != nil || td.Content != "thread doc" {
		t.Fatalf("thread doc = %+v, err %v", td, err)
	}
	rd, err := e.GetWorkingMemory("", "r1")
	if err != nil || rd.Content != "resource doc" {
		t.Fatalf("resource doc = %+v, err %v", rd, err)
	}

	if _, err := e.GetWorkingMemory("t1", "r1"); !errs.IsValidation(err) {
		t.Fatalf("both ids accepted: %v", err)
	}
	if _, err := e.GetWorkingMemory("", ""); !errs.IsValidation(err) {
		t.Fatalf("neither id rejected wrongly: %v", err)
	}
}

func TestRecallComposesRecencyAndWorkingMemory(t *testing.T) {
	e, _ := newEngine(t)
	th, _ := e.CreateThread(models.Thread{ResourceID: "r1"})
	appendText(t, e, th.ID, "user", "remember that my name is Sam")
	appendText(t, e, th.ID, "assistant", "got it")
	if _, err := e.UpdateWorkingMemory(th.ID, "", "name: Sam", workingmem.UpdateOptions{}); err != nil {
		t.Fatalf("UpdateWorkingMemory: %v", err)
	}

	res, err := e.Recall(context.Background(), th.ID, 10, "", true)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(res.Messages))
	}
	if res.Messages[0].Seq > res.Messages[1].Seq {
		t.Fatal("recall window not chronological")
	}
	if res.WorkingMemory != "name: Sam" {
		t.Fatalf("working memory = %q", res.WorkingMemory)
	}
}

func TestRecallUnknownThread(t *testing.T) {
	e, _ := newEngine(t)
	if _, err := e.Recall(context.Background(), "no-such-thread", 5, "", false); !errs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSemanticSearchValidation(t *testing.T) {
	e, _ := newEngine(t)
	if _, err := e.SemanticSearch(context.Background(), "", "t1", "", 5, nil); !errs.IsValidation(err) {
		t.Fatalf("empty query accepted: %v", err)
	}
	if _, err := e.SemanticSearch(context.Background(), "q", "", "", 5, nil); !errs.IsValidation(err) {
		t.Fatalf("missing scope accepted: %v", err)
	}
}

// Resource-scoped search sees messages from every thread of the resource;
// thread-scoped search does not cross threads.
func TestSemanticSearchScopes(t *testing.T) {
	e, _ := newEngine(t)
	t1, _ := e.CreateThread(models.Thread{ResourceID: "r1"})
	t2, _ := e.CreateThread(models.Thread{ResourceID: "r1"})
	appendText(t, e, t1.ID, "user", "purple discussed in thread one")
	appendText(t, e, t2.ID, "user", "purple discussed in thread two")

	waitIndexed(t, e, t1.ID, "purple", 1)
	waitIndexed(t, e, t2.ID, "purple", 1)

	zero := 0
	res, err := e.SemanticSearch(context.Background(), "purple", "", "r1", 10, &MemoryConfig{LastMessages: &zero})
	if err != nil {
		t.Fatalf("resource search: %v", err)
	}
	if len(res.SemanticHits) != 2 {
		t.Fatalf("resource-scope hits = %d, want 2", len(res.SemanticHits))
	}

	res, err = e.SemanticSearch(context.Background(), "purple", t1.ID, "", 10, &MemoryConfig{LastMessages: &zero})
	if err != nil {
		t.Fatalf("thread search: %v", err)
	}
	for _, h := range res.SemanticHits {
		if h.ThreadID != t1.ID {
			t.Fatalf("thread-scope hit leaked from %s", h.ThreadID)
		}
	}
}

// A memory config can turn the recency window back on for a
// resource-scoped search; the window then spans every thread of the
// resource.
func TestSemanticSearchResourceRecencyOverride(t *testing.T) {
	e, _ := newEngine(t)
	t1, _ := e.CreateThread(models.Thread{ResourceID: "r1"})
	t2, _ := e.CreateThread(models.Thread{ResourceID: "r1"})
	appendText(t, e, t1.ID, "user", "first thread note")
	appendText(t, e, t2.ID, "user", "second thread note")

	n := 3
	res, err := e.SemanticSearch(context.Background(), "anything", "", "r1", 0, &MemoryConfig{LastMessages: &n})
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want the 2 resource messages", len(res.Messages))
	}
	threads := map[string]bool{}
	for _, m := range res.Messages {
		threads[m.ThreadID] = true
	}
	if !threads[t1.ID] || !threads[t2.ID] {
		t.Fatalf("recency window missed a thread: %v", threads)
	}
}

func TestDeleteThreadPurgesEverything(t *testing.T) {
	e, _ := newEngine(t)
	th, _ := e.CreateThread(models.Thread{ResourceID: "r1"})
	m := appendText(t, e, th.ID, "user", "ephemeral purple note")
	waitIndexed(t, e, th.ID, "purple", 1)

	if err := e.DeleteThread(context.Background(), th.ID); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	if _, err := e.GetThread(th.ID); !errs.IsNotFound(err) {
		t.Fatalf("thread survives delete: %v", err)
	}
	lp := validation.ListParams{ThreadID: m.ThreadID}
	if _, _, err := e.ListMessages(lp); !errs.IsNotFound(err) {
		t.Fatalf("messages survive delete: %v", err)
	}
}
