// Package recall indexes persisted messages into an embedded vector
// database and answers scoped top-K similarity queries over them.
//
// Indexing is best-effort and eventually consistent: it runs after the
// durable append succeeds and its failures never fail the append.
package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"memodb/pkg/logger"
	"memodb/pkg/models"
)

// Embedder turns text into a fixed-dimension vector. Implementations wrap
// whatever model the deployment uses; the engine only checks that the
// dimensionality matches the configured index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SearchParams scope a similarity query. ResourceID is always required
// (collections are per resource); a non-empty ThreadID restricts hits to
// that one thread.
type SearchParams struct {
	ResourceID string
	ThreadID   string
	TopK       int
	MinScore   float32
}

// Engine wraps chromem-go, one collection per resource.
type Engine struct {
	db       *chromem.DB
	embedder Embedder
	dims     int

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an engine around the injected embedder.
func New(embedder Embedder) (*Engine, error) {
	dims := embedder.Dimensions()
	if dims <= 0 {
		return nil, fmt.Errorf("embedder reports invalid dimensions %d", dims)
	}
	return &Engine{
		db:          chromem.NewDB(),
		embedder:    embedder,
		dims:        dims,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (e *Engine) collection(resourceID string) (*chromem.Collection, error) {
	name := "res_" + resourceID
	e.mu.RLock()
	col, ok := e.collections[name]
	e.mu.RUnlock()
	if ok {
		return col, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if col, ok := e.collections[name]; ok {
		return col, nil
	}
	col, err := e.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	e.collections[name] = col
	return col, nil
}

// Index embeds the message text and adds it to its resource collection.
// Messages with no text parts are skipped (nothing to embed).
func (e *Engine) Index(ctx context.Context, msg models.Message) error {
	text := msg.TextContent()
	if text == "" {
		return nil
	}

	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed message %s: %w", msg.ID, err)
	}
	if len(emb) != e.dims {
		return fmt.Errorf("embedding dimensions %d do not match index %d", len(emb), e.dims)
	}

	col, err := e.collection(msg.ResourceID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}

	doc := chromem.Document{
		ID:        msg.ID,
		Content:   string(payload),
		Embedding: emb,
		Metadata: map[string]string{
			"thread_id": msg.ThreadID,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s: %w", msg.ID, err)
	}
	logger.Log.Debug("message_indexed", zap.String("msg_id", msg.ID), zap.String("resource", msg.ResourceID))
	return nil
}

// Search returns messages ranked by similarity descending, ties broken by
// created timestamp descending. Results never leave the requested scope.
func (e *Engine) Search(ctx context.Context, queryText string, p SearchParams) ([]models.Message, error) {
	if p.TopK <= 0 {
		return nil, nil
	}

	emb, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(emb) != e.dims {
		return nil, fmt.Errorf("embedding dimensions %d do not match index %d", len(emb), e.dims)
	}

	col, err := e.collection(p.ResourceID)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if p.ThreadID != "" {
		where = map[string]string{"thread_id": p.ThreadID}
	}

	// chromem rejects nResults beyond the number of matching documents,
	// and a where filter can shrink that below col.Count(). Retry with
	// smaller limits until the query fits.
	n := p.TopK
	if c := col.Count(); c < n {
		n = c
	}
	if n == 0 {
		return nil, nil
	}

	var results []chromem.Result
	for ; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, emb, n, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query collection: %w", err)
	}

	type hit struct {
		msg   models.Message
		score float32
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < p.MinScore {
			continue
		}
		var m models.Message
		if err := json.Unmarshal([]byte(r.Content), &m); err != nil {
			logger.Log.Error("indexed_message_invalid", zap.String("doc_id", r.ID), zap.Error(err))
			continue
		}
		hits = append(hits, hit{msg: m, score: r.Similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].msg.CreatedTS > hits[j].msg.CreatedTS
	})

	out := make([]models.Message, len(hits))
	for i, h := range hits {
		out[i] = h.msg
	}
	return out, nil
}

func isInsufficientDocsError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "nResults must be") || strings.Contains(s, "number of documents")
}

// Remove drops a message from the index, if present. Thread deletion
// uses it to purge the deleted thread's messages; retention pruning does
// not touch the index, so pruned messages can linger as hits until the
// in-memory index is rebuilt on restart.
func (e *Engine) Remove(ctx context.Context, resourceID, msgID string) error {
	col, err := e.collection(resourceID)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, msgID)
}
