// Package engine is the process-scoped facade over the memory subsystem:
// ordered message persistence, working memory and semantic recall. The
// transport layer (out of scope here) consumes exactly this surface.
package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"memodb/pkg/compose"
	"memodb/pkg/errs"
	"memodb/pkg/logger"
	"memodb/pkg/models"
	"memodb/pkg/recall"
	"memodb/pkg/store"
	"memodb/pkg/validation"
	"memodb/pkg/workingmem"
)

// Options hold recall composition defaults; MemoryConfig overrides them
// per request.
type Options struct {
	// LastMessages is the default recency window of recall composition.
	LastMessages int
	// TopK is the default semantic hit count.
	TopK int
	// MinScore filters weak similarity hits. 0 keeps everything.
	MinScore float32
}

// MemoryConfig is the per-request override shape accepted by
// semanticSearch and recall (e.g. {"lastMessages":0} forces
// semantic-only results).
type MemoryConfig struct {
	LastMessages  *int               `json:"lastMessages,omitempty"`
	TopK          *int               `json:"topK,omitempty"`
	MinScore      *float32           `json:"minScore,omitempty"`
	Scope         models.MemoryScope `json:"scope,omitempty"`
	WorkingMemory *bool              `json:"workingMemory,omitempty"`
}

// Engine wires the components together. All state is explicit; there are
// no package-level mutable registries.
type Engine struct {
	store    *store.Store
	memory   *workingmem.Manager
	recall   *recall.Engine
	indexer  *recall.Indexer
	composer *compose.Composer
	opts     Options
}

// New assembles an engine. recallEngine and indexer may be nil when
// semantic recall is disabled.
func New(st *store.Store, mem *workingmem.Manager, rec *recall.Engine, ix *recall.Indexer, comp *compose.Composer, opts Options) *Engine {
	if opts.LastMessages <= 0 {
		opts.LastMessages = 10
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Engine{store: st, memory: mem, recall: rec, indexer: ix, composer: comp, opts: opts}
}

// --- threads ---

func (e *Engine) CreateThread(th models.Thread) (models.Thread, error) {
	return e.store.CreateThread(th)
}

func (e *Engine) GetThread(threadID string) (models.Thread, error) {
	return e.store.GetThread(threadID)
}

func (e *Engine) UpdateThread(threadID, title string, metadata map[string]any) (models.Thread, error) {
	return e.store.UpdateThread(threadID, title, metadata)
}

func (e *Engine) ListThreads(resourceID string) ([]models.Thread, error) {
	return e.store.ListThreads(resourceID)
}

// DeleteThread cascades message deletion and best-effort purges the
// thread's messages from the semantic index.
func (e *Engine) DeleteThread(ctx context.Context, threadID string) error {
	var indexed []models.Message
	if e.recall != nil {
		lp := validation.ListParams{ThreadID: threadID, PerPage: validation.PerPageAll}
		if err := validation.NormalizeList(&lp); err == nil {
			indexed, _, _ = e.store.ListMessages(lp)
		}
	}
	if err := e.store.DeleteThread(threadID); err != nil {
		return err
	}
	for _, m := range indexed {
		if err := e.recall.Remove(ctx, m.ResourceID, m.ID); err != nil {
			logger.Log.Warn("index_purge_failed", zap.String("msg_id", m.ID), zap.Error(err))
		}
	}
	return nil
}

// --- messages ---

// AppendMessage durably persists the message, then hands it to the async
// indexer. Index enqueue failure is logged and never fails the append.
func (e *Engine) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	stored, err := e.store.AppendMessage(msg)
	if err != nil {
		return models.Message{}, err
	}
	if e.indexer != nil {
		if err := e.indexer.Enqueue(stored); err != nil && !errors.Is(err, recall.ErrQueueFull) {
			logger.Log.Warn("index_enqueue_failed", zap.String("msg_id", stored.ID), zap.Error(err))
		}
	}
	return stored, nil
}

// ListMessages validates, normalizes and serves a scoped listing.
func (e *Engine) ListMessages(p validation.ListParams) ([]models.Message, store.Pagination, error) {
	if err := validation.NormalizeList(&p); err != nil {
		return nil, store.Pagination{}, err
	}
	return e.store.ListMessages(p)
}

// --- working memory ---

// resolveScope derives the document scope from which id was supplied:
// a resourceId selects the resource-shared document, a threadId the
// thread-private one.
func resolveScope(threadID, resourceID string) (models.MemoryScope, string, error) {
	switch {
	case resourceID != "" && threadID != "":
		return "", "", errs.Validationf("scope", "supply either threadId or resourceId, not both")
	case resourceID != "":
		return models.ScopeResource, resourceID, nil
	case threadID != "":
		return models.ScopeThread, threadID, nil
	default:
		return "", "", errs.Validationf("scope", "threadId or resourceId is required")
	}
}

func (e *Engine) GetWorkingMemory(threadID, resourceID string) (models.WorkingMemoryDocument, error) {
	scope, key, err := resolveScope(threadID, resourceID)
	if err != nil {
		return models.WorkingMemoryDocument{}, err
	}
	return e.memory.Get(scope, key)
}

func (e *Engine) UpdateWorkingMemory(threadID, resourceID, content string, opts workingmem.UpdateOptions) (models.WorkingMemoryDocument, error) {
	scope, key, err := resolveScope(threadID, resourceID)
	if err != nil {
		return models.WorkingMemoryDocument{}, err
	}
	return e.memory.Update(scope, key, content, opts)
}

// --- recall ---

// Recall composes the bounded context for one caller request.
func (e *Engine) Recall(ctx context.Context, threadID string, recencyLimit int, semanticQuery string, includeWorkingMemory bool) (models.RecallResult, error) {
	th, err := e.store.GetThread(threadID)
	if err != nil {
		return models.RecallResult{}, err
	}
	return e.composer.Recall(ctx, compose.Params{
		ThreadID:             threadID,
		ResourceID:           th.ResourceID,
		RecencyLimit:         recencyLimit,
		SemanticQuery:        semanticQuery,
		SemanticTopK:         e.opts.TopK,
		MinScore:             e.opts.MinScore,
		IncludeWorkingMemory: includeWorkingMemory,
	})
}

// SemanticSearch serves the semanticSearch operation: similarity hits
// merged with the default recency window, both overridable through
// MemoryConfig ({"lastMessages":0} yields semantic-only results).
func (e *Engine) SemanticSearch(ctx context.Context, query, threadID, resourceID string, limit int, mc *MemoryConfig) (models.RecallResult, error) {
	if err := validation.ValidateSearch(query, limit); err != nil {
		return models.RecallResult{}, err
	}

	scope := models.ScopeThread
	if threadID == "" {
		scope = models.ScopeResource
	}
	if threadID != "" && resourceID == "" {
		th, err := e.store.GetThread(threadID)
		if err != nil {
			return models.RecallResult{}, err
		}
		resourceID = th.ResourceID
	}
	if resourceID == "" {
		return models.RecallResult{}, errs.Validationf("scope", "threadId or resourceId is required")
	}

	p := compose.Params{
		ThreadID:      threadID,
		ResourceID:    resourceID,
		RecencyLimit:  e.opts.LastMessages,
		SemanticQuery: query,
		SemanticTopK:  e.opts.TopK,
		MinScore:      e.opts.MinScore,
		SemanticScope: scope,
	}
	if threadID == "" {
		// resource scope has no single recency timeline
		p.RecencyLimit = 0
	}
	if limit > 0 {
		p.SemanticTopK = limit
	}
	if mc != nil {
		if mc.LastMessages != nil {
			p.RecencyLimit = *mc.LastMessages
		}
		if mc.TopK != nil {
			p.SemanticTopK = *mc.TopK
		}
		if mc.MinScore != nil {
			p.MinScore = *mc.MinScore
		}
		if mc.Scope != "" {
			p.SemanticScope = mc.Scope
		}
		if mc.WorkingMemory != nil {
			p.IncludeWorkingMemory = *mc.WorkingMemory
		}
	}
	return e.composer.Recall(ctx, p)
}
