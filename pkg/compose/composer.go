// Package compose merges the recency window, semantic hits and the
// working-memory document into one bounded recall context.
package compose

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"memodb/pkg/errs"
	"memodb/pkg/logger"
	"memodb/pkg/models"
	"memodb/pkg/recall"
	"memodb/pkg/store"
	"memodb/pkg/validation"
	"memodb/pkg/workingmem"
)

// Searcher is the slice of the recall engine the composer needs.
type Searcher interface {
	Search(ctx context.Context, queryText string, p recall.SearchParams) ([]models.Message, error)
}

// Composer is read-only and side-effect-free: safe to call concurrently
// and repeatedly.
type Composer struct {
	store    *store.Store
	searcher Searcher
	memory   *workingmem.Manager
}

// New builds a composer. searcher may be nil when semantic recall is
// disabled; recall then simply returns no semantic hits.
func New(st *store.Store, searcher Searcher, memory *workingmem.Manager) *Composer {
	return &Composer{store: st, searcher: searcher, memory: memory}
}

// Params shape one recall request.
type Params struct {
	ThreadID   string
	ResourceID string

	// RecencyLimit is the number of most recent thread messages to
	// include. 0 skips the recency window (semantic-only recall).
	RecencyLimit int

	// SemanticQuery enables similarity retrieval when non-empty.
	SemanticQuery string
	SemanticTopK  int
	MinScore      float32
	// SemanticScope widens similarity search to the whole resource when
	// set to ScopeResource; default restricts to the thread.
	SemanticScope models.MemoryScope

	IncludeWorkingMemory bool
	// WorkingMemoryScope selects which document to attach; default thread.
	WorkingMemoryScope models.MemoryScope
}

// Recall fetches, merges, deduplicates and orders the recall context.
// Recency messages win conflicts with semantic hits: they are guaranteed
// complete and ordered. The merged set is chronological; each message's
// internal part order is untouched.
func (c *Composer) Recall(ctx context.Context, p Params) (models.RecallResult, error) {
	var result models.RecallResult

	var recent []models.Message
	if p.RecencyLimit > 0 {
		lp := validation.ListParams{
			ThreadID:  p.ThreadID,
			PerPage:   validation.PerPageAll,
			Limit:     p.RecencyLimit,
			OrderBy:   validation.OrderByCreatedAt,
			Direction: validation.DirectionDesc,
		}
		// resource-scoped recall spans every thread of the resource
		if p.ThreadID == "" {
			lp.ResourceID = p.ResourceID
		}
		if err := validation.NormalizeList(&lp); err != nil {
			return result, err
		}
		msgs, _, err := c.store.ListMessages(lp)
		if err != nil {
			return result, err
		}
		// newest-first window, reversed to chronological
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
		recent = msgs
	}

	if p.SemanticQuery != "" && c.searcher != nil {
		sp := recall.SearchParams{
			ResourceID: p.ResourceID,
			ThreadID:   p.ThreadID,
			TopK:       p.SemanticTopK,
			MinScore:   p.MinScore,
		}
		if p.SemanticScope == models.ScopeResource {
			sp.ThreadID = ""
		}
		hits, err := c.searcher.Search(ctx, p.SemanticQuery, sp)
		if err != nil {
			// recall degrades gracefully rather than failing whole requests
			logger.Log.Warn("semantic_recall_unavailable", zap.String("thread", p.ThreadID), zap.Error(err))
		} else {
			result.SemanticHits = hits
		}
	}

	merged := make([]models.Message, 0, len(recent)+len(result.SemanticHits))
	seen := make(map[string]struct{}, len(recent))
	for _, m := range recent {
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range result.SemanticHits {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedTS != merged[j].CreatedTS {
			return merged[i].CreatedTS < merged[j].CreatedTS
		}
		return merged[i].Seq < merged[j].Seq
	})
	result.Messages = merged

	if p.IncludeWorkingMemory {
		scope := p.WorkingMemoryScope
		key := p.ThreadID
		if scope == "" {
			scope = models.ScopeThread
		}
		if scope == models.ScopeResource {
			key = p.ResourceID
		}
		doc, err := c.memory.Get(scope, key)
		switch {
		case err == nil:
			result.WorkingMemory = doc.Content
		case errs.IsNotFound(err):
			// no document yet; omit
		default:
			return result, err
		}
	}
	return result, nil
}
