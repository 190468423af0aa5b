package models

// MemoryScope selects the owner of a working-memory document.
type MemoryScope string

const (
	// ScopeThread keys the document by thread id; private to one thread.
	ScopeThread MemoryScope = "thread"
	// ScopeResource keys the document by resource id; shared across every
	// thread of that resource.
	ScopeResource MemoryScope = "resource"
)

// WorkingMemoryDocument is the single mutable scratchpad per (scope,key).
// Content is replaced atomically on every update; Version increases
// monotonically and detects lost updates when callers supply it back.
type WorkingMemoryDocument struct {
	Scope    MemoryScope `json:"scope"`
	Key      string      `json:"key"`
	Content  string      `json:"content"`
	Template string      `json:"template,omitempty"`
	Version  uint64      `json:"version"`
	// Updated timestamp (ns)
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// RecallResult is the composed, ephemeral answer to a recall request.
// Messages is the merged recency+semantic set in chronological order;
// SemanticHits preserves the similarity ranking of the semantic subset.
type RecallResult struct {
	Messages      []Message `json:"messages"`
	WorkingMemory string    `json:"working_memory,omitempty"`
	SemanticHits  []Message `json:"semantic_hits,omitempty"`
}
