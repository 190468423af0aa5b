// Package workingmem manages the single mutable scratchpad document kept
// per thread or per resource, distinct from message history.
package workingmem

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memodb/pkg/errs"
	"memodb/pkg/logger"
	"memodb/pkg/models"
	"memodb/pkg/store"
	"memodb/pkg/validation"
)

// Manager serializes updates per (scope,key). Two concurrent turns on
// different threads of one resource contend on the same resource-scoped
// document; their writes are applied whole, in the order received, never
// interleaved.
type Manager struct {
	store *store.Store
	locks sync.Map // scope:key -> *sync.Mutex
}

// New returns a manager backed by the given store.
func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// UpdateOptions tune a single update call.
type UpdateOptions struct {
	// ExpectedVersion enables the optimistic concurrency check. 0 (unset)
	// means last-write-wins, which matches single-agent-run usage where
	// one run is the only writer for the duration of a turn.
	ExpectedVersion uint64
	// Template constrains the document shape from this update onward.
	// Empty keeps any previously stored template.
	Template string
}

// Get returns the current document for (scope,key) or ErrNotFound when no
// update has created it yet.
func (m *Manager) Get(scope models.MemoryScope, key string) (models.WorkingMemoryDocument, error) {
	return m.store.GetWorkingMemory(scope, key)
}

// Update replaces the document content atomically. The document is
// created lazily on first update. Version increases monotonically on
// every successful write; when opts.ExpectedVersion is set and stale the
// update fails with ErrConcurrentModification and the stored content is
// untouched. Template-constrained documents reject non-conforming content
// with a ValidationError, retaining the prior content.
func (m *Manager) Update(scope models.MemoryScope, key, content string, opts UpdateOptions) (models.WorkingMemoryDocument, error) {
	if err := validation.ValidateWorkingMemoryUpdate(content); err != nil {
		return models.WorkingMemoryDocument{}, err
	}

	lk := m.lock(scope, key)
	lk.Lock()
	defer lk.Unlock()

	doc, err := m.store.GetWorkingMemory(scope, key)
	switch {
	case errs.IsNotFound(err):
		doc = models.WorkingMemoryDocument{Scope: scope, Key: key}
	case err != nil:
		return models.WorkingMemoryDocument{}, err
	}

	if opts.ExpectedVersion != 0 && opts.ExpectedVersion != doc.Version {
		logger.Log.Warn("working_memory_version_conflict",
			zap.String("scope", string(scope)),
			zap.String("key", key),
			zap.Uint64("expected", opts.ExpectedVersion),
			zap.Uint64("stored", doc.Version),
		)
		return models.WorkingMemoryDocument{}, errs.ErrConcurrentModification
	}

	if opts.Template != "" {
		doc.Template = opts.Template
	}
	if doc.Template != "" {
		if err := validateTemplate(doc.Template, content); err != nil {
			return models.WorkingMemoryDocument{}, err
		}
	}

	doc.Content = content
	doc.Version++
	doc.UpdatedTS = time.Now().UTC().UnixNano()
	if err := m.store.PutWorkingMemory(doc); err != nil {
		return models.WorkingMemoryDocument{}, err
	}
	logger.Log.Info("working_memory_updated",
		zap.String("scope", string(scope)),
		zap.String("key", key),
		zap.Uint64("version", doc.Version),
	)
	return doc, nil
}

func (m *Manager) lock(scope models.MemoryScope, key string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(string(scope)+":"+key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// validateTemplate checks that every markdown heading of the template is
// present in the content. Headings are the template's structural shape;
// free text under them is unconstrained.
func validateTemplate(template, content string) error {
	for _, line := range strings.Split(template, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(content, line) {
			return errs.Validationf("content", "missing template section %q", line)
		}
	}
	return nil
}
