// Package store implements the durable message store on Pebble.
//
// Messages are append-mostly: each append writes the message under its
// thread, under its resource (denormalized for cross-thread scope
// queries) and under its id (idempotency). Writers are serialized per
// thread; readers are safe concurrently.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memodb/pkg/errs"
	"memodb/pkg/logger"
	"memodb/pkg/models"
	"memodb/pkg/validation"
)

// Store owns a Pebble database handle. Open once per process.
type Store struct {
	db   *pebble.DB
	path string

	// per-thread append serialization
	appendMu sync.Map // threadID -> *sync.Mutex
}

// Pagination describes the page window of a list result.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("open pebble at %s: %w (%v)", path, errs.ErrStorageUnavailable, err)
	}
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Log.Info("pebble_closed")
	return err
}

// Path returns the database directory.
func (s *Store) Path() string { return s.path }

func (s *Store) threadLock(threadID string) *sync.Mutex {
	mu, _ := s.appendMu.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// --- threads ---

// CreateThread persists thread metadata, assigning id and timestamps when
// absent.
func (s *Store) CreateThread(th models.Thread) (models.Thread, error) {
	if th.ResourceID == "" {
		return models.Thread{}, errs.Validationf("resource", "resource id is required")
	}
	if th.ID == "" {
		th.ID = uuid.NewString()
	}
	now := time.Now().UTC().UnixNano()
	if th.CreatedTS == 0 {
		th.CreatedTS = now
	}
	th.UpdatedTS = now
	if err := s.saveThread(th); err != nil {
		return models.Thread{}, err
	}
	logger.Log.Info("thread_created", zap.String("thread", th.ID), zap.String("resource", th.ResourceID))
	return th, nil
}

// GetThread returns thread metadata or ErrNotFound.
func (s *Store) GetThread(threadID string) (models.Thread, error) {
	var th models.Thread
	if err := s.getJSON("get_thread", threadMetaKey(threadID), &th); err != nil {
		return models.Thread{}, err
	}
	return th, nil
}

// UpdateThread replaces title and metadata and bumps UpdatedTS. LastSeq
// and CreatedTS are preserved from the stored record.
func (s *Store) UpdateThread(threadID, title string, metadata map[string]any) (models.Thread, error) {
	mu := s.threadLock(threadID)
	mu.Lock()
	defer mu.Unlock()

	th, err := s.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if title != "" {
		th.Title = title
	}
	if metadata != nil {
		th.Metadata = metadata
	}
	th.UpdatedTS = time.Now().UTC().UnixNano()
	if err := s.saveThread(th); err != nil {
		return models.Thread{}, err
	}
	return th, nil
}

// ListThreads returns all threads, optionally filtered to one resource.
func (s *Store) ListThreads(resourceID string) ([]models.Thread, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("list threads: %w (%v)", errs.ErrStorageUnavailable, err)
	}
	defer iter.Close()

	prefix := []byte("thread:")
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var th models.Thread
		if err := json.Unmarshal(iter.Value(), &th); err != nil {
			logger.Log.Error("thread_meta_invalid", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		if resourceID != "" && th.ResourceID != resourceID {
			continue
		}
		out = append(out, th)
	}
	return out, iter.Error()
}

// DeleteThread removes a thread, cascading its messages, their resource
// and id index entries, and the thread-scoped working memory document.
func (s *Store) DeleteThread(threadID string) error {
	mu := s.threadLock(threadID)
	mu.Lock()
	defer mu.Unlock()

	th, err := s.GetThread(threadID)
	if err != nil {
		return err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("delete thread %s: %w (%v)", threadID, errs.ErrStorageUnavailable, err)
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	prefix := msgPrefix(threadID)
	count := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err == nil {
			_ = batch.Delete(resMsgKey(th.ResourceID, m.CreatedTS, m.Seq), nil)
			_ = batch.Delete(msgIDKey(m.ID), nil)
		}
		_ = batch.Delete(append([]byte(nil), iter.Key()...), nil)
		count++
	}
	_ = batch.Delete(wmKey(models.ScopeThread, threadID), nil)
	_ = batch.Delete(threadMetaKey(threadID), nil)

	if err := withRetry("delete_thread", func() error { return batch.Commit(pebble.Sync) }); err != nil {
		return err
	}
	threadDeletes.Inc()
	logger.Log.Info("thread_deleted", zap.String("thread", threadID), zap.Int("messages", count))
	return nil
}

func (s *Store) saveThread(th models.Thread) error {
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	return withRetry("save_thread", func() error {
		return s.db.Set(threadMetaKey(th.ID), data, pebble.Sync)
	})
}

// --- messages ---

// AppendMessage durably appends a message to its thread, assigning the
// per-thread sequence number and created timestamp. Idempotent on id:
// re-appending an already stored id returns the stored record unchanged.
func (s *Store) AppendMessage(msg models.Message) (models.Message, error) {
	if err := validation.ValidateMessage(msg); err != nil {
		return models.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	mu := s.threadLock(msg.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	// idempotency: at-least-once delivery from upstream. Checked under the
	// thread lock so racing redeliveries of one id serialize against the
	// commit that writes the index entry.
	var stored models.Message
	err := s.getJSON("get_message", msgIDKey(msg.ID), &stored)
	if err == nil {
		appendDuplicates.Inc()
		logger.Log.Debug("message_append_duplicate", zap.String("msg_id", msg.ID))
		return stored, nil
	}
	if !errs.IsNotFound(err) {
		return models.Message{}, err
	}

	th, err := s.GetThread(msg.ThreadID)
	if err != nil {
		if errs.IsNotFound(err) {
			return models.Message{}, fmt.Errorf("thread %s: %w", msg.ThreadID, errs.ErrNotFound)
		}
		return models.Message{}, err
	}

	th.LastSeq++
	msg.Seq = th.LastSeq
	msg.ResourceID = th.ResourceID
	if msg.CreatedTS == 0 {
		msg.CreatedTS = time.Now().UTC().UnixNano()
	}
	if msg.Content.FormatVersion == 0 {
		msg.Content.FormatVersion = models.ContentFormatVersion
	}
	th.UpdatedTS = msg.CreatedTS

	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	thData, err := json.Marshal(th)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal thread: %w", err)
	}

	batch := s.db.NewBatch()
	_ = batch.Set(msgKey(msg.ThreadID, msg.CreatedTS, msg.Seq), data, nil)
	_ = batch.Set(resMsgKey(msg.ResourceID, msg.CreatedTS, msg.Seq), data, nil)
	_ = batch.Set(msgIDKey(msg.ID), data, nil)
	_ = batch.Set(threadMetaKey(th.ID), thData, nil)

	if err := withRetry("append_message", func() error { return batch.Commit(pebble.Sync) }); err != nil {
		return models.Message{}, err
	}
	appendsTotal.Inc()
	logger.Log.Info("message_saved",
		zap.String("thread", msg.ThreadID),
		zap.String("msg_id", msg.ID),
		zap.Uint64("seq", msg.Seq),
	)
	return msg, nil
}

// GetMessage returns a message by id or ErrNotFound.
func (s *Store) GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	if err := s.getJSON("get_message", msgIDKey(msgID), &m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// ListMessages returns the scoped, ordered, paginated message window.
// Params must have been normalized via validation.NormalizeList.
func (s *Store) ListMessages(p validation.ListParams) ([]models.Message, Pagination, error) {
	var prefix []byte
	if p.ThreadID != "" {
		if _, err := s.GetThread(p.ThreadID); err != nil {
			return nil, Pagination{}, err
		}
		prefix = msgPrefix(p.ThreadID)
	} else {
		prefix = resMsgPrefix(p.ResourceID)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list messages: %w (%v)", errs.ErrStorageUnavailable, err)
	}
	defer iter.Close()

	// keys sort chronologically; collect ascending then apply direction
	var msgs []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Log.Error("message_invalid_json", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	if err := iter.Error(); err != nil {
		return nil, Pagination{}, fmt.Errorf("list messages: %w (%v)", errs.ErrStorageUnavailable, err)
	}

	if p.Direction == validation.DirectionDesc {
		reverse(msgs)
	}
	if p.Limit > 0 && p.Limit < len(msgs) {
		msgs = msgs[:p.Limit]
	}

	total := len(msgs)
	pg := Pagination{Page: p.Page, PerPage: p.PerPage, Total: total}
	if p.PerPage == validation.PerPageAll {
		pg.PerPage = total
		pg.TotalPages = 1
		listsTotal.Inc()
		return msgs, pg, nil
	}

	pg.TotalPages = (total + p.PerPage - 1) / p.PerPage
	start := p.Page * p.PerPage
	if start >= total {
		msgs = nil
	} else {
		end := start + p.PerPage
		if end > total {
			end = total
		}
		msgs = msgs[start:end]
	}
	pg.HasMore = (p.Page+1)*p.PerPage < total
	listsTotal.Inc()
	return msgs, pg, nil
}

// PruneBefore deletes messages created before cutoff (ns) across all
// threads, including their index entries. Returns the number removed.
func (s *Store) PruneBefore(cutoffTS int64) (int, error) {
	threads, err := s.ListThreads("")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, th := range threads {
		mu := s.threadLock(th.ID)
		mu.Lock()

		iter, err := s.db.NewIter(&pebble.IterOptions{})
		if err != nil {
			mu.Unlock()
			return removed, fmt.Errorf("prune: %w (%v)", errs.ErrStorageUnavailable, err)
		}
		batch := s.db.NewBatch()
		prefix := msgPrefix(th.ID)
		n := 0
		for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), prefix) {
				break
			}
			ts, ok := tsFromMsgKey(iter.Key())
			if !ok || ts >= cutoffTS {
				break
			}
			var m models.Message
			if err := json.Unmarshal(iter.Value(), &m); err == nil {
				_ = batch.Delete(resMsgKey(th.ResourceID, m.CreatedTS, m.Seq), nil)
				_ = batch.Delete(msgIDKey(m.ID), nil)
			}
			_ = batch.Delete(append([]byte(nil), iter.Key()...), nil)
			n++
		}
		iter.Close()
		if n > 0 {
			if err := withRetry("prune_messages", func() error { return batch.Commit(pebble.Sync) }); err != nil {
				mu.Unlock()
				return removed, err
			}
			prunedMessages.Add(float64(n))
			removed += n
		} else {
			_ = batch.Close()
		}
		mu.Unlock()
	}
	if removed > 0 {
		logger.Log.Info("retention_pruned", zap.Int("messages", removed))
	}
	return removed, nil
}

// --- working memory ---

// GetWorkingMemory returns the document for (scope,key) or ErrNotFound.
func (s *Store) GetWorkingMemory(scope models.MemoryScope, key string) (models.WorkingMemoryDocument, error) {
	var doc models.WorkingMemoryDocument
	if err := s.getJSON("get_working_memory", wmKey(scope, key), &doc); err != nil {
		return models.WorkingMemoryDocument{}, err
	}
	return doc, nil
}

// PutWorkingMemory replaces the document for (scope,key) atomically.
func (s *Store) PutWorkingMemory(doc models.WorkingMemoryDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal working memory: %w", err)
	}
	return withRetry("put_working_memory", func() error {
		return s.db.Set(wmKey(doc.Scope, doc.Key), data, pebble.Sync)
	})
}

// --- helpers ---

func (s *Store) getJSON(op string, key []byte, out any) error {
	var data []byte
	err := withRetry(op, func() error {
		v, closer, err := s.db.Get(key)
		if err != nil {
			return err
		}
		data = append([]byte(nil), v...)
		return closer.Close()
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
