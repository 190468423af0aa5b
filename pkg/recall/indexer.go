package recall

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"memodb/pkg/logger"
	"memodb/pkg/models"
)

// ErrQueueFull is returned by Enqueue when the index queue is at capacity.
// Callers treat it as a dropped best-effort index, never a failed append.
var ErrQueueFull = errors.New("index queue full")

var (
	indexEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_index_enqueued_total",
		Help: "Messages accepted into the index queue.",
	})
	indexDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_index_dropped_total",
		Help: "Messages dropped because the index queue was full.",
	})
	indexFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_index_failures_total",
		Help: "Index attempts that failed after retries.",
	})
)

// item carries one queued message. Payload lives in a pooled buffer;
// workers must call done() exactly once after processing.
type item struct {
	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

func (it *item) done() {
	it.once.Do(func() {
		if it.buf != nil {
			bytebufferpool.Put(it.buf)
			it.buf = nil
		}
	})
}

// IndexerOptions configure the async pipeline.
type IndexerOptions struct {
	// Workers is the number of indexing goroutines. Default 2.
	Workers int
	// QueueCapacity bounds the in-memory queue. Default 4096.
	QueueCapacity int
	// EmbedRPS rate-limits embedder calls across workers. 0 = unlimited.
	EmbedRPS float64
}

// Indexer feeds appended messages into the Engine asynchronously with
// bounded retries. Failures are logged and counted; nothing propagates to
// the append path.
type Indexer struct {
	engine  *Engine
	ch      chan *item
	limiter *rate.Limiter
	workers int

	wg sync.WaitGroup

	// mu orders Enqueue sends against the close in Stop; a send never
	// races the channel close.
	mu     sync.RWMutex
	closed bool
}

// NewIndexer builds an indexer over the given engine.
func NewIndexer(engine *Engine, opts IndexerOptions) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 4096
	}
	var limiter *rate.Limiter
	if opts.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedRPS), 1)
	}
	return &Indexer{
		engine:  engine,
		ch:      make(chan *item, opts.QueueCapacity),
		limiter: limiter,
		workers: opts.Workers,
	}
}

// Start launches the worker loops. Workers exit when ctx is canceled or
// Stop is called.
func (ix *Indexer) Start(ctx context.Context) {
	for i := 0; i < ix.workers; i++ {
		ix.wg.Add(1)
		go ix.run(ctx)
	}
	logger.Log.Info("indexer_started", zap.Int("workers", ix.workers), zap.Int("capacity", cap(ix.ch)))
}

// Stop drains no further work and waits for in-flight items.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.closed {
		ix.closed = true
		close(ix.ch)
	}
	ix.mu.Unlock()
	ix.wg.Wait()
}

// Enqueue snapshots the message into a pooled buffer and queues it. When
// the queue is full the message is dropped and counted; the index catches
// up from the durable store out-of-band if needed.
func (ix *Indexer) Enqueue(msg models.Message) error {
	buf := bytebufferpool.Get()
	data, err := json.Marshal(msg)
	if err != nil {
		bytebufferpool.Put(buf)
		return err
	}
	_, _ = buf.Write(data)
	it := &item{buf: buf}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		it.done()
		return ErrQueueFull
	}
	select {
	case ix.ch <- it:
		indexEnqueued.Inc()
		return nil
	default:
		it.done()
		indexDropped.Inc()
		logger.Log.Warn("index_queue_full", zap.String("msg_id", msg.ID))
		return ErrQueueFull
	}
}

func (ix *Indexer) run(ctx context.Context) {
	defer ix.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-ix.ch:
			if !ok {
				return
			}
			ix.process(ctx, it)
		}
	}
}

func (ix *Indexer) process(ctx context.Context, it *item) {
	defer it.done()

	var msg models.Message
	if err := json.Unmarshal(it.buf.B, &msg); err != nil {
		logger.Log.Error("index_payload_invalid", zap.Error(err))
		indexFailures.Inc()
		return
	}

	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			return
		}
	}

	var err error
	wait := 50 * time.Millisecond
	for attempt := 1; attempt <= 3; attempt++ {
		if err = ix.engine.Index(ctx, msg); err == nil {
			return
		}
		if attempt < 3 {
			select {
			case <-time.After(wait):
				wait *= 2
			case <-ctx.Done():
				return
			}
		}
	}
	indexFailures.Inc()
	logger.Log.Error("index_failed", zap.String("msg_id", msg.ID), zap.Error(err))
}
