package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceMesh/internal/domain/models"
	drepo "PriceMesh/internal/domain/repository"
)

// SubmissionProcessor routes accepted submissions to the configured backend:
// the Kafka audit topic or the ClickHouse audit table. Entries whose
// synchronous forward fails are requeued and retried in batches by a
// background flusher; acceptance is never undone, the engine already holds
// the entry. Only accepted entries ever reach the retry buffer, so a retry
// can never re-run validation.
type SubmissionProcessor struct {
	pub     drepo.Publisher
	store   drepo.AuditStore
	metrics drepo.Metrics
	backend string
	batchSz int
	batchTO time.Duration

	retryCh  chan *models.FeedEntry
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// NewSubmissionProcessor creates a new SubmissionProcessor instance.
func NewSubmissionProcessor(
	pub drepo.Publisher,
	store drepo.AuditStore,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *SubmissionProcessor {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	bufCap := batchSz * 4
	if bufCap < 64 {
		bufCap = 64
	}
	return &SubmissionProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
		retryCh: make(chan *models.FeedEntry, bufCap),
		stopCh:  make(chan struct{}),
	}
}

// Process forwards a single accepted entry to the configured backend.
func (p *SubmissionProcessor) Process(ctx context.Context, e *models.FeedEntry) error {
	if e == nil {
		return fmt.Errorf("feed entry is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, e)
	case "clickhouse":
		err = p.store.Store(ctx, e)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process submission: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, e.Asset)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch forwards multiple accepted entries in a batch.
func (p *SubmissionProcessor) ProcessBatch(ctx context.Context, entries []*models.FeedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, entries)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, entries)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, e := range entries {
		p.metrics.RecordMessageSent(p.backend, e.Asset)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Retry queues an entry whose synchronous forward failed. Never blocks the
// intake: when the buffer is full the entry is dropped and counted.
func (p *SubmissionProcessor) Retry(e *models.FeedEntry) {
	if e == nil {
		return
	}
	select {
	case p.retryCh <- e:
	default:
		p.metrics.RecordError("retry_overflow")
	}
}

// Start launches the background flusher. Queued entries are flushed as a
// batch when batchSz accumulate or every batchTO, whichever comes first; a
// failed flush keeps the batch for the next tick.
func (p *SubmissionProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *SubmissionProcessor) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()

	var pending []*models.FeedEntry
	for {
		select {
		case <-ctx.Done():
			p.finalFlush(pending)
			return
		case <-p.stopCh:
			p.finalFlush(pending)
			return
		case e := <-p.retryCh:
			pending = append(pending, e)
			if len(pending) >= p.batchSz {
				pending = p.flush(ctx, pending)
			}
		case <-ticker.C:
			pending = p.flush(ctx, pending)
		}
	}
}

// flush retries the pending batch, keeping it on failure. The batch is
// capped so a long backend outage cannot grow it without bound; overflow is
// dropped oldest-first and counted.
func (p *SubmissionProcessor) flush(ctx context.Context, pending []*models.FeedEntry) []*models.FeedEntry {
	if len(pending) == 0 {
		return pending
	}
	if err := p.ProcessBatch(ctx, pending); err != nil {
		p.metrics.RecordError("retry_flush")
		if max := p.batchSz * 4; len(pending) > max {
			dropped := len(pending) - max
			for i := 0; i < dropped; i++ {
				p.metrics.RecordError("retry_overflow")
			}
			pending = pending[dropped:]
		}
		return pending
	}
	return nil
}

// finalFlush drains whatever is queued on shutdown, best effort.
func (p *SubmissionProcessor) finalFlush(pending []*models.FeedEntry) {
	for {
		select {
		case e := <-p.retryCh:
			pending = append(pending, e)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), p.batchTO)
			defer cancel()
			_ = p.flush(ctx, pending)
			return
		}
	}
}

// Close stops the flusher and closes underlying resources if available.
func (p *SubmissionProcessor) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
