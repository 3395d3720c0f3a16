package audit

import (
	"context"
	"sync"
	"time"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
	"github.com/edirhub/verify-backend/pkg/storage/model"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 128
	// DefaultWriteTimeout bounds the storage and indexing of a single record.
	DefaultWriteTimeout = 30 * time.Second
)

// RecordIndexer is implemented by *Indexer.
type RecordIndexer interface {
	Index(ctx context.Context, rec models.AuditRecord) error
}

var _ RecordIndexer = (*Indexer)(nil)
var _ payments.AuditRecorder = (*Trail)(nil)

// Trail persists and indexes audit records in the background, so that a
// verification never waits for the audit backends. Records are dropped
// with a warning when the queue is full.
type Trail struct {
	storer  model.Storer
	indexer RecordIndexer

	workers      int
	queueSize    int
	writeTimeout time.Duration

	ch     chan models.AuditRecord
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type TrailOption func(*Trail)

func WithWorkers(n int) TrailOption {
	return func(t *Trail) {
		if n > 0 {
			t.workers = n
		}
	}
}

func WithQueueSize(n int) TrailOption {
	return func(t *Trail) {
		if n >= 0 {
			t.queueSize = n
		}
	}
}

func WithWriteTimeout(d time.Duration) TrailOption {
	return func(t *Trail) {
		t.writeTimeout = d
	}
}

// NewTrail starts the workers. Either backend may be nil.
func NewTrail(storer model.Storer, indexer RecordIndexer, opts ...TrailOption) *Trail {
	t := &Trail{
		storer:       storer,
		indexer:      indexer,
		workers:      DefaultWorkers,
		queueSize:    DefaultQueueSize,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ch = make(chan models.AuditRecord, t.queueSize)

	for id := 0; id < t.workers; id++ {
		w := newWorker(id, t.ch, t)
		t.wg.Add(1)
		go w.Start(&t.wg)
	}
	return t
}

// Record enqueues rec. It never blocks.
func (t *Trail) Record(rec models.AuditRecord) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		log.Warnf("trail closed, dropping audit record %s", rec.ID)
		return
	}
	select {
	case t.ch <- rec:
	default:
		log.Warnf("audit queue full, dropping record %s", rec.ID)
	}
}

// Close stops accepting records and waits until the queued ones are written.
func (t *Trail) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Trail) write(rec models.AuditRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()

	if t.storer != nil {
		if err := t.storer.Store(ctx, rec); err != nil {
			return err
		}
	}
	if t.indexer != nil {
		if err := t.indexer.Index(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
