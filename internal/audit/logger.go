package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// LoggerConfig configures the async sink.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// AsyncSink buffers entries and writes them in batches from a background
// worker. Write never blocks; entries are dropped when the buffer is full.
type AsyncSink struct {
	ch      chan Entry
	store   *Store
	db      database.Querier
	cfg     LoggerConfig
	metrics *Metrics
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewAsyncSink(db database.Querier, store *Store, cfg LoggerConfig, metrics *Metrics) *AsyncSink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &AsyncSink{
		ch:      make(chan Entry, cfg.BufferSize),
		store:   store,
		db:      db,
		cfg:     cfg,
		metrics: metrics,
		cancel:  cancel,
	}

	s.wg.Add(1)
	go s.worker(ctx)

	return s
}

func (s *AsyncSink) Write(_ context.Context, e Entry) error {
	select {
	case s.ch <- e:
	default:
		s.metrics.incDropped()
		slog.Warn("audit buffer full, dropping entry", "action", e.Action, "entity_type", e.EntityType)
	}
	return nil
}

// Close flushes remaining entries and stops the worker.
func (s *AsyncSink) Close() error {
	s.cancel()
	s.wg.Wait()
	s.flush(s.drainAll())
	return nil
}

func (s *AsyncSink) worker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []Entry

	for {
		select {
		case <-ctx.Done():
			batch = append(batch, s.drainAll()...)
			s.flush(batch)
			return

		case e := <-s.ch:
			batch = append(batch, e)
			if len(batch) >= s.cfg.BatchSize {
				s.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = nil
			}
		}
	}
}

func (s *AsyncSink) flush(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.InsertBatch(ctx, s.db, entries); err != nil {
		s.metrics.incFailure("flush")
		slog.Error("audit flush failed", "error", err, "count", len(entries))
	}
}

func (s *AsyncSink) drainAll() []Entry {
	var entries []Entry
	for {
		select {
		case e := <-s.ch:
			entries = append(entries, e)
		default:
			return entries
		}
	}
}
