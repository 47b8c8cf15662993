package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// WriteFunc performs database writes inside a batch transaction. tx is nil
// when the writer has no database, which tests use to observe batching.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter groups writes into transactions. Batches are committed in
// submission order by a single committer goroutine; a failing WriteFunc
// rolls back its whole batch.
type BatchWriter struct {
	mu     sync.Mutex
	buf    []WriteFunc
	size   int
	ticker *time.Ticker
	closed bool

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	commitCh chan []WriteFunc
	conn     *sql.DB

	// OnError is called for every failed or dropped batch.
	OnError func(error)

	committed atomic.Int64
	batches   atomic.Int64

	errMu    sync.Mutex
	firstErr error
}

// NewBatchWriter starts a writer that commits every size writes and, when
// interval is positive, whatever is buffered every interval.
func NewBatchWriter(conn *sql.DB, size int, interval time.Duration) *BatchWriter {
	if size <= 0 {
		size = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		buf:      make([]WriteFunc, 0, size),
		size:     size,
		ctx:      ctx,
		cancel:   cancel,
		commitCh: make(chan []WriteFunc, 2),
		conn:     conn,
	}
	bw.wg.Add(1)
	go bw.commitLoop()
	if interval > 0 {
		bw.ticker = time.NewTicker(interval)
		bw.wg.Add(1)
		go bw.tickLoop()
	}
	return bw
}

// Submit buffers w. It blocks while the committer is two batches behind.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.size {
		bw.flushLocked()
	}
	return nil
}

// Committed returns the number of writes in committed batches.
func (bw *BatchWriter) Committed() int64 { return bw.committed.Load() }

// Batches returns the number of committed batches.
func (bw *BatchWriter) Batches() int64 { return bw.batches.Load() }

// Err returns the first batch error seen so far.
func (bw *BatchWriter) Err() error {
	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.firstErr
}

func (bw *BatchWriter) fail(err error) {
	bw.errMu.Lock()
	if bw.firstErr == nil {
		bw.firstErr = err
	}
	bw.errMu.Unlock()
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

// flushLocked hands the buffer to the committer; bw.mu must be held.
func (bw *BatchWriter) flushLocked() {
	if len(bw.buf) == 0 {
		return
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.size)
	select {
	case bw.commitCh <- batch:
	case <-bw.ctx.Done():
		bw.fail(fmt.Errorf("batch writer: dropping batch of %d writes after cancellation", len(batch)))
	}
}

func (bw *BatchWriter) commitLoop() {
	defer bw.wg.Done()
	for batch := range bw.commitCh {
		if err := bw.commit(batch); err != nil {
			bw.fail(err)
			continue
		}
		bw.committed.Add(int64(len(batch)))
		bw.batches.Add(1)
	}
}

func (bw *BatchWriter) commit(batch []WriteFunc) error {
	// Commits run on a background context so Close can drain after cancel.
	ctx := context.Background()
	if bw.conn == nil {
		for _, w := range batch {
			if err := w(ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}
	tx, err := bw.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, w := range batch {
		if err := w(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch of %d writes: %w", len(batch), err)
	}
	return nil
}

func (bw *BatchWriter) tickLoop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.ticker.C:
			bw.mu.Lock()
			bw.flushLocked()
			bw.mu.Unlock()
		}
	}
}

// Close flushes buffered writes, waits for every batch to commit and
// returns the first batch error. A second Close returns ErrBatchWriterClosed.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	if bw.ticker != nil {
		bw.ticker.Stop()
	}
	bw.flushLocked()
	bw.mu.Unlock()

	bw.cancel()
	close(bw.commitCh)
	bw.wg.Wait()
	return bw.Err()
}

// ErrBatchWriterClosed is returned by Submit and Close after Close.
var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

// BatchWriterError is the typed error of BatchWriter state misuse.
type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
