package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestTable(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	return conn
}

func insertVal(v string) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO test (val) VALUES (?)", v)
		return err
	}
}

func TestBatchWriterTransactions(t *testing.T) {
	conn := openTestTable(t)
	defer conn.Close()

	bw := NewBatchWriter(conn, 2, 0)
	for _, v := range []string{"A", "B", "C"} {
		if err := bw.Submit(insertVal(v)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- bw.Close()
	}()
	select {
	case err := <-doneCh:
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch commit/close")
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}
	if bw.Committed() != 3 || bw.Batches() != 2 {
		t.Fatalf("expected 3 writes in 2 batches, got %d in %d", bw.Committed(), bw.Batches())
	}
}

func TestBatchWriterRollback(t *testing.T) {
	conn := openTestTable(t)
	defer conn.Close()

	bw := NewBatchWriter(conn, 2, 0)
	errCh := make(chan error, 1)
	bw.OnError = func(e error) {
		errCh <- e
	}

	// First succeeds, second fails: the whole batch rolls back.
	bw.Submit(insertVal("C"))
	bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return fmt.Errorf("intentional error")
	})

	if err := bw.Close(); err == nil {
		t.Fatal("expected Close to return the batch error")
	}
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	default:
		t.Fatal("expected OnError to be called")
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("failed to query row count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows (rollback), got %d", count)
	}
	if bw.Committed() != 0 {
		t.Fatalf("expected nothing committed, got %d", bw.Committed())
	}
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	bw := NewBatchWriter(nil, 5, 0)
	var mu sync.Mutex
	called := 0
	for i := 0; i < 12; i++ {
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			mu.Lock()
			called++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if called != 12 {
		t.Fatalf("expected 12 calls, got %d", called)
	}
	if bw.Batches() != 3 {
		t.Fatalf("expected 3 batches, got %d", bw.Batches())
	}
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	bw := NewBatchWriter(nil, 10, 20*time.Millisecond)
	flushed := make(chan struct{})
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		close(flushed)
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("interval flush did not happen")
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestBatchWriterClosedTwice(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bw.Close(); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed, got %v", err)
	}
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed on submit, got %v", err)
	}
}

func TestBatchWriterDropsBatchOnCancel(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)
	defer bw.Close()
	errCh := make(chan error, 1)
	bw.OnError = func(e error) {
		errCh <- e
	}

	started := make(chan struct{})
	blocker := make(chan struct{})
	noop := func(ctx context.Context, tx *sql.Tx) error { return nil }

	// The committer blocks on the first batch.
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		close(started)
		<-blocker
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started

	// Two more batches fill the commit queue.
	for i := 0; i < 2; i++ {
		if err := bw.Submit(noop); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	bw.cancel()

	// The queue is full and the writer is canceled, so this batch is dropped.
	if err := bw.Submit(noop); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	close(blocker)

	select {
	case e := <-errCh:
		if e == nil || !strings.Contains(e.Error(), "dropping batch") {
			t.Fatalf("unexpected OnError value: %v", e)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected OnError to be called when batch dropped")
	}
}
