// Package rowstore holds the flattened rows of one document.
//
// A Store is append-only: rows are never mutated or removed, the length
// only grows and the finished flag only goes from false to true. Writes go
// through the single Writer returned by New; any number of goroutines may
// read.
package rowstore

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when appending to a finished or failed store.
var ErrClosed = errors.New("rowstore: store is closed")

// Snapshot is a consistent view of the store's progress.
type Snapshot struct {
	Len      int
	Finished bool
	Err      error
}

type Store struct {
	mu       sync.RWMutex
	rows     []Row
	finished bool
	err      error
	changed  chan struct{}
}

// Writer is the append handle of a Store.
type Writer struct {
	s *Store
}

// New creates an empty store and its only writer.
func New() (*Store, *Writer) {
	s := &Store{changed: make(chan struct{})}
	return s, &Writer{s: s}
}

// notifyLocked wakes everyone waiting on Changed. Caller holds s.mu.
func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Append adds rows in order. Readers see either none or all of them.
func (w *Writer) Append(rows ...Row) error {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrClosed
	}
	if len(rows) == 0 {
		return nil
	}
	s.rows = append(s.rows, rows...)
	s.notifyLocked()
	return nil
}

// Finish marks the store complete. Later calls are no-ops.
func (w *Writer) Finish() {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true
	s.notifyLocked()
}

// Fail terminates the store with err. Rows already appended stay readable.
func (w *Writer) Fail(err error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.notifyLocked()
}

// Store returns the store w writes to.
func (w *Writer) Store() *Store { return w.s }

// Len returns the number of rows appended so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Finished reports whether no more rows will be appended.
func (s *Store) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

// Err returns the error the store was failed with, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Len: len(s.rows), Finished: s.finished, Err: s.err}
}

// Changed returns a channel closed at the next append, finish or failure.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Slice returns up to limit rows starting at offset. The result may be
// shorter than limit, or empty, when the rows do not exist yet. Callers
// must not modify the returned rows.
func (s *Store) Slice(offset, limit int) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.rows)
	if offset < 0 || offset >= n || limit <= 0 {
		return nil
	}
	end := n
	if limit < n-offset {
		end = offset + limit
	}
	return s.rows[offset:end:end]
}

// rowsSnapshot returns every row present now. Elements below the returned
// length are never written again, so the slice can be read without a lock.
func (s *Store) rowsSnapshot() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows[:len(s.rows):len(s.rows)]
}

// Scan calls fn for each row at or after from that was present when Scan
// was called, stopping early when fn returns false.
func (s *Store) Scan(from int, fn func(i int, r Row) bool) {
	rows := s.rowsSnapshot()
	if from < 0 {
		from = 0
	}
	for i := from; i < len(rows); i++ {
		if !fn(i, rows[i]) {
			return
		}
	}
}

// Index returns the index of the first row at or after from for which
// match returns true, looking only at rows present when called. It returns
// -1 when no row matches.
func (s *Store) Index(from int, match func(Row) bool) int {
	idx := -1
	s.Scan(from, func(i int, r Row) bool {
		if match(r) {
			idx = i
			return false
		}
		return true
	})
	return idx
}

// WaitFor blocks until cond holds for the store's snapshot or ctx is done.
func (s *Store) WaitFor(ctx context.Context, cond func(Snapshot) bool) error {
	for {
		s.mu.RLock()
		snap := Snapshot{Len: len(s.rows), Finished: s.finished, Err: s.err}
		ch := s.changed
		s.mu.RUnlock()

		if cond(snap) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
