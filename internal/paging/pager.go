// Package paging serves offset-addressed pages of a row store that may
// still be growing.
package paging

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

// ErrInvalidOffset is returned for a negative page offset.
var ErrInvalidOffset = errors.New("invalid offset: must be >= 0")

// Status says why a page has the rows it has.
type Status string

const (
	// StatusComplete: the page holds pageSize rows.
	StatusComplete Status = "complete"
	// StatusEnd: the store is finished and no rows follow this page.
	StatusEnd Status = "end"
	// StatusPending: the wait budget ran out while the store was still
	// growing. Ask again later.
	StatusPending Status = "pending"
	// StatusFailed: ingestion stopped with an error; no rows will follow.
	StatusFailed Status = "failed"
)

type Page struct {
	Offset int            `json:"offset"`
	Rows   []rowstore.Row `json:"rows"`
	End    bool           `json:"end"`
	Reset  bool           `json:"reset,omitempty"`
	Status Status         `json:"status"`
}

// Options holds the page sizes and the wait budget. A short page waits at
// most RetryAttempts*RetryDelay for the store to catch up.
type Options struct {
	PageSize         int
	PageSizeFinished int
	ResetSize        int
	RetryAttempts    int
	RetryDelay       time.Duration
}

func DefaultOptions() Options {
	return Options{
		PageSize:         50,
		PageSizeFinished: 500,
		ResetSize:        50,
		RetryAttempts:    30,
		RetryDelay:       100 * time.Millisecond,
	}
}

type Pager struct {
	store *rowstore.Store
	opts  Options
}

func New(store *rowstore.Store, opts Options) *Pager {
	return &Pager{store: store, opts: opts}
}

// DefaultPageSize is small while ingestion runs and larger once the store
// is finished.
func (p *Pager) DefaultPageSize() int {
	if p.store.Finished() {
		return p.opts.PageSizeFinished
	}
	return p.opts.PageSize
}

// GetPage returns rows [offset, offset+pageSize). When fewer rows exist and
// the store is not finished it waits for more, within the wait budget,
// and then returns what it has. pageSize <= 0 selects DefaultPageSize.
func (p *Pager) GetPage(ctx context.Context, offset, pageSize int) (Page, error) {
	if offset < 0 {
		return Page{}, ErrInvalidOffset
	}
	if pageSize <= 0 {
		pageSize = p.DefaultPageSize()
	}
	want := offset + pageSize
	if pageSize > math.MaxInt-offset {
		want = math.MaxInt
	}

	if budget := time.Duration(p.opts.RetryAttempts) * p.opts.RetryDelay; budget > 0 {
		wctx, cancel := context.WithTimeout(ctx, budget)
		err := p.store.WaitFor(wctx, func(s rowstore.Snapshot) bool {
			return s.Len >= want || s.Finished
		})
		cancel()
		if err != nil && ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
	}

	return p.page(offset, pageSize), nil
}

func (p *Pager) page(offset, pageSize int) Page {
	snap := p.store.Snapshot()
	rows := p.store.Slice(offset, pageSize)
	pg := Page{Offset: offset, Rows: rows}
	if pg.Rows == nil {
		pg.Rows = []rowstore.Row{}
	}

	switch {
	case snap.Err != nil:
		pg.End = true
		pg.Status = StatusFailed
	case snap.Finished:
		pg.End = pageSize >= snap.Len-offset
		if pg.End {
			pg.Status = StatusEnd
		} else {
			pg.Status = StatusComplete
		}
	case len(rows) >= pageSize:
		pg.Status = StatusComplete
	default:
		pg.Status = StatusPending
	}
	return pg
}

// Reset returns the first ResetSize rows, flagged as a reset. It is used
// to leave a scoped search view.
func (p *Pager) Reset() Page {
	pg := p.page(0, p.opts.ResetSize)
	pg.Reset = true
	return pg
}
