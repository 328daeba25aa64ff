// Package search finds the first row matching a term and delivers the rows
// a caller needs to reach it.
//
// A match inside what the caller already loaded is reported directly. A
// match a moderate distance away is reached by streaming fixed-size pages
// from the caller's loaded boundary. A match further away than MaxPages
// pages is reported in scoped mode: one window of rows around the match,
// with an index relative to that window.
package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/groupcache/lru"

	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

// ErrEmptyTerm is returned for an empty search term.
var ErrEmptyTerm = errors.New("empty search term")

// Mode says how a result was delivered.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeStreamed Mode = "streamed"
	ModeScoped   Mode = "scoped"
)

// Result is the outcome of a search. Index is -1 when nothing matched; in
// scoped mode it is relative to Window, which starts at WindowStart.
// Complete is false when the store was still growing, so a -1 only covers
// the rows ingested so far.
type Result struct {
	Term        string         `json:"term"`
	Index       int            `json:"index"`
	Mode        Mode           `json:"mode"`
	Pages       int            `json:"pages,omitempty"`
	WindowStart int            `json:"windowStart,omitempty"`
	Window      []rowstore.Row `json:"rows,omitempty"`
	Complete    bool           `json:"complete"`
}

func (r Result) Scoped() bool { return r.Mode == ModeScoped }

// Found reports whether the term matched a row.
func (r Result) Found() bool { return r.Index >= 0 }

// Options tunes the search. PageSize and MaxPages decide between streaming
// and scoped mode; ScopeRadius is the number of rows kept on each side of
// a scoped match.
type Options struct {
	PageSize    int
	MaxPages    int
	ScopeRadius int
	PageDelay   time.Duration
	CacheSize   int
}

func DefaultOptions() Options {
	return Options{
		PageSize:    5000,
		MaxPages:    30,
		ScopeRadius: 1000,
		PageDelay:   time.Millisecond,
		CacheSize:   256,
	}
}

type Searcher struct {
	store *rowstore.Store
	opts  Options

	mu    sync.Mutex
	cache *lru.Cache
}

type cached struct {
	term  string
	index int
}

func New(store *rowstore.Store, opts Options) *Searcher {
	s := &Searcher{store: store, opts: opts}
	if opts.CacheSize > 0 {
		s.cache = lru.New(opts.CacheSize)
	}
	return s
}

// Find returns the index of the first row whose key, or key followed by
// value for primitives, contains term. Matching is case-sensitive and only
// looks at rows present when called.
func (s *Searcher) Find(term string) int {
	key := hashTerm(term)
	if idx, ok := s.lookup(key, term); ok {
		return idx
	}

	snap := s.store.Snapshot()
	idx := s.store.Index(0, func(r rowstore.Row) bool { return r.Contains(term) })

	if snap.Finished && snap.Err == nil {
		s.remember(key, term, idx)
	}
	return idx
}

func hashTerm(term string) uint64 { return xxhash.Sum64String(term) }

func (s *Searcher) lookup(key uint64, term string) (int, bool) {
	if s.cache == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(key)
	if !ok {
		return 0, false
	}
	c := v.(cached)
	if c.term != term {
		return 0, false
	}
	return c.index, true
}

func (s *Searcher) remember(key uint64, term string, idx int) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, cached{term: term, index: idx})
}

// Search locates term relative to loaded, the number of rows the caller
// already holds. Pages streamed towards the match are passed to onPage in
// order before Search returns; onPage may be nil.
func (s *Searcher) Search(ctx context.Context, term string, loaded int, onPage func([]rowstore.Row) error) (Result, error) {
	if term == "" {
		return Result{}, ErrEmptyTerm
	}
	if loaded < 0 {
		loaded = 0
	}

	complete := s.store.Finished()
	idx := s.Find(term)
	res := Result{Term: term, Index: idx, Mode: ModeDirect, Complete: complete}
	if idx == -1 || idx <= loaded {
		return res, nil
	}

	size := s.opts.PageSize
	if size <= 0 {
		size = DefaultOptions().PageSize
	}
	pages := (idx-loaded)/size + 1
	if pages > s.opts.MaxPages {
		start := max(idx-s.opts.ScopeRadius, 0)
		res.Mode = ModeScoped
		res.WindowStart = start
		res.Window = s.store.Slice(start, idx+s.opts.ScopeRadius-start)
		res.Index = idx - start
		return res, nil
	}

	for i := 0; i < pages; i++ {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return Result{}, err
			}
		}
		if onPage == nil {
			continue
		}
		if err := onPage(s.store.Slice(loaded+i*size, size)); err != nil {
			return Result{}, err
		}
	}
	res.Mode = ModeStreamed
	res.Pages = pages
	return res, nil
}

func (s *Searcher) pause(ctx context.Context) error {
	if s.opts.PageDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.PageDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
