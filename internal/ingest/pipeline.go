// Package ingest reads a document in two independent passes.
//
// The preview pass parses a small leading fragment with the tolerant
// parser and hands its rows straight to the caller. The full pass streams
// the whole input into a rowstore.Store, flushing periodically. The two
// race; the "first page" event marks the point from which the store, not
// the preview, is authoritative.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

// EventKind names a pipeline event.
type EventKind string

const (
	EventPartial  EventKind = "partial"
	EventPage     EventKind = "page"
	EventProgress EventKind = "progress"
	EventFinished EventKind = "finished"
	EventError    EventKind = "error"
)

// Pass names the pass an event came from.
type Pass string

const (
	PassPreview Pass = "preview"
	PassFull    Pass = "full"
)

// Event is one notification from a running pipeline.
//
//   - partial: Rows holds the preview rows.
//   - page: the first full-pass page is ready (First is always true).
//   - progress: TotalRows rows appended, BytesRead of BytesTotal consumed;
//     End is set on the last one.
//   - finished: turbo only, TotalRows is final.
//   - error: Err says why the pass stopped.
type Event struct {
	Kind       EventKind      `json:"kind"`
	Pass       Pass           `json:"pass"`
	Rows       []rowstore.Row `json:"rows,omitempty"`
	First      bool           `json:"first,omitempty"`
	End        bool           `json:"end,omitempty"`
	TotalRows  int            `json:"totalRows,omitempty"`
	BytesRead  int64          `json:"bytesRead,omitempty"`
	BytesTotal int64          `json:"bytesTotal,omitempty"`
	Elapsed    time.Duration  `json:"-"`
	Err        error          `json:"-"`
}

// Options are the pipeline's tuning knobs.
type Options struct {
	PreviewBytes     int
	FlushEvery       int
	TurboFlushEvery  int
	Pause            time.Duration
	StartDelay       time.Duration
	FirstPageSize    int
	TolerantMaxBytes int64
	ProgressInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		PreviewBytes:     DefaultPreviewBytes,
		FlushEvery:       100,
		TurboFlushEvery:  10000,
		Pause:            time.Millisecond,
		StartDelay:       100 * time.Millisecond,
		FirstPageSize:    50,
		TolerantMaxBytes: 64 << 20,
		ProgressInterval: 250 * time.Millisecond,
	}
}

// RunOptions select what a single run does.
type RunOptions struct {
	Turbo   bool
	Preview bool
}

type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

func NewPipeline(opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{opts: opts, logger: logger}
}

func (p *Pipeline) Options() Options { return p.opts }

// Run executes the preview pass (if requested) and the full pass over src
// and blocks until both are done. Events are delivered to emit one at a
// time. Cancelling ctx stops both passes; the store is then failed with
// the context error and no error event is sent. A failed full pass stops
// the preview pass, and no event follows its error event.
func (p *Pipeline) Run(ctx context.Context, src Source, w *rowstore.Writer, run RunOptions, emit func(Event)) (FullResult, error) {
	var (
		emitMu sync.Mutex
		failed bool
	)
	send := func(ev Event) {
		emitMu.Lock()
		defer emitMu.Unlock()
		if failed {
			return
		}
		if ev.Kind == EventError && ev.Pass == PassFull {
			failed = true
		}
		emit(ev)
	}

	g, gctx := errgroup.WithContext(ctx)
	if run.Preview {
		g.Go(func() error {
			p.preview(gctx, src, send)
			return nil
		})
	}

	var res FullResult
	g.Go(func() error {
		var err error
		res, err = p.full(gctx, src, w, run.Turbo, send)
		return err
	})

	err := g.Wait()
	return res, err
}

func (p *Pipeline) preview(ctx context.Context, src Source, send func(Event)) {
	start := time.Now()
	rows, err := Preview(ctx, src, p.opts.PreviewBytes)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Debug("preview pass failed", "source", src.Name(), "error", err)
		send(Event{Kind: EventError, Pass: PassPreview, Err: err, Elapsed: time.Since(start)})
		return
	}
	send(Event{Kind: EventPartial, Pass: PassPreview, Rows: rows, Elapsed: time.Since(start)})
}

func (p *Pipeline) full(ctx context.Context, src Source, w *rowstore.Writer, turbo bool, send func(Event)) (FullResult, error) {
	if p.opts.StartDelay > 0 {
		t := time.NewTimer(p.opts.StartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			w.Fail(ctx.Err())
			return FullResult{}, ctx.Err()
		case <-t.C:
		}
	}

	store := w.Store()
	firstSent := false
	sendFirst := func(finished bool) {
		rows := store.Slice(0, p.opts.FirstPageSize)
		firstSent = true
		send(Event{
			Kind:  EventPage,
			Pass:  PassFull,
			Rows:  rows,
			First: true,
			End:   finished && len(rows) >= store.Len(),
		})
	}

	var lastProgress time.Time
	onFlush := func(total int, bytesRead int64) {
		if !firstSent && total >= p.opts.FirstPageSize {
			sendFirst(false)
		}
		if now := time.Now(); now.Sub(lastProgress) >= p.opts.ProgressInterval {
			lastProgress = now
			send(Event{Kind: EventProgress, Pass: PassFull, TotalRows: total, BytesRead: bytesRead, BytesTotal: src.Size()})
		}
	}

	res, err := Full(ctx, src, w, FullOptions{
		Turbo:            turbo,
		FlushEvery:       p.opts.FlushEvery,
		TurboFlushEvery:  p.opts.TurboFlushEvery,
		Pause:            p.opts.Pause,
		TolerantMaxBytes: p.opts.TolerantMaxBytes,
		OnFlush:          onFlush,
	})
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("full pass failed", "source", src.Name(), "rows", res.Rows, "error", err)
			send(Event{Kind: EventError, Pass: PassFull, Err: err, TotalRows: res.Rows, Elapsed: res.Duration})
		}
		return res, err
	}

	if !firstSent {
		sendFirst(true)
	}
	send(Event{Kind: EventProgress, Pass: PassFull, TotalRows: res.Rows, BytesRead: res.Bytes, BytesTotal: src.Size(), End: true})
	if turbo {
		send(Event{Kind: EventFinished, Pass: PassFull, TotalRows: res.Rows, Elapsed: res.Duration})
	}
	p.logger.Debug("full pass complete",
		"source", src.Name(),
		"rows", res.Rows,
		"bytes", res.Bytes,
		"codec", res.Codec,
		"tolerant", res.Tolerant,
		"duration", res.Duration,
	)
	return res, nil
}
