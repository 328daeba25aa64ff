package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errNoInput        = errors.New("no file provided: set input or path")
	errNoDocument     = fmt.Errorf("%w: no document started", core.ErrSessionNotFound)
)

// Options configures a Dispatcher.
type Options struct {
	// PreviewBytes is the fragment size used when a startPreview request
	// does not set one.
	PreviewBytes int
	// MaxLineBytes bounds one request line, inline input included.
	MaxLineBytes int
}

// DefaultOptions returns the worker defaults.
func DefaultOptions() Options {
	return Options{
		PreviewBytes: ingest.DefaultPreviewBytes,
		MaxLineBytes: 256 << 20,
	}
}

// Dispatcher answers requests against one current document. Responses
// are written as JSON lines to a single writer.
type Dispatcher struct {
	svc    *core.Service
	opts   Options
	logger *slog.Logger

	wmu sync.Mutex
	enc *json.Encoder

	mu      sync.Mutex
	sess    *core.Session
	fwdDone chan struct{}

	// inflight counts requests answered from their own goroutine.
	inflight sync.WaitGroup
}

func NewDispatcher(svc *core.Service, w io.Writer, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = ingest.DefaultPreviewBytes
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Dispatcher{svc: svc, opts: opts, logger: logger, enc: enc}
}

func (d *Dispatcher) send(r Response) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if err := d.enc.Encode(r); err != nil {
		d.logger.Warn("failed to write response", "type", r.Type, "id", r.ID, "error", err)
	}
}

func (d *Dispatcher) fail(id string, err error) {
	d.logger.Debug("request failed", "id", id, "error", err)
	d.send(errorResponse(id, err))
}

func (d *Dispatcher) async(fn func()) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		fn()
	}()
}

// Current returns the current document, if any.
func (d *Dispatcher) Current() *core.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

func (d *Dispatcher) current() (*core.Session, error) {
	if s := d.Current(); s != nil {
		return s, nil
	}
	return nil, errNoDocument
}

// Handle answers req. Page, search and preview requests may wait and are
// answered from their own goroutine; the others are answered before
// Handle returns.
func (d *Dispatcher) Handle(ctx context.Context, req Request) {
	d.logger.Debug("request", "type", req.Type, "id", req.ID)

	switch req.Type {
	case StartPreview:
		src, err := source(req)
		if err != nil {
			d.fail(req.ID, err)
			return
		}
		d.async(func() { d.preview(ctx, req, src) })

	case StartFull:
		d.startFull(ctx, req)

	case GetPage:
		sess, err := d.current()
		if err != nil {
			d.fail(req.ID, err)
			return
		}
		d.async(func() {
			pg, err := sess.Page(ctx, req.Offset, req.PageSize)
			if err != nil {
				d.fail(req.ID, err)
				return
			}
			d.send(pageResponse(req.ID, pg))
		})

	case Reset:
		sess, err := d.current()
		if err != nil {
			d.fail(req.ID, err)
			return
		}
		pg, err := sess.Reset()
		if err != nil {
			d.fail(req.ID, err)
			return
		}
		d.send(pageResponse(req.ID, pg))

	case Search:
		sess, err := d.current()
		if err != nil {
			d.fail(req.ID, err)
			return
		}
		d.async(func() { d.search(ctx, req, sess) })

	case Cancel:
		sess, err := d.current()
		if err != nil {
			d.fail(req.ID, err)
			return
		}
		sess.Cancel()
		d.send(Response{ID: req.ID, Type: Cancelled, DocumentID: sess.ID})

	case Close:
		sess := d.closeCurrent()
		if sess == nil {
			d.fail(req.ID, errNoDocument)
			return
		}
		d.send(Response{ID: req.ID, Type: Closed, DocumentID: sess.ID})

	default:
		d.fail(req.ID, fmt.Errorf("%w: unknown type %q", errInvalidRequest, req.Type))
	}
}

func (d *Dispatcher) preview(ctx context.Context, req Request, src ingest.Source) {
	n := req.FragmentBytes
	if n <= 0 {
		n = d.opts.PreviewBytes
	}
	rows, err := ingest.Preview(ctx, src, n)
	if err != nil {
		d.fail(req.ID, err)
		return
	}
	d.send(Response{ID: req.ID, Type: PartialRows, Rows: rows})
}

// startFull replaces the current document with a new one for req's input,
// acknowledges it and forwards its events until it is replaced or closed.
func (d *Dispatcher) startFull(ctx context.Context, req Request) {
	src, err := source(req)
	if err != nil {
		d.fail(req.ID, err)
		return
	}
	d.closeCurrent()

	sess, err := d.svc.Open(ctx, src, core.OpenOptions{Turbo: req.Turbo})
	if err != nil {
		d.fail(req.ID, err)
		return
	}
	d.send(Response{ID: req.ID, Type: Started, DocumentID: sess.ID, Generation: sess.Generation()})

	// The channel is closed when the session is closed.
	events, unsubscribe := sess.Subscribe(0)
	done := make(chan struct{})

	d.mu.Lock()
	d.sess, d.fwdDone = sess, done
	d.mu.Unlock()

	go func() {
		defer close(done)
		defer unsubscribe()
		for ev := range events {
			if r, ok := eventResponse(req.ID, ev); ok {
				d.send(r)
			}
		}
	}()
}

func (d *Dispatcher) search(ctx context.Context, req Request, sess *core.Session) {
	onPage := func(rows []rowstore.Row) error {
		d.send(Response{ID: req.ID, Type: SearchPage, DocumentID: sess.ID, Rows: rows})
		return nil
	}
	res, err := sess.Search(ctx, req.Term, req.LoadedLength, req.Wait, onPage)
	if err != nil {
		d.fail(req.ID, err)
		return
	}
	r := resultResponse(req.ID, res)
	r.DocumentID = sess.ID
	d.send(r)
}

// closeCurrent closes the current document and waits until its buffered
// events are written, so they never follow a newer document's events.
func (d *Dispatcher) closeCurrent() *core.Session {
	d.mu.Lock()
	sess, done := d.sess, d.fwdDone
	d.sess, d.fwdDone = nil, nil
	d.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := d.svc.Close(sess.ID); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		d.logger.Warn("failed to close document", "document_id", sess.ID, "error", err)
	}
	<-done
	return sess
}

// Drain waits for in-flight requests and for the current document's
// ingestion to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	waited := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	if sess := d.Current(); sess != nil {
		if err := sess.Wait(ctx); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

// Close closes the current document and waits for in-flight requests.
func (d *Dispatcher) Close() {
	d.closeCurrent()
	d.inflight.Wait()
}

func source(req Request) (ingest.Source, error) {
	switch {
	case req.Input != nil && req.Path != "":
		return nil, fmt.Errorf("%w: set only one of input and path", errInvalidRequest)
	case req.Input != nil:
		return ingest.BytesSource("input", []byte(*req.Input)), nil
	case req.Path != "":
		return ingest.FileSource(req.Path)
	}
	return nil, errNoInput
}
