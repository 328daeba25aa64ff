package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/paging"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/search"
)

// generation is one ingestion of a session's source. A reload replaces the
// generation; readers holding the old one keep a consistent, if stale,
// view until they ask again.
type generation struct {
	n        int
	store    *rowstore.Store
	w        *rowstore.Writer
	pager    *paging.Pager
	searcher *search.Searcher
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	checksum uint64
	hasSum   bool
}

// Session is one open document: its source, the current generation of
// rows ingested from it, and the subscribers following its progress.
type Session struct {
	ID        string
	Name      string
	Client    string
	CreatedAt time.Time

	svc      *Service
	turbo    bool
	preview  bool
	logger   *slog.Logger
	lastUsed atomic.Int64

	mu        sync.Mutex
	src       ingest.Source
	gen       *generation
	progress  Progress
	previewed []rowstore.Row
	seq       uint64
	replay    replayState
	listeners map[*listener]struct{}
	closed    bool
}

// replayState holds the latest event of each kind a late subscriber needs
// to rebuild the current state.
type replayState struct {
	reloaded *Event
	partial  *Event
	first    *Event
	progress *Event
	terminal *Event
}

// events returns the held events in the order they were published.
func (r *replayState) events() []*Event {
	var out []*Event
	for _, ev := range []*Event{r.reloaded, r.partial, r.first, r.progress, r.terminal} {
		if ev != nil {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b *Event) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// LastUsed returns when the session was last read from.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) current() (*generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	return s.gen, nil
}

// Progress returns a snapshot of the session's state.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Generation returns the number of the current generation, starting at 1.
func (s *Session) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.n
}

// Store returns the current generation's row store.
func (s *Session) Store() *rowstore.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.store
}

// Preview returns the preview rows of the current generation, or nil when
// the preview pass has not delivered (or was not requested).
func (s *Session) Preview() []rowstore.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewed
}

// Path returns the on-disk path for file-backed sessions.
func (s *Session) Path() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ingest.SourcePath(s.src)
}

// Listeners returns the number of active subscribers.
func (s *Session) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// listener queues events for one subscriber and feeds them to its channel
// from its own goroutine. While the subscriber is behind, consecutive
// progress events collapse into the latest one; every other event is
// delivered.
type listener struct {
	ch   chan Event
	wake chan struct{}
	stop chan struct{}
	once sync.Once

	mu     sync.Mutex
	queue  []Event
	ending bool
}

func newListener(size int) *listener {
	l := &listener{
		ch:   make(chan Event, size),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go l.pump()
	return l
}

func (l *listener) push(ev Event) {
	l.mu.Lock()
	if n := len(l.queue); n > 0 && ev.Kind == EventProgress && l.queue[n-1].Kind == EventProgress {
		l.queue[n-1] = ev
	} else {
		l.queue = append(l.queue, ev)
	}
	l.mu.Unlock()
	l.signal()
}

func (l *listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// end closes the channel once everything queued has been delivered.
func (l *listener) end() {
	l.mu.Lock()
	l.ending = true
	l.mu.Unlock()
	l.signal()
}

// cancel closes the channel without delivering the rest of the queue.
func (l *listener) cancel() {
	l.once.Do(func() { close(l.stop) })
}

func (l *listener) pump() {
	defer close(l.ch)
	for {
		l.mu.Lock()
		batch, ending := l.queue, l.ending
		l.queue = nil
		l.mu.Unlock()

		for _, ev := range batch {
			select {
			case l.ch <- ev:
			case <-l.stop:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if ending {
			return
		}
		select {
		case <-l.wake:
		case <-l.stop:
			return
		}
	}
}

// Page returns rows [offset, offset+size) of the current generation,
// waiting within the paging budget when they are not ingested yet.
func (s *Session) Page(ctx context.Context, offset, size int) (paging.Page, error) {
	s.touch()
	g, err := s.current()
	if err != nil {
		return paging.Page{}, err
	}
	pg, err := g.pager.GetPage(ctx, offset, size)
	if err != nil {
		return paging.Page{}, err
	}
	s.svc.metrics.PageServed(string(pg.Status))
	return pg, nil
}

// Reset returns the first rows of the current generation, flagged as a
// reset of a scoped view.
func (s *Session) Reset() (paging.Page, error) {
	s.touch()
	g, err := s.current()
	if err != nil {
		return paging.Page{}, err
	}
	return g.pager.Reset(), nil
}

// Search runs a search on the current generation. With wait set it first
// waits for the generation's ingestion to end, so the result covers the
// whole document, and fails with ErrIngestCancelled when that ingestion
// was cancelled instead.
func (s *Session) Search(ctx context.Context, term string, loaded int, wait bool, onPage func([]rowstore.Row) error) (search.Result, error) {
	s.touch()
	g, err := s.current()
	if err != nil {
		return search.Result{}, err
	}
	if wait {
		select {
		case <-g.done:
		case <-ctx.Done():
			return search.Result{}, ctx.Err()
		}
		if errors.Is(g.store.Err(), context.Canceled) {
			return search.Result{}, ErrIngestCancelled
		}
	}
	res, err := g.searcher.Search(ctx, term, loaded, onPage)
	if err != nil {
		return search.Result{}, err
	}
	s.svc.metrics.Searched(string(res.Mode))
	return res, nil
}

// Wait blocks until the current generation's ingestion has ended.
func (s *Session) Wait(ctx context.Context) error {
	g, err := s.current()
	if err != nil {
		return err
	}
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the current generation's passes. Rows already ingested stay
// readable.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.cancel()
}

// Subscribe returns a channel of events published after the event with
// sequence number after. The latest state is replayed first, in Seq
// order, so after=0 yields the full current state. A slow subscriber never
// blocks ingestion: it gets the latest progress instead of every update,
// and all other events in order. The channel is closed by unsubscribe, or
// after the remaining events when the session closes. Callers must call
// unsubscribe once they stop reading.
func (s *Session) Subscribe(after uint64) (<-chan Event, func()) {
	s.touch()
	size := s.svc.opts.ListenerBuffer
	if size < 8 {
		size = 8
	}
	l := newListener(size)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.end()
		return l.ch, l.cancel
	}
	// The replay fits in the channel buffer and goes ahead of anything
	// the pump delivers.
	for _, ev := range s.replay.events() {
		if ev.Seq > after {
			l.ch <- *ev
		}
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	return l.ch, func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
		l.cancel()
	}
}

// publishLocked stamps ev and fans it out. Caller holds s.mu.
func (s *Session) publishLocked(ev Event) {
	s.seq++
	ev.Seq = s.seq
	ev.Progress = s.progress

	stored := ev
	switch {
	case ev.Kind == EventReloaded:
		s.replay = replayState{reloaded: &stored}
	case ev.Kind == EventPartial || (ev.Kind == EventError && ev.Pass == ingest.PassPreview):
		s.replay.partial = &stored
	case ev.Kind == EventPage && ev.First:
		s.replay.first = &stored
	case ev.Kind == EventProgress:
		s.replay.progress = &stored
	case ev.Kind == EventFinished || ev.Kind == EventError:
		s.replay.terminal = &stored
	}

	for l := range s.listeners {
		l.push(ev)
	}
}

// refreshReplayLocked brings the progress carried by replayed terminal
// events up to date once the pass result is known.
func (s *Session) refreshReplayLocked() {
	if s.replay.progress != nil {
		s.replay.progress.Progress = s.progress
	}
	if s.replay.terminal != nil {
		s.replay.terminal.Progress = s.progress
	}
}

// closeLocked cancels ingestion and closes every listener.
func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.gen.cancel()
	for l := range s.listeners {
		l.end()
	}
	s.listeners = nil
}

// beginLocked installs a fresh generation. Caller holds s.mu.
func (s *Session) beginLocked() *generation {
	n := 1
	if s.gen != nil {
		n = s.gen.n + 1
	}
	store, w := rowstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	g := &generation{
		n:        n,
		store:    store,
		w:        w,
		pager:    paging.New(store, s.svc.opts.Paging),
		searcher: search.New(store, s.svc.opts.Search),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.gen = g
	s.previewed = nil
	now := time.Now()
	s.progress = Progress{
		DocumentID: s.ID,
		Name:       s.src.Name(),
		Client:     s.Client,
		Generation: n,
		Phase:      PhaseQueued,
		Turbo:      s.turbo,
		BytesTotal: s.src.Size(),
		CreatedAt:  s.CreatedAt,
		StartedAt:  now,
	}
	return g
}

// run ingests g. acquired says whether the caller already holds a limiter
// slot for it.
func (s *Session) run(g *generation, acquired bool) {
	defer s.svc.wg.Done()
	defer close(g.done)
	defer g.cancel()

	if !acquired {
		if err := s.svc.limiter.Acquire(g.ctx); err != nil {
			g.w.Fail(err)
			s.complete(g, ingest.FullResult{}, err)
			return
		}
	}
	defer s.svc.limiter.Release()

	s.svc.metrics.IngestStarted()
	defer s.svc.metrics.IngestStopped()

	s.mu.Lock()
	if s.gen == g {
		s.progress.Phase = PhaseIngesting
	}
	src := s.src
	s.mu.Unlock()

	res, err := s.svc.pipeline.Run(g.ctx, src, g.w, ingest.RunOptions{Turbo: s.turbo, Preview: s.preview}, func(ev ingest.Event) {
		s.onEvent(g, ev)
	})
	s.complete(g, res, err)
}

func (s *Session) onEvent(g *generation, ev ingest.Event) {
	if ev.Pass == ingest.PassPreview {
		result := "ok"
		if ev.Kind == ingest.EventError {
			result = "error"
		}
		s.svc.metrics.PassDone(string(ingest.PassPreview), result, ev.Elapsed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != g || s.closed {
		return
	}

	out := Event{
		Generation: g.n,
		Kind:       EventKind(ev.Kind),
		Pass:       ev.Pass,
		Rows:       ev.Rows,
		First:      ev.First,
		End:        ev.End,
	}

	switch ev.Kind {
	case ingest.EventPartial:
		s.previewed = ev.Rows
	case ingest.EventProgress:
		s.progress.TotalRows = ev.TotalRows
		s.progress.BytesRead = ev.BytesRead
		s.progress.Percent = percent(ev.BytesRead, ev.BytesTotal)
		if ev.End {
			s.progress.Percent = 100
			s.progress.Phase = PhaseComplete
			s.progress.FinishedAt = time.Now()
		}
	case ingest.EventFinished:
		s.progress.TotalRows = ev.TotalRows
	case ingest.EventError:
		msg := MapError(ev.Err)
		out.Error = &msg
		if ev.Pass == ingest.PassPreview {
			s.logger.Debug("preview pass failed", "error", ev.Err, "code", msg.Code)
			break
		}
		s.logger.Warn("full pass failed", "error", ev.Err, "code", msg.Code, "rows", ev.TotalRows)
		s.progress.TotalRows = ev.TotalRows
		s.progress.Phase = PhaseFailed
		s.progress.Error = &msg
		s.progress.FinishedAt = time.Now()
	}

	s.publishLocked(out)
}

// complete records the outcome of g's full pass.
func (s *Session) complete(g *generation, res ingest.FullResult, err error) {
	result := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		result = "cancelled"
	case err != nil:
		result = "error"
	}
	s.svc.metrics.PassDone(string(ingest.PassFull), result, res.Duration)
	s.svc.metrics.Ingested(res.Rows, res.Bytes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		g.checksum, g.hasSum = res.Checksum, true
	}
	if s.gen != g || s.closed {
		return
	}

	s.progress.Codec = res.Codec
	s.progress.Tolerant = res.Tolerant
	if res.Bytes > 0 {
		s.progress.BytesRead = res.Bytes
	}

	switch {
	case err == nil:
		s.progress.TotalRows = res.Rows
		s.progress.Checksum = strconv.FormatUint(res.Checksum, 16)
		s.progress.Phase = PhaseComplete
		s.logger.Info("document ingested",
			"rows", res.Rows,
			"bytes", res.Bytes,
			"codec", res.Codec,
			"tolerant", res.Tolerant,
			"duration_ms", res.Duration.Milliseconds(),
		)
	case errors.Is(err, context.Canceled):
		s.progress.Phase = PhaseCancelled
		s.progress.FinishedAt = time.Now()
		s.logger.Info("ingest cancelled", "rows", res.Rows)
		s.publishLocked(Event{Generation: g.n, Kind: EventProgress, Pass: ingest.PassFull, End: true})
	case !s.progress.Phase.Terminal():
		// Failures before the pipeline could report them, such as no
		// free ingest slot.
		msg := MapError(err)
		s.progress.Phase = PhaseFailed
		s.progress.Error = &msg
		s.progress.FinishedAt = time.Now()
		s.logger.Warn("ingest failed", "error", err, "code", msg.Code)
		s.publishLocked(Event{Generation: g.n, Kind: EventError, Pass: ingest.PassFull, Error: &msg})
	}
	s.refreshReplayLocked()
}

func percent(n, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(n * 100 / total)
	return min(max(p, 0), 100)
}
