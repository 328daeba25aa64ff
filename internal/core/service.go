package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/metrics"
)

var (
	// ErrSessionNotFound is returned for unknown or closed document IDs.
	ErrSessionNotFound = errors.New("document not found")
	// ErrTooManySessions is returned when MaxSessions documents are open.
	ErrTooManySessions = errors.New("too many open documents")
	// ErrPathNotAllowed is returned when a server-local path lies outside
	// every allowed root.
	ErrPathNotAllowed = errors.New("path not allowed")
)

// Service owns the open document sessions.
type Service struct {
	opts     Options
	pipeline *ingest.Pipeline
	limiter  *ingest.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	hooks    Hooks

	// wg counts running generations, for graceful shutdown.
	wg sync.WaitGroup
}

// Hooks are called after a session is opened and after it is closed.
// They run synchronously and must not call back into the Service.
type Hooks struct {
	Opened func(*Session)
	Closed func(*Session)
}

// NewService creates a Service. m may be nil.
func NewService(opts Options, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultOptions().MaxSessions
	}
	if opts.ListenerBuffer <= 0 {
		opts.ListenerBuffer = DefaultOptions().ListenerBuffer
	}
	return &Service{
		opts:     opts,
		pipeline: ingest.NewPipeline(opts.Pipeline, logger),
		limiter:  ingest.NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		metrics:  m,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// SetHooks replaces the session lifecycle hooks.
func (s *Service) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Open starts ingesting src in a new session and returns it immediately.
// It waits for a free ingest slot first, failing with
// ingest.ErrTooManyIngests when none frees up in time.
func (s *Service) Open(ctx context.Context, src ingest.Source, opts OpenOptions) (*Session, error) {
	s.mu.RLock()
	full := len(s.sessions) >= s.opts.MaxSessions
	s.mu.RUnlock()
	if full {
		return nil, ErrTooManySessions
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	sess := &Session{
		ID:        id,
		Name:      src.Name(),
		Client:    ClientFromContext(ctx),
		CreatedAt: time.Now(),
		svc:       s,
		src:       src,
		turbo:     opts.Turbo,
		preview:   opts.Preview,
		logger:    s.logger.With("document_id", id, "source", src.Name()),
		listeners: make(map[*listener]struct{}),
	}
	sess.touch()

	s.mu.Lock()
	if len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		s.limiter.Release()
		return nil, ErrTooManySessions
	}
	s.sessions[id] = sess
	opened := s.hooks.Opened
	s.mu.Unlock()

	s.metrics.SessionOpened()

	sess.mu.Lock()
	g := sess.beginLocked()
	sess.mu.Unlock()

	s.wg.Add(1)
	go sess.run(g, true)

	sess.logger.Info("document opened",
		"size", src.Size(),
		"turbo", opts.Turbo,
		"preview", opts.Preview,
		"client", sess.Client,
	)
	if opened != nil {
		opened(sess)
	}
	return sess, nil
}

// Get returns the session with the given ID.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns the progress of every open session, oldest first.
func (s *Service) List() []Progress {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]Progress, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Progress())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SessionsForPath returns the file-backed sessions reading path.
func (s *Service) SessionsForPath(path string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if p, ok := sess.Path(); ok && p == path {
			out = append(out, sess)
		}
	}
	return out
}

// Close cancels a session's ingestion, closes its subscribers and forgets it.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	closed := s.hooks.Closed
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.mu.Lock()
	sess.closeLocked()
	sess.mu.Unlock()

	s.metrics.SessionClosed()
	sess.logger.Info("document closed")
	if closed != nil {
		closed(sess)
	}
	return nil
}

// CloseAll closes every session.
func (s *Service) CloseAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		_ = s.Close(id)
	}
}

// Reload re-ingests a session whose source changed. For file-backed
// sessions the file is stat'ed again; the reload is skipped, returning
// false, when the decoded content has the same checksum as the last
// completed generation.
func (s *Service) Reload(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return sess.reload(ctx)
}

func (sess *Session) reload(ctx context.Context) (bool, error) {
	sess.mu.Lock()
	src := sess.src
	old := sess.gen
	sess.mu.Unlock()

	if path, ok := ingest.SourcePath(src); ok {
		fresh, err := ingest.FileSource(path)
		if err != nil {
			return false, fmt.Errorf("reload %s: %w", sess.Name, err)
		}
		src = fresh
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	sum, err := ingest.Checksum(src)
	if err != nil {
		return false, fmt.Errorf("reload %s: %w", sess.Name, err)
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	if sess.gen != old {
		// Another reload won the race.
		sess.mu.Unlock()
		return false, nil
	}
	if old.hasSum && old.checksum == sum {
		sess.mu.Unlock()
		sess.logger.Debug("reload skipped, content unchanged")
		return false, nil
	}

	old.cancel()
	sess.src = src
	g := sess.beginLocked()
	sess.publishLocked(Event{Generation: g.n, Kind: EventReloaded})
	sess.mu.Unlock()

	sess.svc.wg.Add(1)
	go sess.run(g, false)

	sess.logger.Info("document reloaded", "generation", g.n)
	return true, nil
}

// Sweep closes sessions without subscribers that have not been used for
// longer than idle, and returns how many it closed.
func (s *Service) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	s.mu.RLock()
	var stale []string
	for id, sess := range s.sessions {
		if sess.Listeners() == 0 && sess.LastUsed().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if s.Close(id) == nil {
			n++
		}
	}
	return n
}

// Len returns the number of open sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// LimiterStatus reports ingest slot usage.
func (s *Service) LimiterStatus() ingest.LimiterStatus {
	return s.limiter.Status()
}

// WaitForIngest blocks until every running generation has ended or ctx is
// done. Used during shutdown after CloseAll or to let ingests drain.
func (s *Service) WaitForIngest(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
