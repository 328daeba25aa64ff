package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/logging"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/search"
)

type searchPageEvent struct {
	Rows []rowstore.Row `json:"rows"`
}

// handleEvents streams session events as SSE. Each event's id is its
// sequence number; a reconnecting client sends Last-Event-ID (or
// ?lastEventId=) and receives the current state published after it.
// The stream ends with a "closed" event when the document is closed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	after, err := lastEventID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	stream, err := newSSE(w)
	if err != nil {
		respondError(w, r, err)
		return
	}

	events, unsubscribe := sess.Subscribe(after)
	defer unsubscribe()

	logger := logging.FromContext(r.Context()).With("document_id", sess.ID)
	logger.Debug("event stream opened", "after", after)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream closed by client")
			return
		case <-heartbeat.C:
			if err := stream.comment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = stream.send(0, "closed", map[string]string{"documentId": sess.ID})
				return
			}
			if err := stream.send(ev.Seq, string(ev.Kind), ev); err != nil {
				logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

func lastEventID(r *http.Request) (uint64, error) {
	v := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if v == "" {
		v = r.URL.Query().Get("lastEventId")
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.Join(errInvalidRequest, err)
	}
	return n, nil
}

// handleSearch streams a search as SSE: "searchPage" events with the rows
// up to the match, then "result" with the absolute index (or -1), or a
// single "scoped" event with the window and its relative index.
//
// Query: q (required), loaded (rows the client holds, default 0), wait
// (search the whole document once ingestion ends, default false).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	term := r.URL.Query().Get("q")
	if term == "" {
		respondError(w, r, search.ErrEmptyTerm)
		return
	}
	loaded, err := queryInt(r, "loaded", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	wait, err := queryBool(r, "wait", false)
	if err != nil {
		respondError(w, r, err)
		return
	}

	stream, err := newSSE(w)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := sess.Search(r.Context(), term, loaded, wait, func(rows []rowstore.Row) error {
		return stream.send(0, "searchPage", searchPageEvent{Rows: rows})
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		msg := core.MapError(err)
		logging.FromContext(r.Context()).Warn("search failed",
			"document_id", sess.ID,
			"error", err,
			"code", msg.Code,
		)
		_ = stream.send(0, "error", msg)
		return
	}

	event := "result"
	if res.Scoped() {
		event = "scoped"
	}
	_ = stream.send(0, event, res)
}
