// Package viewer is the consumer side of the message protocol: the state a
// tree view keeps while a document loads, and a client that drives a
// protocol worker with it.
//
// The model shows preview rows until the first page of the full pass
// arrives, then grows page by page. Searches are held back until the
// document has finished loading; the pages a streamed search sends ahead
// of its result are collected and appended when the result arrives. A
// scoped result replaces the rows with a window around the match until
// the view is reset.
package viewer

import (
	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/protocol"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/search"
)

// Options configures a Model.
type Options struct {
	// HoldSearches buffers a search until the document has finished
	// loading, so it covers every row. When false searches go out at once
	// with the wait flag set and the worker holds them instead.
	HoldSearches bool
}

type Model struct {
	opts Options

	documentID string
	generation int

	rows       []rowstore.Row
	partial    bool
	ended      bool
	finished   bool
	totalRows  int
	percent    int
	lastOffset int
	pages      int // page responses applied

	scoped     bool
	scopeStart int
	searching  bool
	pending    string
	selected   int
	acc        search.Accumulator

	err *core.UserMessage
}

func NewModel(opts Options) *Model {
	return &Model{opts: opts, partial: true, selected: -1, lastOffset: -1}
}

// Rows returns the rows currently shown. The slice must not be modified.
func (m *Model) Rows() []rowstore.Row { return m.rows }

// Loaded is the number of rows held, sent as loadedLength with searches.
func (m *Model) Loaded() int { return len(m.rows) }

// Partial reports whether the rows are still the preview.
func (m *Model) Partial() bool { return m.partial }

// Ended reports whether the last page of the document has been received.
func (m *Model) Ended() bool { return m.ended }

// Finished reports whether the document has been ingested completely.
func (m *Model) Finished() bool { return m.finished }

func (m *Model) TotalRows() int { return m.totalRows }

func (m *Model) Percent() int { return m.percent }

// Scoped reports whether Rows is a scoped search window starting at
// ScopeStart.
func (m *Model) Scoped() bool { return m.scoped }

func (m *Model) ScopeStart() int { return m.scopeStart }

func (m *Model) Searching() bool { return m.searching }

func (m *Model) DocumentID() string { return m.documentID }

func (m *Model) Generation() int { return m.generation }

// Selected is the index of the last search match within Rows, or -1.
func (m *Model) Selected() int { return m.selected }

// Err returns the last error the worker reported.
func (m *Model) Err() *core.UserMessage { return m.err }

// Search asks for term. It returns the request to send, or false when the
// search is held until loading finishes or cannot run in the current
// state.
func (m *Model) Search(term string) (protocol.Request, bool) {
	if term == "" || m.scoped || m.searching {
		return protocol.Request{}, false
	}
	m.searching = true
	m.selected = -1
	if m.opts.HoldSearches && !m.finished {
		m.pending = term
		return protocol.Request{}, false
	}
	return m.searchRequest(term), true
}

func (m *Model) searchRequest(term string) protocol.Request {
	return protocol.Request{
		Type:         protocol.Search,
		Term:         term,
		LoadedLength: len(m.rows),
		Wait:         !m.opts.HoldSearches,
	}
}

// NextPage returns the request for the rows after the ones held, once per
// offset. There is none while the preview is shown, in scoped mode, or
// after the last page.
func (m *Model) NextPage() (protocol.Request, bool) {
	if m.partial || m.scoped || m.ended || m.lastOffset == len(m.rows) {
		return protocol.Request{}, false
	}
	m.lastOffset = len(m.rows)
	return protocol.Request{Type: protocol.GetPage, Offset: len(m.rows)}, true
}

// Reset returns the request leaving scoped mode.
func (m *Model) Reset() (protocol.Request, bool) {
	if !m.scoped {
		return protocol.Request{}, false
	}
	return protocol.Request{Type: protocol.Reset}, true
}

// Apply folds a worker response into the model and returns the requests
// it makes due, such as a search held until loading finished.
func (m *Model) Apply(r protocol.Response) []protocol.Request {
	if r.DocumentID != "" {
		if m.documentID != "" && r.DocumentID != m.documentID {
			// A replaced document.
			return nil
		}
		m.documentID = r.DocumentID
	}
	if r.Generation != 0 && r.Generation < m.generation {
		// Rows of an earlier generation.
		return nil
	}
	if r.Generation > m.generation && r.Type != protocol.Reloaded {
		m.generation = r.Generation
	}

	switch r.Type {
	case protocol.PartialRows:
		if m.partial {
			m.rows = r.Rows
		}

	case protocol.PageResponse:
		m.pages++
		m.applyPage(r)

	case protocol.Progress:
		m.totalRows = r.TotalRows
		m.percent = r.Percent
		if r.End {
			return m.finish()
		}

	case protocol.FinishedProcessing:
		m.totalRows = r.TotalRows
		return m.finish()

	case protocol.SearchPage:
		m.acc.Add(r.Rows)

	case protocol.ResultIndex:
		if m.acc.Len() > 0 {
			m.rows = append(m.rows, m.acc.Drain()...)
		}
		m.searching = false
		if r.Index != nil {
			m.selected = *r.Index
		}

	case protocol.ScopedResult:
		m.acc.Discard()
		m.rows = r.Rows
		m.scoped = true
		m.scopeStart = r.WindowStart
		m.searching = false
		if r.Index != nil {
			m.selected = *r.Index
		}

	case protocol.Reloaded:
		m.reload(r.Generation)

	case protocol.Error:
		m.err = &core.UserMessage{Code: r.Code, Message: r.Message, Action: r.Action}
		m.searching = false
		m.pending = ""
		m.acc.Discard()
	}
	return nil
}

func (m *Model) applyPage(r protocol.Response) {
	switch {
	case r.Reset:
		m.rows = r.Rows
		m.scoped = false
		m.scopeStart = 0
		m.selected = -1
		m.partial = false
		m.lastOffset = -1
	case r.First:
		// The first full page replaces the preview once it has rows.
		if m.partial && (len(r.Rows) > 0 || r.End) {
			m.rows = r.Rows
			m.partial = false
		}
	case m.scoped:
		return
	case r.Offset == len(m.rows):
		m.rows = append(m.rows, r.Rows...)
		if len(r.Rows) == 0 && !r.End {
			// Still loading; the same offset may be asked again.
			m.lastOffset = -1
		}
	default:
		// A page for an offset we no longer hold.
		return
	}
	if r.End && !m.scoped {
		m.ended = true
	}
}

func (m *Model) finish() []protocol.Request {
	m.finished = true
	m.percent = 100
	if m.pending == "" {
		return nil
	}
	term := m.pending
	m.pending = ""
	return []protocol.Request{m.searchRequest(term)}
}

func (m *Model) reload(gen int) {
	*m = Model{
		opts:       m.opts,
		documentID: m.documentID,
		generation: gen,
		partial:    true,
		selected:   -1,
		lastOffset: -1,
	}
}
