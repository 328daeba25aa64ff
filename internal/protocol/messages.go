// Package protocol implements the newline-delimited JSON message protocol
// between a viewer and the engine, and the stdio worker that serves it.
//
// Every line is one JSON object with a "type". Requests may carry an "id",
// which is echoed in every response they cause, so a client can pipeline
// page and search requests and match the answers.
package protocol

import (
	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/paging"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/search"
)

// RequestType names a request.
type RequestType string

const (
	// StartPreview parses the leading fragment of an input and answers
	// with partialRows. It does not replace the current document.
	StartPreview RequestType = "startPreview"
	// StartFull opens an input as the current document, closing the
	// previous one, and streams its pipeline events.
	StartFull RequestType = "startFull"
	GetPage   RequestType = "getPage"
	Reset     RequestType = "reset"
	Search    RequestType = "search"
	// Cancel stops the current document's ingestion; rows already
	// ingested stay readable.
	Cancel RequestType = "cancel"
	// Close closes the current document.
	Close RequestType = "close"
)

// Request is one client message. Which fields apply depends on Type.
type Request struct {
	ID   string      `json:"id,omitempty"`
	Type RequestType `json:"type"`

	// startPreview, startFull: exactly one of Input and Path.
	Input         *string `json:"input,omitempty"`
	Path          string  `json:"path,omitempty"`
	FragmentBytes int     `json:"fragmentBytes,omitempty"`
	Turbo         bool    `json:"turbo,omitempty"`

	// getPage
	Offset   int `json:"offset,omitempty"`
	PageSize int `json:"pageSize,omitempty"`

	// search
	Term         string `json:"term,omitempty"`
	LoadedLength int    `json:"loadedLength,omitempty"`
	Wait         bool   `json:"wait,omitempty"`
}

// ResponseType names a response.
type ResponseType string

const (
	// Started acknowledges startFull with the new document's ID before any
	// of its events.
	Started ResponseType = "started"

	PartialRows        ResponseType = "partialRows"
	PageResponse       ResponseType = "page"
	Progress           ResponseType = "progress"
	FinishedProcessing ResponseType = "finishedProcessing"
	SearchPage         ResponseType = "searchPage"
	ResultIndex        ResponseType = "resultIndex"
	ScopedResult       ResponseType = "scopedResult"
	Reloaded           ResponseType = "reloaded"
	Cancelled          ResponseType = "cancelled"
	Closed             ResponseType = "closed"
	Error              ResponseType = "error"
)

// Response is one engine message.
type Response struct {
	ID   string       `json:"id,omitempty"`
	Type ResponseType `json:"type"`

	DocumentID string `json:"documentId,omitempty"`
	Generation int    `json:"generation,omitempty"`

	Rows   []rowstore.Row `json:"rows,omitempty"`
	Offset int            `json:"offset,omitempty"`
	First  bool           `json:"first,omitempty"`
	End    bool           `json:"end,omitempty"`
	Reset  bool           `json:"reset,omitempty"`
	Status paging.Status  `json:"status,omitempty"`

	TotalRows  int   `json:"totalRows,omitempty"`
	BytesRead  int64 `json:"bytesRead,omitempty"`
	BytesTotal int64 `json:"bytesTotal,omitempty"`
	Percent    int   `json:"percent,omitempty"`

	// Index is set on resultIndex and scopedResult; -1 means no match.
	Index       *int `json:"index,omitempty"`
	WindowStart int  `json:"windowStart,omitempty"`
	Complete    bool `json:"complete,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
}

func errorResponse(id string, err error) Response {
	msg := core.MapError(err)
	return Response{ID: id, Type: Error, Code: msg.Code, Message: msg.Message, Action: msg.Action}
}

func pageResponse(id string, pg paging.Page) Response {
	return Response{
		ID:     id,
		Type:   PageResponse,
		Rows:   pg.Rows,
		Offset: pg.Offset,
		End:    pg.End,
		Reset:  pg.Reset,
		Status: pg.Status,
	}
}

func resultResponse(id string, res search.Result) Response {
	idx := res.Index
	if res.Scoped() {
		return Response{
			ID:          id,
			Type:        ScopedResult,
			Index:       &idx,
			Rows:        res.Window,
			WindowStart: res.WindowStart,
			Complete:    res.Complete,
		}
	}
	return Response{ID: id, Type: ResultIndex, Index: &idx, Complete: res.Complete}
}

// eventResponse converts a session event into its protocol message.
func eventResponse(id string, ev core.Event) (Response, bool) {
	r := Response{ID: id, DocumentID: ev.Progress.DocumentID, Generation: ev.Generation}
	switch ev.Kind {
	case core.EventPartial:
		r.Type = PartialRows
		r.Rows = ev.Rows
	case core.EventPage:
		r.Type = PageResponse
		r.Rows = ev.Rows
		r.First = ev.First
		r.End = ev.End
	case core.EventProgress:
		r.Type = Progress
		r.TotalRows = ev.Progress.TotalRows
		r.BytesRead = ev.Progress.BytesRead
		r.BytesTotal = ev.Progress.BytesTotal
		r.Percent = ev.Progress.Percent
		r.End = ev.End
	case core.EventFinished:
		r.Type = FinishedProcessing
		r.TotalRows = ev.Progress.TotalRows
	case core.EventReloaded:
		r.Type = Reloaded
	case core.EventError:
		if ev.Error == nil {
			return Response{}, false
		}
		r.Type = Error
		r.Code, r.Message, r.Action = ev.Error.Code, ev.Error.Message, ev.Error.Action
	default:
		return Response{}, false
	}
	return r, true
}
