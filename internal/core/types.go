package core

import (
	"time"

	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/paging"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/JonMunkholm/jsonview/internal/search"
)

// Phase indicates the current stage of a document's ingestion.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseIngesting Phase = "ingesting"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether no further progress will be made in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// Progress is a point-in-time view of a document session.
type Progress struct {
	DocumentID string    `json:"documentId"`
	Name       string    `json:"name"`
	Client     string    `json:"client,omitempty"`
	Generation int       `json:"generation"`
	Phase      Phase     `json:"phase"`
	Turbo      bool      `json:"turbo"`
	TotalRows  int       `json:"totalRows"`
	BytesRead  int64     `json:"bytesRead"`
	BytesTotal int64     `json:"bytesTotal"`
	Percent    int       `json:"percent"`
	Codec      string    `json:"codec,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Tolerant   bool      `json:"tolerant,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt"`
	// FinishedAt is zero until Phase is terminal.
	FinishedAt time.Time    `json:"finishedAt"`
	Error      *UserMessage `json:"error,omitempty"`
}

// EventKind names a session event.
type EventKind string

const (
	EventPartial  = EventKind(ingest.EventPartial)
	EventPage     = EventKind(ingest.EventPage)
	EventProgress = EventKind(ingest.EventProgress)
	EventFinished = EventKind(ingest.EventFinished)
	EventError    = EventKind(ingest.EventError)
	// EventReloaded announces a new generation after the source changed.
	// Rows from earlier generations are no longer valid.
	EventReloaded EventKind = "reloaded"
)

// Event is a pipeline event as seen by session subscribers. Seq increases
// by one for every event a session publishes.
type Event struct {
	Seq        uint64         `json:"seq"`
	Generation int            `json:"generation"`
	Kind       EventKind      `json:"kind"`
	Pass       ingest.Pass    `json:"pass,omitempty"`
	Rows       []rowstore.Row `json:"rows,omitempty"`
	First      bool           `json:"first,omitempty"`
	End        bool           `json:"end,omitempty"`
	Progress   Progress       `json:"progress"`
	Error      *UserMessage   `json:"error,omitempty"`
}

// OpenOptions select how a document is ingested.
type OpenOptions struct {
	Turbo   bool
	Preview bool
}

// Options configures a Service.
type Options struct {
	Pipeline ingest.Options
	Paging   paging.Options
	Search   search.Options

	// MaxSessions bounds the number of open documents (default: 32).
	MaxSessions int
	// MaxConcurrent and MaxWait configure the ingestion limiter.
	MaxConcurrent int
	MaxWait       time.Duration
	// ListenerBuffer is the channel size of each subscriber (default: 64).
	ListenerBuffer int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Pipeline:       ingest.DefaultOptions(),
		Paging:         paging.DefaultOptions(),
		Search:         search.DefaultOptions(),
		MaxSessions:    32,
		MaxConcurrent:  ingest.DefaultMaxConcurrent,
		MaxWait:        ingest.DefaultMaxWait,
		ListenerBuffer: 64,
	}
}
