package search

import "github.com/JonMunkholm/jsonview/internal/rowstore"

// Accumulator collects the pages of a streamed search until its result
// arrives. The zero value is ready to use.
type Accumulator struct {
	pages [][]rowstore.Row
	rows  int
}

func (a *Accumulator) Add(rows []rowstore.Row) {
	if len(rows) == 0 {
		return
	}
	a.pages = append(a.pages, rows)
	a.rows += len(rows)
}

// Len returns the number of rows held.
func (a *Accumulator) Len() int { return a.rows }

// Pages returns the number of pages held.
func (a *Accumulator) Pages() int { return len(a.pages) }

// Drain returns every held row in arrival order and empties a.
func (a *Accumulator) Drain() []rowstore.Row {
	out := make([]rowstore.Row, 0, a.rows)
	for _, p := range a.pages {
		out = append(out, p...)
	}
	a.Discard()
	return out
}

func (a *Accumulator) Discard() {
	a.pages = nil
	a.rows = 0
}
