// Package flatten turns a JSON document into the ordered display rows of
// package rowstore.
//
// Every container yields an open row, its children one level deeper and a
// matching close row at the open row's level. The children of the root
// container start at level 0; a root primitive yields a single row with an
// empty key.
package flatten

import (
	"context"
	"runtime"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/jsonview/internal/jsonparse"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

// Sink receives flushed rows in document order. It owns the slice.
type Sink func(rows []rowstore.Row) error

// Options controls flushing. With FlushEvery > 0 the flattener hands its
// buffer to the sink after every FlushEvery keys and then pauses for Pause
// (or yields the processor when Pause is zero). With FlushEvery == 0 all
// rows are delivered in one flush at the end.
type Options struct {
	FlushEvery int
	Pause      time.Duration
}

type Flattener struct {
	sink  Sink
	opts  Options
	buf   []rowstore.Row
	keys  int
	total int
}

func New(sink Sink, opts Options) *Flattener {
	return &Flattener{sink: sink, opts: opts}
}

// Total returns the number of rows produced so far, flushed or not.
func (f *Flattener) Total() int { return f.total }

// Pending returns the rows produced since the last flush. The slice is
// only valid until the next call on f.
func (f *Flattener) Pending() []rowstore.Row { return f.buf }

// Rows flattens v in one go.
func Rows(v jsonparse.Value) []rowstore.Row {
	var out []rowstore.Row
	f := New(func(rows []rowstore.Row) error {
		out = append(out, rows...)
		return nil
	}, Options{})
	_ = f.Value(context.Background(), v)
	return out
}

// Value flattens an in-memory tree.
func (f *Flattener) Value(ctx context.Context, v jsonparse.Value) error {
	var err error
	switch v.Kind {
	case jsonparse.Object:
		for _, m := range v.Members {
			if err = f.value(ctx, m.Key, m.Value, 0, false); err != nil {
				break
			}
		}
	case jsonparse.Array:
		for i, it := range v.Items {
			if err = f.value(ctx, strconv.Itoa(i), it, 0, true); err != nil {
				break
			}
		}
	default:
		err = f.emit(ctx, primitiveRow(0, "", v, false))
	}
	if err != nil {
		return err
	}
	return f.flush()
}

func (f *Flattener) value(ctx context.Context, key string, v jsonparse.Value, level int, parentArray bool) error {
	switch v.Kind {
	case jsonparse.Object:
		if err := f.emit(ctx, openRow(rowstore.KindObjectOpen, level, key, parentArray)); err != nil {
			return err
		}
		for _, m := range v.Members {
			if err := f.value(ctx, m.Key, m.Value, level+1, false); err != nil {
				return err
			}
		}
		f.close(openRow(rowstore.KindObjectOpen, level, key, parentArray))
		return nil
	case jsonparse.Array:
		if err := f.emit(ctx, openRow(rowstore.KindArrayOpen, level, key, parentArray)); err != nil {
			return err
		}
		for i, it := range v.Items {
			if err := f.value(ctx, strconv.Itoa(i), it, level+1, true); err != nil {
				return err
			}
		}
		f.close(openRow(rowstore.KindArrayOpen, level, key, parentArray))
		return nil
	}
	return f.emit(ctx, primitiveRow(level, key, v, parentArray))
}

// emit buffers a key row and flushes when the key budget is reached.
func (f *Flattener) emit(ctx context.Context, row rowstore.Row) error {
	f.buf = append(f.buf, row)
	f.total++
	if f.opts.FlushEvery <= 0 {
		return nil
	}
	f.keys++
	if f.keys%f.opts.FlushEvery != 0 {
		return nil
	}
	if err := f.flush(); err != nil {
		return err
	}
	return f.yield(ctx)
}

// close buffers the close row matching open. Close rows do not count
// against the key budget.
func (f *Flattener) close(open rowstore.Row) {
	open.Kind = open.Kind.Closer()
	f.buf = append(f.buf, open)
	f.total++
}

func (f *Flattener) flush() error {
	if len(f.buf) == 0 {
		return nil
	}
	rows := f.buf
	f.buf = nil
	return f.sink(rows)
}

func (f *Flattener) yield(ctx context.Context) error {
	if f.opts.Pause <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	t := time.NewTimer(f.opts.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func openRow(kind rowstore.Kind, level int, key string, parentArray bool) rowstore.Row {
	return rowstore.Row{Level: level, Kind: kind, Key: key, IsParentArray: parentArray}
}

func primitiveRow(level int, key string, v jsonparse.Value, parentArray bool) rowstore.Row {
	r := rowstore.Row{Level: level, Kind: rowstore.KindPrimitive, Key: key, IsParentArray: parentArray}
	switch v.Kind {
	case jsonparse.String:
		r.PrimitiveType = rowstore.PrimitiveString
		r.Value = v.Text
		r.Length = utf8.RuneCountInString(v.Text)
	case jsonparse.Number:
		r.PrimitiveType = rowstore.PrimitiveNumber
		r.Value = v.Text
	case jsonparse.Bool:
		r.PrimitiveType = rowstore.PrimitiveBoolean
		r.Value = strconv.FormatBool(v.Bool)
	case jsonparse.Null:
		r.PrimitiveType = rowstore.PrimitiveNull
		r.Value = "null"
	default:
		r.PrimitiveType = rowstore.PrimitiveUnset
	}
	return r
}
