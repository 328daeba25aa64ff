package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedRows(from, n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		s := strconv.Itoa(from + i)
		rows[i] = Row{
			Level:         1,
			Kind:          KindPrimitive,
			Key:           s,
			PrimitiveType: PrimitiveNumber,
			Value:         s,
			IsParentArray: true,
			Length:        len(s),
		}
	}
	return rows
}

func TestStore_AppendAndSlice(t *testing.T) {
	s, w := New()
	require.NoError(t, w.Append(numberedRows(0, 10)...))

	assert.Equal(t, 10, s.Len())
	assert.Len(t, s.Slice(0, 4), 4)
	assert.Len(t, s.Slice(8, 4), 2, "short slice when rows are missing")
	assert.Empty(t, s.Slice(10, 4))
	assert.Empty(t, s.Slice(-1, 4))
	assert.Empty(t, s.Slice(0, 0))
	assert.Equal(t, "9", s.Slice(9, 1)[0].Key)

	// A caller appending to a slice must not write into the store.
	got := s.Slice(0, 2)
	_ = append(got, Row{Key: "intruder"})
	assert.Equal(t, "2", s.Slice(2, 1)[0].Key)
}

func TestStore_FinishIsOneWay(t *testing.T) {
	s, w := New()
	require.NoError(t, w.Append(numberedRows(0, 1)...))
	w.Finish()

	assert.True(t, s.Finished())
	assert.ErrorIs(t, w.Append(numberedRows(1, 1)...), ErrClosed)
	assert.Equal(t, 1, s.Len())

	w.Fail(errors.New("late"))
	assert.NoError(t, s.Err(), "a finished store cannot fail afterwards")
}

func TestStore_Fail(t *testing.T) {
	s, w := New()
	require.NoError(t, w.Append(numberedRows(0, 3)...))
	boom := errors.New("boom")
	w.Fail(boom)

	snap := s.Snapshot()
	assert.True(t, snap.Finished)
	assert.Equal(t, 3, snap.Len)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Len(t, s.Slice(0, 10), 3, "rows appended before failure stay readable")
}

func TestStore_ChangedAndWaitFor(t *testing.T) {
	s, w := New()
	ch := s.Changed()

	done := make(chan error, 1)
	go func() {
		done <- s.WaitFor(context.Background(), func(sn Snapshot) bool { return sn.Len >= 5 })
	}()

	require.NoError(t, w.Append(numberedRows(0, 3)...))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed was not closed by Append")
	}

	require.NoError(t, w.Append(numberedRows(3, 2)...))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return")
	}
}

func TestStore_WaitForCancelled(t *testing.T) {
	s, _ := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.WaitFor(ctx, func(sn Snapshot) bool { return sn.Finished })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_Index(t *testing.T) {
	s, w := New()
	require.NoError(t, w.Append(numberedRows(0, 20)...))

	match := func(r Row) bool { return r.Value == "12" }
	assert.Equal(t, 12, s.Index(0, match))
	assert.Equal(t, -1, s.Index(13, match))
	assert.Equal(t, -1, s.Index(0, func(Row) bool { return false }))
}

func TestStore_ScanStopsEarly(t *testing.T) {
	s, w := New()
	require.NoError(t, w.Append(numberedRows(0, 10)...))

	var seen []int
	s.Scan(4, func(i int, r Row) bool {
		seen = append(seen, i)
		return r.Key != "6"
	})
	assert.Equal(t, []int{4, 5, 6}, seen)
}

func TestStore_ConcurrentReadDuringWrite(t *testing.T) {
	s, w := New()
	const total = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i += 100 {
			if err := w.Append(numberedRows(i, 100)...); err != nil {
				t.Error(err)
				return
			}
		}
		w.Finish()
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !s.Finished() {
				n := s.Len()
				off := n / 2
				rows := s.Slice(off, 250)
				after := s.Len()
				if off+len(rows) > after {
					t.Errorf("slice past length: off=%d rows=%d len=%d", off, len(rows), after)
					return
				}
				for i, row := range rows {
					want := strconv.Itoa(off + i)
					if row.Key != want || row.Value != want || row.Length != len(want) {
						t.Errorf("row %d incomplete: %+v", off+i, row)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, total, s.Len())
}

func TestRow_JSON(t *testing.T) {
	b, err := json.Marshal(Row{Level: 2, Kind: KindObjectClose, Key: "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":2,"type":"close-object","key":"k","length":0}`, string(b))

	var r Row
	require.NoError(t, json.Unmarshal([]byte(`{"level":1,"type":"primitive","key":"a","primitiveType":"null","value":"null","length":0}`), &r))
	assert.Equal(t, KindPrimitive, r.Kind)
	assert.Equal(t, PrimitiveNull, r.PrimitiveType)
}

func TestRow_Contains(t *testing.T) {
	r := Row{Kind: KindPrimitive, Key: "name", Value: "Ada"}
	tests := []struct {
		term string
		want bool
	}{
		{"name", true},
		{"Ada", true},
		{"meAd", true},
		{"ada", false},
		{"nameAda", true},
		{"∄", false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.term); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}

	open := Row{Kind: KindObjectOpen, Key: "config", Value: "ignored"}
	assert.True(t, open.Contains("conf"))
	assert.False(t, open.Contains("ignored"), "container rows match on key only")
}
