package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/jsonview/internal/core"
)

func document(n int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":%d,"name":"item-%d"}`, i, i)
	}
	b.WriteByte(']')
	return b.String()
}

func newService(t *testing.T) *core.Service {
	t.Helper()
	opts := core.DefaultOptions()
	opts.Pipeline.StartDelay = 0
	opts.Pipeline.Pause = 0
	opts.Pipeline.ProgressInterval = 0
	opts.Paging.RetryDelay = 5 * time.Millisecond
	opts.Search.PageSize = 100
	opts.Search.PageDelay = 0
	opts.ListenerBuffer = 4096
	svc := core.NewService(opts, nil, nil)
	t.Cleanup(svc.CloseAll)
	return svc
}

func requestLines(t *testing.T, reqs ...any) string {
	t.Helper()
	var b strings.Builder
	for _, r := range reqs {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}

func serve(t *testing.T, svc *core.Service, input string) []Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, Serve(ctx, strings.NewReader(input), &out, svc, DefaultOptions(), nil))

	var resps []Response
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 64*1024), 64<<20)
	for sc.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		resps = append(resps, r)
	}
	require.NoError(t, sc.Err())
	return resps
}

func byID(resps []Response, id string) []Response {
	var out []Response
	for _, r := range resps {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}

func ofType(resps []Response, typ ResponseType) []Response {
	var out []Response
	for _, r := range resps {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestServe_FullSession(t *testing.T) {
	svc := newService(t)
	doc := document(100)

	resps := serve(t, svc, requestLines(t,
		Request{ID: "open", Type: StartFull, Input: ptr(doc)},
		Request{ID: "p1", Type: GetPage, Offset: 0, PageSize: 10},
		Request{ID: "s1", Type: Search, Term: "item-99", LoadedLength: 10, Wait: true},
		Request{ID: "r1", Type: Reset},
	))

	open := byID(resps, "open")
	require.NotEmpty(t, open)
	assert.Equal(t, Started, open[0].Type)
	first := ofType(open, PageResponse)
	require.Len(t, first, 1)
	assert.True(t, first[0].First)
	assert.NotEmpty(t, first[0].DocumentID)
	assert.Len(t, first[0].Rows, 50)

	progress := ofType(open, Progress)
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.True(t, last.End)
	assert.Equal(t, 400, last.TotalRows)
	assert.Equal(t, 100, last.Percent)

	p1 := byID(resps, "p1")
	require.Len(t, p1, 1)
	assert.Len(t, p1[0].Rows, 10)

	s1 := byID(resps, "s1")
	pages := ofType(s1, SearchPage)
	result := ofType(s1, ResultIndex)
	require.Len(t, result, 1)
	require.NotNil(t, result[0].Index)
	assert.Equal(t, 398, *result[0].Index)
	assert.True(t, result[0].Complete)
	// (398-10)/100+1 pages of 100 rows
	assert.Len(t, pages, 4)
	assert.Equal(t, s1[len(s1)-1].Type, ResultIndex, "result follows its pages")

	r1 := byID(resps, "r1")
	require.Len(t, r1, 1)
	assert.True(t, r1[0].Reset)
}

func TestServe_ScopedSearch(t *testing.T) {
	svc := newService(t)
	resps := serve(t, svc, requestLines(t,
		Request{ID: "open", Type: StartFull, Input: ptr(document(1000)), Turbo: true},
		Request{ID: "s", Type: Search, Term: "item-999", Wait: true},
	))

	finished := ofType(byID(resps, "open"), FinishedProcessing)
	require.Len(t, finished, 1)
	assert.Equal(t, 4000, finished[0].TotalRows)

	s := byID(resps, "s")
	require.Len(t, s, 1, "scoped results stream no pages")
	assert.Equal(t, ScopedResult, s[0].Type)
	require.NotNil(t, s[0].Index)
	assert.Equal(t, 3998-s[0].WindowStart, *s[0].Index)
	assert.NotEmpty(t, s[0].Rows)
}

func TestServe_Preview(t *testing.T) {
	svc := newService(t)
	resps := serve(t, svc, requestLines(t,
		Request{ID: "pv", Type: StartPreview, Input: ptr(document(1000)), FragmentBytes: 100},
	))

	require.Len(t, resps, 1)
	assert.Equal(t, PartialRows, resps[0].Type)
	assert.NotEmpty(t, resps[0].Rows)
	assert.Zero(t, svc.Len(), "preview does not open a document")
}

func TestServe_Errors(t *testing.T) {
	svc := newService(t)
	input := requestLines(t,
		Request{ID: "early", Type: GetPage},
		Request{ID: "bogus", Type: "explode"},
		Request{ID: "none", Type: StartFull},
		Request{ID: "both", Type: StartFull, Input: ptr("[]"), Path: "/tmp/x.json"},
		Request{ID: "missing", Type: StartFull, Path: filepath.Join(t.TempDir(), "nope.json")},
	) + "{not json\n\n"

	resps := serve(t, svc, input)

	codes := map[string]string{}
	for _, r := range resps {
		require.Equal(t, Error, r.Type)
		codes[r.ID] = r.Code
	}
	assert.Equal(t, map[string]string{
		"early":   "SES001",
		"bogus":   "REQ003",
		"none":    "FILE006",
		"both":    "REQ003",
		"missing": "FILE002",
		"":        "REQ003",
	}, codes)
}

func TestServe_InvalidDocument(t *testing.T) {
	svc := newService(t)
	resps := serve(t, svc, requestLines(t,
		Request{ID: "open", Type: StartFull, Input: ptr(`<xml/>`)},
	))

	errs := ofType(resps, Error)
	require.Len(t, errs, 1)
	assert.Equal(t, "JSON001", errs[0].Code)
	assert.Equal(t, "open", errs[0].ID)
}

func TestServe_NewInputReplacesDocument(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(document(3)), 0o600))

	resps := serve(t, svc, requestLines(t,
		Request{ID: "a", Type: StartFull, Input: ptr(document(2))},
		Request{ID: "b", Type: StartFull, Path: path},
		Request{ID: "c", Type: Close},
		Request{ID: "d", Type: Close},
	))

	var docA, docB string
	seenB := false
	for _, r := range resps {
		switch r.ID {
		case "a":
			assert.False(t, seenB, "events of a replaced document never follow the new one")
			docA = r.DocumentID
		case "b":
			seenB = true
			docB = r.DocumentID
		}
	}
	assert.NotEqual(t, docA, docB)

	// Every startFull is answered, even when its document is closed
	// before producing an event.
	for _, id := range []string{"a", "b"} {
		got := byID(resps, id)
		require.NotEmpty(t, got, id)
		assert.Equal(t, Started, got[0].Type, id)
		assert.NotEmpty(t, got[0].DocumentID, id)
		assert.Equal(t, 1, got[0].Generation, id)
	}
	assert.Equal(t, docB, byID(resps, "b")[0].DocumentID)

	closed := byID(resps, "c")
	require.Len(t, closed, 1)
	assert.Equal(t, Closed, closed[0].Type)
	assert.Equal(t, docB, closed[0].DocumentID)

	d := byID(resps, "d")
	require.Len(t, d, 1)
	assert.Equal(t, "SES001", d[0].Code)
	assert.Zero(t, svc.Len())
}

func TestServe_ContextCancel(t *testing.T) {
	svc := newService(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, pr, io.Discard, svc, DefaultOptions(), nil) }()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
