package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

func writeDocument(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":%d,"name":"item-%d"}`, i, i)
	}
	b.WriteByte(']')
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INGEST_START_DELAY", "0s")
	t.Setenv("INGEST_PAUSE", "0s")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeLines(t *testing.T, out string) []indexedRow {
	t.Helper()
	var rows []indexedRow
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r indexedRow
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		rows = append(rows, r)
	}
	return rows
}

func TestInspect_JSON(t *testing.T) {
	path := writeDocument(t, 20)
	out, err := execute(t, "inspect", "--offset", "4", "--limit", "5", "--format", "json", path)
	require.NoError(t, err)

	rows := decodeLines(t, out)
	require.Len(t, rows, 5)
	assert.Equal(t, 4, rows[0].Index)
	assert.Equal(t, rowstore.KindObjectOpen, rows[0].Kind)
	assert.Equal(t, "item-1", rows[2].Value)
	assert.Equal(t, rowstore.PrimitiveString, rows[2].PrimitiveType)
}

func TestInspect_PastLoadedRows(t *testing.T) {
	path := writeDocument(t, 200)
	out, err := execute(t, "inspect", "--offset", "700", "--limit", "10", "--format", "json", path)
	require.NoError(t, err)

	rows := decodeLines(t, out)
	require.Len(t, rows, 10)
	assert.Equal(t, 700, rows[0].Index)
}

func TestInspect_TableStats(t *testing.T) {
	path := writeDocument(t, 20)
	out, err := execute(t, "inspect", "--limit", "4", path)
	require.NoError(t, err)

	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, `"item-0"`)
	assert.Contains(t, out, "items.json: 80 rows")
}

func TestInspect_Errors(t *testing.T) {
	_, err := execute(t, "inspect", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FILE002")

	_, err = execute(t, "inspect", "--format", "xml", writeDocument(t, 1))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("<xml/>"), 0o644))
	_, err = execute(t, "inspect", "--stats=false", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON001")
}

func TestSearch(t *testing.T) {
	path := writeDocument(t, 20)
	out, err := execute(t, "search", "-C", "1", "--format", "json", path, "item-7")
	require.NoError(t, err)

	rows := decodeLines(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, 29, rows[0].Index)
	assert.Equal(t, "item-7", rows[1].Value)

	_, err = execute(t, "search", path, "nothing-like-this")
	assert.ErrorIs(t, err, errNoMatch)
}

func TestSearch_YAML(t *testing.T) {
	path := writeDocument(t, 5)
	out, err := execute(t, "search", "-C", "0", "--format", "yaml", path, "item-3")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 14, rows[0]["index"])
	assert.Equal(t, "item-3", rows[0]["value"])
	assert.Equal(t, "primitive", rows[0]["type"])
}

func TestWorker(t *testing.T) {
	t.Setenv("INGEST_START_DELAY", "0s")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(`{"id":"1","type":"startFull","input":"{\"a\":1}"}` + "\n"))
	cmd.SetArgs([]string{"worker"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), `"type":"page"`)
	assert.Contains(t, out.String(), `"id":"1"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "jsonview dev"))
}

func TestDisplayKey(t *testing.T) {
	tests := []struct {
		row  rowstore.Row
		want string
	}{
		{rowstore.Row{Level: 1, Kind: rowstore.KindPrimitive, Key: "a"}, "  a"},
		{rowstore.Row{Level: 0, Kind: rowstore.KindObjectOpen, Key: "obj"}, "obj: {"},
		{rowstore.Row{Level: 2, Kind: rowstore.KindArrayOpen, Key: "0", IsParentArray: true}, "    [0]: ["},
		{rowstore.Row{Level: 0, Kind: rowstore.KindObjectOpen}, "{"},
		{rowstore.Row{Level: 1, Kind: rowstore.KindArrayClose, Key: "list"}, "  ]"},
	}
	for _, tt := range tests {
		if got := displayKey(tt.row); got != tt.want {
			t.Errorf("displayKey(%+v) = %q, want %q", tt.row, got, tt.want)
		}
	}
}
