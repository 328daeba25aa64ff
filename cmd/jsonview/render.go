package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	stringColor = color.New(color.FgGreen)
	numberColor = color.New(color.FgCyan)
	boolColor   = color.New(color.FgYellow)
	nullColor   = color.New(color.FgMagenta)
	unsetColor  = color.New(color.FgRed)
	matchColor  = color.New(color.Bold, color.Underline)
)

// indexedRow is a row with its position in the document.
type indexedRow struct {
	Index        int `json:"index" yaml:"index"`
	rowstore.Row `yaml:",inline"`
}

func checkFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q: use table, json or yaml", f)
}

// renderRows writes rows, numbered from first, in the given format. The
// row at index match (if any) is highlighted in tables.
func renderRows(w io.Writer, format string, rows []rowstore.Row, first, match int) error {
	out := make([]indexedRow, len(rows))
	for i, r := range rows {
		out[i] = indexedRow{Index: first + i, Row: r}
	}

	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		for _, r := range out {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Key", "Value", "Type"})
	for _, r := range out {
		idx := strconv.Itoa(r.Index)
		if r.Index == match {
			idx = matchColor.Sprint(idx)
		}
		tbl.AppendRow(table.Row{idx, displayKey(r.Row), displayValue(r.Row), displayType(r.Row)})
	}
	tbl.Render()
	return nil
}

// displayKey indents the key by nesting level and adds the bracket of
// container rows.
func displayKey(r rowstore.Row) string {
	indent := strings.Repeat("  ", max(r.Level, 0))
	key := r.Key
	if r.IsParentArray && key != "" {
		key = "[" + key + "]"
	}

	var bracket string
	switch r.Kind {
	case rowstore.KindObjectOpen:
		bracket = "{"
	case rowstore.KindArrayOpen:
		bracket = "["
	case rowstore.KindObjectClose:
		return indent + "}"
	case rowstore.KindArrayClose:
		return indent + "]"
	}
	switch {
	case bracket == "":
		return indent + key
	case key == "":
		return indent + bracket
	default:
		return indent + key + ": " + bracket
	}
}

func displayValue(r rowstore.Row) string {
	if r.Kind != rowstore.KindPrimitive {
		return ""
	}
	switch r.PrimitiveType {
	case rowstore.PrimitiveString:
		return stringColor.Sprint(strconv.Quote(r.Value))
	case rowstore.PrimitiveNumber:
		return numberColor.Sprint(r.Value)
	case rowstore.PrimitiveBoolean:
		return boolColor.Sprint(r.Value)
	case rowstore.PrimitiveNull:
		return nullColor.Sprint("null")
	default:
		return unsetColor.Sprint("?")
	}
}

func displayType(r rowstore.Row) string {
	if r.Kind == rowstore.KindPrimitive {
		return r.PrimitiveType.String()
	}
	return r.Kind.String()
}
