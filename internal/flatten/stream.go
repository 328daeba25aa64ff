package flatten

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/JonMunkholm/jsonview/internal/jsonparse"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

var errTrailingData = errors.New("flatten: trailing data after document")

// frame is an open container on the Stream stack. The root container has
// no open row of its own.
type frame struct {
	open  rowstore.Row
	array bool
	root  bool
	next  int
}

// Stream strictly decodes one document from r and flattens it token by
// token, never holding more than the open containers and the unflushed
// buffer in memory. Rows match Value(ctx, jsonparse.Decode(r)) for
// documents without repeated keys. Nesting deeper than jsonparse.MaxDepth
// fails with jsonparse.ErrTooDeep.
func (f *Flattener) Stream(ctx context.Context, r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := nextToken(dec)
	if err != nil {
		return err
	}

	var stack []frame
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			stack = append(stack, frame{root: true})
		case '[':
			stack = append(stack, frame{root: true, array: true})
		default:
			return fmt.Errorf("flatten: unexpected delimiter %q", rune(t))
		}
	default:
		row, err := scalarRow(0, "", tok, false)
		if err != nil {
			return err
		}
		if err := f.emit(ctx, row); err != nil {
			return err
		}
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if !dec.More() {
			want := json.Delim('}')
			if top.array {
				want = ']'
			}
			if err := expectDelim(dec, want); err != nil {
				return err
			}
			if !top.root {
				f.close(top.open)
			}
			stack = stack[:len(stack)-1]
			continue
		}

		var key string
		if top.array {
			key = strconv.Itoa(top.next)
			top.next++
		} else {
			tok, err := nextToken(dec)
			if err != nil {
				return err
			}
			k, ok := tok.(string)
			if !ok {
				return fmt.Errorf("flatten: object key is %T, not string", tok)
			}
			key = k
		}

		level, parentArray := len(stack)-1, top.array
		tok, err := nextToken(dec)
		if err != nil {
			return err
		}
		d, ok := tok.(json.Delim)
		if !ok {
			row, err := scalarRow(level, key, tok, parentArray)
			if err != nil {
				return err
			}
			if err := f.emit(ctx, row); err != nil {
				return err
			}
			continue
		}

		var open rowstore.Row
		switch d {
		case '{':
			open = openRow(rowstore.KindObjectOpen, level, key, parentArray)
		case '[':
			open = openRow(rowstore.KindArrayOpen, level, key, parentArray)
		default:
			return fmt.Errorf("flatten: unexpected delimiter %q", rune(d))
		}
		if len(stack) >= jsonparse.MaxDepth {
			return jsonparse.ErrTooDeep
		}
		if err := f.emit(ctx, open); err != nil {
			return err
		}
		stack = append(stack, frame{open: open, array: d == '['})
	}

	switch _, err := dec.Token(); {
	case err == io.EOF:
	case err != nil:
		return err
	default:
		return errTrailingData
	}
	return f.flush()
}

func scalarRow(level int, key string, tok json.Token, parentArray bool) (rowstore.Row, error) {
	var v jsonparse.Value
	switch t := tok.(type) {
	case string:
		v = jsonparse.Value{Kind: jsonparse.String, Text: t}
	case json.Number:
		v = jsonparse.Value{Kind: jsonparse.Number, Text: string(t)}
	case bool:
		v = jsonparse.Value{Kind: jsonparse.Bool, Bool: t}
	case nil:
		v = jsonparse.Value{Kind: jsonparse.Null}
	default:
		return rowstore.Row{}, fmt.Errorf("flatten: unexpected token %T", tok)
	}
	return primitiveRow(level, key, v, parentArray), nil
}

func nextToken(dec *json.Decoder) (json.Token, error) {
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := nextToken(dec)
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("flatten: expected %q, got %v", rune(want), tok)
	}
	return nil
}
