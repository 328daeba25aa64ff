package jsonparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var errTrailingData = errors.New("jsonparse: trailing data after document")

// MaxDepth is the deepest container nesting any parser in this module
// accepts. The root container is at depth 1.
const MaxDepth = 10000

// ErrTooDeep is returned for documents nested deeper than MaxDepth.
var ErrTooDeep = errors.New("jsonparse: nesting exceeds maximum depth")

// Decode strictly decodes exactly one JSON document from r. Anything but
// whitespace after the document is an error.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec, 0)
	if err != nil {
		return Value{}, err
	}

	switch _, err := dec.Token(); {
	case err == io.EOF:
		return v, nil
	case err != nil:
		return Value{}, err
	default:
		return Value{}, errTrailingData
	}
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err == io.EOF {
		return Value{}, io.ErrUnexpectedEOF
	}
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok, depth)
}

func decodeToken(dec *json.Decoder, tok json.Token, depth int) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		if (t == '{' || t == '[') && depth >= MaxDepth {
			return Value{}, ErrTooDeep
		}
		switch t {
		case '{':
			return decodeObject(dec, depth+1)
		case '[':
			return decodeArray(dec, depth+1)
		}
		return Value{}, fmt.Errorf("jsonparse: unexpected delimiter %q", rune(t))
	case string:
		return Value{Kind: String, Text: t}, nil
	case json.Number:
		return Value{Kind: Number, Text: string(t)}, nil
	case bool:
		return Value{Kind: Bool, Bool: t}, nil
	case nil:
		return Value{Kind: Null}, nil
	}
	return Value{}, fmt.Errorf("jsonparse: unexpected token %T", tok)
}

func decodeObject(dec *json.Decoder, depth int) (Value, error) {
	var b objectBuilder
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("jsonparse: object key is %T, not string", tok)
		}
		v, err := decodeValue(dec, depth)
		if err != nil {
			return Value{}, err
		}
		b.set(key, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Value{}, err
	}
	return b.value(), nil
}

func decodeArray(dec *json.Decoder, depth int) (Value, error) {
	items := []Value{}
	for dec.More() {
		v, err := decodeValue(dec, depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return Value{}, err
	}
	return Value{Kind: Array, Items: items}, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("jsonparse: expected %q, got %v", rune(want), tok)
	}
	return nil
}
