// Package jsonparse decodes JSON text into an ordered value tree.
//
// Parse tries a strict decode first and falls back to a tolerant
// recursive-descent parser that recovers best-effort values from truncated
// or slightly malformed fragments.
package jsonparse

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind identifies the type of a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
	// Undefined marks an object key whose value was cut off.
	Undefined
)

var kindNames = [...]string{
	Null:      "null",
	Bool:      "boolean",
	Number:    "number",
	String:    "string",
	Array:     "array",
	Object:    "object",
	Undefined: "undefined",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one node of a parsed document. Text holds the decoded contents
// of a String or the literal source text of a Number.
type Value struct {
	Kind    Kind
	Text    string
	Bool    bool
	Items   []Value
	Members []Member
}

// Member is a key/value pair of an object, kept in document order.
type Member struct {
	Key   string
	Value Value
}

// Get returns the member value for key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of items or members of a container.
func (v Value) Len() int {
	switch v.Kind {
	case Array:
		return len(v.Items)
	case Object:
		return len(v.Members)
	}
	return 0
}

// Count returns the number of values in the tree rooted at v, v included.
func (v Value) Count() int {
	n := 1
	for _, it := range v.Items {
		n += it.Count()
	}
	for _, m := range v.Members {
		n += m.Value.Count()
	}
	return n
}

// Interface converts v into the generic form produced by encoding/json
// with UseNumber: map[string]any, []any, string, json.Number, bool or nil.
func (v Value) Interface() any {
	switch v.Kind {
	case Bool:
		return v.Bool
	case Number:
		return json.Number(v.Text)
	case String:
		return v.Text
	case Array:
		out := make([]any, len(v.Items))
		for i, it := range v.Items {
			out[i] = it.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.Members))
		for _, m := range v.Members {
			out[m.Key] = m.Value.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON writes v as compact JSON, keeping member order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.Kind {
	case Null, Undefined:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.Bool))
	case Number:
		if json.Valid([]byte(v.Text)) {
			buf.WriteString(v.Text)
			break
		}
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return err
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case String:
		b, err := json.Marshal(v.Text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// keyText coerces a value parsed in key position into a member name.
func (v Value) keyText() string {
	switch v.Kind {
	case String, Number:
		return v.Text
	case Bool:
		return strconv.FormatBool(v.Bool)
	case Null:
		return "null"
	case Undefined:
		return "undefined"
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return v.Kind.String()
	}
	return string(b)
}

// objectBuilder collects members; a repeated key overwrites the earlier
// value in its original position.
type objectBuilder struct {
	members []Member
	index   map[string]int
}

func (b *objectBuilder) set(key string, v Value) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[key]; ok {
		b.members[i].Value = v
		return
	}
	b.index[key] = len(b.members)
	b.members = append(b.members, Member{Key: key, Value: v})
}

func (b *objectBuilder) value() Value {
	members := b.members
	if members == nil {
		members = []Member{}
	}
	return Value{Kind: Object, Members: members}
}
