package rowstore

import (
	"fmt"
	"strings"
)

// Kind classifies a row.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindObjectOpen
	KindArrayOpen
	KindObjectClose
	KindArrayClose
)

var kindText = [...]string{
	KindPrimitive:   "primitive",
	KindObjectOpen:  "object",
	KindArrayOpen:   "array",
	KindObjectClose: "close-object",
	KindArrayClose:  "close-array",
}

func (k Kind) String() string {
	if int(k) < len(kindText) {
		return kindText[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindText) {
		return nil, fmt.Errorf("rowstore: unknown row kind %d", k)
	}
	return []byte(kindText[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, s := range kindText {
		if s == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("rowstore: unknown row kind %q", b)
}

// IsOpen reports whether k opens a container.
func (k Kind) IsOpen() bool { return k == KindObjectOpen || k == KindArrayOpen }

// IsClose reports whether k closes a container.
func (k Kind) IsClose() bool { return k == KindObjectClose || k == KindArrayClose }

// Closer returns the close kind matching an open kind.
func (k Kind) Closer() Kind {
	switch k {
	case KindObjectOpen:
		return KindObjectClose
	case KindArrayOpen:
		return KindArrayClose
	}
	return k
}

// PrimitiveType tags the value of a primitive row. PrimitiveUnset marks
// a value the tolerant parser could not recover.
type PrimitiveType uint8

const (
	PrimitiveUnset PrimitiveType = iota
	PrimitiveString
	PrimitiveNumber
	PrimitiveBoolean
	PrimitiveNull
)

var primitiveText = [...]string{
	PrimitiveUnset:   "unset",
	PrimitiveString:  "string",
	PrimitiveNumber:  "number",
	PrimitiveBoolean: "boolean",
	PrimitiveNull:    "null",
}

func (p PrimitiveType) String() string {
	if int(p) < len(primitiveText) {
		return primitiveText[p]
	}
	return fmt.Sprintf("primitive(%d)", p)
}

func (p PrimitiveType) MarshalText() ([]byte, error) {
	if int(p) >= len(primitiveText) {
		return nil, fmt.Errorf("rowstore: unknown primitive type %d", p)
	}
	return []byte(primitiveText[p]), nil
}

func (p *PrimitiveType) UnmarshalText(b []byte) error {
	for i, s := range primitiveText {
		if s == string(b) {
			*p = PrimitiveType(i)
			return nil
		}
	}
	return fmt.Errorf("rowstore: unknown primitive type %q", b)
}

// Row is one display unit of a flattened document: a key/value pair, a
// container open marker or a container close marker.
type Row struct {
	Level         int           `json:"level" yaml:"level"`
	Kind          Kind          `json:"type" yaml:"type"`
	Key           string        `json:"key" yaml:"key"`
	PrimitiveType PrimitiveType `json:"primitiveType,omitempty" yaml:"primitiveType,omitempty"`
	Value         string        `json:"value,omitempty" yaml:"value,omitempty"`
	IsParentArray bool          `json:"isParentArray,omitempty" yaml:"isParentArray,omitempty"`
	Length        int           `json:"length" yaml:"length"`
}

// SearchText is the text a search term is matched against: the key, plus
// the value for primitive rows.
func (r Row) SearchText() string {
	if r.Kind != KindPrimitive {
		return r.Key
	}
	return r.Key + r.Value
}

// Contains reports whether term occurs in r.SearchText without building it.
func (r Row) Contains(term string) bool {
	if strings.Contains(r.Key, term) {
		return true
	}
	if r.Kind != KindPrimitive {
		return false
	}
	if strings.Contains(r.Value, term) {
		return true
	}
	// Matches spanning the key/value boundary.
	for i := 1; i < len(term); i++ {
		if strings.HasSuffix(r.Key, term[:i]) && strings.HasPrefix(r.Value, term[i:]) {
			return true
		}
	}
	return false
}
