package jsonparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidDocument matches every *ParseError through errors.Is.
var ErrInvalidDocument = errors.New("invalid document")

// ParseError reports text that neither the strict decoder nor the tolerant
// parser could read. Cause is the strict decoder's error, or ErrTooDeep
// when the tolerant parser hit MaxDepth.
type ParseError struct {
	Offset int
	Char   rune // 0 at end of input
	Cause  error
}

func (e *ParseError) Error() string {
	var at string
	if e.Char == 0 {
		at = fmt.Sprintf("unexpected end of input at offset %d", e.Offset)
	} else {
		at = fmt.Sprintf("unexpected %q at offset %d", e.Char, e.Offset)
	}
	if e.Cause != nil {
		return fmt.Sprintf("jsonparse: invalid document: %s (strict: %v)", at, e.Cause)
	}
	return "jsonparse: invalid document: " + at
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Is(target error) bool { return target == ErrInvalidDocument }

// Parse decodes text strictly, and when that fails re-reads it with the
// tolerant parser. Truncated containers, strings and literals come back as
// their best-effort closed form; text after the first value is ignored.
func Parse(text string) (Value, error) {
	v, err := Decode(strings.NewReader(text))
	if err == nil {
		return v, nil
	}
	c := &cursor{src: text, cause: err}
	return c.value()
}

// cursor is the tolerant parser's state: the text, the read position and
// the strict error that sent us here.
type cursor struct {
	src   string
	pos   int
	depth int
	cause error
}

func (c *cursor) failAt(pos int) error {
	e := &ParseError{Offset: pos, Cause: c.cause}
	if pos < len(c.src) {
		e.Char, _ = utf8.DecodeRuneInString(c.src[pos:])
	}
	return e
}

// enter steps into a container at the cursor.
func (c *cursor) enter() error {
	if c.depth >= MaxDepth {
		return &ParseError{Offset: c.pos, Char: rune(c.src[c.pos]), Cause: ErrTooDeep}
	}
	c.depth++
	c.pos++
	return nil
}

func (c *cursor) eof() bool { return c.pos >= len(c.src) }

func (c *cursor) skipSpace() {
	for !c.eof() && isSpace(c.src[c.pos]) {
		c.pos++
	}
}

func (c *cursor) value() (Value, error) {
	for !c.eof() {
		ch := c.src[c.pos]
		switch {
		case isSpace(ch):
			c.pos++
		case ch == '[':
			return c.array()
		case ch == '{':
			return c.object()
		case ch == '"':
			return c.string()
		case isNumberStart(ch):
			return c.number(), nil
		case ch == 't' || ch == 'f' || ch == 'n':
			return c.literal()
		default:
			return Value{}, c.failAt(c.pos)
		}
	}
	return Value{}, c.failAt(c.pos)
}

func (c *cursor) array() (Value, error) {
	if err := c.enter(); err != nil {
		return Value{}, err
	}
	defer func() { c.depth-- }()
	items := []Value{}
	for {
		c.skipSpace()
		if c.eof() {
			break
		}
		if c.src[c.pos] == ']' {
			c.pos++
			break
		}
		v, err := c.value()
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
		c.skipSpace()
		if !c.eof() && c.src[c.pos] == ',' {
			c.pos++
		}
	}
	return Value{Kind: Array, Items: items}, nil
}

func (c *cursor) object() (Value, error) {
	if err := c.enter(); err != nil {
		return Value{}, err
	}
	defer func() { c.depth-- }()
	var b objectBuilder
	for {
		c.skipSpace()
		if c.eof() {
			break
		}
		if c.src[c.pos] == '}' {
			c.pos++
			break
		}
		k, err := c.value()
		if err != nil {
			return Value{}, err
		}
		key := k.keyText()

		c.skipSpace()
		if c.eof() || c.src[c.pos] != ':' {
			b.set(key, Value{Kind: Undefined})
			break
		}
		c.pos++
		c.skipSpace()
		if c.eof() {
			b.set(key, Value{Kind: Undefined})
			break
		}
		v, err := c.value()
		if err != nil {
			return Value{}, err
		}
		b.set(key, v)

		c.skipSpace()
		if !c.eof() && c.src[c.pos] == ',' {
			c.pos++
		}
	}
	return b.value(), nil
}

func (c *cursor) string() (Value, error) {
	start := c.pos
	for i := start + 1; i < len(c.src); i++ {
		switch c.src[i] {
		case '\\':
			i++
		case '"':
			c.pos = i + 1
			return c.decodeString(start, c.src[start:c.pos])
		}
	}
	// No closing quote before end of input.
	c.pos = len(c.src)
	return c.decodeString(start, trimDanglingEscape(c.src[start:])+`"`)
}

func (c *cursor) decodeString(start int, lit string) (Value, error) {
	var s string
	if err := json.Unmarshal([]byte(lit), &s); err != nil {
		return Value{}, c.failAt(start)
	}
	return Value{Kind: String, Text: s}, nil
}

func (c *cursor) number() Value {
	start := c.pos
	c.pos++
	for !c.eof() && isNumberPart(c.src[c.pos]) {
		c.pos++
	}
	raw := c.src[start:c.pos]
	if raw == "-" {
		return Value{Kind: Number, Text: "-0"}
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		var ne *strconv.NumError
		if !errors.As(err, &ne) || ne.Err != strconv.ErrRange {
			return Value{Kind: String, Text: raw}
		}
	}
	return Value{Kind: Number, Text: raw}
}

var literals = [...]struct {
	text  string
	value Value
}{
	{"true", Value{Kind: Bool, Bool: true}},
	{"false", Value{Kind: Bool}},
	{"null", Value{Kind: Null}},
}

// literal accepts the longest prefix of true, false or null at the cursor.
func (c *cursor) literal() (Value, error) {
	rest := c.src[c.pos:]
	for _, lit := range literals {
		for n := len(lit.text); n > 0; n-- {
			if strings.HasPrefix(rest, lit.text[:n]) {
				c.pos += n
				return lit.value, nil
			}
		}
	}
	return Value{}, c.failAt(c.pos)
}

// trimDanglingEscape drops an escape sequence cut off at the end of a
// truncated string literal.
func trimDanglingEscape(s string) string {
	if trailingBackslashes(s)%2 == 1 {
		return s[:len(s)-1]
	}
	if i := strings.LastIndex(s, `\u`); i >= 0 && len(s)-(i+2) < 4 && trailingBackslashes(s[:i+1])%2 == 1 {
		return s[:i]
	}
	return s
}

func trailingBackslashes(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isNumberStart(ch byte) bool {
	return (ch >= '0' && ch <= '9') || ch == '-' || ch == '.'
}

func isNumberPart(ch byte) bool {
	return isNumberStart(ch) || ch == 'e' || ch == 'E' || ch == '+'
}
