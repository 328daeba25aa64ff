package ingest

// readers.go holds the stream transforms applied to every input before it
// reaches the JSON decoder:
//
//   - bomReader drops a leading UTF-8 byte order mark
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - CountingReader tracks how many raw bytes were consumed
//
// None of them buffer more than a few bytes, so multi-gigabyte inputs are
// processed in constant memory.

import (
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// bomReader skips a UTF-8 BOM at the start of the stream.
type bomReader struct {
	r       io.Reader
	checked bool
	head    [3]byte
	pending []byte
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		n, err := io.ReadFull(b.r, b.head[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if n == 3 && b.head == utf8BOM {
			n = 0
		}
		b.pending = b.head[:n]
		if err == io.EOF {
			copied := copy(p, b.pending)
			b.pending = b.pending[copied:]
			if len(b.pending) > 0 {
				return copied, nil
			}
			return copied, io.EOF
		}
	}

	if len(b.pending) > 0 {
		copied := copy(p, b.pending)
		b.pending = b.pending[copied:]
		return copied, nil
	}
	return b.r.Read(p)
}

// utf8Sanitizer rewrites invalid UTF-8 bytes to '?'. Reads from the
// underlying reader go through an internal buffer, so a multi-byte
// sequence split across reads is carried over whatever the size of the
// caller's buffer.
type utf8Sanitizer struct {
	r     io.Reader
	buf   []byte
	out   []byte
	carry []byte
	err   error
}

const sanitizerBufSize = 32 * 1024

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		r:     r,
		buf:   make([]byte, sanitizerBufSize),
		carry: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads the next chunk behind any carried bytes and sanitises it
// into s.out. A trailing partial rune goes back into s.carry unless the
// underlying reader is done.
func (s *utf8Sanitizer) fill() {
	off := copy(s.buf, s.carry)
	s.carry = s.carry[:0]

	n, err := s.r.Read(s.buf[off:])
	n += off
	s.err = err

	data := s.buf[:n]
	if !isASCII(data) {
		data = data[:s.sanitize(data, err != nil)]
	}
	s.out = data
}

func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if tail := incompleteTail(data); tail > 0 {
				s.carry = append(s.carry, data[len(data)-tail:]...)
				return len(data) - tail
			}
		}
		return len(data)
	}

	w := 0
	for r := 0; r < len(data); {
		if !atEOF && r+utf8.UTFMax > len(data) && !utf8.FullRune(data[r:]) {
			s.carry = append(s.carry, data[r:]...)
			return w
		}
		ru, size := utf8.DecodeRune(data[r:])
		if ru == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// incompleteTail returns how many trailing bytes of data start a UTF-8
// sequence that is not complete yet.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue
		}
		if b >= 0xC0 && !utf8.FullRune(data[len(data)-i:]) {
			return i
		}
		return 0
	}
	return 0
}

// cutToRune trims a trailing partial UTF-8 sequence from a fragment.
func cutToRune(data []byte) []byte {
	return data[:len(data)-incompleteTail(data)]
}

// CountingReader counts bytes read through it. BytesRead may be called
// from any goroutine.
type CountingReader struct {
	r     io.Reader
	n     atomic.Int64
	total int64
}

// NewCountingReader wraps r. total is the expected size, or <= 0 if unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *CountingReader) BytesRead() int64 { return c.n.Load() }

func (c *CountingReader) Total() int64 { return c.total }

// Percent returns progress in the range 0-100, or 0 when the total is unknown.
func (c *CountingReader) Percent() int {
	if c.total <= 0 {
		return 0
	}
	p := int(c.n.Load() * 100 / c.total)
	if p > 100 {
		p = 100
	}
	return p
}
