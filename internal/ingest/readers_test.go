package ingest

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "document with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"a":1}`)...),
			expected: `{"a":1}`,
		},
		{
			name:     "document without BOM",
			input:    []byte(`{"a":1}`),
			expected: `{"a":1}`,
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "short input",
			input:    []byte("[]"),
			expected: "[]",
		},
		{
			name:     "partial BOM kept",
			input:    []byte{0xEF, 0xBB, '[', ']'},
			expected: string([]byte{0xEF, 0xBB, '[', ']'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBOMReader_TinyReads(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`["x"]`)...)
	got, err := io.ReadAll(iotest.OneByteReader(newBOMReader(bytes.NewReader(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `["x"]` {
		t.Errorf("got %q, want %q", got, `["x"]`)
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid ASCII", []byte(`{"a":"b"}`), `{"a":"b"}`},
		{"valid multibyte", []byte(`"grüße"`), `"grüße"`},
		{"invalid byte replaced", []byte{'"', 'h', 0x80, 'i', '"'}, `"h?i"`},
		{"truncated sequence at EOF", []byte{'"', 'a', 0xE2, 0x82}, `"a??`},
		{"empty input", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	// A three byte rune delivered one byte per read must survive intact.
	input := []byte(`"€uro"`)
	got, err := io.ReadAll(newUTF8Sanitizer(iotest.OneByteReader(bytes.NewReader(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `"€uro"` {
		t.Errorf("got %q, want %q", got, `"€uro"`)
	}
}

func TestUTF8Sanitizer_SmallCallerBuffer(t *testing.T) {
	// Both sides deliver one byte at a time, so the carried bytes of a
	// split rune never fit next to a fresh read in the caller's buffer.
	input := []byte(`["€€", "ü"]`)
	got, err := io.ReadAll(iotest.OneByteReader(newUTF8Sanitizer(iotest.OneByteReader(bytes.NewReader(input)))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(input) {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestUTF8Sanitizer_ReadFullAcrossRune(t *testing.T) {
	input := []byte(`{"a":"` + strings.Repeat("x", 992) + `€€"}`)
	buf := make([]byte, 1000)
	n, err := io.ReadFull(newUTF8Sanitizer(bytes.NewReader(input)), buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(buf[:n], input[:1000]) {
		t.Errorf("got %q, want %q", buf[n-8:n], input[992:1000])
	}
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	r := NewCountingReader(strings.NewReader(input), int64(len(input)))

	buf := make([]byte, 100)
	total := 0
	for {
		n, err := r.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if total != len(input) {
		t.Errorf("total read = %d, want %d", total, len(input))
	}
	if r.BytesRead() != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", r.BytesRead(), len(input))
	}
	if r.Percent() != 100 {
		t.Errorf("Percent = %d, want 100", r.Percent())
	}
}

func TestCutToRune(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{[]byte("abc"), "abc"},
		{[]byte("ab€"), "ab€"},
		{[]byte("ab€")[:4], "ab"},
		{[]byte("ab€")[:3], "ab"},
		{[]byte{}, ""},
	}
	for _, tt := range tests {
		if got := string(cutToRune(tt.input)); got != tt.want {
			t.Errorf("cutToRune(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
