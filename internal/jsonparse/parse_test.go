package jsonparse

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Strict(t *testing.T) {
	v, err := Parse(`{"z":1,"a":[true,null,"x"],"m":{"k":-2.5e3}}`)
	require.NoError(t, err)

	require.Equal(t, Object, v.Kind)
	keys := make([]string, 0, len(v.Members))
	for _, m := range v.Members {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys, "member order must follow the document")

	m, ok := v.Get("m")
	require.True(t, ok)
	k, _ := m.Get("k")
	assert.Equal(t, Number, k.Kind)
	assert.Equal(t, "-2.5e3", k.Text, "numbers keep their literal text")
}

func TestParse_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	for _, text := range []string{`{"a":1,"b":2,"a":3}`, `{"a":1,"b":2,"a":3`} {
		v, err := Parse(text)
		require.NoError(t, err, text)
		require.Len(t, v.Members, 2, text)
		assert.Equal(t, "a", v.Members[0].Key)
		assert.Equal(t, "3", v.Members[0].Value.Text)
	}
}

func TestParse_TruncatedObject(t *testing.T) {
	v, err := Parse(`{"a":1,"b":{"c":2`)
	require.NoError(t, err)

	want := map[string]any{
		"a": json.Number("1"),
		"b": map[string]any{"c": json.Number("2")},
	}
	assert.Equal(t, want, v.Interface())
}

func TestParse_Tolerant(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"partial true", `tru`, `true`},
		{"partial false", `fa`, `false`},
		{"partial null", `n`, `null`},
		{"truncated array", `[1, 2, [3`, `[1,2,[3]]`},
		{"trailing comma", `[1,`, `[1]`},
		{"missing commas", `[1 2 3]`, `[1,2,3]`},
		{"unterminated string", `["abc`, `["abc"]`},
		{"dangling backslash", `"ab\`, `"ab"`},
		{"dangling unicode escape", `"ab\u00`, `"ab"`},
		{"complete unicode escape kept", `"é`, `"é"`},
		{"lone minus", `-`, `-0`},
		{"non numeric run", `[1-2]`, `["1-2"]`},
		{"exponent survives truncation", `[1e5, 2`, `[1e5,2]`},
		{"leading whitespace", "  \n\t{\"a\":tr", `{"a":true}`},
		{"key without colon", `{"a":1,"b"`, `{"a":1,"b":null}`},
		{"key without value", `{"a": `, `{"a":null}`},
		{"trailing garbage ignored", `{"a":1} xyz`, `{"a":1}`},
		{"numeric key coerced", `{1:2`, `{"1":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.text)
			require.NoError(t, err)
			got, err := v.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestParse_UndefinedMember(t *testing.T) {
	v, err := Parse(`{"a"`)
	require.NoError(t, err)
	a, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, Undefined, a.Kind)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantChar rune
	}{
		{"empty", ``, 0},
		{"whitespace only", "   ", 0},
		{"unknown leading character", `x`, 'x'},
		{"bad element", `[1, }`, '}'},
		{"html", `<html>`, '<'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDocument))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantChar, pe.Char)
			assert.NotNil(t, errors.Unwrap(err), "the strict decoder error must be carried")
			assert.Contains(t, err.Error(), "invalid document")
		})
	}
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	_, err := Decode(strings.NewReader(`{} {}`))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(`{"a":1`))
	assert.Error(t, err)

	v, err := Decode(strings.NewReader(" [] \n"))
	require.NoError(t, err)
	assert.Equal(t, Array, v.Kind)
}

func TestValue_Count(t *testing.T) {
	v, err := Parse(`{"a":[1,2,{"b":null}],"c":"d"}`)
	require.NoError(t, err)
	// root, a, 1, 2, {b}, null, c
	assert.Equal(t, 7, v.Count())
}

func TestParse_DepthLimit(t *testing.T) {
	nested := func(depth int) string {
		return strings.Repeat("[", depth) + strings.Repeat("]", depth)
	}

	v, err := Parse(nested(MaxDepth))
	require.NoError(t, err)
	assert.Equal(t, Array, v.Kind)

	tests := []struct {
		name string
		text string
	}{
		{"closed", nested(MaxDepth + 1)},
		{"truncated", strings.Repeat("[", MaxDepth+5)},
		{"objects", strings.Repeat(`{"a":`, MaxDepth+1)},
		{"huge", nested(2_000_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTooDeep)
			assert.ErrorIs(t, err, ErrInvalidDocument)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}

	_, err = Decode(strings.NewReader(nested(MaxDepth + 1)))
	assert.ErrorIs(t, err, ErrTooDeep)
}
