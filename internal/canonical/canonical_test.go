package canonical

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"uint64", uint64(7), "7"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"integral float", 3.0, "3"},
		{"fractional float", 2.5, "2.5"},
		{"decimal", decimal.RequireFromString("12.50"), "12.5"},
		{"json integer", json.Number("10"), "10"},
		{"json fraction", json.Number("1.50"), "1.5"},
		{"empty array", []any{}, "[]"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"empty object", map[string]any{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{"b": 1, "a": 2},
		"a": []any{"x", 3},
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",3],"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	result, err := Marshal("<a href=\"x\">&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(result))
}

func TestMarshalStringEscaping(t *testing.T) {
	result, err := Marshal("tab\there\nnew\\line\x01")
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\nnew\\line\u0001"`, string(result))
}

func TestMarshalNFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	decomposed, err := Marshal(map[string]any{"cafe\u0301": "cafe\u0301"})
	require.NoError(t, err)
	assert.Equal(t, "{\"caf\u00e9\":\"caf\u00e9\"}", string(decomposed))
}

func TestMarshalRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Marshal(f)
		assert.Error(t, err)
	}
}

func TestMarshalRejectsUnsupported(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `object["ch"]`)
}

func TestMarshalDecodedJSONIsStable(t *testing.T) {
	in := `{"price": 10.10, "qty": 2, "tags": ["b", "a"], "nested": {"y": null, "x": true}}`

	dec := json.NewDecoder(strings.NewReader(in))
	dec.UseNumber()
	var withNumbers map[string]any
	require.NoError(t, dec.Decode(&withNumbers))

	var withFloats map[string]any
	require.NoError(t, json.Unmarshal([]byte(in), &withFloats))

	a, err := Marshal(withNumbers)
	require.NoError(t, err)
	b, err := Marshal(withFloats)
	require.NoError(t, err)

	expected := `{"nested":{"x":true,"y":null},"price":10.1,"qty":2,"tags":["b","a"]}`
	assert.Equal(t, expected, string(a))
	assert.Equal(t, expected, string(b))
}

func TestHashDomainSeparation(t *testing.T) {
	v := map[string]any{"id": "p1"}

	h1, err := Hash("cart/v1", v)
	require.NoError(t, err)
	h2, err := Hash("cart/v1", map[string]any{"id": "p1"})
	require.NoError(t, err)
	h3, err := Hash("other/v1", v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestHashError(t *testing.T) {
	_, err := Hash("d", math.NaN())
	assert.Error(t, err)
}
