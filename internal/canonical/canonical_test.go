package canonical

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsObjectKeys(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"zeta":  1,
		"alpha": 2,
		"mid":   3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(out))
}

func TestMarshalDeterministicAcrossRuns(t *testing.T) {
	payload := map[string]interface{}{
		"details": map[string]interface{}{
			"b": []interface{}{"x", "y"},
			"a": json.Number("1.50"),
		},
		"id": "ev-1",
	}
	first, err := Marshal(payload)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Marshal(payload)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalPreservesNumberText(t *testing.T) {
	// json.Number keeps its textual form so 1.50 never reformats to 1.5
	out, err := Marshal(map[string]interface{}{"n": json.Number("1.50")})
	require.NoError(t, err)
	assert.Equal(t, `{"n":1.50}`, string(out))
}

func TestMarshalTimeNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	ts := time.Date(2026, 3, 1, 14, 30, 0, 123000000, loc)
	out, err := Marshal(map[string]interface{}{"ts": ts})
	require.NoError(t, err)
	assert.Equal(t, `{"ts":"2026-03-01T12:30:00.123Z"}`, string(out))
}

func TestMarshalNullAndBool(t *testing.T) {
	out, err := Marshal(map[string]interface{}{"present": true, "missing": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"missing":null,"present":true}`, string(out))
}

func TestMarshalStructFallbackUsesJSONTags(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	out, err := Marshal(payload{Name: "x", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"count":2,"name":"x"}`, string(out))
}

func TestMarshalNestedArrays(t *testing.T) {
	out, err := Marshal([]interface{}{
		map[string]interface{}{"b": 1, "a": 2},
		[]string{"one", "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"a":2,"b":1},["one","two"]]`, string(out))
}
