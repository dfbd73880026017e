package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestDecodeTableKeepsFirstSeenOrder(t *testing.T) {
	tb, err := DecodeTable(raw(`[{"z":1,"a":"x"},{"a":"y","m":true}]`))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, tb.Columns)
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, []any{json.Number("1"), "x", nil}, tb.Rows[0])
	assert.Equal(t, []any{nil, "y", true}, tb.Rows[1])

	col, ok := tb.Column("a")
	require.True(t, ok)
	assert.Equal(t, []any{"x", "y"}, col)

	_, ok = tb.Column("missing")
	assert.False(t, ok)

	recs := tb.Records()
	assert.Equal(t, "y", recs[1]["a"])
}

func TestDecodeTablePositionalRows(t *testing.T) {
	tb, err := DecodeTable(raw(`[[1,"a"],[2]]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"_0", "_1"}, tb.Columns)
	assert.Equal(t, []any{json.Number("2"), nil}, tb.Rows[1])
}

func TestDecodeTableErrors(t *testing.T) {
	tests := map[string]string{
		"not an array": `{"a":1}`,
		"scalar rows":  `[1,2]`,
		"mixed rows":   `[{"a":1},[1]]`,
		"truncated":    `[{"a":1}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTable(raw(in))
			assert.Error(t, err)
		})
	}
}

func TestDecodeTableEmpty(t *testing.T) {
	for _, in := range []string{``, `null`, `[]`} {
		tb, err := DecodeTable(raw(in))
		require.NoError(t, err)
		assert.Zero(t, tb.Len())
	}
}

func TestMaterialize(t *testing.T) {
	mk := func(results []string, flags []bool) ResultPayload {
		d := &ResultData{IsQuery: flags}
		for _, r := range results {
			d.Results = append(d.Results, raw(r))
		}
		return ResultPayload{TaskID: "t", Data: d}
	}

	t.Run("no query entries", func(t *testing.T) {
		_, err := Materialize(mk([]string{`[{"result":"OK"}]`}, []bool{false}))
		require.ErrorIs(t, err, ErrNoQueryResults)
	})

	t.Run("single", func(t *testing.T) {
		rt, err := Materialize(mk([]string{`[{"result":"OK"}]`, `[{"id":1},{"id":2}]`}, []bool{false, true}))
		require.NoError(t, err)
		st, ok := rt.(SingleTable)
		require.True(t, ok)
		assert.Equal(t, 2, st.Len())
		assert.Len(t, st.Tables(), 1)
	})

	t.Run("sequence", func(t *testing.T) {
		rt, err := Materialize(mk([]string{`[{"a":1}]`, `[{"b":1}]`}, []bool{true, true}))
		require.NoError(t, err)
		seq, ok := rt.(TableSequence)
		require.True(t, ok)
		require.Len(t, seq.Tables(), 2)
		assert.Equal(t, []string{"a"}, seq[0].Columns)
		assert.Equal(t, []string{"b"}, seq[1].Columns)
	})

	t.Run("empty query entry does not qualify", func(t *testing.T) {
		_, err := Materialize(mk([]string{`[]`}, []bool{true}))
		require.ErrorIs(t, err, ErrNoQueryResults)
	})

	t.Run("empty entry next to a populated one", func(t *testing.T) {
		rt, err := Materialize(mk([]string{`[]`, `[{"id":1},{"id":2}]`}, []bool{true, true}))
		require.NoError(t, err)
		single, ok := rt.(SingleTable)
		require.True(t, ok)
		assert.Equal(t, 2, single.Len())
	})

	t.Run("mismatched arrays", func(t *testing.T) {
		_, err := Materialize(mk([]string{`[]`, `[]`}, []bool{true}))
		require.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("undecodable entry", func(t *testing.T) {
		_, err := Materialize(mk([]string{`"text"`}, []bool{true}))
		require.ErrorIs(t, err, ErrMalformedResult)
	})
}

func TestResultPayloadEmpty(t *testing.T) {
	assert.True(t, ResultPayload{}.Empty())
	assert.True(t, ResultPayload{Data: &ResultData{}}.Empty())
	assert.False(t, ResultPayload{Data: &ResultData{Results: []json.RawMessage{raw(`[]`)}, IsQuery: []bool{false}}}.Empty())
}
