package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

type ResultPayload struct {
	TaskID     string      `json:"task_id"`
	ResultType string      `json:"result_type,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	Data       *ResultData `json:"data,omitempty"`
}

// ResultData carries one entry per submitted statement. Results and
// IsQuery are parallel arrays.
type ResultData struct {
	Results []json.RawMessage `json:"results"`
	IsQuery []bool            `json:"is_query"`
	JobIDs  []string          `json:"job_ids,omitempty"`
}

// Empty reports whether the payload holds nothing retrievable.
func (p ResultPayload) Empty() bool {
	return p.Data == nil || (len(p.Data.Results) == 0 && len(p.Data.IsQuery) == 0)
}

type ResultEntry struct {
	Index   int
	IsQuery bool
	Raw     json.RawMessage
}

// Entries pairs every result with its query flag, in server order.
func (p ResultPayload) Entries() ([]ResultEntry, error) {
	if p.Data == nil {
		return nil, nil
	}
	if len(p.Data.Results) != len(p.Data.IsQuery) {
		return nil, fmt.Errorf("%w: %d results but %d is_query flags",
			ErrMalformedResult, len(p.Data.Results), len(p.Data.IsQuery))
	}
	entries := make([]ResultEntry, len(p.Data.Results))
	for i, raw := range p.Data.Results {
		entries[i] = ResultEntry{Index: i, IsQuery: p.Data.IsQuery[i], Raw: raw}
	}
	return entries, nil
}

// Table is a materialized query result. Column order is the order in
// which keys first appear in the rows.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t Table) Len() int { return len(t.Rows) }

// Records returns the rows keyed by column name.
func (t Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, col := range t.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

func (t Table) Column(name string) ([]any, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, true
}

// ResultTable is either a SingleTable or a TableSequence.
type ResultTable interface {
	Tables() []Table
	resultTable()
}

type SingleTable struct {
	Table
}

func (s SingleTable) Tables() []Table { return []Table{s.Table} }
func (SingleTable) resultTable()      {}

type TableSequence []Table

func (s TableSequence) Tables() []Table { return []Table(s) }
func (TableSequence) resultTable()      {}

// Materialize keeps the query-flagged entries with at least one row and
// decodes them as tables. One qualifying entry yields a SingleTable,
// several a TableSequence in server order.
func Materialize(p ResultPayload) (ResultTable, error) {
	entries, err := p.Entries()
	if err != nil {
		return nil, err
	}

	var tables []Table
	for _, e := range entries {
		if !e.IsQuery {
			continue
		}
		t, err := DecodeTable(e.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedResult, e.Index, err)
		}
		if t.Len() == 0 {
			continue
		}
		tables = append(tables, t)
	}

	switch len(tables) {
	case 0:
		return nil, ErrNoQueryResults
	case 1:
		return SingleTable{Table: tables[0]}, nil
	default:
		return TableSequence(tables), nil
	}
}

// DecodeTable parses a JSON array of row objects (or positional arrays)
// into a Table, keeping key order.
func DecodeTable(raw json.RawMessage) (Table, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Table{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return Table{}, err
	}

	var (
		t     Table
		index = map[string]int{}
		rows  []map[string]any
		pos   [][]any
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Table{}, err
		}
		switch tok {
		case json.Delim('{'):
			row := map[string]any{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Table{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Table{}, fmt.Errorf("unexpected key %v", keyTok)
				}
				var v any
				if err := dec.Decode(&v); err != nil {
					return Table{}, err
				}
				if _, seen := index[key]; !seen {
					index[key] = len(t.Columns)
					t.Columns = append(t.Columns, key)
				}
				row[key] = v
			}
			if err := expectDelim(dec, '}'); err != nil {
				return Table{}, err
			}
			rows = append(rows, row)
		case json.Delim('['):
			var vals []any
			for dec.More() {
				var v any
				if err := dec.Decode(&v); err != nil {
					return Table{}, err
				}
				vals = append(vals, v)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return Table{}, err
			}
			for len(t.Columns) < len(vals) {
				name := "_" + strconv.Itoa(len(t.Columns))
				index[name] = len(t.Columns)
				t.Columns = append(t.Columns, name)
			}
			pos = append(pos, vals)
		default:
			return Table{}, fmt.Errorf("row must be an object or array, got %v", tok)
		}
	}
	if err := expectDelim(dec, ']'); err != nil {
		return Table{}, err
	}
	if len(rows) > 0 && len(pos) > 0 {
		return Table{}, fmt.Errorf("mixed object and array rows")
	}

	for _, row := range rows {
		vals := make([]any, len(t.Columns))
		for k, v := range row {
			vals[index[k]] = v
		}
		t.Rows = append(t.Rows, vals)
	}
	for _, vals := range pos {
		padded := make([]any, len(t.Columns))
		copy(padded, vals)
		t.Rows = append(t.Rows, padded)
	}
	return t, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return fmt.Errorf("unexpected end of input, want %q", want)
	}
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("want %q, got %v", want, tok)
	}
	return nil
}
