package tableio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

// JSON reads an array of records or an object of column arrays and writes an
// array of records. Column order follows first appearance of each key.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Extensions() []string { return []string{".json"} }

func (JSON) Decode(ctx context.Context, r io.Reader, _ Options) (*table.Table, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return table.New()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}

	cols := newColumnSet()
	switch tok {
	case json.Delim('['):
		err = decodeRecords(ctx, dec, cols)
	case json.Delim('{'):
		err = decodeColumns(dec, cols)
	default:
		err = fmt.Errorf("expected array or object, got %v", tok)
	}
	if err != nil {
		return nil, err
	}
	return cols.table()
}

func decodeRecords(ctx context.Context, dec *json.Decoder, cols *columnSet) error {
	for row := 0; dec.More(); row++ {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if tok != json.Delim('{') {
			return fmt.Errorf("record %d is not an object", row)
		}
		for dec.More() {
			key, err := dec.Token()
			if err != nil {
				return err
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return err
			}
			cols.set(key.(string), row, normalizeJSON(v))
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
		cols.rows = row + 1
	}
	return nil
}

func decodeColumns(dec *json.Decoder, cols *columnSet) error {
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return err
		}
		var values []any
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("column %v: %w", key, err)
		}
		for i, v := range values {
			cols.set(key.(string), i, normalizeJSON(v))
		}
		cols.rows = max(cols.rows, len(values))
	}
	return nil
}

// normalizeJSON turns numbers into int64 or float64 and nested values into
// compact JSON text.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return v
}

func (JSON) Encode(ctx context.Context, w io.Writer, t *table.Table, _ Options) error {
	bw := bufio.NewWriter(w)
	names := t.ColumnNames()
	keys := make([][]byte, len(names))
	for i, n := range names {
		k, err := json.Marshal(n)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	if _, err := bw.WriteString("["); err != nil {
		return err
	}
	cols := t.Columns()
	for row := 0; row < t.NumRows(); row++ {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if row > 0 {
			_, _ = bw.WriteString(",")
		}
		_, _ = bw.WriteString("\n  {")
		for i, col := range cols {
			if i > 0 {
				_, _ = bw.WriteString(", ")
			}
			_, _ = bw.Write(keys[i])
			_, _ = bw.WriteString(": ")
			b, err := json.Marshal(jsonValue(col.Value(row)))
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", col.Name, row, err)
			}
			_, _ = bw.Write(b)
		}
		_, _ = bw.WriteString("}")
	}
	if t.NumRows() > 0 {
		_, _ = bw.WriteString("\n")
	}
	if _, err := bw.WriteString("]\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func jsonValue(v any) any {
	if table.IsNull(v) {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}

// columnSet accumulates sparse values by column in first-seen order.
type columnSet struct {
	order  []string
	values map[string][]any
	rows   int
}

func newColumnSet() *columnSet {
	return &columnSet{values: map[string][]any{}}
}

func (c *columnSet) set(name string, row int, v any) {
	vals, ok := c.values[name]
	if !ok {
		c.order = append(c.order, name)
	}
	for len(vals) <= row {
		vals = append(vals, nil)
	}
	vals[row] = v
	c.values[name] = vals
}

func (c *columnSet) table() (*table.Table, error) {
	cols := make([]*table.Column, len(c.order))
	for i, name := range c.order {
		vals := c.values[name]
		for len(vals) < c.rows {
			vals = append(vals, nil)
		}
		cols[i] = table.NewColumn(name, table.KindAny, vals)
	}
	return table.New(cols...)
}
