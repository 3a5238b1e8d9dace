package tableio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

// Arrow reads Arrow IPC files (Feather v2) and streams, and writes IPC files.
type Arrow struct{}

func (Arrow) Name() string { return "arrow" }

func (Arrow) Extensions() []string { return []string{".arrow", ".feather", ".ipc", ".arrows"} }

func (Arrow) Decode(ctx context.Context, r io.Reader, _ Options) (*table.Table, error) {
	src, err := readerAt(r)
	if err != nil {
		return nil, err
	}
	mem := memory.DefaultAllocator

	if fr, err := ipc.NewFileReader(src, ipc.WithAllocator(mem)); err == nil {
		defer func() { _ = fr.Close() }()
		acc := newArrowAccumulator(fr.Schema())
		for i := 0; i < fr.NumRecords(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := fr.Record(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read record batch %d: %w", i, err)
			}
			if err := acc.add(rec); err != nil {
				return nil, err
			}
		}
		return acc.table()
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	sr, err := ipc.NewReader(src, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("not an arrow ipc file or stream: %w", err)
	}
	defer sr.Release()

	acc := newArrowAccumulator(sr.Schema())
	for sr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := acc.add(sr.Record()); err != nil {
			return nil, err
		}
	}
	if err := sr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return acc.table()
}

func (Arrow) Encode(ctx context.Context, w io.Writer, t *table.Table, _ Options) error {
	rec, err := toArrowRecord(ctx, t, memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()

	fw, err := ipc.NewFileWriter(writerOnly{w}, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return fw.Close()
}

// arrowAccumulator collects values of consecutive record batches.
type arrowAccumulator struct {
	schema *arrow.Schema
	values [][]any
	kinds  []table.Kind
}

func newArrowAccumulator(schema *arrow.Schema) *arrowAccumulator {
	acc := &arrowAccumulator{
		schema: schema,
		values: make([][]any, schema.NumFields()),
		kinds:  make([]table.Kind, schema.NumFields()),
	}
	for i, f := range schema.Fields() {
		acc.kinds[i] = kindForArrow(f.Type)
	}
	return acc
}

func (a *arrowAccumulator) add(rec arrow.Record) error {
	if int(rec.NumCols()) != len(a.values) {
		return fmt.Errorf("record batch has %d columns, schema has %d", rec.NumCols(), len(a.values))
	}
	for i := range a.values {
		a.values[i] = appendArrowValues(a.values[i], rec.Column(i))
	}
	return nil
}

func (a *arrowAccumulator) addArray(i int, arr arrow.Array) {
	a.values[i] = appendArrowValues(a.values[i], arr)
}

func (a *arrowAccumulator) table() (*table.Table, error) {
	cols := make([]*table.Column, len(a.values))
	for i, f := range a.schema.Fields() {
		vals := a.values[i]
		if vals == nil {
			vals = []any{}
		}
		cols[i] = table.NewColumn(f.Name, a.kinds[i], vals)
	}
	return table.New(cols...)
}

func kindForArrow(dt arrow.DataType) table.Kind {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return table.KindInt
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return table.KindFloat
	case arrow.BOOL:
		return table.KindBool
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return table.KindTime
	default:
		return table.KindString
	}
}

func appendArrowValues(dst []any, arr arrow.Array) []any {
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			dst = append(dst, nil)
			continue
		}
		dst = append(dst, arrowValue(arr, i))
	}
	return dst
}

func arrowValue(arr arrow.Array, i int) any {
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float16:
		return float64(a.Value(i).Float32())
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	}
	return arr.ValueStr(i)
}

func arrowTypeFor(k table.Kind) arrow.DataType {
	switch k {
	case table.KindInt:
		return arrow.PrimitiveTypes.Int64
	case table.KindFloat:
		return arrow.PrimitiveTypes.Float64
	case table.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case table.KindTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// toArrowRecord converts t into a single record batch. The caller releases it.
func toArrowRecord(ctx context.Context, t *table.Table, mem memory.Allocator) (arrow.Record, error) {
	cols := t.Columns()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowTypeFor(c.Kind), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, c := range cols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := appendColumn(b.Field(i), c); err != nil {
			return nil, err
		}
	}
	return b.NewRecord(), nil
}

func appendColumn(fb array.Builder, c *table.Column) error {
	for r := 0; r < c.Len(); r++ {
		v := c.Value(r)
		if table.IsNull(v) {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.Int64Builder:
			f, ok := table.ToFloat(v)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not an integer", c.Name, r, v)
			}
			if n, isInt := v.(int64); isInt {
				b.Append(n)
			} else {
				b.Append(int64(f))
			}
		case *array.Float64Builder:
			f, ok := table.ToFloat(v)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not a number", c.Name, r, v)
			}
			b.Append(f)
		case *array.BooleanBuilder:
			bv, ok := v.(bool)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not a bool", c.Name, r, v)
			}
			b.Append(bv)
		case *array.TimestampBuilder:
			tv, ok := v.(time.Time)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not a time", c.Name, r, v)
			}
			b.Append(arrow.Timestamp(tv.UnixMicro()))
		case *array.StringBuilder:
			b.Append(table.Format(v))
		default:
			return fmt.Errorf("column %q: unsupported builder %T", c.Name, fb)
		}
	}
	return nil
}
