package tableio

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

// parquetRowGroupSize bounds rows per written row group.
const parquetRowGroupSize = 64 * 1024

// Parquet reads and writes Apache Parquet through the Arrow bridge.
type Parquet struct{}

func (Parquet) Name() string { return "parquet" }

func (Parquet) Extensions() []string { return []string{".parquet", ".pq"} }

func (Parquet) Decode(ctx context.Context, r io.Reader, _ Options) (*table.Table, error) {
	src, err := readerAt(r)
	if err != nil {
		return nil, err
	}
	mem := memory.DefaultAllocator

	tbl, err := pqarrow.ReadTable(ctx, src, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	defer tbl.Release()

	acc := newArrowAccumulator(tbl.Schema())
	for i := 0; i < int(tbl.NumCols()); i++ {
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			acc.addArray(i, chunk)
		}
	}
	return acc.table()
}

func (Parquet) Encode(ctx context.Context, w io.Writer, t *table.Table, _ Options) error {
	rec, err := toArrowRecord(ctx, t, memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()

	tbl := array.NewTableFromRecords(rec.Schema(), []arrow.Record{rec})
	defer tbl.Release()

	err = pqarrow.WriteTable(tbl, writerOnly{w}, parquetRowGroupSize,
		parquet.NewWriterProperties(parquet.WithAllocator(memory.DefaultAllocator)),
		pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}
	return nil
}
