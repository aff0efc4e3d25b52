package rowsource

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/rowgraph/internal/core"
)

// EdgeRecord is the Parquet row layout for edge files.
type EdgeRecord struct {
	Source int64   `parquet:"source"`
	Target int64   `parquet:"target"`
	Weight float64 `parquet:"weight"`
}

// ParquetEdgeRelationship is the relationship a Parquet edge file loads into.
func ParquetEdgeRelationship(table string) core.Relationship {
	return core.EdgeTableOf(table, "source", "target", "weight")
}

// EdgeSchema is the Arrow schema produced by ReadParquetEdges.
var EdgeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "source", Type: arrow.PrimitiveTypes.Int64},
	{Name: "target", Type: arrow.PrimitiveTypes.Int64},
	{Name: "weight", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteParquetEdges writes edges to w as a zstd compressed Parquet file.
func WriteParquetEdges(w io.Writer, edges []EdgeRecord) error {
	pw := parquet.NewGenericWriter[EdgeRecord](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(edges); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write parquet edges: %w", err)
	}
	return pw.Close()
}

// ReadParquetEdges loads a Parquet edge file into an Arrow record with EdgeSchema.
// The caller owns the returned record and must Release it.
func ReadParquetEdges(path string, mem memory.Allocator) (arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	pr := parquet.NewGenericReader[EdgeRecord](pf)
	defer pr.Close()

	rows := make([]EdgeRecord, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	rows = rows[:n]

	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewRecordBuilder(mem, EdgeSchema)
	defer b.Release()

	src := b.Field(0).(*array.Int64Builder)
	dst := b.Field(1).(*array.Int64Builder)
	wts := b.Field(2).(*array.Float64Builder)
	b.Reserve(len(rows))
	for _, r := range rows {
		src.Append(r.Source)
		dst.Append(r.Target)
		wts.Append(r.Weight)
	}
	return b.NewRecord(), nil
}
