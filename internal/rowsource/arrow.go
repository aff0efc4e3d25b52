package rowsource

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
)

// LoadRecord ingests an Arrow record into the relationship rel.
//
// For EdgeTable the record must carry integer SourceColumn and TargetColumn
// columns and, when rel is weighted, a floating point WeightColumn. For
// ForeignKey it must carry the key column and the reference column; null
// references mark roots.
func (m *Memory) LoadRecord(rel core.Relationship, rec arrow.Record) error {
	const op = "memory.load_record"
	if err := rel.Validate(); err != nil {
		return rgerrors.WrapConfigurationError(err, op, "invalid relationship")
	}

	switch rel.Kind {
	case core.EdgeTable:
		src, err := idColumn(rec, rel.SourceColumn)
		if err != nil {
			return rgerrors.WrapRelationshipError(err, op, "source column")
		}
		dst, err := idColumn(rec, rel.TargetColumn)
		if err != nil {
			return rgerrors.WrapRelationshipError(err, op, "target column")
		}
		var weight func(i int) float64
		if rel.Weighted() {
			weight, err = weightColumn(rec, rel.WeightColumn)
			if err != nil {
				return rgerrors.WrapRelationshipError(err, op, "weight column")
			}
		}

		edges := make([]Edge, 0, rec.NumRows())
		for i := 0; i < int(rec.NumRows()); i++ {
			if src.IsNull(i) || dst.IsNull(i) {
				continue
			}
			e := Edge{From: src.value(i), To: dst.value(i)}
			if weight != nil {
				e.Weight = weight(i)
			}
			edges = append(edges, e)
		}
		m.LoadEdges(rel, edges)

	case core.ForeignKey:
		ids, err := idColumn(rec, rel.Key())
		if err != nil {
			return rgerrors.WrapRelationshipError(err, op, "key column")
		}
		refs, err := idColumn(rec, rel.Column)
		if err != nil {
			return rgerrors.WrapRelationshipError(err, op, "reference column")
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			if ids.IsNull(i) {
				continue
			}
			var parent *core.NodeID
			if !refs.IsNull(i) {
				p := refs.value(i)
				parent = &p
			}
			m.AddRow(rel, ids.value(i), parent)
		}
	}
	return nil
}

type intColumn struct {
	arrow.Array
	value func(i int) core.NodeID
}

func columnByName(rec arrow.Record, name string) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("column %q not in record", name)
	}
	return rec.Column(idx[0]), nil
}

func idColumn(rec arrow.Record, name string) (*intColumn, error) {
	col, err := columnByName(rec, name)
	if err != nil {
		return nil, err
	}
	switch arr := col.(type) {
	case *array.Int64:
		return &intColumn{Array: arr, value: func(i int) core.NodeID { return core.NodeID(arr.Value(i)) }}, nil
	case *array.Int32:
		return &intColumn{Array: arr, value: func(i int) core.NodeID { return core.NodeID(arr.Value(i)) }}, nil
	case *array.Uint32:
		return &intColumn{Array: arr, value: func(i int) core.NodeID { return core.NodeID(arr.Value(i)) }}, nil
	default:
		return nil, fmt.Errorf("column %q has type %s, want an integer id", name, col.DataType())
	}
}

func weightColumn(rec arrow.Record, name string) (func(i int) float64, error) {
	col, err := columnByName(rec, name)
	if err != nil {
		return nil, err
	}
	switch arr := col.(type) {
	case *array.Float64:
		return func(i int) float64 {
			if arr.IsNull(i) {
				return core.DefaultWeight
			}
			return arr.Value(i)
		}, nil
	case *array.Float32:
		return func(i int) float64 {
			if arr.IsNull(i) {
				return core.DefaultWeight
			}
			return float64(arr.Value(i))
		}, nil
	default:
		return nil, fmt.Errorf("column %q has type %s, want a float weight", name, col.DataType())
	}
}
