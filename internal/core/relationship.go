package core

import (
	"fmt"
	"regexp"
	"strings"
)

// RelationshipKind distinguishes how a node's neighbors are stored.
type RelationshipKind int

const (
	// ForeignKey edges come from a row-reference column pointing at a parent row.
	ForeignKey RelationshipKind = iota + 1
	// EdgeTable edges are rows of an explicit (source, target[, weight]) table.
	EdgeTable
)

func (k RelationshipKind) String() string {
	switch k {
	case ForeignKey:
		return "fk"
	case EdgeTable:
		return "edge"
	default:
		return "unknown"
	}
}

// DefaultIDColumn is the primary key column assumed for foreign key relationships.
const DefaultIDColumn = "id"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Relationship describes where the edges of a graph live.
//
// For ForeignKey, row R is a child of row P when R.Column = P.IDColumn; the
// forward neighbors of P are its children and the reverse neighbor of R is its parent.
// For EdgeTable, each row is a directed edge SourceColumn -> TargetColumn.
type Relationship struct {
	Kind         RelationshipKind `json:"kind"`
	Table        string           `json:"table"`
	Column       string           `json:"column,omitempty"`
	IDColumn     string           `json:"id_column,omitempty"`
	SourceColumn string           `json:"source_column,omitempty"`
	TargetColumn string           `json:"target_column,omitempty"`
	WeightColumn string           `json:"weight_column,omitempty"`
}

// ForeignKeyColumn builds a child->parent reference relationship.
func ForeignKeyColumn(table, column string) Relationship {
	return Relationship{Kind: ForeignKey, Table: table, Column: column, IDColumn: DefaultIDColumn}
}

// EdgeTableOf builds an explicit edge table relationship. weight may be empty.
func EdgeTableOf(table, source, target, weight string) Relationship {
	return Relationship{
		Kind:         EdgeTable,
		Table:        table,
		SourceColumn: source,
		TargetColumn: target,
		WeightColumn: weight,
	}
}

// Weighted reports whether edges carry an explicit weight column.
func (r Relationship) Weighted() bool {
	return r.Kind == EdgeTable && r.WeightColumn != ""
}

// Key returns the primary key column, falling back to DefaultIDColumn.
func (r Relationship) Key() string {
	if r.IDColumn == "" {
		return DefaultIDColumn
	}
	return r.IDColumn
}

// Descriptor is the canonical string form used for cache keys and metric labels.
func (r Relationship) Descriptor() string {
	switch r.Kind {
	case ForeignKey:
		return fmt.Sprintf("fk:%s.%s->%s", r.Table, r.Column, r.Key())
	case EdgeTable:
		if r.WeightColumn != "" {
			return fmt.Sprintf("edge:%s(%s->%s,%s)", r.Table, r.SourceColumn, r.TargetColumn, r.WeightColumn)
		}
		return fmt.Sprintf("edge:%s(%s->%s)", r.Table, r.SourceColumn, r.TargetColumn)
	default:
		return "invalid"
	}
}

func (r Relationship) String() string {
	return r.Descriptor()
}

// Validate checks that the relationship is well formed. It does not consult
// the schema; data sources report missing tables or columns themselves.
func (r Relationship) Validate() error {
	var names []string
	switch r.Kind {
	case ForeignKey:
		names = []string{r.Table, r.Column, r.Key()}
	case EdgeTable:
		names = []string{r.Table, r.SourceColumn, r.TargetColumn}
		if r.WeightColumn != "" {
			names = append(names, r.WeightColumn)
		}
		if strings.EqualFold(r.SourceColumn, r.TargetColumn) {
			return fmt.Errorf("source and target columns must differ")
		}
	default:
		return fmt.Errorf("unknown relationship kind %d", int(r.Kind))
	}
	for _, n := range names {
		if !identifierPattern.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}
