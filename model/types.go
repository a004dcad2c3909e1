package model

import (
	"bytes"
	"errors"
	"fmt"
)

// VinLength is the fixed width of a Vin in bytes.
const VinLength = 17

// Vin identifies one entity. Vins order lexicographically by raw bytes.
type Vin [VinLength]byte

// ParseVin builds a Vin from exactly VinLength bytes.
func ParseVin(s string) (Vin, error) {
	var v Vin
	if len(s) != VinLength {
		return v, fmt.Errorf("vin must be %d bytes, got %d", VinLength, len(s))
	}
	copy(v[:], s)
	return v, nil
}

// MustParseVin is ParseVin that panics on malformed input. Intended for tests.
func MustParseVin(s string) Vin {
	v, err := ParseVin(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare orders vins by raw bytes.
func (v Vin) Compare(o Vin) int { return bytes.Compare(v[:], o[:]) }

// String implements fmt.Stringer.
func (v Vin) String() string { return string(v[:]) }

// Column is one schema entry.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered column list of a table. A column's position is its
// stable column index.
type Schema struct {
	Columns []Column
}

// NewSchema builds a schema from name/type pairs in order.
func NewSchema(cols ...Column) Schema {
	return Schema{Columns: append([]Column{}, cols...)}
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Columns) }

// Index returns the column index for name, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks that column names are unique and non-empty and types are storable.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return errors.New("schema has no columns")
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return errors.New("empty column name")
		}
		if !c.Type.Valid() {
			return fmt.Errorf("column %q has invalid type %s", c.Name, c.Type)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Row is one measurement of one entity.
type Row struct {
	Vin       Vin
	Timestamp int64
	Columns   map[string]ColumnValue
}

// Clone returns a deep copy of r.
func (r Row) Clone() Row {
	out := Row{Vin: r.Vin, Timestamp: r.Timestamp, Columns: make(map[string]ColumnValue, len(r.Columns))}
	for k, v := range r.Columns {
		out.Columns[k] = v.Clone()
	}
	return out
}

// Equal reports whether both rows have the same vin, timestamp and column values.
func (r Row) Equal(o Row) bool {
	if r.Vin != o.Vin || r.Timestamp != o.Timestamp || len(r.Columns) != len(o.Columns) {
		return false
	}
	for k, v := range r.Columns {
		ov, ok := o.Columns[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Aggregator selects the aggregation applied by aggregate and downsample queries.
type Aggregator uint8

const (
	// AggregatorAvg averages the column. The result is always a Double.
	AggregatorAvg Aggregator = iota + 1
	// AggregatorMax keeps the largest value. The result has the column's type.
	AggregatorMax
)

// String implements fmt.Stringer.
func (a Aggregator) String() string {
	switch a {
	case AggregatorAvg:
		return "AVG"
	case AggregatorMax:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// CompareOp is the operator of a CompareExpression.
type CompareOp uint8

const (
	// CompareEqual keeps values equal to the literal.
	CompareEqual CompareOp = iota + 1
	// CompareGreater keeps values strictly greater than the literal.
	CompareGreater
)

// CompareExpression filters the aggregated column against a literal.
type CompareExpression struct {
	Op    CompareOp
	Value ColumnValue
}

// WriteRequest inserts rows into a table.
type WriteRequest struct {
	Table string
	Rows  []Row
}

// LatestQueryRequest asks for the newest row of each vin. Empty Columns means all.
type LatestQueryRequest struct {
	Table   string
	Vins    []Vin
	Columns []string
}

// TimeRangeQueryRequest asks for all rows of one vin with LowerBound <= ts < UpperBound.
type TimeRangeQueryRequest struct {
	Table      string
	Vin        Vin
	LowerBound int64
	UpperBound int64
	Columns    []string
}

// TimeRangeAggregationRequest aggregates one column of one vin over [LowerBound, UpperBound).
// Filter is optional.
type TimeRangeAggregationRequest struct {
	Table      string
	Vin        Vin
	LowerBound int64
	UpperBound int64
	Column     string
	Aggregator Aggregator
	Filter     *CompareExpression
}

// TimeRangeDownsampleRequest aggregates one column per fixed Interval window starting at
// LowerBound. Filter is optional.
type TimeRangeDownsampleRequest struct {
	Table      string
	Vin        Vin
	LowerBound int64
	UpperBound int64
	Interval   int64
	Column     string
	Aggregator Aggregator
	Filter     *CompareExpression
}
