// Package arrowutil holds small, shared conversions between arrow.Record
// rows and plain Go values, used by every transform and sink that needs to
// inspect or rebuild row data rather than push bytes straight through.
// There is no single teacher file this is grounded on; it exists because
// several SPEC_FULL transforms (schema-evolution, json-flatten,
// clean-data, sql-transform) and the console sink all need the same
// record<->map bridging and would otherwise duplicate it.
package arrowutil

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// RecordToMaps converts every row of rec into a map[string]any keyed by
// field name, preserving row order.
func RecordToMaps(rec arrow.Record) []map[string]any {
	n := int(rec.NumRows())
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = make(map[string]any, int(rec.NumCols()))
	}
	schema := rec.Schema()
	for c := 0; c < int(rec.NumCols()); c++ {
		col := rec.Column(c)
		name := schema.Field(c).Name
		for i := 0; i < n; i++ {
			rows[i][name] = ColumnValue(col, i)
		}
	}
	return rows
}

// ColumnValue extracts the Go value of column arr at row i, or nil if the
// value is null. Supported arrow types cover the logical type set this
// core works with: int32/int64/float32/float64/bool/utf8/binary/date32/
// timestamp and lists of those.
func ColumnValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch col := arr.(type) {
	case *array.Int32:
		return int64(col.Value(i))
	case *array.Int64:
		return col.Value(i)
	case *array.Float32:
		return float64(col.Value(i))
	case *array.Float64:
		return col.Value(i)
	case *array.Boolean:
		return col.Value(i)
	case *array.String:
		return col.Value(i)
	case *array.Binary:
		return col.Value(i)
	case *array.Date32:
		return col.Value(i).ToTime().Format("2006-01-02")
	case *array.Timestamp:
		unit := col.DataType().(*arrow.TimestampType).Unit
		return col.Value(i).ToTime(unit).Format(time.RFC3339Nano)
	case *array.List:
		start, end := col.ValueOffsets(i)
		values := col.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, ColumnValue(values, int(j)))
		}
		return out
	default:
		return fmt.Sprintf("%v", arr)
	}
}

// MapsToRecord builds an arrow.Record from rows against schema, filling
// absent fields, and values that cannot be converted to the column's type,
// with typed nulls. Integer and float values convert between numeric
// columns, and a utf8 column takes any value in its %v form. This is the
// counterpart used by the topic source (one record per message) and by
// transforms that synthesize new rows (json-flatten, partition).
func MapsToRecord(mem memory.Allocator, schema *arrow.Schema, rows []map[string]any) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	for _, row := range rows {
		for i, field := range schema.Fields() {
			if err := appendValue(bldr.Field(i), field, row[field.Name]); err != nil {
				return nil, errors.Wrapf(err, "arrowutil: field %q", field.Name)
			}
		}
	}
	return bldr.NewRecord(), nil
}

func appendValue(b array.Builder, field arrow.Field, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch fb := b.(type) {
	case *array.Int32Builder:
		n, ok := asInt64(v)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(int32(n))
	case *array.Int64Builder:
		n, ok := asInt64(v)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(n)
	case *array.Float32Builder:
		f, ok := asFloat64(v)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(float32(f))
	case *array.Float64Builder:
		f, ok := asFloat64(v)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(f)
	case *array.BooleanBuilder:
		boolean, ok := v.(bool)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(boolean)
	case *array.StringBuilder:
		fb.Append(fmt.Sprintf("%v", v))
	case *array.BinaryBuilder:
		switch s := v.(type) {
		case []byte:
			fb.Append(s)
		case string:
			fb.Append([]byte(s))
		default:
			fb.AppendNull()
		}
	case *array.Date32Builder:
		d, ok := asDate32(v)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(d)
	case *array.TimestampBuilder:
		unit := field.Type.(*arrow.TimestampType).Unit
		ts, ok := asTimestamp(v, unit)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(ts)
	case *array.ListBuilder:
		elems, ok := v.([]any)
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.Append(true)
		valueBuilder := fb.ValueBuilder()
		elemField := arrow.Field{Name: field.Name, Type: field.Type.(*arrow.ListType).Elem()}
		for _, elem := range elems {
			if err := appendValue(valueBuilder, elemField, elem); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("arrowutil: unsupported builder type for field %q (%T)", field.Name, field.Type)
	}
	return nil
}

// asDate32 accepts either a time.Time or a "2006-01-02"-formatted string
// (the shape ColumnValue produces for a Date32 column) and converts it to
// the days-since-epoch representation arrow.Date32Builder expects.
func asDate32(v any) (arrow.Date32, bool) {
	switch t := v.(type) {
	case time.Time:
		return arrow.Date32FromTime(t), true
	case string:
		parsed, err := time.Parse("2006-01-02", t)
		if err != nil {
			return 0, false
		}
		return arrow.Date32FromTime(parsed), true
	default:
		return 0, false
	}
}

// asTimestamp accepts either a time.Time or an RFC3339Nano-formatted string
// (the shape ColumnValue produces for a Timestamp column) and converts it to
// the given unit's arrow.Timestamp representation.
func asTimestamp(v any, unit arrow.TimeUnit) (arrow.Timestamp, bool) {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return 0, false
		}
		t = parsed
	default:
		return 0, false
	}
	ts, err := arrow.TimestampFromTime(t, unit)
	if err != nil {
		return 0, false
	}
	return ts, true
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
