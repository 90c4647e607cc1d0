package schema

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

func TestInferRecordBasicTypes(t *testing.T) {
	r := require.New(t)
	s := InferRecord(map[string]any{
		"a": int64(1),
		"b": 1.5,
		"c": "hello",
		"d": true,
		"e": nil,
	})
	byName := map[string]arrow.Field{}
	for _, f := range s.Fields() {
		byName[f.Name] = f
	}
	r.True(byName["a"].Type.ID() == arrow.INT64)
	r.True(byName["b"].Type.ID() == arrow.FLOAT64)
	r.True(byName["c"].Type.ID() == arrow.STRING)
	r.True(byName["d"].Type.ID() == arrow.BOOL)
	r.True(byName["e"].Type.ID() == arrow.STRING)
}

func TestInferRecordWholeFloatIsInt64(t *testing.T) {
	r := require.New(t)
	s := InferRecord(map[string]any{"n": 4.0})
	r.Equal(arrow.INT64, s.Field(0).Type.ID())
}

func TestManagerObservePublishesOnNewField(t *testing.T) {
	r := require.New(t)
	m := NewManager(nil)

	s1 := m.Observe(map[string]any{"id": int64(1)})
	r.Len(s1.Fields(), 1)

	s2 := m.Observe(map[string]any{"id": int64(2), "amount": 4.5})
	r.Len(s2.Fields(), 2)
	r.Equal("id", s2.Field(0).Name)
	r.Equal("amount", s2.Field(1).Name)
}

func TestManagerPromotesInt64ToFloat64(t *testing.T) {
	r := require.New(t)
	m := NewManager(nil)
	m.Observe(map[string]any{"v": int64(1)})
	s := m.Observe(map[string]any{"v": 1.5})
	r.Equal(arrow.FLOAT64, s.Field(0).Type.ID())
}

func TestManagerNeverNarrows(t *testing.T) {
	r := require.New(t)
	m := NewManager(nil)
	m.Observe(map[string]any{"v": 1.5})
	s := m.Observe(map[string]any{"v": int64(1)})
	r.Equal(arrow.FLOAT64, s.Field(0).Type.ID())
}

func TestManagerIdempotent(t *testing.T) {
	r := require.New(t)
	m := NewManager(nil)
	rec := map[string]any{"id": int64(1), "name": "x"}
	s1 := m.Observe(rec)
	s2 := m.Observe(rec)
	r.True(s1.Equal(s2))
}

func TestMergeSchemasPreservesOrderAndAppends(t *testing.T) {
	r := require.New(t)
	a := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)
	b := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "extra", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	merged, changed := mergeSchemas(a, b)
	r.True(changed)
	r.Equal([]string{"id", "name", "extra"}, fieldNames(merged))
}

func fieldNames(s *arrow.Schema) []string {
	out := make([]string, len(s.Fields()))
	for i, f := range s.Fields() {
		out[i] = f.Name
	}
	return out
}
