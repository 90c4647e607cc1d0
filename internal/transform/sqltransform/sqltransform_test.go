package sqltransform

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

func TestRunQueryAggregatesOverInputData(t *testing.T) {
	r := require.New(t)
	upstream := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	tr := New("sql", upstream, Options{
		Query:      "SELECT SUM(amount) as total FROM input_data",
		WindowSize: 1,
	})

	rows := []map[string]any{
		{"id": int64(1), "amount": 2.5},
		{"id": int64(2), "amount": 3.5},
	}
	result, schema, err := tr.runQuery(context.Background(), rows)
	r.NoError(err)
	r.Len(result, 1)
	r.Equal(float64(6), result[0]["total"])
	r.Equal("total", schema.Field(0).Name)
}

func TestNewTransformStartsWithEmptyBuffer(t *testing.T) {
	r := require.New(t)
	tr := New("sql", arrow.NewSchema(nil, nil), Options{Query: "SELECT 1"})
	r.Empty(tr.buffered)
}
