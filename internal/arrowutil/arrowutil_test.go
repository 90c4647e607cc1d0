package arrowutil

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestMapsToRecordRoundTripsListColumn(t *testing.T) {
	r := require.New(t)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	}, nil)

	rows := []map[string]any{
		{"tags": []any{"a", "b", "c"}},
		{"tags": nil},
	}

	rec, err := MapsToRecord(memory.NewGoAllocator(), schema, rows)
	r.NoError(err)
	defer rec.Release()

	r.Equal(int64(2), rec.NumRows())
	back := RecordToMaps(rec)
	r.Equal([]any{"a", "b", "c"}, back[0]["tags"])
	r.Nil(back[1]["tags"])
}

func TestMapsToRecordRoundTripsDate32Column(t *testing.T) {
	r := require.New(t)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "d", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
	}, nil)

	rows := []map[string]any{{"d": "2024-03-15"}}
	rec, err := MapsToRecord(memory.NewGoAllocator(), schema, rows)
	r.NoError(err)
	defer rec.Release()

	back := RecordToMaps(rec)
	r.Equal("2024-03-15", back[0]["d"])
}

func TestMapsToRecordRoundTripsTimestampColumn(t *testing.T) {
	r := require.New(t)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "ts", Type: arrow.FixedWidthTypes.Timestamp_us, Nullable: true},
	}, nil)

	now := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	rows := []map[string]any{{"ts": now.Format(time.RFC3339Nano)}}
	rec, err := MapsToRecord(memory.NewGoAllocator(), schema, rows)
	r.NoError(err)
	defer rec.Release()

	back := RecordToMaps(rec)
	r.Equal(now.Format(time.RFC3339Nano), back[0]["ts"])
}
