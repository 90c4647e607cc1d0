package partition

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
)

func TestPartitionKeyJoinsFieldsByDefault(t *testing.T) {
	r := require.New(t)
	upstream := arrow.NewSchema([]arrow.Field{
		{Name: "region", Type: arrow.BinaryTypes.String},
		{Name: "kind", Type: arrow.BinaryTypes.String},
	}, nil)
	tr := New("p", upstream, Options{PartitionBy: []string{"region", "kind"}})
	tr.now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	rec, err := arrowutil.MapsToRecord(tr.mem, upstream, []map[string]any{
		{"region": "us", "kind": "orders"},
	})
	r.NoError(err)
	defer rec.Release()

	stamped, err := tr.stamp(rec)
	r.NoError(err)
	defer stamped.Release()

	rows := arrowutil.RecordToMaps(stamped)
	r.Equal("us/orders", rows[0]["partition_key"])
	r.Equal("2026-07-31", rows[0]["partition_date"])
}

func TestPartitionKeyUsesFormatTemplate(t *testing.T) {
	r := require.New(t)
	upstream := arrow.NewSchema([]arrow.Field{{Name: "region", Type: arrow.BinaryTypes.String}}, nil)
	tr := New("p", upstream, Options{PartitionBy: []string{"region"}, PartitionFormat: "region={0}"})

	rec, err := arrowutil.MapsToRecord(tr.mem, upstream, []map[string]any{{"region": "eu"}})
	r.NoError(err)
	defer rec.Release()

	stamped, err := tr.stamp(rec)
	r.NoError(err)
	defer stamped.Release()

	rows := arrowutil.RecordToMaps(stamped)
	r.Equal("region=eu", rows[0]["partition_key"])
}
