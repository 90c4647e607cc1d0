package cleandata

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
)

func TestCleanTrimsAndNormalizesCase(t *testing.T) {
	r := require.New(t)
	s := arrow.NewSchema([]arrow.Field{{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true}}, nil)
	tr := New("clean", s, Options{TrimStrings: true, NormalizeCase: CaseUpper})

	rec, err := arrowutil.MapsToRecord(tr.mem, s, []map[string]any{{"name": "  hello "}})
	r.NoError(err)
	defer rec.Release()

	cleaned, err := tr.clean(rec)
	r.NoError(err)
	defer cleaned.Release()

	rows := arrowutil.RecordToMaps(cleaned)
	r.Equal("HELLO", rows[0]["name"])
}

func TestCleanRemovesNullRows(t *testing.T) {
	r := require.New(t)
	s := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	tr := New("clean", s, Options{RemoveNulls: true})

	rec, err := arrowutil.MapsToRecord(tr.mem, s, []map[string]any{
		{"name": "a", "age": int64(1)},
		{"name": nil, "age": int64(2)},
	})
	r.NoError(err)
	defer rec.Release()

	cleaned, err := tr.clean(rec)
	r.NoError(err)
	defer cleaned.Release()

	r.Equal(int64(1), cleaned.NumRows())
}
