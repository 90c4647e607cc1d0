package stdoutsink

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

func TestRunPrintsUtf8ColumnsAndWatermark(t *testing.T) {
	r := require.New(t)
	schema := arrow.NewSchema([]arrow.Field{{Name: "name", Type: arrow.BinaryTypes.String}}, nil)
	sink := New("out", schema)
	var buf bytes.Buffer
	sink.w = &buf

	rec, err := arrowutil.MapsToRecord(memory.NewGoAllocator(), schema, []map[string]any{{"name": "alice"}})
	r.NoError(err)
	defer rec.Release()

	in := make(chan message.Message, 3)
	in <- message.NewBatchMessage(rec)
	in <- message.NewWatermarkMessage(42)
	in <- message.Eos
	close(in)

	stop := stopper.WithContext(context.Background())
	r.NoError(sink.Run(context.Background(), in, stop))

	out := buf.String()
	r.Contains(out, "name=alice")
	r.Contains(out, "watermark=42")
}
