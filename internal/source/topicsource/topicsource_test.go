package topicsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

func TestNewSeedsConfiguredSchema(t *testing.T) {
	r := require.New(t)
	src := New("topic", Options{
		Fields: []FieldConfig{
			{Name: "id", DataType: "int64"},
			{Name: "amount", DataType: "float64", Nullable: true},
		},
	})
	r.Len(src.Schema().Fields(), 2)
	r.Equal("id", src.Schema().Field(0).Name)
}

func TestEmitRecordParsesJSONAndConsultsSchema(t *testing.T) {
	r := require.New(t)
	src := New("topic", Options{})

	out := make(chan message.Message, 1)
	stop := stopper.WithContext(context.Background())
	rec := &kgo.Record{Value: []byte(`{"id": 1, "amount": 4.5}`)}

	err := src.emitRecord(context.Background(), rec, out, stop)
	r.NoError(err)

	msg := <-out
	defer msg.Release()
	r.True(msg.IsBatch())
	r.Equal(int64(1), msg.Batch.NumRows())
}

func TestEmitRecordHandlesArrayField(t *testing.T) {
	r := require.New(t)
	src := New("topic", Options{})

	out := make(chan message.Message, 1)
	stop := stopper.WithContext(context.Background())
	rec := &kgo.Record{Value: []byte(`{"id": 1, "tags": ["a", "b"]}`)}

	err := src.emitRecord(context.Background(), rec, out, stop)
	r.NoError(err)

	msg := <-out
	defer msg.Release()
	r.True(msg.IsBatch())
	r.Equal(int64(1), msg.Batch.NumRows())
}

func TestEmitRecordDropsPoisonRecord(t *testing.T) {
	r := require.New(t)
	src := New("topic", Options{})
	out := make(chan message.Message, 1)
	stop := stopper.WithContext(context.Background())

	rec := &kgo.Record{Value: []byte(`not json`)}
	err := src.emitRecord(context.Background(), rec, out, stop)
	r.Error(err)
}
