package icebergsink

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

var errNotFound = errors.New("fakeStore: object not found")

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return nil, errNotFound
	}
	return body, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	f.objects[key] = cp
	return nil
}

func TestBootstrapAndCommitOnEos(t *testing.T) {
	r := require.New(t)
	schemaIn := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	sink := New("iceberg", schemaIn, Options{
		TableName:    "orders",
		StoreOptions: StoreOptions{Bucket: "b"},
	})
	store := newFakeStore()
	sink.store = store
	sink.now = func() time.Time { return time.Unix(1, 0) }

	rec, err := arrowutil.MapsToRecord(memory.NewGoAllocator(), schemaIn, []map[string]any{
		{"id": int64(1), "name": "a"},
	})
	r.NoError(err)
	defer rec.Release()

	in := make(chan message.Message, 2)
	in <- message.NewBatchMessage(rec)
	in <- message.Eos
	close(in)

	stop := stopper.WithContext(context.Background())
	r.NoError(sink.Run(context.Background(), in, stop))

	raw, ok := store.objects["orders/metadata/metadata.json"]
	r.True(ok)

	var meta TableMetadata
	r.NoError(json.Unmarshal(raw, &meta))
	r.Equal(formatVersion, meta.FormatVersion)
	r.NotNil(meta.CurrentSnapshotID)
	r.Equal(int64(1), *meta.CurrentSnapshotID)
	r.Len(meta.Snapshots, 1)
}

func TestCommitsOnCancellationAfterBatch(t *testing.T) {
	r := require.New(t)
	schemaIn := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	sink := New("iceberg", schemaIn, Options{
		TableName:    "orders",
		StoreOptions: StoreOptions{Bucket: "b"},
	})
	store := newFakeStore()
	sink.store = store
	sink.now = func() time.Time { return time.Unix(1, 0) }

	rec, err := arrowutil.MapsToRecord(memory.NewGoAllocator(), schemaIn, []map[string]any{
		{"id": int64(1)},
	})
	r.NoError(err)
	defer rec.Release()

	in := make(chan message.Message, 1)
	in <- message.NewBatchMessage(rec)

	stop := stopper.WithContext(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(context.Background(), in, stop) }()

	// Give the sink a moment to pick up the buffered Batch, then request
	// graceful shutdown: a cancellation arriving after at least one Batch
	// must still produce a final commit (SPEC_FULL.md §5), exercised here
	// via stop.Stopping() exactly as cmd/pipeline drives it, not ctx.Done().
	time.Sleep(20 * time.Millisecond)
	r.NoError(stop.Stop(time.Second))
	r.NoError(<-done)

	raw, ok := store.objects["orders/metadata/metadata.json"]
	r.True(ok)
	var meta TableMetadata
	r.NoError(json.Unmarshal(raw, &meta))
	r.NotNil(meta.CurrentSnapshotID)
	r.Len(meta.Snapshots, 1)
}
