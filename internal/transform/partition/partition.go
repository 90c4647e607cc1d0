// Package partition implements the partition Transform: it stamps two
// computed columns onto every Batch — partition_key, derived from the
// configured partition_by fields (or a format template), and
// partition_date, the UTC ingestion date. Built from SPEC_FULL.md §4.4;
// the partition-key/spec shape is grounded on the IcebergPartitionSpec /
// IcebergPartitionField structs in topic_mapping.rs, which this transform
// feeds when wired under a topic_mapping's partition_by (see
// internal/sink/icebergsink).
package partition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Options configure the partition transform.
type Options struct {
	PartitionBy     []string
	PartitionFormat string // optional template with {0}, {1}, ... placeholders
}

// Transform appends partition_key and partition_date columns to every
// Batch.
type Transform struct {
	id     string
	opts   Options
	schema *arrow.Schema
	mem    memory.Allocator
	now    func() time.Time
}

var _ types.Transform = (*Transform)(nil)

// New constructs a partition transform. upstream is the input schema; the
// output schema is upstream plus partition_key and partition_date.
func New(id string, upstream *arrow.Schema, opts Options) *Transform {
	fields := append(append([]arrow.Field{}, upstream.Fields()...),
		arrow.Field{Name: "partition_key", Type: arrow.BinaryTypes.String, Nullable: false},
		arrow.Field{Name: "partition_date", Type: arrow.BinaryTypes.String, Nullable: false},
	)
	return &Transform{
		id:     id,
		opts:   opts,
		schema: arrow.NewSchema(fields, nil),
		mem:    memory.NewGoAllocator(),
		now:    time.Now,
	}
}

func (t *Transform) Name() string          { return t.id }
func (t *Transform) Schema() *arrow.Schema { return t.schema }

// Run stamps partition columns onto every Batch and forwards
// Watermark/Eos untouched.
func (t *Transform) Run(ctx context.Context, in <-chan message.Message, out chan<- message.Message, stop *stopper.Context) error {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if msg.IsBatch() {
				start := time.Now()
				stamped, err := t.stamp(msg.Batch.Record)
				rows := msg.Batch.NumRows()
				msg.Release()
				if err != nil {
					return errors.Wrap(err, "partition")
				}
				metrics.BatchesProcessed.WithLabelValues(t.id, "transform").Inc()
				metrics.RowsProcessed.WithLabelValues(t.id, "transform").Add(float64(rows))
				metrics.ProcessingDurations.WithLabelValues(t.id, "transform").Observe(time.Since(start).Seconds())
				msg = message.NewBatchMessage(stamped)
				stamped.Release()
			}
			select {
			case out <- msg:
			case <-stop.Stopping():
				msg.Release()
				return nil
			}
			if msg.IsEos() {
				return nil
			}
		case <-stop.Stopping():
			return nil
		}
	}
}

func (t *Transform) stamp(rec arrow.Record) (arrow.Record, error) {
	rows := arrowutil.RecordToMaps(rec)
	date := t.now().UTC().Format("2006-01-02")
	for _, row := range rows {
		row["partition_key"] = t.partitionKey(row)
		row["partition_date"] = date
	}
	return arrowutil.MapsToRecord(t.mem, t.schema, rows)
}

func (t *Transform) partitionKey(row map[string]any) string {
	values := make([]string, len(t.opts.PartitionBy))
	for i, field := range t.opts.PartitionBy {
		values[i] = fmt.Sprintf("%v", row[field])
	}
	if t.opts.PartitionFormat != "" {
		out := t.opts.PartitionFormat
		for i, v := range values {
			out = strings.ReplaceAll(out, fmt.Sprintf("{%d}", i), v)
		}
		return out
	}
	return strings.Join(values, "/")
}
