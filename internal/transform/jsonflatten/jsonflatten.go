// Package jsonflatten implements the json-flatten Transform: nested object
// keys are joined with a separator up to a maximum depth, and the result is
// re-encoded as a Batch whose schema is the union of flattened keys seen so
// far. Built from SPEC_FULL.md §4.4 prose; no direct original_source
// grounding exists since rde-tx only ever implemented Passthrough, so the
// operator shape (sample rows -> flatten -> rebuild via arrowutil -> widen
// schema through internal/schema) follows the same structure used by
// schemaevolution.
package jsonflatten

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/schema"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Options configure the json-flatten transform.
type Options struct {
	Separator string // defaults to "." if empty
	MaxDepth  int    // defaults to unbounded (0 is treated as unbounded)
}

// Transform flattens nested-object rows into a wide, flat schema.
type Transform struct {
	id      string
	opts    Options
	manager *schema.Manager
	mem     memory.Allocator
}

var _ types.Transform = (*Transform)(nil)

// New constructs a json-flatten transform.
func New(id string, opts Options) *Transform {
	if opts.Separator == "" {
		opts.Separator = "."
	}
	return &Transform{id: id, opts: opts, manager: schema.NewManager(nil).Named(id), mem: memory.NewGoAllocator()}
}

func (t *Transform) Name() string          { return t.id }
func (t *Transform) Schema() *arrow.Schema { return t.manager.Current() }

// Run flattens every Batch row and forwards Watermark/Eos untouched.
func (t *Transform) Run(ctx context.Context, in <-chan message.Message, out chan<- message.Message, stop *stopper.Context) error {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if msg.IsBatch() {
				start := time.Now()
				flat, err := t.flattenBatch(msg.Batch.Record)
				rows := msg.Batch.NumRows()
				msg.Release()
				if err != nil {
					return errors.Wrap(err, "jsonflatten")
				}
				metrics.BatchesProcessed.WithLabelValues(t.id, "transform").Inc()
				metrics.RowsProcessed.WithLabelValues(t.id, "transform").Add(float64(rows))
				metrics.ProcessingDurations.WithLabelValues(t.id, "transform").Observe(time.Since(start).Seconds())
				if flat != nil {
					msg = message.NewBatchMessage(flat)
					flat.Release()
				} else {
					continue
				}
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

func (t *Transform) flattenBatch(rec arrow.Record) (arrow.Record, error) {
	if rec == nil || rec.NumRows() == 0 {
		return nil, nil
	}
	rows := arrowutil.RecordToMaps(rec)
	flatRows := make([]map[string]any, len(rows))
	for i, row := range rows {
		flat := map[string]any{}
		t.flattenInto(flat, "", row, 1)
		flatRows[i] = flat
		t.manager.Observe(flat)
	}
	out := t.manager.Current()
	return arrowutil.MapsToRecord(t.mem, out, flatRows)
}

func (t *Transform) flattenInto(dst map[string]any, prefix string, v any, depth int) {
	obj, ok := v.(map[string]any)
	if !ok {
		if prefix != "" {
			dst[prefix] = v
		}
		return
	}
	if t.opts.MaxDepth > 0 && depth > t.opts.MaxDepth {
		dst[prefix] = fmt.Sprintf("%v", obj)
		return
	}
	for k, val := range obj {
		key := k
		if prefix != "" {
			key = prefix + t.opts.Separator + k
		}
		switch nested := val.(type) {
		case map[string]any:
			t.flattenInto(dst, key, nested, depth+1)
		case []any:
			if len(nested) > 0 {
				t.flattenInto(dst, key, nested[0], depth+1)
			} else {
				dst[key] = nil
			}
		default:
			dst[key] = nested
		}
	}
}
