// Package schemaevolution implements the schema-evolution Transform: it
// samples each incoming Batch, infers a schema, and merges it into the
// running schema unless strict mode is set without auto-infer, in which case
// the schema is left unchanged. Strict mode accepts a merge candidate only if
// it keeps every current field; since a merge never drops a field and keeps
// the existing type on a conflicting one, a type conflict is absorbed rather
// than rejected. Grounded structurally on topic_mapping.rs's
// evolve_schema_if_needed, rewritten against internal/schema rather than
// the original's DataFusion-backed merge.
package schemaevolution

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	log "github.com/sirupsen/logrus"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/schema"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Options configure the schema-evolution transform.
type Options struct {
	AutoInfer  bool
	StrictMode bool
}

// Transform evolves its output schema as Batches arrive.
type Transform struct {
	id      string
	opts    Options
	manager *schema.Manager
}

var _ types.Transform = (*Transform)(nil)

// New constructs a schema-evolution transform seeded with the upstream
// schema.
func New(id string, upstream *arrow.Schema, opts Options) *Transform {
	return &Transform{id: id, opts: opts, manager: schema.NewManager(upstream).Named(id)}
}

func (t *Transform) Name() string         { return t.id }
func (t *Transform) Schema() *arrow.Schema { return t.manager.Current() }

// Run consumes in, evolves the schema per Options, and forwards every
// message (Batches are forwarded as-is; this transform changes the
// *declared* schema, not the wire-level arrow.Record, which downstream
// consumers reconcile against the published schema via arrowutil).
func (t *Transform) Run(ctx context.Context, in <-chan message.Message, out chan<- message.Message, stop *stopper.Context) error {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if msg.IsBatch() && msg.Batch.Record != nil && msg.Batch.Record.NumRows() > 0 {
				start := time.Now()
				t.evolve(msg.Batch.Record)
				metrics.BatchesProcessed.WithLabelValues(t.id, "transform").Inc()
				metrics.RowsProcessed.WithLabelValues(t.id, "transform").Add(float64(msg.Batch.Record.NumRows()))
				metrics.ProcessingDurations.WithLabelValues(t.id, "transform").Observe(time.Since(start).Seconds())
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

func (t *Transform) evolve(rec arrow.Record) {
	rows := arrowutil.RecordToMaps(rec)
	if len(rows) == 0 {
		return
	}
	// Sampling the first row is sufficient: InferRecord + merge over the
	// batch's declared schema already sees every field name the batch
	// carries, since every row in a Batch shares one schema.
	sample := rows[0]

	if t.opts.StrictMode {
		candidate, changed := t.manager.MergeWithNew(sample)
		if changed && !isWidening(t.manager.Current(), candidate) {
			log.WithFields(log.Fields{
				"transform": t.id,
				"current":   schema.FieldNames(t.manager.Current()),
				"candidate": schema.FieldNames(candidate),
			}).Warn("schemaevolution: rejecting incompatible change under strict mode")
			return
		}
	}

	if t.opts.AutoInfer || !t.opts.StrictMode {
		t.manager.Observe(sample)
	}
}

// isWidening reports whether candidate is a superset-or-equal field set of
// current, which is all strict mode permits.
func isWidening(current, candidate *arrow.Schema) bool {
	for _, f := range current.Fields() {
		if len(candidate.FieldIndices(f.Name)) == 0 {
			return false
		}
	}
	return true
}
