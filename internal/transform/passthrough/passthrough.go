// Package passthrough implements the identity Transform: every Message is
// forwarded unchanged. Grounded on rde-tx's Passthrough, the only transform
// the original implementation actually finished.
package passthrough

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	log "github.com/sirupsen/logrus"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Transform forwards every Message it receives without modification.
type Transform struct {
	id     string
	schema *arrow.Schema
}

var _ types.Transform = (*Transform)(nil)

// New constructs a Passthrough transform with the given id, inheriting
// schema from upstream.
func New(id string, schema *arrow.Schema) *Transform {
	return &Transform{id: id, schema: schema}
}

func (t *Transform) Name() string          { return t.id }
func (t *Transform) Schema() *arrow.Schema { return t.schema }

// Run forwards in to out until in closes or stop fires.
func (t *Transform) Run(ctx context.Context, in <-chan message.Message, out chan<- message.Message, stop *stopper.Context) error {
	log.WithField("transform", t.id).Debug("passthrough: starting")
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			log.WithFields(log.Fields{"transform": t.id, "kind": msg.Kind.String()}).Trace("passthrough: forwarding message")
			if msg.IsBatch() {
				start := time.Now()
				metrics.BatchesProcessed.WithLabelValues(t.id, "transform").Inc()
				metrics.RowsProcessed.WithLabelValues(t.id, "transform").Add(float64(msg.Batch.NumRows()))
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
