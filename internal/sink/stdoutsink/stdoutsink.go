// Package stdoutsink implements the console Sink: for each Batch it prints
// every row's utf8 columns line by line, and watermarks as
// "watermark={ts}". Enriched from sink_stdout.rs per SPEC_FULL.md §4.5.2,
// which only ever printed row/column counts.
package stdoutsink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	log "github.com/sirupsen/logrus"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Sink prints every Batch's rows to an io.Writer (os.Stdout by default).
type Sink struct {
	id     string
	schema *arrow.Schema
	w      io.Writer
}

var _ types.Sink = (*Sink)(nil)

// New constructs a console sink writing to os.Stdout.
func New(id string, schema *arrow.Schema) *Sink {
	return &Sink{id: id, schema: schema, w: os.Stdout}
}

func (s *Sink) Name() string          { return s.id }
func (s *Sink) Schema() *arrow.Schema { return s.schema }

// Run prints every Batch's utf8 columns and every Watermark until Eos or
// cancellation.
func (s *Sink) Run(ctx context.Context, in <-chan message.Message, stop *stopper.Context) error {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			switch {
			case msg.IsBatch():
				start := time.Now()
				s.printBatch(msg.Batch.Record)
				metrics.BatchesProcessed.WithLabelValues(s.id, "sink").Inc()
				metrics.RowsProcessed.WithLabelValues(s.id, "sink").Add(float64(msg.Batch.NumRows()))
				metrics.ProcessingDurations.WithLabelValues(s.id, "sink").Observe(time.Since(start).Seconds())
			case msg.IsWatermark():
				fmt.Fprintf(s.w, "watermark=%d\n", msg.Watermark)
			case msg.IsEos():
				msg.Release()
				log.WithField("sink", s.id).Debug("stdoutsink: received eos")
				return nil
			}
			msg.Release()
		case <-stop.Stopping():
			return nil
		}
	}
}

func (s *Sink) printBatch(rec arrow.Record) {
	if rec == nil {
		return
	}
	schema := rec.Schema()
	var utf8Cols []string
	for _, f := range schema.Fields() {
		if f.Type.ID() == arrow.STRING {
			utf8Cols = append(utf8Cols, f.Name)
		}
	}
	rows := arrowutil.RecordToMaps(rec)
	for _, row := range rows {
		parts := make([]string, 0, len(utf8Cols))
		for _, c := range utf8Cols {
			parts = append(parts, fmt.Sprintf("%s=%v", c, row[c]))
		}
		fmt.Fprintln(s.w, strings.Join(parts, " "))
	}
}
