// Package sqltransform implements the sql-transform Transform: Batches are
// buffered until window_size have arrived (or a Watermark/Eos forces an
// early flush), concatenated into a virtual input_data table, run through
// an embedded SQL engine, and emitted as a single result Batch. Grounded
// on topic_mapping.rs's apply_sql_transform (DataFusion-backed in the
// original; this core owns only the Arrow<->SQL bridging and swaps the
// engine for modernc.org/sqlite per SPEC_FULL.md §4.4, since no DataFusion
// binding exists anywhere in the example pack and the window-buffer-then
// -single-emit semantics described there — including its
// single-result-row TODO — matches this design exactly).
package sqltransform

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/lyteabovenyte/rde/internal/arrowutil"
	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/schema"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Options configure the sql-transform transform.
type Options struct {
	Query      string
	WindowSize int // number of Batches to buffer before a forced flush; 0 means "flush only on Watermark/Eos"
}

// Transform buffers, queries, and re-emits Batches through an embedded SQL
// engine.
type Transform struct {
	id      string
	opts    Options
	manager *schema.Manager
	mem     memory.Allocator

	buffered []map[string]any
	batches  int
	upstream *arrow.Schema
}

var _ types.Transform = (*Transform)(nil)

// New constructs a sql-transform transform over upstream's schema.
func New(id string, upstream *arrow.Schema, opts Options) *Transform {
	return &Transform{
		id:       id,
		opts:     opts,
		manager:  schema.NewManager(upstream).Named(id),
		mem:      memory.NewGoAllocator(),
		upstream: upstream,
	}
}

func (t *Transform) Name() string          { return t.id }
func (t *Transform) Schema() *arrow.Schema { return t.manager.Current() }

// Run buffers incoming Batches and flushes on window boundary,
// Watermark, or Eos.
func (t *Transform) Run(ctx context.Context, in <-chan message.Message, out chan<- message.Message, stop *stopper.Context) error {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			switch {
			case msg.IsBatch():
				rows := arrowutil.RecordToMaps(msg.Batch.Record)
				msg.Release()
				t.buffered = append(t.buffered, rows...)
				t.batches++
				if t.opts.WindowSize > 0 && t.batches >= t.opts.WindowSize {
					if err := t.flush(ctx, out, stop); err != nil {
						return err
					}
				}
				continue
			case msg.IsWatermark():
				if err := t.flush(ctx, out, stop); err != nil {
					return err
				}
			case msg.IsEos():
				if err := t.flush(ctx, out, stop); err != nil {
					return err
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

func (t *Transform) flush(ctx context.Context, out chan<- message.Message, stop *stopper.Context) error {
	if len(t.buffered) == 0 {
		return nil
	}
	start := time.Now()
	rows := t.buffered
	t.buffered = nil
	t.batches = 0

	result, resultSchema, err := t.runQuery(ctx, rows)
	if err != nil {
		return errors.Wrap(err, "sqltransform: query failed")
	}
	t.manager.Adopt(resultSchema)

	rec, err := arrowutil.MapsToRecord(t.mem, resultSchema, result)
	if err != nil {
		return errors.Wrap(err, "sqltransform: building result batch")
	}
	defer rec.Release()

	metrics.BatchesProcessed.WithLabelValues(t.id, "transform").Inc()
	metrics.RowsProcessed.WithLabelValues(t.id, "transform").Add(float64(len(rows)))
	metrics.ProcessingDurations.WithLabelValues(t.id, "transform").Observe(time.Since(start).Seconds())

	msg := message.NewBatchMessage(rec)
	select {
	case out <- msg:
		return nil
	case <-stop.Stopping():
		msg.Release()
		return nil
	}
}

// runQuery materializes rows as a SQLite table named input_data, using
// upstream's declared schema for column types, executes opts.Query, and
// returns the result set as maps plus the merge of the schemas inferred
// from every result row.
func (t *Transform) runQuery(ctx context.Context, rows []map[string]any) ([]map[string]any, *arrow.Schema, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening embedded sql engine")
	}
	defer db.Close()

	if err := createInputTable(ctx, db, t.upstream, rows); err != nil {
		return nil, nil, err
	}

	rowsOut, err := db.QueryContext(ctx, t.opts.Query)
	if err != nil {
		return nil, nil, errors.Wrap(err, "executing query")
	}
	defer rowsOut.Close()

	cols, err := rowsOut.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results []map[string]any
	for rowsOut.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rowsOut.Scan(ptrs...); err != nil {
			return nil, nil, errors.Wrap(err, "scanning result row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeSQLValue(values[i])
		}
		results = append(results, row)
	}
	if err := rowsOut.Err(); err != nil {
		return nil, nil, err
	}

	var outSchema *arrow.Schema
	if len(results) == 0 {
		log.WithField("transform", t.id).Debug("sqltransform: query produced no rows")
		outSchema = arrow.NewSchema(nil, nil)
	} else {
		outSchema = schema.InferRecord(results[0])
		for _, r := range results[1:] {
			outSchema, _ = schema.Merge(outSchema, schema.InferRecord(r))
		}
	}
	return results, outSchema, nil
}

func createInputTable(ctx context.Context, db *sql.DB, upstream *arrow.Schema, rows []map[string]any) error {
	var cols []string
	for _, f := range upstream.Fields() {
		cols = append(cols, fmt.Sprintf("%q %s", f.Name, sqliteType(f.Type)))
	}
	if len(cols) == 0 {
		// No declared upstream schema (e.g. a dynamic topic source):
		// derive columns from the first buffered row instead.
		if len(rows) == 0 {
			return errors.New("sqltransform: no schema and no rows to create input_data")
		}
		for k := range rows[0] {
			cols = append(cols, fmt.Sprintf("%q TEXT", k))
		}
	}
	ddl := fmt.Sprintf("CREATE TABLE input_data (%s)", strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "creating input_data table")
	}

	colNames := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = strings.SplitN(c, " ", 2)[0]
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(colNames)), ",")
	insertSQL := fmt.Sprintf("INSERT INTO input_data VALUES (%s)", placeholders)
	stmt, err := db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(colNames))
		for i, c := range colNames {
			args[i] = row[strings.Trim(c, `"`)]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrap(err, "inserting row into input_data")
		}
	}
	return nil
}

func sqliteType(t arrow.DataType) string {
	switch t.ID() {
	case arrow.INT32, arrow.INT64:
		return "INTEGER"
	case arrow.FLOAT32, arrow.FLOAT64:
		return "REAL"
	case arrow.BOOL:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return val
	}
}
