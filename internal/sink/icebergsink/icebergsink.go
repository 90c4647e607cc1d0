// Package icebergsink implements the table-format Sink: atomic append of
// columnar data files to a transactional table layout on object storage,
// with full metadata/manifest/snapshot lifecycle per SPEC_FULL.md §4.5.3.
// sink_iceberg.rs never built this lifecycle (it stops at writing bare
// parquet files, with a literal `// TODO: Create Iceberg metadata` left
// in place); this file is the from-scratch core the distillation dropped,
// grounded on the document shapes in metadata.go and on the teacher's
// atomic read-or-bootstrap idiom visible in resolved_table.go's DDL
// bootstrapping.
package icebergsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/schema"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/types"
)

const formatVersion = 2

// Options configure the table-format sink.
type Options struct {
	TableName string
	StoreOptions
	// PartitionBy, when set, is recorded as the default PartitionSpec on
	// bootstrap, wiring a partition transform's output into the table's
	// declared layout (SPEC_FULL.md §9 Open Question 2).
	PartitionBy []string
}

// Sink commits Batches into a table-format layout backed by an
// S3-compatible object store.
type Sink struct {
	id      string
	opts    Options
	manager *schema.Manager

	store objectStore
	now   func() time.Time

	meta           *TableMetadata
	nextSnapshotID int64
	pending        []DataFile
	pendingBytes   []pendingFile
}

type pendingFile struct {
	path string
	body []byte
}

var _ types.Sink = (*Sink)(nil)

// New constructs a table-format sink over the declared schema.
func New(id string, declared *arrow.Schema, opts Options) *Sink {
	return &Sink{
		id:      id,
		opts:    opts,
		manager: schema.NewManager(declared).Named(id),
		now:     time.Now,
	}
}

func (s *Sink) Name() string          { return s.id }
func (s *Sink) Schema() *arrow.Schema { return s.manager.Current() }

// Run implements the lifecycle from SPEC_FULL.md §4.5.3: lazily connect,
// read-or-bootstrap metadata, buffer data files per Batch, and commit on
// Watermark or Eos.
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
				rows := msg.Batch.NumRows()
				err := s.handleBatch(ctx, msg.Batch.Record)
				msg.Release()
				if err != nil {
					return errors.Wrap(err, "icebergsink")
				}
				metrics.BatchesProcessed.WithLabelValues(s.id, "sink").Inc()
				metrics.RowsProcessed.WithLabelValues(s.id, "sink").Add(float64(rows))
				metrics.ProcessingDurations.WithLabelValues(s.id, "sink").Observe(time.Since(start).Seconds())
			case msg.IsWatermark():
				msg.Release()
				if err := s.commitIfPending(ctx, "watermark"); err != nil {
					return errors.Wrap(err, "icebergsink: watermark commit")
				}
			case msg.IsEos():
				msg.Release()
				if err := s.commitIfPending(ctx, "eos"); err != nil {
					return errors.Wrap(err, "icebergsink: final commit")
				}
				return nil
			}
		case <-stop.Stopping():
			// Cancellation after at-least-one Batch still performs a
			// final commit for already-acknowledged input (SPEC_FULL.md
			// §5); before any Batch, there is nothing to commit.
			if err := s.commitIfPending(ctx, "cancel"); err != nil {
				log.WithField("sink", s.id).WithError(err).Warn("icebergsink: commit on cancel failed")
			}
			return nil
		}
	}
}

func (s *Sink) handleBatch(ctx context.Context, rec arrow.Record) error {
	if rec == nil || rec.NumRows() == 0 {
		return nil
	}
	if err := s.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := s.maybeEvolveSchema(ctx, rec.Schema()); err != nil {
		return err
	}

	buf, err := encodeParquet(s.manager.Current(), rec)
	if err != nil {
		return errors.Wrap(err, "encoding batch as parquet")
	}

	path := fmt.Sprintf("%s/data/data-%d-%s.parquet", s.opts.TableName, s.now().UnixMilli(), uuid.NewString())
	s.pendingBytes = append(s.pendingBytes, pendingFile{path: path, body: buf.Bytes()})
	s.pending = append(s.pending, DataFile{
		Content:         0,
		FilePath:        path,
		FileFormat:      "PARQUET",
		Partition:       map[string]any{},
		RecordCount:     rec.NumRows(),
		FileSizeInBytes: int64(buf.Len()),
	})
	return nil
}

func (s *Sink) ensureInitialized(ctx context.Context) error {
	if s.store == nil {
		store, err := newS3Store(ctx, s.opts.StoreOptions)
		if err != nil {
			return err
		}
		s.store = store
	}
	if s.meta != nil {
		return nil
	}

	body, err := s.store.Get(ctx, metadataPath(s.opts.TableName))
	if err == nil {
		var meta TableMetadata
		if jsonErr := json.Unmarshal(body, &meta); jsonErr != nil {
			return errors.Wrap(jsonErr, "parsing existing metadata.json")
		}
		s.meta = &meta
		s.nextSnapshotID = maxSnapshotID(meta) + 1
		if cur, ok := meta.Schemas[meta.CurrentSchemaID]; ok {
			s.manager.Adopt(toArrowSchema(cur))
		}
		log.WithFields(log.Fields{"sink": s.id, "table": s.opts.TableName}).Info("icebergsink: loaded existing table metadata")
		return nil
	}

	meta := s.bootstrapMetadata()
	s.meta = &meta
	s.nextSnapshotID = 1
	log.WithFields(log.Fields{"sink": s.id, "table": s.opts.TableName}).Info("icebergsink: bootstrapping new table")
	return s.writeMetadata(ctx)
}

func (s *Sink) bootstrapMetadata() TableMetadata {
	fields := toIcebergFields(s.manager.Current())
	spec := PartitionSpec{SpecID: 0}
	for i, name := range s.opts.PartitionBy {
		spec.Fields = append(spec.Fields, PartitionField{
			SourceID: i + 1, FieldID: 1000 + i, Name: name, Transform: "identity",
		})
	}

	return TableMetadata{
		FormatVersion:   formatVersion,
		TableUUID:       uuid.NewString(),
		Location:        fmt.Sprintf("%s/%s", s.opts.Bucket, s.opts.TableName),
		LastUpdatedMs:   s.now().UnixMilli(),
		LastColumnID:    len(fields),
		CurrentSchemaID: 0,
		Schemas:         map[int]Schema{0: {SchemaID: 0, Fields: fields}},
		PartitionSpecs:  map[int]PartitionSpec{0: spec},
		DefaultSpecID:   0,
		Properties: map[string]string{
			"write.format.default":                        "parquet",
			"write.metadata.delete-after-commit.enabled":  "true",
			"write.metadata.previous-versions-max":         "1",
		},
		Snapshots:   map[int64]Snapshot{},
		SnapshotLog: nil,
		MetadataLog: nil,
		Refs:        map[string]SnapshotRef{},
	}
}

// maybeEvolveSchema records a new schema version in metadata when rec's
// schema widens the sink's current schema (SPEC_FULL.md §4.5.3 "Schema
// evolution at the sink"). Incompatible (narrowing) changes are refused.
func (s *Sink) maybeEvolveSchema(ctx context.Context, incoming *arrow.Schema) error {
	current := s.manager.Current()
	merged, changed := schema.Merge(current, incoming)
	if !changed {
		return nil
	}
	for _, f := range current.Fields() {
		if len(merged.FieldIndices(f.Name)) == 0 {
			return errors.Errorf("icebergsink: incompatible schema change, field %q would be dropped", f.Name)
		}
	}

	s.manager.Adopt(merged)
	newID := s.meta.CurrentSchemaID + 1
	s.meta.Schemas[newID] = Schema{SchemaID: newID, Fields: toIcebergFields(merged)}
	s.meta.CurrentSchemaID = newID
	s.meta.LastColumnID = len(merged.Fields())
	log.WithFields(log.Fields{"sink": s.id, "schema_id": newID}).Info("icebergsink: evolved table schema")
	return nil
}

// commitIfPending performs a commit if there are buffered data files;
// SPEC_FULL.md B4: invoked with an empty buffer, this is a no-op.
func (s *Sink) commitIfPending(ctx context.Context, reason string) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.commit(ctx); err != nil {
		metrics.TableCommits.WithLabelValues(s.opts.TableName, "error").Inc()
		return err
	}
	metrics.TableCommits.WithLabelValues(s.opts.TableName, "ok").Inc()
	log.WithFields(log.Fields{"sink": s.id, "reason": reason, "files": len(s.pending)}).Info("icebergsink: committed snapshot")
	return nil
}

func (s *Sink) commit(ctx context.Context) error {
	for _, pf := range s.pendingBytes {
		if err := s.store.Put(ctx, pf.path, pf.body); err != nil {
			return errors.Wrapf(err, "uploading %q", pf.path)
		}
	}

	snapshotID := s.nextSnapshotID
	s.nextSnapshotID++

	var parent *int64
	if s.meta.CurrentSnapshotID != nil {
		p := *s.meta.CurrentSnapshotID
		parent = &p
	}

	entries := make([]ManifestEntry, len(s.pending))
	var addedRecords, addedSize int64
	for i, df := range s.pending {
		entries[i] = ManifestEntry{Status: 2, SnapshotID: snapshotID, DataFile: df}
		addedRecords += df.RecordCount
		addedSize += df.FileSizeInBytes
	}

	manifest := Manifest{
		SchemaID:        s.meta.CurrentSchemaID,
		Schema:          s.meta.Schemas[s.meta.CurrentSchemaID],
		PartitionSpecID: s.meta.DefaultSpecID,
		Content:         0,
		SequenceNumber:  snapshotID,
		Entries:         entries,
	}
	manifestBody, err := json.Marshal(manifest)
	if err != nil {
		return errors.Wrap(err, "marshaling manifest")
	}
	manifestPath := fmt.Sprintf("%s/metadata/%s.avro", s.opts.TableName, uuid.NewString())
	if err := s.store.Put(ctx, manifestPath, manifestBody); err != nil {
		return errors.Wrap(err, "uploading manifest")
	}

	totalRecords := addedRecords
	for _, snap := range s.meta.Snapshots {
		if s.meta.CurrentSnapshotID != nil && snap.SnapshotID == *s.meta.CurrentSnapshotID {
			totalRecords += snap.Summary.TotalRecords
		}
	}

	snapshot := Snapshot{
		SnapshotID:       snapshotID,
		ParentSnapshotID: parent,
		SequenceNumber:   snapshotID,
		TimestampMs:      s.now().UnixMilli(),
		ManifestList:     manifestPath,
		SchemaID:         s.meta.CurrentSchemaID,
		Summary: SnapshotSummary{
			Operation:      "append",
			AddedDataFiles: len(s.pending),
			TotalRecords:   totalRecords,
			AddedRecords:   addedRecords,
			AddedFilesSize: addedSize,
		},
	}

	s.meta.Snapshots[snapshotID] = snapshot
	s.meta.SnapshotLog = append(s.meta.SnapshotLog, SnapshotLogEntry{TimestampMs: snapshot.TimestampMs, SnapshotID: snapshotID})
	s.meta.CurrentSnapshotID = &snapshotID
	s.meta.Refs["main"] = SnapshotRef{SnapshotID: snapshotID, Type: "branch"}
	s.meta.LastUpdatedMs = snapshot.TimestampMs

	if err := s.writeMetadata(ctx); err != nil {
		return err
	}

	s.pending = nil
	s.pendingBytes = nil
	return nil
}

func (s *Sink) writeMetadata(ctx context.Context) error {
	body, err := json.Marshal(s.meta)
	if err != nil {
		return errors.Wrap(err, "marshaling metadata.json")
	}
	path := metadataPath(s.opts.TableName)
	if err := s.store.Put(ctx, path, body); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	s.meta.MetadataLog = append(s.meta.MetadataLog, MetadataLogEntry{TimestampMs: s.now().UnixMilli(), MetadataFile: path})
	return nil
}

func metadataPath(table string) string {
	return fmt.Sprintf("%s/metadata/metadata.json", table)
}

func maxSnapshotID(meta TableMetadata) int64 {
	var max int64
	for id := range meta.Snapshots {
		if id > max {
			max = id
		}
	}
	return max
}

func encodeParquet(schema *arrow.Schema, rec arrow.Record) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, err
	}
	if err := writer.Write(rec); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// toIcebergFields maps an arrow schema's fields to table-format Fields per
// SPEC_FULL.md §4.5.3's logical type table, assigning stable ids in
// declaration order starting at 1.
func toIcebergFields(s *arrow.Schema) []Field {
	fields := make([]Field, len(s.Fields()))
	for i, f := range s.Fields() {
		fields[i] = Field{
			ID:       i + 1,
			Name:     f.Name,
			Type:     toIcebergType(f.Type),
			Required: !f.Nullable,
		}
	}
	return fields
}

func toIcebergType(t arrow.DataType) string {
	switch t.ID() {
	case arrow.INT32:
		return "int"
	case arrow.INT64:
		return "long"
	case arrow.FLOAT32:
		return "float"
	case arrow.FLOAT64:
		return "double"
	case arrow.BOOL:
		return "boolean"
	case arrow.STRING:
		return "string"
	case arrow.BINARY:
		return "binary"
	case arrow.DATE32:
		return "date"
	case arrow.TIMESTAMP:
		return "timestamp"
	default:
		return "string"
	}
}

func toArrowSchema(s Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: toArrowType(f.Type), Nullable: !f.Required}
	}
	return arrow.NewSchema(fields, nil)
}

func toArrowType(t string) arrow.DataType {
	switch t {
	case "int":
		return arrow.PrimitiveTypes.Int32
	case "long":
		return arrow.PrimitiveTypes.Int64
	case "float":
		return arrow.PrimitiveTypes.Float32
	case "double":
		return arrow.PrimitiveTypes.Float64
	case "boolean":
		return arrow.FixedWidthTypes.Boolean
	case "binary":
		return arrow.BinaryTypes.Binary
	case "date":
		return arrow.FixedWidthTypes.Date32
	case "timestamp":
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}
