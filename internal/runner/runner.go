// Package runner instantiates and supervises a running pipeline from a
// parsed Spec: computing the initial schema, building operators, wiring
// bounded channels between them, and spawning one goroutine per operator
// under a shared stopper.Context. Grounded on the supervision shape of
// internal/source/cdc/resolver.go's Resolvers factory and readInto loop,
// and on internal/source/logical/provider.go's plain-function wiring
// style (hand-written here, no wire codegen invoked).
package runner

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/sink/icebergsink"
	"github.com/lyteabovenyte/rde/internal/sink/parquetdirsink"
	"github.com/lyteabovenyte/rde/internal/sink/stdoutsink"
	"github.com/lyteabovenyte/rde/internal/source/filesource"
	"github.com/lyteabovenyte/rde/internal/source/topicsource"
	"github.com/lyteabovenyte/rde/internal/stopper"
	"github.com/lyteabovenyte/rde/internal/transform/cleandata"
	"github.com/lyteabovenyte/rde/internal/transform/jsonflatten"
	"github.com/lyteabovenyte/rde/internal/transform/partition"
	"github.com/lyteabovenyte/rde/internal/transform/passthrough"
	"github.com/lyteabovenyte/rde/internal/transform/schemaevolution"
	"github.com/lyteabovenyte/rde/internal/transform/sqltransform"
	"github.com/lyteabovenyte/rde/internal/types"
)

// Runner holds a fully wired pipeline ready to execute.
type Runner struct {
	spec            *Spec
	channelCapacity int

	source     types.Source
	transforms []types.Transform
	sink       types.Sink
}

// New parses no input itself; it builds a Runner from an already-loaded
// Spec, so callers (tests, cmd/pipeline) control spec loading separately.
func New(spec *Spec, channelCapacity int) (*Runner, error) {
	if channelCapacity <= 0 {
		channelCapacity = 8
	}

	initialSchema, err := computeInitialSchema(spec.Sources[0])
	if err != nil {
		return nil, err
	}

	source, err := buildSource(spec.Sources[0], initialSchema)
	if err != nil {
		return nil, err
	}

	schema := source.Schema()
	transforms := make([]types.Transform, 0, len(spec.Transforms)+2)

	// A kafka source's topic_mapping is a shorthand that wires its own
	// sql_transform and partition_by directly into the chain ahead of any
	// explicitly declared transforms, per SPEC_FULL.md §9 Open Question 2.
	var partitionBy []string
	if tm := spec.Sources[0].TopicMapping; tm != nil {
		if tm.SQLTransform != "" {
			st := sqltransform.New(spec.Sources[0].ID+"-sql", schema, sqltransform.Options{Query: tm.SQLTransform})
			transforms = append(transforms, st)
			schema = st.Schema()
		}
		if len(tm.PartitionBy) > 0 {
			pt := partition.New(spec.Sources[0].ID+"-partition", schema, partition.Options{PartitionBy: tm.PartitionBy})
			transforms = append(transforms, pt)
			schema = pt.Schema()
			partitionBy = tm.PartitionBy
		}
	}

	for _, ts := range spec.Transforms {
		tr, err := buildTransform(ts, schema)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, tr)
		schema = tr.Schema()
	}

	sink, err := buildSink(spec.Sinks[0], schema, partitionBy)
	if err != nil {
		return nil, err
	}

	return &Runner{
		spec:            spec,
		channelCapacity: channelCapacity,
		source:          source,
		transforms:      transforms,
		sink:            sink,
	}, nil
}

// computeInitialSchema returns the initial schema for src: a file source is
// sampled; a topic source, with or without a topic mapping, starts from the
// empty schema. The target table's metadata is not read here.
func computeInitialSchema(src SourceSpec) (*arrow.Schema, error) {
	switch src.Type {
	case "file_csv":
		fs := filesource.New(src.ID, filesource.Options{
			Path:      src.Path,
			HasHeader: src.HasHeader,
			BatchRows: src.BatchRows,
		})
		return fs.InferSchema()
	case "kafka":
		if src.TopicMapping != nil {
			// Reading the target table's current schema is the
			// icebergsink's own responsibility on first write; the
			// runner does not reach into object storage during startup
			// for this case, matching SPEC_FULL.md's "if absent or
			// unreadable, use the empty schema" fallback (the sink
			// performs that read once running and adopts the table's
			// current schema then).
			return arrow.NewSchema(nil, nil), nil
		}
		return arrow.NewSchema(nil, nil), nil
	default:
		return nil, errors.Errorf("runner: unknown source type %q", src.Type)
	}
}

func buildSource(spec SourceSpec, initialSchema *arrow.Schema) (types.Source, error) {
	switch spec.Type {
	case "file_csv":
		fs := filesource.New(spec.ID, filesource.Options{
			Path:      spec.Path,
			HasHeader: spec.HasHeader,
			BatchRows: spec.BatchRows,
			Delimiter: delimiterRune(spec.Delimiter),
		})
		if _, err := fs.InferSchema(); err != nil {
			return nil, err
		}
		return fs, nil
	case "kafka":
		opts := topicsource.Options{
			Brokers:           spec.Brokers,
			GroupID:           spec.GroupID,
			Topic:             spec.Topic,
			WatermarkInterval: spec.WatermarkInterval,
		}
		if spec.Schema != nil {
			opts.AutoInfer = spec.Schema.AutoInfer
			for _, f := range spec.Schema.Fields {
				opts.Fields = append(opts.Fields, topicsource.FieldConfig{
					Name: f.Name, DataType: f.DataType, Nullable: f.Nullable,
				})
			}
		}
		return topicsource.New(spec.ID, opts), nil
	default:
		return nil, errors.Errorf("runner: unknown source type %q", spec.Type)
	}
}

func delimiterRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func buildTransform(spec TransformSpec, upstream *arrow.Schema) (types.Transform, error) {
	switch spec.Type {
	case "passthrough":
		return passthrough.New(spec.ID, upstream), nil
	case "schema_evolution":
		return schemaevolution.New(spec.ID, upstream, schemaevolution.Options{
			AutoInfer:  spec.AutoInfer,
			StrictMode: spec.StrictMode,
		}), nil
	case "json_flatten":
		return jsonflatten.New(spec.ID, jsonflatten.Options{
			Separator: spec.Separator,
			MaxDepth:  spec.MaxDepth,
		}), nil
	case "partition":
		return partition.New(spec.ID, upstream, partition.Options{
			PartitionBy:     spec.PartitionBy,
			PartitionFormat: spec.PartitionFormat,
		}), nil
	case "sql_transform":
		return sqltransform.New(spec.ID, upstream, sqltransform.Options{
			Query:      spec.Query,
			WindowSize: spec.WindowSize,
		}), nil
	case "clean_data":
		return cleandata.New(spec.ID, upstream, cleandata.Options{
			RemoveNulls:   spec.RemoveNulls,
			TrimStrings:   spec.TrimStrings,
			NormalizeCase: cleandata.CaseMode(spec.NormalizeCase),
		}), nil
	default:
		return nil, errors.Errorf("runner: unknown transform type %q", spec.Type)
	}
}

func buildSink(spec SinkSpec, upstream *arrow.Schema, partitionBy []string) (types.Sink, error) {
	switch spec.Type {
	case "stdout_pretty":
		return stdoutsink.New(spec.ID, upstream), nil
	case "parquet_dir":
		return parquetdirsink.New(spec.ID, spec.Path, upstream), nil
	case "iceberg":
		return icebergsink.New(spec.ID, upstream, icebergsink.Options{
			TableName: spec.TableName,
			StoreOptions: icebergsink.StoreOptions{
				Bucket:    spec.Bucket,
				Endpoint:  spec.Endpoint,
				AccessKey: spec.AccessKey,
				SecretKey: spec.SecretKey,
				Region:    spec.Region,
			},
			PartitionBy: partitionBy,
		}), nil
	default:
		return nil, errors.Errorf("runner: unknown sink type %q", spec.Type)
	}
}

// Run wires channels between every operator, spawns them under stop, and
// blocks until the graph quiesces or stop's context is cancelled.
func (r *Runner) Run(ctx context.Context, stop *stopper.Context) error {
	n := len(r.transforms)
	channels := make([]chan message.Message, n+1)
	for i := range channels {
		channels[i] = make(chan message.Message, r.channelCapacity)
	}

	stop.Go(func() error {
		defer close(channels[0])
		return r.source.Run(ctx, channels[0], stop)
	})

	for i, tr := range r.transforms {
		i, tr := i, tr
		stop.Go(func() error {
			defer close(channels[i+1])
			return tr.Run(ctx, channels[i], channels[i+1], stop)
		})
	}

	stop.Go(func() error {
		return r.sink.Run(ctx, channels[n], stop)
	})

	log.WithFields(log.Fields{
		"pipeline": r.spec.Name, "transforms": n,
	}).Info("runner: pipeline started")

	return stop.Wait()
}
