// Declarative pipeline spec document decoding. Field names and the
// variant-by-"type"-tag structure are grounded on rde-core/src/lib.rs's
// PipelineSpec/SourceSpec/TransformSpec/SinkSpec enums — the canonical
// source-of-truth for this document's shape.
package runner

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Spec is the top-level declarative pipeline document.
type Spec struct {
	Name       string          `yaml:"name"`
	Sources    []SourceSpec    `yaml:"sources"`
	Transforms []TransformSpec `yaml:"transforms"`
	Sinks      []SinkSpec      `yaml:"sinks"`
	Edges      []Edge          `yaml:"edges"`
}

// Edge is informational in this linear core; the chain order is derived
// from list order, not from Edges.
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SourceSpec is a tagged union over the two source kinds.
type SourceSpec struct {
	Type string `yaml:"type"` // "file_csv" | "kafka"
	ID   string `yaml:"id"`

	// file_csv fields
	Path      string `yaml:"path"`
	HasHeader bool   `yaml:"has_header"`
	BatchRows int    `yaml:"batch_rows"`
	Delimiter string `yaml:"delimiter"`

	// kafka fields
	Brokers           []string          `yaml:"brokers"`
	GroupID           string            `yaml:"group_id"`
	Topic             string            `yaml:"topic"`
	WatermarkInterval int               `yaml:"watermark_interval"`
	Schema            *SchemaSpec       `yaml:"schema"`
	TopicMapping      *TopicMappingSpec `yaml:"topic_mapping"`
}

// SchemaSpec is a topic source's optional static schema configuration.
type SchemaSpec struct {
	Fields    []FieldSpec `yaml:"fields"`
	AutoInfer bool        `yaml:"auto_infer"`
}

// FieldSpec is one declared field in a SchemaSpec.
type FieldSpec struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"data_type"`
	Nullable bool   `yaml:"nullable"`
}

// TopicMappingSpec binds a topic source directly to a target table,
// wiring sql_transform and partition_by per SPEC_FULL.md §9.
type TopicMappingSpec struct {
	IcebergTable        string   `yaml:"iceberg_table"`
	Bucket              string   `yaml:"bucket"`
	Endpoint            string   `yaml:"endpoint"`
	AccessKey           string   `yaml:"access_key"`
	SecretKey           string   `yaml:"secret_key"`
	Region              string   `yaml:"region"`
	AutoSchemaEvolution bool     `yaml:"auto_schema_evolution"`
	SQLTransform        string   `yaml:"sql_transform"`
	PartitionBy         []string `yaml:"partition_by"`
}

// TransformSpec is a tagged union over the six transform kinds.
type TransformSpec struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`

	// schema_evolution
	AutoInfer  bool `yaml:"auto_infer"`
	StrictMode bool `yaml:"strict_mode"`

	// json_flatten
	Separator string `yaml:"separator"`
	MaxDepth  int    `yaml:"max_depth"`

	// partition
	PartitionBy     []string `yaml:"partition_by"`
	PartitionFormat string   `yaml:"partition_format"`

	// sql_transform
	Query      string `yaml:"query"`
	WindowSize int    `yaml:"window_size"`

	// clean_data
	RemoveNulls   bool   `yaml:"remove_nulls"`
	TrimStrings   bool   `yaml:"trim_strings"`
	NormalizeCase string `yaml:"normalize_case"`
}

// SinkSpec is a tagged union over the three sink kinds.
type SinkSpec struct {
	Type string `yaml:"type"` // "stdout_pretty" | "parquet_dir" | "iceberg"
	ID   string `yaml:"id"`

	// parquet_dir
	Path string `yaml:"path"`

	// iceberg
	TableName string `yaml:"table_name"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// LoadSpec reads and decodes a pipeline document from path.
func LoadSpec(path string) (*Spec, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "runner: reading spec %q", path)
	}
	var spec Spec
	if err := yaml.Unmarshal(body, &spec); err != nil {
		return nil, errors.Wrapf(err, "runner: parsing spec %q", path)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) validate() error {
	if len(s.Sources) != 1 {
		return errors.Errorf("runner: exactly one source is required, got %d", len(s.Sources))
	}
	if len(s.Sinks) != 1 {
		return errors.Errorf("runner: exactly one sink is required, got %d", len(s.Sinks))
	}
	return nil
}
