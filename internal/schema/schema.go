// Package schema implements the Schema Manager: inference of an arrow
// schema from semi-structured records, monotonic merging across batches,
// and safe type promotion. It publishes the current schema through a
// notify.Var so that downstream goroutines — a table-format sink waiting
// to evolve a table, a topic source waiting to build its next Batch — can
// block until the next change the way cdc-sink's resolver blocks on
// r.marked.Get().
package schema

import (
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	log "github.com/sirupsen/logrus"

	"github.com/lyteabovenyte/rde/internal/metrics"
	"github.com/lyteabovenyte/rde/internal/notify"
)

// Manager infers and evolves an arrow.Schema from a stream of
// map[string]any records. It never fails: every method returns a usable
// schema, falling back to the existing one when a candidate would narrow
// or otherwise conflict.
type Manager struct {
	mu      sync.Mutex
	current *arrow.Schema
	pub     *notify.Var[*arrow.Schema]
	name    string
}

// NewManager constructs a Manager optionally seeded with a configured
// schema. A nil seed starts from the empty schema (zero fields).
func NewManager(seed *arrow.Schema) *Manager {
	if seed == nil {
		seed = arrow.NewSchema(nil, nil)
	}
	return &Manager{
		current: seed,
		pub:     notify.New(seed),
	}
}

// Named attaches the owning operator's id to the Manager for
// metrics.SchemaPublications labeling, then returns the receiver so
// constructors can chain it: schema.NewManager(seed).Named(id).
func (m *Manager) Named(name string) *Manager {
	m.name = name
	return m
}

// Current returns the last-published schema.
func (m *Manager) Current() *arrow.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Published exposes the notify.Var so callers can await the next change.
func (m *Manager) Published() (*arrow.Schema, <-chan struct{}) {
	return m.pub.Get()
}

// Observe infers a schema from record, merges it with the current schema,
// and publishes the result if it differs. It returns the schema the caller
// should now consider authoritative.
func (m *Manager) Observe(record map[string]any) *arrow.Schema {
	inferred := InferRecord(record)

	m.mu.Lock()
	merged, changed := mergeSchemas(m.current, inferred)
	if changed {
		m.current = merged
	}
	cur := m.current
	m.mu.Unlock()

	if changed {
		log.WithFields(log.Fields{"fields": len(merged.Fields())}).Debug("schema: published merged schema")
		metrics.SchemaPublications.WithLabelValues(m.name).Inc()
		m.pub.Set(merged)
	}
	return cur
}

// MergeWithNew is a non-mutating probe: it returns the schema that would
// result from merging record into the current schema, and whether that
// differs from the current schema. Callers that want to decide before
// committing (e.g. strict-mode schema-evolution) use this instead of
// Observe.
func (m *Manager) MergeWithNew(record map[string]any) (candidate *arrow.Schema, changed bool) {
	inferred := InferRecord(record)
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	return mergeSchemas(cur, inferred)
}

// Adopt forcibly replaces the current schema, publishing the change
// unconditionally. Used when a sink loads an authoritative schema from
// persisted table metadata.
func (m *Manager) Adopt(s *arrow.Schema) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	metrics.SchemaPublications.WithLabelValues(m.name).Inc()
	m.pub.Set(s)
}

// InferRecord derives a single-record arrow.Schema using the promotion-free
// inference rules: null -> utf8, bool -> bool, integer number -> i64,
// non-integer number -> f64, string -> utf8, array -> list-of-T, nested
// object -> utf8 (serialized). Field order follows iteration of the
// record's keys, sorted for determinism (Go map iteration order is
// randomized and this schema may be compared/logged).
func InferRecord(record map[string]any) *arrow.Schema {
	names := make([]string, 0, len(record))
	for k := range record {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]arrow.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     inferType(record[name]),
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

func inferType(v any) arrow.DataType {
	switch val := v.(type) {
	case nil:
		return arrow.BinaryTypes.String
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int32, int64:
		return arrow.PrimitiveTypes.Int64
	case float32:
		return arrow.PrimitiveTypes.Float64
	case float64:
		if val == float64(int64(val)) {
			return arrow.PrimitiveTypes.Int64
		}
		return arrow.PrimitiveTypes.Float64
	case string:
		return arrow.BinaryTypes.String
	case []any:
		if len(val) == 0 {
			return arrow.ListOf(arrow.BinaryTypes.String)
		}
		return arrow.ListOf(inferType(val[0]))
	case map[string]any:
		return arrow.BinaryTypes.String
	default:
		return arrow.BinaryTypes.String
	}
}

// Merge exposes mergeSchemas for callers outside this package that need to
// union two schemas directly (e.g. sqltransform folding multiple result
// rows' inferred schemas together) without going through a Manager.
func Merge(a, b *arrow.Schema) (*arrow.Schema, bool) {
	return mergeSchemas(a, b)
}

// mergeSchemas unions the fields of a and b by name, preserving a's field
// order and appending b's new fields at the end; promotes overlapping
// field types per promoteType, and ORs nullability. It returns the merged
// schema and whether it differs from a.
func mergeSchemas(a, b *arrow.Schema) (*arrow.Schema, bool) {
	if a == nil {
		return b, true
	}
	if b == nil || len(b.Fields()) == 0 {
		return a, false
	}

	order := make([]string, 0, len(a.Fields())+len(b.Fields()))
	byName := make(map[string]arrow.Field, len(a.Fields())+len(b.Fields()))

	for _, f := range a.Fields() {
		order = append(order, f.Name)
		byName[f.Name] = f
	}

	changed := false
	for _, f := range b.Fields() {
		existing, ok := byName[f.Name]
		if !ok {
			order = append(order, f.Name)
			byName[f.Name] = f
			changed = true
			continue
		}
		promoted := promoteType(existing.Type, f.Type)
		nullable := existing.Nullable || f.Nullable
		if !arrow.TypeEqual(promoted, existing.Type) || nullable != existing.Nullable {
			byName[f.Name] = arrow.Field{Name: f.Name, Type: promoted, Nullable: nullable}
			changed = true
		}
	}

	if !changed {
		return a, false
	}

	fields := make([]arrow.Field, len(order))
	for i, name := range order {
		fields[i] = byName[name]
	}
	return arrow.NewSchema(fields, nil), true
}

// promoteType applies the widening table: (i32,i64)->i64, (f32,f64)->f64,
// (i32,f64)->f64, (i64,f64)->f64. The lossy (i64,f64) promotion is logged
// at Debug so it is auditable. Any other pairing, including a would-be
// narrowing conversion, silently keeps the existing type; it never fails.
func promoteType(existing, incoming arrow.DataType) arrow.DataType {
	if arrow.TypeEqual(existing, incoming) {
		return existing
	}

	is := func(t arrow.DataType, id arrow.Type) bool { return t.ID() == id }

	switch {
	case is(existing, arrow.INT32) && is(incoming, arrow.INT64):
		return incoming
	case is(existing, arrow.FLOAT32) && is(incoming, arrow.FLOAT64):
		return incoming
	case is(existing, arrow.INT32) && is(incoming, arrow.FLOAT64):
		return incoming
	case is(existing, arrow.INT64) && is(incoming, arrow.FLOAT64):
		log.WithFields(log.Fields{
			"from": existing.Name(), "to": incoming.Name(),
		}).Debug("schema: lossy int64->float64 promotion")
		return incoming
	default:
		return existing
	}
}

// FieldNames returns the names of s's fields, in order, for logging.
func FieldNames(s *arrow.Schema) string {
	if s == nil {
		return ""
	}
	names := make([]string, len(s.Fields()))
	for i, f := range s.Fields() {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}
