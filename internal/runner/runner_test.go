package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/stopper"
)

func TestEndToEndCSVToStdout(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	r.NoError(os.WriteFile(csvPath, []byte("id,name\n1,alice\n2,bob\n"), 0o644))

	spec := &Spec{
		Name: "csv-to-stdout",
		Sources: []SourceSpec{{
			Type: "file_csv", ID: "src", Path: csvPath, HasHeader: true, BatchRows: 10,
		}},
		Transforms: []TransformSpec{{Type: "passthrough", ID: "pt"}},
		Sinks:      []SinkSpec{{Type: "stdout_pretty", ID: "out"}},
	}

	run, err := New(spec, 4)
	r.NoError(err)

	stop := stopper.WithContext(context.Background())
	done := make(chan error, 1)
	go func() { done <- run.Run(context.Background(), stop) }()

	select {
	case err := <-done:
		r.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not complete")
	}
}

func TestGracefulStopReturnsCleanlyOnCancellation(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	// A handful of rows, enough that the source is still streaming when
	// Stop fires below.
	r.NoError(os.WriteFile(csvPath, []byte("id,name\n1,a\n2,b\n3,c\n4,d\n5,e\n"), 0o644))

	spec := &Spec{
		Name: "csv-to-stdout-cancel",
		Sources: []SourceSpec{{
			Type: "file_csv", ID: "src", Path: csvPath, HasHeader: true, BatchRows: 1,
		}},
		Transforms: []TransformSpec{{Type: "passthrough", ID: "pt"}},
		Sinks:      []SinkSpec{{Type: "stdout_pretty", ID: "out"}},
	}

	run, err := New(spec, 1)
	r.NoError(err)

	// Operators must honor stop.Stopping() exclusively: ctx here is a
	// plain, never-cancelled context (mirroring cmd/pipeline's runCtx), so
	// a clean return on Stop proves shutdown doesn't depend on ctx.Done().
	stop := stopper.WithContext(context.Background())
	done := make(chan error, 1)
	go func() { done <- run.Run(context.Background(), stop) }()

	r.NoError(stop.Stop(2 * time.Second))
	select {
	case err := <-done:
		r.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not drain after Stop")
	}
}

func TestLoadSpecRejectsMultipleSources(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.yaml")
	r.NoError(os.WriteFile(path, []byte(`
name: bad
sources:
  - type: file_csv
    id: a
    path: "*.csv"
  - type: file_csv
    id: b
    path: "*.csv"
sinks:
  - type: stdout_pretty
    id: out
`), 0o644))

	_, err := LoadSpec(path)
	r.Error(err)
}
