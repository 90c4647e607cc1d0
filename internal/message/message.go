// Package message defines the unit of flow between pipeline operators: a
// tagged union of a columnar data batch, a progress watermark, or a stream
// terminator.
package message

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Kind distinguishes the three Message variants.
type Kind int

const (
	KindBatch Kind = iota
	KindWatermark
	KindEos
)

func (k Kind) String() string {
	switch k {
	case KindBatch:
		return "batch"
	case KindWatermark:
		return "watermark"
	case KindEos:
		return "eos"
	default:
		return "unknown"
	}
}

// Batch wraps an arrow.Record with the reference-counting discipline arrow
// requires: Retain on share, Release on drop.
type Batch struct {
	Record arrow.Record
}

// NewBatch retains rec and returns a Batch owning that reference.
func NewBatch(rec arrow.Record) Batch {
	rec.Retain()
	return Batch{Record: rec}
}

// Release drops the batch's reference to its underlying record.
func (b Batch) Release() {
	if b.Record != nil {
		b.Record.Release()
	}
}

// NumRows returns the row count, or 0 for a nil record.
func (b Batch) NumRows() int64 {
	if b.Record == nil {
		return 0
	}
	return b.Record.NumRows()
}

// Schema returns the batch's schema, or nil for a nil record.
func (b Batch) Schema() *arrow.Schema {
	if b.Record == nil {
		return nil
	}
	return b.Record.Schema()
}

// Message is the tagged union flowing through pipeline channels.
type Message struct {
	Kind      Kind
	Batch     Batch
	Watermark int64 // epoch milliseconds, valid when Kind == KindWatermark
}

// NewBatchMessage wraps rec as a Batch message, retaining rec.
func NewBatchMessage(rec arrow.Record) Message {
	return Message{Kind: KindBatch, Batch: NewBatch(rec)}
}

// NewWatermarkMessage builds a watermark message at the given epoch-ms time.
func NewWatermarkMessage(epochMs int64) Message {
	return Message{Kind: KindWatermark, Watermark: epochMs}
}

// Eos is the single terminator message value.
var Eos = Message{Kind: KindEos}

// IsBatch reports whether m carries a data batch.
func (m Message) IsBatch() bool { return m.Kind == KindBatch }

// IsWatermark reports whether m carries a progress watermark.
func (m Message) IsWatermark() bool { return m.Kind == KindWatermark }

// IsEos reports whether m is the stream terminator.
func (m Message) IsEos() bool { return m.Kind == KindEos }

// Release drops the message's batch reference, if any. Safe to call on any
// Message kind.
func (m Message) Release() {
	if m.Kind == KindBatch {
		m.Batch.Release()
	}
}
