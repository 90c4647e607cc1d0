package passthrough

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

func TestForwardsMessagesAndEos(t *testing.T) {
	r := require.New(t)
	tr := New("pt", nil)

	in := make(chan message.Message, 4)
	out := make(chan message.Message, 4)

	in <- message.NewWatermarkMessage(100)
	in <- message.Eos
	close(in)

	stop := stopper.WithContext(context.Background())
	err := tr.Run(context.Background(), in, out, stop)
	r.NoError(err)

	close(out)
	var got []message.Message
	for m := range out {
		got = append(got, m)
	}
	r.Len(got, 2)
	r.True(got[0].IsWatermark())
	r.Equal(int64(100), got[0].Watermark)
	r.True(got[1].IsEos())
}

func TestStopsOnCancellation(t *testing.T) {
	r := require.New(t)
	tr := New("pt", nil)

	in := make(chan message.Message)
	out := make(chan message.Message)

	stop := stopper.WithContext(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background(), in, out, stop) }()

	stop.Stop(0)

	select {
	case err := <-done:
		r.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("transform did not stop")
	}
}
