package jsonflatten

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

func TestFlattenIntoJoinsNestedKeys(t *testing.T) {
	r := require.New(t)
	tr := New("flatten", Options{Separator: "_", MaxDepth: 5})

	dst := map[string]any{}
	tr.flattenInto(dst, "", map[string]any{
		"user": map[string]any{"id": int64(1), "name": "a"},
		"tag":  "top",
	}, 1)

	r.Equal(int64(1), dst["user_id"])
	r.Equal("a", dst["user_name"])
	r.Equal("top", dst["tag"])
}

func TestFlattenIntoRespectsMaxDepth(t *testing.T) {
	r := require.New(t)
	tr := New("flatten", Options{Separator: ".", MaxDepth: 1})

	dst := map[string]any{}
	tr.flattenInto(dst, "", map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}},
	}, 1)

	// At depth 1 with MaxDepth 1, the nested value under "a" is truncated
	// to its string form rather than recursed into further.
	_, isString := dst["a"].(string)
	r.True(isString)
}

func TestRunForwardsEos(t *testing.T) {
	r := require.New(t)
	tr := New("flatten", Options{})

	in := make(chan message.Message, 1)
	out := make(chan message.Message, 1)
	in <- message.Eos
	close(in)

	stop := stopper.WithContext(context.Background())
	r.NoError(tr.Run(context.Background(), in, out, stop))
	close(out)
	last := <-out
	r.True(last.IsEos())
}
