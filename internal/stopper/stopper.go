// Package stopper implements the hierarchical cancellation token shared by
// every operator goroutine in a running pipeline. It layers a graceful,
// drain-with-timeout shutdown on top of an errgroup-supervised goroutine
// set, matching the call shape used throughout the cdc-sink codebase
// (ctx.Go, ctx.Stopping(), ctx.Done(), ctx.Stop(grace)).
package stopper

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Context is a cancellable, task-tracking scope. The zero value is not
// usable; construct one with WithContext.
type Context struct {
	context.Context

	group    *errgroup.Group
	stopping chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	done bool
}

// WithContext derives a stopper Context from a parent context.Context.
func WithContext(parent context.Context) *Context {
	group, gctx := errgroup.WithContext(parent)
	return &Context{
		Context:  gctx,
		group:    group,
		stopping: make(chan struct{}),
	}
}

// Go launches fn in a tracked goroutine. The first non-nil error returned by
// any tracked goroutine cancels Done() for the whole Context and closes
// Stopping(), so the remaining goroutines wind down.
func (c *Context) Go(fn func() error) {
	c.group.Go(func() error {
		err := fn()
		if err != nil {
			c.stopOnce.Do(func() { close(c.stopping) })
		}
		return err
	})
}

// Stopping returns a channel that closes when Stop is first called or when
// a tracked goroutine returns an error.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Stop requests a graceful shutdown: it closes Stopping() so that
// goroutines selecting on it begin winding down, then waits up to grace for
// every tracked goroutine to return. It returns the first error reported by
// any goroutine, or a timeout error if grace elapses first.
func (c *Context) Stop(grace time.Duration) error {
	c.stopOnce.Do(func() { close(c.stopping) })

	waitErr := make(chan error, 1)
	go func() { waitErr <- c.group.Wait() }()

	if grace <= 0 {
		return <-waitErr
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-waitErr:
		c.markDone()
		return err
	case <-timer.C:
		c.markDone()
		return errors.Errorf("stopper: grace period of %s elapsed before all tasks returned", grace)
	}
}

// Wait blocks until every tracked goroutine returns and reports the first
// error, if any, without requesting shutdown.
func (c *Context) Wait() error {
	err := c.group.Wait()
	c.markDone()
	return err
}

func (c *Context) markDone() {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
}

// IsDone reports whether Stop or Wait has already returned.
func (c *Context) IsDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
