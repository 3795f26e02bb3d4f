// Package safe provides a panic-recovering goroutine group used by
// internal/app to supervise the HTTP server and the dispatcher run-loop.
package safe

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Group is an errgroup.Group analogue that also recovers panics, logs
// them, and cancels the group's context instead of crashing the process.
type Group struct {
	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
	log    *zap.Logger
}

// New creates a Group bound to ctx.
func New(ctx context.Context, log *zap.Logger) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel, log: log.Named("safe")}
}

// Go runs fn in a supervised goroutine.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.recoverPanic()
		if err := fn(g.ctx); err != nil {
			g.log.Error("goroutine error", zap.Error(err))
			g.cancel()
		}
	}()
}

// Wait blocks until every supervised goroutine has returned.
func (g *Group) Wait() { g.wg.Wait() }

// Context returns the group's derived context.
func (g *Group) Context() context.Context { return g.ctx }

func (g *Group) recoverPanic() {
	if r := recover(); r != nil {
		g.log.Error("panic recovered", zap.Any("panic", r))
		g.cancel()
	}
}
