package tts

import (
	"context"
	"sync/atomic"

	"github.com/book-expert/voice-clone-service/internal/metrics"
)

// guard is the single-slot lock around the engine. Unlike sync.Mutex a
// waiter can give up when its context ends.
type guard struct {
	slot    chan struct{}
	pending atomic.Int64
}

func newGuard() *guard {
	return &guard{slot: make(chan struct{}, 1)}
}

func (g *guard) acquire(ctx context.Context) error {
	metrics.SetQueueDepth(int(g.pending.Add(1)))
	defer func() { metrics.SetQueueDepth(int(g.pending.Add(-1))) }()

	select {
	case g.slot <- struct{}{}:
		metrics.SetEngineBusy(true)

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *guard) release() {
	metrics.SetEngineBusy(false)
	<-g.slot
}

func (g *guard) busy() bool {
	return len(g.slot) == 1
}

func (g *guard) waiting() int {
	return int(g.pending.Load())
}
