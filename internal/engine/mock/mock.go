// Package mock provides a deterministic in-process engine for development
// runs and tests.
package mock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/book-expert/voice-clone-service/internal/core"
)

const (
	defaultSampleRate = 32000
	defaultChunks     = 3
	samplesPerRune    = 800
	toneHz            = 220.0
	amplitude         = 8000.0
)

// Options configures the mock engine.
type Options struct {
	SampleRate int
	Chunks     int
	Delay      time.Duration
}

// Engine renders a sine tone whose length follows the target text. It emits
// progressively longer renders, the last one being complete.
type Engine struct {
	opts Options

	mu      sync.Mutex
	weights core.WeightSet
	calls   []core.SynthesisParams
	loads   int
	active  int
	overlap bool
}

// New creates a mock engine.
func New(opts Options) *Engine {
	if opts.SampleRate == 0 {
		opts.SampleRate = defaultSampleRate
	}

	if opts.Chunks == 0 {
		opts.Chunks = defaultChunks
	}

	return &Engine{opts: opts}
}

// LoadWeights records the requested checkpoints.
func (e *Engine) LoadWeights(_ context.Context, weights core.WeightSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.weights = weights
	e.loads++

	return nil
}

// Synthesize streams Options.Chunks renders after Options.Delay.
func (e *Engine) Synthesize(ctx context.Context, params core.SynthesisParams) (<-chan core.Chunk, <-chan error) {
	chunks := make(chan core.Chunk)
	errs := make(chan error, 1)

	e.enter(params)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.leave()

		if e.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			case <-time.After(e.opts.Delay):
			}
		}

		total := len([]rune(params.Text)) * samplesPerRune
		for i := 1; i <= e.opts.Chunks; i++ {
			select {
			case chunks <- e.render(total * i / e.opts.Chunks):
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}
	}()

	return chunks, errs
}

// HealthCheck always succeeds.
func (e *Engine) HealthCheck(context.Context) error {
	return nil
}

// Calls returns the parameters of every synthesis so far.
func (e *Engine) Calls() []core.SynthesisParams {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]core.SynthesisParams(nil), e.calls...)
}

// WeightLoads returns how many times LoadWeights ran and the last weights.
func (e *Engine) WeightLoads() (int, core.WeightSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loads, e.weights
}

// Overlapped reports whether two synthesis calls were ever in flight at once.
func (e *Engine) Overlapped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.overlap
}

func (e *Engine) enter(params core.SynthesisParams) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, params)
	e.active++

	if e.active > 1 {
		e.overlap = true
	}
}

func (e *Engine) leave() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.active--
}

func (e *Engine) render(length int) core.Chunk {
	samples := make([]int, length)
	step := 2 * math.Pi * toneHz / float64(e.opts.SampleRate)

	for i := range samples {
		samples[i] = int(amplitude * math.Sin(step*float64(i)))
	}

	return core.Chunk{
		SampleRate: e.opts.SampleRate,
		BitDepth:   16,
		Channels:   1,
		Samples:    samples,
	}
}
