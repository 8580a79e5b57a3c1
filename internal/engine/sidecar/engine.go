package sidecar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine/wire"
	"github.com/book-expert/voice-clone-service/internal/tts/audio"
)

// HealthCheckTimeout bounds a single health check.
const HealthCheckTimeout = 10 * time.Second

const (
	errFmtHealthCheckFailed = "model service health check failed: %w"
	errFmtSynthesisFailed   = "failed to synthesize speech: %w"
	errFmtDecodeAudio       = "failed to decode model service audio: %w"
	logFmtWeightsSwitched   = "Model service switched weights gpt=%s sovits=%s"
	logFmtGeneratedAudio    = "Model service returned %d bytes of audio"
)

// Engine implements core.Engine on top of the sidecar API. The sidecar
// returns the whole render at once, so every call yields a single chunk.
type Engine struct {
	client *HTTPClient
	logger *logger.Logger

	mu      sync.Mutex
	weights core.WeightSet
}

// NewEngine creates an engine for the sidecar at baseURL.
func NewEngine(baseURL string, timeout time.Duration, log *logger.Logger) *Engine {
	return NewEngineWithClient(NewHTTPClient(baseURL, timeout), log)
}

// NewEngineWithClient creates an engine around an existing client.
func NewEngineWithClient(client *HTTPClient, log *logger.Logger) *Engine {
	return &Engine{client: client, logger: log}
}

// LoadWeights switches the sidecar's checkpoints.
func (e *Engine) LoadWeights(ctx context.Context, weights core.WeightSet) error {
	err := e.client.LoadWeights(ctx, wire.NewWeightsRequest(weights))
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.weights = weights
	e.mu.Unlock()

	e.logger.Info(logFmtWeightsSwitched, weights.GPTPath, weights.SoVITSPath)

	return nil
}

// HealthCheck calls the sidecar's health endpoint.
func (e *Engine) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := e.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf(errFmtHealthCheckFailed, err)
	}

	return nil
}

// Synthesize requests one render and emits it as a single chunk.
func (e *Engine) Synthesize(ctx context.Context, params core.SynthesisParams) (<-chan core.Chunk, <-chan error) {
	chunks := make(chan core.Chunk, 1)
	errs := make(chan error, 1)

	e.mu.Lock()
	request := wire.NewSynthesisRequest(params, e.weights)
	e.mu.Unlock()

	go func() {
		defer close(chunks)
		defer close(errs)

		chunk, err := e.render(ctx, request)
		if err != nil {
			errs <- err

			return
		}

		chunks <- chunk
	}()

	return chunks, errs
}

func (e *Engine) render(ctx context.Context, request wire.SynthesisRequest) (core.Chunk, error) {
	audioData, err := e.client.Synthesize(ctx, request)
	if err != nil {
		return core.Chunk{}, fmt.Errorf(errFmtSynthesisFailed, err)
	}

	e.logger.Info(logFmtGeneratedAudio, len(audioData))

	chunk, err := audio.DecodeWAV(audioData)
	if err != nil {
		return core.Chunk{}, fmt.Errorf(errFmtDecodeAudio, err)
	}

	return chunk, nil
}
