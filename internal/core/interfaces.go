// Package core defines the contracts shared between the synthesis gateway,
// the inference engine adapters and the job transport.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// WeightSet identifies the GPT and SoVITS checkpoints an engine runs with.
type WeightSet struct {
	GPTPath    string
	SoVITSPath string
}

// IsZero reports whether no checkpoint is configured.
func (w WeightSet) IsZero() bool {
	return w.GPTPath == "" && w.SoVITSPath == ""
}

// SynthesisParams is a single inference call. Languages are the canonical
// model-facing names ("Japanese", "Chinese-English Mixed"), not request codes.
type SynthesisParams struct {
	RefAudioPath   string
	PromptText     string
	PromptLanguage string
	Text           string
	TextLanguage   string
	TopP           float64
	Temperature    float64
}

// Chunk is one render produced by the engine. Samples hold integer PCM
// frames, interleaved when Channels > 1, at the scale of BitDepth: 8-bit
// samples are unsigned (0..255, silence at 128) and wider depths are signed
// two's complement. Out-of-range samples are rejected at encode time.
type Chunk struct {
	SampleRate int
	BitDepth   int
	Channels   int
	Samples    []int
}

// Engine is the external voice-cloning model. Implementations are not
// required to be safe for concurrent use; callers serialize access.
//
// Synthesize streams renders on the first channel and closes it when done.
// The error channel is buffered, carries at most one error and is closed
// before the chunk channel, so callers drain chunks first and then read it.
type Engine interface {
	LoadWeights(ctx context.Context, weights WeightSet) error
	Synthesize(ctx context.Context, params SynthesisParams) (<-chan Chunk, <-chan error)
}

// HealthChecker is implemented by engines that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
