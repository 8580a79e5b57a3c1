package sidecar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine/sidecar"
	"github.com/book-expert/voice-clone-service/internal/engine/wire"
	"github.com/book-expert/voice-clone-service/internal/tts/audio"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

// fakeSidecar records the last weights and synthesis request it received.
type fakeSidecar struct {
	mu      sync.Mutex
	weights wire.WeightsRequest
	request wire.SynthesisRequest
	wav     []byte
}

func (f *fakeSidecar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/health":
		w.WriteHeader(http.StatusOK)
	case "/v1/weights":
		_ = json.NewDecoder(r.Body).Decode(&f.weights)
		w.WriteHeader(http.StatusOK)
	case "/v1/synthesize":
		_ = json.NewDecoder(r.Body).Decode(&f.request)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(f.wav)
	default:
		http.NotFound(w, r)
	}
}

func TestEngine_SynthesizeDecodesWAV(t *testing.T) {
	t.Parallel()

	render := core.Chunk{SampleRate: 32000, BitDepth: 16, Channels: 1, Samples: []int{0, 100, -100, 32767, -32768}}
	wav, err := audio.EncodeWAV(render)
	require.NoError(t, err)

	fake := &fakeSidecar{wav: wav}
	server := httptest.NewServer(fake)
	defer server.Close()

	engine := sidecar.NewEngine(server.URL, testTimeout, createTestLogger(t))

	weights := core.WeightSet{GPTPath: "gpt.ckpt", SoVITSPath: "sovits.pth"}
	require.NoError(t, engine.LoadWeights(context.Background(), weights))
	require.NoError(t, engine.HealthCheck(context.Background()))

	params := core.SynthesisParams{
		RefAudioPath:   "/tmp/ref.wav",
		PromptText:     "Hello",
		PromptLanguage: "English",
		Text:           "Good morning",
		TextLanguage:   "English",
		TopP:           1,
		Temperature:    1,
	}

	chunks, errs := engine.Synthesize(context.Background(), params)

	var received []core.Chunk
	for chunk := range chunks {
		received = append(received, chunk)
	}

	require.NoError(t, <-errs)
	require.Len(t, received, 1)
	assert.Equal(t, render, received[0])

	assert.Equal(t, "gpt.ckpt", fake.weights.GPTWeightsPath)
	assert.Equal(t, wire.NewSynthesisRequest(params, weights), fake.request)
}

func TestEngine_SynthesizeRejectsNonWAV(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(&fakeSidecar{wav: []byte("definitely not riff")})
	defer server.Close()

	engine := sidecar.NewEngine(server.URL, testTimeout, createTestLogger(t))

	chunks, errs := engine.Synthesize(context.Background(), core.SynthesisParams{Text: "x"})
	for range chunks {
		t.Fatal("no chunk expected")
	}

	require.ErrorIs(t, <-errs, audio.ErrNotWAV)
}

func TestEngine_LoadWeightsFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"checkpoint not found","error_code":"NO_CKPT"}`))
	}))
	defer server.Close()

	engine := sidecar.NewEngine(server.URL, testTimeout, createTestLogger(t))

	err := engine.LoadWeights(context.Background(), core.WeightSet{GPTPath: "missing.ckpt"})
	require.ErrorIs(t, err, sidecar.ErrService)
	assert.Contains(t, err.Error(), "checkpoint not found")
}

func TestEngine_HealthCheckUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	engine := sidecar.NewEngine(server.URL, testTimeout, createTestLogger(t))
	require.Error(t, engine.HealthCheck(context.Background()))
}
