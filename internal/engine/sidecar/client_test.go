package sidecar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/engine/sidecar"
	"github.com/book-expert/voice-clone-service/internal/engine/wire"
)

const testTimeout = 5 * time.Second

func createStandardTestRequest() wire.SynthesisRequest {
	return wire.SynthesisRequest{
		RefWavPath:     "/srv/reference/reference.wav",
		PromptText:     "ずんだもんなのだ。",
		PromptLanguage: "Japanese",
		Text:           "Hello world",
		TextLanguage:   "English",
		TopP:           1,
		Temperature:    1,
	}
}

func validateSynthesisRequest(t *testing.T, request *http.Request) {
	t.Helper()

	assert.Equal(t, http.MethodPost, request.Method)
	assert.Equal(t, "/v1/synthesize", request.URL.Path)
	assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
	assert.Equal(t, "audio/wav", request.Header.Get("Accept"))

	var got wire.SynthesisRequest
	require.NoError(t, json.NewDecoder(request.Body).Decode(&got))
	assert.Equal(t, createStandardTestRequest(), got)
}

func TestHTTPClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	const testAudioData = "fake-wav-data"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		validateSynthesisRequest(t, r)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte(testAudioData))
	}))
	defer server.Close()

	client := sidecar.NewHTTPClient(server.URL+"/", testTimeout)

	audioData, err := client.Synthesize(context.Background(), createStandardTestRequest())
	require.NoError(t, err)
	assert.Equal(t, testAudioData, string(audioData))
}

func TestHTTPClient_Synthesize_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		ctype    string
		body     string
		contains string
	}{
		{
			name:     "structured error",
			status:   http.StatusBadRequest,
			ctype:    "application/json",
			body:     `{"detail":"reference clip too short","error_code":"REF_TOO_SHORT"}`,
			contains: "REF_TOO_SHORT",
		},
		{
			name:     "plain error",
			status:   http.StatusInternalServerError,
			ctype:    "text/plain",
			body:     "CUDA out of memory",
			contains: "CUDA out of memory",
		},
		{
			name:     "wrong content type",
			status:   http.StatusOK,
			ctype:    "application/json",
			body:     `{}`,
			contains: "unexpected content type",
		},
		{
			name:     "empty audio",
			status:   http.StatusOK,
			ctype:    "audio/wav",
			body:     "",
			contains: "empty audio",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", testCase.ctype)
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := sidecar.NewHTTPClient(server.URL, testTimeout)

			_, err := client.Synthesize(context.Background(), createStandardTestRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.contains)
		})
	}
}

func TestHTTPClient_Synthesize_StatusErrorsWrapService(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := sidecar.NewHTTPClient(server.URL, testTimeout)

	_, err := client.Synthesize(context.Background(), createStandardTestRequest())
	require.ErrorIs(t, err, sidecar.ErrService)
}

func TestHTTPClient_Synthesize_EmptyText(t *testing.T) {
	t.Parallel()

	client := sidecar.NewHTTPClient("http://127.0.0.1:1", testTimeout)

	_, err := client.Synthesize(context.Background(), wire.SynthesisRequest{})
	require.ErrorIs(t, err, sidecar.ErrTextEmpty)
}

func TestHTTPClient_LoadWeights(t *testing.T) {
	t.Parallel()

	var got wire.WeightsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/weights", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := sidecar.NewHTTPClient(server.URL, testTimeout)

	err := client.LoadWeights(context.Background(), wire.WeightsRequest{
		GPTWeightsPath:    "GPT_weights/zundamon.ckpt",
		SoVITSWeightsPath: "SoVITS_weights/zundamon.pth",
	})
	require.NoError(t, err)
	assert.Equal(t, "GPT_weights/zundamon.ckpt", got.GPTWeightsPath)
	assert.Equal(t, "SoVITS_weights/zundamon.pth", got.SoVITSWeightsPath)
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	require.NoError(t, sidecar.NewHTTPClient(healthy.URL, testTimeout).HealthCheck(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	require.Error(t, sidecar.NewHTTPClient(unhealthy.URL, testTimeout).HealthCheck(context.Background()))
}
