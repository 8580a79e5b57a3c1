// Package config_test tests the configuration loading for the voice-clone-service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/config"
)

const tomlData = `
[server]
host = "0.0.0.0"
cors_origins = ["http://localhost:1420"]
error_style = "error"

[tts]
reference_policy = "legacy"
weights_policy = "per_request"
gpt_weights_path = "GPT_weights_v2/zundamon-e15.ckpt"
sovits_weights_path = "SoVITS_weights_v2/zundamon_e8_s96.pth"
default_reference_audio_path = "reference/reference.wav"
default_reference_text_path = "reference/reference.txt"
synthesis_timeout_seconds = 120

[engine]
kind = "http"
url = "http://127.0.0.1:9880"

[nats]
enabled = true
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"
audio_object_store_bucket = "AUDIO_FILES"
target_language = "ja"

[journal]
retention_mode = "persistent"
path = "data/journal.db"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestConfigDecodesSections(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"http://localhost:1420"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "error", cfg.Server.ErrorStyle)
	assert.Equal(t, "legacy", cfg.TTS.ReferencePolicy)
	assert.Equal(t, "per_request", cfg.TTS.WeightsPolicy)
	assert.Equal(t, "GPT_weights_v2/zundamon-e15.ckpt", cfg.TTS.GPTWeightsPath)
	assert.Equal(t, 120, cfg.TTS.SynthesisTimeoutSeconds)
	assert.Equal(t, "http", cfg.Engine.Kind)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "ja", cfg.NATS.TargetLanguage)
	assert.Equal(t, "persistent", cfg.Journal.RetentionMode)

	// Keys the file leaves out keep their defaults.
	assert.True(t, cfg.TTS.AllowAutoLanguage)
	assert.InDelta(t, 1.0, cfg.TTS.TopP, 1e-9)
	assert.Equal(t, "ja", cfg.TTS.DefaultReferenceLanguage)
	assert.Equal(t, 300, cfg.Engine.TimeoutSeconds)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.LoadFile(writeConfig(t, tomlData))
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Server.ErrorStyle)
	assert.Equal(t, "reference/reference.txt", cfg.TTS.DefaultReferenceTextPath)
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("VCS_SERVER_HOST", "127.0.0.1")
	t.Setenv("VCS_SERVER_CORS_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("VCS_TTS_TOP_P", "0.8")
	t.Setenv("VCS_ENGINE_KIND", "mock")

	cfg, err := config.LoadFile(writeConfig(t, tomlData))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.8, cfg.TTS.TopP, 1e-9)
	assert.Equal(t, "mock", cfg.Engine.Kind)
	assert.Equal(t, "data/journal.db", cfg.Journal.Path)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = config.LoadFile(writeConfig(t, "[server\nhost ="))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{name: "error style", mutate: func(cfg *config.Config) { cfg.Server.ErrorStyle = "problem+json" }},
		{name: "body limit", mutate: func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 0 }},
		{name: "reference policy", mutate: func(cfg *config.Config) { cfg.TTS.ReferencePolicy = "lenient" }},
		{name: "weights policy", mutate: func(cfg *config.Config) { cfg.TTS.WeightsPolicy = "lazy" }},
		{name: "default reference language", mutate: func(cfg *config.Config) { cfg.TTS.DefaultReferenceLanguage = "ja+en" }},
		{name: "top_p", mutate: func(cfg *config.Config) { cfg.TTS.TopP = 1.5 }},
		{name: "temperature", mutate: func(cfg *config.Config) { cfg.TTS.Temperature = 0 }},
		{name: "engine kind", mutate: func(cfg *config.Config) { cfg.Engine.Kind = "cuda" }},
		{name: "exec without command", mutate: func(cfg *config.Config) { cfg.Engine.Kind = config.EngineExec }},
		{name: "http without url", mutate: func(cfg *config.Config) {
			cfg.Engine.Kind = config.EngineHTTP
			cfg.Engine.URL = ""
		}},
		{name: "retention mode", mutate: func(cfg *config.Config) { cfg.Journal.RetentionMode = "forever" }},
		{name: "nats target language", mutate: func(cfg *config.Config) {
			cfg.NATS.Enabled = true
			cfg.NATS.TargetLanguage = "xx"
		}},
	}

	defaults := config.Defaults()
	require.NoError(t, defaults.Validate())

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Defaults()
			testCase.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}
