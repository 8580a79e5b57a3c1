// Package config provides the configuration structure for the voice-clone-service.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/voice-clone-service/internal/tts"
)

// EnvPrefix prefixes every environment override, e.g. VCS_SERVER_HOST or
// VCS_TTS_TOP_P.
const EnvPrefix = "VCS"

// Error styles.
const (
	ErrorStyleDetail = "detail"
	ErrorStyleError  = "error"
)

// Engine kinds.
const (
	EngineMock = "mock"
	EngineExec = "exec"
	EngineHTTP = "http"
)

// Journal retention modes.
const (
	RetentionEphemeral  = "ephemeral"
	RetentionPersistent = "persistent"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host                     string   `toml:"host" split_words:"true"`
	CORSOrigins              []string `toml:"cors_origins" split_words:"true"`
	ErrorStyle               string   `toml:"error_style" split_words:"true"`
	MaxBodyBytes             int64    `toml:"max_body_bytes" split_words:"true"`
	ReadHeaderTimeoutSeconds int      `toml:"read_header_timeout_seconds" split_words:"true"`
	ShutdownTimeoutSeconds   int      `toml:"shutdown_timeout_seconds" split_words:"true"`
}

// TTSConfig holds the synthesis settings.
type TTSConfig struct {
	AllowAutoLanguage         bool    `toml:"allow_auto_language" split_words:"true"`
	ReferencePolicy           string  `toml:"reference_policy" split_words:"true"`
	WeightsPolicy             string  `toml:"weights_policy" split_words:"true"`
	GPTWeightsPath            string  `toml:"gpt_weights_path" split_words:"true"`
	SoVITSWeightsPath         string  `toml:"sovits_weights_path" split_words:"true"`
	DefaultReferenceAudioPath string  `toml:"default_reference_audio_path" split_words:"true"`
	DefaultReferenceTextPath  string  `toml:"default_reference_text_path" split_words:"true"`
	DefaultReferenceLanguage  string  `toml:"default_reference_language" split_words:"true"`
	TempDir                   string  `toml:"temp_dir" split_words:"true"`
	TopP                      float64 `toml:"top_p" split_words:"true"`
	Temperature               float64 `toml:"temperature" split_words:"true"`
	SynthesisTimeoutSeconds   int     `toml:"synthesis_timeout_seconds" split_words:"true"`
	NormalizeText             bool    `toml:"normalize_text" split_words:"true"`
}

// EngineConfig selects and configures the inference engine adapter.
type EngineConfig struct {
	Kind           string `toml:"kind" split_words:"true"`
	Command        string `toml:"command" split_words:"true"`
	URL            string `toml:"url" split_words:"true"`
	TimeoutSeconds int    `toml:"timeout_seconds" split_words:"true"`
	SampleRate     int    `toml:"sample_rate" split_words:"true"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled" split_words:"true"`
	Embedded               bool   `toml:"embedded" split_words:"true"`
	EmbeddedPort           int    `toml:"embedded_port" split_words:"true"`
	EmbeddedStoreDir       string `toml:"embedded_store_dir" split_words:"true"`
	URL                    string `toml:"url" split_words:"true"`
	TextProcessedSubject   string `toml:"text_processed_subject" split_words:"true"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket" split_words:"true"`
	TargetLanguage         string `toml:"target_language" split_words:"true"`
}

// JournalConfig controls the synthesis history store.
type JournalConfig struct {
	RetentionMode string `toml:"retention_mode" split_words:"true"`
	Path          string `toml:"path" split_words:"true"`
	MaxAgeDays    int    `toml:"max_age_days" split_words:"true"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `toml:"tracing_enabled" split_words:"true"`
	ServiceName    string `toml:"service_name" split_words:"true"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" split_words:"true"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" split_words:"true"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	TTS       TTSConfig       `toml:"tts"`
	Engine    EngineConfig    `toml:"engine"`
	NATS      NATSConfig      `toml:"nats"`
	Journal   JournalConfig   `toml:"journal"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Paths     PathsConfig     `toml:"paths"`
}

// Defaults returns the configuration used for every key a file leaves out.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:                     "localhost",
			CORSOrigins:              []string{"http://localhost:1420", "http://tauri.localhost"},
			ErrorStyle:               ErrorStyleDetail,
			MaxBodyBytes:             32 << 20,
			ReadHeaderTimeoutSeconds: 10,
			ShutdownTimeoutSeconds:   30,
		},
		TTS: TTSConfig{
			AllowAutoLanguage:         true,
			ReferencePolicy:           string(tts.ReferencePolicyStrict),
			WeightsPolicy:             string(tts.WeightsPreload),
			DefaultReferenceAudioPath: "reference/reference.wav",
			DefaultReferenceTextPath:  "reference/ref_text.txt",
			DefaultReferenceLanguage:  tts.DefaultReferenceLanguageCode,
			TempDir:                   os.TempDir(),
			TopP:                      1,
			Temperature:               1,
		},
		Engine: EngineConfig{
			Kind:           EngineMock,
			URL:            "http://127.0.0.1:9880",
			TimeoutSeconds: 300,
			SampleRate:     32000,
		},
		NATS: NATSConfig{
			EmbeddedPort:           4222,
			URL:                    "nats://127.0.0.1:4222",
			TextProcessedSubject:   "text.processed",
			AudioObjectStoreBucket: "AUDIO_FILES",
			TargetLanguage:         "en",
		},
		Journal: JournalConfig{
			RetentionMode: RetentionEphemeral,
			Path:          "data/journal.db",
			MaxAgeDays:    30,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voice-clone-service",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Paths: PathsConfig{
			BaseLogsDir: "logs",
		},
	}
}

// Load loads the configuration through the central configurator, then applies
// environment overrides and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Defaults()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile decodes a TOML file directly, then applies environment overrides
// and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	err := ApplyEnv(cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv loads a .env file when one exists and overrides fields from
// VCS_-prefixed environment variables.
func ApplyEnv(cfg *Config) error {
	_ = godotenv.Load()

	err := envconfig.Process(EnvPrefix, cfg)
	if err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Server.ErrorStyle {
	case ErrorStyleDetail, ErrorStyleError:
	default:
		return fmt.Errorf("%w: server.error_style %q", ErrInvalidConfig, c.Server.ErrorStyle)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: server.max_body_bytes must be positive", ErrInvalidConfig)
	}

	_, err := tts.ParseReferencePolicy(c.TTS.ReferencePolicy)
	if err != nil {
		return fmt.Errorf("%w: tts.reference_policy: %w", ErrInvalidConfig, err)
	}

	_, err = tts.ParseWeightsPolicy(c.TTS.WeightsPolicy)
	if err != nil {
		return fmt.Errorf("%w: tts.weights_policy: %w", ErrInvalidConfig, err)
	}

	if _, ok := tts.NewLanguages(false).Reference(c.TTS.DefaultReferenceLanguage); !ok {
		return fmt.Errorf("%w: tts.default_reference_language %q", ErrInvalidConfig, c.TTS.DefaultReferenceLanguage)
	}

	if c.TTS.TopP <= 0 || c.TTS.TopP > 1 {
		return fmt.Errorf("%w: tts.top_p must be in (0, 1], got %v", ErrInvalidConfig, c.TTS.TopP)
	}

	if c.TTS.Temperature <= 0 {
		return fmt.Errorf("%w: tts.temperature must be positive, got %v", ErrInvalidConfig, c.TTS.Temperature)
	}

	err = c.validateEngine()
	if err != nil {
		return err
	}

	return c.validateIntake()
}

func (c *Config) validateEngine() error {
	switch c.Engine.Kind {
	case EngineMock:
	case EngineExec:
		if c.Engine.Command == "" {
			return fmt.Errorf("%w: engine.command is required for the exec engine", ErrInvalidConfig)
		}
	case EngineHTTP:
		if c.Engine.URL == "" {
			return fmt.Errorf("%w: engine.url is required for the http engine", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: engine.kind %q", ErrInvalidConfig, c.Engine.Kind)
	}

	return nil
}

func (c *Config) validateIntake() error {
	switch c.Journal.RetentionMode {
	case RetentionEphemeral:
	case RetentionPersistent:
		if c.Journal.Path == "" {
			return fmt.Errorf("%w: journal.path is required for persistent retention", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: journal.retention_mode %q", ErrInvalidConfig, c.Journal.RetentionMode)
	}

	if !c.NATS.Enabled {
		return nil
	}

	if c.NATS.TextProcessedSubject == "" || c.NATS.AudioObjectStoreBucket == "" {
		return fmt.Errorf("%w: nats subject and bucket are required", ErrInvalidConfig)
	}

	if _, ok := tts.NewLanguages(c.TTS.AllowAutoLanguage).Target(c.NATS.TargetLanguage); !ok {
		return fmt.Errorf("%w: nats.target_language %q", ErrInvalidConfig, c.NATS.TargetLanguage)
	}

	return nil
}
