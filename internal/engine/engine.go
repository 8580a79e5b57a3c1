// Package engine builds the configured inference engine adapter.
package engine

import (
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine/mock"
	"github.com/book-expert/voice-clone-service/internal/engine/sidecar"
	"github.com/book-expert/voice-clone-service/internal/engine/subprocess"
)

// New returns the adapter selected by cfg.Kind.
func New(cfg config.EngineConfig, log *logger.Logger) (core.Engine, error) {
	switch cfg.Kind {
	case config.EngineMock:
		return mock.New(mock.Options{SampleRate: cfg.SampleRate}), nil
	case config.EngineExec:
		engine, err := subprocess.New(cfg.Command, cfg.SampleRate, log)
		if err != nil {
			return nil, fmt.Errorf("exec engine: %w", err)
		}

		return engine, nil
	case config.EngineHTTP:
		return sidecar.NewEngine(cfg.URL, time.Duration(cfg.TimeoutSeconds)*time.Second, log), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}
