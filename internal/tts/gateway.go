// Package tts validates synthesis requests and runs them, one at a time,
// against the single shared inference engine.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/metrics"
	"github.com/book-expert/voice-clone-service/internal/tts/audio"
	"github.com/book-expert/voice-clone-service/internal/tts/text"
)

const (
	tracerName        = "github.com/book-expert/voice-clone-service/internal/tts"
	tempAudioPattern  = "vcs-ref-*.wav"
	defaultSampleTopP = 1.0
	defaultSampleTemp = 1.0
)

// Log formats.
const (
	logFmtWeightsLoaded     = "Loaded weights gpt=%s sovits=%s"
	logFmtSynthesisDone     = "Synthesis %s finished: %d chunk(s), %d samples at %d Hz, engine %s, waited %s"
	logFmtSynthesisEmpty    = "Synthesis %s produced no audio"
	logFmtEngineFailed      = "Synthesis %s engine failure: %v"
	logFmtRecordFailed      = "Failed to record synthesis %s: %v"
	logFmtTempRemoveFailed  = "Failed to remove temp reference audio '%s': %v"
	logFmtSynthesisAbandons = "Synthesis %s abandoned while waiting for the engine: %v"
)

// WeightsPolicy controls when checkpoints are (re)loaded into the engine.
type WeightsPolicy string

const (
	// WeightsPreload loads the configured checkpoints once at startup.
	WeightsPreload WeightsPolicy = "preload"
	// WeightsPerRequest reloads the checkpoints inside every synthesis call.
	WeightsPerRequest WeightsPolicy = "per_request"
	// WeightsNone leaves whatever the engine loaded by itself.
	WeightsNone WeightsPolicy = "none"
)

// ParseWeightsPolicy validates a configured policy name.
func ParseWeightsPolicy(name string) (WeightsPolicy, error) {
	switch policy := WeightsPolicy(name); policy {
	case WeightsPreload, WeightsPerRequest, WeightsNone:
		return policy, nil
	case "":
		return WeightsPreload, nil
	default:
		return "", fmt.Errorf("unknown weights policy %q", name)
	}
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Languages                 Languages
	WeightsPolicy             WeightsPolicy
	Weights                   core.WeightSet
	DefaultReferenceAudioPath string
	DefaultReferenceTextPath  string
	DefaultReferenceLanguage  string
	TempDir                   string
	TopP                      float64
	Temperature               float64

	// SynthesisTimeout bounds a single engine call. Zero waits forever.
	SynthesisTimeout time.Duration

	// Normalizer, when set, tidies target text and transcripts.
	Normalizer *text.Preprocessor

	// Recorder, when set, receives one record per finished synthesis.
	Recorder Recorder
}

// Job is one validated synthesis call.
type Job struct {
	ID       string
	Source   string
	Request  SynthesisRequest
	RefAudio []byte
}

// Record summarizes a finished synthesis.
type Record struct {
	RequestID         string
	Source            string
	TargetLanguage    string
	ReferenceLanguage string
	CustomReference   bool
	Outcome           string
	Duration          time.Duration
	SampleRate        int
	SampleCount       int
}

// Recorder persists synthesis records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Gateway owns the inference engine and serializes every call into it.
type Gateway struct {
	engine core.Engine
	opts   GatewayOptions
	guard  *guard
	log    *logger.Logger
	tracer trace.Tracer
}

// NewGateway wraps an engine. The engine must not be shared with any other
// gateway.
func NewGateway(engine core.Engine, opts GatewayOptions, log *logger.Logger) *Gateway {
	if opts.DefaultReferenceLanguage == "" {
		opts.DefaultReferenceLanguage = DefaultReferenceLanguageCode
	}

	if opts.TopP == 0 {
		opts.TopP = defaultSampleTopP
	}

	if opts.Temperature == 0 {
		opts.Temperature = defaultSampleTemp
	}

	if opts.WeightsPolicy == "" {
		opts.WeightsPolicy = WeightsPreload
	}

	return &Gateway{
		engine: engine,
		opts:   opts,
		guard:  newGuard(),
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
}

// Engine returns the wrapped engine.
func (g *Gateway) Engine() core.Engine {
	return g.engine
}

// Busy reports whether a synthesis currently holds the engine.
func (g *Gateway) Busy() bool {
	return g.guard.busy()
}

// QueueDepth returns the number of callers waiting for the engine.
func (g *Gateway) QueueDepth() int {
	return g.guard.waiting()
}

// Preload loads the configured weights when the policy asks for it.
func (g *Gateway) Preload(ctx context.Context) error {
	if g.opts.WeightsPolicy != WeightsPreload || g.opts.Weights.IsZero() {
		return nil
	}

	err := g.guard.acquire(ctx)
	if err != nil {
		return fmt.Errorf("wait for engine: %w", err)
	}
	defer g.guard.release()

	return g.loadWeights(ctx)
}

// Synthesize runs one job and returns the final render. Waiting callers
// leave the queue when ctx ends; a call that reached the engine runs to
// completion (or to SynthesisTimeout) regardless of ctx.
func (g *Gateway) Synthesize(ctx context.Context, job Job) (core.Chunk, error) {
	ctx, span := g.tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("request.id", job.ID),
		attribute.String("request.source", job.Source),
		attribute.String("target.language", job.Request.TargetLanguage),
		attribute.Bool("reference.custom", len(job.RefAudio) > 0),
	))
	defer span.End()

	start := time.Now()

	chunk, err := g.synthesize(ctx, job)

	duration := time.Since(start)
	outcome := Outcome(err)

	metrics.RecordSynthesis(job.Source, outcome, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	g.record(ctx, job, outcome, duration, chunk)

	return chunk, err
}

func (g *Gateway) synthesize(ctx context.Context, job Job) (core.Chunk, error) {
	params, err := g.buildParams(job)
	if err != nil {
		return core.Chunk{}, err
	}

	if len(job.RefAudio) > 0 {
		path, cleanup, tempErr := g.materialize(job.RefAudio)
		if tempErr != nil {
			return core.Chunk{}, fmt.Errorf("%w: %w", ErrEngineFailure, tempErr)
		}
		defer cleanup()

		params.RefAudioPath = path
	}

	waitStart := time.Now()

	err = g.guard.acquire(ctx)
	if err != nil {
		g.log.Warn(logFmtSynthesisAbandons, job.ID, err)

		return core.Chunk{}, fmt.Errorf("wait for engine: %w", err)
	}
	defer g.guard.release()

	waited := time.Since(waitStart)
	metrics.ObserveGuardWait(waited)

	engineCtx := context.WithoutCancel(ctx)

	if g.opts.SynthesisTimeout > 0 {
		var cancel context.CancelFunc

		engineCtx, cancel = context.WithTimeout(engineCtx, g.opts.SynthesisTimeout)
		defer cancel()
	}

	if g.opts.WeightsPolicy == WeightsPerRequest && !g.opts.Weights.IsZero() {
		err = g.loadWeights(engineCtx)
		if err != nil {
			g.log.Error(logFmtEngineFailed, job.ID, err)

			return core.Chunk{}, fmt.Errorf("%w: %w", ErrEngineFailure, err)
		}
	}

	engineStart := time.Now()

	last, count, err := g.drain(engineCtx, params)

	engineTime := time.Since(engineStart)
	metrics.ObserveEngine(engineTime)

	if err != nil {
		g.log.Error(logFmtEngineFailed, job.ID, err)

		return core.Chunk{}, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	if count == 0 {
		g.log.Warn(logFmtSynthesisEmpty, job.ID)

		return core.Chunk{}, ErrSynthesisFailed
	}

	last = audio.Normalize(last)

	g.log.Info(logFmtSynthesisDone, job.ID, count, len(last.Samples), last.SampleRate, engineTime, waited)

	return last, nil
}

// drain consumes the whole render stream and keeps only the final chunk.
func (g *Gateway) drain(ctx context.Context, params core.SynthesisParams) (core.Chunk, int, error) {
	ctx, span := g.tracer.Start(ctx, "tts.engine")
	defer span.End()

	chunks, errs := g.engine.Synthesize(ctx, params)

	var (
		last  core.Chunk
		count int
	)

	for chunk := range chunks {
		last = chunk
		count++
	}

	err := <-errs
	if err != nil {
		span.RecordError(err)

		return core.Chunk{}, count, err
	}

	span.SetAttributes(attribute.Int("engine.chunks", count))

	return last, count, nil
}

func (g *Gateway) buildParams(job Job) (core.SynthesisParams, error) {
	req := job.Request

	targetName, ok := g.opts.Languages.Target(req.TargetLanguage)
	if !ok {
		return core.SynthesisParams{}, fmt.Errorf("%w: %q", ErrInvalidTargetLanguage, req.TargetLanguage)
	}

	params := core.SynthesisParams{
		RefAudioPath: g.opts.DefaultReferenceAudioPath,
		Text:         g.normalize(req.Text, targetName),
		TextLanguage: targetName,
		TopP:         g.opts.TopP,
		Temperature:  g.opts.Temperature,
	}

	if req.ReferenceLanguage != "" {
		refName, refOK := g.opts.Languages.Reference(req.ReferenceLanguage)
		if !refOK {
			return core.SynthesisParams{}, fmt.Errorf("%w: %q", ErrInvalidReferenceLanguage, req.ReferenceLanguage)
		}

		params.PromptText = g.normalize(req.ReferenceText, refName)
		params.PromptLanguage = refName

		return params, nil
	}

	refName, refOK := g.opts.Languages.Reference(g.opts.DefaultReferenceLanguage)
	if !refOK {
		return core.SynthesisParams{}, fmt.Errorf("%w: default reference language %q",
			ErrEngineFailure, g.opts.DefaultReferenceLanguage)
	}

	transcript, err := os.ReadFile(g.opts.DefaultReferenceTextPath)
	if err != nil {
		return core.SynthesisParams{}, fmt.Errorf("%w: read default reference transcript: %w", ErrEngineFailure, err)
	}

	params.PromptText = g.normalize(string(transcript), refName)
	params.PromptLanguage = refName

	return params, nil
}

// materialize writes uploaded audio to a temp file the engine can open. The
// returned cleanup removes it.
func (g *Gateway) materialize(data []byte) (string, func(), error) {
	tempFile, err := os.CreateTemp(g.opts.TempDir, tempAudioPattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file for reference audio: %w", err)
	}

	path := tempFile.Name()

	cleanup := func() {
		removeErr := os.Remove(path)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			g.log.Warn(logFmtTempRemoveFailed, path, removeErr)
		}
	}

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		cleanup()

		return "", nil, fmt.Errorf("write reference audio: %w", err)
	}

	return path, cleanup, nil
}

func (g *Gateway) loadWeights(ctx context.Context) error {
	err := g.engine.LoadWeights(ctx, g.opts.Weights)
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}

	g.log.Info(logFmtWeightsLoaded, g.opts.Weights.GPTPath, g.opts.Weights.SoVITSPath)

	return nil
}

// normalize tidies s for the engine. English text also gets ASCII dashes and
// ellipses; other languages keep their typographic punctuation.
func (g *Gateway) normalize(s, language string) string {
	if g.opts.Normalizer == nil {
		return s
	}

	if language == LanguageEnglish {
		return g.opts.Normalizer.NormalizePunctuation(s)
	}

	return g.opts.Normalizer.Normalize(s)
}

func (g *Gateway) record(ctx context.Context, job Job, outcome string, duration time.Duration, chunk core.Chunk) {
	if g.opts.Recorder == nil {
		return
	}

	rec := Record{
		RequestID:         job.ID,
		Source:            job.Source,
		TargetLanguage:    job.Request.TargetLanguage,
		ReferenceLanguage: job.Request.ReferenceLanguage,
		CustomReference:   len(job.RefAudio) > 0,
		Outcome:           outcome,
		Duration:          duration,
		SampleRate:        chunk.SampleRate,
		SampleCount:       len(chunk.Samples),
	}

	err := g.opts.Recorder.Record(context.WithoutCancel(ctx), rec)
	if err != nil {
		g.log.Warn(logFmtRecordFailed, job.ID, err)
	}
}
