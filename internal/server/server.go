// Package server exposes the synthesis gateway over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/journal"
	"github.com/book-expert/voice-clone-service/internal/metrics"
	"github.com/book-expert/voice-clone-service/internal/tts"
	"github.com/book-expert/voice-clone-service/internal/tts/audio"
)

// SourceHTTP labels jobs that arrived over HTTP.
const SourceHTTP = "http"

const (
	tracerName         = "github.com/book-expert/voice-clone-service/internal/server"
	healthCheckTimeout = 5 * time.Second
	headerContentType  = "Content-Type"
	headerContentLen   = "Content-Length"
	contentTypeJSON    = "application/json"
	queryLimit         = "limit"
)

// Client-facing messages.
const (
	msgNoAudioGenerated  = "No audio generated"
	msgInternalError     = "Internal Server Error"
	msgPayloadTooLarge   = "payload too large"
	msgHistoryDisabled   = "history is disabled"
	msgInvalidLimit      = "limit must be a positive integer"
	msgEngineUnavailable = "engine unavailable"
)

// Log formats.
const (
	logFmtRejected     = "Request %s rejected (%d): %v"
	logFmtFailed       = "Request %s failed (%d): %v"
	logFmtServed       = "Request %s served %d bytes of audio in %s"
	logFmtEncodeFailed = "Request %s could not encode audio: %v"
	logFmtWriteFailed  = "Request %s response write failed: %v"
	logFmtHistoryError = "History query failed: %v"
)

// History lists journal rows.
type History interface {
	Persistent() bool
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Options configures the HTTP surface.
type Options struct {
	ErrorStyle     string
	CORSOrigins    []string
	MaxBodyBytes   int64
	MetricsEnabled bool
}

// Server routes HTTP calls into the gateway.
type Server struct {
	gateway   *tts.Gateway
	validator *tts.Validator
	history   History
	opts      Options
	log       *logger.Logger
	tracer    trace.Tracer
}

// New creates a server. history may be nil.
func New(gateway *tts.Gateway, validator *tts.Validator, history History, opts Options, log *logger.Logger) *Server {
	if opts.ErrorStyle == "" {
		opts.ErrorStyle = config.ErrorStyleDetail
	}

	return &Server{
		gateway:   gateway,
		validator: validator,
		history:   history,
		opts:      opts,
		log:       log,
		tracer:    otel.Tracer(tracerName),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /tts", s.handleTTS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/history", s.handleHistory)

	if s.opts.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return withRequestID(withCORS(s.opts.CORSOrigins, withMetrics(mux)))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"code": "ok"})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFrom(r.Context())
	start := time.Now()

	parsed, err := s.parse(r)
	if err != nil {
		metrics.RecordSynthesis(SourceHTTP, tts.Outcome(err), time.Since(start))
		s.log.Warn(logFmtRejected, requestID, tts.StatusCode(err), err)
		s.writeError(w, r, err)

		return
	}

	metrics.RecordAudioBytes(metrics.DirectionIn, len(parsed.RefAudio))

	chunk, err := s.gateway.Synthesize(r.Context(), tts.Job{
		ID:       requestID,
		Source:   SourceHTTP,
		Request:  parsed.Request,
		RefAudio: parsed.RefAudio,
	})
	if err != nil {
		s.log.Error(logFmtFailed, requestID, tts.StatusCode(err), err)
		s.writeError(w, r, err)

		return
	}

	wav, err := audio.EncodeWAV(chunk)
	if err != nil {
		s.log.Error(logFmtEncodeFailed, requestID, err)
		s.writeError(w, r, err)

		return
	}

	s.writeAudio(w, r, wav)
	metrics.RecordAudioBytes(metrics.DirectionOut, len(wav))

	s.log.Info(logFmtServed, requestID, len(wav), time.Since(start))
}

// parse decodes and validates the request body under its own span.
func (s *Server) parse(r *http.Request) (*tts.ParsedRequest, error) {
	_, span := s.tracer.Start(r.Context(), "tts.parse")
	defer span.End()

	parsed, err := tts.ParseRequest(r, s.opts.MaxBodyBytes)
	if err == nil {
		err = s.validator.Validate(&parsed.Request, parsed.HasReferenceAudio())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, tts.Outcome(err))

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("request.ref_audio_bytes", len(parsed.RefAudio)),
		attribute.Int("request.text_runes", len([]rune(parsed.Request.Text))),
	)

	return parsed, nil
}

type healthResponse struct {
	Status     string `json:"status"`
	EngineBusy bool   `json:"engine_busy"`
	QueueDepth int    `json:"queue_depth"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		EngineBusy: s.gateway.Busy(),
		QueueDepth: s.gateway.QueueDepth(),
	}

	checker, ok := s.gateway.Engine().(core.HealthChecker)
	if ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		err := checker.HealthCheck(ctx)
		if err != nil {
			resp.Status = msgEngineUnavailable
			resp.Error = err.Error()
			s.writeJSON(w, r, http.StatusServiceUnavailable, resp)

			return
		}
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil || !s.history.Persistent() {
		s.writeMessage(w, r, http.StatusNotFound, msgHistoryDisabled)

		return
	}

	limit := 0

	if raw := r.URL.Query().Get(queryLimit); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeMessage(w, r, http.StatusBadRequest, msgInvalidLimit)

			return
		}

		limit = parsed
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.log.Error(logFmtHistoryError, err)
		s.writeMessage(w, r, http.StatusInternalServerError, msgInternalError)

		return
	}

	if entries == nil {
		entries = []journal.Entry{}
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries})
}

// writeError renders err in the configured error style.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := tts.StatusCode(err)

	if errors.Is(err, tts.ErrUnsupportedContentType) {
		s.writeJSON(w, r, status, map[string]string{config.ErrorStyleError: tts.ErrUnsupportedContentType.Error()})

		return
	}

	s.writeMessage(w, r, status, s.errorMessage(err))
}

func (s *Server) errorMessage(err error) string {
	switch {
	case errors.Is(err, tts.ErrMalformedPayload):
		return err.Error()
	case errors.Is(err, tts.ErrPayloadTooLarge):
		return msgPayloadTooLarge
	case errors.Is(err, tts.ErrIncompleteReferenceSet):
		return tts.ErrIncompleteReferenceSet.Error()
	case errors.Is(err, tts.ErrInvalidTargetLanguage):
		return tts.ErrInvalidTargetLanguage.Error()
	case errors.Is(err, tts.ErrInvalidReferenceLanguage):
		return tts.ErrInvalidReferenceLanguage.Error()
	case errors.Is(err, tts.ErrSynthesisFailed):
		if s.opts.ErrorStyle == config.ErrorStyleError {
			return msgNoAudioGenerated
		}

		return tts.ErrSynthesisFailed.Error()
	default:
		return msgInternalError
	}
}

// writeMessage writes {"detail": msg} or {"error": msg}.
func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, map[string]string{s.opts.ErrorStyle: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.log.Warn(logFmtWriteFailed, RequestIDFrom(r.Context()), err)
	}
}

func (s *Server) writeAudio(w http.ResponseWriter, r *http.Request, wav []byte) {
	w.Header().Set(headerContentType, audio.MediaType)
	w.Header().Set(headerContentLen, strconv.Itoa(len(wav)))
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(wav)
	if err != nil {
		s.log.Warn(logFmtWriteFailed, RequestIDFrom(r.Context()), err)
	}
}
