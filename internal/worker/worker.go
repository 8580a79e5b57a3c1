// Package worker provides a NATS worker that turns processed text into cloned
// speech through the same gateway as the HTTP API.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/metrics"
	"github.com/book-expert/voice-clone-service/internal/tts"
	"github.com/book-expert/voice-clone-service/internal/tts/audio"
)

// SourceNATS labels jobs that arrived on the bus.
const SourceNATS = "nats"

const (
	handleMessageTimeout = 10 * time.Minute
	audioKeySuffix       = ".wav"
)

// Log formats.
const (
	logFmtListening      = "Listening for synthesis jobs on subject %s"
	logFmtInvalidEvent   = "Failed to parse and validate event: %v"
	logFmtJobFailed      = "Failed to process synthesis job for workflow %s: %v"
	logFmtReplyFailed    = "Failed to publish reply event for workflow %s: %v"
	logFmtJobDone        = "Workflow %s page %d/%d rendered to %s"
	errFmtDownload       = "failed to download text data for key '%s': %w"
	errFmtUpload         = "failed to upload audio data for key '%s': %w"
	errFmtSynthesize     = "failed to synthesize text: %w"
	errFmtEncode         = "failed to encode audio: %w"
	errFmtUnmarshalEvent = "failed to unmarshal event: %w"
)

var (
	// ErrTextKeyEmpty indicates that the event does not point at any text.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTextEmpty indicates that the downloaded text is blank.
	ErrTextEmpty = errors.New("downloaded text is empty")
)

// Synthesizer runs one job against the shared engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, job tts.Job) (core.Chunk, error)
}

// NatsWorker listens for TextProcessedEvents on a NATS subject and answers
// each with an AudioChunkCreatedEvent.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	targetLanguage string
	store          core.ObjectStore
	synthesizer    Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. Every job is rendered
// in targetLanguage with the default reference voice.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	targetLanguage string,
	store core.ObjectStore,
	synthesizer Synthesizer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		targetLanguage: targetLanguage,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}
}

// Run starts the worker and blocks until ctx ends.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info(logFmtListening, w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error(logFmtInvalidEvent, err)

		return
	}

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error(logFmtJobFailed, event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error(logFmtReplyFailed, event.Header.WorkflowID, err)

		return
	}

	w.log.Info(logFmtJobDone, event.Header.WorkflowID, event.PageNumber, event.TotalPages, audioKey)
}

// processJob downloads the text, renders it and uploads the WAV.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf(errFmtDownload, event.TextKey, err)
	}

	text := strings.TrimSpace(string(textData))
	if text == "" {
		return "", fmt.Errorf("%w: key '%s'", ErrTextEmpty, event.TextKey)
	}

	jobID := event.Header.EventID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	chunk, err := w.synthesizer.Synthesize(ctx, tts.Job{
		ID:     jobID,
		Source: SourceNATS,
		Request: tts.SynthesisRequest{
			Text:           text,
			TargetLanguage: w.targetLanguage,
		},
	})
	if err != nil {
		return "", fmt.Errorf(errFmtSynthesize, err)
	}

	audioData, err := audio.EncodeWAV(chunk)
	if err != nil {
		return "", fmt.Errorf(errFmtEncode, err)
	}

	audioKey := uuid.NewString() + audioKeySuffix

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf(errFmtUpload, audioKey, err)
	}

	metrics.RecordAudioBytes(metrics.DirectionOut, len(audioData))

	return audioKey, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf(errFmtUnmarshalEvent, err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
