package tts

import (
	"context"
	"errors"
	"net/http"
)

// Request and synthesis errors. Client-facing failures wrap one of these;
// anything else is reported as a server error.
var (
	ErrUnsupportedContentType   = errors.New("Content-Type not supported")
	ErrMalformedPayload         = errors.New("malformed payload")
	ErrPayloadTooLarge          = errors.New("payload too large")
	ErrIncompleteReferenceSet   = errors.New("reference_language, reference_text, and ref_audio must be all present or all absent")
	ErrInvalidTargetLanguage    = errors.New("Invalid target_language")
	ErrInvalidReferenceLanguage = errors.New("Invalid reference_language")
	ErrSynthesisFailed          = errors.New("Synthesis failed")
	ErrEngineFailure            = errors.New("Internal Server Error")
)

// StatusCode maps an error from this package to the HTTP status the client
// receives. Unknown errors are server errors.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedContentType),
		errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrIncompleteReferenceSet),
		errors.Is(err, ErrInvalidTargetLanguage),
		errors.Is(err, ErrInvalidReferenceLanguage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Outcome is a short label for metrics and the journal.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnsupportedContentType):
		return "unsupported_content_type"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrIncompleteReferenceSet):
		return "incomplete_reference_set"
	case errors.Is(err, ErrInvalidTargetLanguage):
		return "invalid_target_language"
	case errors.Is(err, ErrInvalidReferenceLanguage):
		return "invalid_reference_language"
	case errors.Is(err, ErrSynthesisFailed):
		return "synthesis_failed"
	case errors.Is(err, ErrEngineFailure):
		return "engine_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "engine_failure"
	}
}
