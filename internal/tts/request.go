package tts

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
)

// Media types accepted on the synthesis endpoint.
const (
	MediaTypeMultipart = "multipart/form-data"
	MediaTypeJSON      = "application/json"
)

// Multipart field names.
const (
	FieldData     = "data"
	FieldRefAudio = "ref_audio"
)

const (
	headerContentType = "Content-Type"
	paramBoundary     = "boundary"
)

// SynthesisRequest is the JSON payload of a synthesis call. Optional fields
// are absent when empty.
type SynthesisRequest struct {
	Text              string `json:"text"`
	TargetLanguage    string `json:"target_language"`
	ReferenceText     string `json:"reference_text,omitempty"`
	ReferenceLanguage string `json:"reference_language,omitempty"`
}

// ParsedRequest is a decoded request plus the uploaded reference clip, if any.
type ParsedRequest struct {
	Request  SynthesisRequest
	RefAudio []byte
}

// HasReferenceAudio reports whether a non-empty clip was uploaded.
func (p *ParsedRequest) HasReferenceAudio() bool {
	return len(p.RefAudio) > 0
}

// ParseRequest decodes a synthesis call from either a multipart form (JSON in
// the "data" part, raw audio in "ref_audio") or a bare JSON body. A positive
// maxBytes caps the body size.
func ParseRequest(r *http.Request, maxBytes int64) (*ParsedRequest, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get(headerContentType))
	if err != nil {
		return nil, ErrUnsupportedContentType
	}

	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}

	var parsed *ParsedRequest

	switch mediaType {
	case MediaTypeMultipart:
		parsed, err = parseMultipart(body, params[paramBoundary])
	case MediaTypeJSON:
		parsed, err = parseJSONBody(body)
	default:
		return nil, ErrUnsupportedContentType
	}

	if err != nil {
		return nil, classifyBodyError(err)
	}

	err = checkRequired(&parsed.Request)
	if err != nil {
		return nil, err
	}

	return parsed, nil
}

func parseJSONBody(body io.Reader) (*ParsedRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var parsed ParsedRequest

	err = parseJSON(data, &parsed.Request)
	if err != nil {
		return nil, err
	}

	return &parsed, nil
}

func parseMultipart(body io.Reader, boundary string) (*ParsedRequest, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart boundary missing", ErrMalformedPayload)
	}

	reader := multipart.NewReader(body, boundary)

	var (
		parsed  ParsedRequest
		payload []byte
		hasData bool
	)

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: read multipart: %w", ErrMalformedPayload, err)
		}

		switch part.FormName() {
		case FieldData:
			payload, err = io.ReadAll(part)
			hasData = true
		case FieldRefAudio:
			parsed.RefAudio, err = io.ReadAll(part)
		default:
			_, err = io.Copy(io.Discard, part)
		}

		closeErr := part.Close()
		if err == nil {
			err = closeErr
		}

		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", part.FormName(), err)
		}
	}

	if !hasData {
		return nil, fmt.Errorf("%w: missing %q field", ErrMalformedPayload, FieldData)
	}

	err := parseJSON(payload, &parsed.Request)
	if err != nil {
		return nil, err
	}

	return &parsed, nil
}

func checkRequired(req *SynthesisRequest) error {
	if req.Text == "" {
		return fmt.Errorf("%w: text is required", ErrMalformedPayload)
	}

	if req.TargetLanguage == "" {
		return fmt.Errorf("%w: target_language is required", ErrMalformedPayload)
	}

	return nil
}

func classifyBodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, maxBytesErr.Limit)
	}

	if errors.Is(err, ErrMalformedPayload) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
}
