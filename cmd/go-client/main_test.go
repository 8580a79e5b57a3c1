package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/tts"
)

// Test constants, updated to follow CamelCase convention.
const (
	TestExpectedTextFlag = "Expected text flag %q, got %q"
	TestWAVBody          = "RIFF....WAVE"
)

// TestMainFlags verifies that command-line flags are parsed correctly.
func TestMainFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantText   string
		wantTarget string
		wantURL    string
	}{
		{
			name:       "text flag parsing",
			args:       []string{"--text", "Hello, world!"},
			wantText:   "Hello, world!",
			wantTarget: defaultTarget,
			wantURL:    defaultServiceURL,
		},
		{
			name:       "target and url",
			args:       []string{"--text", "hi", "--target", "en", "--url", "http://tts.local:8000/"},
			wantText:   "hi",
			wantTarget: "en",
			wantURL:    "http://tts.local:8000",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags := parseFlags(flag.NewFlagSet(testCase.name, flag.ContinueOnError), testCase.args)

			if flags.text != testCase.wantText {
				t.Errorf(TestExpectedTextFlag, testCase.wantText, flags.text)
			}

			if flags.target != testCase.wantTarget {
				t.Errorf("Expected target %q, got %q", testCase.wantTarget, flags.target)
			}

			if flags.url != testCase.wantURL {
				t.Errorf("Expected url %q, got %q", testCase.wantURL, flags.url)
			}
		})
	}
}

// TestArgumentValidation verifies required and dependent arguments.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{name: "text only", flags: appFlags{text: "some text"}},
		{
			name:  "full reference set",
			flags: appFlags{text: "some text", refAudio: "a.wav", refText: "hi", refLang: "en"},
		},
		{name: "no text", flags: appFlags{}, wantErr: ErrTextRequired},
		{name: "blank text", flags: appFlags{text: "  "}, wantErr: ErrTextRequired},
		{
			name:    "audio without transcript",
			flags:   appFlags{text: "some text", refAudio: "a.wav", refLang: "en"},
			wantErr: ErrIncompleteReference,
		},
		{
			name:    "language only",
			flags:   appFlags{text: "some text", refLang: "en"},
			wantErr: ErrIncompleteReference,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateArguments(testCase.flags)
			if !errors.Is(err, testCase.wantErr) {
				t.Errorf("Expected error %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLog, err := logger.New(t.TempDir(), "test.log")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	t.Cleanup(func() { _ = testLog.Close() })

	return testLog
}

// TestSynthesizeWritesWAV checks both request encodings against a fake service.
func TestSynthesizeWritesWAV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clipPath := filepath.Join(dir, "voice.wav")

	err := os.WriteFile(clipPath, []byte("clip"), 0o600)
	if err != nil {
		t.Fatalf("Failed to write clip: %v", err)
	}

	tests := []struct {
		name      string
		flags     appFlags
		wantAudio string
	}{
		{name: "json", flags: appFlags{text: "hello", target: "en"}},
		{
			name:      "multipart",
			flags:     appFlags{text: "hello", target: "en", refAudio: clipPath, refText: "hi", refLang: "en"},
			wantAudio: "clip",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			received := make(chan *tts.ParsedRequest, 1)

			service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				parsed, parseErr := tts.ParseRequest(r, 1<<20)
				if parseErr != nil {
					http.Error(w, parseErr.Error(), http.StatusBadRequest)

					return
				}

				received <- parsed

				w.Header().Set("Content-Type", "audio/wav")
				_, _ = io.WriteString(w, TestWAVBody)
			}))
			t.Cleanup(service.Close)

			flags := testCase.flags
			flags.url = service.URL
			flags.output = filepath.Join(t.TempDir(), "out", "speech.wav")

			err := synthesize(service.Client(), flags, createTestLogger(t))
			if err != nil {
				t.Fatalf("Did not expect an error, but got: %v", err)
			}

			written, err := os.ReadFile(flags.output)
			if err != nil {
				t.Fatalf("Failed to read output: %v", err)
			}

			if string(written) != TestWAVBody {
				t.Errorf("Expected output %q, got %q", TestWAVBody, written)
			}

			parsed := <-received
			if parsed.Request.Text != "hello" || parsed.Request.TargetLanguage != "en" {
				t.Errorf("Unexpected request: %+v", parsed.Request)
			}

			if string(parsed.RefAudio) != testCase.wantAudio {
				t.Errorf("Expected reference audio %q, got %q", testCase.wantAudio, parsed.RefAudio)
			}
		})
	}
}

// TestSynthesizeServiceError surfaces the service's error body.
func TestSynthesizeServiceError(t *testing.T) {
	t.Parallel()

	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid target_language"})
	}))
	t.Cleanup(service.Close)

	flags := appFlags{text: "hello", target: "fr", url: service.URL, output: filepath.Join(t.TempDir(), "x.wav")}

	err := synthesize(service.Client(), flags, createTestLogger(t))
	if !errors.Is(err, ErrServiceStatus) {
		t.Fatalf("Expected ErrServiceStatus, got %v", err)
	}

	_, statErr := os.Stat(flags.output)
	if !os.IsNotExist(statErr) {
		t.Errorf("Expected no output file, stat returned %v", statErr)
	}
}

// TestCheckHealth covers healthy and unhealthy services.
func TestCheckHealth(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	t.Cleanup(healthy.Close)

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(unhealthy.Close)

	err := checkHealth(context.Background(), healthy.Client(), healthy.URL)
	if err != nil {
		t.Errorf("Did not expect an error, but got: %v", err)
	}

	err = checkHealth(context.Background(), unhealthy.Client(), unhealthy.URL)
	if !errors.Is(err, ErrServiceStatus) {
		t.Errorf("Expected ErrServiceStatus, got %v", err)
	}
}
