// Command go-client sends one synthesis request to a running voice-clone-service
// and writes the returned WAV to disk.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/fsutil"
	"github.com/book-expert/voice-clone-service/internal/tts"
)

// Flag descriptions.
const (
	flagTextDesc     = "Text to convert to speech"
	flagTargetDesc   = "Target language code (ja, en, zh, ko, yue, ja+en, ..., auto)"
	flagRefAudioDesc = "Reference clip to clone (requires -ref-text and -ref-lang)"
	flagRefTextDesc  = "Transcript of the reference clip"
	flagRefLangDesc  = "Language code of the reference clip"
	flagOutputDesc   = "Output file path (.wav)"
	flagURLDesc      = "Base URL of the voice-clone-service"
	flagTimeoutDesc  = "Request timeout"
	flagVerboseDesc  = "Enable verbose logging"
	flagHealthDesc   = "Check service health and exit"
)

// Flag names.
const (
	flagText     = "text"
	flagTarget   = "target"
	flagRefAudio = "ref-audio"
	flagRefText  = "ref-text"
	flagRefLang  = "ref-lang"
	flagOutput   = "output"
	flagURL      = "url"
	flagTimeout  = "timeout"
	flagVerbose  = "verbose"
	flagHealth   = "health"
)

// Error and log messages.
const (
	errFailedToInitLogger  = "failed to initialize logger: %w"
	errHealthCheckFailed   = "Health check failed: %v"
	errServiceNotHealthy   = "Voice clone service is not healthy: %v\n"
	msgServiceHealthy      = "Voice clone service is healthy"
	errFailedToSynthesize  = "failed to synthesize: %w"
	logFailedToSynthesize  = "Failed to synthesize: %v"
	logClientInitialized   = "Voice clone client initialized (service: %s)"
	logSynthesizing        = "Synthesizing %d characters in %q to %s"
	logGenerated           = "Generated: %s (%s in %s)\n"
	logSuccessfullyWritten = "Wrote %s (%s)"
)

const (
	logFileNameDefault = "voice-clone-client.log"
	logFileNameVerbose = "voice-clone-client-verbose.log"
	defaultOutputFile  = "output.wav"
	defaultServiceURL  = "http://localhost:9880"
	defaultTarget      = "ja"
	defaultTimeout     = 5 * time.Minute
	healthTimeout      = 10 * time.Second
	outputPermissions  = 0o644
)

var (
	// ErrTextRequired is returned when -text is missing.
	ErrTextRequired = errors.New("--text must be provided")
	// ErrIncompleteReference is returned when only part of the reference set is given.
	ErrIncompleteReference = errors.New("--ref-audio, --ref-text and --ref-lang must be given together")
	// ErrServiceStatus is returned for any non-200 response.
	ErrServiceStatus = errors.New("service returned an error")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text     string
	target   string
	refAudio string
	refText  string
	refLang  string
	output   string
	url      string
	timeout  time.Duration
	verbose  bool
	health   bool
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}

	defer func() { _ = clientLog.Close() }()

	clientLog.Info(logClientInitialized, flags.url)

	client := &http.Client{Timeout: flags.timeout}

	if flags.health {
		return handleHealthCheck(client, flags.url, clientLog)
	}

	err = validateArguments(flags)
	if err != nil {
		flag.Usage()
		clientLog.Error("%v", err)

		return err
	}

	return synthesize(client, flags, clientLog)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(fs *flag.FlagSet, args []string) appFlags {
	var flags appFlags

	fs.StringVar(&flags.text, flagText, "", flagTextDesc)
	fs.StringVar(&flags.target, flagTarget, defaultTarget, flagTargetDesc)
	fs.StringVar(&flags.refAudio, flagRefAudio, "", flagRefAudioDesc)
	fs.StringVar(&flags.refText, flagRefText, "", flagRefTextDesc)
	fs.StringVar(&flags.refLang, flagRefLang, "", flagRefLangDesc)
	fs.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	fs.StringVar(&flags.url, flagURL, defaultServiceURL, flagURLDesc)
	fs.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	fs.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	fs.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	_ = fs.Parse(args)

	flags.url = strings.TrimRight(flags.url, "/")

	return flags
}

// validateArguments checks required and dependent flags.
func validateArguments(flags appFlags) error {
	if strings.TrimSpace(flags.text) == "" {
		return ErrTextRequired
	}

	given := 0

	for _, value := range []string{flags.refAudio, flags.refText, flags.refLang} {
		if value != "" {
			given++
		}
	}

	if given != 0 && given != 3 {
		return ErrIncompleteReference
	}

	return nil
}

// handleHealthCheck queries /health and prints the result.
func handleHealthCheck(client *http.Client, baseURL string, clientLog *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	err := checkHealth(ctx, client, baseURL)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Printf(errServiceNotHealthy, err)

		return err
	}

	fmt.Println(msgServiceHealthy)

	return nil
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("%w: status %d: %s", ErrServiceStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// synthesize posts the request and writes the WAV to flags.output.
func synthesize(client *http.Client, flags appFlags, clientLog *logger.Logger) error {
	clientLog.Info(logSynthesizing, len([]rune(flags.text)), flags.target, flags.output)

	start := time.Now()

	body, contentType, err := buildRequestBody(flags)
	if err != nil {
		return fmt.Errorf(errFailedToSynthesize, err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, flags.url+"/tts", body)
	if err != nil {
		return fmt.Errorf(errFailedToSynthesize, err)
	}

	req.Header.Set("Content-Type", contentType)

	wav, err := send(client, req)
	if err != nil {
		clientLog.Error(logFailedToSynthesize, err)

		return fmt.Errorf(errFailedToSynthesize, err)
	}

	dir := filepath.Dir(flags.output)

	err = fsutil.EnsureDir(dir)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	err = os.WriteFile(flags.output, wav, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	size := fsutil.FormatFileSize(int64(len(wav)))
	clientLog.Info(logSuccessfullyWritten, flags.output, size)
	fmt.Printf(logGenerated, flags.output, size, fsutil.FormatDuration(time.Since(start).Seconds()))

	return nil
}

// buildRequestBody encodes a bare JSON body, or a multipart form when a
// reference clip is attached.
func buildRequestBody(flags appFlags) (io.Reader, string, error) {
	payload, err := json.Marshal(tts.SynthesisRequest{
		Text:              flags.text,
		TargetLanguage:    flags.target,
		ReferenceText:     flags.refText,
		ReferenceLanguage: flags.refLang,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request: %w", err)
	}

	if flags.refAudio == "" {
		return bytes.NewReader(payload), tts.MediaTypeJSON, nil
	}

	clip, err := os.ReadFile(flags.refAudio)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read reference clip: %w", err)
	}

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	err = writer.WriteField(tts.FieldData, string(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to write data field: %w", err)
	}

	part, err := writer.CreateFormFile(tts.FieldRefAudio, filepath.Base(flags.refAudio))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create ref_audio part: %w", err)
	}

	_, err = part.Write(clip)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write ref_audio part: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func send(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrServiceStatus, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return data, nil
}
