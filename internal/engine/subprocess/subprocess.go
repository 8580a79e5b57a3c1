// Package subprocess runs the voice-cloning model as a child process per
// synthesis call, speaking JSON on stdin and NDJSON on stdout.
package subprocess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/mattn/go-shellwords"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine/wire"
)

const (
	bytesPerSample = 2
	maxLineBytes   = 64 << 20
	bitDepth       = 16
	channels       = 1
)

// Error message formats.
const (
	errFmtParseCommand = "parse engine command: %w"
	errFmtStart        = "start engine process: %w"
	errFmtExit         = "engine process failed: %w - stderr: %s"
	errFmtDecodeLine   = "decode engine output line %d: %w"
	errFmtDecodePCM    = "decode pcm in line %d: %w"
)

// Common errors.
var (
	ErrEmptyCommand = errors.New("engine command is empty")
	ErrOddPCM       = errors.New("pcm payload is not 16-bit aligned")
	ErrNoSampleRate = errors.New("engine output has no sample rate")
)

type outputLine struct {
	SampleRate int    `json:"sample_rate"`
	PCMBase64  string `json:"pcm_base64"`
	Final      bool   `json:"final"`
}

// Engine spawns the configured command once per synthesis.
type Engine struct {
	argv       []string
	sampleRate int
	log        *logger.Logger

	mu      sync.Mutex
	weights core.WeightSet
}

// New parses command with shell quoting rules. sampleRate is used when an
// output line does not declare its own.
func New(command string, sampleRate int, log *logger.Logger) (*Engine, error) {
	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf(errFmtParseCommand, err)
	}

	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	return &Engine{argv: argv, sampleRate: sampleRate, log: log}, nil
}

// LoadWeights remembers the checkpoints; they are passed to every spawned
// process.
func (e *Engine) LoadWeights(_ context.Context, weights core.WeightSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.weights = weights

	return nil
}

// HealthCheck verifies the command can be found.
func (e *Engine) HealthCheck(context.Context) error {
	_, err := exec.LookPath(e.argv[0])
	if err != nil {
		return fmt.Errorf("engine command: %w", err)
	}

	return nil
}

// Synthesize runs one process and streams every decoded output line.
func (e *Engine) Synthesize(ctx context.Context, params core.SynthesisParams) (<-chan core.Chunk, <-chan error) {
	chunks := make(chan core.Chunk)
	errs := make(chan error, 1)

	e.mu.Lock()
	request := wire.NewSynthesisRequest(params, e.weights)
	e.mu.Unlock()

	go func() {
		defer close(chunks)
		defer close(errs)

		err := e.run(ctx, request, chunks)
		if err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

func (e *Engine) run(ctx context.Context, request wire.SynthesisRequest, chunks chan<- core.Chunk) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode engine request: %w", err)
	}

	// #nosec G204 -- the command comes from the operator's configuration
	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf(errFmtStart, err)
	}

	err = cmd.Start()
	if err != nil {
		return fmt.Errorf(errFmtStart, err)
	}

	readErr := e.readOutput(ctx, stdout, chunks)
	if readErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return readErr
	}

	err = cmd.Wait()
	if err != nil {
		return fmt.Errorf(errFmtExit, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

func (e *Engine) readOutput(ctx context.Context, stdout io.Reader, chunks chan<- core.Chunk) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		chunk, final, err := e.decodeLine(lineNo, line)
		if err != nil {
			return err
		}

		select {
		case chunks <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}

		if e.log != nil {
			e.log.Info("Engine process emitted %d samples at %d Hz", len(chunk.Samples), chunk.SampleRate)
		}

		// Anything after the final render is discarded so the process can exit.
		if final {
			_, err = io.Copy(io.Discard, stdout)
			if err != nil {
				return fmt.Errorf("read engine output: %w", err)
			}

			return nil
		}
	}

	err := scanner.Err()
	if err != nil {
		return fmt.Errorf("read engine output: %w", err)
	}

	return nil
}

// decodeLine returns the render on one output line and whether the engine
// marked it final.
func (e *Engine) decodeLine(lineNo int, line []byte) (core.Chunk, bool, error) {
	var out outputLine

	err := json.Unmarshal(line, &out)
	if err != nil {
		return core.Chunk{}, false, fmt.Errorf(errFmtDecodeLine, lineNo, err)
	}

	pcm, err := base64.StdEncoding.DecodeString(out.PCMBase64)
	if err != nil {
		return core.Chunk{}, false, fmt.Errorf(errFmtDecodePCM, lineNo, err)
	}

	samples, err := decodePCM16(pcm)
	if err != nil {
		return core.Chunk{}, false, fmt.Errorf(errFmtDecodePCM, lineNo, err)
	}

	rate := out.SampleRate
	if rate == 0 {
		rate = e.sampleRate
	}

	if rate <= 0 {
		return core.Chunk{}, false, fmt.Errorf(errFmtDecodeLine, lineNo, ErrNoSampleRate)
	}

	return core.Chunk{SampleRate: rate, BitDepth: bitDepth, Channels: channels, Samples: samples}, out.Final, nil
}

// decodePCM16 reads little-endian signed 16-bit samples.
func decodePCM16(pcm []byte) ([]int, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, ErrOddPCM
	}

	samples := make([]int, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:])))
	}

	return samples, nil
}
