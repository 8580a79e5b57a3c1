// Package audio encodes engine renders into WAV containers and decodes them
// back, and validates the PCM format of a render before it is written.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// Defaults applied to renders that do not declare their own format.
const (
	DEFAULT_BIT_DEPTH = 16
	DEFAULT_CHANNELS  = 1
)

// Supported bit depths.
const (
	BIT_DEPTH_8  = 8
	BIT_DEPTH_16 = 16
	BIT_DEPTH_24 = 24
	BIT_DEPTH_32 = 32
)

// Validation limits.
const (
	MAX_SAMPLE_RATE = 192000
	MAX_CHANNELS    = 8
)

// MediaType is the content type of every encoded render.
const MediaType = "audio/wav"

const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 1 and %d Hz, got %d"
	ERR_FMT_BIT_DEPTH_VALUES  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	ERR_FMT_CHANNELS_RANGE    = "%w: channels must be between 1 and %d, got %d"
	ERR_FMT_FRAME_ALIGNMENT   = "%w: %d samples do not divide into %d channels"
	ERR_FMT_SAMPLE_RANGE      = "%w: sample %d is %d, outside [%d, %d] for %d-bit PCM"

	pcmAudioFormat = 1
)

// Common errors for the audio package.
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrNotWAV        = errors.New("data is not a valid WAV container")
)

// Normalize fills in the default bit depth and channel count.
func Normalize(chunk core.Chunk) core.Chunk {
	if chunk.BitDepth == 0 {
		chunk.BitDepth = DEFAULT_BIT_DEPTH
	}

	if chunk.Channels == 0 {
		chunk.Channels = DEFAULT_CHANNELS
	}

	return chunk
}

// ValidateChunk checks that a render can be written as PCM WAV.
func ValidateChunk(chunk core.Chunk) error {
	if chunk.SampleRate <= 0 || chunk.SampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidFormat, MAX_SAMPLE_RATE, chunk.SampleRate)
	}

	switch chunk.BitDepth {
	case BIT_DEPTH_8, BIT_DEPTH_16, BIT_DEPTH_24, BIT_DEPTH_32:
	default:
		return fmt.Errorf(ERR_FMT_BIT_DEPTH_VALUES, ErrInvalidFormat, chunk.BitDepth)
	}

	if chunk.Channels <= 0 || chunk.Channels > MAX_CHANNELS {
		return fmt.Errorf(ERR_FMT_CHANNELS_RANGE, ErrInvalidFormat, MAX_CHANNELS, chunk.Channels)
	}

	if len(chunk.Samples)%chunk.Channels != 0 {
		return fmt.Errorf(ERR_FMT_FRAME_ALIGNMENT, ErrInvalidFormat, len(chunk.Samples), chunk.Channels)
	}

	low, high := SampleRange(chunk.BitDepth)
	for i, sample := range chunk.Samples {
		if sample < low || sample > high {
			return fmt.Errorf(ERR_FMT_SAMPLE_RANGE, ErrInvalidFormat, i, sample, low, high, chunk.BitDepth)
		}
	}

	return nil
}

// SampleRange returns the inclusive sample bounds for a bit depth. 8-bit PCM
// is unsigned, wider depths are signed.
func SampleRange(bitDepth int) (int, int) {
	switch bitDepth {
	case BIT_DEPTH_8:
		return 0, math.MaxUint8
	case BIT_DEPTH_16:
		return math.MinInt16, math.MaxInt16
	case BIT_DEPTH_24:
		return -1 << 23, 1<<23 - 1
	default:
		return math.MinInt32, math.MaxInt32
	}
}

// EncodeWAV writes the render as a PCM WAV file held entirely in memory.
func EncodeWAV(chunk core.Chunk) ([]byte, error) {
	chunk = Normalize(chunk)

	err := ValidateChunk(chunk)
	if err != nil {
		return nil, err
	}

	out := &memWriteSeeker{}
	encoder := wav.NewEncoder(out, chunk.SampleRate, chunk.BitDepth, chunk.Channels, pcmAudioFormat)

	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: chunk.Channels,
			SampleRate:  chunk.SampleRate,
		},
		Data:           chunk.Samples,
		SourceBitDepth: chunk.BitDepth,
	}

	err = encoder.Write(buffer)
	if err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	return out.Bytes(), nil
}

// DecodeWAV reads a PCM WAV container into a render.
func DecodeWAV(data []byte) (core.Chunk, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return core.Chunk{}, ErrNotWAV
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return core.Chunk{}, fmt.Errorf("read wav pcm: %w", err)
	}

	return core.Chunk{
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
		Channels:   int(decoder.NumChans),
		Samples:    buffer.Data,
	}, nil
}

// memWriteSeeker is the in-memory io.WriteSeeker the WAV encoder needs to
// patch header sizes once all samples are written.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}

	copy(m.buf[m.pos:], p)
	m.pos = end

	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}

	m.pos = int(next)

	return next, nil
}

func (m *memWriteSeeker) Bytes() []byte {
	return m.buf
}
