package audio_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/tts/audio"
)

func sineSamples(count int, amplitude float64) []int {
	samples := make([]int, count)
	for i := range samples {
		samples[i] = int(amplitude * math.Sin(float64(i)/8))
	}

	return samples
}

func offsetSamples(samples []int, offset int) []int {
	for i := range samples {
		samples[i] += offset
	}

	return samples
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chunk core.Chunk
	}{
		{
			name:  "32kHz mono 16-bit",
			chunk: core.Chunk{SampleRate: 32000, BitDepth: 16, Channels: 1, Samples: sineSamples(3200, 12000)},
		},
		{
			name:  "defaults applied",
			chunk: core.Chunk{SampleRate: 16000, Samples: sineSamples(160, 30000)},
		},
		{
			name:  "stereo",
			chunk: core.Chunk{SampleRate: 48000, BitDepth: 16, Channels: 2, Samples: sineSamples(960, 20000)},
		},
		{
			name:  "8-bit unsigned",
			chunk: core.Chunk{SampleRate: 8000, BitDepth: 8, Channels: 1, Samples: offsetSamples(sineSamples(400, 127), 128)},
		},
		{
			name:  "8-bit extremes",
			chunk: core.Chunk{SampleRate: 8000, BitDepth: 8, Channels: 1, Samples: []int{0, 128, 255}},
		},
		{
			name:  "24-bit",
			chunk: core.Chunk{SampleRate: 48000, BitDepth: 24, Channels: 1, Samples: sineSamples(480, 8000000)},
		},
		{
			name:  "24-bit extremes",
			chunk: core.Chunk{SampleRate: 48000, BitDepth: 24, Channels: 1, Samples: []int{-8388608, -1, 0, 8388607}},
		},
		{
			name:  "32-bit",
			chunk: core.Chunk{SampleRate: 44100, BitDepth: 32, Channels: 2, Samples: sineSamples(882, 2000000000)},
		},
		{
			name:  "32-bit extremes",
			chunk: core.Chunk{SampleRate: 44100, BitDepth: 32, Channels: 1, Samples: []int{math.MinInt32, -1, 0, math.MaxInt32}},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			data, err := audio.EncodeWAV(testCase.chunk)
			require.NoError(t, err)
			require.Equal(t, "RIFF", string(data[:4]))
			require.Equal(t, "WAVE", string(data[8:12]))

			decoded, err := audio.DecodeWAV(data)
			require.NoError(t, err)

			want := audio.Normalize(testCase.chunk)
			assert.Equal(t, want.SampleRate, decoded.SampleRate)
			assert.Equal(t, want.BitDepth, decoded.BitDepth)
			assert.Equal(t, want.Channels, decoded.Channels)
			assert.Equal(t, want.Samples, decoded.Samples)
		})
	}
}

func TestEncodeWAV_RejectsInvalidFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chunk core.Chunk
	}{
		{name: "zero sample rate", chunk: core.Chunk{SampleRate: 0, Samples: []int{1}}},
		{name: "sample rate too high", chunk: core.Chunk{SampleRate: 384000, Samples: []int{1}}},
		{name: "odd bit depth", chunk: core.Chunk{SampleRate: 16000, BitDepth: 12, Samples: []int{1}}},
		{name: "too many channels", chunk: core.Chunk{SampleRate: 16000, Channels: 9, Samples: []int{1}}},
		{name: "partial frame", chunk: core.Chunk{SampleRate: 16000, Channels: 2, Samples: []int{1, 2, 3}}},
		{name: "negative 8-bit", chunk: core.Chunk{SampleRate: 8000, BitDepth: 8, Samples: []int{128, -1}}},
		{name: "8-bit overflow", chunk: core.Chunk{SampleRate: 8000, BitDepth: 8, Samples: []int{256}}},
		{name: "16-bit overflow", chunk: core.Chunk{SampleRate: 16000, Samples: []int{0, 32768}}},
		{name: "16-bit underflow", chunk: core.Chunk{SampleRate: 16000, Samples: []int{-32769}}},
		{name: "24-bit overflow", chunk: core.Chunk{SampleRate: 48000, BitDepth: 24, Samples: []int{8388608}}},
		{name: "32-bit overflow", chunk: core.Chunk{SampleRate: 48000, BitDepth: 32, Samples: []int{math.MaxInt32 + 1}}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := audio.EncodeWAV(testCase.chunk)
			require.ErrorIs(t, err, audio.ErrInvalidFormat)
		})
	}
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeWAV([]byte("definitely not a riff container"))
	require.ErrorIs(t, err, audio.ErrNotWAV)
}

func TestSampleRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bitDepth int
		wantLow  int
		wantHigh int
	}{
		{bitDepth: 8, wantLow: 0, wantHigh: 255},
		{bitDepth: 16, wantLow: -32768, wantHigh: 32767},
		{bitDepth: 24, wantLow: -8388608, wantHigh: 8388607},
		{bitDepth: 32, wantLow: math.MinInt32, wantHigh: math.MaxInt32},
	}

	for _, testCase := range tests {
		low, high := audio.SampleRange(testCase.bitDepth)
		assert.Equal(t, testCase.wantLow, low, "bit depth %d", testCase.bitDepth)
		assert.Equal(t, testCase.wantHigh, high, "bit depth %d", testCase.bitDepth)
	}
}
