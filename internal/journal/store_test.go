package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/journal"
	"github.com/book-expert/voice-clone-service/internal/tts"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func openPersistent(t *testing.T, maxAgeDays int) *journal.Store {
	t.Helper()

	store, err := journal.Open(context.Background(), config.JournalConfig{
		RetentionMode: config.RetentionPersistent,
		Path:          filepath.Join(t.TempDir(), "nested", "journal.db"),
		MaxAgeDays:    maxAgeDays,
	}, createTestLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStore_RecordAndList(t *testing.T) {
	t.Parallel()

	store := openPersistent(t, 0)
	ctx := context.Background()

	require.True(t, store.Persistent())

	require.NoError(t, store.Record(ctx, tts.Record{
		RequestID:      "first",
		Source:         "http",
		TargetLanguage: "ja",
		Outcome:        "ok",
		Duration:       1500 * time.Millisecond,
		SampleRate:     32000,
		SampleCount:    48000,
	}))
	require.NoError(t, store.Record(ctx, tts.Record{
		RequestID:         "second",
		Source:            "http",
		TargetLanguage:    "en",
		ReferenceLanguage: "en",
		CustomReference:   true,
		Outcome:           "synthesis_failed",
	}))

	entries, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "second", entries[0].RequestID)
	assert.True(t, entries[0].CustomReference)
	assert.Equal(t, "synthesis_failed", entries[0].Status)

	assert.Equal(t, "first", entries[1].RequestID)
	assert.Equal(t, int64(1500), entries[1].DurationMS)
	assert.Equal(t, 32000, entries[1].SampleRate)
	assert.Equal(t, 48000, entries[1].SampleCount)
	assert.False(t, entries[1].CreatedAt.IsZero())

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Prune(t *testing.T) {
	t.Parallel()

	store := openPersistent(t, 7)
	ctx := context.Background()

	now := time.Now()

	store.SetClock(func() time.Time { return now.Add(-10 * 24 * time.Hour) })
	require.NoError(t, store.Record(ctx, tts.Record{RequestID: "old", Source: "http", Outcome: "ok"}))

	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.Record(ctx, tts.Record{RequestID: "new", Source: "http", Outcome: "ok"}))

	require.NoError(t, store.Prune(ctx))

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].RequestID)
}

func TestStore_Ephemeral(t *testing.T) {
	t.Parallel()

	store, err := journal.Open(context.Background(), config.JournalConfig{
		RetentionMode: config.RetentionEphemeral,
		Path:          filepath.Join(t.TempDir(), "never-created.db"),
	}, createTestLogger(t))
	require.NoError(t, err)

	assert.False(t, store.Persistent())
	require.NoError(t, store.Record(context.Background(), tts.Record{RequestID: "dropped"}))

	_, err = store.List(context.Background(), 10)
	require.ErrorIs(t, err, journal.ErrEphemeral)
	require.NoError(t, store.Close())
}
