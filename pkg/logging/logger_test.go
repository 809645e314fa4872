package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestStructuredLogger_LevelsAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("labdash-test", "1.2.3", InfoLevel)
	logger.SetOutput(&buf)

	ctx := WithBatchID(WithRequestID(context.Background(), "req-1"), "batch-9")

	logger.Debug(ctx, "[HIDDEN] below level", Fields{})
	logger.Info(ctx, "[IMPORT_START] Starting", Fields{"rows": 3})
	logger.Error(ctx, "[IMPORT_FAILED] Failed", Fields{}, errors.New("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "labdash-test", entries[0].Service)
	assert.Equal(t, "req-1", entries[0].RequestID)
	assert.Equal(t, "batch-9", entries[0].BatchID)
	assert.Equal(t, float64(3), entries[0].Fields["rows"])
	assert.Empty(t, entries[0].File)

	assert.Equal(t, "ERROR", entries[1].Level)
	assert.Equal(t, "boom", entries[1].Error)
	assert.NotEmpty(t, entries[1].File)
}

func TestContextLogger_MergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("labdash-test", "1", DebugLevel)
	logger.SetOutput(&buf)

	logger.WithFields(Fields{"category": "ph"}).Info(context.Background(), "[X] merged", Fields{"row": 2})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ph", entries[0].Fields["category"])
	assert.Equal(t, float64(2), entries[0].Fields["row"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}
