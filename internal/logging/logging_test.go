package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "json", &buf)
	l.Info("dropped")
	l.Warn("emergency deploy", "quest_id", "q1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "emergency deploy", rec["msg"])
	assert.Equal(t, "q1", rec["quest_id"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New("debug", "text", &buf).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextLogger(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, From(context.Background(), fallback))
	assert.Same(t, slog.Default(), From(context.Background(), nil))

	scoped := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, scoped, From(Into(context.Background(), scoped), fallback))
}
