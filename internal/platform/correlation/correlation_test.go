package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, NewID(), "IDs should be unique")
}

func TestWithIDAndID(t *testing.T) {
	ctx := context.Background()

	_, ok := ID(ctx)
	assert.False(t, ok)

	ctx = WithID(ctx, "abc123")
	id, ok := ID(ctx)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
}

func TestID_EmptyValueNotFound(t *testing.T) {
	ctx := WithID(context.Background(), "")
	_, ok := ID(ctx)
	assert.False(t, ok)
}

func TestHandler_InjectsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithID(context.Background(), "deadbeef")
	logger.InfoContext(ctx, "hello")

	assert.Contains(t, buf.String(), "correlation_id=deadbeef")
}

func TestHandler_NoIDNoAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "hello")

	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestHandler_WithAttrsPreservesWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).With("component", "test")

	ctx := WithID(context.Background(), "cafe0001")
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "correlation_id=cafe0001")
}
