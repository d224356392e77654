package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	assert := require.New(t)
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	childCtx, child := StartChildSpan(ctx, "parse")
	child.SetAttr("terms", 2)
	child.End()
	_, grandchild := StartChildSpan(childCtx, "expand")
	grandchild.End()
	root.End()

	assert.Same(root, SpanFromContext(ctx))
	assert.Same(child, SpanFromContext(childCtx))
	assert.Equal("req-1", grandchild.TraceID)
	assert.Len(root.Children, 1)
	assert.Len(child.Children, 1)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.LogTo(context.Background(), logger, slog.LevelDebug)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(lines, 3)
	assert.Contains(lines[0], "span=search")
	assert.Contains(lines[1], "terms=2")
	assert.Contains(lines[2], "depth=2")
}

func TestLogToSkipsDisabledLevel(t *testing.T) {
	_, root := StartSpan(context.Background(), "search", "req-2")
	root.End()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	root.LogTo(context.Background(), logger, slog.LevelDebug)
	require.Zero(t, buf.Len())
}

func TestSpanFromEmptyContext(t *testing.T) {
	require.Nil(t, SpanFromContext(context.Background()))
	_, orphan := StartChildSpan(context.Background(), "orphan")
	require.Empty(t, orphan.TraceID)
}
