package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := WithDefaultArgs(context.Background(), "catalog", "main")
	inner := WithDefaultArgs(ctx, "op", "save")
	l.InfoCtx(inner, "saved", "n", 2)
	assert.Contains(t, buf.String(), `msg="[recdb] saved" n=2 catalog=main op=save`)

	// the outer context is not affected by the inner one
	buf.Reset()
	l.WarnCtx(ctx, "retry")
	assert.Contains(t, buf.String(), "catalog=main")
	assert.NotContains(t, buf.String(), "op=save")

	buf.Reset()
	l.DebugCtx(ctx, "hidden")
	assert.Empty(t, buf.String())
	assert.False(t, l.Enabled(ctx, slog.LevelDebug))
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewTextHandler(&buf, nil)).With("pool", "read")
	l.Error("boom")
	assert.Contains(t, buf.String(), "pool=read")
}
