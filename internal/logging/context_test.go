package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, Item(ctx))
	assert.Empty(t, Stage(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithItem(ctx, "x.test")
	ctx = WithStage(ctx, "evaluate")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "x.test", Item(ctx))
	assert.Equal(t, "evaluate", Stage(ctx))
}

func TestCorrelationHandlerInjectsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithStage(WithItem(WithRunID(context.Background(), "run-1"), "x.test"), "decide")
	logger.InfoContext(ctx, "deciding")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-1")
	assert.Contains(t, out, "item=x.test")
	assert.Contains(t, out, "stage=decide")
}

func TestCorrelationHandlerSkipsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain")

	out := buf.String()
	require.Contains(t, out, "plain")
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "item=")
	assert.NotContains(t, out, "stage=")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil))).
		With(slog.String("component", "engine"))

	logger.InfoContext(WithRunID(context.Background(), "run-2"), "step")

	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "run_id=run-2")
}
