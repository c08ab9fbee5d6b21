package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextPlumbing(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("WithLogger round-trips through FromContext", func(t *testing.T) {
		ctx := WithLogger(context.Background(), custom)
		assert.Same(t, custom, FromContext(ctx))
	})

	t.Run("FromContext falls back to the default logger", func(t *testing.T) {
		assert.Same(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("FromContextOrDefault uses the supplied fallback", func(t *testing.T) {
		fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
		assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))

		ctx := WithLogger(context.Background(), custom)
		assert.Same(t, custom, FromContextOrDefault(ctx, fallback))
	})
}

func TestSetup(t *testing.T) {
	// Setup mutates the process default logger, so restore it afterwards.
	prev := slog.Default()
	defer slog.SetDefault(prev)

	t.Run("returns a logger for every valid level", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WARN", "Info"} {
			log := Setup(level)
			assert.NotNil(t, log, "level %s", level)
		}
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		log := Setup("chatty")
		assert.NotNil(t, log)
		assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
		assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("sets the process default", func(t *testing.T) {
		log := Setup("info")
		assert.Same(t, log, slog.Default())
	})
}
