package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/observability"
)

func TestRunner_Go(t *testing.T) {
	t.Run("runs task after parent is cancelled", func(t *testing.T) {
		runner := NewRunner(nil)
		parent, cancel := context.WithCancel(context.Background())

		var ran atomic.Bool
		runner.Go(parent, time.Second, "detached", func(ctx context.Context) error {
			cancel()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			ran.Store(true)
			return nil
		})

		require.NoError(t, runner.Wait(time.Second))
		assert.True(t, ran.Load())
	})

	t.Run("logs errors", func(t *testing.T) {
		var buf bytes.Buffer
		runner := NewRunner(observability.NewLogger(observability.InfoLevel, &buf))

		runner.Go(context.Background(), time.Second, "notify", func(ctx context.Context) error {
			return errors.New("relay down")
		})

		require.NoError(t, runner.Wait(time.Second))
		assert.Contains(t, buf.String(), "relay down")
		assert.Contains(t, buf.String(), `"task":"notify"`)
	})

	t.Run("recovers panics", func(t *testing.T) {
		var buf bytes.Buffer
		runner := NewRunner(observability.NewLogger(observability.InfoLevel, &buf))

		runner.Go(context.Background(), time.Second, "boom", func(ctx context.Context) error {
			panic("unexpected")
		})

		require.NoError(t, runner.Wait(time.Second))
		assert.True(t, strings.Contains(buf.String(), "panic in background task"))
	})

	t.Run("enforces timeout", func(t *testing.T) {
		runner := NewRunner(nil)
		var deadline atomic.Bool

		runner.Go(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) error {
			<-ctx.Done()
			deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})

		require.NoError(t, runner.Wait(time.Second))
		assert.True(t, deadline.Load())
	})
}

func TestRunner_WaitTimeout(t *testing.T) {
	runner := NewRunner(nil)
	release := make(chan struct{})
	defer close(release)

	runner.Go(context.Background(), time.Minute, "blocked", func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.Error(t, runner.Wait(20*time.Millisecond))
}
