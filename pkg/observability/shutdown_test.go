package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager(t *testing.T) {
	t.Run("runs in reverse order", func(t *testing.T) {
		sm := NewShutdownManager(nil, time.Second)
		var order []string
		sm.Register("db", func(ctx context.Context) error { order = append(order, "db"); return nil })
		sm.Register("server", func(ctx context.Context) error { order = append(order, "server"); return nil })

		assert.NoError(t, sm.Shutdown(context.Background()))
		assert.Equal(t, []string{"server", "db"}, order)
	})

	t.Run("continues after failure", func(t *testing.T) {
		sm := NewShutdownManager(nil, time.Second)
		ran := false
		sm.Register("db", func(ctx context.Context) error { ran = true; return nil })
		sm.Register("cron", func(ctx context.Context) error { return errors.New("stuck") })

		err := sm.Shutdown(context.Background())
		assert.EqualError(t, err, "shutdown completed with 1 errors")
		assert.True(t, ran)
	})

	t.Run("deadline is applied", func(t *testing.T) {
		sm := NewShutdownManager(nil, 10*time.Millisecond)
		sm.Register("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.Error(t, sm.Shutdown(context.Background()))
	})
}
