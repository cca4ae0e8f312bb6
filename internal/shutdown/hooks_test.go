package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloser struct {
	closed bool
}

func (m *mockCloser) Close() {
	m.closed = true
}

func TestHooks_AddContext(t *testing.T) {
	t.Run("ignores nil hook", func(t *testing.T) {
		hooks := New(0)
		hooks.AddContext("nil-hook", nil)
		assert.Equal(t, 0, hooks.Len())
	})

	t.Run("ignores nil closer", func(t *testing.T) {
		hooks := New(0)
		hooks.AddClose("nil-closer", nil)
		assert.Equal(t, 0, hooks.Len())
	})
}

func TestHooks_Add(t *testing.T) {
	hooks := New(0)
	failure := errors.New("close failed")

	hooks.Add("nil", nil)
	hooks.Add("cache", func() error { return failure })

	require.Equal(t, 1, hooks.Len())
	assert.ErrorIs(t, hooks.Execute(context.Background()), failure)
}

func TestHooks_ExecuteRunsInReverseOrder(t *testing.T) {
	hooks := New(0)
	var order []string

	for _, name := range []string{"telemetry", "cache", "client"} {
		hooks.AddContext(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	err := hooks.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"client", "cache", "telemetry"}, order)
}

func TestHooks_ExecuteContinuesAfterFailure(t *testing.T) {
	hooks := New(0)
	closer := &mockCloser{}
	failure := errors.New("flush failed")

	hooks.AddClose("cache", closer)
	hooks.AddContext("telemetry", func(context.Context) error { return failure })

	err := hooks.Execute(context.Background())

	assert.ErrorIs(t, err, failure)
	assert.ErrorContains(t, err, "telemetry: flush failed")
	assert.True(t, closer.closed, "later hooks still run")
}

func TestHooks_ExecuteAppliesTimeout(t *testing.T) {
	hooks := New(10 * time.Millisecond)

	var deadline time.Time
	var hasDeadline bool
	hooks.AddContext("slow", func(ctx context.Context) error {
		deadline, hasDeadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := hooks.Execute(context.Background())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(10*time.Millisecond), deadline, time.Second)
}

func TestHooks_ZeroValue(t *testing.T) {
	var hooks Hooks
	called := false
	hooks.AddContext("test", func(context.Context) error { called = true; return nil })

	require.NoError(t, hooks.Execute(context.Background()))
	assert.True(t, called)
}
