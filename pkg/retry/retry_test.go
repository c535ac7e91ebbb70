package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsValueAfterRetries(t *testing.T) {
	cfg := Config{
		MaxAttempts:    3,
		Timeout:        time.Second,
		InitialBackoff: 20 * time.Millisecond,
	}

	calls := 0
	start := time.Now()
	got := Fetch(context.Background(), cfg, "flaky read", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, -1)

	require.Equal(t, 42, got)
	require.Equal(t, 3, calls)
	// Backoff before attempts 2 and 3: 20ms + 40ms.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFetchTimeoutReturnsFallback(t *testing.T) {
	cfg := Config{
		MaxAttempts:    2,
		Timeout:        50 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
	}

	start := time.Now()
	got := Fetch(context.Background(), cfg, "hanging read", func(ctx context.Context) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, []string{"fallback"})

	require.Equal(t, []string{"fallback"}, got)
	// Two 50ms attempts plus one 10ms backoff, with scheduling slack.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFetchNilSuccessFallsBack(t *testing.T) {
	got := Fetch(context.Background(), DefaultConfig(), "nil read", func(ctx context.Context) ([]int, error) {
		return nil, nil
	}, []int{1, 2})

	assert.Equal(t, []int{1, 2}, got)
}

func TestFetchEmptySliceIsNotFallback(t *testing.T) {
	got := Fetch(context.Background(), DefaultConfig(), "empty read", func(ctx context.Context) ([]int, error) {
		return []int{}, nil
	}, []int{1, 2})

	assert.Empty(t, got)
}

func TestDoStopsAfterSuccess(t *testing.T) {
	cfg := Config{MaxAttempts: 5, Timeout: time.Second, InitialBackoff: time.Millisecond}

	calls := 0
	err := Do(context.Background(), cfg, "write", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsLastError(t *testing.T) {
	cfg := Config{MaxAttempts: 2, Timeout: time.Second, InitialBackoff: time.Millisecond}

	sentinel := errors.New("boom")
	err := Do(context.Background(), cfg, "write", func(ctx context.Context) error {
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
}

func TestDoRespectsParentCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 10, Timeout: time.Second, InitialBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, "cancelled write", func(ctx context.Context) error {
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
