package governor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatdb/pkg/remote"
)

func TestDoRetriesThroughCoolDowns(t *testing.T) {
	gov := New(Config{RPS: 10000, Burst: 1000, MaxRetries: 5, MaxWait: 10 * time.Second})

	const rejections = 2
	const coolDown = 40 * time.Millisecond
	calls := 0
	start := time.Now()
	err := gov.Do(context.Background(), "messages.send", func(ctx context.Context) (remote.RateInfo, error) {
		calls++
		if calls <= rejections {
			return remote.RateInfo{}, &remote.RateLimitedError{RetryAfter: coolDown}
		}
		return remote.RateInfo{}, nil
	})
	require.NoError(t, err, "rejections must stay invisible to the caller")
	require.Equal(t, rejections+1, calls)
	require.GreaterOrEqual(t, time.Since(start), time.Duration(rejections)*coolDown,
		"must park at least the indicated cool-down per rejection")
}

func TestDoSurfacesRateLimitExceeded(t *testing.T) {
	gov := New(Config{RPS: 10000, Burst: 1000, MaxRetries: 2, MaxWait: 10 * time.Second})

	calls := 0
	err := gov.Do(context.Background(), "messages.send", func(ctx context.Context) (remote.RateInfo, error) {
		calls++
		return remote.RateInfo{}, &remote.RateLimitedError{RetryAfter: time.Millisecond}
	})
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	require.Equal(t, 3, calls, "initial attempt plus MaxRetries")
}

func TestDoRetriesTransientFailures(t *testing.T) {
	gov := New(Config{RPS: 10000, Burst: 1000, MaxRetries: 3, MaxWait: 10 * time.Second})

	calls := 0
	err := gov.Do(context.Background(), "channels.list", func(ctx context.Context) (remote.RateInfo, error) {
		calls++
		if calls == 1 {
			return remote.RateInfo{}, fmt.Errorf("%w: connection reset", remote.ErrUnavailable)
		}
		return remote.RateInfo{}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDoPassesThroughNonTransientErrors(t *testing.T) {
	gov := New(Config{RPS: 10000, Burst: 1000})

	calls := 0
	err := gov.Do(context.Background(), "messages.get", func(ctx context.Context) (remote.RateInfo, error) {
		calls++
		return remote.RateInfo{}, remote.ErrNotFound
	})
	require.ErrorIs(t, err, remote.ErrNotFound)
	require.Equal(t, 1, calls, "not-found must never be retried")
}

func TestDoHonorsContextDuringCoolDown(t *testing.T) {
	gov := New(Config{RPS: 10000, Burst: 1000, MaxRetries: 5, MaxWait: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := gov.Do(ctx, "messages.send", func(ctx context.Context) (remote.RateInfo, error) {
		return remote.RateInfo{}, &remote.RateLimitedError{RetryAfter: time.Minute}
	})
	require.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))
}

func TestObserveRetunesRouteBucket(t *testing.T) {
	gov := New(Config{RPS: 5, Burst: 5})
	gov.Observe("messages.list", remote.RateInfo{Limit: 120, Remaining: 119, ResetAfter: 60 * time.Second})
	l := gov.limiter("messages.list")
	require.InDelta(t, 2.0, float64(l.Limit()), 0.01, "120 per 60s window is 2 rps")
}

func TestAcquireSerializesUnderConcurrency(t *testing.T) {
	// burst 1 at a modest rate: three concurrent acquires must spread out
	gov := New(Config{RPS: 50, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			done <- gov.Acquire(ctx, "messages.send")
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"two of three tokens must wait for refill at 50 rps")
}
