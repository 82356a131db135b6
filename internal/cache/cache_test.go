package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGet_ConcurrentCallersShareOneLoad(t *testing.T) {
	c := New[string, []int]("rows", 0, zerolog.Nop())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) ([]int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []int{1, 2, 3}, nil
	}

	const callers = 8
	results := make([][]int, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Get(context.Background(), "jp/s1", load)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "jp/s1", load)
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []int{1, 2, 3}, results[i])
	}
	assert.Equal(t, 1, c.Len())
}

func TestGet_FailureIsNotCached(t *testing.T) {
	c := New[string, int]("raids", 0, zerolog.Nop())
	boom := errors.New("boom")

	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 42, nil
	}

	_, err := c.Get(context.Background(), "jp", load)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	v, err := c.Get(context.Background(), "jp", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)

	v, err = c.Get(context.Background(), "jp", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestGet_TTL(t *testing.T) {
	c := New[int, int]("ttl", time.Minute, zerolog.Nop())
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, _ := c.Get(context.Background(), 1, load)
	assert.Equal(t, 1, v)

	now = now.Add(59 * time.Second)
	v, _ = c.Get(context.Background(), 1, load)
	assert.Equal(t, 1, v)

	now = now.Add(time.Second)
	v, _ = c.Get(context.Background(), 1, load)
	assert.Equal(t, 2, v)
}

func TestGet_CallerCancellationDoesNotPoisonLoad(t *testing.T) {
	c := New[string, string]("cancel", 0, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value
	load := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
		}
		return "payload", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", load)
		done <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	v, err := c.Get(context.Background(), "k", func(context.Context) (string, error) {
		return "", errors.New("loaded twice")
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Nil(t, loadErr.Load())
}

func TestForget(t *testing.T) {
	c := New[string, int]("forget", 0, zerolog.Nop())
	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, _ = c.Get(context.Background(), "a", load)
	c.Forget("a")
	assert.Zero(t, c.Len())

	v, err := c.Get(context.Background(), "a", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestForget_InFlightLoadIsNotStored(t *testing.T) {
	c := New[string, string]("forget", 0, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	old := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "old", nil
	}

	var wg sync.WaitGroup
	var got string
	var gotErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, gotErr = c.Get(context.Background(), "jp/s1", old)
	}()
	<-started

	c.Forget("jp/s1")
	v, err := c.Get(context.Background(), "jp/s1", func(ctx context.Context) (string, error) {
		return "new", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(release)
	wg.Wait()
	require.NoError(t, gotErr)
	assert.Equal(t, "old", got)

	v, err = c.Get(context.Background(), "jp/s1", func(ctx context.Context) (string, error) {
		return "", errors.New("should not load")
	})
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}
