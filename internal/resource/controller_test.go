package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(ctx, 50))
	require.NoError(t, c.AcquireMemory(ctx, 40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Blocks until released.
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(short, 20), context.DeadlineExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	require.NoError(t, c.AcquireMemory(ctx, 20))
	assert.Equal(t, int64(60), c.MemoryUsage())

	c.ReleaseMemory(40)
	c.ReleaseMemory(20)
	assert.Zero(t, c.MemoryUsage())
}

func TestController_OversizedReservation(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(ctx, 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())
	c.ReleaseMemory(1000)

	require.NoError(t, c.AcquireMemory(ctx, 100))
	c.ReleaseMemory(100)
}

func TestController_Workers(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{MaxConcurrency: 2})
	assert.Equal(t, 2, c.Concurrency())

	require.NoError(t, c.AcquireWorker(ctx))
	require.NoError(t, c.AcquireWorker(ctx))

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireWorker(short))

	c.ReleaseWorker()
	require.NoError(t, c.AcquireWorker(ctx))
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	ctx := context.Background()

	assert.Equal(t, 1, c.Concurrency())
	require.NoError(t, c.AcquireWorker(ctx))
	c.ReleaseWorker()
	require.NoError(t, c.AcquireMemory(ctx, 1<<40))
	c.ReleaseMemory(1 << 40)
	require.NoError(t, c.AcquireIO(ctx, 1<<30))
	assert.Zero(t, c.MemoryUsage())
}

func TestController_IOSplitsLargeRequests(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Larger than the burst; WaitN alone would reject it.
	require.NoError(t, c.AcquireIO(ctx, 1<<20+1))
}

func TestRateLimitedIO(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	data := bytes.Repeat([]byte("x"), 4096)

	var buf bytes.Buffer
	n, err := io.Copy(NewRateLimitedWriter(ctx, &buf, c), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := io.ReadAll(NewRateLimitedReader(ctx, &buf, c))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewRateLimitedWriter(canceled, io.Discard, c).Write(data)
	assert.Error(t, err)
}
