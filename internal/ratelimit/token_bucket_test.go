package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketTryAcquireRespectsCapacity(t *testing.T) {
	b := NewTokenBucket(1000, 2)

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := NewTokenBucket(1000, 1)

	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.TryAcquire())
}

func TestTokenBucketAcquireBlocksUntilAvailable(t *testing.T) {
	b := NewTokenBucket(500, 1)
	require := assert.New(t)
	require.True(b.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	err := b.Acquire(ctx)
	require.NoError(err)
	require.Greater(time.Since(start), time.Duration(0))
}

func TestTokenBucketAcquireRespectsContextCancellation(t *testing.T) {
	b := NewTokenBucket(1, 1)
	assert := assert.New(t)
	assert.True(b.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	assert.Error(err)
}

func TestTokenBucketZeroRateDefaultsToOne(t *testing.T) {
	b := NewTokenBucket(0, 0)
	assert.Equal(t, 1.0, b.rate)
	assert.Equal(t, 1.0, b.capacity)
}
