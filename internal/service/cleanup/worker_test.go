package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestWorkerRunsPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleaner := &countingCleaner{}
	NewWorker(cleaner, 10*time.Millisecond, zerolog.Nop()).Start(ctx)

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestWorkerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cleaner := &countingCleaner{err: errors.New("db down")}
	NewWorker(cleaner, 10*time.Millisecond, zerolog.Nop()).Start(ctx)
	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	stopped := cleaner.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, cleaner.calls.Load())
}
