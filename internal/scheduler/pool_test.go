package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxInFlight int32

	items := make([]int, 10)
	err := RunAll(context.Background(), p, items, func(ctx context.Context, item int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if cur <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight, int32(2))
}

func TestRunAllJoinsErrors(t *testing.T) {
	p := New(4)
	items := []int{1, 2, 3}
	err := RunAll(context.Background(), p, items, func(ctx context.Context, item int) error {
		if item == 2 {
			return assertErr
		}
		return nil
	})
	require.Error(t, err)
}

var assertErr = context.DeadlineExceeded

func TestPoolCloseRejectsNewWork(t *testing.T) {
	p := New(1)
	p.Close()
	err := p.Go(context.Background(), func(ctx context.Context) {})
	require.Error(t, err)
}
