package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestTimedLock_AcquireRelease(t *testing.T) {
	l := NewTimedLock("test")
	assert.Equal(t, "test", l.Name())
	require.NoError(t, l.Acquire(context.Background(), time.Second))
	assert.True(t, l.Locked())
	l.Release()
	assert.False(t, l.Locked())
}

func TestTimedLock_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewTimedLock("test")
	require.True(t, l.TryAcquire())

	start := time.Now()
	err := l.Acquire(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, l.Acquire(context.Background(), 0), ErrLockTimeout)
	l.Release()
	assert.NoError(t, l.Acquire(context.Background(), 0))
	l.Release()
}

func TestTimedLock_ContextCancelled(t *testing.T) {
	l := NewTimedLock("test")
	require.True(t, l.TryAcquire())
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimedLock_MutualExclusion(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewTimedLock("test")
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), 5*time.Second); err != nil {
				return
			}
			defer l.Release()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.False(t, l.Locked())
}

func TestRing(t *testing.T) {
	r := NewRing[int](3)
	assert.Equal(t, 3, r.Cap())
	assert.Empty(t, r.Items())

	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, []int{4, 5}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5}, r.Last(10))

	z := NewRing[string](0)
	z.Push("a")
	z.Push("b")
	assert.Equal(t, []string{"b"}, z.Items())
}
