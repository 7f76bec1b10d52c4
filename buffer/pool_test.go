package buffer_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
)

func newTestPool(t *testing.T, bufferSize, numBuffers uint32) *buffer.Pool {
	t.Helper()
	p, err := buffer.NewPool(bufferSize, numBuffers)
	require.NoError(t, err)
	return p
}

func TestPoolAcquireReleaseConservation(t *testing.T) {
	p := newTestPool(t, 256, 4)
	require.Equal(t, 4, p.AvailableBuffers())

	b, err := p.TryAcquire()
	require.NoError(t, err)
	require.True(t, b.IsValid())
	assert.Equal(t, 3, p.AvailableBuffers())

	b.Release()
	assert.Equal(t, 4, p.AvailableBuffers())
}

func TestPoolExhaustionReturnsErrPoolExhausted(t *testing.T) {
	p := newTestPool(t, 256, 2)
	b1, err := p.TryAcquire()
	require.NoError(t, err)
	b2, err := p.TryAcquire()
	require.NoError(t, err)

	_, err = p.TryAcquire()
	assert.ErrorIs(t, err, buffer.ErrPoolExhausted)

	b1.Release()
	b2.Release()
}

// TestPoolExhaustionAndRecycling mirrors spec scenario "pool of 4 buffers,
// 5 concurrent acquirers": one acquirer must block until a buffer is
// recycled, and every buffer handed out must eventually come back.
func TestPoolExhaustionAndRecycling(t *testing.T) {
	p := newTestPool(t, 256, 4)

	var held []buffer.Buffer
	for i := 0; i < 4; i++ {
		b, err := p.TryAcquire()
		require.NoError(t, err)
		held = append(held, b)
	}
	require.Equal(t, 0, p.AvailableBuffers())

	done := make(chan buffer.Buffer, 1)
	go func() {
		b, err := p.AcquireBlocking()
		require.NoError(t, err)
		done <- b
	}()

	select {
	case <-done:
		t.Fatal("AcquireBlocking returned before any buffer was released")
	case <-time.After(20 * time.Millisecond):
	}

	held[0].Release()
	held = held[1:]

	select {
	case b := <-done:
		assert.True(t, b.IsValid())
		held = append(held, b)
	case <-time.After(time.Second):
		t.Fatal("AcquireBlocking never unblocked after release")
	}

	for _, b := range held {
		b.Release()
	}
	assert.Equal(t, 4, p.AvailableBuffers())
}

func TestPoolAcquireWithinTimesOut(t *testing.T) {
	p := newTestPool(t, 256, 1)
	b, err := p.TryAcquire()
	require.NoError(t, err)

	_, err = p.AcquireWithin(10 * time.Millisecond)
	assert.ErrorIs(t, err, buffer.ErrPoolExhausted)

	b.Release()
	b2, err := p.AcquireWithin(10 * time.Millisecond)
	require.NoError(t, err)
	b2.Release()
}

func TestPoolDestroyFailsWithOutstandingReferences(t *testing.T) {
	p := newTestPool(t, 256, 2)
	b, err := p.TryAcquire()
	require.NoError(t, err)

	err = p.Destroy()
	assert.ErrorIs(t, err, buffer.ErrInvariantViolation)

	b.Release()
}

func TestPoolDestroySucceedsWhenAllReleased(t *testing.T) {
	p := newTestPool(t, 256, 2)
	b, err := p.TryAcquire()
	require.NoError(t, err)
	b.Release()

	require.NoError(t, p.Destroy())

	_, err = p.TryAcquire()
	assert.ErrorIs(t, err, buffer.ErrShutdown)
}

// TestPoolConservation exercises concurrent acquire/release and asserts
// allocated - recycled == live, and live == 0 once every handle returns.
func TestPoolConservation(t *testing.T) {
	const numBuffers = 8
	const goroutines = 16
	const iterations = 200

	p := newTestPool(t, 256, numBuffers)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				b, err := p.AcquireBlocking()
				if err != nil {
					if errors.Is(err, buffer.ErrShutdown) {
						return
					}
					t.Error(err)
					return
				}
				b.SetNumberOfTuples(uint32(i))
				b.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, numBuffers, p.AvailableBuffers())
	require.NoError(t, p.Destroy())
}

func TestPoolReserveForLocalPoolRollsBackOnShortfall(t *testing.T) {
	p := newTestPool(t, 256, 2)
	_, err := p.ReserveForLocalPool(3)
	require.Error(t, err)
	assert.Equal(t, 2, p.AvailableBuffers())
}

func TestPoolRejectsBadConfig(t *testing.T) {
	_, err := buffer.NewPool(buffer.HeaderSize, 4)
	assert.Error(t, err)

	_, err = buffer.NewPool(256, 0)
	assert.Error(t, err)
}
