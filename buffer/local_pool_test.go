package buffer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
)

func TestLocalBufferPoolOverflowsToGlobal(t *testing.T) {
	global := newTestPool(t, 256, 4)
	local, err := buffer.NewLocalBufferPool(global, 2)
	require.NoError(t, err)

	require.Equal(t, 2, global.AvailableBuffers())
	require.Equal(t, 2, local.AvailableBuffers())

	b1, err := local.TryAcquire()
	require.NoError(t, err)
	b2, err := local.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, 0, local.AvailableBuffers())

	// Local reservation exhausted: falls through to the global pool.
	b3, err := local.TryAcquire()
	require.NoError(t, err)
	assert.True(t, b3.IsValid())
	assert.Equal(t, 1, global.AvailableBuffers())

	b1.Release()
	b2.Release()
	b3.Release()
}

func TestFixedSizeBufferPoolNeverOverflows(t *testing.T) {
	global := newTestPool(t, 256, 4)
	fixed, err := buffer.NewFixedSizeBufferPool(global, 2)
	require.NoError(t, err)

	b1, err := fixed.TryAcquire()
	require.NoError(t, err)
	b2, err := fixed.TryAcquire()
	require.NoError(t, err)

	_, err = fixed.TryAcquire()
	assert.ErrorIs(t, err, buffer.ErrPoolExhausted)
	// The global pool's own reservation is untouched by fixed pool
	// exhaustion: no overflow happened.
	assert.Equal(t, 2, global.AvailableBuffers())

	_, err = fixed.AcquireWithin(10 * time.Millisecond)
	assert.ErrorIs(t, err, buffer.ErrPoolExhausted)

	b1.Release()
	b2.Release()
	assert.Equal(t, 2, fixed.AvailableBuffers())
}

func TestLocalBufferPoolDestroyReturnsToGlobal(t *testing.T) {
	global := newTestPool(t, 256, 4)
	local, err := buffer.NewLocalBufferPool(global, 2)
	require.NoError(t, err)
	require.NoError(t, local.Destroy())

	assert.Equal(t, 4, global.AvailableBuffers())
}

func TestReservedPoolRecycleGoesBackToOwner(t *testing.T) {
	global := newTestPool(t, 256, 4)
	fixed, err := buffer.NewFixedSizeBufferPool(global, 2)
	require.NoError(t, err)

	b, err := fixed.TryAcquire()
	require.NoError(t, err)
	b.Release()

	// Released back into the fixed pool, not the global one.
	assert.Equal(t, 2, fixed.AvailableBuffers())
	assert.Equal(t, 2, global.AvailableBuffers())
}
