package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
)

func TestAcquireUnpooledAllocatesAndReuses(t *testing.T) {
	p := newTestPool(t, 256, 1)

	b, err := p.AcquireUnpooled(4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, b.Capacity())
	first := &b.Bytes()[0]
	b.Release()

	// Same size after release must reuse the holder rather than
	// allocate again: an identical backing bytes pointer is the
	// simplest observable proxy for reuse.
	b2, err := p.AcquireUnpooled(4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, b2.Capacity())
	assert.Same(t, first, &b2.Bytes()[0])
	b2.Release()
}

func TestAcquireUnpooledDistinctSizesDontCollide(t *testing.T) {
	p := newTestPool(t, 256, 1)

	small, err := p.AcquireUnpooled(128)
	require.NoError(t, err)
	large, err := p.AcquireUnpooled(8192)
	require.NoError(t, err)

	assert.Equal(t, 128, small.Capacity())
	assert.Equal(t, 8192, large.Capacity())

	small.Release()
	large.Release()
}

func TestAcquireUnpooledAfterShutdown(t *testing.T) {
	p := newTestPool(t, 256, 1)
	require.NoError(t, p.Destroy())

	_, err := p.AcquireUnpooled(64)
	assert.ErrorIs(t, err, buffer.ErrShutdown)
}
