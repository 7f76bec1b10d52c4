package buffer

import (
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
)

// Pool is the global tuple buffer pool (spec §4.1). It preallocates one
// contiguous region, carves it into equal-sized segments each prefixed
// by an inline control block, and hands segments out as Buffer handles.
// Free segment indices live in a lock-free MPMC queue — exactly the
// "buffer pool with index-based access" pattern the teacher's own
// package doc describes.
type Pool struct {
	segments   []*Segment
	region     []byte
	free       lfq.QueueIndirect
	notify     chan struct{}
	destroyed  atomix.Bool
	bufferSize uint32
	unpooled   *unpooledFreeList
}

// NewPool preallocates numBuffers segments of bufferSize bytes each
// (including the HeaderSize header) and seeds the free queue with all
// of them. Capacity for the free queue is rounded up to a power of two
// by the underlying lfq builder, matching the teacher's own capacity
// contract.
func NewPool(bufferSize uint32, numBuffers uint32) (*Pool, error) {
	if bufferSize <= HeaderSize {
		return nil, fmt.Errorf("buffer: bufferSize %d must exceed header size %d", bufferSize, HeaderSize)
	}
	if numBuffers < 1 {
		return nil, fmt.Errorf("buffer: numBuffers must be >= 1")
	}

	p := &Pool{
		segments:   make([]*Segment, numBuffers),
		region:     make([]byte, uint64(bufferSize)*uint64(numBuffers)),
		free:       lfq.New(int(numBuffers) + 1).BuildIndirect(),
		notify:     make(chan struct{}, 1),
		bufferSize: bufferSize,
		unpooled:   newUnpooledFreeList(),
	}

	for i := uint32(0); i < numBuffers; i++ {
		start := uint64(i) * uint64(bufferSize)
		seg := NewSegment(p.region[start:start+uint64(bufferSize)], p)
		p.segments[i] = seg
		if err := p.free.Enqueue(uintptr(i)); err != nil {
			return nil, fmt.Errorf("buffer: seeding free list: %w", err)
		}
	}
	return p, nil
}

// BufferSize returns the configured segment size.
func (p *Pool) BufferSize() uint32 { return p.bufferSize }

// NumOfPooledBuffers returns the total number of pooled segments.
func (p *Pool) NumOfPooledBuffers() int { return len(p.segments) }

// AvailableBuffers returns a point-in-time count of free segments.
// Accurate counts need cross-core synchronization the free queue
// deliberately avoids (same rationale as lfq.Queue excluding Len), so
// this walks segments directly instead of trusting queue depth.
// Segments currently reserved by a LocalBufferPool or
// FixedSizeBufferPool recycle to that pool and are not counted here.
func (p *Pool) AvailableBuffers() int {
	n := 0
	for _, seg := range p.segments {
		if seg.IsAvailable() && seg.recycler == Recycler(p) {
			n++
		}
	}
	return n
}

func (p *Pool) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// TryAcquire is the non-blocking variant: it returns ErrPoolExhausted
// immediately if no segment is free.
func (p *Pool) TryAcquire() (Buffer, error) {
	if p.destroyed.LoadAcquire() {
		return Buffer{}, ErrShutdown
	}
	idx, err := p.free.Dequeue()
	if err != nil {
		return Buffer{}, ErrPoolExhausted
	}
	seg := p.segments[idx]
	if err := seg.Prepare(); err != nil {
		return Buffer{}, err
	}
	return FromSegment(seg), nil
}

// AcquireBlocking blocks until a segment becomes available, returning
// ErrShutdown if the pool is destroyed while waiting.
func (p *Pool) AcquireBlocking() (Buffer, error) {
	for {
		b, err := p.TryAcquire()
		if err == nil || !errors.Is(err, ErrPoolExhausted) {
			return b, err
		}
		<-p.notify
	}
}

// AcquireWithin blocks until a segment becomes available or timeout
// elapses, in which case it returns ErrPoolExhausted.
func (p *Pool) AcquireWithin(timeout time.Duration) (Buffer, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		b, err := p.TryAcquire()
		if err == nil || !errors.Is(err, ErrPoolExhausted) {
			return b, err
		}
		select {
		case <-p.notify:
		case <-deadline.C:
			return Buffer{}, ErrPoolExhausted
		}
	}
}

// AcquireUnpooled returns a buffer of arbitrary size for oversized
// variable-sized payload, consulting the size-sorted free list before
// allocating fresh memory.
func (p *Pool) AcquireUnpooled(size uint32) (Buffer, error) {
	if p.destroyed.LoadAcquire() {
		return Buffer{}, ErrShutdown
	}
	return p.unpooled.acquire(size)
}

// Recycle implements Recycler for pooled segments: it returns the
// segment's index to the free queue and wakes one blocked acquirer.
// Unpooled segments carry the unpooled free list as their own
// Recycler (set at allocation time) and never reach this method.
func (p *Pool) Recycle(seg *Segment) {
	idx := p.indexOf(seg)
	if idx < 0 {
		panic(fmt.Errorf("%w: Recycle called on a segment this pool does not own", ErrInvariantViolation))
	}
	if err := p.free.Enqueue(uintptr(idx)); err != nil {
		panic(fmt.Errorf("%w: free queue rejected a segment return: %v", ErrInvariantViolation, err))
	}
	p.wake()
}

func (p *Pool) indexOf(seg *Segment) int {
	for i, s := range p.segments {
		if s == seg {
			return i
		}
	}
	return -1
}

// ReserveForLocalPool pops numberOfReservedBuffers segments out of the
// global free list up front, for use by a LocalBufferPool or
// FixedSizeBufferPool (spec §4.1 "per-worker local pools, hot path").
func (p *Pool) ReserveForLocalPool(numberOfReservedBuffers int) ([]*Segment, error) {
	reserved := make([]*Segment, 0, numberOfReservedBuffers)
	for i := 0; i < numberOfReservedBuffers; i++ {
		idx, err := p.free.Dequeue()
		if err != nil {
			// roll back: return what we already took
			for _, seg := range reserved {
				_ = p.free.Enqueue(uintptr(p.indexOf(seg)))
			}
			return nil, fmt.Errorf("buffer: not enough buffers to reserve: got %d of %d", len(reserved), numberOfReservedBuffers)
		}
		reserved = append(reserved, p.segments[idx])
	}
	return reserved, nil
}

// Destroy tears the pool down. If any segment is still held it returns
// an error wrapping ErrInvariantViolation that lists the held segments'
// indices; it does not panic, and it reports no owning-thread
// information.
func (p *Pool) Destroy() error {
	if !p.destroyed.CompareAndSwapAcqRel(false, true) {
		return nil
	}
	var stillHeld []int
	for i, seg := range p.segments {
		if !seg.IsAvailable() {
			stillHeld = append(stillHeld, i)
		}
	}
	if len(stillHeld) > 0 {
		return fmt.Errorf("%w: %d segments still held at shutdown: %v", ErrInvariantViolation, len(stillHeld), stillHeld)
	}
	return nil
}
