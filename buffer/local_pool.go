package buffer

import (
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
)

// reservedPool is the shared machinery behind LocalBufferPool and
// FixedSizeBufferPool: both reserve a fixed slice of segments out of
// the global pool up front (spec §4.1 "per-worker local pools") and
// manage their own free queue over that fixed slice. They differ only
// in what happens when the local free queue is empty (see
// LocalBufferPool.AcquireBlocking vs FixedSizeBufferPool.AcquireBlocking).
type reservedPool struct {
	global    *Pool
	segments  []*Segment
	free      lfq.QueueIndirect
	notify    chan struct{}
	destroyed atomix.Bool
}

func newReservedPool(global *Pool, numberOfReservedBuffers int) (*reservedPool, error) {
	segs, err := global.ReserveForLocalPool(numberOfReservedBuffers)
	if err != nil {
		return nil, err
	}
	rp := &reservedPool{
		global:   global,
		segments: segs,
		free:     lfq.New(numberOfReservedBuffers + 1).BuildIndirect(),
		notify:   make(chan struct{}, 1),
	}
	return rp, nil
}

// adopt reassigns each reserved segment's recycler to rp, so releasing
// one of these segments returns it to this local pool's free queue
// instead of the global pool's, and seeds the free queue.
func (rp *reservedPool) adopt(recycler Recycler) error {
	for i, seg := range rp.segments {
		seg.recycler = recycler
		if err := rp.free.Enqueue(uintptr(i)); err != nil {
			return fmt.Errorf("buffer: seeding local free list: %w", err)
		}
	}
	return nil
}

func (rp *reservedPool) wake() {
	select {
	case rp.notify <- struct{}{}:
	default:
	}
}

func (rp *reservedPool) tryAcquire() (Buffer, error) {
	if rp.destroyed.LoadAcquire() {
		return Buffer{}, ErrShutdown
	}
	idx, err := rp.free.Dequeue()
	if err != nil {
		return Buffer{}, ErrPoolExhausted
	}
	seg := rp.segments[idx]
	if err := seg.Prepare(); err != nil {
		return Buffer{}, err
	}
	return FromSegment(seg), nil
}

func (rp *reservedPool) recycle(seg *Segment) {
	for i, s := range rp.segments {
		if s == seg {
			if err := rp.free.Enqueue(uintptr(i)); err != nil {
				panic(fmt.Errorf("%w: local free queue rejected a segment return: %v", ErrInvariantViolation, err))
			}
			rp.wake()
			return
		}
	}
	panic(fmt.Errorf("%w: Recycle called on a segment this local pool does not own", ErrInvariantViolation))
}

func (rp *reservedPool) availableBuffers() int {
	n := 0
	for _, seg := range rp.segments {
		if seg.IsAvailable() {
			n++
		}
	}
	return n
}

// destroy returns every currently-free reserved segment to the global
// pool. Segments still held by a caller at the time of destruction keep
// this pool's Recycle as their return path until released, at which
// point they fall into the now-unreferenced free queue — callers must
// ensure no references are outstanding before destroying a local pool,
// matching the global pool's own shutdown contract.
func (rp *reservedPool) destroy() error {
	if !rp.destroyed.CompareAndSwapAcqRel(false, true) {
		return nil
	}
	var stillHeld int
	for i, seg := range rp.segments {
		if seg.IsAvailable() {
			seg.recycler = rp.global
			_ = rp.global.free.Enqueue(uintptr(rp.global.indexOf(seg)))
			_ = i
		} else {
			stillHeld++
		}
	}
	if stillHeld > 0 {
		return fmt.Errorf("%w: %d segments still held in local pool at shutdown", ErrInvariantViolation, stillHeld)
	}
	return nil
}

// LocalBufferPool reserves a slice of the global pool's buffers for a
// single worker's hot path, but overflows to the global pool directly
// when its own reservation is exhausted (spec §4.1: "reserving a fixed
// slice of the global pool, hot path").
type LocalBufferPool struct {
	*reservedPool
}

// NewLocalBufferPool reserves numberOfReservedBuffers segments from
// global.
func NewLocalBufferPool(global *Pool, numberOfReservedBuffers int) (*LocalBufferPool, error) {
	rp, err := newReservedPool(global, numberOfReservedBuffers)
	if err != nil {
		return nil, err
	}
	lp := &LocalBufferPool{reservedPool: rp}
	if err := rp.adopt(lp); err != nil {
		return nil, err
	}
	return lp, nil
}

func (lp *LocalBufferPool) Recycle(seg *Segment) { lp.reservedPool.recycle(seg) }

// TryAcquire draws from the local reservation first, then the global
// pool without blocking.
func (lp *LocalBufferPool) TryAcquire() (Buffer, error) {
	b, err := lp.tryAcquire()
	if err == nil || !errors.Is(err, ErrPoolExhausted) {
		return b, err
	}
	return lp.global.TryAcquire()
}

// AcquireBlocking draws from the local reservation, falling back to a
// blocking acquire on the global pool when the reservation is empty.
func (lp *LocalBufferPool) AcquireBlocking() (Buffer, error) {
	b, err := lp.tryAcquire()
	if err == nil || !errors.Is(err, ErrPoolExhausted) {
		return b, err
	}
	return lp.global.AcquireBlocking()
}

// AcquireWithin draws from the local reservation, falling back to the
// global pool with the same timeout budget when the reservation is
// empty.
func (lp *LocalBufferPool) AcquireWithin(timeout time.Duration) (Buffer, error) {
	b, err := lp.tryAcquire()
	if err == nil || !errors.Is(err, ErrPoolExhausted) {
		return b, err
	}
	return lp.global.AcquireWithin(timeout)
}

func (lp *LocalBufferPool) AvailableBuffers() int { return lp.availableBuffers() }

func (lp *LocalBufferPool) Destroy() error { return lp.destroy() }

// FixedSizeBufferPool reserves a slice of the global pool and never
// overflows to it: once its reservation is exhausted, callers block or
// fail strictly within that bound. Used where a pipeline stage must
// not be allowed to starve the rest of the system by reaching back
// into the shared global pool under load.
type FixedSizeBufferPool struct {
	*reservedPool
}

// NewFixedSizeBufferPool reserves numberOfReservedBuffers segments from
// global and never requests more.
func NewFixedSizeBufferPool(global *Pool, numberOfReservedBuffers int) (*FixedSizeBufferPool, error) {
	rp, err := newReservedPool(global, numberOfReservedBuffers)
	if err != nil {
		return nil, err
	}
	fp := &FixedSizeBufferPool{reservedPool: rp}
	if err := rp.adopt(fp); err != nil {
		return nil, err
	}
	return fp, nil
}

func (fp *FixedSizeBufferPool) Recycle(seg *Segment) { fp.reservedPool.recycle(seg) }

func (fp *FixedSizeBufferPool) TryAcquire() (Buffer, error) { return fp.tryAcquire() }

func (fp *FixedSizeBufferPool) AcquireBlocking() (Buffer, error) {
	for {
		b, err := fp.tryAcquire()
		if err == nil || !errors.Is(err, ErrPoolExhausted) {
			return b, err
		}
		<-fp.notify
	}
}

func (fp *FixedSizeBufferPool) AcquireWithin(timeout time.Duration) (Buffer, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		b, err := fp.tryAcquire()
		if err == nil || !errors.Is(err, ErrPoolExhausted) {
			return b, err
		}
		select {
		case <-fp.notify:
		case <-deadline.C:
			return Buffer{}, ErrPoolExhausted
		}
	}
}

func (fp *FixedSizeBufferPool) AvailableBuffers() int { return fp.availableBuffers() }

func (fp *FixedSizeBufferPool) Destroy() error { return fp.destroy() }
