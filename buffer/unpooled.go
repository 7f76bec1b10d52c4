package buffer

import (
	"fmt"
	"sort"
	"sync"
)

// unpooledHolder tracks one oversized allocation: its segment, declared
// size, and whether it is currently checked out. Mirrors the original
// engine's UnpooledBufferHolder.
type unpooledHolder struct {
	seg  *Segment
	size uint32
	free bool
}

// unpooledFreeList is a size-sorted list of oversized segments, probed
// with a lower-bound scan on acquire and reinserted in sorted position
// on recycle (spec §4.1 "Algorithm", EXPANSION C.1).
type unpooledFreeList struct {
	mu      sync.Mutex
	holders []*unpooledHolder
}

func newUnpooledFreeList() *unpooledFreeList {
	return &unpooledFreeList{}
}

func (u *unpooledFreeList) acquire(size uint32) (Buffer, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	// lower_bound: first holder whose size >= requested size.
	start := sort.Search(len(u.holders), func(i int) bool {
		return u.holders[i].size >= size
	})
	for i := start; i < len(u.holders); i++ {
		h := u.holders[i]
		if h.size != size {
			break
		}
		if h.free {
			h.free = false
			if err := h.seg.Prepare(); err != nil {
				return Buffer{}, err
			}
			return FromSegment(h.seg), nil
		}
	}

	// no exact-size free match: allocate a fresh segment, insert sorted.
	total := uint64(size) + HeaderSize
	data := make([]byte, total)
	seg := NewSegment(data, u)
	if err := seg.Prepare(); err != nil {
		return Buffer{}, fmt.Errorf("buffer: unpooled allocation failed: %w", err)
	}
	h := &unpooledHolder{seg: seg, size: size, free: false}
	u.insertSorted(h)
	return FromSegment(seg), nil
}

func (u *unpooledFreeList) insertSorted(h *unpooledHolder) {
	idx := sort.Search(len(u.holders), func(i int) bool {
		return u.holders[i].size >= h.size
	})
	u.holders = append(u.holders, nil)
	copy(u.holders[idx+1:], u.holders[idx:])
	u.holders[idx] = h
}

// Recycle implements Recycler for unpooled segments: the segment is
// never freed, only marked available for future requests of the same
// size (spec §3 "Unpooled Buffer").
func (u *unpooledFreeList) Recycle(seg *Segment) {
	u.recycle(seg)
}

func (u *unpooledFreeList) recycle(seg *Segment) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, h := range u.holders {
		if h.seg == seg {
			h.free = true
			return
		}
	}
}

// Count returns the number of unpooled segments ever allocated.
func (u *unpooledFreeList) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.holders)
}
