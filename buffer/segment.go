package buffer

import (
	"encoding/binary"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
)

// HeaderSize is the fixed size, in bytes, of a tuple buffer's persisted
// header (spec §6 "Buffer layout"). Child-buffer indices are packed
// immediately after the fixed header fields, inside the same region.
const HeaderSize = 64

// maxInlineChildBuffers bounds how many child-buffer indices fit after the
// fixed fields within HeaderSize (38 bytes of fixed fields leaves 26
// bytes => 6 u32 indices inline; operators needing more nest buffers).
const maxInlineChildBuffers = (HeaderSize - 38) / 4

// Header is the metadata carried by every tuple buffer: number of
// tuples, watermark timestamp, sequence number, origin id, creation
// timestamp, and the child-buffer index table used for variable-sized
// nested payload (spec §3 "Tuple Buffer").
type Header struct {
	NumberOfTuples   uint32
	Watermark        uint64
	SequenceNumber   uint64
	OriginID         uint64
	CreationTs       uint64
	ChildBufferCount uint16
	ChildBuffers     [maxInlineChildBuffers]uint32
}

// EncodeTo writes the header in little-endian wire format into dst,
// which must be at least HeaderSize bytes.
func (h *Header) EncodeTo(dst []byte) {
	_ = dst[HeaderSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], h.NumberOfTuples)
	binary.LittleEndian.PutUint64(dst[4:12], h.Watermark)
	binary.LittleEndian.PutUint64(dst[12:20], h.SequenceNumber)
	binary.LittleEndian.PutUint64(dst[20:28], h.OriginID)
	binary.LittleEndian.PutUint64(dst[28:36], h.CreationTs)
	binary.LittleEndian.PutUint16(dst[36:38], h.ChildBufferCount)
	off := 38
	for i := 0; i < int(h.ChildBufferCount) && i < maxInlineChildBuffers; i++ {
		binary.LittleEndian.PutUint32(dst[off:off+4], h.ChildBuffers[i])
		off += 4
	}
}

// DecodeFrom reads the header out of its little-endian wire format.
func (h *Header) DecodeFrom(src []byte) {
	_ = src[HeaderSize-1]
	h.NumberOfTuples = binary.LittleEndian.Uint32(src[0:4])
	h.Watermark = binary.LittleEndian.Uint64(src[4:12])
	h.SequenceNumber = binary.LittleEndian.Uint64(src[12:20])
	h.OriginID = binary.LittleEndian.Uint64(src[20:28])
	h.CreationTs = binary.LittleEndian.Uint64(src[28:36])
	h.ChildBufferCount = binary.LittleEndian.Uint16(src[36:38])
	off := 38
	for i := 0; i < int(h.ChildBufferCount) && i < maxInlineChildBuffers; i++ {
		h.ChildBuffers[i] = binary.LittleEndian.Uint32(src[off : off+4])
		off += 4
	}
}

// Recycler is implemented by whatever owns a segment's free list: the
// global pool for pooled segments, the unpooled free list for oversized
// ones. Recycle is invoked exactly once, when a segment's refcount
// transitions to zero.
type Recycler interface {
	Recycle(seg *Segment)
}

// Segment is a fixed-capacity (or, for unpooled segments, arbitrary
// capacity) byte region plus its inline control block. Segments are
// never copied; Buffer handles reference them by pointer and manage
// their lifetime via refcount.
//
// Segments form a child/parent relation, not an ownership chain: a
// child records its index in the parent's header child table and
// takes one reference on the parent (spec §4.1 "Why"). The parent's
// own refcount remains the only lifetime anchor; releasing a child
// releases that one reference on the parent, it does not recurse into
// freeing the parent.
type Segment struct {
	data      []byte
	refcount  atomix.Int64
	recycler  Recycler
	header    Header
	mu        sync.Mutex // guards header mutation (child table, tuple/watermark fields)
	children  []*Segment // resolved child segments, parallel to header.ChildBuffers
	parent    *Segment   // non-nil when this segment was stored as someone's child
	owningPID uint64     // diagnostics slot for an owning worker id; not written by this package
}

// NewSegment wraps a pre-allocated byte region with a fresh, available
// (refcount 0) control block. Callers transition it to held via
// Prepare before handing out a Buffer.
func NewSegment(data []byte, recycler Recycler) *Segment {
	return &Segment{data: data, recycler: recycler}
}

// IsAvailable reports whether the segment currently has no references.
func (s *Segment) IsAvailable() bool {
	return s.refcount.LoadAcquire() == 0
}

// Prepare transitions a segment from available (refcount 0) to held
// (refcount 1) via CAS. A failed CAS means another thread observed the
// same segment as available and raced to acquire it — an invariant
// violation, since ownership of the free-list entry must be exclusive
// by the time Prepare is called.
func (s *Segment) Prepare() error {
	if !s.refcount.CompareAndSwapAcqRel(0, 1) {
		return fmt.Errorf("%w: segment refcount was not zero on prepare", ErrInvariantViolation)
	}
	s.header = Header{}
	s.children = nil
	s.parent = nil
	return nil
}

// Retain adds one reference to the segment. Used when storing a
// segment as a child buffer (the child keeps the parent alive) and
// when a Buffer handle is explicitly shared across goroutines.
func (s *Segment) Retain() {
	s.refcount.AddAcqRel(1)
}

// Release removes one reference. When the count reaches zero the
// segment's recycler is invoked exactly once, and if this segment was
// itself a child buffer, the one reference it held on its parent is
// released in turn — a child never recycles its parent directly, it
// only drops the reference that was keeping the parent alive.
func (s *Segment) Release() {
	if s.refcount.AddAcqRel(-1) == 0 {
		s.recycler.Recycle(s)
		if parent := s.parent; parent != nil {
			s.parent = nil
			parent.Release()
		}
	}
}

func (s *Segment) refCount() int64 {
	return s.refcount.LoadAcquire()
}

// Size returns the segment's total byte capacity.
func (s *Segment) Size() int {
	return len(s.data)
}
