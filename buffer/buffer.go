package buffer

import "fmt"

// InvalidChildBufferIndex marks the absence of a child buffer slot,
// mirroring the original engine's INVALID_CHILD_BUFFER_INDEX_VALUE.
const InvalidChildBufferIndex = ^uint32(0)

// Buffer is a reference-counted handle to a Segment. Buffer is
// deliberately not copy-safe the way the original C++ handle is (Go has
// no copy constructors): callers that want to share a Buffer across
// goroutines must call Retain explicitly and Release their own copy
// when done, per design note "encode as an arena with explicit
// refcount fields inline in each segment".
type Buffer struct {
	seg *Segment
}

// FromSegment wraps a prepared segment (refcount already 1) into a
// Buffer handle. Used by pool implementations right after Prepare.
func FromSegment(seg *Segment) Buffer {
	return Buffer{seg: seg}
}

// IsValid reports whether the handle references a segment.
func (b Buffer) IsValid() bool {
	return b.seg != nil
}

// Retain returns a new handle to the same segment, incrementing its
// refcount. The caller now owns two handles and must Release both.
func (b Buffer) Retain() Buffer {
	b.seg.Retain()
	return b
}

// Release decrements the segment's refcount, recycling it at zero.
// Calling Release on an invalid (zero-value) Buffer is a no-op.
func (b Buffer) Release() {
	if b.seg != nil {
		b.seg.Release()
	}
}

// Bytes returns the full backing byte region, including the header.
func (b Buffer) Bytes() []byte {
	return b.seg.data
}

// Payload returns the region after the fixed header, where tuple data
// lives.
func (b Buffer) Payload() []byte {
	if len(b.seg.data) <= HeaderSize {
		return nil
	}
	return b.seg.data[HeaderSize:]
}

// Capacity returns the total usable payload capacity.
func (b Buffer) Capacity() int {
	return b.seg.Size() - HeaderSize
}

// NumberOfTuples / SetNumberOfTuples expose the tuple count. Invariant
// (i) from spec §3 (numberOfTuples*tupleSize must not exceed Capacity)
// is left to the caller who knows tupleSize; SetNumberOfTuples stores
// the value without any check.
func (b Buffer) NumberOfTuples() uint32 {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	return b.seg.header.NumberOfTuples
}

func (b Buffer) SetNumberOfTuples(n uint32) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	b.seg.header.NumberOfTuples = n
}

func (b Buffer) Watermark() uint64 {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	return b.seg.header.Watermark
}

func (b Buffer) SetWatermark(ts uint64) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	b.seg.header.Watermark = ts
}

func (b Buffer) SequenceNumber() uint64 {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	return b.seg.header.SequenceNumber
}

func (b Buffer) SetSequenceNumber(seq uint64) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	b.seg.header.SequenceNumber = seq
}

func (b Buffer) OriginID() uint64 {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	return b.seg.header.OriginID
}

func (b Buffer) SetOriginID(id uint64) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	b.seg.header.OriginID = id
}

func (b Buffer) CreationTimestamp() uint64 {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	return b.seg.header.CreationTs
}

func (b Buffer) SetCreationTimestamp(ts uint64) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	b.seg.header.CreationTs = ts
}

// GetNumberOfChildBuffers returns how many child buffers are registered.
func (b Buffer) GetNumberOfChildBuffers() int {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	return len(b.seg.children)
}

// StoreChildBuffer registers child as a nested buffer of b: it records
// the child's slot in b's header child table and has the child take one
// reference on b (the parent), so the parent cannot be recycled while
// this child registration is still alive (spec §3 invariant iv: "child
// buffers hold a reference on their parent"). The caller's own
// reference to child is unaffected.
func (b Buffer) StoreChildBuffer(child Buffer) (uint32, error) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	if int(b.seg.header.ChildBufferCount) >= maxInlineChildBuffers {
		return InvalidChildBufferIndex, fmt.Errorf("buffer: child buffer table full (max %d)", maxInlineChildBuffers)
	}
	idx := uint32(len(b.seg.children))
	b.seg.header.ChildBuffers[b.seg.header.ChildBufferCount] = idx
	b.seg.header.ChildBufferCount++
	b.seg.Retain()
	child.seg.parent = b.seg
	b.seg.children = append(b.seg.children, child.seg)
	return idx, nil
}

// LoadChildBuffer returns a new handle (with its own reference) to the
// child buffer previously stored at idx.
func (b Buffer) LoadChildBuffer(idx uint32) (Buffer, error) {
	b.seg.mu.Lock()
	defer b.seg.mu.Unlock()
	if int(idx) >= len(b.seg.children) {
		return Buffer{}, fmt.Errorf("buffer: child buffer index %d out of range (have %d)", idx, len(b.seg.children))
	}
	child := b.seg.children[idx]
	child.Retain()
	return Buffer{seg: child}, nil
}
