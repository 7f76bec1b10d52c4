package hashmap

import (
	"fmt"

	"github.com/nebulastream/streamcore/buffer"
)

// numberOfPreAllocatedVarSizedItems mirrors the original engine's
// NUMBER_OF_PRE_ALLOCATED_VAR_SIZED_ITEMS: a new var-sized page is sized
// to hold this many items of the requesting size, so a run of
// similarly-sized variable-length keys/values doesn't force one
// unpooled allocation per insert.
const numberOfPreAllocatedVarSizedItems = 64

// varSizedArena is the append-only byte arena backing variable-length
// keys and values (spec §3 "Variable-sized keys/values"), grounded on
// ChainedHashMap::allocateSpaceForVarSized / appendPage. Unlike the
// fixed entry pages, this arena's storage is real buffer.Buffer memory
// pulled from the same pool the rest of the pipeline uses, so var-sized
// hash map growth is visible to the same backpressure and accounting as
// any other buffer.
type varSizedArena struct {
	pool   *buffer.Pool
	pages  []buffer.Buffer
	cursor []uint32 // bytes already handed out per page, parallel to pages
}

func newVarSizedArena(pool *buffer.Pool) *varSizedArena {
	return &varSizedArena{pool: pool}
}

// allocate returns a byte slice of exactly size bytes from the arena,
// growing it with a new unpooled page when the last page can't fit the
// request.
func (a *varSizedArena) allocate(size uint64) ([]byte, error) {
	if n := len(a.pages); n > 0 {
		last := n - 1
		page := a.pages[last]
		used := uint64(a.cursor[last])
		if used+size <= uint64(page.Capacity()) {
			region := page.Payload()[used : used+size]
			a.cursor[last] = uint32(used + size)
			return region, nil
		}
	}

	pageSize := size * numberOfPreAllocatedVarSizedItems
	buf, err := a.pool.AcquireUnpooled(uint32(pageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVarSizedAllocFailed, err)
	}
	a.pages = append(a.pages, buf)
	a.cursor = append(a.cursor, uint32(size))
	return buf.Payload()[:size], nil
}

// release returns every page in the arena to its pool. Called once,
// when the owning hash map is destroyed.
func (a *varSizedArena) release() {
	for _, p := range a.pages {
		p.Release()
	}
	a.pages = nil
	a.cursor = nil
}

func (a *varSizedArena) numberOfPages() int { return len(a.pages) }
