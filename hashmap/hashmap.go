package hashmap

import (
	"github.com/nebulastream/streamcore/buffer"
)

// ChainedHashMap is an open-addressing-by-chaining hash table sized for
// a known, fixed key/value size (aggregation state, join build-side
// rows) with a separate arena for any variable-sized payload a key or
// value needs to reference. Chains are indexed by hash & mask, where
// mask = numberOfChains-1, so numberOfChains is always a power of two
// (spec §3 "Chained Hash Map", grounded on ChainedHashMap.cpp).
//
// A ChainedHashMap is not safe for concurrent use; callers running one
// hash map per worker thread (the common aggregation pipeline shape)
// need no locking, matching the original's per-thread local state.
type ChainedHashMap struct {
	numChains      uint64
	mask           uint64
	entriesPerPage uint64
	keySize        uint64
	valueSize      uint64
	numTuples      uint64

	chains []*Entry
	pages  []*page

	varSized *varSizedArena
}

// New creates an empty ChainedHashMap sized for numberOfBuckets entries
// at the assumed load factor. pool backs the map's variable-sized
// storage arena; it may be nil if the caller never stores var-sized
// keys/values.
func New(pool *buffer.Pool, keySize, valueSize, numberOfBuckets uint64) (*ChainedHashMap, error) {
	if keySize == 0 || valueSize == 0 {
		return nil, ErrInvalidKeySize
	}
	if numberOfBuckets == 0 {
		return nil, ErrInvalidBucketCount
	}

	numChains := calcCapacity(numberOfBuckets, assumedLoadFactor)
	m := &ChainedHashMap{
		numChains:      numChains,
		mask:           numChains - 1,
		entriesPerPage: defaultEntriesPerPage,
		keySize:        keySize,
		valueSize:      valueSize,
		chains:         make([]*Entry, numChains),
		varSized:       newVarSizedArena(pool),
	}
	return m, nil
}

// NumberOfTuples returns how many entries have been inserted.
func (m *ChainedHashMap) NumberOfTuples() uint64 { return m.numTuples }

// NumberOfChains returns the (power-of-two) number of hash chains.
func (m *ChainedHashMap) NumberOfChains() uint64 { return m.numChains }

// NumberOfPages returns how many logical entry pages have been
// allocated so far.
func (m *ChainedHashMap) NumberOfPages() int { return len(m.pages) }

// GetChain returns the head entry of the chain at pos, or nil if the
// chain is empty. pos must be hash&Mask().
func (m *ChainedHashMap) GetChain(pos uint64) *Entry { return m.chains[pos] }

// Mask returns the bitmask used to map a hash into a chain index.
func (m *ChainedHashMap) Mask() uint64 { return m.mask }

// InsertEntry allocates a new entry for hash, threads it onto the head
// of its chain (LIFO, matching the original's insertEntry), and returns
// it so the caller can fill in Key/Value. A new logical page is started
// exactly when numberOfTuples is a multiple of entriesPerPage, mirroring
// "numberOfTuples() % entriesPerPage() == 0" in the original.
func (m *ChainedHashMap) InsertEntry(hash uint64) *Entry {
	if m.numTuples%m.entriesPerPage == 0 || len(m.pages) == 0 {
		m.pages = append(m.pages, newPage(m.entriesPerPage))
	}
	current := m.pages[len(m.pages)-1]
	if current.full(m.entriesPerPage) {
		current = newPage(m.entriesPerPage)
		m.pages = append(m.pages, current)
	}

	current.entries = append(current.entries, Entry{Hash: hash})
	entry := &current.entries[len(current.entries)-1]

	pos := hash & m.mask
	entry.Next = m.chains[pos]
	m.chains[pos] = entry

	m.numTuples++
	return entry
}

// Find walks the chain for hash, returning the first entry for which
// keyEqual reports true (used after narrowing candidates by hash to
// confirm an actual key match, since distinct keys can share a chain).
func (m *ChainedHashMap) Find(hash uint64, keyEqual func(*Entry) bool) *Entry {
	for e := m.GetChain(hash & m.mask); e != nil; e = e.Next {
		if e.Hash == hash && keyEqual(e) {
			return e
		}
	}
	return nil
}

// AllocateVarSized reserves size bytes in the map's variable-sized
// arena and returns them for the caller to copy a key or value into.
func (m *ChainedHashMap) AllocateVarSized(size uint64) ([]byte, error) {
	return m.varSized.allocate(size)
}

// NumberOfVarSizedPages returns how many pages back the variable-sized
// arena.
func (m *ChainedHashMap) NumberOfVarSizedPages() int { return m.varSized.numberOfPages() }

// Destroy releases the map's variable-sized storage back to its pool.
// Fixed entry pages are ordinary Go memory and need no explicit release.
func (m *ChainedHashMap) Destroy() {
	m.varSized.release()
}

// Each calls fn for every entry across every chain, in chain-head-first
// order within each chain and chain-index order across chains.
func (m *ChainedHashMap) Each(fn func(*Entry)) {
	for _, head := range m.chains {
		for e := head; e != nil; e = e.Next {
			fn(e)
		}
	}
}
