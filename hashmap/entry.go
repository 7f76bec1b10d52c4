package hashmap

// Entry is one record in a hash chain: the full hash of its key, a
// link to the next entry that collided into the same chain, and the
// entry's key/value payload. Chains are built LIFO, exactly like the
// original engine's insertEntry: a freshly inserted entry becomes the
// new chain head and points at whatever was there before.
type Entry struct {
	Hash  uint64
	Next  *Entry
	Key   []byte
	Value []byte
}

// page is a logical batch of entries allocated together. The original
// engine backs pages with a fixed-size TupleBuffer and computes an
// entry's in-page offset from entrySize; here entries are native Go
// structs instead of a byte-packed record, so a page is simply a slice
// with reserved capacity — but the "entriesPerPage" trigger for
// starting a new page is preserved so NumberOfPages/page accounting
// matches the original's semantics.
type page struct {
	entries []Entry
}

func newPage(entriesPerPage uint64) *page {
	return &page{entries: make([]Entry, 0, entriesPerPage)}
}

func (p *page) full(entriesPerPage uint64) bool {
	return uint64(len(p.entries)) >= entriesPerPage
}
