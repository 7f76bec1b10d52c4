package hashmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/hashmap"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	p, err := buffer.NewPool(4096, 4)
	require.NoError(t, err)
	return p
}

func TestNewRejectsInvalidArgs(t *testing.T) {
	p := newTestPool(t)
	_, err := hashmap.New(p, 0, 8, 16)
	assert.ErrorIs(t, err, hashmap.ErrInvalidKeySize)

	_, err = hashmap.New(p, 8, 8, 0)
	assert.ErrorIs(t, err, hashmap.ErrInvalidBucketCount)
}

func TestNumberOfChainsIsPowerOfTwo(t *testing.T) {
	p := newTestPool(t)
	m, err := hashmap.New(p, 8, 8, 100)
	require.NoError(t, err)

	n := m.NumberOfChains()
	assert.Equal(t, n&(n-1), uint64(0))
	assert.GreaterOrEqual(t, n, uint64(100))
	assert.Equal(t, m.Mask(), n-1)
}

func TestInsertEntryBuildsLIFOChain(t *testing.T) {
	p := newTestPool(t)
	m, err := hashmap.New(p, 8, 8, 16)
	require.NoError(t, err)

	mask := m.Mask()
	hash := uint64(5) // fixed so both entries collide into the same chain
	pos := hash & mask

	first := m.InsertEntry(hash)
	first.Key = []byte("a")
	second := m.InsertEntry(hash)
	second.Key = []byte("b")

	head := m.GetChain(pos)
	require.NotNil(t, head)
	assert.Equal(t, "b", string(head.Key))
	require.NotNil(t, head.Next)
	assert.Equal(t, "a", string(head.Next.Key))
	assert.Nil(t, head.Next.Next)

	assert.Equal(t, uint64(2), m.NumberOfTuples())
}

func TestInsertEntryAllocatesNewPageLazily(t *testing.T) {
	p := newTestPool(t)
	m, err := hashmap.New(p, 8, 8, 16)
	require.NoError(t, err)

	require.Equal(t, 0, m.NumberOfPages())
	m.InsertEntry(1)
	assert.Equal(t, 1, m.NumberOfPages())
}

func TestFindConfirmsKeyEquality(t *testing.T) {
	p := newTestPool(t)
	m, err := hashmap.New(p, 8, 8, 16)
	require.NoError(t, err)

	e := m.InsertEntry(42)
	e.Key = []byte("needle")

	found := m.Find(42, func(e *hashmap.Entry) bool { return string(e.Key) == "needle" })
	require.NotNil(t, found)
	assert.Same(t, e, found)

	notFound := m.Find(42, func(e *hashmap.Entry) bool { return string(e.Key) == "haystack" })
	assert.Nil(t, notFound)
}

func TestAllocateVarSizedReusesPageUntilFull(t *testing.T) {
	p := newTestPool(t)
	m, err := hashmap.New(p, 8, 8, 16)
	require.NoError(t, err)
	defer m.Destroy()

	a, err := m.AllocateVarSized(8)
	require.NoError(t, err)
	require.Len(t, a, 8)
	assert.Equal(t, 1, m.NumberOfVarSizedPages())

	b, err := m.AllocateVarSized(8)
	require.NoError(t, err)
	require.Len(t, b, 8)
	assert.Equal(t, 1, m.NumberOfVarSizedPages())
}

func TestEachVisitsEveryEntry(t *testing.T) {
	p := newTestPool(t)
	m, err := hashmap.New(p, 8, 8, 16)
	require.NoError(t, err)

	for i := uint64(0); i < 20; i++ {
		e := m.InsertEntry(i)
		e.Value = []byte{byte(i)}
	}

	seen := 0
	m.Each(func(e *hashmap.Entry) { seen++ })
	assert.Equal(t, 20, seen)
}
