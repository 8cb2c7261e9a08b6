package segment

import (
	"testing"

	"github.com/hupe1980/partstore/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Empty(t *testing.T) {
	m, err := Load(openDir(t, nil), 0)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, DefaultMaxSize, m.MaxSize())
	for _, k := range directory.Kinds {
		assert.Equal(t, uint64(0), m.LastSegmentCount(k))
		assert.Equal(t, uint64(0), m.LastSegmentSize(k))
		assert.Empty(t, m.Segments(k))
		assert.Equal(t, 0, m.Count(k))
	}

	_, ok := m.Segment(directory.Partition, 0)
	assert.False(t, ok)
}

func TestManager_LatestCreatesAndRotates(t *testing.T) {
	m, err := Load(openDir(t, nil), 10)
	require.NoError(t, err)
	defer m.Close()

	seg, err := m.Latest(directory.Partition)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seg.ID())

	_, err = seg.Append([]byte("0123456"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.LastSegmentCount(directory.Partition))
	assert.Equal(t, uint64(7), m.LastSegmentSize(directory.Partition))

	same, err := m.Latest(directory.Partition)
	require.NoError(t, err)
	assert.Same(t, seg, same)

	// Exceeding the limit is allowed; the next Latest rotates.
	_, err = seg.Append([]byte("789ab"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.LastSegmentCount(directory.Partition))
	assert.Equal(t, uint64(0), m.LastSegmentSize(directory.Partition))

	next, err := m.Latest(directory.Partition)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.ID())
	assert.Equal(t, 2, m.Count(directory.Partition))

	// Kinds rotate independently.
	assert.Equal(t, 0, m.Count(directory.Indices))

	got, ok := m.Segment(directory.Partition, 0)
	require.True(t, ok)
	assert.Same(t, seg, got)
}

func TestManager_LoadExisting(t *testing.T) {
	dir := openDir(t, nil)

	m, err := Load(dir, 0)
	require.NoError(t, err)
	for _, k := range directory.Kinds {
		seg, err := m.Latest(k)
		require.NoError(t, err)
		_, err = seg.Append([]byte("abc"))
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())

	// Leave a gap in the id space.
	seg, err := Open(dir, directory.Indices, 5)
	require.NoError(t, err)
	_, err = seg.Append([]byte("xy"))
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	m, err = Load(dir, 0)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, uint64(0), m.LastSegmentCount(directory.Partition))
	assert.Equal(t, uint64(3), m.LastSegmentSize(directory.Partition))
	assert.Equal(t, uint64(5), m.LastSegmentCount(directory.Indices))
	assert.Equal(t, uint64(2), m.LastSegmentSize(directory.Indices))

	segs := m.Segments(directory.Indices)
	require.Len(t, segs, 2)
	assert.Equal(t, uint64(0), segs[0].ID())
	assert.Equal(t, uint64(5), segs[1].ID())
}
