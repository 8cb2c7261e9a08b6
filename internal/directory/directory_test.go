package directory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "partition-00000000000000000007.log", FileName(Partition, 7))
	assert.Equal(t, "indices-00000000000000000000.idx", FileName(Indices, 0))

	k, id, ok := ParseFileName("indices-00000000000000000042.idx")
	require.True(t, ok)
	assert.Equal(t, Indices, k)
	assert.Equal(t, uint64(42), id)

	for _, name := range []string{"LOCK", "partition-x.log", "indices-00000000000000000001.log", "foo.idx"} {
		_, _, ok := ParseFileName(name)
		assert.False(t, ok, name)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
}

func TestDirectory_Lifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "topic_0")
	d, err := Open(nil, root)
	require.NoError(t, err)

	for _, id := range []uint64{2, 0, 1} {
		f, err := d.OpenFile(Partition, id)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	f, err := d.OpenFile(Indices, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ids, err := d.List(Partition)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, ids)

	ids, err = d.List(Indices)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, ids)

	require.NoError(t, d.Remove(Partition, 1))
	ids, err = d.List(Partition)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, ids)

	require.NoError(t, d.RemoveAll())
	_, err = d.FS().Stat(root)
	assert.Error(t, err)
}

func TestDirectory_AppendMode(t *testing.T) {
	d, err := Open(nil, t.TempDir())
	require.NoError(t, err)

	f, err := d.OpenFile(Partition, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = d.OpenFile(Partition, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write([]byte("def"))
	require.NoError(t, err)

	buf := make([]byte, 6)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(buf))
}

func TestDirectory_Lock(t *testing.T) {
	root := t.TempDir()
	a, err := Open(nil, root)
	require.NoError(t, err)
	b, err := Open(nil, root)
	require.NoError(t, err)

	require.NoError(t, a.Lock())
	require.NoError(t, a.Lock())
	assert.ErrorIs(t, b.Lock(), ErrLocked)

	require.NoError(t, a.Unlock())
	require.NoError(t, b.Lock())
	require.NoError(t, b.Unlock())
	require.NoError(t, b.Unlock())
}
