package index

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/hupe1980/partstore/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, recs ...record.Record) []byte {
	t.Helper()
	var buf []byte
	for _, r := range recs {
		buf = r.AppendBinary(buf)
	}
	return buf
}

func TestRebuild(t *testing.T) {
	var recs []record.Record
	for i := 0; i < 50; i++ {
		r, err := record.New(fmt.Sprintf("key_%d", i), 15, 2500, 0)
		require.NoError(t, err)
		recs = append(recs, r)
	}

	table, err := Rebuild(bytes.NewReader(encode(t, recs...)))
	require.NoError(t, err)
	assert.Equal(t, 50, table.Len())
	assert.Equal(t, uint64(50*2485), table.TotalBytes())

	for _, want := range recs {
		key, err := want.Key()
		require.NoError(t, err)
		got, ok := table.Get(key)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestRebuild_LaterSourcesOverwrite(t *testing.T) {
	first := record.Reconstruct("k", 0, 5, 0)
	second := record.Reconstruct("k", 5, 8, 0)
	third := record.Reconstruct("k", 0, 12, 1)

	table, err := Rebuild(
		bytes.NewReader(encode(t, first, second)),
		bytes.NewReader(encode(t, third)),
	)
	require.NoError(t, err)

	got, ok := table.Get("k")
	require.True(t, ok)
	assert.Equal(t, third, got)
	assert.Equal(t, 1, table.Len())
	// Not deduplicated by key.
	assert.Equal(t, uint64(5+8+12), table.TotalBytes())
}

func TestRebuild_Empty(t *testing.T) {
	table, err := Rebuild(bytes.NewReader(nil), bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())

	table, err = Rebuild()
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestRebuild_TornTail(t *testing.T) {
	data := encode(t, record.Reconstruct("a", 0, 1, 0), record.Reconstruct("b", 1, 1, 0))
	data = data[:len(data)-7]

	table, err := Rebuild(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, uint64(record.Size-7), table.TornBytes())

	_, ok := table.Get("b")
	assert.False(t, ok)
}

func TestRebuild_InvalidKeyAborts(t *testing.T) {
	good := record.Reconstruct("a", 0, 1, 0)
	bad := record.Reconstruct("bb", 0, 1, 0).Bytes()
	bad[8] = 0xff

	data := append(encode(t, good), bad[:]...)
	data = append(data, encode(t, record.Reconstruct("c", 0, 1, 0))...)

	_, err := Rebuild(bytes.NewReader(data))
	require.ErrorIs(t, err, record.ErrInvalidKey)
	assert.Contains(t, err.Error(), "offset 160")
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestRebuild_ReadError(t *testing.T) {
	boom := fmt.Errorf("boom")
	_, err := Rebuild(failingReader{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestPut(t *testing.T) {
	table := New()
	require.NoError(t, table.Put(record.Reconstruct("b", 0, 3, 0)))
	require.NoError(t, table.Put(record.Reconstruct("a", 3, 4, 0)))
	require.NoError(t, table.Put(record.Reconstruct("b", 7, 2, 0)))

	got, ok := table.Get("b")
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.Start())
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, uint64(9), table.TotalBytes())
	assert.Equal(t, []string{"a", "b"}, table.Keys())

	_, ok = table.Get("missing")
	assert.False(t, ok)
}
