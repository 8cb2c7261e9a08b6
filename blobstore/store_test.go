package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			blobName := "orders-0/partition-00000000000000000000.log"
			data := []byte("hello world, this is a sealed segment")

			w, err := store.Create(ctx, blobName)
			require.NoError(t, err)
			n, err := w.Write(data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)

			// Not visible before Close.
			_, err = store.Open(ctx, blobName)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			blob, err := store.Open(ctx, blobName)
			require.NoError(t, err)
			defer blob.Close()
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err = blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			assert.Equal(t, "world", string(buf))

			r, err := blob.ReadRange(ctx, 13, 4)
			require.NoError(t, err)
			content, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, "this", string(content))

			require.NoError(t, store.Put(ctx, "orders-0/manifest.json", []byte("{}")))

			names, err := store.List(ctx, "orders-0/")
			require.NoError(t, err)
			assert.Equal(t, []string{"orders-0/manifest.json", blobName}, names)

			names, err = store.List(ctx, "orders-1/")
			require.NoError(t, err)
			assert.Empty(t, names)

			require.NoError(t, store.Delete(ctx, blobName))
			require.NoError(t, store.Delete(ctx, blobName))

			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"orders-0/manifest.json"}, names)

			_, err = store.Open(ctx, blobName)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStore_ReadRangeBoundaries(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("0123456789")
			require.NoError(t, store.Put(ctx, "boundary.bin", data))

			blob, err := store.Open(ctx, "boundary.bin")
			require.NoError(t, err)
			defer blob.Close()

			read := func(off, length int64) string {
				r, err := blob.ReadRange(ctx, off, length)
				require.NoError(t, err)
				defer r.Close()
				content, err := io.ReadAll(r)
				require.NoError(t, err)
				return string(content)
			}

			assert.Equal(t, string(data), read(0, 10))
			assert.Equal(t, "89", read(8, 5))
			assert.Empty(t, read(20, 5))

			buf := make([]byte, 4)
			n, err := blob.ReadAt(ctx, buf, 8)
			assert.Equal(t, 2, n)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadAllAndCopy(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := bytes.Repeat([]byte("segment"), 1000)

			n, err := Copy(ctx, store, "seg", bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), n)

			got, err := ReadAll(ctx, store, "seg")
			require.NoError(t, err)
			assert.Equal(t, data, got)

			_, err = ReadAll(ctx, store, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("source failed") }

func TestCopyAbortsOnError(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := Copy(ctx, store, "broken", io.MultiReader(bytes.NewReader([]byte("partial")), failingReader{}))
			require.Error(t, err)

			_, err = store.Open(ctx, "broken")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestLocalStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, store.Put(ctx, "a/b.log", []byte("x")))

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.log", entries[0].Name())

	blob, err := store.Open(ctx, "a/b.log")
	require.NoError(t, err)
	m, ok := blob.(Mappable)
	require.True(t, ok)
	b, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
	require.NoError(t, blob.Close())
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "nope"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
