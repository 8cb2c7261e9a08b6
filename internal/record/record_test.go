package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	assert.Equal(t, 160, Size)
}

func TestNew(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		r, err := New("key_1", 15, 2500, 3)
		require.NoError(t, err)

		key, err := r.Key()
		require.NoError(t, err)
		assert.Equal(t, "key_1", key)
		assert.Equal(t, uint64(15), r.Start())
		assert.Equal(t, uint64(2485), r.DataSize())
		assert.Equal(t, uint64(2500), r.End())
		assert.Equal(t, uint64(3), r.Segment())
	})

	t.Run("MaxKey", func(t *testing.T) {
		_, err := New(strings.Repeat("k", MaxKeySize), 0, 1, 0)
		assert.NoError(t, err)
	})

	t.Run("KeyTooLong", func(t *testing.T) {
		_, err := New(strings.Repeat("k", MaxKeySize+1), 0, 1, 0)
		assert.ErrorIs(t, err, ErrKeyTooLong)
		assert.Contains(t, err.Error(), "129")
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		_, err := New("bad\xff", 0, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = New("ключ", 0, 1, 0)
		assert.NoError(t, err)
	})

	t.Run("StartEqualsEnd", func(t *testing.T) {
		_, err := New("k", 10, 10, 0)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("StartAfterEnd", func(t *testing.T) {
		_, err := New("k", 11, 10, 0)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestRoundTrip(t *testing.T) {
	cases := []Record{
		Reconstruct("", 0, 1, 0),
		Reconstruct("key_0", 0, 22, 0),
		Reconstruct("ünïcødé", 1<<40, 1<<24, 7),
		Reconstruct(strings.Repeat("x", MaxKeySize), 4_000_000_000, 16, 1<<33),
	}

	for _, want := range cases {
		b := want.Bytes()
		got, err := Decode(b[:])
		require.NoError(t, err)
		assert.Equal(t, want, got)

		appended := want.AppendBinary([]byte{0xAA})
		require.Len(t, appended, Size+1)
		assert.Equal(t, b[:], appended[1:])
	}
}

func TestLayout(t *testing.T) {
	r := Reconstruct("ab", 0x0102, 0x0304, 0x0506)
	b := r.Bytes()

	assert.Equal(t, byte(2), b[0])
	assert.Equal(t, []byte("ab"), b[8:10])
	assert.Equal(t, make([]byte, MaxKeySize-2), b[10:136])
	assert.Equal(t, []byte{0x02, 0x01}, b[136:138])
	assert.Equal(t, []byte{0x04, 0x03}, b[144:146])
	assert.Equal(t, []byte{0x06, 0x05}, b[152:154])
}

func TestDecode(t *testing.T) {
	t.Run("ShortBuffer", func(t *testing.T) {
		_, err := Decode(make([]byte, Size-1))
		assert.ErrorIs(t, err, ErrShortBuffer)
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		b := Reconstruct("ab", 0, 1, 0).Bytes()
		b[8] = 0xff
		_, err := Decode(b[:])
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("KeySizeOverflow", func(t *testing.T) {
		b := Reconstruct("ab", 0, 1, 0).Bytes()
		b[0] = MaxKeySize + 1
		_, err := Decode(b[:])
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("IgnoresPaddingGarbage", func(t *testing.T) {
		want := Reconstruct("ab", 5, 6, 1)
		b := want.Bytes()
		b[100] = 0x7f
		got, err := Decode(b[:])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestReconstructTruncates(t *testing.T) {
	r := Reconstruct(strings.Repeat("z", MaxKeySize+10), 0, 1, 0)
	key, err := r.Key()
	require.NoError(t, err)
	assert.Len(t, key, MaxKeySize)
}

func TestRelocate(t *testing.T) {
	r, err := New("k", 0, 10, 0)
	require.NoError(t, err)

	moved := r.Relocate(2, 100)
	assert.Equal(t, uint64(2), moved.Segment())
	assert.Equal(t, uint64(100), moved.Start())
	assert.Equal(t, uint64(10), moved.DataSize())
	assert.Equal(t, uint64(0), r.Start())
}
