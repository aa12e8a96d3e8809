package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryWriteTryReadRoundTrip(t *testing.T) {
	r, err := NewLocal(64)
	require.NoError(t, err)

	msg := []byte("hello")
	require.NoError(t, r.TryWrite(msg))

	out := make([]byte, 5)
	n, err := r.TryRead(out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, msg, out)
}

func TestTryReadOnEmptyIsErrEmpty(t *testing.T) {
	r, err := NewLocal(64)
	require.NoError(t, err)

	out := make([]byte, 8)
	n, err := r.TryRead(out)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFillExactlyThenOneMoreByteIsFull(t *testing.T) {
	r, err := NewLocal(8)
	require.NoError(t, err)

	require.NoError(t, r.TryWrite(make([]byte, 8)))
	err = r.TryWrite([]byte{1})
	assert.ErrorIs(t, err, ErrFull)
}

func TestWrapAroundRoundTrip(t *testing.T) {
	r, err := NewLocal(8)
	require.NoError(t, err)

	// Prime read/write positions near the boundary so the next write wraps.
	require.NoError(t, r.TryWrite([]byte{1, 2, 3, 4, 5, 6}))
	out := make([]byte, 6)
	_, err = r.TryRead(out)
	require.NoError(t, err)

	wrapped := []byte{7, 8, 9, 10}
	require.NoError(t, r.TryWrite(wrapped))
	out2 := make([]byte, 4)
	n, err := r.TryRead(out2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, wrapped, out2)
}

func TestWriteSeqStrictlyIncreases(t *testing.T) {
	r, err := NewLocal(64)
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 5; i++ {
		require.NoError(t, r.TryWrite([]byte{byte(i)}))
		cur := *r.WriteSeqAddr()
		assert.Greater(t, cur, last)
		last = cur
	}
}

func TestPeekCopyDoesNotAdvance(t *testing.T) {
	r, err := NewLocal(64)
	require.NoError(t, err)
	require.NoError(t, r.TryWrite([]byte("abcdef")))

	dst := make([]byte, 3)
	require.NoError(t, r.PeekCopy(dst, 0))
	assert.Equal(t, []byte("abc"), dst)
	assert.EqualValues(t, 6, r.Available())

	out := make([]byte, 6)
	n, err := r.TryRead(out)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestTryWriteBatchAllOrNothing(t *testing.T) {
	r, err := NewLocal(8)
	require.NoError(t, err)

	err = r.TryWriteBatch([][]byte{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	assert.ErrorIs(t, err, ErrFull)
	assert.EqualValues(t, 0, r.Available())

	require.NoError(t, r.TryWriteBatch([][]byte{{1, 2}, {3, 4}}))
	assert.EqualValues(t, 4, r.Available())
}

func TestOpenExistingValidatesHeader(t *testing.T) {
	region := make([]byte, HeaderSize+16)
	created, err := New(region, 16, true)
	require.NoError(t, err)
	require.NoError(t, created.TryWrite([]byte("x")))

	attached, err := New(region, 16, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, attached.Available())

	_, err = New(region, 32, false)
	assert.Error(t, err)
}

func TestZeroLengthWriteIsNoop(t *testing.T) {
	r, err := NewLocal(16)
	require.NoError(t, err)
	require.NoError(t, r.TryWrite(nil))
	assert.EqualValues(t, 0, r.Available())
}
