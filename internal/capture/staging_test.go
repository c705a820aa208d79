package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingBuffer_DrainsOnlyFullChunks(t *testing.T) {
	t.Parallel()

	s := NewStagingBuffer(64)
	n, err := s.Push([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, ok := s.TryDrain(8)
	assert.False(t, ok, "fewer than chunkBytes staged")
	assert.Equal(t, 5, s.Buffered())

	_, err = s.Push([]byte{6, 7, 8})
	require.NoError(t, err)

	chunk, ok := s.TryDrain(8)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, chunk)
	assert.Equal(t, 0, s.Buffered())
}

func TestStagingBuffer_AccumulatesAcrossPushes(t *testing.T) {
	t.Parallel()

	s := NewStagingBuffer(64)
	_, _ = s.Push([]byte{1, 2})
	_, _ = s.Push([]byte{3, 4})
	_, _ = s.Push([]byte{5, 6})

	chunk, ok := s.TryDrain(6)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, chunk)
}

func TestStagingBuffer_ResizeCarriesForwardPendingBytes(t *testing.T) {
	t.Parallel()

	s := NewStagingBuffer(64)
	_, _ = s.Push([]byte{1, 2, 3, 4})

	s.Resize(32)

	assert.Equal(t, 4, s.Buffered())
	chunk, ok := s.TryDrain(4)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, chunk)
}

func TestStagingBuffer_ResizeDropsOldestExcessWhenShrinking(t *testing.T) {
	t.Parallel()

	s := NewStagingBuffer(64)
	_, _ = s.Push([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	s.Resize(4)

	assert.Equal(t, 4, s.Buffered())
	chunk, ok := s.TryDrain(4)
	require.True(t, ok)
	assert.Equal(t, []byte{5, 6, 7, 8}, chunk, "oldest bytes dropped, newest retained")
}

func TestStagingBuffer_ResizeToNonPositiveFallsBackToFloor(t *testing.T) {
	t.Parallel()

	s := NewStagingBuffer(64)
	_, _ = s.Push([]byte{1, 2})

	s.Resize(0)

	assert.Equal(t, 2, s.Buffered())
}
