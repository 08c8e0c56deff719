package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFIFOQueue_Order verifies first-in first-out ordering
// Given: A queue with three items pushed in order
// When: Items are popped
// Then: They come out in push order and the queue ends empty
func TestFIFOQueue_Order(t *testing.T) {
	q := NewFIFOQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	require.Equal(t, 3, q.Len())

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

// TestFIFOQueue_Drain verifies Drain returns everything in order and empties the queue
func TestFIFOQueue_Drain(t *testing.T) {
	q := NewFIFOQueue[string]()
	assert.Nil(t, q.Drain())

	q.Push("a")
	q.Push("b")

	assert.Equal(t, []string{"a", "b"}, q.Drain())
	assert.Equal(t, 0, q.Len())
}

// TestFIFOQueue_Compaction verifies the queue keeps working across compaction
// Given: A queue grown well past the compaction threshold
// When: Most items are popped and more are pushed
// Then: Order is preserved throughout
func TestFIFOQueue_Compaction(t *testing.T) {
	q := NewFIFOQueue[int]()
	for i := range 1000 {
		q.Push(i)
	}
	for i := range 900 {
		got, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, got)
	}
	for i := 1000; i < 1100; i++ {
		q.Push(i)
	}

	require.Equal(t, 200, q.Len())
	for i := 900; i < 1100; i++ {
		got, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, got)
	}
}

func TestFIFOQueue_Clear(t *testing.T) {
	q := NewFIFOQueue[int]()
	q.Push(1)
	q.Clear()
	assert.True(t, q.IsEmpty())
}
