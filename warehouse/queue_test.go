package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootQueue_PushPop(t *testing.T) {
	q := NewRootQueue()

	q.Push("root000001")
	q.Push("root000002")
	assert.Equal(t, 2, q.Len())

	done := make(chan struct{})
	root, ok := q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "root000001", root)

	root, ok = q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "root000002", root)

	assert.Equal(t, 0, q.Len())
}

func TestRootQueue_Dedup(t *testing.T) {
	q := NewRootQueue()

	q.Push("root000001")
	q.Push("root000001")
	q.PushMany([]string{"root000001", "root000002", "root000002"})

	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Has("root000002"))
	assert.False(t, q.Has("root000003"))
}

func TestRootQueue_PopBlocks(t *testing.T) {
	q := NewRootQueue()
	done := make(chan struct{})

	result := make(chan string, 1)
	go func() {
		root, ok := q.Pop(done)
		if ok {
			result <- root
		}
	}()

	select {
	case <-result:
		t.Fatal("Pop should block when queue is empty")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("root000001")

	select {
	case root := <-result:
		assert.Equal(t, "root000001", root)
	case <-time.After(time.Second):
		t.Fatal("Pop should have unblocked")
	}
}

func TestRootQueue_PopDone(t *testing.T) {
	q := NewRootQueue()
	done := make(chan struct{})

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(done)
		result <- ok
	}()

	close(done)

	select {
	case ok := <-result:
		assert.False(t, ok, "Pop should return false when done")
	case <-time.After(time.Second):
		t.Fatal("Pop should have returned")
	}
}

func TestRootQueue_PriorityPromotes(t *testing.T) {
	q := NewRootQueue()
	done := make(chan struct{})

	q.PushMany([]string{"a000000001", "b000000001", "c000000001"})
	q.PushPriority("b000000001")
	q.PushPriority("d000000001")
	q.PushPriority("d000000001")
	q.Push("d000000001")

	var got []string
	for q.Len() > 0 {
		root, _ := q.Pop(done)
		got = append(got, root)
	}
	assert.Equal(t, []string{"b000000001", "d000000001", "a000000001", "c000000001"}, got)
}

func TestRootQueue_Drain(t *testing.T) {
	q := NewRootQueue()

	q.Push("a000000001")
	q.PushPriority("b000000001")

	assert.Equal(t, []string{"b000000001", "a000000001"}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Has("a000000001"))
}
