package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicQueue_EnqueueDequeue(t *testing.T) {
	q := NewDynamicQueue[int](DynamicQueueConfig{MinSize: 4, MaxSize: 16, GrowthFactor: 1.5, ShrinkFactor: 0.5})
	require.True(t, q.Enqueue(1))
	require.True(t, q.Enqueue(2))
	assert.Equal(t, 2, q.Len())

	v, ok := q.PopLeft(false, 0)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestDynamicQueue_DropsWhenFull(t *testing.T) {
	q := NewDynamicQueue[int](DynamicQueueConfig{MinSize: 2, MaxSize: 2 + 1, GrowthFactor: 2.0, ShrinkFactor: 0.5})
	// the second enqueue fills capacity 2 and expands it to MaxSize (3);
	// once the queue is full at MaxSize the next enqueue is dropped
	q.strategy = NewResizeStrategy(ResizeStrategyConfig{
		ExpandThresholdRatio: 0.999999, ShrinkFactor: 0.5,
		ShrinkThresholdRatio: 0.1, ShrinkTimeout: time.Hour, ShrinkCheckInterval: time.Hour,
	})

	assert.True(t, q.Enqueue(1))
	assert.True(t, q.Enqueue(2))
	assert.True(t, q.Enqueue(3))
	assert.Equal(t, 3, q.CurrentMaxSize())
	assert.False(t, q.Enqueue(4))
	assert.Equal(t, uint64(1), q.GetMetrics().Dropped)
}

func TestDynamicQueue_PopLeftBlockingTimeout(t *testing.T) {
	q := NewDynamicQueue[int](DynamicQueueConfig{MinSize: 4, MaxSize: 16, GrowthFactor: 1.5, ShrinkFactor: 0.5})
	start := time.Now()
	_, ok := q.PopLeft(true, 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDynamicQueue_PopLeftBlockingWakesOnEnqueue(t *testing.T) {
	q := NewDynamicQueue[int](DynamicQueueConfig{MinSize: 4, MaxSize: 16, GrowthFactor: 1.5, ShrinkFactor: 0.5})
	done := make(chan int, 1)
	go func() {
		v, ok := q.PopLeft(true, time.Second)
		if ok {
			done <- v
		} else {
			done <- -1
		}
	}()
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(42)
	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("popleft did not wake on enqueue")
	}
}

func TestDynamicQueue_ExpandsPastMinSize(t *testing.T) {
	q := NewDynamicQueue[int](DynamicQueueConfig{MinSize: 4, MaxSize: 16, GrowthFactor: 2.0, ShrinkFactor: 0.5})
	q.strategy = NewResizeStrategy(ResizeStrategyConfig{
		ExpandThresholdRatio: 0.5, ShrinkFactor: 0.5,
		ShrinkThresholdRatio: 0.1, ShrinkTimeout: time.Hour, ShrinkCheckInterval: time.Hour,
	})
	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.Greater(t, q.CurrentMaxSize(), 4)
}

func TestNewDynamicQueue_PanicsOnInvalidBounds(t *testing.T) {
	assert.Panics(t, func() {
		NewDynamicQueue[int](DynamicQueueConfig{MinSize: 10, MaxSize: 10, GrowthFactor: 1.5, ShrinkFactor: 0.5})
	})
}

func TestNewDynamicQueue_PanicsOnInvalidFactors(t *testing.T) {
	assert.Panics(t, func() {
		NewDynamicQueue[int](DynamicQueueConfig{MinSize: 1, MaxSize: 10, GrowthFactor: 1.0, ShrinkFactor: 0.5})
	})
}
