package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/capture"
	"firestige.xyz/otus/internal/classifier"
	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/queue"
)

func init() {
	log.Init(log.DefaultConfig())
}

type fakeStore struct {
	mu      sync.Mutex
	inserts int
}

func (f *fakeStore) InsertOne(ctx context.Context, rec *classifier.ClassifiedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

func newTestBuffer() *queue.DoubleBufferQueue[capture.RawPacket] {
	return queue.NewDoubleBufferQueue[capture.RawPacket](queue.DoubleBufferQueueConfig{
		MinSize: 64, MaxSize: 1024, GrowthFactor: 1.5, ShrinkFactor: 0.5,
	})
}

func TestConsumer_PanicsOnInvalidConfig(t *testing.T) {
	buf := newTestBuffer()
	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	store := &fakeStore{}

	assert.Panics(t, func() { New(buf, pipeline, store, Config{MaxWorkers: 0, BatchSize: 10}) })
	assert.Panics(t, func() { New(buf, pipeline, store, Config{MaxWorkers: 2, BatchSize: 0}) })
	assert.Panics(t, func() { New(nil, pipeline, store, Config{MaxWorkers: 2, BatchSize: 10}) })
}

func TestConsumer_ProcessesEnqueuedPackets(t *testing.T) {
	buf := newTestBuffer()
	buf.Start()
	defer buf.Stop()

	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	store := &fakeStore{}
	c := New(buf, pipeline, store, Config{MaxWorkers: 2, BatchSize: 4})
	c.Start()
	defer c.Stop()

	for i := 0; i < 10; i++ {
		buf.Enqueue(capture.RawPacket{Data: make([]byte, 40), Timestamp: float64(i)})
	}

	require.Eventually(t, func() bool {
		return store.count() == 10
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumer_AdjustBatchSizeGrowsOnFastFullBatches(t *testing.T) {
	buf := newTestBuffer()
	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	c := New(buf, pipeline, &fakeStore{}, Config{MaxWorkers: 1, BatchSize: 10})

	before := c.currentBatchSize()
	c.adjustBatchSize(c.maxWaitSeconds*0.1, before)
	after := c.currentBatchSize()

	assert.Greater(t, after, before)
}

func TestConsumer_AdjustBatchSizeShrinksOnSlowOrPartialBatches(t *testing.T) {
	buf := newTestBuffer()
	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	c := New(buf, pipeline, &fakeStore{}, Config{MaxWorkers: 1, BatchSize: 10})

	before := c.currentBatchSize()
	c.adjustBatchSize(c.maxWaitSeconds, before)
	after := c.currentBatchSize()

	assert.Less(t, after, before)
}

func TestConsumer_AdjustBatchSizeNeverBelowMinimum(t *testing.T) {
	buf := newTestBuffer()
	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	c := New(buf, pipeline, &fakeStore{}, Config{MaxWorkers: 1, BatchSize: 10})

	for i := 0; i < 50; i++ {
		c.adjustBatchSize(c.maxWaitSeconds, 0)
	}
	assert.GreaterOrEqual(t, c.currentBatchSize(), c.minBatchSize)
}

func TestConsumer_AdjustBatchSizeNeverAboveMaximum(t *testing.T) {
	buf := newTestBuffer()
	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	c := New(buf, pipeline, &fakeStore{}, Config{MaxWorkers: 1, BatchSize: 10})

	for i := 0; i < 50; i++ {
		c.adjustBatchSize(0, c.maxBatchSize)
	}
	assert.LessOrEqual(t, c.currentBatchSize(), c.maxBatchSize)
}

func TestConsumer_IsRunningReflectsStartStop(t *testing.T) {
	buf := newTestBuffer()
	buf.Start()
	defer buf.Stop()

	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	c := New(buf, pipeline, &fakeStore{}, Config{MaxWorkers: 1, BatchSize: 4})

	assert.False(t, c.IsRunning())
	c.Start()
	assert.True(t, c.IsRunning())
	c.Stop()
	assert.False(t, c.IsRunning())
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	buf := newTestBuffer()
	buf.Start()
	defer buf.Stop()

	pipeline := classifier.NewPipeline(classifier.NewPortRegistry(), nil)
	c := New(buf, pipeline, &fakeStore{}, Config{MaxWorkers: 1, BatchSize: 4})
	c.Start()

	var wg sync.WaitGroup
	var stops int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stop()
			atomic.AddInt32(&stops, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), stops)
}
