package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/otus/internal/log"
)

// DoubleBufferQueueMetrics mirrors DoubleBufferQueueMetrics from
// original_source/backend/utils/Interfaces.py.
type DoubleBufferQueueMetrics struct {
	TotalDropped   uint64
	TotalProcessed uint64
	SwapCount      uint64
	LastSwapTime   time.Time
}

// DoubleBufferQueueSnapshot is the full metrics view returned by Metrics,
// mirroring the dict the Python `metrics` property assembles.
type DoubleBufferQueueSnapshot struct {
	DoubleBufferQueueMetrics
	ActiveQueueMetrics     DynamicQueueMetrics
	ProcessingQueueMetrics DynamicQueueMetrics
}

// DoubleBufferQueue fronts a pair of DynamicQueues, always enqueueing into
// the active one and periodically flipping which is active. It is grounded
// on original_source/backend/utils/DoubleBufferQueue.py.
//
// popleft only ever reads from the active queue. The processing queue that
// a swap leaves behind is never drained on its own; this reproduces the
// original implementation's documented quirk ("currently processing queue
// is somehow never used/swapped, so only pop from active queue") rather
// than silently fixing it.
type DoubleBufferQueue[T any] struct {
	queues      [2]*DynamicQueue[T]
	activeIndex int32

	strategy SwapStrategy

	metricsMu sync.Mutex
	metrics   DoubleBufferQueueMetrics

	swapEvent chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	running   int32
	wg        sync.WaitGroup

	logger log.Logger
}

// DoubleBufferQueueConfig mirrors DoubleBufferQueue's Python constructor
// arguments.
type DoubleBufferQueueConfig struct {
	MinSize      int
	MaxSize      int
	GrowthFactor float64
	ShrinkFactor float64
	SwapStrategy SwapStrategy
}

// NewDoubleBufferQueue builds the queue pair. A nil SwapStrategy defaults to
// SizeBasedSwapStrategy(0.75): strictly less than DynamicQueue's own 0.8
// expand threshold, so a buffer is marked for swap before it is forced to
// expand (the inline comment in the original constructor calls this out
// explicitly).
func NewDoubleBufferQueue[T any](cfg DoubleBufferQueueConfig) *DoubleBufferQueue[T] {
	strategy := cfg.SwapStrategy
	if strategy == nil {
		strategy = NewSizeBasedSwapStrategy(0.75)
	}

	dbq := &DoubleBufferQueue[T]{
		queues: [2]*DynamicQueue[T]{
			NewDynamicQueue[T](DynamicQueueConfig{
				MinSize: cfg.MinSize, MaxSize: cfg.MaxSize,
				GrowthFactor: cfg.GrowthFactor, ShrinkFactor: cfg.ShrinkFactor, Name: "1",
			}),
			NewDynamicQueue[T](DynamicQueueConfig{
				MinSize: cfg.MinSize, MaxSize: cfg.MaxSize,
				GrowthFactor: cfg.GrowthFactor, ShrinkFactor: cfg.ShrinkFactor, Name: "2",
			}),
		},
		strategy:  strategy,
		swapEvent: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		logger:    log.GetLogger().WithField("component", "DoubleBufferQueue"),
	}
	return dbq
}

func (d *DoubleBufferQueue[T]) activeQueue() *DynamicQueue[T] {
	return d.queues[atomic.LoadInt32(&d.activeIndex)]
}

func (d *DoubleBufferQueue[T]) processingQueue() *DynamicQueue[T] {
	return d.queues[1-atomic.LoadInt32(&d.activeIndex)]
}

// Start clears and starts both underlying queues and the swap monitor.
func (d *DoubleBufferQueue[T]) Start() {
	atomic.StoreInt32(&d.running, 1)
	d.queues[0].Clear()
	d.queues[1].Clear()
	d.queues[0].Start()
	d.queues[1].Start()

	d.wg.Add(1)
	go d.swapMonitorLoop()
	d.logger.Info("DoubleBufferQueue started")
}

func (d *DoubleBufferQueue[T]) IsRunning() bool {
	return atomic.LoadInt32(&d.running) == 1
}

// Stop stops both underlying queues and the swap monitor.
func (d *DoubleBufferQueue[T]) Stop() {
	d.stopOnce.Do(func() {
		atomic.StoreInt32(&d.running, 0)
		close(d.stopCh)
		d.queues[0].Stop()
		d.queues[1].Stop()
		d.wg.Wait()
		d.logger.Info("DoubleBufferQueue stopped")
	})
}

// Enqueue adds item to the active queue, triggering a swap-event signal if
// the swap strategy now says so.
func (d *DoubleBufferQueue[T]) Enqueue(item T) bool {
	active := d.activeQueue()
	if !active.Enqueue(item) {
		d.metricsMu.Lock()
		d.metrics.TotalDropped++
		d.metricsMu.Unlock()
		return false
	}

	if d.strategy.ShouldSwap(active.Len(), active.CurrentMaxSize()) {
		select {
		case d.swapEvent <- struct{}{}:
		default:
		}
		d.logger.Debug("swap event triggered")
	}
	return true
}

// PopLeft pops only from the active queue, per the original's preserved
// quirk (see the DoubleBufferQueue doc comment).
func (d *DoubleBufferQueue[T]) PopLeft(block bool, timeout time.Duration) (T, bool) {
	item, ok := d.activeQueue().PopLeft(block, timeout)
	if ok {
		d.metricsMu.Lock()
		d.metrics.TotalProcessed++
		d.metricsMu.Unlock()
	}
	return item, ok
}

func (d *DoubleBufferQueue[T]) swapMonitorLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			d.logger.Debug("swap monitor stopped")
			return
		case <-d.swapEvent:
			d.swapBuffers()
		case <-ticker.C:
		}
	}
}

func (d *DoubleBufferQueue[T]) swapBuffers() {
	for {
		old := atomic.LoadInt32(&d.activeIndex)
		if atomic.CompareAndSwapInt32(&d.activeIndex, old, 1-old) {
			break
		}
	}
	d.metricsMu.Lock()
	d.metrics.SwapCount++
	d.metrics.LastSwapTime = time.Now()
	d.metricsMu.Unlock()

	d.strategy.OnSwap()
	d.logger.Info("swapped queues")
}

// Metrics returns a snapshot combining the buffer-level counters with each
// underlying DynamicQueue's own metrics.
func (d *DoubleBufferQueue[T]) Metrics() DoubleBufferQueueSnapshot {
	d.metricsMu.Lock()
	base := d.metrics
	d.metricsMu.Unlock()

	return DoubleBufferQueueSnapshot{
		DoubleBufferQueueMetrics: base,
		ActiveQueueMetrics:       d.activeQueue().GetMetrics(),
		ProcessingQueueMetrics:   d.processingQueue().GetMetrics(),
	}
}
