// Package consumer implements the Consumer worker pool (C6), grounded on
// original_source/backend/packet/PacketConsumer.py and restructured around
// a bounded Go worker pool (sync.WaitGroup plus a buffered in-flight
// semaphore channel) in the idiom of the teacher's
// internal/otus/module/sender/sender.go store/flush goroutine pair.
package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/otus/internal/capture"
	"firestige.xyz/otus/internal/classifier"
	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/queue"
)

// Store is the subset of the persistence adapter (C7) the consumer needs,
// kept here as a narrow interface so this package never imports the Mongo
// driver directly.
type Store interface {
	InsertOne(ctx context.Context, rec *classifier.ClassifiedRecord) error
}

// Config mirrors PacketConsumer's constructor arguments.
type Config struct {
	MaxWorkers int
	BatchSize  int
}

// Consumer reads batches of RawPackets off the shared DoubleBufferQueue,
// classifies and persists each one, and adapts its own batch size to
// observed load, exactly as PacketConsumer does.
type Consumer struct {
	buffer   *queue.DoubleBufferQueue[capture.RawPacket]
	pipeline *classifier.Pipeline
	store    Store

	maxWorkers int
	inFlight   chan struct{}

	minBatchSize    int
	maxBatchSize    int
	currentBatch    int64 // fixed-point: tenths, to allow the *1.5/*0.8 adjustment without losing fractional progress
	maxWaitSeconds  float64
	metricsInterval time.Duration

	metrics Metrics

	stopCh  chan struct{}
	stopped int32
	wg      sync.WaitGroup

	logger log.Logger
}

// New builds a Consumer. Panics on invalid configuration, matching
// PacketConsumer's constructor ValueErrors.
func New(buffer *queue.DoubleBufferQueue[capture.RawPacket], pipeline *classifier.Pipeline, store Store, cfg Config) *Consumer {
	if buffer == nil {
		panic("invalid buffer provided")
	}
	if cfg.MaxWorkers < 1 {
		panic("invalid max_workers value")
	}
	if cfg.BatchSize < 1 {
		panic("invalid batch_size value")
	}

	minBatch := cfg.BatchSize / 2
	if minBatch < 1 {
		minBatch = 1
	}

	return &Consumer{
		buffer:          buffer,
		pipeline:        pipeline,
		store:           store,
		maxWorkers:      cfg.MaxWorkers,
		inFlight:        make(chan struct{}, cfg.MaxWorkers),
		minBatchSize:    minBatch,
		maxBatchSize:    cfg.BatchSize * 4,
		currentBatch:    int64(cfg.BatchSize) * 10,
		maxWaitSeconds:  5,
		metricsInterval: 5 * time.Second,
		stopCh:          make(chan struct{}),
		stopped:         1,
		logger:          log.GetLogger().WithField("component", "Consumer"),
	}
}

func (c *Consumer) currentBatchSize() int {
	v := int(atomic.LoadInt64(&c.currentBatch) / 10)
	if v < 1 {
		return 1
	}
	return v
}

// IsRunning reports whether the consume loop is active.
func (c *Consumer) IsRunning() bool {
	return atomic.LoadInt32(&c.stopped) == 0
}

// Start launches the consume loop and the metrics-logging loop, matching
// PacketConsumer.start's two executor.submit calls.
func (c *Consumer) Start() {
	atomic.StoreInt32(&c.stopped, 0)
	c.stopCh = make(chan struct{})
	c.wg.Add(2)
	go c.consumeLoop()
	go c.monitorMetrics()
	c.logger.Info("PacketConsumer started")
}

// Stop signals both loops to exit and waits for in-flight batches to drain.
func (c *Consumer) Stop() {
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
	c.logFinalMetrics()
	c.logger.Info("Consumer stopped")
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
		}

		start := time.Now()
		batch := c.readBatch(c.currentBatchSize())
		waitTime := time.Since(start).Seconds()
		c.logger.Infof("read batch of %d packets in %.2f seconds", len(batch), waitTime)

		if len(batch) > 0 {
			c.metrics.recordWait(waitTime)
			c.processBatch(batch)
			c.adjustBatchSize(waitTime, len(batch))
		}
	}
}

// readBatch polls the buffer with a blocking timeout of maxWait/2, matching
// _read_batch_from_queue's early-exit conditions.
func (c *Consumer) readBatch(batchSize int) []capture.RawPacket {
	var batch []capture.RawPacket
	deadline := time.Now().Add(time.Duration(c.maxWaitSeconds * float64(time.Second)))
	popTimeout := time.Duration(c.maxWaitSeconds/2*1000) * time.Millisecond

	for len(batch) < batchSize && time.Now().Before(deadline) {
		pkt, ok := c.buffer.PopLeft(true, popTimeout)
		if ok {
			batch = append(batch, pkt)
			continue
		}
		if len(batch) >= c.minBatchSize {
			break
		}
		select {
		case <-c.stopCh:
			return batch
		default:
		}
	}
	return batch
}

// processBatch submits the batch to a worker if the in-flight semaphore has
// room, matching _can_accept_more_tasks/_process_batch's "thread pool
// saturated" warning path. Unlike the original's fire-and-forget future, it
// blocks on the submitted worker completing, so backpressure at this stage
// is "wait", never "drop" (SPEC_FULL.md §4.6).
func (c *Consumer) processBatch(batch []capture.RawPacket) {
	select {
	case c.inFlight <- struct{}{}:
	default:
		c.logger.Warn("thread pool saturated! please adjust max_workers")
		c.inFlight <- struct{}{} // block until a worker frees up: no drops at this stage
	}

	done := make(chan struct{})
	go func() {
		defer func() { <-c.inFlight; close(done) }()
		c.processBatchWorker(batch)
	}()
	<-done
}

func (c *Consumer) processBatchWorker(batch []capture.RawPacket) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	var bytesProcessed uint64
	for _, pkt := range batch {
		n := c.processPacket(pkt)
		bytesProcessed += uint64(n)
	}
	c.metrics.recordBatchProcessing(time.Since(start).Seconds(), len(batch), bytesProcessed)
}

// processPacket parses, classifies, and persists one RawPacket, matching
// _process_packet. Errors are logged and absorbed, never propagated: a
// failure to persist one packet must not stall the batch.
func (c *Consumer) processPacket(pkt capture.RawPacket) int {
	parsed := classifier.ParsePacket(pkt.Data)
	rec := classifier.NewRecord(pkt.Timestamp, len(pkt.Data))
	c.pipeline.Run(parsed, rec)

	err := c.store.InsertOne(context.Background(), rec)
	if err != nil {
		c.logger.WithError(err).Error("error in packet processing")
	} else {
		c.logger.Infof("processed packet: %s, inserted: true", rec.ID)
	}
	return rec.Length
}

// adjustBatchSize mirrors _adjust_batch_size's thresholds exactly,
// including comparing actual_batch_size against the batch size that was
// requested before this round's adjustment.
func (c *Consumer) adjustBatchSize(waitTime float64, actualBatchSize int) {
	current := c.currentBatchSize()
	switch {
	case waitTime < c.maxWaitSeconds*0.5 && actualBatchSize >= current:
		next := float64(current) * 1.5
		if next > float64(c.maxBatchSize) {
			next = float64(c.maxBatchSize)
		}
		atomic.StoreInt64(&c.currentBatch, int64(next*10))
	case waitTime >= c.maxWaitSeconds || actualBatchSize < c.minBatchSize:
		next := float64(current) * 0.8
		if next < float64(c.minBatchSize) {
			next = float64(c.minBatchSize)
		}
		atomic.StoreInt64(&c.currentBatch, int64(next*10))
	}
}

func (c *Consumer) monitorMetrics() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(c.metricsInterval):
			c.logMetrics()
		}
	}
}

func (c *Consumer) logMetrics() {
	s := c.metrics.Snapshot()
	c.logger.Infof(
		"Consumer Metrics - Avg Batch Size: %.2f, Avg Wait Time: %.2fms, Processing Delay: %.2fms, Processed Packets: %d, Current Batch Size: %d",
		s.AvgBatchSize, s.AvgWaitTime*1000, s.ProcessingDelay*1000, s.ProcessedPackets, c.currentBatchSize(),
	)
}

func (c *Consumer) logFinalMetrics() {
	s := c.metrics.Snapshot()
	c.logger.Infof(
		"Final Consumer Metrics - Total Processed: %d, Avg Batch Size: %.2f, Avg Processing Delay: %.2fms",
		s.ProcessedPackets, s.AvgBatchSize, s.ProcessingDelay*1000,
	)
}

// MetricsSnapshot exposes the consumer's current metrics for external
// reporting (e.g. Prometheus export in internal/metrics).
func (c *Consumer) MetricsSnapshot() Snapshot {
	return c.metrics.Snapshot()
}
