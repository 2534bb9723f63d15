package capture

import (
	"sync/atomic"
	"time"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/metrics"
	"firestige.xyz/otus/internal/queue"
)

// RawPacket is the immutable unit a Producer hands off to the
// DoubleBufferQueue, matching SPEC_FULL.md §3's RawPacket.
type RawPacket struct {
	Data      []byte
	Timestamp float64
}

// ProducerMetrics mirrors ProducerMetrics in
// original_source/backend/utils/Interfaces.py.
type ProducerMetrics struct {
	CapturedPacketsCount uint64
}

// Producer is a thin adapter registering itself as the Capturer's callback
// and enqueueing every captured frame, grounded on
// original_source/backend/packet/PacketProducer.py.
type Producer struct {
	capturer *Capturer
	buffer   *queue.DoubleBufferQueue[RawPacket]

	capturedCount uint64
	logger        log.Logger
}

// NewProducer wires a Capturer to buffer. buffer must not be nil, matching
// the original's ValueError("Buffer cannot be None").
func NewProducer(buffer *queue.DoubleBufferQueue[RawPacket], cfg Config) *Producer {
	if buffer == nil {
		panic("buffer cannot be nil")
	}
	p := &Producer{
		capturer: New(cfg),
		buffer:   buffer,
		logger:   log.GetLogger().WithField("component", "Producer"),
	}
	p.capturer.RegisterCallback(p.onPacketCaptured)
	return p
}

// Start begins capturing.
func (p *Producer) Start() error {
	if err := p.capturer.Start(); err != nil {
		p.logger.WithError(err).Error("error in 'start'")
		return err
	}
	p.logger.Infof("producer started at %s", time.Now().Format(time.RFC3339))
	return nil
}

// Stop halts capturing.
func (p *Producer) Stop() {
	p.capturer.Stop()
	p.logger.Infof("producer stopped at %s", time.Now().Format(time.RFC3339))
}

// Restart stops, pauses 500ms, and starts again, matching
// PacketProducer.restart's sleep(0.5) pause.
func (p *Producer) Restart() error {
	p.capturer.Stop()
	time.Sleep(500 * time.Millisecond)
	err := p.capturer.Start()
	p.logger.Infof("producer restarted at %s", time.Now().Format(time.RFC3339))
	return err
}

// ApplyFilter updates the capture filter in place.
func (p *Producer) ApplyFilter(filter string) error {
	return p.capturer.SetFilter(filter)
}

// SetInterface changes which interface the producer will capture from.
func (p *Producer) SetInterface(iface string) {
	p.capturer.SetInterface(iface)
}

// ActiveInterface returns the interface currently configured.
func (p *Producer) ActiveInterface() string {
	return p.capturer.ActiveInterface()
}

// Filter returns the currently cached user filter.
func (p *Producer) Filter() string {
	return p.capturer.CachedFilter()
}

// IsRunning reports whether the underlying capturer is active.
func (p *Producer) IsRunning() bool {
	return p.capturer.IsRunning()
}

// Metrics returns a snapshot of the captured-packet counter.
func (p *Producer) Metrics() ProducerMetrics {
	return ProducerMetrics{CapturedPacketsCount: atomic.LoadUint64(&p.capturedCount)}
}

func (p *Producer) onPacketCaptured(data []byte, timestamp float64) {
	atomic.AddUint64(&p.capturedCount, 1)
	metrics.CapturedPacketsTotal.WithLabelValues(p.ActiveInterface()).Inc()
	// push raw packet to avoid unnecessary parsing leading to packet loss
	p.buffer.Enqueue(RawPacket{Data: data, Timestamp: timestamp})
}
