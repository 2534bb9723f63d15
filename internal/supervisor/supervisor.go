// Package supervisor owns the lifecycle of the whole capture pipeline
// (C1-C7), grounded on original_source/backend/packet/PacketAnalyzer.py's
// start/stop ordering and the teacher's
// internal/otus/module/pipeline/pipeline.go PostConstruct/Boot/Shutdown
// lifecycle (mutex-guarded running flag, ordered sub-module start/stop).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firestige.xyz/otus/internal/capture"
	"firestige.xyz/otus/internal/classifier"
	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/consumer"
	"firestige.xyz/otus/internal/filter"
	"firestige.xyz/otus/internal/geoip"
	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/query"
	"firestige.xyz/otus/internal/queue"
	"firestige.xyz/otus/internal/store"
)

// defaultFilter matches PacketAnalyzer.__init__'s
// set_filter("ip and not ether broadcast and not ether multicast") call.
const defaultFilter = "ip and not ether broadcast and not ether multicast"

// Supervisor wires C1-C7 together and owns their combined start/stop
// sequence, the Go equivalent of PacketAnalyzer/AnalyzerSingleton.
type Supervisor struct {
	mu        sync.Mutex
	isRunning bool

	cfg      *config.GlobalConfig
	registry *classifier.PortRegistry
	region   *geoip.Reader

	buffer   *queue.DoubleBufferQueue[capture.RawPacket]
	producer *capture.Producer
	consumer *consumer.Consumer
	store    *store.Store
	queries  *query.Service

	logger log.Logger
}

// New builds a Supervisor wired from cfg but does not connect to the store
// or start capturing - that happens in Start, so construction never blocks
// on I/O.
func New(cfg *config.GlobalConfig) *Supervisor {
	registry := classifier.NewPortRegistry()
	region := geoip.NewReader(cfg.GeoIP.DBAbsolutePath)

	buffer := queue.NewDoubleBufferQueue[capture.RawPacket](queue.DoubleBufferQueueConfig{
		MinSize:      cfg.Queue.MinSize,
		MaxSize:      cfg.Queue.MaxSize,
		GrowthFactor: cfg.Queue.GrowthFactor,
		ShrinkFactor: cfg.Queue.ShrinkFactor,
	})

	producer := capture.NewProducer(buffer, capture.Config{
		Interface:   cfg.Capture.Interface,
		InboundOnly: true,
	})

	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		region:   region,
		buffer:   buffer,
		producer: producer,
		logger:   log.GetLogger().WithField("component", "Supervisor"),
	}
}

// LoadRules applies a persisted rules document to the in-memory port
// registry, matching PacketAnalyzer.set_rules.
func (s *Supervisor) LoadRules(doc *config.RulesDocument) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid rules document: %w", err)
	}
	return s.registry.SetRules(doc.Rules)
}

// SetFilter mirrors PacketAnalyzer.set_filter: a no-op on an empty string,
// errors logged rather than propagated.
func (s *Supervisor) SetFilter(expr string) error {
	if expr == "" {
		return nil
	}
	if err := s.producer.ApplyFilter(expr); err != nil {
		s.logger.WithError(err).Error("error setting filter")
		return err
	}
	return nil
}

// Filter returns the currently cached capture filter.
func (s *Supervisor) Filter() string {
	return s.producer.Filter()
}

// SetInterface changes the capture interface, matching
// PacketAnalyzer.set_interface.
func (s *Supervisor) SetInterface(iface string) {
	s.producer.SetInterface(iface)
}

// ActiveInterface returns the interface currently configured.
func (s *Supervisor) ActiveInterface() string {
	return s.producer.ActiveInterface()
}

// IsRunning matches PacketAnalyzer.is_running: true while any sub-component
// is still active, not merely while the top-level flag is set.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return true
	}
	return s.buffer.IsRunning() ||
		(s.consumer != nil && s.consumer.IsRunning()) ||
		s.producer.IsRunning()
}

// QueryService returns the query engine (C8) bound to the connected store,
// or nil if Start has not connected one yet. This is the read path's sole
// entry point: Query engine -> Store, orthogonal to the capture pipeline.
func (s *Supervisor) QueryService() *query.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// Start connects the store, builds the classifier pipeline and consumer,
// then boots C2 -> C6 -> C4 in that order, mirroring
// PacketAnalyzer.start's double_buffer_queue.start() ->
// packet_consumer.start() -> packet_producer.start() sequence.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("supervisor already running")
	}

	st, err := store.Connect(ctx, store.Config{
		URI:          s.cfg.Database.URI,
		DatabaseName: s.cfg.Database.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to connect store: %w", err)
	}
	s.store = st
	s.queries = query.NewService(st)

	pipeline := classifier.NewPipeline(s.registry, s.region)
	s.consumer = consumer.New(s.buffer, pipeline, st, consumer.Config{
		MaxWorkers: s.cfg.Consumer.MaxWorkers,
		BatchSize:  s.cfg.Consumer.StartBatchSize,
	})

	if err := s.SetFilter(defaultFilter); err != nil {
		s.logger.WithError(err).Warn("failed to apply default filter")
	}

	s.buffer.Start()
	s.consumer.Start()
	if err := s.producer.Start(); err != nil {
		s.consumer.Stop()
		s.buffer.Stop()
		return fmt.Errorf("failed to start producer: %w", err)
	}

	s.isRunning = true
	s.logger.Info("supervisor started")
	return nil
}

// Stop halts C4 -> C6 -> C2, the reverse of Start, matching
// PacketAnalyzer.stop's ordering.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}

	s.producer.Stop()
	s.consumer.Stop()
	s.buffer.Stop()
	s.isRunning = false

	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			s.logger.WithError(err).Warn("error closing store")
		}
		s.store = nil
	}
	s.queries = nil
	s.logger.Info("supervisor stopped")
	return nil
}

// ValidateFilterExpression round-trips a BPF filter string through the
// filter package's parser, matching FilterRule validation at the config
// boundary (internal/filter.ValidateExpression).
func ValidateFilterExpression(expr string) bool {
	return filter.ValidateExpression(expr)
}

// StatusSnapshot is a point-in-time view of the running pipeline. The cmd
// status subcommand does not use it; it reads only the pid file.
type StatusSnapshot struct {
	Running          bool
	ActiveInterface  string
	Filter           string
	ProducerCaptured uint64
	ConsumerMetrics  consumer.Snapshot
	QueueMetrics     queue.DoubleBufferQueueSnapshot
	AsOf             time.Time
}

// Status builds a StatusSnapshot of the in-process pipeline.
func (s *Supervisor) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatusSnapshot{
		Running:         s.isRunning,
		ActiveInterface: s.producer.ActiveInterface(),
		Filter:          s.producer.Filter(),
		QueueMetrics:    s.buffer.Metrics(),
		AsOf:            time.Now(),
	}
	snap.ProducerCaptured = s.producer.Metrics().CapturedPacketsCount
	if s.consumer != nil {
		snap.ConsumerMetrics = s.consumer.MetricsSnapshot()
	}
	return snap
}
