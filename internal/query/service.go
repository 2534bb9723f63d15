package query

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"firestige.xyz/otus/internal/log"
)

// Aggregator is the subset of the Store adapter (C7) the query engine
// needs, kept narrow so this package doesn't import the Mongo driver's
// client/collection types directly.
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline []bson.M) ([]bson.M, error)
}

// facetResult is the shape $facet always produces: a metadata array
// holding at most one {total} document, and a data array of raw documents.
type facetResult struct {
	Metadata []struct {
		Total int64 `bson:"total"`
	} `bson:"metadata"`
	Data []bson.M `bson:"data"`
}

// Service is the CrudService equivalent: it runs PipelineBuilder pipelines
// through the store and maps results into DTOs via one explicit function
// per DTO (distilled spec §9: "metaprogrammed DTO factories... become a
// small set of explicit mapping functions", grounded on
// original_source/backend/service/CrudService.py).
type Service struct {
	store  Aggregator
	logger log.Logger
}

func NewService(store Aggregator) *Service {
	return &Service{store: store, logger: log.GetLogger().WithField("component", "query.Service")}
}

// runPaged executes pipeline, expecting its last stage to be the facet
// pagination primitive, and returns the decoded facet result. On any store
// error it returns a zero facetResult and logs the cause, matching the
// spec's "query methods never raise through the boundary" error policy.
func (s *Service) runPaged(ctx context.Context, pipeline []bson.M) facetResult {
	results, err := s.store.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.WithError(err).Error("aggregate query failed")
		return facetResult{}
	}
	if len(results) == 0 {
		return facetResult{}
	}

	var fr facetResult
	raw, marshalErr := bson.Marshal(results[0])
	if marshalErr != nil {
		s.logger.WithError(marshalErr).Error("failed to re-marshal facet result")
		return facetResult{}
	}
	if err := bson.Unmarshal(raw, &fr); err != nil {
		s.logger.WithError(err).Error("failed to decode facet result")
		return facetResult{}
	}
	return fr
}

func (fr facetResult) total() int64 {
	if len(fr.Metadata) == 0 {
		return 0
	}
	return fr.Metadata[0].Total
}

func mapFullPacket(doc bson.M) FullPacket {
	return FullPacket{
		ID:        bsonString(doc["_id"]),
		Timestamp: bsonFloat(doc["timestamp"]),
		SourceIP:  bsonString(doc["source_ip"]),
		SrcPort:   int(bsonFloat(doc["src_port"])),
		DstPort:   int(bsonFloat(doc["dst_port"])),
		Protocol:  bsonString(doc["protocol"]),
		Length:    int(bsonFloat(doc["length"])),
		Region:    orUnknown(bsonString(doc["src_region"])),
	}
}

// FindByTimeRange mirrors QueryExecutor.find_packets_by_time_range.
func (s *Service) FindByTimeRange(ctx context.Context, start, end float64, page, pageSize int) Page[FullPacket] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		Sort("timestamp", -1).
		Paginate(page, pageSize).
		Build()
	return s.pagedFullPackets(ctx, pipeline, page, pageSize)
}

// FindBySourceIP mirrors QueryExecutor.find_packets_by_ip.
func (s *Service) FindBySourceIP(ctx context.Context, ip string, start, end float64, page, pageSize int) Page[FullPacket] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		MatchSourceIP(ip).
		Sort("timestamp", -1).
		Paginate(page, pageSize).
		Build()
	return s.pagedFullPackets(ctx, pipeline, page, pageSize)
}

// FindByProtocol mirrors QueryExecutor.find_packets_by_protocol.
func (s *Service) FindByProtocol(ctx context.Context, protocol string, start, end float64, page, pageSize int) Page[FullPacket] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		MatchProtocol(protocol).
		Sort("timestamp", -1).
		Paginate(page, pageSize).
		Build()
	return s.pagedFullPackets(ctx, pipeline, page, pageSize)
}

// FindByPort mirrors QueryExecutor.find_packets_by_port.
func (s *Service) FindByPort(ctx context.Context, port int, start, end float64, page, pageSize int) Page[FullPacket] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		MatchPort(port).
		Sort("timestamp", -1).
		Paginate(page, pageSize).
		Build()
	return s.pagedFullPackets(ctx, pipeline, page, pageSize)
}

// FindByRegion mirrors QueryExecutor.find_packets_by_region.
func (s *Service) FindByRegion(ctx context.Context, region string, start, end float64, page, pageSize int) Page[FullPacket] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		MatchRegion(region).
		Sort("timestamp", -1).
		Paginate(page, pageSize).
		Build()
	return s.pagedFullPackets(ctx, pipeline, page, pageSize)
}

func (s *Service) pagedFullPackets(ctx context.Context, pipeline []bson.M, page, pageSize int) Page[FullPacket] {
	fr := s.runPaged(ctx, pipeline)
	if fr.total() == 0 && len(fr.Data) == 0 {
		return emptyPage[FullPacket](page, pageSize)
	}
	data := make([]FullPacket, len(fr.Data))
	for i, doc := range fr.Data {
		data[i] = mapFullPacket(doc)
	}
	return Page[FullPacket]{Total: fr.total(), Page: page, PageSize: pageSize, Data: data}
}

// TopSourceIPs mirrors CrudService.get_top_source_ips, computing
// percentages against the page sum rather than a separate global-sum
// query (SPEC_FULL.md §9, Open Question 2).
func (s *Service) TopSourceIPs(ctx context.Context, start, end float64, page, pageSize int) Page[TopSourceIP] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		GroupBySourceIP().
		Sort("total_bytes", -1).
		Paginate(page, pageSize).
		Build()

	fr := s.runPaged(ctx, pipeline)
	if fr.total() == 0 && len(fr.Data) == 0 {
		return emptyPage[TopSourceIP](page, pageSize)
	}

	items := make([]TopSourceIP, len(fr.Data))
	var packetSum, byteSum int64
	for i, doc := range fr.Data {
		items[i] = TopSourceIP{
			IP:           bsonString(doc["source_ip"]),
			TotalPackets: int64(bsonFloat(doc["total_packets"])),
			TotalBytes:   int64(bsonFloat(doc["total_bytes"])),
			Region:       orUnknown(bsonString(doc["src_region"])),
		}
		packetSum += items[i].TotalPackets
		byteSum += items[i].TotalBytes
	}
	for i := range items {
		items[i].PercentPackets = percentOf(items[i].TotalPackets, packetSum)
		items[i].PercentBytes = percentOf(items[i].TotalBytes, byteSum)
	}
	return Page[TopSourceIP]{Total: fr.total(), Page: page, PageSize: pageSize, Data: items}
}

// ProtocolDistribution mirrors CrudService.get_protocol_distribution.
func (s *Service) ProtocolDistribution(ctx context.Context, start, end float64, page, pageSize int) Page[ProtocolDistributionItem] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		GroupByProtocol().
		Sort("total_packets", -1).
		Paginate(page, pageSize).
		Build()

	fr := s.runPaged(ctx, pipeline)
	if fr.total() == 0 && len(fr.Data) == 0 {
		return emptyPage[ProtocolDistributionItem](page, pageSize)
	}

	items := make([]ProtocolDistributionItem, len(fr.Data))
	var packetSum, byteSum int64
	for i, doc := range fr.Data {
		items[i] = ProtocolDistributionItem{
			Protocol:    bsonString(doc["protocol"]),
			PacketCount: int64(bsonFloat(doc["total_packets"])),
			TotalBytes:  int64(bsonFloat(doc["total_bytes"])),
		}
		packetSum += items[i].PacketCount
		byteSum += items[i].TotalBytes
	}
	for i := range items {
		items[i].PercentageCount = percentOf(items[i].PacketCount, packetSum)
		items[i].PercentageBytes = percentOf(items[i].TotalBytes, byteSum)
	}
	return Page[ProtocolDistributionItem]{Total: fr.total(), Page: page, PageSize: pageSize, Data: items}
}

// TrafficSummary mirrors CrudService.get_traffic_summary: combines
// top_source_ips and protocol_distribution in one page, wraps totals and
// the time range into a single-entry paginated response (total=1),
// matching the distilled spec's traffic_summary contract exactly.
func (s *Service) TrafficSummary(ctx context.Context, start, end float64, page, pageSize int) Page[TrafficSummary] {
	topIPs := s.TopSourceIPs(ctx, start, end, page, pageSize)
	protoDist := s.ProtocolDistribution(ctx, start, end, page, pageSize)

	var totalPackets, totalBytes int64
	for _, ip := range topIPs.Data {
		totalPackets += ip.TotalPackets
		totalBytes += ip.TotalBytes
	}

	summary := TrafficSummary{
		TotalPackets:         totalPackets,
		TotalBytes:           totalBytes,
		TopSourceIPs:         topIPs.Data,
		ProtocolDistribution: protoDist.Data,
		TimeRange:            TimeRange{Start: start, End: end},
	}
	return Page[TrafficSummary]{Total: 1, Page: page, PageSize: pageSize, Data: []TrafficSummary{summary}}
}

// TimeSeries mirrors CrudService.get_time_series_data.
func (s *Service) TimeSeries(ctx context.Context, start, end float64, interval int, page, pageSize int) Page[TimeSeriesPoint] {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(start, end).
		GroupByTimeInterval(float64(interval)).
		Sort("start_time", 1).
		Paginate(page, pageSize).
		Build()

	fr := s.runPaged(ctx, pipeline)
	if fr.total() == 0 && len(fr.Data) == 0 {
		return emptyPage[TimeSeriesPoint](page, pageSize)
	}

	points := make([]TimeSeriesPoint, len(fr.Data))
	for i, doc := range fr.Data {
		startTime := bsonFloat(doc["start_time"])
		points[i] = TimeSeriesPoint{
			TimeRange:    TimeRange{Start: startTime, End: startTime + float64(interval)},
			TotalPackets: int64(bsonFloat(doc["total_packets"])),
			TotalBytes:   int64(bsonFloat(doc["total_bytes"])),
		}
	}
	return Page[TimeSeriesPoint]{Total: fr.total(), Page: page, PageSize: pageSize, Data: points}
}

func percentOf(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func bsonString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func bsonFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
