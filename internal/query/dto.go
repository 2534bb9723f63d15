package query

// TimeRange mirrors Dtos.TimeRange.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// FullPacket mirrors Dtos.FullPacket, the DTO find_by_* queries map raw
// documents into.
type FullPacket struct {
	ID        string  `json:"id" bson:"_id"`
	Timestamp float64 `json:"timestamp" bson:"timestamp"`
	SourceIP  string  `json:"source_ip" bson:"source_ip"`
	SrcPort   int     `json:"src_port" bson:"src_port"`
	DstPort   int     `json:"dst_port" bson:"dst_port"`
	Protocol  string  `json:"protocol" bson:"protocol"`
	Length    int     `json:"length" bson:"length"`
	Region    string  `json:"region" bson:"src_region"`
}

// Page is the paginated envelope every list query returns, per
// SPEC_FULL.md §4.8: `{total, page, page_size, data}`.
type Page[T any] struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Data     []T   `json:"data"`
}

// emptyPage returns the zero-result envelope the spec mandates on a store
// error or empty result set.
func emptyPage[T any](page, pageSize int) Page[T] {
	return Page[T]{Total: 0, Page: page, PageSize: pageSize, Data: []T{}}
}

// TopSourceIP mirrors Dtos.TopSourceIP, with percentages computed against
// the page sum (SPEC_FULL.md §9, Open Question 2 - decided and locked).
type TopSourceIP struct {
	IP               string  `json:"ip"`
	TotalPackets     int64   `json:"total_packets"`
	TotalBytes       int64   `json:"total_bytes"`
	Region           string  `json:"region"`
	PercentPackets   float64 `json:"percentage_packets"`
	PercentBytes     float64 `json:"percentage_bytes"`
}

// ProtocolDistributionItem mirrors Dtos.ProtocolDistributionItem.
type ProtocolDistributionItem struct {
	Protocol        string  `json:"protocol"`
	PacketCount     int64   `json:"packet_count"`
	TotalBytes      int64   `json:"total_bytes"`
	PercentageCount float64 `json:"percentage_count"`
	PercentageBytes float64 `json:"percentage_bytes"`
}

// TrafficSummary mirrors Dtos.TrafficSummary: combines top_source_ips and
// protocol_distribution for one page into totals plus both breakdowns.
type TrafficSummary struct {
	TotalPackets         int64                      `json:"total_packets"`
	TotalBytes           int64                      `json:"total_bytes"`
	TopSourceIPs         []TopSourceIP              `json:"top_source_ips"`
	ProtocolDistribution []ProtocolDistributionItem `json:"protocol_distribution"`
	TimeRange            TimeRange                  `json:"time_range"`
}

// TimeSeriesPoint mirrors Dtos.TimeSeriesData, one bucket's worth.
type TimeSeriesPoint struct {
	TimeRange    TimeRange `json:"time_range"`
	TotalPackets int64     `json:"total_packets"`
	TotalBytes   int64     `json:"total_bytes"`
}
