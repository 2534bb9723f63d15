// Package query implements the Query engine (C8): a composable
// PipelineBuilder plus a CrudService mapping raw aggregate results into
// DTOs, grounded on original_source/backend/db/PipelineBuilder.py,
// QueryExecutor.py and backend/service/CrudService.py.
package query

import "go.mongodb.org/mongo-driver/bson"

// PipelineBuilder accumulates aggregation stages in order, mirroring
// PipelineBuilder.py's mixin-of-stage-methods design (distilled spec §9:
// one small composable builder, not a class hierarchy per query shape).
type PipelineBuilder struct {
	stages []bson.M
}

func NewPipelineBuilder() *PipelineBuilder {
	return &PipelineBuilder{}
}

// Build returns the accumulated pipeline. Stage order is preserved exactly
// as appended, matching SPEC_FULL.md §4.7's ordering guarantee.
func (b *PipelineBuilder) Build() []bson.M {
	return b.stages
}

// Reset clears the builder for reuse, matching PipelineBuilder.reset.
func (b *PipelineBuilder) Reset() *PipelineBuilder {
	b.stages = nil
	return b
}

func (b *PipelineBuilder) Match(predicate bson.M) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$match": predicate})
	return b
}

func (b *PipelineBuilder) Project(fields bson.M) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$project": fields})
	return b
}

func (b *PipelineBuilder) Sort(field string, order int) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$sort": bson.M{field: order}})
	return b
}

func (b *PipelineBuilder) Limit(n int) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$limit": n})
	return b
}

func (b *PipelineBuilder) Skip(n int) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$skip": n})
	return b
}

func (b *PipelineBuilder) Unwind(field string) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$unwind": "$" + field})
	return b
}

func (b *PipelineBuilder) Group(grouping bson.M) *PipelineBuilder {
	b.stages = append(b.stages, bson.M{"$group": grouping})
	return b
}

// Paginate appends the facet pagination primitive from SPEC_FULL.md §4.8: a
// single $facet stage splitting into a metadata sub-pipeline (count ->
// total) and a data sub-pipeline (skip/limit), so total and the page travel
// together in one round trip rather than two queries (the original's plain
// skip/limit, upgraded per the distilled spec's explicit facet mandate).
func (b *PipelineBuilder) Paginate(page, pageSize int) *PipelineBuilder {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	skip := (page - 1) * pageSize
	b.stages = append(b.stages, bson.M{
		"$facet": bson.M{
			"metadata": []bson.M{{"$count": "total"}},
			"data":     []bson.M{{"$skip": skip}, {"$limit": pageSize}},
		},
	})
	return b
}

// MatchTimeRange mirrors PipelineBuilder.match_time_range.
func (b *PipelineBuilder) MatchTimeRange(start, end float64) *PipelineBuilder {
	return b.Match(bson.M{"timestamp": bson.M{"$gte": start, "$lte": end}})
}

// MatchProtocol mirrors PipelineBuilder.match_protocol.
func (b *PipelineBuilder) MatchProtocol(protocol string) *PipelineBuilder {
	return b.Match(bson.M{"protocol": protocol})
}

// MatchSourceIP mirrors PipelineBuilder.match_source_ip.
func (b *PipelineBuilder) MatchSourceIP(ip string) *PipelineBuilder {
	return b.Match(bson.M{"source_ip": ip})
}

// MatchPort mirrors QueryExecutor.find_packets_by_port's port match,
// against destination port per the distilled spec's find_by_port.
func (b *PipelineBuilder) MatchPort(port int) *PipelineBuilder {
	return b.Match(bson.M{"dst_port": port})
}

// MatchRegion mirrors QueryExecutor.find_packets_by_region's region match.
func (b *PipelineBuilder) MatchRegion(region string) *PipelineBuilder {
	return b.Match(bson.M{"src_region": region})
}

// GroupByProtocol mirrors PipelineBuilder.group_by_protocol.
func (b *PipelineBuilder) GroupByProtocol() *PipelineBuilder {
	b.Group(bson.M{
		"_id":           "$protocol",
		"total_packets": bson.M{"$sum": 1},
		"total_bytes":   bson.M{"$sum": "$length"},
	})
	return b.Project(bson.M{
		"protocol":      "$_id",
		"total_packets": 1,
		"total_bytes":   1,
		"_id":           0,
	})
}

// GroupBySourceIP mirrors PipelineBuilder.group_by_source_ip, carrying
// src_region forward via $first the way the original carries region.
func (b *PipelineBuilder) GroupBySourceIP() *PipelineBuilder {
	b.Group(bson.M{
		"_id":           "$source_ip",
		"total_packets": bson.M{"$sum": 1},
		"total_bytes":   bson.M{"$sum": "$length"},
		"src_region":    bson.M{"$first": "$src_region"},
	})
	return b.Project(bson.M{
		"source_ip":     "$_id",
		"total_packets": 1,
		"total_bytes":   1,
		"src_region":    1,
		"_id":           0,
	})
}

// GroupByTimeInterval mirrors PipelineBuilder.group_by_time_interval:
// buckets documents into floor(ts/interval)*interval windows.
func (b *PipelineBuilder) GroupByTimeInterval(interval float64) *PipelineBuilder {
	b.Group(bson.M{
		"_id":           bson.M{"$subtract": bson.A{"$timestamp", bson.M{"$mod": bson.A{"$timestamp", interval}}}},
		"total_packets": bson.M{"$sum": 1},
		"total_bytes":   bson.M{"$sum": "$length"},
	})
	return b.Project(bson.M{
		"start_time":    "$_id",
		"total_packets": 1,
		"total_bytes":   1,
		"_id":           0,
	})
}

// GroupTrafficSummary mirrors PipelineBuilder.group_traffic_summary.
func (b *PipelineBuilder) GroupTrafficSummary() *PipelineBuilder {
	return b.Group(bson.M{
		"_id":           nil,
		"total_packets": bson.M{"$sum": 1},
		"total_bytes":   bson.M{"$sum": "$length"},
		"unique_ips":    bson.M{"$addToSet": "$source_ip"},
		"protocols":     bson.M{"$addToSet": "$protocol"},
	})
}
