package query

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/log"
)

func init() {
	log.Init(log.DefaultConfig())
}

type fakeAggregator struct {
	result []bson.M
	err    error
}

func (f *fakeAggregator) Aggregate(ctx context.Context, pipeline []bson.M) ([]bson.M, error) {
	return f.result, f.err
}

func facetDoc(total int64, data []bson.M) []bson.M {
	return []bson.M{{
		"metadata": []bson.M{{"total": total}},
		"data":     data,
	}}
}

func TestService_FindByTimeRange(t *testing.T) {
	agg := &fakeAggregator{result: facetDoc(2, []bson.M{
		{"_id": "a", "timestamp": 100.0, "source_ip": "1.1.1.1", "src_port": 80.0, "dst_port": 443.0, "protocol": "HTTP", "length": 64.0, "src_region": "US"},
	})}
	svc := NewService(agg)

	page := svc.FindByTimeRange(context.Background(), 0, 1000, 1, 10)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, "1.1.1.1", page.Data[0].SourceIP)
	assert.Equal(t, "US", page.Data[0].Region)
}

func TestService_FindByTimeRange_StoreErrorReturnsEmptyPage(t *testing.T) {
	agg := &fakeAggregator{err: errors.New("boom")}
	svc := NewService(agg)

	page := svc.FindByTimeRange(context.Background(), 0, 1000, 2, 25)
	assert.Equal(t, int64(0), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 25, page.PageSize)
	assert.Empty(t, page.Data)
}

func TestService_FindByTimeRange_UnknownRegionDefaultsToUnknown(t *testing.T) {
	agg := &fakeAggregator{result: facetDoc(1, []bson.M{
		{"_id": "a", "timestamp": 1.0, "source_ip": "1.1.1.1"},
	})}
	svc := NewService(agg)
	page := svc.FindByTimeRange(context.Background(), 0, 10, 1, 10)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Unknown", page.Data[0].Region)
}

func TestService_TopSourceIPs_PercentagesSumToPageTotal(t *testing.T) {
	agg := &fakeAggregator{result: facetDoc(2, []bson.M{
		{"source_ip": "1.1.1.1", "total_packets": 30.0, "total_bytes": 3000.0, "src_region": "US"},
		{"source_ip": "2.2.2.2", "total_packets": 10.0, "total_bytes": 1000.0, "src_region": "DE"},
	})}
	svc := NewService(agg)

	page := svc.TopSourceIPs(context.Background(), 0, 1000, 1, 10)
	require.Len(t, page.Data, 2)
	assert.InDelta(t, 75.0, page.Data[0].PercentPackets, 0.001)
	assert.InDelta(t, 25.0, page.Data[1].PercentPackets, 0.001)
	assert.InDelta(t, 100.0, page.Data[0].PercentPackets+page.Data[1].PercentPackets, 0.001)
}

func TestService_ProtocolDistribution_EmptyResultGivesEmptyPage(t *testing.T) {
	agg := &fakeAggregator{result: facetDoc(0, nil)}
	svc := NewService(agg)

	page := svc.ProtocolDistribution(context.Background(), 0, 1000, 1, 10)
	assert.Equal(t, int64(0), page.Total)
	assert.Empty(t, page.Data)
}

func TestService_TrafficSummary_TotalIsAlwaysOne(t *testing.T) {
	agg := &fakeAggregator{result: facetDoc(1, []bson.M{
		{"source_ip": "1.1.1.1", "total_packets": 5.0, "total_bytes": 500.0},
	})}
	svc := NewService(agg)

	page := svc.TrafficSummary(context.Background(), 0, 1000, 1, 10)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, float64(0), page.Data[0].TimeRange.Start)
	assert.Equal(t, float64(1000), page.Data[0].TimeRange.End)
}

func TestService_TimeSeries_BucketsEndAtStartPlusInterval(t *testing.T) {
	agg := &fakeAggregator{result: facetDoc(1, []bson.M{
		{"start_time": 0.0, "total_packets": 4.0, "total_bytes": 400.0},
	})}
	svc := NewService(agg)

	page := svc.TimeSeries(context.Background(), 0, 60, 60, 1, 10)
	require.Len(t, page.Data, 1)
	assert.Equal(t, float64(0), page.Data[0].TimeRange.Start)
	assert.Equal(t, float64(60), page.Data[0].TimeRange.End)
}
