package query

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineBuilder_StageOrderPreserved(t *testing.T) {
	pipeline := NewPipelineBuilder().
		MatchTimeRange(0, 100).
		MatchProtocol("HTTP").
		Sort("timestamp", -1).
		Paginate(1, 20).
		Build()

	require.Len(t, pipeline, 4)
	assert.Contains(t, pipeline[0], "$match")
	assert.Contains(t, pipeline[1], "$match")
	assert.Contains(t, pipeline[2], "$sort")
	assert.Contains(t, pipeline[3], "$facet")
}

func TestPipelineBuilder_PaginateSkipLimitMath(t *testing.T) {
	pipeline := NewPipelineBuilder().Paginate(3, 20).Build()
	facet := pipeline[0]["$facet"].(bson.M)
	data := facet["data"].([]bson.M)
	assert.Equal(t, bson.M{"$skip": 40}, data[0])
	assert.Equal(t, bson.M{"$limit": 20}, data[1])
}

func TestPipelineBuilder_PaginateClampsInvalidPageAndSize(t *testing.T) {
	pipeline := NewPipelineBuilder().Paginate(0, -5).Build()
	facet := pipeline[0]["$facet"].(bson.M)
	data := facet["data"].([]bson.M)
	assert.Equal(t, bson.M{"$skip": 0}, data[0])
	assert.Equal(t, bson.M{"$limit": 1}, data[1])
}

func TestPipelineBuilder_Reset(t *testing.T) {
	b := NewPipelineBuilder().MatchProtocol("HTTP")
	b.Reset()
	assert.Empty(t, b.Build())
}

func TestGroupBySourceIP_CarriesRegionForward(t *testing.T) {
	pipeline := NewPipelineBuilder().GroupBySourceIP().Build()
	require.Len(t, pipeline, 2)
	group := pipeline[0]["$group"].(bson.M)
	assert.Equal(t, bson.M{"$first": "$src_region"}, group["src_region"])
}
