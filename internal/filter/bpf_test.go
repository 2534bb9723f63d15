package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/config"
)

func TestBuildExpression_EmptyRules(t *testing.T) {
	assert.Equal(t, "", BuildExpression(nil))
	assert.Equal(t, "", BuildExpression([]config.FilterRule{}))
}

func TestBuildExpression_SingleRule(t *testing.T) {
	expr := BuildExpression([]config.FilterRule{
		{SrcIP: "192.168.1.10", SrcPort: []int{80, 443}, Protocol: config.ProtocolTCP},
	})
	assert.Equal(t, "(src host 192.168.1.10 and (src port 80 or src port 443) and tcp)", expr)
}

func TestBuildExpression_CIDRUsesNetClause(t *testing.T) {
	expr := BuildExpression([]config.FilterRule{{DstIP: "10.0.0.0/8"}})
	assert.Equal(t, "(dst net 10.0.0.0/8)", expr)
}

func TestBuildExpression_MultipleRulesOrTogether(t *testing.T) {
	expr := BuildExpression([]config.FilterRule{
		{SrcIP: "10.0.0.1"},
		{DstIP: "10.0.0.2"},
	})
	assert.Equal(t, "(src host 10.0.0.1) or (dst host 10.0.0.2)", expr)
}

func TestParseBuildRoundTrip_SingleRule(t *testing.T) {
	original := []config.FilterRule{
		{SrcIP: "192.168.1.10", SrcPort: []int{80, 443}, Protocol: config.ProtocolTCP},
	}
	expr := BuildExpression(original)

	parsed, err := ParseExpression(expr)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "192.168.1.10", parsed[0].SrcIP)
	assert.Equal(t, []int{80, 443}, parsed[0].SrcPort)
	assert.Equal(t, config.ProtocolTCP, parsed[0].Protocol)

	// rebuilding the parsed rules must reproduce the exact same expression
	assert.Equal(t, expr, BuildExpression(parsed))
}

func TestParseBuildRoundTrip_MultipleRules(t *testing.T) {
	original := []config.FilterRule{
		{SrcIP: "10.0.0.1", DstPort: []int{22}, Protocol: config.ProtocolTCP},
		{DstIP: "10.0.0.0/24", Protocol: config.ProtocolUDP},
	}
	expr := BuildExpression(original)

	parsed, err := ParseExpression(expr)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, expr, BuildExpression(parsed))
}

func TestParseExpression_Empty(t *testing.T) {
	rules, err := ParseExpression("")
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestValidateExpression(t *testing.T) {
	valid := BuildExpression([]config.FilterRule{{SrcIP: "1.2.3.4", Protocol: config.ProtocolTCP}})
	assert.True(t, ValidateExpression(valid))
	assert.False(t, ValidateExpression("this is not a bpf expression"))
	assert.False(t, ValidateExpression(""))
}
