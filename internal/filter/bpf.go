// Package filter builds and parses the BPF filter grammar used by the
// capturer (C3), grounded on original_source/backend/utils/BpfUtils.py.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"firestige.xyz/otus/internal/config"
)

// BuildExpression composes a BPF boolean expression from a list of
// FilterRules: rules OR together, clauses within a rule AND together,
// mirroring BPFUtils.build_filter_expression.
func BuildExpression(rules []config.FilterRule) string {
	if len(rules) == 0 {
		return ""
	}

	var clauses []string
	for _, rule := range rules {
		var parts []string

		if rule.SrcIP != "" {
			parts = append(parts, ipClause("src", rule.SrcIP))
		}
		if rule.DstIP != "" {
			parts = append(parts, ipClause("dst", rule.DstIP))
		}
		if len(rule.SrcPort) > 0 {
			parts = append(parts, portGroup("src", rule.SrcPort))
		}
		if len(rule.DstPort) > 0 {
			parts = append(parts, portGroup("dst", rule.DstPort))
		}
		if rule.Protocol != "" && rule.Protocol != config.ProtocolAll {
			parts = append(parts, string(rule.Protocol))
		}

		if len(parts) > 0 {
			clauses = append(clauses, "("+strings.Join(parts, " and ")+")")
		}
	}
	return strings.Join(clauses, " or ")
}

// ipClause renders "src/dst host IP" for a bare address or "src/dst net
// CIDR" when the value contains a slash, matching the original's
// str-vs-IPvAnyAddress dispatch.
func ipClause(direction, value string) string {
	if strings.Contains(value, "/") {
		return fmt.Sprintf("%s net %s", direction, value)
	}
	return fmt.Sprintf("%s host %s", direction, value)
}

func portGroup(direction string, ports []int) string {
	conditions := make([]string, len(ports))
	for i, p := range ports {
		conditions[i] = fmt.Sprintf("%s port %d", direction, p)
	}
	return "(" + strings.Join(conditions, " or ") + ")"
}

var (
	srcHostRe = regexp.MustCompile(`^src\s+host\s+(\S+)`)
	dstHostRe = regexp.MustCompile(`^dst\s+host\s+(\S+)`)
	srcNetRe  = regexp.MustCompile(`^src\s+net\s+(\S+)`)
	dstNetRe  = regexp.MustCompile(`^dst\s+net\s+(\S+)`)
	srcPortRe = regexp.MustCompile(`^\((src\s+port\s+\d+(?:\s+or\s+src\s+port\s+\d+)*)\)`)
	dstPortRe = regexp.MustCompile(`^\((dst\s+port\s+\d+(?:\s+or\s+dst\s+port\s+\d+)*)\)`)
	portNumRe = regexp.MustCompile(`(?:src|dst)\s+port\s+(\d+)`)
	orSplitRe = regexp.MustCompile(`\)\s+or\s+\(`)
)

var knownProtocols = map[config.Protocol]bool{
	config.ProtocolTCP: true, config.ProtocolUDP: true, config.ProtocolICMP: true,
}

// ParseExpression is the strict inverse of BuildExpression, grounded on
// BPFUtils.parse_filter_expression.
func ParseExpression(expression string) ([]config.FilterRule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	trimmed := strings.TrimPrefix(expression, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	orParts := orSplitRe.Split(trimmed, -1)

	rules := make([]config.FilterRule, 0, len(orParts))
	for _, part := range orParts {
		andParts := strings.Split(part, " and ")
		var rule config.FilterRule

		for _, raw := range andParts {
			condition := strings.TrimSpace(raw)
			switch {
			case srcHostRe.MatchString(condition):
				rule.SrcIP = srcHostRe.FindStringSubmatch(condition)[1]
			case dstHostRe.MatchString(condition):
				rule.DstIP = dstHostRe.FindStringSubmatch(condition)[1]
			case srcNetRe.MatchString(condition):
				rule.SrcIP = srcNetRe.FindStringSubmatch(condition)[1]
			case dstNetRe.MatchString(condition):
				rule.DstIP = dstNetRe.FindStringSubmatch(condition)[1]
			case srcPortRe.MatchString(condition):
				ports, err := parsePorts(srcPortRe.FindStringSubmatch(condition)[1])
				if err != nil {
					return nil, err
				}
				rule.SrcPort = ports
			case dstPortRe.MatchString(condition):
				ports, err := parsePorts(dstPortRe.FindStringSubmatch(condition)[1])
				if err != nil {
					return nil, err
				}
				rule.DstPort = ports
			case knownProtocols[config.Protocol(condition)]:
				rule.Protocol = config.Protocol(condition)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parsePorts(group string) ([]int, error) {
	matches := portNumRe.FindAllStringSubmatch(group, -1)
	ports := make([]int, 0, len(matches))
	for _, m := range matches {
		p, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid port in filter expression: %w", err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// ValidateExpression round-trips parse then build and reports whether at
// least one rule was parsed and the rebuilt expression is non-empty,
// matching BPFUtils.validate_filter_expression. Clauses that ParseExpression
// does not recognise are skipped, not rejected, so an expression that mixes
// grammar clauses with other text still validates.
func ValidateExpression(expression string) bool {
	rules, err := ParseExpression(expression)
	if err != nil {
		return false
	}
	rebuilt := BuildExpression(rules)
	return len(rules) > 0 && rebuilt != ""
}
