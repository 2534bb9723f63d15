package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Protocol names a transport-level filter protocol, mirroring the original
// ConfigService's filter/rule documents.
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
	ProtocolICMP Protocol = "icmp"
	ProtocolAll  Protocol = "all"
)

// FilterRule is one entry of the capture filter document (SPEC_FULL.md §4
// Supplemented data model). A list of rules composes by OR across rules and
// AND within a rule.
type FilterRule struct {
	SrcIP    string   `yaml:"src_ip,omitempty"`
	DstIP    string   `yaml:"dst_ip,omitempty"`
	SrcPort  []int    `yaml:"src_port,omitempty"`
	DstPort  []int    `yaml:"dst_port,omitempty"`
	Protocol Protocol `yaml:"protocol,omitempty"`
}

// PortProtocolRule maps a set of ports to an application protocol name, used
// by the classifier's port-map fallback. Each port may appear in at most one
// rule; the registry in internal/classifier enforces that invariant.
type PortProtocolRule struct {
	Ports    []int  `yaml:"ports"`
	Protocol string `yaml:"protocol"`
}

// RulesDocument is the persisted `{filters, rules}` YAML document described
// in SPEC_FULL.md §6, grounded on the original ConfigService's config.yaml
// load/save pair.
type RulesDocument struct {
	Filters []FilterRule       `yaml:"filters"`
	Rules   []PortProtocolRule `yaml:"rules"`
}

// LoadRulesDocument reads the rules file at path. A missing file is not an
// error; it returns an empty document, matching ConfigService._load_config's
// fallback to {"filters": [], "rules": []}.
func LoadRulesDocument(path string) (*RulesDocument, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &RulesDocument{Filters: []FilterRule{}, Rules: []PortProtocolRule{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules document %s: %w", path, err)
	}

	var doc RulesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules document %s: %w", path, err)
	}
	if doc.Filters == nil {
		doc.Filters = []FilterRule{}
	}
	if doc.Rules == nil {
		doc.Rules = []PortProtocolRule{}
	}
	return &doc, nil
}

// SaveRulesDocument writes doc to path via a temp-file-plus-rename, so a
// crash mid-write never corrupts the previous document - the original
// Python implementation wrote the file in place with no such guarantee.
func SaveRulesDocument(path string, doc *RulesDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal rules document: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rules-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp rules file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp rules file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp rules file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace rules document %s: %w", path, err)
	}
	return nil
}

// Validate checks the port-uniqueness invariant across the whole rule set:
// each port must appear in at most one rule.
func (doc *RulesDocument) Validate() error {
	seen := make(map[int]string)
	for _, rule := range doc.Rules {
		for _, port := range rule.Ports {
			if port < 1 || port > 65535 {
				return fmt.Errorf("port %d out of range [1, 65535]", port)
			}
			if existing, ok := seen[port]; ok {
				return fmt.Errorf("port %d appears more than once (%q and %q)", port, existing, rule.Protocol)
			}
			seen[port] = rule.Protocol
		}
	}
	for _, f := range doc.Filters {
		for _, p := range append(append([]int{}, f.SrcPort...), f.DstPort...) {
			if p < 1 || p > 65535 {
				return fmt.Errorf("filter port %d out of range [1, 65535]", p)
			}
		}
	}
	return nil
}
