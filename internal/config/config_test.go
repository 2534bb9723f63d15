package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURI(t *testing.T) {
	t.Setenv("DATABASE_URI", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_AppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_URI", "mongodb://localhost:27017")
	t.Setenv("CAPTURE_INTERFACE", "eth1")
	t.Setenv("MIN_QUEUE_SIZE", "128")
	t.Setenv("MAX_QUEUE_SIZE", "4096")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.URI)
	assert.Equal(t, "eth1", cfg.Capture.Interface)
	assert.Equal(t, 128, cfg.Queue.MinSize)
	assert.Equal(t, 4096, cfg.Queue.MaxSize)
	assert.Equal(t, 1.5, cfg.Queue.GrowthFactor)
	assert.Equal(t, 0.5, cfg.Queue.ShrinkFactor)
}

func TestValidate_RejectsBadQueueBounds(t *testing.T) {
	cfg := &GlobalConfig{
		Database: DatabaseConfig{URI: "mongodb://localhost"},
		Queue:    QueueConfig{MinSize: 100, MaxSize: 100, GrowthFactor: 1.5, ShrinkFactor: 0.5},
		Consumer: ConsumerConfig{MaxWorkers: 1},
		LogLevel: "info",
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadGrowthFactor(t *testing.T) {
	cfg := &GlobalConfig{
		Database: DatabaseConfig{URI: "mongodb://localhost"},
		Queue:    QueueConfig{MinSize: 10, MaxSize: 100, GrowthFactor: 1.0, ShrinkFactor: 0.5},
		Consumer: ConsumerConfig{MaxWorkers: 1},
		LogLevel: "info",
	}
	assert.Error(t, cfg.Validate())
}

func TestRulesDocument_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	doc := &RulesDocument{
		Filters: []FilterRule{
			{SrcIP: "10.0.0.0/8", Protocol: ProtocolTCP, DstPort: []int{80, 443}},
		},
		Rules: []PortProtocolRule{
			{Ports: []int{53}, Protocol: "DNS"},
			{Ports: []int{22}, Protocol: "SSH"},
		},
	}
	require.NoError(t, doc.Validate())
	require.NoError(t, SaveRulesDocument(path, doc))

	loaded, err := LoadRulesDocument(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Filters, loaded.Filters)
	assert.Equal(t, doc.Rules, loaded.Rules)
}

func TestLoadRulesDocument_MissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	doc, err := LoadRulesDocument(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, doc.Filters)
	assert.Empty(t, doc.Rules)
}

func TestRulesDocument_RejectsConflictingPortMapping(t *testing.T) {
	doc := &RulesDocument{
		Rules: []PortProtocolRule{
			{Ports: []int{53}, Protocol: "DNS"},
			{Ports: []int{53}, Protocol: "NTP"},
		},
	}
	assert.Error(t, doc.Validate())
}

func TestRulesDocument_RejectsOutOfRangePort(t *testing.T) {
	doc := &RulesDocument{
		Rules: []PortProtocolRule{{Ports: []int{70000}, Protocol: "DNS"}},
	}
	assert.Error(t, doc.Validate())
}

func TestSaveRulesDocument_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filters: []\nrules: []\n"), 0o644))

	doc := &RulesDocument{Rules: []PortProtocolRule{{Ports: []int{8080}, Protocol: "HTTP"}}}
	require.NoError(t, SaveRulesDocument(path, doc))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file should remain after a successful save")
}
