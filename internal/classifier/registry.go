package classifier

import (
	"fmt"
	"sync"

	"firestige.xyz/otus/internal/config"
)

// PortRegistry is the in-memory port-protocol mapping table fed by the
// config document's `rules` list, grounded on the rule CRUD semantics in
// original_source/backend/api/routes/Config.py and the lookup performed by
// Processors.py's _load_port_protocol_map/check_application_protocol.
//
// Each port appears in at most one rule; SetRules enforces that invariant
// the same way config.RulesDocument.Validate does, so a registry built from
// an already-validated document can never be asked to violate it.
type PortRegistry struct {
	mu    sync.RWMutex
	byPort map[int]string
}

func NewPortRegistry() *PortRegistry {
	return &PortRegistry{byPort: make(map[int]string)}
}

// SetRules replaces the whole table atomically, rejecting any rule set
// where the same port appears more than once.
func (r *PortRegistry) SetRules(rules []config.PortProtocolRule) error {
	next := make(map[int]string)
	for _, rule := range rules {
		for _, port := range rule.Ports {
			if existing, ok := next[port]; ok {
				return fmt.Errorf("port %d appears more than once (%q and %q)", port, existing, rule.Protocol)
			}
			next[port] = rule.Protocol
		}
	}
	r.mu.Lock()
	r.byPort = next
	r.mu.Unlock()
	return nil
}

// Lookup returns the protocol mapped to port, or "", false.
func (r *PortRegistry) Lookup(port int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byPort[port]
	return p, ok
}

// ProtocolForPort matches PacketAnalyzer.get_protocol_for_port, returning ""
// rather than an error when the port is unmapped.
func (r *PortRegistry) ProtocolForPort(port int) string {
	p, _ := r.Lookup(port)
	return p
}
