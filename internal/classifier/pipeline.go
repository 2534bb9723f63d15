package classifier

import (
	"github.com/google/uuid"
)

// RegionLookup resolves a source IP to a two-letter region code, implemented
// by internal/geoip.Reader. Abstracted here so the classifier package
// doesn't import the MaxMind driver directly, matching the original's
// GeoIPSingleton being a separate service module from Processors.py.
type RegionLookup interface {
	// Lookup returns the region code and true, or "", false if the lookup
	// gave up permanently or found nothing.
	Lookup(ip string) (string, bool)
}

// Processor mutates a ClassifiedRecord in place from one decoded packet, the
// Go equivalent of a `(scapy_packet, packet) -> None` function in
// Processors.py.
type Processor func(pp *ParsedPacket, rec *ClassifiedRecord)

// Pipeline runs a fixed, ordered chain of processors over every packet,
// grounded on PacketAnalyzer's add_processor registration order:
// checkUDP, checkTCP, checkSrcIPRegion, checkApplicationProtocol,
// checkSSHType, checkHandshake, assignID. The order is semantically load
// bearing: application-protocol detection depends on TCP ports already
// being filled in by checkTCP, and checkSrcIPRegion depends on
// checkUDP/checkTCP having possibly already set source_ip.
type Pipeline struct {
	registry *PortRegistry
	region   RegionLookup
}

// NewPipeline builds the fixed-order processor chain. region may be nil,
// matching GeoIPSingleton.given_up meaning "never attempt a lookup".
func NewPipeline(registry *PortRegistry, region RegionLookup) *Pipeline {
	return &Pipeline{registry: registry, region: region}
}

// Run executes every processor over pp in the fixed order, populating rec
// in place.
func (p *Pipeline) Run(pp *ParsedPacket, rec *ClassifiedRecord) {
	checkUDP(pp, rec)
	checkTCP(pp, rec)
	p.checkSrcIPRegion(pp, rec)
	p.checkApplicationProtocol(pp, rec)
	checkSSHType(pp, rec)
	checkHandshake(pp, rec)
	assignID(pp, rec)
}

// checkUDP mirrors Processors.check_udp.
func checkUDP(pp *ParsedPacket, rec *ClassifiedRecord) {
	if !pp.HasUDP {
		return
	}
	rec.SrcPort = int(pp.UDP.SrcPort)
	rec.DstPort = int(pp.UDP.DstPort)
	rec.Protocol = "UDP"
	if pp.HasIP {
		rec.SourceIP = pp.IP.SrcIP.String()
	}
	rec.advance(LayerTransport)
}

// checkTCP mirrors Processors.check_tcp, including the original's apparent
// bug of assigning the Layer.TRANSPORT enum object to `protocol` instead of
// `layer` - here preserved as setting Protocol to the literal layer label
// string, not fixed to the presumably-intended `rec.advance(LayerTransport)`
// assignment alone.
func checkTCP(pp *ParsedPacket, rec *ClassifiedRecord) {
	if !pp.HasTCP {
		return
	}
	rec.SrcPort = int(pp.TCP.SrcPort)
	rec.DstPort = int(pp.TCP.DstPort)
	if pp.HasIP {
		rec.SourceIP = pp.IP.SrcIP.String()
	}
	rec.Protocol = string(LayerTransport)
	rec.advance(LayerTransport)
}

// checkSrcIPRegion mirrors Processors.check_src_ip_region: a no-op when no
// region lookup is configured, and otherwise a per-packet lookup with no
// caching that records "Unknown" whenever the lookup reports no result,
// including after it has permanently given up (SPEC_FULL.md §3
// Supplemented data model).
func (p *Pipeline) checkSrcIPRegion(pp *ParsedPacket, rec *ClassifiedRecord) {
	if !pp.HasIP || p.region == nil {
		return
	}
	srcIP := rec.SourceIP
	if srcIP == "" {
		srcIP = pp.IP.SrcIP.String()
	}
	if region, ok := p.region.Lookup(srcIP); ok && region != "" {
		rec.SrcRegion = region
	} else {
		rec.SrcRegion = "Unknown"
	}
}

// checkApplicationProtocol mirrors Processors.check_application_protocol:
// TCP-only, payload signatures first (in signatureChecks order), then the
// port-map fallback keyed on source then destination port.
func (p *Pipeline) checkApplicationProtocol(pp *ParsedPacket, rec *ClassifiedRecord) {
	if !pp.HasTCP {
		return
	}
	rec.advance(LayerApplication)

	payload := pp.Payload()
	for _, sig := range signatureChecks {
		if sig.check(payload) {
			rec.Protocol = sig.name
			return
		}
	}

	if p.registry != nil {
		sport := int(pp.TCP.SrcPort)
		dport := int(pp.TCP.DstPort)
		if proto, ok := p.registry.Lookup(sport); ok && proto != "" {
			rec.Protocol = proto
			return
		}
		if proto, ok := p.registry.Lookup(dport); ok && proto != "" {
			rec.Protocol = proto
			return
		}
	}
	rec.Protocol = "Unknown"
}

// checkSSHType mirrors Processors.check_ssh_type's message-type
// classification for traffic on port 22.
func checkSSHType(pp *ParsedPacket, rec *ClassifiedRecord) {
	if !pp.HasTCP || (pp.TCP.SrcPort != 22 && pp.TCP.DstPort != 22) {
		return
	}
	payload := pp.Payload()
	if len(payload) < 6 {
		return
	}
	msgType := payload[5]
	switch {
	case msgType == 20 || msgType == 21:
		rec.Protocol = "SSH-HANDSHAKE"
	case msgType == 50:
		rec.Protocol = "SSH-AUTH"
	case msgType >= 90:
		rec.Protocol = "SSH-DATA"
	}
}

// checkHandshake mirrors Processors.check_handshake: SYN set, ACK absent.
func checkHandshake(pp *ParsedPacket, rec *ClassifiedRecord) {
	if !pp.HasTCP {
		return
	}
	if pp.TCP.SYN && !pp.TCP.ACK {
		rec.IsHandshake = true
	}
}

// assignID mirrors Processors.add_uuid, using google/uuid's UUIDv4 in place
// of Python's uuid4().
func assignID(_ *ParsedPacket, rec *ClassifiedRecord) {
	rec.ID = uuid.NewString()
}
