// Package classifier builds a ClassifiedRecord from a parsed packet by
// running a fixed-order chain of processors, grounded on
// original_source/backend/packet/Processors.py and the Layer enum in
// original_source/backend/packet/Packet.py.
package classifier

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Layer is the OSI layer tag carried by a ClassifiedRecord, mirroring
// Packet.py's Layer enum. Values are the enum's original string labels.
type Layer string

const (
	LayerPhysical    Layer = "Physical"
	LayerDataLink    Layer = "Data Link"
	LayerNetwork     Layer = "Network"
	LayerTransport   Layer = "Transport"
	LayerApplication Layer = "Application"
)

// layerRank gives advance something to compare; indices follow the
// pipeline's allowed progression, matching SPEC_FULL.md §3's invariant that
// layer only ever advances.
var layerRank = map[Layer]int{
	LayerPhysical:    0,
	LayerDataLink:    1,
	LayerNetwork:     2,
	LayerTransport:   3,
	LayerApplication: 4,
}

// advance moves the record's layer forward to next, never backward.
func (r *ClassifiedRecord) advance(next Layer) {
	if layerRank[next] > layerRank[r.Layer] {
		r.Layer = next
	}
}

// ClassifiedRecord is the persisted unit produced by the classifier
// pipeline, matching SPEC_FULL.md §3's field list (ProcessedPacket in the
// original, with the fields PacketAnalyzer/Processors.py actually populate:
// length and is_handshake, missing from the original's incomplete
// dataclass, are carried here per the distilled spec).
type ClassifiedRecord struct {
	ID          string    `bson:"_id"`
	Timestamp   float64   `bson:"timestamp"`
	Layer       Layer     `bson:"layer"`
	SourceIP    string    `bson:"source_ip"`
	SrcPort     int       `bson:"src_port"`
	DstPort     int       `bson:"dst_port"`
	SrcRegion   string    `bson:"src_region"`
	Protocol    string    `bson:"protocol"`
	Length      int       `bson:"length"`
	IsHandshake bool      `bson:"is_handshake"`
	CapturedAt  time.Time `bson:"-"`
}

// NewRecord seeds a ClassifiedRecord with the raw packet's byte length and
// timestamp and the unset sentinel ports, matching PacketConsumer's
// ProcessedPacket() construction ahead of running the processor chain.
func NewRecord(timestamp float64, length int) *ClassifiedRecord {
	return &ClassifiedRecord{
		Timestamp: timestamp,
		Layer:     LayerDataLink,
		SrcPort:   -1,
		DstPort:   -1,
		SrcRegion: "Unknown",
		Protocol:  "Unknown",
		Length:    length,
	}
}

// ParsedPacket bundles the gopacket decode used by processors so each one
// doesn't repeat DecodeLayers work, grounded on the scapy_packet argument
// Processors.py's functions all share.
type ParsedPacket struct {
	Packet gopacket.Packet
	IP     *layers.IPv4
	TCP    *layers.TCP
	UDP    *layers.UDP
	HasIP  bool
	HasTCP bool
	HasUDP bool
}

// ParsePacket decodes raw at the link layer (Ethernet), matching the
// Consumer's "parse at link layer with gopacket" responsibility
// (SPEC_FULL.md §4.6).
func ParsePacket(raw []byte) *ParsedPacket {
	pkt := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy: true, NoCopy: true,
	})
	pp := &ParsedPacket{Packet: pkt}

	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		pp.IP, pp.HasIP = ipLayer.(*layers.IPv4)
		pp.HasIP = pp.IP != nil
	}
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		pp.TCP, pp.HasTCP = tcpLayer.(*layers.TCP)
		pp.HasTCP = pp.TCP != nil
	}
	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		pp.UDP, pp.HasUDP = udpLayer.(*layers.UDP)
		pp.HasUDP = pp.UDP != nil
	}
	return pp
}

// Payload returns the TCP segment's application payload, or nil if there is
// none, matching `bytes(scapy_packet[TCP].payload) if haslayer(Raw) else b""`.
func (p *ParsedPacket) Payload() []byte {
	if !p.HasTCP {
		return nil
	}
	return p.TCP.LayerPayload()
}
