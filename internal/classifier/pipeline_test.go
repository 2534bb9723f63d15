package classifier

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/config"
)

type fakeRegion struct {
	code  string
	found bool
}

func (f fakeRegion) Lookup(ip string) (string, bool) { return f.code, f.found }

func tcpParsed(srcPort, dstPort int, syn, ack bool, payload []byte) *ParsedPacket {
	return &ParsedPacket{
		HasIP:  true,
		IP:     &layers.IPv4{SrcIP: net.ParseIP("203.0.113.5")},
		HasTCP: true,
		TCP: &layers.TCP{
			SrcPort:   layers.TCPPort(srcPort),
			DstPort:   layers.TCPPort(dstPort),
			SYN:       syn,
			ACK:       ack,
			BaseLayer: layers.BaseLayer{Payload: payload},
		},
	}
}

func udpParsed(srcPort, dstPort int) *ParsedPacket {
	return &ParsedPacket{
		HasIP:  true,
		IP:     &layers.IPv4{SrcIP: net.ParseIP("198.51.100.9")},
		HasUDP: true,
		UDP:    &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)},
	}
}

func TestPipeline_LayerNeverMovesBackward(t *testing.T) {
	p := NewPipeline(NewPortRegistry(), nil)
	rec := NewRecord(1000, 64)
	require.Equal(t, LayerDataLink, rec.Layer)

	pp := tcpParsed(51000, 80, true, false, []byte("GET / HTTP/1.1\r\nHost: a\r\n\r\n"))
	p.Run(pp, rec)

	assert.Equal(t, LayerApplication, rec.Layer)
	assert.Equal(t, "HTTP", rec.Protocol)
}

func TestPipeline_UDPSetsTransportLayerAndAddress(t *testing.T) {
	p := NewPipeline(NewPortRegistry(), nil)
	rec := NewRecord(1000, 64)
	p.Run(udpParsed(53000, 53), rec)

	assert.Equal(t, LayerTransport, rec.Layer)
	assert.Equal(t, "UDP", rec.Protocol)
	assert.Equal(t, "198.51.100.9", rec.SourceIP)
	assert.Equal(t, 53000, rec.SrcPort)
}

func TestPipeline_SSHTypeOverridesPortMapFallback(t *testing.T) {
	registry := NewPortRegistry()
	require.NoError(t, registry.SetRules([]config.PortProtocolRule{{Ports: []int{22}, Protocol: "SSH"}}))
	p := NewPipeline(registry, nil)

	// message type byte at offset 5: 20 == SSH_MSG_KEXINIT; byte 3 is
	// non-zero so no payload signature matches and the port map supplies "SSH"
	payload := []byte{0, 0, 0, 1, 0, 20}
	rec := NewRecord(1000, 64)
	p.Run(tcpParsed(51000, 22, false, true, payload), rec)

	assert.Equal(t, "SSH-HANDSHAKE", rec.Protocol)
}

func TestPipeline_HandshakeDetection(t *testing.T) {
	p := NewPipeline(NewPortRegistry(), nil)

	synRec := NewRecord(1000, 64)
	p.Run(tcpParsed(51000, 443, true, false, nil), synRec)
	assert.True(t, synRec.IsHandshake)

	synAckRec := NewRecord(1000, 64)
	p.Run(tcpParsed(51000, 443, true, true, nil), synAckRec)
	assert.False(t, synAckRec.IsHandshake)
}

func TestPipeline_RegionLookupAppliesOnlyWhenFound(t *testing.T) {
	found := NewPipeline(NewPortRegistry(), fakeRegion{code: "US", found: true})
	rec := NewRecord(1000, 64)
	found.Run(tcpParsed(1, 2, false, false, nil), rec)
	assert.Equal(t, "US", rec.SrcRegion)

	notFound := NewPipeline(NewPortRegistry(), fakeRegion{found: false})
	rec2 := NewRecord(1000, 64)
	notFound.Run(tcpParsed(1, 2, false, false, nil), rec2)
	assert.Equal(t, "Unknown", rec2.SrcRegion)
}

func TestPipeline_AssignsUniqueIDsPerRecord(t *testing.T) {
	p := NewPipeline(NewPortRegistry(), nil)
	rec1 := NewRecord(1, 1)
	rec2 := NewRecord(1, 1)
	p.Run(tcpParsed(1, 2, false, false, nil), rec1)
	p.Run(tcpParsed(1, 2, false, false, nil), rec2)

	assert.NotEmpty(t, rec1.ID)
	assert.NotEmpty(t, rec2.ID)
	assert.NotEqual(t, rec1.ID, rec2.ID)
}
