package netflow

import (
	"encoding/binary"
	"net"
	"testing"

	"go.uber.org/zap"
)

type v5Record struct {
	src, dst, nextHop     string
	srcPort, dstPort      uint16
	protocol, tos, flags  uint8
	srcAS, dstAS          uint16
	packets, bytes        uint32
	first, last           uint32
	inputSNMP, outputSNMP uint16
}

// buildV5Packet builds a NetFlow v5 datagram with the given records. The
// declared header count may exceed the records actually encoded to
// exercise truncation handling.
func buildV5Packet(declaredCount int, records []v5Record) []byte {
	buf := make([]byte, V5HeaderSize+len(records)*V5RecordSize)
	binary.BigEndian.PutUint16(buf[0:2], 5)
	binary.BigEndian.PutUint16(buf[2:4], uint16(declaredCount))
	binary.BigEndian.PutUint32(buf[4:8], 123456)   // sys_uptime
	binary.BigEndian.PutUint32(buf[8:12], 1700000) // unix_secs
	// unix_nsecs, flow_sequence, engine, sampling left zero.

	offset := V5HeaderSize
	for _, rec := range records {
		r := buf[offset : offset+V5RecordSize]
		copy(r[0:4], net.ParseIP(rec.src).To4())
		copy(r[4:8], net.ParseIP(rec.dst).To4())
		copy(r[8:12], net.ParseIP(rec.nextHop).To4())
		binary.BigEndian.PutUint16(r[12:14], rec.inputSNMP)
		binary.BigEndian.PutUint16(r[14:16], rec.outputSNMP)
		binary.BigEndian.PutUint32(r[16:20], rec.packets)
		binary.BigEndian.PutUint32(r[20:24], rec.bytes)
		binary.BigEndian.PutUint32(r[24:28], rec.first)
		binary.BigEndian.PutUint32(r[28:32], rec.last)
		binary.BigEndian.PutUint16(r[32:34], rec.srcPort)
		binary.BigEndian.PutUint16(r[34:36], rec.dstPort)
		r[37] = rec.flags
		r[38] = rec.protocol
		r[39] = rec.tos
		binary.BigEndian.PutUint16(r[40:42], rec.srcAS)
		binary.BigEndian.PutUint16(r[42:44], rec.dstAS)
		offset += V5RecordSize
	}
	return buf
}

func TestParseV5_RoundTrip(t *testing.T) {
	records := []v5Record{
		{
			src: "10.0.0.1", dst: "10.0.0.2", nextHop: "10.0.0.254",
			srcPort: 49152, dstPort: 80, protocol: 6, tos: 0, flags: 0x18,
			srcAS: 64500, dstAS: 64501,
			packets: 200, bytes: 200000, first: 0, last: 1000,
			inputSNMP: 1, outputSNMP: 2,
		},
		{
			src: "192.0.2.10", dst: "198.51.100.20", nextHop: "0.0.0.0",
			srcPort: 53, dstPort: 53, protocol: 17,
			packets: 1, bytes: 64, first: 5000, last: 5000,
		},
	}
	pkt := buildV5Packet(len(records), records)

	p := NewParser(zap.NewNop())
	flows := p.Parse(pkt, "172.16.0.1")
	if len(flows) != len(records) {
		t.Fatalf("expected %d flows, got %d", len(records), len(flows))
	}

	f := flows[0]
	if f.SrcAddr != "10.0.0.1" || f.DstAddr != "10.0.0.2" || f.NextHop != "10.0.0.254" {
		t.Errorf("address mismatch: %s -> %s via %s", f.SrcAddr, f.DstAddr, f.NextHop)
	}
	if f.SrcPort != 49152 || f.DstPort != 80 {
		t.Errorf("port mismatch: %d -> %d", f.SrcPort, f.DstPort)
	}
	if f.Protocol != 6 || f.TCPFlags != 0x18 {
		t.Errorf("protocol/flags mismatch: %d / %#x", f.Protocol, f.TCPFlags)
	}
	if f.Packets != 200 || f.Bytes != 200000 {
		t.Errorf("counter mismatch: %d packets, %d bytes", f.Packets, f.Bytes)
	}
	if f.FirstMs != 0 || f.LastMs != 1000 {
		t.Errorf("timestamp mismatch: first=%d last=%d", f.FirstMs, f.LastMs)
	}
	if f.SrcAS != 64500 || f.DstAS != 64501 {
		t.Errorf("AS mismatch: %d / %d", f.SrcAS, f.DstAS)
	}
	if f.ExporterAddr != "172.16.0.1" {
		t.Errorf("exporter mismatch: %s", f.ExporterAddr)
	}
	if f.Version != 5 {
		t.Errorf("version mismatch: %d", f.Version)
	}

	g := flows[1]
	if g.Protocol != 17 || g.SrcAddr != "192.0.2.10" {
		t.Errorf("second record mismatch: proto=%d src=%s", g.Protocol, g.SrcAddr)
	}
}

func TestParseV5_TruncatedRecords(t *testing.T) {
	// Header claims 5 records but only 3 fit in the payload.
	records := []v5Record{
		{src: "10.0.0.1", dst: "10.0.0.2", packets: 1, bytes: 100},
		{src: "10.0.0.3", dst: "10.0.0.4", packets: 1, bytes: 100},
		{src: "10.0.0.5", dst: "10.0.0.6", packets: 1, bytes: 100},
	}
	pkt := buildV5Packet(5, records)

	p := NewParser(zap.NewNop())
	flows := p.Parse(pkt, "172.16.0.1")
	if len(flows) != 3 {
		t.Fatalf("expected 3 flows from truncated packet, got %d", len(flows))
	}
}

func TestParse_UnknownVersion(t *testing.T) {
	pkt := []byte{0x00, 0x08, 0x00, 0x01, 0x00, 0x00}

	p := NewParser(zap.NewNop())
	flows := p.Parse(pkt, "172.16.0.1")
	if len(flows) != 0 {
		t.Fatalf("expected no flows for unknown version, got %d", len(flows))
	}
}

func TestParse_V9AcknowledgedNotDecoded(t *testing.T) {
	pkt := make([]byte, 20)
	binary.BigEndian.PutUint16(pkt[0:2], 9)
	binary.BigEndian.PutUint16(pkt[2:4], 4)

	p := NewParser(zap.NewNop())
	flows := p.Parse(pkt, "172.16.0.1")
	if len(flows) != 0 {
		t.Fatalf("expected no flows for v9 datagram, got %d", len(flows))
	}
}

func TestParse_IPFIXAcknowledgedNotDecoded(t *testing.T) {
	pkt := make([]byte, 16)
	binary.BigEndian.PutUint16(pkt[0:2], 10)

	p := NewParser(zap.NewNop())
	if flows := p.Parse(pkt, "172.16.0.1"); len(flows) != 0 {
		t.Fatalf("expected no flows for IPFIX datagram, got %d", len(flows))
	}
}

func TestParse_ShortDatagram(t *testing.T) {
	p := NewParser(zap.NewNop())
	if flows := p.Parse([]byte{0x00}, "172.16.0.1"); flows != nil {
		t.Fatalf("expected nil for one-byte datagram, got %v", flows)
	}
}

func TestParseV5_HeaderOnly(t *testing.T) {
	pkt := buildV5Packet(0, nil)

	p := NewParser(zap.NewNop())
	flows := p.Parse(pkt, "172.16.0.1")
	if len(flows) != 0 {
		t.Fatalf("expected no flows for empty v5 packet, got %d", len(flows))
	}
}
