package bmp

import (
	"encoding/binary"
	"net"
	"testing"
)

// buildPerPeerHeader builds a 42-byte per-peer header for an IPv4 peer.
func buildPerPeerHeader(addr string, asn uint32, flags uint8) []byte {
	h := make([]byte, PerPeerHeaderSize)
	h[0] = 0 // global instance peer
	h[1] = flags
	copy(h[22:26], net.ParseIP(addr).To4())
	binary.BigEndian.PutUint32(h[26:30], asn)
	copy(h[30:34], net.ParseIP("192.0.2.1").To4())
	binary.BigEndian.PutUint32(h[34:38], 1700000000)
	return h
}

func TestParsePerPeerHeader_IPv4(t *testing.T) {
	h, err := ParsePerPeerHeader(buildPerPeerHeader("10.0.0.1", 64500, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Address != "10.0.0.1" {
		t.Errorf("expected address 10.0.0.1, got %q", h.Address)
	}
	if h.ASN != 64500 {
		t.Errorf("expected ASN 64500, got %d", h.ASN)
	}
	if h.BGPID != "192.0.2.1" {
		t.Errorf("expected BGP ID 192.0.2.1, got %q", h.BGPID)
	}
	if h.IsIPv6 || h.IsPostPolicy {
		t.Errorf("expected IPv4 pre-policy peer, got %+v", h)
	}
	if h.PeerKey() != "10.0.0.1_64500" {
		t.Errorf("unexpected peer key %q", h.PeerKey())
	}
}

func TestParsePerPeerHeader_PostPolicyFlag(t *testing.T) {
	h, err := ParsePerPeerHeader(buildPerPeerHeader("10.0.0.1", 64500, PeerFlagPostPolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.IsPostPolicy {
		t.Error("expected L flag to mark post-policy")
	}
}

func TestParsePerPeerHeader_IPv6(t *testing.T) {
	raw := make([]byte, PerPeerHeaderSize)
	raw[1] = PeerFlagIPv6
	copy(raw[10:26], net.ParseIP("2001:db8::1").To16())
	binary.BigEndian.PutUint32(raw[26:30], 64500)

	h, err := ParsePerPeerHeader(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Address != "2001:db8::1" {
		t.Errorf("expected IPv6 address, got %q", h.Address)
	}
}

func TestParsePerPeerHeader_TooShort(t *testing.T) {
	if _, err := ParsePerPeerHeader(make([]byte, 20)); err == nil {
		t.Fatal("expected error for short per-peer header")
	}
}
