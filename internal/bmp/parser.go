package bmp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// PeerHeader is the parsed RFC 7854 per-peer header.
type PeerHeader struct {
	PeerType     uint8
	Flags        uint8
	Address      string
	ASN          uint32
	BGPID        string
	Timestamp    time.Time
	IsIPv6       bool
	IsPostPolicy bool
}

// ParsePerPeerHeader parses the 42-byte per-peer header that follows the
// common header on peer-scoped message types.
func ParsePerPeerHeader(data []byte) (*PeerHeader, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: per-peer header too short (%d bytes)", len(data))
	}

	h := &PeerHeader{
		PeerType: data[0],
		Flags:    data[1],
	}
	h.IsIPv6 = h.Flags&PeerFlagIPv6 != 0
	h.IsPostPolicy = h.Flags&PeerFlagPostPolicy != 0

	addrBytes := data[10:26]
	if h.IsIPv6 {
		h.Address = net.IP(addrBytes).String()
	} else {
		// IPv4 occupies the last 4 bytes of the 16-byte field.
		h.Address = net.IP(addrBytes[12:16]).String()
	}

	h.ASN = binary.BigEndian.Uint32(data[26:30])
	h.BGPID = net.IP(data[30:34]).String()

	sec := binary.BigEndian.Uint32(data[34:38])
	usec := binary.BigEndian.Uint32(data[38:42])
	h.Timestamp = time.Unix(int64(sec), int64(usec)*1000)

	return h, nil
}

// PeerKey returns the route-store key for this peer.
func (h *PeerHeader) PeerKey() string {
	return fmt.Sprintf("%s_%d", h.Address, h.ASN)
}
