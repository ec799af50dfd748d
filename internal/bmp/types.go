package bmp

// BMP message type codes (RFC 7854).
const (
	MsgTypeRouteMonitoring  uint8 = 0
	MsgTypeStatisticsReport uint8 = 1
	MsgTypePeerDown         uint8 = 2
	MsgTypePeerUp           uint8 = 3
	MsgTypeInitiation       uint8 = 4
	MsgTypeTermination      uint8 = 5
	MsgTypeRouteMirroring   uint8 = 6
)

// BMP header sizes.
const (
	CommonHeaderSize  = 6  // version(1) + msg_length(4) + msg_type(1)
	PerPeerHeaderSize = 42 // peer_type(1) + flags(1) + distinguisher(8) + addr(16) + AS(4) + BGPID(4) + ts_sec(4) + ts_usec(4)
)

// Per-peer header flag bits.
const (
	PeerFlagIPv6       uint8 = 0x80 // V flag: peer address is IPv6
	PeerFlagPostPolicy uint8 = 0x01 // L flag: set = Loc-RIB (advertised), clear = Adj-RIB-In (received)
)

// BMPVersion is the expected BMP protocol version.
const BMPVersion uint8 = 3

// maxFrameSize bounds a single declared BMP message so a corrupt length
// field cannot exhaust memory.
const maxFrameSize = 1 << 20

// MsgTypeName returns a short name for metrics and logs.
func MsgTypeName(t uint8) string {
	switch t {
	case MsgTypeRouteMonitoring:
		return "route_monitoring"
	case MsgTypeStatisticsReport:
		return "statistics"
	case MsgTypePeerDown:
		return "peer_down"
	case MsgTypePeerUp:
		return "peer_up"
	case MsgTypeInitiation:
		return "initiation"
	case MsgTypeTermination:
		return "termination"
	case MsgTypeRouteMirroring:
		return "route_mirroring"
	default:
		return "unknown"
	}
}
