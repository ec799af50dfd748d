package netflow

import "time"

// NetFlow export versions seen on the wire.
const (
	Version5     uint16 = 5
	Version9     uint16 = 9
	VersionIPFIX uint16 = 10
)

// NetFlow v5 wire sizes.
const (
	V5HeaderSize = 24
	V5RecordSize = 48
)

// FlowRecord is the canonical decoded flow record. Fields are immutable
// after parsing; enrichment adds derived rates in EnrichedFlow.
type FlowRecord struct {
	Version      uint16    `json:"version"`
	ExporterAddr string    `json:"exporter"`
	ReceivedAt   time.Time `json:"timestamp"`
	SrcAddr      string    `json:"src_addr"`
	DstAddr      string    `json:"dst_addr"`
	NextHop      string    `json:"next_hop"`
	SrcPort      uint16    `json:"src_port"`
	DstPort      uint16    `json:"dst_port"`
	Protocol     uint8     `json:"protocol"`
	TOS          uint8     `json:"tos"`
	TCPFlags     uint8     `json:"tcp_flags"`
	SrcAS        uint16    `json:"src_as"`
	DstAS        uint16    `json:"dst_as"`
	SrcMask      uint8     `json:"src_mask"`
	DstMask      uint8     `json:"dst_mask"`
	InputSNMP    uint16    `json:"input_snmp"`
	OutputSNMP   uint16    `json:"output_snmp"`
	FirstMs      uint32    `json:"first"`
	LastMs       uint32    `json:"last"`
	Packets      uint64    `json:"packets"`
	Bytes        uint64    `json:"bytes"`
}

// EnrichedFlow is a FlowRecord plus derived duration and rates. When the
// exporter reports first == last the duration is unknown and every rate
// field is zero.
type EnrichedFlow struct {
	FlowRecord
	DurationMs int64   `json:"duration_ms"`
	BPS        float64 `json:"bps"`
	Kbps       float64 `json:"kbps"`
	Mbps       float64 `json:"mbps"`
	PPS        float64 `json:"pps"`
	Aggregated bool    `json:"aggregated,omitempty"`
}
