package netflow

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/netstream-lab/netstream/internal/metrics"
	"go.uber.org/zap"
)

// Parser decodes NetFlow datagrams into canonical flow records.
type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse decodes a single UDP payload from the given exporter. Malformed
// payloads yield an empty slice, never an error: a bad datagram must not
// disturb the ingest loop.
func (p *Parser) Parse(data []byte, exporter string) []*FlowRecord {
	if len(data) < 2 {
		metrics.FlowParseErrorsTotal.WithLabelValues("short_datagram").Inc()
		return nil
	}

	version := binary.BigEndian.Uint16(data[0:2])
	switch version {
	case Version5:
		metrics.DatagramsTotal.WithLabelValues("5").Inc()
		return p.parseV5(data, exporter)
	case Version9:
		metrics.DatagramsTotal.WithLabelValues("9").Inc()
		p.acknowledgeTemplated(data, exporter, version)
		return nil
	case VersionIPFIX:
		metrics.DatagramsTotal.WithLabelValues("10").Inc()
		p.acknowledgeTemplated(data, exporter, version)
		return nil
	default:
		metrics.FlowParseErrorsTotal.WithLabelValues("unknown_version").Inc()
		p.logger.Warn("unknown NetFlow version",
			zap.Uint16("version", version),
			zap.String("exporter", exporter),
		)
		return nil
	}
}

// parseV5 decodes a NetFlow v5 datagram: a fixed 24-byte header followed
// by count fixed 48-byte records. Truncated trailing records are dropped.
func (p *Parser) parseV5(data []byte, exporter string) []*FlowRecord {
	if len(data) < V5HeaderSize {
		metrics.FlowParseErrorsTotal.WithLabelValues("short_v5_header").Inc()
		p.logger.Warn("datagram too small for NetFlow v5 header",
			zap.Int("bytes", len(data)),
			zap.String("exporter", exporter),
		)
		return nil
	}

	count := int(binary.BigEndian.Uint16(data[2:4]))
	received := time.Now()

	flows := make([]*FlowRecord, 0, count)
	offset := V5HeaderSize

	for i := 0; i < count; i++ {
		if offset+V5RecordSize > len(data) {
			metrics.FlowParseErrorsTotal.WithLabelValues("truncated_v5_record").Inc()
			p.logger.Warn("truncated NetFlow v5 datagram",
				zap.Int("record", i),
				zap.Int("declared_count", count),
				zap.String("exporter", exporter),
			)
			break
		}

		r := data[offset : offset+V5RecordSize]
		flows = append(flows, &FlowRecord{
			Version:      Version5,
			ExporterAddr: exporter,
			ReceivedAt:   received,
			SrcAddr:      ipv4String(r[0:4]),
			DstAddr:      ipv4String(r[4:8]),
			NextHop:      ipv4String(r[8:12]),
			InputSNMP:    binary.BigEndian.Uint16(r[12:14]),
			OutputSNMP:   binary.BigEndian.Uint16(r[14:16]),
			Packets:      uint64(binary.BigEndian.Uint32(r[16:20])),
			Bytes:        uint64(binary.BigEndian.Uint32(r[20:24])),
			FirstMs:      binary.BigEndian.Uint32(r[24:28]),
			LastMs:       binary.BigEndian.Uint32(r[28:32]),
			SrcPort:      binary.BigEndian.Uint16(r[32:34]),
			DstPort:      binary.BigEndian.Uint16(r[34:36]),
			TCPFlags:     r[37],
			Protocol:     r[38],
			TOS:          r[39],
			SrcAS:        binary.BigEndian.Uint16(r[40:42]),
			DstAS:        binary.BigEndian.Uint16(r[42:44]),
			SrcMask:      r[44],
			DstMask:      r[45],
		})
		offset += V5RecordSize
	}

	for _, f := range flows {
		metrics.FlowsReceivedTotal.WithLabelValues("5", f.ExporterAddr).Inc()
	}

	p.logger.Debug("parsed NetFlow v5 datagram",
		zap.Int("records", len(flows)),
		zap.String("exporter", exporter),
	)
	return flows
}

// acknowledgeTemplated logs v9/IPFIX datagrams without decoding them.
// Template management is not implemented; Parse counts the datagram by
// version and its records are dropped without being counted.
func (p *Parser) acknowledgeTemplated(data []byte, exporter string, version uint16) {
	if len(data) < 4 {
		return
	}
	count := binary.BigEndian.Uint16(data[2:4])
	p.logger.Info("received templated NetFlow datagram",
		zap.Uint16("version", version),
		zap.Uint16("flowsets", count),
		zap.String("exporter", exporter),
	)
}

func ipv4String(b []byte) string {
	return net.IP(b[:4]).String()
}
