// Package flow holds the in-memory flow state: the bounded ring of recent
// records, aggregate counters, and the sliding traffic window used by the
// aggregate trigger evaluator.
package flow

import (
	"sort"
	"sync"

	"github.com/netstream-lab/netstream/internal/metrics"
	"github.com/netstream-lab/netstream/internal/netflow"
)

// Tally accumulates flow/packet/byte counts for one key.
type Tally struct {
	Flows   uint64 `json:"flows"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// StatsSnapshot is a point-in-time copy of the store counters.
type StatsSnapshot struct {
	TotalFlows    uint64            `json:"total_flows"`
	TotalPackets  uint64            `json:"total_packets"`
	TotalBytes    uint64            `json:"total_bytes"`
	FlowsInMemory int               `json:"flows_in_memory"`
	Exporters     map[string]Tally  `json:"exporters"`
	Protocols     map[uint8]uint64  `json:"protocols"`
}

// TalkerStat is one address's accumulated traffic, for top-talker queries.
type TalkerStat struct {
	Address string `json:"address"`
	Bytes   uint64 `json:"bytes"`
	Packets uint64 `json:"packets"`
	Flows   uint64 `json:"flows"`
}

// ConversationStat is one src->dst pair's accumulated traffic.
type ConversationStat struct {
	Pair    string `json:"pair"`
	Bytes   uint64 `json:"bytes"`
	Packets uint64 `json:"packets"`
	Flows   uint64 `json:"flows"`
}

// Store is the bounded insertion-ordered flow ring plus counters. All
// counters update under the same lock as the ring insertion, so the sum
// of per-exporter flows always equals total_flows.
type Store struct {
	mu sync.Mutex

	ring  []*netflow.EnrichedFlow
	head  int
	count int

	totalFlows   uint64
	totalPackets uint64
	totalBytes   uint64
	exporters    map[string]*Tally
	protocols    map[uint8]uint64
	talkers      map[string]*Tally
}

func NewStore(maxFlows int) *Store {
	return &Store{
		ring:      make([]*netflow.EnrichedFlow, maxFlows),
		exporters: make(map[string]*Tally),
		protocols: make(map[uint8]uint64),
		talkers:   make(map[string]*Tally),
	}
}

// Add inserts an enriched flow, evicting the oldest when full.
func (s *Store) Add(e *netflow.EnrichedFlow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := (s.head + s.count) % len(s.ring)
	if s.count == len(s.ring) {
		s.head = (s.head + 1) % len(s.ring)
	} else {
		s.count++
	}
	s.ring[idx] = e

	s.totalFlows++
	s.totalPackets += e.Packets
	s.totalBytes += e.Bytes

	exp := s.exporters[e.ExporterAddr]
	if exp == nil {
		exp = &Tally{}
		s.exporters[e.ExporterAddr] = exp
	}
	exp.Flows++
	exp.Packets += e.Packets
	exp.Bytes += e.Bytes

	s.protocols[e.Protocol]++

	for _, addr := range []string{e.SrcAddr, e.DstAddr} {
		talker := s.talkers[addr]
		if talker == nil {
			talker = &Tally{}
			s.talkers[addr] = talker
		}
		talker.Flows++
		talker.Packets += e.Packets
		talker.Bytes += e.Bytes
	}

	metrics.FlowsInMemory.Set(float64(s.count))
}

// Stats returns a snapshot of the global and per-exporter counters.
func (s *Store) Stats() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalFlows:    s.totalFlows,
		TotalPackets:  s.totalPackets,
		TotalBytes:    s.totalBytes,
		FlowsInMemory: s.count,
		Exporters:     make(map[string]Tally, len(s.exporters)),
		Protocols:     make(map[uint8]uint64, len(s.protocols)),
	}
	for k, v := range s.exporters {
		snap.Exporters[k] = *v
	}
	for k, v := range s.protocols {
		snap.Protocols[k] = v
	}
	return snap
}

// Recent returns up to limit most recent flows in insertion order,
// optionally filtered by source or destination address.
func (s *Store) Recent(limit int, src, dst string) []*netflow.EnrichedFlow {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*netflow.EnrichedFlow
	for i := 0; i < s.count; i++ {
		f := s.ring[(s.head+i)%len(s.ring)]
		if src != "" && f.SrcAddr != src {
			continue
		}
		if dst != "" && f.DstAddr != dst {
			continue
		}
		out = append(out, f)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// TopTalkers returns addresses sorted descending by the given metric
// ("bytes", "packets", or "flows").
func (s *Store) TopTalkers(limit int, metric string) []TalkerStat {
	s.mu.Lock()
	stats := make([]TalkerStat, 0, len(s.talkers))
	for addr, t := range s.talkers {
		stats = append(stats, TalkerStat{Address: addr, Bytes: t.Bytes, Packets: t.Packets, Flows: t.Flows})
	}
	s.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		switch metric {
		case "packets":
			return stats[i].Packets > stats[j].Packets
		case "flows":
			return stats[i].Flows > stats[j].Flows
		default:
			return stats[i].Bytes > stats[j].Bytes
		}
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// Conversations returns src->dst pairs sorted descending by bytes,
// computed over the flows currently retained in the ring.
func (s *Store) Conversations(limit int) []ConversationStat {
	s.mu.Lock()
	pairs := make(map[string]*Tally)
	for i := 0; i < s.count; i++ {
		f := s.ring[(s.head+i)%len(s.ring)]
		key := f.SrcAddr + " -> " + f.DstAddr
		t := pairs[key]
		if t == nil {
			t = &Tally{}
			pairs[key] = t
		}
		t.Flows++
		t.Packets += f.Packets
		t.Bytes += f.Bytes
	}
	s.mu.Unlock()

	stats := make([]ConversationStat, 0, len(pairs))
	for pair, t := range pairs {
		stats = append(stats, ConversationStat{Pair: pair, Bytes: t.Bytes, Packets: t.Packets, Flows: t.Flows})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Bytes > stats[j].Bytes })
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}
