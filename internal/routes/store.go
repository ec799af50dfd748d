// Package routes holds the BMP-observed peer table and per-peer
// Adj-RIB-In / Loc-RIB views. The state is observational: it mirrors
// what peers report, it is not an authoritative RIB.
package routes

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/netstream-lab/netstream/internal/bgp"
	"github.com/netstream-lab/netstream/internal/metrics"
)

// Route kinds.
const (
	KindUnicast  = "unicast"
	KindVPN      = "vpn"
	KindFlowSpec = "flowspec"
)

// Peer states.
const (
	StateUp   = "up"
	StateDown = "down"
)

// Peer is one BMP-observed BGP peer, keyed by (address, asn).
type Peer struct {
	Address      string    `json:"address"`
	ASN          uint32    `json:"as"`
	BGPID        string    `json:"bgp_id"`
	PeerType     uint8     `json:"type"`
	FirstSeen    time.Time `json:"first_seen"`
	IsPostPolicy bool      `json:"is_post_policy"`
	State        string    `json:"state"`
}

// Key returns the peer's store key.
func (p *Peer) Key() string {
	return fmt.Sprintf("%s_%d", p.Address, p.ASN)
}

// Route is one stored route, tagged by kind. VPN routes additionally
// carry the route distinguisher and label stack; flowspec routes carry
// the decoded rule instead of a prefix.
type Route struct {
	Kind        string            `json:"type"`
	Prefix      string            `json:"prefix,omitempty"`
	NextHop     string            `json:"next_hop,omitempty"`
	ASPath      []string          `json:"as_path,omitempty"`
	Communities []string          `json:"communities,omitempty"`
	LocalPref   *uint32           `json:"local_pref,omitempty"`
	MED         *uint32           `json:"med,omitempty"`
	Origin      string            `json:"origin,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	RD          string            `json:"rd,omitempty"`
	Labels      []uint32          `json:"labels,omitempty"`
	Rule        *bgp.FlowSpecRule `json:"rule,omitempty"`
}

// dedupKey is the per-peer upsert key: CIDR for unicast, "rd:prefix"
// for VPN, the rule key for flowspec.
func (r *Route) dedupKey() string {
	switch r.Kind {
	case KindVPN:
		return r.RD + ":" + r.Prefix
	case KindFlowSpec:
		if r.Rule != nil {
			return r.Rule.Key()
		}
		return "flowspec:unknown"
	default:
		return r.Prefix
	}
}

// PeerRoutes is the two-sided view for one peer.
type PeerRoutes struct {
	Advertised []*Route `json:"advertised"`
	Received   []*Route `json:"received"`
}

type peerTable struct {
	advertised map[string]*Route
	received   map[string]*Route
}

// Store is the route store. Writers are the per-connection BMP workers,
// readers the control-plane queries.
type Store struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	routes map[string]*peerTable

	// First-seen timestamps for flowspec matchers, preserved across
	// re-announcements.
	flowspecSeen map[string]time.Time
}

func NewStore() *Store {
	return &Store{
		peers:        make(map[string]*Peer),
		routes:       make(map[string]*peerTable),
		flowspecSeen: make(map[string]time.Time),
	}
}

// UpsertPeer registers or refreshes a peer, returning its key. An
// existing peer keeps its FirstSeen and comes back up.
func (s *Store) UpsertPeer(p *Peer) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	if existing, ok := s.peers[key]; ok {
		existing.State = StateUp
		existing.IsPostPolicy = p.IsPostPolicy
		existing.BGPID = p.BGPID
		return key
	}
	p.State = StateUp
	s.peers[key] = p
	return key
}

// MarkPeerDown transitions a peer to down, retaining its route history.
func (s *Store) MarkPeerDown(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[key]; ok {
		p.State = StateDown
	}
}

// DeletePeer removes a peer and all of its routes in one step.
func (s *Store) DeletePeer(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, key)
	delete(s.routes, key)
}

// HasPeer reports whether a peer is registered.
func (s *Store) HasPeer(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.peers[key]
	return ok
}

// UpsertRoutes inserts routes for a peer under the given direction
// ("advertised" for post-policy, "received" for Adj-RIB-In), deduped by
// prefix key: a re-announcement replaces the stored entry in place.
func (s *Store) UpsertRoutes(peerKey string, postPolicy bool, rts []*Route) {
	if len(rts) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.routes[peerKey]
	if table == nil {
		table = &peerTable{
			advertised: make(map[string]*Route),
			received:   make(map[string]*Route),
		}
		s.routes[peerKey] = table
	}

	side := table.received
	if postPolicy {
		side = table.advertised
	}

	for _, r := range rts {
		if r.Kind == KindFlowSpec && r.Rule != nil {
			key := r.Rule.Key()
			if first, ok := s.flowspecSeen[key]; ok {
				r.Timestamp = first
			} else {
				s.flowspecSeen[key] = r.Timestamp
			}
		}
		side[r.dedupKey()] = r
		metrics.RouteUpsertsTotal.WithLabelValues(r.Kind).Inc()
	}
}

// Peers returns all peers sorted by key.
func (s *Store) Peers() []*Peer {
	s.mu.RLock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// RoutesForPeer returns the two-sided view for the first peer whose key
// starts with the given address, or false when no such peer has routes.
func (s *Store) RoutesForPeer(address string) (string, *PeerRoutes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.routes))
	for k := range s.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.HasPrefix(k, address) {
			return k, snapshotTable(s.routes[k]), true
		}
	}
	return "", nil, false
}

// AllRoutes returns every peer's two-sided view, optionally filtered by
// route kind.
func (s *Store) AllRoutes(kind string) map[string]*PeerRoutes {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*PeerRoutes, len(s.routes))
	for key, table := range s.routes {
		view := snapshotTable(table)
		if kind != "" {
			view = filterKind(view, kind)
		}
		out[key] = view
	}
	return out
}

// RouteCount returns the total stored route count across peers and
// directions.
func (s *Store) RouteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, table := range s.routes {
		n += len(table.advertised) + len(table.received)
	}
	return n
}

func snapshotTable(t *peerTable) *PeerRoutes {
	view := &PeerRoutes{
		Advertised: make([]*Route, 0, len(t.advertised)),
		Received:   make([]*Route, 0, len(t.received)),
	}
	for _, r := range t.advertised {
		view.Advertised = append(view.Advertised, r)
	}
	for _, r := range t.received {
		view.Received = append(view.Received, r)
	}
	sortRoutes(view.Advertised)
	sortRoutes(view.Received)
	return view
}

func sortRoutes(rts []*Route) {
	sort.Slice(rts, func(i, j int) bool {
		if rts[i].Kind != rts[j].Kind {
			return rts[i].Kind < rts[j].Kind
		}
		return rts[i].dedupKey() < rts[j].dedupKey()
	})
}

func filterKind(view *PeerRoutes, kind string) *PeerRoutes {
	filtered := &PeerRoutes{}
	for _, r := range view.Advertised {
		if r.Kind == kind {
			filtered.Advertised = append(filtered.Advertised, r)
		}
	}
	for _, r := range view.Received {
		if r.Kind == kind {
			filtered.Received = append(filtered.Received, r)
		}
	}
	return filtered
}
