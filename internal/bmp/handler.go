package bmp

import (
	"time"

	"github.com/netstream-lab/netstream/internal/bgp"
	"github.com/netstream-lab/netstream/internal/metrics"
	"github.com/netstream-lab/netstream/internal/routes"
	"go.uber.org/zap"
)

// Handler interprets framed BMP messages and maintains the route store.
// A malformed payload is logged and dropped; it never tears down the
// connection that delivered it.
type Handler struct {
	store  *routes.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(store *routes.Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger, now: time.Now}
}

// Handle dispatches one complete BMP frame (common header included).
func (h *Handler) Handle(msgType uint8, frame []byte, remote string) {
	metrics.BMPMessagesTotal.WithLabelValues(MsgTypeName(msgType)).Inc()
	payload := frame[CommonHeaderSize:]

	switch msgType {
	case MsgTypeInitiation:
		h.logger.Info("BMP initiation", zap.String("remote", remote))

	case MsgTypeTermination:
		h.logger.Info("BMP termination", zap.String("remote", remote))

	case MsgTypePeerUp:
		peer, err := ParsePerPeerHeader(payload)
		if err != nil {
			metrics.BMPParseErrorsTotal.WithLabelValues("per_peer_header").Inc()
			h.logger.Warn("malformed peer up", zap.String("remote", remote), zap.Error(err))
			return
		}
		h.registerPeer(peer)
		h.logger.Info("BMP peer up",
			zap.String("peer", peer.Address),
			zap.Uint32("asn", peer.ASN),
			zap.Bool("post_policy", peer.IsPostPolicy),
		)

	case MsgTypePeerDown:
		peer, err := ParsePerPeerHeader(payload)
		if err != nil {
			metrics.BMPParseErrorsTotal.WithLabelValues("per_peer_header").Inc()
			h.logger.Warn("malformed peer down", zap.String("remote", remote), zap.Error(err))
			return
		}
		h.store.MarkPeerDown(peer.PeerKey())
		h.logger.Info("BMP peer down",
			zap.String("peer", peer.Address),
			zap.Uint32("asn", peer.ASN),
		)

	case MsgTypeRouteMonitoring:
		h.handleRouteMonitoring(payload, remote)

	case MsgTypeStatisticsReport, MsgTypeRouteMirroring:
		if _, err := ParsePerPeerHeader(payload); err != nil {
			metrics.BMPParseErrorsTotal.WithLabelValues("per_peer_header").Inc()
			return
		}
		h.logger.Debug("BMP message ignored",
			zap.String("msg_type", MsgTypeName(msgType)),
			zap.String("remote", remote),
		)

	default:
		h.logger.Warn("unknown BMP message type",
			zap.Uint8("msg_type", msgType),
			zap.String("remote", remote),
		)
	}
}

func (h *Handler) registerPeer(peer *PeerHeader) {
	h.store.UpsertPeer(&routes.Peer{
		Address:      peer.Address,
		ASN:          peer.ASN,
		BGPID:        peer.BGPID,
		PeerType:     peer.PeerType,
		FirstSeen:    h.now(),
		IsPostPolicy: peer.IsPostPolicy,
	})
}

func (h *Handler) handleRouteMonitoring(payload []byte, remote string) {
	peer, err := ParsePerPeerHeader(payload)
	if err != nil {
		metrics.BMPParseErrorsTotal.WithLabelValues("per_peer_header").Inc()
		h.logger.Warn("malformed route monitoring", zap.String("remote", remote), zap.Error(err))
		return
	}

	peerKey := peer.PeerKey()
	if !h.store.HasPeer(peerKey) {
		h.registerPeer(peer)
	}

	update, err := bgp.ParseUpdate(payload[PerPeerHeaderSize:])
	if err != nil {
		metrics.BMPParseErrorsTotal.WithLabelValues("bgp_update").Inc()
		h.logger.Debug("malformed BGP UPDATE",
			zap.String("peer", peer.Address),
			zap.Error(err),
		)
		return
	}
	if update == nil {
		return
	}

	// Withdrawn routes are parsed and logged but not applied to the
	// stored views.
	if len(update.WithdrawnPrefixes) > 0 {
		h.logger.Debug("peer withdrew prefixes",
			zap.String("peer", peer.Address),
			zap.Strings("prefixes", update.WithdrawnPrefixes),
		)
	}

	rts := routesFromUpdate(update, h.now())
	if len(rts) == 0 {
		return
	}

	h.store.UpsertRoutes(peerKey, peer.IsPostPolicy, rts)
	h.logger.Debug("stored routes from peer",
		zap.String("peer", peer.Address),
		zap.Int("count", len(rts)),
		zap.Bool("post_policy", peer.IsPostPolicy),
	)
}

// routesFromUpdate converts a decoded UPDATE into store entries: plain
// IPv4 unicast NLRI, VPNv4 prefixes, and flowspec rules.
func routesFromUpdate(update *bgp.Update, now time.Time) []*routes.Route {
	attrs := update.Attrs
	var rts []*routes.Route

	for _, prefix := range update.NLRIPrefixes {
		rts = append(rts, &routes.Route{
			Kind:        routes.KindUnicast,
			Prefix:      prefix,
			NextHop:     attrs.NextHop,
			ASPath:      attrs.ASPath,
			Communities: attrs.Communities,
			LocalPref:   attrs.LocalPref,
			MED:         attrs.MED,
			Origin:      attrs.Origin,
			Timestamp:   now,
		})
	}

	for _, vpn := range update.VPNRoutes {
		rts = append(rts, &routes.Route{
			Kind:        routes.KindVPN,
			Prefix:      vpn.Prefix,
			NextHop:     vpn.NextHop,
			ASPath:      attrs.ASPath,
			Communities: attrs.Communities,
			LocalPref:   attrs.LocalPref,
			MED:         attrs.MED,
			Origin:      attrs.Origin,
			Timestamp:   now,
			RD:          vpn.RD,
			Labels:      vpn.Labels,
		})
	}

	for i := range update.FlowSpecRules {
		rule := update.FlowSpecRules[i]
		rts = append(rts, &routes.Route{
			Kind:        routes.KindFlowSpec,
			ASPath:      attrs.ASPath,
			Communities: attrs.Communities,
			Origin:      attrs.Origin,
			Timestamp:   now,
			Rule:        &rule,
		})
	}

	return rts
}
