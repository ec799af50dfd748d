// Package api is the HTTP and WebSocket control plane over the in-memory
// telemetry state.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/netstream-lab/netstream/internal/flow"
	"github.com/netstream-lab/netstream/internal/routes"
	"github.com/netstream-lab/netstream/internal/trigger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// protocolNames maps well-known IANA protocol numbers.
var protocolNames = map[uint8]string{
	1:   "ICMP",
	6:   "TCP",
	17:  "UDP",
	47:  "GRE",
	50:  "ESP",
	51:  "AH",
	89:  "OSPF",
	132: "SCTP",
}

// Server serves the read/write control-plane API plus the flow and
// notification streams.
type Server struct {
	srv *http.Server

	flows         *flow.Store
	window        *flow.Window
	windowSeconds int
	broadcaster   *flow.Broadcaster
	triggers      *trigger.Store
	dispatcher    *trigger.Dispatcher
	notifier      *trigger.Notifier
	routes        *routes.Store
	syncNow       func()
	logger        *zap.Logger
}

type Deps struct {
	Flows         *flow.Store
	Window        *flow.Window
	WindowSeconds int
	Broadcaster   *flow.Broadcaster
	Triggers      *trigger.Store
	Dispatcher    *trigger.Dispatcher
	Notifier      *trigger.Notifier
	Routes        *routes.Store
	SyncNow       func()
}

func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		flows:         deps.Flows,
		window:        deps.Window,
		windowSeconds: deps.WindowSeconds,
		broadcaster:   deps.Broadcaster,
		triggers:      deps.Triggers,
		dispatcher:    deps.Dispatcher,
		notifier:      deps.Notifier,
		routes:        deps.Routes,
		syncNow:       deps.SyncNow,
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /flows", s.handleFlows)
	mux.HandleFunc("GET /top-talkers", s.handleTopTalkers)
	mux.HandleFunc("GET /conversations", s.handleConversations)
	mux.HandleFunc("GET /protocols", s.handleProtocols)
	mux.HandleFunc("GET /traffic-window", s.handleTrafficWindow)

	mux.HandleFunc("GET /triggers", s.handleListTriggers)
	mux.HandleFunc("POST /triggers", s.handleCreateTrigger)
	mux.HandleFunc("POST /triggers/sync", s.handleSyncTriggers)
	mux.HandleFunc("PATCH /triggers/{id}", s.handlePatchTrigger)
	mux.HandleFunc("DELETE /triggers/{id}", s.handleDeleteTrigger)
	mux.HandleFunc("GET /triggered-events", s.handleTriggeredEvents)

	mux.HandleFunc("GET /peers", s.handlePeers)
	mux.HandleFunc("GET /routes", s.handleAllRoutes)
	mux.HandleFunc("GET /routes/{peer}", s.handlePeerRoutes)

	mux.HandleFunc("GET /ws/flows", s.handleFlowStream)
	mux.HandleFunc("GET /ws/notifications", s.handleNotificationStream)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("API server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "netstream",
		"endpoints": []string{
			"/stats", "/flows", "/top-talkers", "/conversations", "/protocols",
			"/traffic-window", "/triggers", "/triggered-events",
			"/peers", "/routes", "/ws/flows", "/ws/notifications",
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"peers_count":  len(s.routes.Peers()),
		"routes_count": s.routes.RouteCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.flows.Stats()
	protocols := make(map[string]uint64, len(snap.Protocols))
	for proto, count := range snap.Protocols {
		protocols[strconv.Itoa(int(proto))] = count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_flows":     snap.TotalFlows,
		"total_packets":   snap.TotalPackets,
		"total_bytes":     snap.TotalBytes,
		"flows_in_memory": snap.FlowsInMemory,
		"exporters":       snap.Exporters,
		"protocols":       protocols,
	})
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	src := r.URL.Query().Get("src")
	dst := r.URL.Query().Get("dst")

	flows := s.flows.Recent(limit, src, dst)
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(flows),
		"flows": flows,
	})
}

func (s *Server) handleTopTalkers(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "bytes"
	}
	switch metric {
	case "bytes", "packets", "flows":
	default:
		writeError(w, http.StatusBadRequest, "metric must be 'bytes', 'packets', or 'flows'")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"metric":  metric,
		"talkers": s.flows.TopTalkers(queryInt(r, "limit", 10), metric),
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": s.flows.Conversations(queryInt(r, "limit", 10)),
	})
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	snap := s.flows.Stats()

	type protocolStat struct {
		Protocol uint8  `json:"protocol"`
		Name     string `json:"name"`
		Flows    uint64 `json:"flows"`
	}
	stats := make([]protocolStat, 0, len(snap.Protocols))
	for proto, count := range snap.Protocols {
		name, ok := protocolNames[proto]
		if !ok {
			name = "Protocol-" + strconv.Itoa(int(proto))
		}
		stats = append(stats, protocolStat{Protocol: proto, Name: name, Flows: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Flows > stats[j].Flows })

	writeJSON(w, http.StatusOK, map[string]any{"protocols": stats})
}

func (s *Server) handleTrafficWindow(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "kbps"
	}
	switch metric {
	case "bytes", "packets", "flows", "bps", "kbps", "mbps", "pps":
	default:
		writeError(w, http.StatusBadRequest, "metric must be one of: bytes, packets, flows, bps, kbps, mbps, pps")
		return
	}
	limit := queryInt(r, "limit", 20)

	aggregates := s.window.Aggregates()

	type talker struct {
		Address string `json:"address"`
		flow.Aggregate
	}
	talkers := make([]talker, 0, len(aggregates))
	for addr, agg := range aggregates {
		talkers = append(talkers, talker{Address: addr, Aggregate: agg})
	}

	metricOf := func(t talker) float64 {
		switch metric {
		case "bytes":
			return float64(t.Bytes)
		case "packets":
			return float64(t.Packets)
		case "flows":
			return float64(t.Flows)
		case "bps":
			return t.BPS
		case "mbps":
			return t.Mbps
		case "pps":
			return t.PPS
		default:
			return t.Kbps
		}
	}
	sort.Slice(talkers, func(i, j int) bool { return metricOf(talkers[i]) > metricOf(talkers[j]) })
	if limit > 0 && len(talkers) > limit {
		talkers = talkers[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window_seconds":    s.windowSeconds,
		"metric":            metric,
		"entries_in_window": s.window.Len(),
		"talkers":           talkers,
	})
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	list := s.triggers.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(list),
		"triggers": list,
	})
}

type createTriggerRequest struct {
	Name            string              `json:"name"`
	Enabled         *bool               `json:"enabled"`
	CooldownSeconds int                 `json:"cooldown_seconds"`
	Conditions      *trigger.Conditions `json:"conditions"`
	Action          *trigger.Action     `json:"action"`
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req createTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Conditions == nil || req.Conditions.Empty() {
		writeError(w, http.StatusBadRequest, "Trigger must have 'conditions'")
		return
	}

	t := &trigger.Trigger{
		Name:            req.Name,
		Enabled:         true,
		CooldownSeconds: req.CooldownSeconds,
		Conditions:      *req.Conditions,
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}
	if req.Action != nil {
		t.Action = *req.Action
	}

	created, err := s.triggers.Create(t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Trigger created successfully",
		"trigger": created,
	})
}

func (s *Server) handleSyncTriggers(w http.ResponseWriter, r *http.Request) {
	if s.syncNow != nil {
		s.syncNow()
	}
	list := s.triggers.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Triggers synced from topology database",
		"count":    len(list),
		"triggers": list,
	})
}

func (s *Server) handlePatchTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch trigger.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.triggers.Update(id, patch)
	if err != nil {
		if _, ok := s.triggers.Get(id); !ok {
			writeError(w, http.StatusNotFound, "Trigger with ID '"+id+"' not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Trigger updated successfully",
		"trigger": updated,
	})
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.triggers.Delete(id) {
		writeError(w, http.StatusNotFound, "Trigger with ID '"+id+"' not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trigger deleted successfully"})
}

func (s *Server) handleTriggeredEvents(w http.ResponseWriter, r *http.Request) {
	events := s.dispatcher.Events(queryInt(r, "limit", 100))
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"peers": s.routes.Peers()})
}

func (s *Server) handleAllRoutes(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	writeJSON(w, http.StatusOK, map[string]any{"routes": s.routes.AllRoutes(kind)})
}

func (s *Server) handlePeerRoutes(w http.ResponseWriter, r *http.Request) {
	peer := r.PathValue("peer")
	_, view, ok := s.routes.RoutesForPeer(peer)
	if !ok {
		writeError(w, http.StatusNotFound, "No routes found for peer "+peer)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"peer":   peer,
		"routes": view,
	})
}

// nowISO is the timestamp format used in stream envelopes.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
