package flowspec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

func sampleFlow() *netflow.EnrichedFlow {
	return &netflow.EnrichedFlow{
		FlowRecord: netflow.FlowRecord{
			SrcAddr:  "10.0.0.1",
			DstAddr:  "10.0.0.2",
			SrcPort:  49152,
			DstPort:  80,
			Protocol: 6,
		},
		Kbps: 1600,
	}
}

func TestMatchFromFlow_NeverIncludesSrcPort(t *testing.T) {
	m := MatchFromFlow(sampleFlow())

	if m.Destination != "10.0.0.2/32" {
		t.Errorf("expected destination 10.0.0.2/32, got %q", m.Destination)
	}
	if m.Source != "10.0.0.1/32" {
		t.Errorf("expected source 10.0.0.1/32, got %q", m.Source)
	}
	if m.Protocol != 6 {
		t.Errorf("expected protocol 6, got %d", m.Protocol)
	}
	if m.DestinationPort != 80 {
		t.Errorf("expected destination_port 80, got %d", m.DestinationPort)
	}

	body, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["source_port"]; ok {
		t.Error("source port must never appear in the flowspec match")
	}
}

func TestMatchFromFlow_OmitsAbsentFields(t *testing.T) {
	f := &netflow.EnrichedFlow{FlowRecord: netflow.FlowRecord{DstAddr: "10.0.0.2"}}
	m := MatchFromFlow(f)
	if m.Source != "" || m.Protocol != 0 || m.DestinationPort != 0 {
		t.Errorf("expected only destination set, got %+v", m)
	}
}

func TestRateLimit_PostsRule(t *testing.T) {
	var got Rule
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding rule: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, zap.NewNop())
	desc, err := c.RateLimit(context.Background(), sampleFlow(), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Family != "ipv4" {
		t.Errorf("expected family ipv4, got %q", got.Family)
	}
	if got.Match.Destination != "10.0.0.2/32" || got.Match.Source != "10.0.0.1/32" {
		t.Errorf("unexpected match: %+v", got.Match)
	}
	if got.Match.Protocol != 6 || got.Match.DestinationPort != 80 {
		t.Errorf("unexpected match fields: %+v", got.Match)
	}
	if got.Actions.Action != "rate-limit" || got.Actions.Rate != 0.5 {
		t.Errorf("unexpected actions: %+v", got.Actions)
	}
	if desc == "" {
		t.Error("expected a non-empty rule description")
	}
}

func TestRateLimit_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad rule", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, zap.NewNop())
	if _, err := c.RateLimit(context.Background(), sampleFlow(), 500); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestRateLimit_DaemonUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, zap.NewNop())
	if _, err := c.RateLimit(context.Background(), sampleFlow(), 500); err == nil {
		t.Fatal("expected error for unreachable daemon")
	}
}
