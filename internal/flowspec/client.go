// Package flowspec composes FlowSpec rate-limit rules from matched flows
// and installs them through the routing daemon's HTTP API.
package flowspec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

// Match is the FlowSpec match component sent to the routing daemon.
type Match struct {
	Destination     string `json:"destination,omitempty"`
	Source          string `json:"source,omitempty"`
	Protocol        uint8  `json:"protocol,omitempty"`
	DestinationPort uint16 `json:"destination_port,omitempty"`
}

// Actions is the FlowSpec action component. Rate is in Mbps.
type Actions struct {
	Action string  `json:"action"`
	Rate   float64 `json:"rate"`
}

// Rule is the request body POSTed to the routing daemon.
type Rule struct {
	Family  string  `json:"family"`
	Match   Match   `json:"match"`
	Actions Actions `json:"actions"`
}

// MatchFromFlow builds the match component from a flow. Host prefixes
// are /32; the source port is never included since client ports are
// ephemeral.
func MatchFromFlow(f *netflow.EnrichedFlow) Match {
	m := Match{}
	if f.DstAddr != "" {
		m.Destination = f.DstAddr + "/32"
	}
	if f.SrcAddr != "" {
		m.Source = f.SrcAddr + "/32"
	}
	if f.Protocol != 0 {
		m.Protocol = f.Protocol
	}
	if f.DstPort != 0 {
		m.DestinationPort = f.DstPort
	}
	return m
}

// Describe renders a match for logs and event results.
func (m Match) Describe() string {
	var parts []string
	if m.Destination != "" {
		parts = append(parts, "dst "+m.Destination)
	}
	if m.Source != "" {
		parts = append(parts, "src "+m.Source)
	}
	if m.Protocol != 0 {
		parts = append(parts, fmt.Sprintf("proto %d", m.Protocol))
	}
	if m.DestinationPort != 0 {
		parts = append(parts, fmt.Sprintf("dport %d", m.DestinationPort))
	}
	return strings.Join(parts, " ")
}

// Client installs FlowSpec rules via the routing daemon.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// RateLimit composes and POSTs a rate-limit rule for the flow. Returns
// a description of the installed rule, or an error when the daemon is
// unreachable or rejects it.
func (c *Client) RateLimit(ctx context.Context, f *netflow.EnrichedFlow, rateLimitKbps float64) (string, error) {
	rateMbps := rateLimitKbps / 1000.0
	rule := Rule{
		Family: "ipv4",
		Match:  MatchFromFlow(f),
		Actions: Actions{
			Action: "rate-limit",
			Rate:   rateMbps,
		},
	}

	body, err := json.Marshal(rule)
	if err != nil {
		return "", fmt.Errorf("encoding flowspec rule: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building flowspec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting flowspec rule: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("routing daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return fmt.Sprintf("%s rate-limited to %g Mbps", rule.Match.Describe(), rateMbps), nil
}
