// Package trigger implements the rule engine: the trigger set, per-flow
// and aggregate evaluation, and action dispatch with cooldown.
package trigger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Action types.
const (
	ActionLog      = "log"
	ActionAlert    = "alert"
	ActionFlowspec = "flowspec"
)

// Conditions is the conjunctive match set of a trigger. Nil fields are
// absent; a trigger with no conditions at all is rejected at creation
// (it would match every flow).
type Conditions struct {
	SrcAddr      *string  `json:"src_addr,omitempty"`
	DstAddr      *string  `json:"dst_addr,omitempty"`
	SrcOrDstAddr *string  `json:"src_or_dst_addr,omitempty"`
	Protocol     *uint8   `json:"protocol,omitempty"`
	MinBytes     *uint64  `json:"min_bytes,omitempty"`
	MinKbps      *float64 `json:"min_kbps,omitempty"`
	MinMbps      *float64 `json:"min_mbps,omitempty"`
	MinPPS       *float64 `json:"min_pps,omitempty"`
}

// Empty reports whether no condition is set.
func (c Conditions) Empty() bool {
	return c.SrcAddr == nil && c.DstAddr == nil && c.SrcOrDstAddr == nil &&
		c.Protocol == nil && c.MinBytes == nil && c.MinKbps == nil &&
		c.MinMbps == nil && c.MinPPS == nil
}

// HasRateCondition reports whether the trigger is eligible for aggregate
// evaluation.
func (c Conditions) HasRateCondition() bool {
	return c.MinKbps != nil || c.MinMbps != nil || c.MinPPS != nil
}

// Action is what a matched trigger does.
type Action struct {
	Type          string  `json:"type"`
	Message       string  `json:"message,omitempty"`
	RateLimitKbps float64 `json:"rate_limit_kbps,omitempty"`
}

// Trigger is one user-defined rule. The ID is opaque and stable across
// synchronizer reconciliation.
type Trigger struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	CooldownSeconds int        `json:"cooldown_seconds"`
	Conditions      Conditions `json:"conditions"`
	Action          Action     `json:"action"`
}

// FlowSnapshot is the flow identity captured in a trigger event.
type FlowSnapshot struct {
	SrcAddr    string  `json:"src_addr"`
	DstAddr    string  `json:"dst_addr"`
	SrcPort    uint16  `json:"src_port"`
	DstPort    uint16  `json:"dst_port"`
	Protocol   uint8   `json:"protocol"`
	Bytes      uint64  `json:"bytes"`
	Packets    uint64  `json:"packets"`
	Kbps       float64 `json:"kbps"`
	Mbps       float64 `json:"mbps"`
	Aggregated bool    `json:"aggregated,omitempty"`
}

// Event records one dispatched trigger action.
type Event struct {
	Timestamp    time.Time    `json:"timestamp"`
	TriggerID    string       `json:"trigger_id"`
	TriggerName  string       `json:"trigger_name"`
	Flow         FlowSnapshot `json:"flow"`
	ActionType   string       `json:"action_type"`
	ActionResult string       `json:"action_result"`
}

// Notification is the envelope published to notification listeners when
// a trigger dispatches. FlowSpec mitigations are warnings, everything
// else informational.
type Notification struct {
	Type        string       `json:"type"`
	Timestamp   time.Time    `json:"timestamp"`
	TriggerName string       `json:"trigger_name"`
	ActionType  string       `json:"action_type"`
	Flow        FlowSnapshot `json:"flow"`
	Message     string       `json:"message"`
	Severity    string       `json:"severity"`
}

// NewID generates an opaque trigger identifier.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Timestamp fallback keeps IDs unique enough for an in-memory set.
		return fmt.Sprintf("t-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
