// Package syncer reconciles the in-memory trigger set with the
// canonical topology database on a fixed interval.
package syncer

import (
	"context"
	"strconv"

	"github.com/netstream-lab/netstream/internal/trigger"
)

// Row is the flat trigger shape stored in the topology database and
// served by the container-manager API. Nullable columns are pointers.
type Row struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Enabled         *bool    `json:"enabled"`
	SrcAddr         *string  `json:"src_addr"`
	DstAddr         *string  `json:"dst_addr"`
	SrcOrDstAddr    *string  `json:"src_or_dst_addr"`
	Protocol        *int     `json:"protocol"`
	MinBytes        *int64   `json:"min_bytes"`
	MinKbps         *float64 `json:"min_kbps"`
	MinMbps         *float64 `json:"min_mbps"`
	MinPPS          *float64 `json:"min_pps"`
	ActionType      *string  `json:"action_type"`
	ActionMessage   *string  `json:"action_message"`
	RateLimitKbps   *float64 `json:"rate_limit_kbps"`
	CooldownSeconds *int     `json:"cooldown_seconds"`
}

// Source fetches the current trigger rows for the active topology.
// Returning (nil, nil) means no active topology; the caller leaves the
// store untouched.
type Source interface {
	Fetch(ctx context.Context) ([]Row, error)
}

// Translate folds a flat database row into the internal trigger shape.
func Translate(r Row) *trigger.Trigger {
	t := &trigger.Trigger{
		ID:      rowID(r.ID),
		Name:    r.Name,
		Enabled: true,
		Action:  trigger.Action{Type: trigger.ActionLog},
	}
	if r.Enabled != nil {
		t.Enabled = *r.Enabled
	}
	if r.CooldownSeconds != nil && *r.CooldownSeconds > 0 {
		t.CooldownSeconds = *r.CooldownSeconds
	}

	c := &t.Conditions
	c.SrcAddr = r.SrcAddr
	c.DstAddr = r.DstAddr
	c.SrcOrDstAddr = r.SrcOrDstAddr
	if r.Protocol != nil && *r.Protocol > 0 && *r.Protocol < 256 {
		p := uint8(*r.Protocol)
		c.Protocol = &p
	}
	if r.MinBytes != nil && *r.MinBytes > 0 {
		b := uint64(*r.MinBytes)
		c.MinBytes = &b
	}
	c.MinKbps = positive(r.MinKbps)
	c.MinMbps = positive(r.MinMbps)
	c.MinPPS = positive(r.MinPPS)

	if r.ActionType != nil && *r.ActionType != "" {
		t.Action.Type = *r.ActionType
	}
	if r.ActionMessage != nil {
		t.Action.Message = *r.ActionMessage
	}
	if r.RateLimitKbps != nil {
		t.Action.RateLimitKbps = *r.RateLimitKbps
	}

	return t
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func rowID(id int64) string {
	// Database IDs are integers; the in-memory set keys by string.
	return strconv.FormatInt(id, 10)
}
