package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netstream-lab/netstream/internal/metrics"
	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

// Evaluation sources, for logs and metrics.
const (
	SourceFlow      = "flow"
	SourceAggregate = "aggregate"
)

// maxEvents bounds the recent-event ring.
const maxEvents = 1000

// FlowKey is the coarse flow identity used for cooldown. The source
// port is deliberately excluded so ephemeral-port churn on the client
// side does not reset the clock.
type FlowKey struct {
	SrcAddr  string
	DstAddr  string
	DstPort  uint16
	Protocol uint8
}

// KeyFor derives the cooldown key for a flow.
func KeyFor(f *netflow.EnrichedFlow) FlowKey {
	return FlowKey{
		SrcAddr:  f.SrcAddr,
		DstAddr:  f.DstAddr,
		DstPort:  f.DstPort,
		Protocol: f.Protocol,
	}
}

type cooldownKey struct {
	triggerID string
	flow      FlowKey
}

// Mitigator applies a FlowSpec rate-limit for a matched flow and
// returns a description of the installed rule.
type Mitigator interface {
	RateLimit(ctx context.Context, f *netflow.EnrichedFlow, rateLimitKbps float64) (string, error)
}

// Dispatcher executes trigger actions: cooldown bookkeeping, the action
// itself, the bounded event ring, and listener notification. Failures
// from the routing daemon are recorded in the event, never fatal.
type Dispatcher struct {
	mitigator Mitigator
	notifier  *Notifier
	logger    *zap.Logger

	mu          sync.Mutex
	cooldowns   map[cooldownKey]time.Time
	maxCooldown time.Duration
	events      []Event

	now func() time.Time
}

func NewDispatcher(mitigator Mitigator, notifier *Notifier, defaultCooldownSeconds int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		mitigator:   mitigator,
		notifier:    notifier,
		logger:      logger,
		cooldowns:   make(map[cooldownKey]time.Time),
		maxCooldown: time.Duration(defaultCooldownSeconds) * time.Second,
		events:      make([]Event, 0, 64),
		now:         time.Now,
	}
}

// Dispatch executes a matched trigger's action for a flow unless the
// (trigger, flow-key) pair is still cooling down.
func (d *Dispatcher) Dispatch(t *Trigger, f *netflow.EnrichedFlow, source string) {
	key := cooldownKey{triggerID: t.ID, flow: KeyFor(f)}
	cooldown := time.Duration(t.CooldownSeconds) * time.Second
	now := d.now()

	d.mu.Lock()
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < cooldown {
		d.mu.Unlock()
		metrics.TriggerSuppressedTotal.Inc()
		d.logger.Debug("suppressed duplicate trigger",
			zap.String("trigger", t.Name),
			zap.String("src", f.SrcAddr),
			zap.String("dst", f.DstAddr),
			zap.Duration("since_last", now.Sub(last)),
		)
		return
	}
	d.cooldowns[key] = now
	if cooldown > d.maxCooldown {
		d.maxCooldown = cooldown
	}
	d.pruneLocked(now)
	d.mu.Unlock()

	event := Event{
		Timestamp:   now,
		TriggerID:   t.ID,
		TriggerName: t.Name,
		Flow: FlowSnapshot{
			SrcAddr:    f.SrcAddr,
			DstAddr:    f.DstAddr,
			SrcPort:    f.SrcPort,
			DstPort:    f.DstPort,
			Protocol:   f.Protocol,
			Bytes:      f.Bytes,
			Packets:    f.Packets,
			Kbps:       f.Kbps,
			Mbps:       f.Mbps,
			Aggregated: f.Aggregated,
		},
		ActionType: t.Action.Type,
	}

	switch t.Action.Type {
	case ActionLog:
		d.logger.Warn("trigger fired",
			zap.String("trigger", t.Name),
			zap.String("src", fmt.Sprintf("%s:%d", f.SrcAddr, f.SrcPort)),
			zap.String("dst", fmt.Sprintf("%s:%d", f.DstAddr, f.DstPort)),
			zap.Float64("kbps", f.Kbps),
		)
		event.ActionResult = "logged"

	case ActionAlert:
		msg := t.Action.Message
		if msg == "" {
			msg = fmt.Sprintf("High bandwidth detected: %.2f kbps", f.Kbps)
		}
		d.logger.Error("ALERT", zap.String("trigger", t.Name), zap.String("message", msg))
		event.ActionResult = "alert_sent: " + msg

	case ActionFlowspec:
		rateLimitKbps := t.Action.RateLimitKbps
		if rateLimitKbps <= 0 {
			rateLimitKbps = 1000
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		desc, err := d.mitigator.RateLimit(ctx, f, rateLimitKbps)
		cancel()
		if err != nil {
			metrics.FlowspecPostsTotal.WithLabelValues("error").Inc()
			d.logger.Error("FlowSpec rule creation failed",
				zap.String("trigger", t.Name),
				zap.Error(err),
			)
			event.ActionResult = "flowspec_error: " + err.Error()
		} else {
			metrics.FlowspecPostsTotal.WithLabelValues("ok").Inc()
			d.logger.Info("created FlowSpec rule",
				zap.String("trigger", t.Name),
				zap.String("rule", desc),
			)
			event.ActionResult = "flowspec_created: " + desc
		}

	default:
		d.logger.Warn("unknown trigger action",
			zap.String("trigger", t.Name),
			zap.String("action_type", t.Action.Type),
		)
		event.ActionResult = "unknown_action: " + t.Action.Type
	}

	metrics.TriggerMatchesTotal.WithLabelValues(t.Action.Type, source).Inc()

	d.mu.Lock()
	d.events = append(d.events, event)
	if len(d.events) > maxEvents {
		d.events = d.events[len(d.events)-maxEvents:]
	}
	d.mu.Unlock()

	if d.notifier != nil {
		severity := "info"
		if t.Action.Type == ActionFlowspec {
			severity = "warning"
		}
		d.notifier.Publish(Notification{
			Type:        "trigger_event",
			Timestamp:   event.Timestamp,
			TriggerName: t.Name,
			ActionType:  t.Action.Type,
			Flow:        event.Flow,
			Message:     fmt.Sprintf("Trigger '%s' fired", t.Name),
			Severity:    severity,
		})
	}
}

// pruneLocked evicts cooldown entries older than twice the largest
// cooldown seen, bounding the table under ephemeral churn.
func (d *Dispatcher) pruneLocked(now time.Time) {
	horizon := now.Add(-2 * d.maxCooldown)
	for k, at := range d.cooldowns {
		if at.Before(horizon) {
			delete(d.cooldowns, k)
		}
	}
}

// Events returns up to limit recent events, most recent first.
func (d *Dispatcher) Events(limit int) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := len(d.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, d.events[i])
	}
	return out
}
