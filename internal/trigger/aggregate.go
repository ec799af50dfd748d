package trigger

import (
	"context"
	"time"

	"github.com/netstream-lab/netstream/internal/flow"
	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

// AggregateEvaluator periodically matches rate triggers against the
// per-address sliding-window aggregates. Attacks spread over many
// short flows rarely clear per-flow thresholds; the per-destination
// aggregate does.
type AggregateEvaluator struct {
	store      *Store
	window     *flow.Window
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *zap.Logger
}

func NewAggregateEvaluator(store *Store, window *flow.Window, dispatcher *Dispatcher, interval time.Duration, logger *zap.Logger) *AggregateEvaluator {
	return &AggregateEvaluator{
		store:      store,
		window:     window,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

// Run evaluates on the configured interval until the context is
// cancelled.
func (a *AggregateEvaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("aggregate trigger evaluation started", zap.Duration("interval", a.interval))
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregate trigger evaluation stopped")
			return
		case <-ticker.C:
			a.EvaluateOnce()
		}
	}
}

// EvaluateOnce runs one evaluation pass over the current aggregates.
func (a *AggregateEvaluator) EvaluateOnce() {
	if !a.store.HasRateTriggers() {
		return
	}
	aggregates := a.window.Aggregates()
	if len(aggregates) == 0 {
		return
	}

	for _, t := range a.store.Enabled() {
		if !t.Conditions.HasRateCondition() {
			continue
		}
		for addr, agg := range aggregates {
			if !matchesAggregate(t, addr, agg) {
				continue
			}
			a.logger.Info("aggregate trigger matched",
				zap.String("trigger", t.Name),
				zap.String("address", addr),
				zap.Float64("kbps", agg.Kbps),
				zap.Float64("mbps", agg.Mbps),
			)
			a.dispatcher.Dispatch(t, pseudoFlow(addr, agg), SourceAggregate)
		}
	}
}

// matchesAggregate applies the trigger's address and rate predicates to
// one per-address aggregate. The single aggregated address stands in
// for both endpoints of the address-equality conditions.
func matchesAggregate(t *Trigger, addr string, agg flow.Aggregate) bool {
	c := t.Conditions
	if c.SrcAddr != nil && addr != *c.SrcAddr {
		return false
	}
	if c.DstAddr != nil && addr != *c.DstAddr {
		return false
	}
	if c.SrcOrDstAddr != nil && addr != *c.SrcOrDstAddr {
		return false
	}
	if c.MinKbps != nil && agg.Kbps < *c.MinKbps {
		return false
	}
	if c.MinMbps != nil && agg.Mbps < *c.MinMbps {
		return false
	}
	if c.MinPPS != nil && agg.PPS < *c.MinPPS {
		return false
	}
	if c.MinBytes != nil && agg.Bytes < *c.MinBytes {
		return false
	}
	return true
}

// pseudoFlow synthesizes the flow handed to the dispatcher for an
// aggregate match. Source and destination are both the aggregated
// address.
func pseudoFlow(addr string, agg flow.Aggregate) *netflow.EnrichedFlow {
	return &netflow.EnrichedFlow{
		FlowRecord: netflow.FlowRecord{
			SrcAddr: addr,
			DstAddr: addr,
			Bytes:   agg.Bytes,
			Packets: agg.Packets,
		},
		BPS:        agg.BPS,
		Kbps:       agg.Kbps,
		Mbps:       agg.Mbps,
		PPS:        agg.PPS,
		Aggregated: true,
	}
}
