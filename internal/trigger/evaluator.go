package trigger

import (
	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

// Evaluator matches individual enriched flows against the trigger set.
// It holds no state of its own; cooldown lives in the Dispatcher.
type Evaluator struct {
	store      *Store
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewEvaluator(store *Store, dispatcher *Dispatcher, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, dispatcher: dispatcher, logger: logger}
}

// EvaluateFlow runs every enabled trigger against one enriched flow.
// Flows without a usable rate (first == last on the exporter) are left
// to the aggregate evaluator, where their bytes still count.
func (e *Evaluator) EvaluateFlow(f *netflow.EnrichedFlow) {
	if f.Kbps == 0 {
		return
	}
	for _, t := range e.store.Enabled() {
		if Matches(t, f) {
			e.dispatcher.Dispatch(t, f, SourceFlow)
		}
	}
}

// Matches evaluates a trigger's conditions conjunctively against a flow;
// the first failing predicate short-circuits.
func Matches(t *Trigger, f *netflow.EnrichedFlow) bool {
	c := t.Conditions
	if c.SrcAddr != nil && f.SrcAddr != *c.SrcAddr {
		return false
	}
	if c.DstAddr != nil && f.DstAddr != *c.DstAddr {
		return false
	}
	if c.SrcOrDstAddr != nil && f.SrcAddr != *c.SrcOrDstAddr && f.DstAddr != *c.SrcOrDstAddr {
		return false
	}
	if c.Protocol != nil && f.Protocol != *c.Protocol {
		return false
	}
	if c.MinKbps != nil && f.Kbps < *c.MinKbps {
		return false
	}
	if c.MinMbps != nil && f.Mbps < *c.MinMbps {
		return false
	}
	if c.MinPPS != nil && f.PPS < *c.MinPPS {
		return false
	}
	if c.MinBytes != nil && f.Bytes < *c.MinBytes {
		return false
	}
	return true
}
