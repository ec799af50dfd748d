package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

type fakeMitigator struct {
	calls int
	fail  bool
	last  *netflow.EnrichedFlow
	rate  float64
}

func (m *fakeMitigator) RateLimit(ctx context.Context, f *netflow.EnrichedFlow, rateLimitKbps float64) (string, error) {
	m.calls++
	m.last = f
	m.rate = rateLimitKbps
	if m.fail {
		return "", errors.New("daemon unreachable")
	}
	return fmt.Sprintf("dst %s/32 rate-limited to %g Mbps", f.DstAddr, rateLimitKbps/1000), nil
}

func dispatcherAt(t *testing.T, mit Mitigator) (*Dispatcher, *time.Time) {
	t.Helper()
	d := NewDispatcher(mit, nil, 60, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, &now
}

func flowspecTrigger() *Trigger {
	return &Trigger{
		ID:              "t1",
		Name:            "mitigate",
		Enabled:         true,
		CooldownSeconds: 60,
		Conditions:      Conditions{MinKbps: f64ptr(1000)},
		Action:          Action{Type: ActionFlowspec, RateLimitKbps: 500},
	}
}

func TestDispatch_CooldownSuppressesDuplicates(t *testing.T) {
	mit := &fakeMitigator{}
	d, now := dispatcherAt(t, mit)
	tr := flowspecTrigger()
	f := enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000)

	d.Dispatch(tr, f, SourceFlow)
	*now = now.Add(30 * time.Second)
	d.Dispatch(tr, f, SourceFlow)

	if mit.calls != 1 {
		t.Errorf("expected 1 flowspec POST, got %d", mit.calls)
	}
	if len(d.Events(0)) != 1 {
		t.Errorf("expected 1 event, got %d", len(d.Events(0)))
	}
}

func TestDispatch_CooldownExpires(t *testing.T) {
	mit := &fakeMitigator{}
	d, now := dispatcherAt(t, mit)
	tr := flowspecTrigger()
	f := enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000)

	d.Dispatch(tr, f, SourceFlow)
	*now = now.Add(61 * time.Second)
	d.Dispatch(tr, f, SourceFlow)

	if mit.calls != 2 {
		t.Errorf("expected 2 flowspec POSTs after cooldown expiry, got %d", mit.calls)
	}
}

func TestDispatch_SrcPortChurnDoesNotResetCooldown(t *testing.T) {
	mit := &fakeMitigator{}
	d, now := dispatcherAt(t, mit)
	tr := flowspecTrigger()

	f1 := enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000)
	f1.SrcPort = 50001
	f2 := enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000)
	f2.SrcPort = 50002

	d.Dispatch(tr, f1, SourceFlow)
	*now = now.Add(time.Second)
	d.Dispatch(tr, f2, SourceFlow)

	if mit.calls != 1 {
		t.Errorf("expected ephemeral src port change to stay in cooldown, got %d calls", mit.calls)
	}
}

func TestDispatch_DistinctFlowKeysIndependent(t *testing.T) {
	mit := &fakeMitigator{}
	d, _ := dispatcherAt(t, mit)
	tr := flowspecTrigger()

	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)
	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.3", 6, 1600, 200000), SourceFlow)

	if mit.calls != 2 {
		t.Errorf("expected independent cooldowns per flow key, got %d calls", mit.calls)
	}
}

func TestDispatch_FlowspecFailureRecorded(t *testing.T) {
	mit := &fakeMitigator{fail: true}
	d, _ := dispatcherAt(t, mit)
	tr := flowspecTrigger()

	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)

	events := d.Events(0)
	if len(events) != 1 {
		t.Fatalf("expected 1 event despite daemon failure, got %d", len(events))
	}
	if !strings.HasPrefix(events[0].ActionResult, "flowspec_error:") {
		t.Errorf("expected flowspec_error result, got %q", events[0].ActionResult)
	}
}

func TestDispatch_FlowspecSuccessResult(t *testing.T) {
	mit := &fakeMitigator{}
	d, _ := dispatcherAt(t, mit)
	tr := flowspecTrigger()

	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)

	events := d.Events(0)
	if !strings.HasPrefix(events[0].ActionResult, "flowspec_created:") {
		t.Errorf("expected flowspec_created result, got %q", events[0].ActionResult)
	}
	if mit.rate != 500 {
		t.Errorf("expected rate_limit_kbps 500 passed through, got %f", mit.rate)
	}
}

func TestDispatch_AlertAction(t *testing.T) {
	d, _ := dispatcherAt(t, &fakeMitigator{})
	tr := &Trigger{
		ID: "t2", Name: "alerting", Enabled: true, CooldownSeconds: 60,
		Conditions: Conditions{MinKbps: f64ptr(1)},
		Action:     Action{Type: ActionAlert, Message: "high TCP bandwidth"},
	}

	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)

	events := d.Events(0)
	if events[0].ActionResult != "alert_sent: high TCP bandwidth" {
		t.Errorf("unexpected alert result: %q", events[0].ActionResult)
	}
}

func TestDispatch_UnknownActionRecorded(t *testing.T) {
	d, _ := dispatcherAt(t, &fakeMitigator{})
	tr := &Trigger{
		ID: "t3", Name: "odd", Enabled: true, CooldownSeconds: 60,
		Conditions: Conditions{MinKbps: f64ptr(1)},
		Action:     Action{Type: "teleport"},
	}

	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)

	events := d.Events(0)
	if events[0].ActionResult != "unknown_action: teleport" {
		t.Errorf("unexpected result for unknown action: %q", events[0].ActionResult)
	}
}

func TestDispatch_EventRingBounded(t *testing.T) {
	d, _ := dispatcherAt(t, &fakeMitigator{})
	tr := &Trigger{
		ID: "t4", Name: "noisy", Enabled: true, CooldownSeconds: 60,
		Conditions: Conditions{MinKbps: f64ptr(1)},
		Action:     Action{Type: ActionLog},
	}

	for i := 0; i < maxEvents+50; i++ {
		f := enriched("10.0.0.1", fmt.Sprintf("10.1.%d.%d", i/250, i%250), 6, 1600, 200000)
		d.Dispatch(tr, f, SourceFlow)
	}

	if got := len(d.Events(0)); got != maxEvents {
		t.Errorf("expected event ring capped at %d, got %d", maxEvents, got)
	}
}

func TestDispatch_EventsMostRecentFirst(t *testing.T) {
	d, now := dispatcherAt(t, &fakeMitigator{})
	tr := &Trigger{
		ID: "t5", Name: "order", Enabled: true, CooldownSeconds: 1,
		Conditions: Conditions{MinKbps: f64ptr(1)},
		Action:     Action{Type: ActionLog},
	}

	f := enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000)
	d.Dispatch(tr, f, SourceFlow)
	*now = now.Add(2 * time.Second)
	d.Dispatch(tr, f, SourceFlow)

	events := d.Events(2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].Timestamp.After(events[1].Timestamp) {
		t.Error("expected most recent event first")
	}
}

func TestDispatch_CooldownTablePruned(t *testing.T) {
	d, now := dispatcherAt(t, &fakeMitigator{})
	tr := flowspecTrigger()

	d.Dispatch(tr, enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)
	if len(d.cooldowns) != 1 {
		t.Fatalf("expected 1 cooldown entry, got %d", len(d.cooldowns))
	}

	// Past 2x the max cooldown, the stale entry is evicted on the next
	// dispatch.
	*now = now.Add(3 * time.Minute)
	d.Dispatch(tr, enriched("10.0.0.5", "10.0.0.6", 6, 1600, 200000), SourceFlow)

	if len(d.cooldowns) != 1 {
		t.Errorf("expected stale cooldown entry pruned, table has %d entries", len(d.cooldowns))
	}
}

func TestDispatch_NotificationSeverity(t *testing.T) {
	notifier := NewNotifier(zap.NewNop())
	ch := notifier.Subscribe(4)
	d := NewDispatcher(&fakeMitigator{}, notifier, 60, zap.NewNop())

	d.Dispatch(flowspecTrigger(), enriched("10.0.0.1", "10.0.0.2", 6, 1600, 200000), SourceFlow)
	n := <-ch
	if n.Severity != "warning" {
		t.Errorf("expected warning severity for flowspec, got %q", n.Severity)
	}
	if n.Type != "trigger_event" {
		t.Errorf("expected trigger_event type, got %q", n.Type)
	}

	logTrigger := &Trigger{
		ID: "t6", Name: "quiet", Enabled: true, CooldownSeconds: 60,
		Conditions: Conditions{MinKbps: f64ptr(1)},
		Action:     Action{Type: ActionLog},
	}
	d.Dispatch(logTrigger, enriched("10.0.0.3", "10.0.0.4", 6, 1600, 200000), SourceFlow)
	n = <-ch
	if n.Severity != "info" {
		t.Errorf("expected info severity for log action, got %q", n.Severity)
	}
}
