package flow

import (
	"context"
	"sync"
	"time"

	"github.com/netstream-lab/netstream/internal/metrics"
	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

// windowEntry is one flow's contribution to the sliding traffic window.
type windowEntry struct {
	at      time.Time
	src     string
	dst     string
	bytes   uint64
	packets uint64
}

// Aggregate is one address's traffic summed over the window, with rates
// computed over the effective window duration.
type Aggregate struct {
	Bytes   uint64  `json:"bytes"`
	Packets uint64  `json:"packets"`
	Flows   uint64  `json:"flows"`
	BPS     float64 `json:"bps"`
	Kbps    float64 `json:"kbps"`
	Mbps    float64 `json:"mbps"`
	PPS     float64 `json:"pps"`
}

// Window is the time-ordered sliding window of recent flow contributions.
// Entries are trimmed lazily on insert and by a periodic sweep so low
// insertion rates still converge.
type Window struct {
	window time.Duration
	cap    int

	mu      sync.Mutex
	entries []windowEntry

	logger *zap.Logger
	now    func() time.Time
}

func NewWindow(windowSeconds, capacity int, logger *zap.Logger) *Window {
	return &Window{
		window: time.Duration(windowSeconds) * time.Second,
		cap:    capacity,
		logger: logger,
		now:    time.Now,
	}
}

// Add records a flow's byte/packet contribution. The head is trimmed
// while it has aged out; overflow beyond capacity drops the oldest.
func (w *Window) Add(e *netflow.EnrichedFlow) {
	if e.SrcAddr == "" && e.DstAddr == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.trimLocked(now)

	if len(w.entries) >= w.cap {
		w.entries = w.entries[1:]
	}
	w.entries = append(w.entries, windowEntry{
		at:      now,
		src:     e.SrcAddr,
		dst:     e.DstAddr,
		bytes:   e.Bytes,
		packets: e.Packets,
	})
	metrics.WindowEntries.Set(float64(len(w.entries)))
}

// Sweep trims aged entries. Run periodically so the window shrinks even
// when no flows arrive.
func (w *Window) Sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trimLocked(w.now())
	metrics.WindowEntries.Set(float64(len(w.entries)))
}

// RunSweeper trims on the given interval until the context is cancelled.
func (w *Window) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

func (w *Window) trimLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}

// Len returns the number of retained entries.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Aggregates computes per-address traffic over the retained entries.
// An entry contributes once to its source and once to its destination;
// a conversation therefore counts toward both endpoints, matching the
// top-talkers view. The effective duration is clamped to the window and
// to the age of the oldest retained entry, floor one second.
func (w *Window) Aggregates() map[string]Aggregate {
	w.mu.Lock()
	now := w.now()
	cutoff := now.Add(-w.window)

	type sums struct {
		bytes, packets, flows uint64
	}
	acc := make(map[string]*sums)
	var oldest time.Time

	for _, e := range w.entries {
		if e.at.Before(cutoff) {
			continue
		}
		if oldest.IsZero() {
			oldest = e.at
		}
		if e.src != "" {
			s := acc[e.src]
			if s == nil {
				s = &sums{}
				acc[e.src] = s
			}
			s.bytes += e.bytes
			s.packets += e.packets
			s.flows++
		}
		if e.dst != "" {
			s := acc[e.dst]
			if s == nil {
				s = &sums{}
				acc[e.dst] = s
			}
			s.bytes += e.bytes
			s.packets += e.packets
			s.flows++
		}
	}
	w.mu.Unlock()

	duration := w.window.Seconds()
	if !oldest.IsZero() {
		if age := now.Sub(oldest).Seconds(); age < duration {
			duration = age
		}
	}
	if duration < 1 {
		duration = 1
	}

	out := make(map[string]Aggregate, len(acc))
	for addr, s := range acc {
		bps := float64(s.bytes) * 8 / duration
		out[addr] = Aggregate{
			Bytes:   s.bytes,
			Packets: s.packets,
			Flows:   s.flows,
			BPS:     round2(bps),
			Kbps:    round2(bps / 1000.0),
			Mbps:    round4(bps / 1000000.0),
			PPS:     round2(float64(s.packets) / duration),
		}
	}
	return out
}
