package netflow

import "math"

// Enrich derives duration and rate fields for a flow record. Duration is
// last - first in exporter milliseconds; a non-positive duration leaves
// every rate at zero so downstream math never sees NaN or Inf.
func Enrich(f *FlowRecord) *EnrichedFlow {
	e := &EnrichedFlow{FlowRecord: *f}

	durationMs := int64(f.LastMs) - int64(f.FirstMs)
	if durationMs <= 0 {
		return e
	}
	e.DurationMs = durationMs

	durationSec := float64(durationMs) / 1000.0
	bps := float64(f.Bytes) * 8 / durationSec
	e.BPS = round2(bps)
	e.Kbps = round2(bps / 1000.0)
	e.Mbps = round4(bps / 1000000.0)
	e.PPS = round2(float64(f.Packets) / durationSec)
	return e
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
