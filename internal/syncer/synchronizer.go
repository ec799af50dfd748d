package syncer

import (
	"context"
	"time"

	"github.com/netstream-lab/netstream/internal/metrics"
	"github.com/netstream-lab/netstream/internal/trigger"
	"go.uber.org/zap"
)

// Synchronizer periodically replaces the trigger store from the source
// of truth. Fetch failures log and leave the in-memory set untouched.
type Synchronizer struct {
	source   Source
	store    *trigger.Store
	interval time.Duration
	logger   *zap.Logger
}

func New(source Source, store *trigger.Store, interval time.Duration, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run syncs once at startup and then on every tick until cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("trigger synchronizer started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("trigger synchronizer stopped")
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce performs one reconciliation pass. The store is only swapped
// when the remote ID set differs, so back-to-back passes with identical
// remote state are no-ops.
func (s *Synchronizer) SyncOnce(ctx context.Context) {
	rows, err := s.source.Fetch(ctx)
	if err != nil {
		metrics.TriggerSyncsTotal.WithLabelValues("error").Inc()
		s.logger.Debug("trigger sync failed, keeping current set", zap.Error(err))
		return
	}
	if rows == nil {
		metrics.TriggerSyncsTotal.WithLabelValues("no_topology").Inc()
		return
	}

	triggers := make([]*trigger.Trigger, 0, len(rows))
	for _, r := range rows {
		triggers = append(triggers, Translate(r))
	}

	if s.store.ReplaceIfChanged(triggers) {
		metrics.TriggerSyncsTotal.WithLabelValues("replaced").Inc()
		s.logger.Info("synced triggers from topology database", zap.Int("count", len(triggers)))
	} else {
		metrics.TriggerSyncsTotal.WithLabelValues("unchanged").Inc()
	}
}
