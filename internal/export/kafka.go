// Package export produces enriched flows and trigger events to Kafka
// for downstream consumers outside the lab fabric.
package export

import (
	"context"
	"crypto/tls"
	"encoding/json"

	"github.com/netstream-lab/netstream/internal/metrics"
	"github.com/netstream-lab/netstream/internal/netflow"
	"github.com/netstream-lab/netstream/internal/trigger"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// KafkaExporter publishes JSON-encoded flows and trigger events. All
// produces are asynchronous; delivery failures are logged and dropped
// so the ingest path never blocks on the broker.
type KafkaExporter struct {
	client     *kgo.Client
	flowTopic  string
	eventTopic string
	logger     *zap.Logger
}

func NewKafkaExporter(brokers []string, clientID, flowTopic, eventTopic string,
	tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*KafkaExporter, error) {

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &KafkaExporter{
		client:     client,
		flowTopic:  flowTopic,
		eventTopic: eventTopic,
		logger:     logger,
	}, nil
}

// Run consumes the flow and notification streams until both close or
// the context is cancelled.
func (e *KafkaExporter) Run(ctx context.Context, flows <-chan *netflow.EnrichedFlow, events <-chan trigger.Notification) {
	for flows != nil || events != nil {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-flows:
			if !ok {
				flows = nil
				continue
			}
			e.produceFlow(ctx, f)
		case n, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.produceEvent(ctx, n)
		}
	}
}

func (e *KafkaExporter) produceFlow(ctx context.Context, f *netflow.EnrichedFlow) {
	if e.flowTopic == "" {
		return
	}
	value, err := json.Marshal(f)
	if err != nil {
		e.logger.Warn("encoding flow for export", zap.Error(err))
		return
	}
	record := &kgo.Record{
		Topic: e.flowTopic,
		Key:   []byte(f.DstAddr),
		Value: value,
	}
	e.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			e.logger.Warn("flow export produce failed", zap.Error(err))
			return
		}
		metrics.KafkaExportedTotal.WithLabelValues("flows").Inc()
	})
}

func (e *KafkaExporter) produceEvent(ctx context.Context, n trigger.Notification) {
	if e.eventTopic == "" {
		return
	}
	value, err := json.Marshal(n)
	if err != nil {
		e.logger.Warn("encoding trigger event for export", zap.Error(err))
		return
	}
	record := &kgo.Record{
		Topic: e.eventTopic,
		Key:   []byte(n.TriggerName),
		Value: value,
	}
	e.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			e.logger.Warn("trigger event produce failed", zap.Error(err))
			return
		}
		metrics.KafkaExportedTotal.WithLabelValues("events").Inc()
	})
}

// Close flushes pending produces and releases the client.
func (e *KafkaExporter) Close(ctx context.Context) {
	if err := e.client.Flush(ctx); err != nil {
		e.logger.Warn("flushing kafka producer", zap.Error(err))
	}
	e.client.Close()
}
