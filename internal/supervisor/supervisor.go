// Package supervisor owns component wiring and lifecycle: collectors,
// evaluators, the synchronizer, and the control-plane server all start
// and stop here.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netstream-lab/netstream/internal/api"
	"github.com/netstream-lab/netstream/internal/bmp"
	"github.com/netstream-lab/netstream/internal/capture"
	"github.com/netstream-lab/netstream/internal/config"
	"github.com/netstream-lab/netstream/internal/export"
	"github.com/netstream-lab/netstream/internal/flow"
	"github.com/netstream-lab/netstream/internal/flowspec"
	"github.com/netstream-lab/netstream/internal/netflow"
	"github.com/netstream-lab/netstream/internal/routes"
	"github.com/netstream-lab/netstream/internal/syncer"
	"github.com/netstream-lab/netstream/internal/trigger"
	"go.uber.org/zap"
)

// Supervisor wires the pipeline and owns every background task.
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger

	netflowServer *netflow.Server
	bmpServer     *bmp.Server
	apiServer     *api.Server
	captureWriter *capture.Writer
	exporter      *export.KafkaExporter
	pgSource      *syncer.PostgresSource

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, logger *zap.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, logger: logger}
}

// Start builds the component graph, binds the sockets, and launches the
// background tasks. It returns an error when a socket fails to bind or
// when an enabled optional component (capture file, Postgres trigger
// source, Kafka exporter) cannot be set up.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	cfg := s.cfg

	// Shared state.
	flowStore := flow.NewStore(cfg.NetFlow.MaxFlows)
	window := flow.NewWindow(cfg.NetFlow.WindowSeconds, cfg.NetFlow.MaxFlows, s.logger.Named("window"))
	broadcaster := flow.NewBroadcaster(s.logger.Named("flow.broadcast"))
	notifier := trigger.NewNotifier(s.logger.Named("notify"))
	triggerStore := trigger.NewStore(cfg.Triggers.CooldownSeconds, s.logger.Named("triggers"))
	routeStore := routes.NewStore()

	// Mitigation path.
	fsClient := flowspec.NewClient(cfg.Routing.FlowspecURL,
		time.Duration(cfg.Routing.TimeoutSeconds)*time.Second, s.logger.Named("flowspec"))
	dispatcher := trigger.NewDispatcher(fsClient, notifier, cfg.Triggers.CooldownSeconds, s.logger.Named("dispatch"))
	evaluator := trigger.NewEvaluator(triggerStore, dispatcher, s.logger.Named("eval"))

	// NetFlow ingest: parse, enrich, then fan out. The handler runs on
	// the single UDP reader goroutine, so a flow's journey through the
	// stores and the per-flow evaluator is totally ordered.
	parser := netflow.NewParser(s.logger.Named("netflow.parse"))
	handler := func(record *netflow.FlowRecord) {
		enriched := netflow.Enrich(record)
		flowStore.Add(enriched)
		window.Add(enriched)
		broadcaster.Publish(enriched)
		evaluator.EvaluateFlow(enriched)
	}
	s.netflowServer = netflow.NewServer(cfg.NetFlow.Host, cfg.NetFlow.Port, parser, handler, s.logger.Named("netflow"))
	if err := s.netflowServer.Listen(); err != nil {
		return err
	}

	// BMP collector.
	var sink bmp.FrameSink
	if cfg.Capture.Enabled {
		cw, err := capture.NewWriter(cfg.Capture.Path, cfg.Capture.Compress, s.logger.Named("capture"))
		if err != nil {
			return err
		}
		s.captureWriter = cw
		sink = cw
	}
	bmpHandler := bmp.NewHandler(routeStore, s.logger.Named("bmp"))
	s.bmpServer = bmp.NewServer(cfg.BMP.Host, cfg.BMP.Port, bmpHandler, sink, s.logger.Named("bmp"))
	if err := s.bmpServer.Listen(); err != nil {
		return err
	}

	// Trigger synchronizer.
	source, err := s.buildTriggerSource(ctx)
	if err != nil {
		return err
	}
	triggerSync := syncer.New(source, triggerStore,
		time.Duration(cfg.Triggers.SyncIntervalSeconds)*time.Second, s.logger.Named("syncer"))

	// Aggregate evaluator.
	aggregate := trigger.NewAggregateEvaluator(triggerStore, window, dispatcher,
		time.Duration(cfg.Triggers.AggregateIntervalSeconds)*time.Second, s.logger.Named("eval.aggregate"))

	// Optional Kafka export.
	if cfg.Kafka.Enabled {
		tlsCfg, err := cfg.Kafka.BuildTLSConfig()
		if err != nil {
			return fmt.Errorf("building kafka TLS config: %w", err)
		}
		exporter, err := export.NewKafkaExporter(cfg.Kafka.Brokers, cfg.Kafka.ClientID,
			cfg.Kafka.FlowTopic, cfg.Kafka.EventTopic, tlsCfg, cfg.Kafka.BuildSASLMechanism(),
			s.logger.Named("export"))
		if err != nil {
			return fmt.Errorf("creating kafka exporter: %w", err)
		}
		s.exporter = exporter

		flowCh := broadcaster.Subscribe(1024)
		eventCh := notifier.Subscribe(256)
		s.spawn(func() { exporter.Run(ctx, flowCh, eventCh) })
	}

	// Control plane.
	s.apiServer = api.NewServer(cfg.Service.HTTPListen, api.Deps{
		Flows:         flowStore,
		Window:        window,
		WindowSeconds: cfg.NetFlow.WindowSeconds,
		Broadcaster:   broadcaster,
		Triggers:      triggerStore,
		Dispatcher:    dispatcher,
		Notifier:      notifier,
		Routes:        routeStore,
		SyncNow:       func() { triggerSync.SyncOnce(context.Background()) },
	}, s.logger.Named("api"))
	if err := s.apiServer.Start(); err != nil {
		return err
	}

	// Background tasks.
	s.spawn(func() { s.netflowServer.Run(ctx) })
	s.spawn(func() { s.bmpServer.Run(ctx) })
	s.spawn(func() { triggerSync.Run(ctx) })
	s.spawn(func() { aggregate.Run(ctx) })
	s.spawn(func() {
		window.RunSweeper(ctx, time.Duration(cfg.NetFlow.WindowSweepSeconds)*time.Second)
	})

	s.logger.Info("all collectors and evaluators started",
		zap.Int("netflow_port", cfg.NetFlow.Port),
		zap.Int("bmp_port", cfg.BMP.Port),
		zap.String("api_listen", cfg.Service.HTTPListen),
	)
	return nil
}

func (s *Supervisor) buildTriggerSource(ctx context.Context) (syncer.Source, error) {
	switch s.cfg.Triggers.Source {
	case "postgres":
		src, err := syncer.NewPostgresSource(ctx, s.cfg.Triggers.PostgresDSN, s.logger.Named("syncer.pg"))
		if err != nil {
			return nil, err
		}
		s.pgSource = src
		return src, nil
	default:
		return syncer.NewHTTPSource(s.cfg.Triggers.ContainerManagerURL, 5*time.Second, s.logger.Named("syncer.http")), nil
	}
}

func (s *Supervisor) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Stop shuts the control plane first, cancels every task, then waits
// for the workers to drain within the shutdown context.
func (s *Supervisor) Stop(shutdownCtx context.Context) {
	if s.apiServer != nil {
		if err := s.apiServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("API server shutdown error", zap.Error(err))
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all tasks stopped gracefully")
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timeout reached, some tasks may not have finished")
	}

	if s.exporter != nil {
		s.exporter.Close(shutdownCtx)
	}
	if s.captureWriter != nil {
		if err := s.captureWriter.Close(); err != nil {
			s.logger.Warn("closing capture file", zap.Error(err))
		}
	}
	if s.pgSource != nil {
		s.pgSource.Close()
	}
}
