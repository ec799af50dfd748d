package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FlowsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_flows_received_total",
			Help: "Flow records parsed from NetFlow datagrams.",
		},
		[]string{"version", "exporter"},
	)

	DatagramsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_netflow_datagrams_total",
			Help: "NetFlow datagrams received, by export version.",
		},
		[]string{"version"},
	)

	FlowParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_flow_parse_errors_total",
			Help: "NetFlow parse failures by reason.",
		},
		[]string{"reason"},
	)

	TriggerMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_trigger_matches_total",
			Help: "Trigger matches dispatched, by action and evaluation source.",
		},
		[]string{"action", "source"},
	)

	TriggerSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "netstream_trigger_suppressed_total",
			Help: "Trigger matches suppressed by per-flow cooldown.",
		},
	)

	FlowspecPostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_flowspec_posts_total",
			Help: "FlowSpec rule POSTs to the routing daemon, by result.",
		},
		[]string{"result"},
	)

	BMPMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_bmp_messages_total",
			Help: "BMP messages framed, by message type.",
		},
		[]string{"msg_type"},
	)

	BMPParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_bmp_parse_errors_total",
			Help: "BMP/BGP parse failures by stage.",
		},
		[]string{"stage"},
	)

	RouteUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_route_upserts_total",
			Help: "Routes upserted into the route store, by kind.",
		},
		[]string{"kind"},
	)

	WindowEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "netstream_traffic_window_entries",
			Help: "Entries currently retained in the traffic window.",
		},
	)

	FlowsInMemory = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "netstream_flows_in_memory",
			Help: "Flow records currently held in the ring store.",
		},
	)

	TriggerSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_trigger_syncs_total",
			Help: "Trigger synchronizer passes, by result.",
		},
		[]string{"result"},
	)

	KafkaExportedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netstream_kafka_exported_total",
			Help: "Records produced to Kafka, by stream.",
		},
		[]string{"stream"},
	)
)

func Register() {
	prometheus.MustRegister(
		FlowsReceivedTotal,
		DatagramsTotal,
		FlowParseErrorsTotal,
		TriggerMatchesTotal,
		TriggerSuppressedTotal,
		FlowspecPostsTotal,
		BMPMessagesTotal,
		BMPParseErrorsTotal,
		RouteUpsertsTotal,
		WindowEntries,
		FlowsInMemory,
		TriggerSyncsTotal,
		KafkaExportedTotal,
	)
}
