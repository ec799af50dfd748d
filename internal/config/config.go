package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	NetFlow  NetFlowConfig  `koanf:"netflow"`
	BMP      BMPConfig      `koanf:"bmp"`
	Triggers TriggersConfig `koanf:"triggers"`
	Routing  RoutingConfig  `koanf:"routing"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Capture  CaptureConfig  `koanf:"capture"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type NetFlowConfig struct {
	Host               string `koanf:"host"`
	Port               int    `koanf:"port"`
	MaxFlows           int    `koanf:"max_flows"`
	WindowSeconds      int    `koanf:"window_seconds"`
	WindowSweepSeconds int    `koanf:"window_sweep_seconds"`
}

type BMPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type TriggersConfig struct {
	SyncIntervalSeconds      int    `koanf:"sync_interval_seconds"`
	AggregateIntervalSeconds int    `koanf:"aggregate_interval_seconds"`
	CooldownSeconds          int    `koanf:"cooldown_seconds"`
	// Source selects where the synchronizer pulls triggers from:
	// "http" uses the container-manager API, "postgres" reads the
	// topology database directly.
	Source              string `koanf:"source"`
	ContainerManagerURL string `koanf:"container_manager_url"`
	PostgresDSN         string `koanf:"postgres_dsn"`
}

type RoutingConfig struct {
	FlowspecURL    string `koanf:"flowspec_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

type KafkaConfig struct {
	Enabled    bool       `koanf:"enabled"`
	Brokers    []string   `koanf:"brokers"`
	ClientID   string     `koanf:"client_id"`
	FlowTopic  string     `koanf:"flow_topic"`
	EventTopic string     `koanf:"event_topic"`
	TLS        TLSConfig  `koanf:"tls"`
	SASL       SASLConfig `koanf:"sasl"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type CaptureConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file first.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: NETSTREAM_BMP__PORT → bmp.port
	if err := k.Load(env.Provider("NETSTREAM_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "NETSTREAM_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "netstream-1",
			HTTPListen:             ":5002",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		NetFlow: NetFlowConfig{
			Host:               "0.0.0.0",
			Port:               2055,
			MaxFlows:           10000,
			WindowSeconds:      60,
			WindowSweepSeconds: 10,
		},
		BMP: BMPConfig{
			Host: "0.0.0.0",
			Port: 11019,
		},
		Triggers: TriggersConfig{
			SyncIntervalSeconds:      30,
			AggregateIntervalSeconds: 5,
			CooldownSeconds:          60,
			Source:                   "http",
			ContainerManagerURL:      "http://container-manager:5000",
		},
		Routing: RoutingConfig{
			FlowspecURL:    "http://gobgp1:5000/flowspec",
			TimeoutSeconds: 5,
		},
		Kafka: KafkaConfig{
			ClientID:   "netstream",
			FlowTopic:  "netstream.flows",
			EventTopic: "netstream.trigger-events",
		},
		Capture: CaptureConfig{
			Path:     "bmp-capture.bin",
			Compress: true,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Split comma-separated env strings for slice fields.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.NetFlow.Port <= 0 || c.NetFlow.Port > 65535 {
		return fmt.Errorf("config: netflow.port must be 1-65535 (got %d)", c.NetFlow.Port)
	}
	if c.BMP.Port <= 0 || c.BMP.Port > 65535 {
		return fmt.Errorf("config: bmp.port must be 1-65535 (got %d)", c.BMP.Port)
	}
	if c.NetFlow.MaxFlows <= 0 {
		return fmt.Errorf("config: netflow.max_flows must be > 0 (got %d)", c.NetFlow.MaxFlows)
	}
	if c.NetFlow.WindowSeconds <= 0 {
		return fmt.Errorf("config: netflow.window_seconds must be > 0 (got %d)", c.NetFlow.WindowSeconds)
	}
	if c.NetFlow.WindowSweepSeconds <= 0 {
		return fmt.Errorf("config: netflow.window_sweep_seconds must be > 0 (got %d)", c.NetFlow.WindowSweepSeconds)
	}
	if c.Triggers.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("config: triggers.sync_interval_seconds must be > 0 (got %d)", c.Triggers.SyncIntervalSeconds)
	}
	if c.Triggers.AggregateIntervalSeconds <= 0 {
		return fmt.Errorf("config: triggers.aggregate_interval_seconds must be > 0 (got %d)", c.Triggers.AggregateIntervalSeconds)
	}
	if c.Triggers.CooldownSeconds <= 0 {
		return fmt.Errorf("config: triggers.cooldown_seconds must be > 0 (got %d)", c.Triggers.CooldownSeconds)
	}
	switch c.Triggers.Source {
	case "http":
		if c.Triggers.ContainerManagerURL == "" {
			return fmt.Errorf("config: triggers.container_manager_url is required for the http source")
		}
	case "postgres":
		if c.Triggers.PostgresDSN == "" {
			return fmt.Errorf("config: triggers.postgres_dsn is required for the postgres source")
		}
	default:
		return fmt.Errorf("config: triggers.source must be \"http\" or \"postgres\" (got %q)", c.Triggers.Source)
	}
	if c.Routing.FlowspecURL == "" {
		return fmt.Errorf("config: routing.flowspec_url is required")
	}
	if c.Routing.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: routing.timeout_seconds must be > 0 (got %d)", c.Routing.TimeoutSeconds)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers is required when kafka export is enabled")
		}
		if c.Kafka.FlowTopic == "" && c.Kafka.EventTopic == "" {
			return fmt.Errorf("config: kafka export is enabled but no topics are configured")
		}
	}
	if c.Capture.Enabled && c.Capture.Path == "" {
		return fmt.Errorf("config: capture.path is required when capture is enabled")
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
