// Package config loads and validates a node process's YAML configuration,
// the same LoadConfig/ValidateConfig/LogConfig shape the teacher's
// internal/node/config uses (referenced, not retrieved, from
// cmd/node/main.go), rebuilt here against chordmr's own fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chordmr/internal/logger"
)

// Config is the root of the YAML document described in the
// CONFIGURATION section: node identity, ring tuning, job scheduling,
// bootstrap/directory selection, logging, and telemetry.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Ring      RingConfig      `yaml:"ring"`
	Job       JobConfig       `yaml:"job"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Logger    LoggerConfig    `yaml:"logger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type NodeConfig struct {
	Bind string `yaml:"bind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	ID   string `yaml:"id"`
}

type RingConfig struct {
	IDBits                   int      `yaml:"id_bits"`
	SuccessorListSize        int      `yaml:"successor_list_size"`
	ReplicationFactor        int      `yaml:"replication_factor"`
	StabilizeInterval        Duration `yaml:"stabilize_interval"`
	FixFingersInterval       Duration `yaml:"fix_fingers_interval"`
	CheckPredecessorInterval Duration `yaml:"check_predecessor_interval"`
	RequestTimeout           Duration `yaml:"request_timeout"`
}

type JobConfig struct {
	ItemsPerChunk        int      `yaml:"items_per_chunk"`
	MaxTaskTimeout       Duration `yaml:"max_task_timeout"`
	MaxTaskAttempts      int      `yaml:"max_task_attempts"`
	WorkerHealthInterval Duration `yaml:"worker_health_interval"`
	MemoryCapBytes       int64    `yaml:"memory_cap_bytes"`
}

// Duration is time.Duration with YAML (de)serialization through
// time.ParseDuration/String, since yaml.v3 has no native support for Go
// duration strings like "500ms".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type BootstrapConfig struct {
	Mode    string         `yaml:"mode"` // "static" or "route53"
	Peers   []string       `yaml:"peers"`
	Route53 Route53Config  `yaml:"route53"`
}

type Route53Config struct {
	HostedZoneID string `yaml:"hosted_zone_id"`
	DomainSuffix string `yaml:"domain_suffix"`
	Region       string `yaml:"region"`
}

type LoggerConfig struct {
	Active     bool   `yaml:"active"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration's zero-option defaults, matching the
// CONFIGURATION section's documented YAML.
func Default() Config {
	return Config{
		Node: NodeConfig{Bind: "0.0.0.0:4000", Host: "127.0.0.1", Port: 4000},
		Ring: RingConfig{
			IDBits:                   160,
			SuccessorListSize:        8,
			ReplicationFactor:        5,
			StabilizeInterval:        Duration(500 * time.Millisecond),
			FixFingersInterval:       Duration(100 * time.Millisecond),
			CheckPredecessorInterval: Duration(time.Second),
			RequestTimeout:           Duration(500 * time.Millisecond),
		},
		Job: JobConfig{
			ItemsPerChunk:        16,
			MaxTaskTimeout:       Duration(300 * time.Second),
			MaxTaskAttempts:      5,
			WorkerHealthInterval: Duration(2 * time.Second),
			MemoryCapBytes:       1 << 30,
		},
		Bootstrap: BootstrapConfig{
			Mode: "static",
			Route53: Route53Config{
				DomainSuffix: "mapreduce.internal",
				Region:       "us-east-1",
			},
		},
		Logger: LoggerConfig{Active: true, Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 7},
	}
}

// LoadConfig reads and parses the YAML file at path over top of Default,
// so a config file only needs to name the fields it overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateConfig checks the loaded config for internally-consistent
// values before any component is constructed from it.
func (c Config) ValidateConfig() error {
	if c.Node.Port <= 0 {
		return fmt.Errorf("config: node.port must be positive")
	}
	if c.Ring.IDBits <= 0 {
		return fmt.Errorf("config: ring.id_bits must be positive")
	}
	if c.Ring.ReplicationFactor < 1 {
		return fmt.Errorf("config: ring.replication_factor must be >= 1")
	}
	if c.Ring.SuccessorListSize < c.Ring.ReplicationFactor {
		return fmt.Errorf("config: ring.successor_list_size (%d) must be >= ring.replication_factor (%d)",
			c.Ring.SuccessorListSize, c.Ring.ReplicationFactor)
	}
	if c.Job.ItemsPerChunk <= 0 {
		return fmt.Errorf("config: job.items_per_chunk must be positive")
	}
	if c.Job.MaxTaskAttempts <= 0 {
		return fmt.Errorf("config: job.max_task_attempts must be positive")
	}
	switch c.Bootstrap.Mode {
	case "static", "route53":
	default:
		return fmt.Errorf("config: bootstrap.mode must be \"static\" or \"route53\", got %q", c.Bootstrap.Mode)
	}
	if c.Bootstrap.Mode == "route53" && c.Bootstrap.Route53.HostedZoneID == "" {
		return fmt.Errorf("config: bootstrap.route53.hosted_zone_id is required when bootstrap.mode is route53")
	}
	return nil
}

// LogConfig emits the resolved configuration at startup, the third step
// of the teacher's load/validate/log sequence.
func (c Config) LogConfig(lgr logger.Logger) {
	lgr.Info("config: loaded",
		logger.F("bind", c.Node.Bind),
		logger.F("id_bits", c.Ring.IDBits),
		logger.F("replication_factor", c.Ring.ReplicationFactor),
		logger.F("bootstrap_mode", c.Bootstrap.Mode),
		logger.F("items_per_chunk", c.Job.ItemsPerChunk),
		logger.F("max_task_attempts", c.Job.MaxTaskAttempts),
		logger.F("tracing_enabled", c.Telemetry.Tracing.Enabled),
	)
}
