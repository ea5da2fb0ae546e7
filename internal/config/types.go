package config

import "time"

// Reference job set shipped with the service.
const (
	JobMonitoring = "monitoring-job"
	JobPublisher  = "publisher-job"
	JobTrade      = "trade-job"
	JobPrice      = "price-job"
)

// Config represents the complete lockstep configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Instance InstanceConfig `yaml:"instance"`
	Lock     LockConfig     `yaml:"lock"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Jobs     []string       `yaml:"jobs"`
	State    StateConfig    `yaml:"state"`
	Sink     SinkConfig     `yaml:"sink"`
	API      APIConfig      `yaml:"api,omitempty"`
	Tracing  TracingConfig  `yaml:"tracing,omitempty"`

	// SourceFile is the absolute path the config was loaded from.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// InstanceConfig describes this process within the fleet.
type InstanceConfig struct {
	// Owner overrides the generated <hostname>-<uuid> identity. It must be
	// unique per running process.
	Owner string `yaml:"owner"`
	// Tokens is the number of job locks this instance tries to hold.
	Tokens int `yaml:"tokens"`
}

// LockConfig configures the lease service.
type LockConfig struct {
	Backend         string        `yaml:"backend"`
	LeaseDuration   time.Duration `yaml:"lease_duration"`
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
	Redis           RedisConfig   `yaml:"redis"`
	NATS            NATSConfig    `yaml:"nats"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type NATSConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// DispatchConfig tunes assignment, periodic dispatch and reaping.
type DispatchConfig struct {
	Period           time.Duration `yaml:"period"`
	PoolSize         int           `yaml:"pool_size"`
	ShutdownDrain    time.Duration `yaml:"shutdown_drain"`
	ReapPollInterval time.Duration `yaml:"reap_poll_interval"`
	// ReapGrace defaults to twice the lease duration.
	ReapGrace        time.Duration `yaml:"reap_grace"`
	AssignmentRounds int           `yaml:"assignment_rounds"`
	RoundDelay       time.Duration `yaml:"round_delay"`
}

// StateConfig defines the shared execution store.
type StateConfig struct {
	Path string `yaml:"path"`
}

// SinkConfig selects where publisher-job sends staged records.
type SinkConfig struct {
	Backend   string     `yaml:"backend"`
	Topic     string     `yaml:"topic"`
	BatchSize int        `yaml:"batch_size"`
	Kafka     KafkaSink  `yaml:"kafka"`
	NATS      NATSConfig `yaml:"nats"`
}

type KafkaSink struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"client_id"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	Pretty  bool `yaml:"pretty"`
}

// Defaults returns a configuration with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "lockstep",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Instance: InstanceConfig{
			Tokens: 2,
		},
		Lock: LockConfig{
			Backend:         "memory",
			LeaseDuration:   10 * time.Second,
			HeartbeatPeriod: 3 * time.Second,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "lockstep:",
			},
			NATS: NATSConfig{
				URL:    "nats://127.0.0.1:4222",
				Bucket: "lockstep_leases",
			},
		},
		Dispatch: DispatchConfig{
			Period:           30 * time.Second,
			PoolSize:         20,
			ShutdownDrain:    210 * time.Second,
			ReapPollInterval: 2 * time.Second,
			AssignmentRounds: 3,
		},
		Jobs: []string{JobMonitoring, JobPublisher, JobTrade, JobPrice},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Sink: SinkConfig{
			Backend:   "log",
			Topic:     "lockstep.records",
			BatchSize: 10,
			Kafka: KafkaSink{
				ClientID: "lockstep",
			},
			NATS: NATSConfig{
				URL: "nats://127.0.0.1:4222",
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}

// EffectiveReapGrace is the reaper's grace period after defaults.
func (c *Config) EffectiveReapGrace() time.Duration {
	if c.Dispatch.ReapGrace > 0 {
		return c.Dispatch.ReapGrace
	}
	return 2 * c.Lock.LeaseDuration
}
