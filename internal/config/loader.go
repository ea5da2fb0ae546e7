package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file (or a directory containing config.yaml),
// interpolates ${VAR} references, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourceFile = absPath
	return cfg, nil
}

// Parse decodes raw YAML into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds a config file by checking standard locations.
// Priority order: $LOCKSTEP_CONFIG, ./lockstep.yaml, ~/.config/lockstep/config.yaml, /etc/lockstep/config.yaml
func Discover() (string, error) {
	candidates := make([]string, 0, 4)
	if p := os.Getenv("LOCKSTEP_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, "./lockstep.yaml")
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "lockstep", "config.yaml"))
	}
	candidates = append(candidates, "/etc/lockstep/config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: %s)", strings.Join(candidates, ", "))
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = defaults.Lock.Backend
	}
	if cfg.Lock.LeaseDuration == 0 {
		cfg.Lock.LeaseDuration = defaults.Lock.LeaseDuration
	}
	if cfg.Lock.HeartbeatPeriod == 0 {
		cfg.Lock.HeartbeatPeriod = defaults.Lock.HeartbeatPeriod
	}
	if cfg.Lock.Redis.Addr == "" {
		cfg.Lock.Redis.Addr = defaults.Lock.Redis.Addr
	}
	if cfg.Lock.Redis.KeyPrefix == "" {
		cfg.Lock.Redis.KeyPrefix = defaults.Lock.Redis.KeyPrefix
	}
	if cfg.Lock.NATS.URL == "" {
		cfg.Lock.NATS.URL = defaults.Lock.NATS.URL
	}
	if cfg.Lock.NATS.Bucket == "" {
		cfg.Lock.NATS.Bucket = defaults.Lock.NATS.Bucket
	}

	d := &cfg.Dispatch
	if d.Period == 0 {
		d.Period = defaults.Dispatch.Period
	}
	if d.PoolSize == 0 {
		d.PoolSize = defaults.Dispatch.PoolSize
	}
	if d.ShutdownDrain == 0 {
		d.ShutdownDrain = defaults.Dispatch.ShutdownDrain
	}
	if d.ReapPollInterval == 0 {
		d.ReapPollInterval = defaults.Dispatch.ReapPollInterval
	}
	if d.AssignmentRounds == 0 {
		d.AssignmentRounds = defaults.Dispatch.AssignmentRounds
	}

	if cfg.Jobs == nil {
		cfg.Jobs = defaults.Jobs
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Sink.Backend == "" {
		cfg.Sink.Backend = defaults.Sink.Backend
	}
	if cfg.Sink.Topic == "" {
		cfg.Sink.Topic = defaults.Sink.Topic
	}
	if cfg.Sink.BatchSize == 0 {
		cfg.Sink.BatchSize = defaults.Sink.BatchSize
	}
	if cfg.Sink.Kafka.ClientID == "" {
		cfg.Sink.Kafka.ClientID = defaults.Sink.Kafka.ClientID
	}
	if cfg.Sink.NATS.URL == "" {
		cfg.Sink.NATS.URL = defaults.Sink.NATS.URL
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if cfg.Instance.Tokens < 0 {
		return fmt.Errorf("instance.tokens must not be negative (got %d)", cfg.Instance.Tokens)
	}

	switch cfg.Lock.Backend {
	case "memory", "redis", "nats":
	default:
		return fmt.Errorf("lock.backend must be one of: memory, redis, nats (got %q)", cfg.Lock.Backend)
	}
	if cfg.Lock.LeaseDuration <= 0 {
		return fmt.Errorf("lock.lease_duration must be positive")
	}
	if cfg.Lock.HeartbeatPeriod <= 0 || cfg.Lock.HeartbeatPeriod >= cfg.Lock.LeaseDuration {
		return fmt.Errorf("lock.heartbeat_period must be positive and shorter than lock.lease_duration (%s)", cfg.Lock.LeaseDuration)
	}

	d := cfg.Dispatch
	if d.Period <= 0 {
		return fmt.Errorf("dispatch.period must be positive")
	}
	if d.PoolSize <= 0 {
		return fmt.Errorf("dispatch.pool_size must be positive")
	}
	if d.ShutdownDrain < 0 || d.ReapGrace < 0 || d.RoundDelay < 0 {
		return fmt.Errorf("dispatch durations must not be negative")
	}
	if d.ReapPollInterval <= 0 {
		return fmt.Errorf("dispatch.reap_poll_interval must be positive")
	}
	if d.AssignmentRounds < 1 {
		return fmt.Errorf("dispatch.assignment_rounds must be at least 1")
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, name := range cfg.Jobs {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("jobs[%d]: name is empty", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate job %q", i, name)
		}
		seen[name] = true
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	switch cfg.Sink.Backend {
	case "log", "nats":
	case "kafka":
		if len(cfg.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("sink.kafka.brokers is required when sink.backend is kafka")
		}
	default:
		return fmt.Errorf("sink.backend must be one of: log, kafka, nats (got %q)", cfg.Sink.Backend)
	}
	if cfg.Sink.BatchSize <= 0 {
		return fmt.Errorf("sink.batch_size must be positive")
	}

	if cfg.API.Enabled && envVarPattern.MatchString(cfg.API.APIKey) {
		matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
		return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
	}
	return nil
}
