package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty config takes reference defaults",
			yaml: ``,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Lock.LeaseDuration != 10*time.Second {
					t.Errorf("lease = %s, want 10s", cfg.Lock.LeaseDuration)
				}
				if cfg.Lock.HeartbeatPeriod != 3*time.Second {
					t.Errorf("heartbeat = %s, want 3s", cfg.Lock.HeartbeatPeriod)
				}
				if cfg.Dispatch.Period != 30*time.Second {
					t.Errorf("period = %s, want 30s", cfg.Dispatch.Period)
				}
				if cfg.Dispatch.PoolSize != 20 {
					t.Errorf("pool = %d, want 20", cfg.Dispatch.PoolSize)
				}
				if cfg.Dispatch.ShutdownDrain != 210*time.Second {
					t.Errorf("drain = %s, want 210s", cfg.Dispatch.ShutdownDrain)
				}
				if cfg.EffectiveReapGrace() != 20*time.Second {
					t.Errorf("grace = %s, want 20s", cfg.EffectiveReapGrace())
				}
				if cfg.Dispatch.AssignmentRounds != 3 {
					t.Errorf("rounds = %d, want 3", cfg.Dispatch.AssignmentRounds)
				}
				if len(cfg.Jobs) != 4 || cfg.Jobs[0] != JobMonitoring {
					t.Errorf("jobs = %v", cfg.Jobs)
				}
			},
		},
		{
			name: "explicit values",
			yaml: `
instance:
  owner: node-a
  tokens: 5
lock:
  backend: redis
  lease_duration: 20s
  heartbeat_period: 5s
  redis:
    addr: redis:6379
dispatch:
  period: 1m
  reap_grace: 45s
jobs: [a, b, c]
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Instance.Owner != "node-a" || cfg.Instance.Tokens != 5 {
					t.Errorf("instance = %+v", cfg.Instance)
				}
				if cfg.Lock.Backend != "redis" || cfg.Lock.Redis.Addr != "redis:6379" {
					t.Errorf("lock = %+v", cfg.Lock)
				}
				if cfg.Lock.Redis.KeyPrefix != "lockstep:" {
					t.Errorf("key prefix default not applied: %q", cfg.Lock.Redis.KeyPrefix)
				}
				if cfg.EffectiveReapGrace() != 45*time.Second {
					t.Errorf("grace = %s, want 45s", cfg.EffectiveReapGrace())
				}
				if strings.Join(cfg.Jobs, ",") != "a,b,c" {
					t.Errorf("jobs = %v", cfg.Jobs)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
lock:
  backend: redis
  redis:
    password: ${LOCKSTEP_TEST_REDIS_PASSWORD}
`,
			env: map[string]string{"LOCKSTEP_TEST_REDIS_PASSWORD": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Lock.Redis.Password != "s3cret" {
					t.Errorf("password = %q", cfg.Lock.Redis.Password)
				}
			},
		},
		{
			name:    "heartbeat must be shorter than lease",
			yaml:    "lock:\n  lease_duration: 5s\n  heartbeat_period: 5s\n",
			wantErr: "heartbeat_period",
		},
		{
			name:    "unknown backend",
			yaml:    "lock:\n  backend: zookeeper\n",
			wantErr: "lock.backend",
		},
		{
			name:    "duplicate job",
			yaml:    "jobs: [a, b, a]\n",
			wantErr: "duplicate job",
		},
		{
			name:    "negative tokens",
			yaml:    "instance:\n  tokens: -1\n",
			wantErr: "instance.tokens",
		},
		{
			name:    "kafka sink needs brokers",
			yaml:    "sink:\n  backend: kafka\n",
			wantErr: "sink.kafka.brokers",
		},
		{
			name:    "unresolved api key",
			yaml:    "api:\n  enabled: true\n  api_key: ${LOCKSTEP_TEST_UNSET_KEY}\n",
			wantErr: "LOCKSTEP_TEST_UNSET_KEY",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("instance:\n  tokens: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Instance.Tokens != 3 {
		t.Errorf("tokens = %d, want 3", cfg.Instance.Tokens)
	}
	if cfg.SourceFile != filepath.Join(dir, "config.yaml") {
		t.Errorf("SourceFile = %q", cfg.SourceFile)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestDiscoverUsesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOCKSTEP_CONFIG", path)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != path {
		t.Fatalf("Discover = %q, want %q", got, path)
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := Parse([]byte("jobs: [x, y]\n"))
	b, _ := Parse([]byte("jobs: [y, x]\n"))
	c, _ := Parse([]byte("jobs: [x, y, z]\n"))
	d, _ := Parse([]byte("jobs: [x, y]\nlock:\n  lease_duration: 30s\n"))

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should not depend on job order")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprint should change with the job set")
	}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("fingerprint should change with lease duration")
	}
	if len(a.Fingerprint()) != 32 {
		t.Errorf("fingerprint length = %d, want 32", len(a.Fingerprint()))
	}
}

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h1, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(h1) != 64 {
		t.Fatalf("hash length = %d", len(h1))
	}
	h2, _ := ComputeBlake3Hash(path)
	if h1 != h2 {
		t.Fatal("hash is not stable")
	}
}

func TestWatchReportsFingerprintChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("jobs: [a]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes := make(chan Change, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfg, nil, func(c Change) {
			changes <- c
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("jobs: [a, b]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.OldFingerprint == c.NewFingerprint {
			t.Fatal("expected differing fingerprints")
		}
		if len(c.Config.Jobs) != 2 {
			t.Fatalf("reloaded jobs = %v", c.Config.Jobs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned %v", err)
	}
}
