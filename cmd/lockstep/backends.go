package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/mattjoyce/lockstep/internal/config"
	"github.com/mattjoyce/lockstep/internal/doctor"
	"github.com/mattjoyce/lockstep/internal/lease"
)

const probeTimeout = 3 * time.Second

// openLeaseService connects the configured lock backend. The returned close
// func stops the heartbeat and releases the backend connection.
func openLeaseService(ctx context.Context, cfg *config.Config, owner string, logger *slog.Logger) (lease.Service, func() error, error) {
	opts := lease.Options{
		Owner:           owner,
		LeaseDuration:   cfg.Lock.LeaseDuration,
		HeartbeatPeriod: cfg.Lock.HeartbeatPeriod,
		Logger:          logger,
	}

	switch cfg.Lock.Backend {
	case "memory":
		svc, err := lease.NewMemory(lease.NewMemoryStore(nil), opts)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil

	case "redis":
		client := newRedisClient(cfg.Lock.Redis)
		svc, err := lease.NewRedis(client, cfg.Lock.Redis.KeyPrefix, opts)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := svc.Ping(pingCtx); err != nil {
			_ = svc.Close()
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Lock.Redis.Addr, err)
		}
		return svc, func() error { return errors.Join(svc.Close(), client.Close()) }, nil

	case "nats":
		nc, err := nats.Connect(cfg.Lock.NATS.URL, nats.Name("lockstep-"+owner))
		if err != nil {
			return nil, nil, fmt.Errorf("nats %s: %w", cfg.Lock.NATS.URL, err)
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("jetstream: %w", err)
		}
		svc, err := lease.NewNATS(js, cfg.Lock.NATS.Bucket, opts)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return svc, func() error {
			err := svc.Close()
			nc.Close()
			return err
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}

func newRedisClient(rc config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
}

// backendProbes returns connectivity checks for every remote backend the
// config selects.
func backendProbes(cfg *config.Config) []doctor.Probe {
	var probes []doctor.Probe

	switch cfg.Lock.Backend {
	case "redis":
		probes = append(probes, doctor.Probe{
			Name: "lock.redis",
			Run: func(ctx context.Context) error {
				client := newRedisClient(cfg.Lock.Redis)
				defer client.Close()
				return client.Ping(ctx).Err()
			},
		})
	case "nats":
		probes = append(probes, doctor.Probe{
			Name: "lock.nats",
			Run: func(context.Context) error {
				nc, err := nats.Connect(cfg.Lock.NATS.URL, nats.Timeout(probeTimeout))
				if err != nil {
					return err
				}
				defer nc.Close()
				js, err := nc.JetStream()
				if err != nil {
					return err
				}
				_, err = js.AccountInfo()
				return err
			},
		})
	}

	switch cfg.Sink.Backend {
	case "kafka":
		probes = append(probes, doctor.Probe{
			Name: "sink.kafka",
			Run: func(context.Context) error {
				sc := sarama.NewConfig()
				sc.ClientID = cfg.Sink.Kafka.ClientID
				sc.Net.DialTimeout = probeTimeout
				client, err := sarama.NewClient(cfg.Sink.Kafka.Brokers, sc)
				if err != nil {
					return err
				}
				return client.Close()
			},
		})
	case "nats":
		probes = append(probes, doctor.Probe{
			Name: "sink.nats",
			Run: func(context.Context) error {
				nc, err := nats.Connect(cfg.Sink.NATS.URL, nats.Timeout(probeTimeout))
				if err != nil {
					return err
				}
				nc.Close()
				return nil
			},
		})
	}
	return probes
}
