// Package sink delivers staged records to their downstream destination.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/lockstep/internal/config"
)

// Record is one staged row ready for publishing.
type Record struct {
	ID       int64           `json:"id"`
	Source   string          `json:"source"`
	Payload  json.RawMessage `json:"payload"`
	StagedAt time.Time       `json:"staged_at"`
}

// Publisher sends a batch of records. A nil error means every record in
// the batch was accepted by the destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, records []Record) error
	Close() error
}

// New builds the publisher selected by cfg.Backend.
func New(cfg config.SinkConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLog(logger), nil
	case "kafka":
		return NewKafka(cfg)
	case "nats":
		return DialNATS(cfg.NATS.URL, cfg.Topic)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}

// Log writes records to a logger. It is the default when no broker is
// configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "sink", "sink", "log")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Publish(_ context.Context, records []Record) error {
	for _, r := range records {
		l.logger.Info("record published", "record_id", r.ID, "source", r.Source, "payload", string(r.Payload))
	}
	return nil
}

func (l *Log) Close() error { return nil }
