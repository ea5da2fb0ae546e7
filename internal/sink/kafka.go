package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/mattjoyce/lockstep/internal/config"
)

// Kafka publishes each record as one message keyed by its source.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(cfg config.SinkConfig) (*Kafka, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	sc := sarama.NewConfig()
	if cfg.Kafka.ClientID != "" {
		sc.ClientID = cfg.Kafka.ClientID
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	return NewKafkaWithProducer(producer, cfg.Topic), nil
}

// NewKafkaWithProducer wraps an existing producer; the sink owns it after
// the call.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", r.ID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(r.Source),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("record-id"), Value: []byte(strconv.FormatInt(r.ID, 10))},
			},
		})
	}
	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
