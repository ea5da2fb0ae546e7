package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	saramamocks "github.com/IBM/sarama/mocks"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lockstep/internal/config"
)

func testRecords() []Record {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []Record{
		{ID: 1, Source: "trade", Payload: json.RawMessage(`{"symbol":"ACME","qty":10}`), StagedAt: at},
		{ID: 2, Source: "price", Payload: json.RawMessage(`{"symbol":"ACME","price":12.5}`), StagedAt: at},
	}
}

func TestNewSelectsBackend(t *testing.T) {
	p, err := New(config.SinkConfig{Backend: "log"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "log", p.Name())

	_, err = New(config.SinkConfig{Backend: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	_, err = New(config.SinkConfig{Backend: "kafka"}, nil)
	assert.Error(t, err, "kafka without brokers must fail")
}

func TestLogPublish(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, l.Publish(context.Background(), testRecords()))
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte(`"msg":"record published"`)))
	assert.Contains(t, buf.String(), `"record_id":2`)
}

func TestKafkaPublish(t *testing.T) {
	producer := saramamocks.NewSyncProducer(t, nil)
	for _, r := range testRecords() {
		want := r
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var got Record
			if err := json.Unmarshal(val, &got); err != nil {
				return err
			}
			if got.ID != want.ID || got.Source != want.Source {
				return errors.New("unexpected record")
			}
			return nil
		})
	}

	k := NewKafkaWithProducer(producer, "lockstep.records")
	require.NoError(t, k.Publish(context.Background(), testRecords()))
	require.NoError(t, k.Close())
}

func TestKafkaPublishFailure(t *testing.T) {
	producer := saramamocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	k := NewKafkaWithProducer(producer, "lockstep.records")
	err := k.Publish(context.Background(), testRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka publish")
	_ = k.Close()
}

func TestKafkaPublishEmptyBatch(t *testing.T) {
	producer := saramamocks.NewSyncProducer(t, nil)
	k := NewKafkaWithProducer(producer, "lockstep.records")
	require.NoError(t, k.Publish(context.Background(), nil))
	require.NoError(t, k.Close())
}

func TestNATSPublish(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	t.Cleanup(s.Shutdown)

	conn, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	sub, err := conn.SubscribeSync("lockstep.records")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	n := NewNATS(conn, "lockstep.records")
	require.NoError(t, n.Publish(context.Background(), testRecords()))

	for _, want := range testRecords() {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		var got Record
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, want.ID, got.ID)
		assert.JSONEq(t, string(want.Payload), string(got.Payload))
	}

	require.NoError(t, n.Close())
	assert.False(t, conn.IsClosed(), "borrowed connection stays open")
}

func TestDialNATSOwnsConnection(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	t.Cleanup(s.Shutdown)

	n, err := DialNATS(s.ClientURL(), "lockstep.records")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, n.Publish(ctx, testRecords()))
	require.NoError(t, n.Close())
	assert.True(t, n.conn.IsClosed())
}
