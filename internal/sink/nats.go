package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NATS publishes records on a core subject and flushes after each batch.
type NATS struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

func DialNATS(url, subject string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("lockstep-sink"))
	if err != nil {
		return nil, fmt.Errorf("nats sink: %w", err)
	}
	return &NATS{conn: conn, subject: subject, owned: true}, nil
}

// NewNATS uses an existing connection; Close leaves it open.
func NewNATS(conn *nats.Conn, subject string) *NATS {
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Publish(ctx context.Context, records []Record) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", r.ID, err)
		}
		if err := n.conn.Publish(n.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
	}
	return n.flush(ctx)
}

func (n *NATS) flush(ctx context.Context) error {
	var err error
	if _, ok := ctx.Deadline(); ok {
		err = n.conn.FlushWithContext(ctx)
	} else {
		err = n.conn.FlushTimeout(flushTimeout)
	}
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	if n.owned {
		n.conn.Close()
	}
	return nil
}
