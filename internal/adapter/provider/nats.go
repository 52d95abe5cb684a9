package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// NATSSource receives envelopes published on a NATS subject. With a queue
// group set, replicas share the stream instead of each seeing every message.
type NATSSource struct {
	conn    *nats.Conn
	subject string
	queue   string
	logger  log.Logger
}

func NewNATSSource(conn *nats.Conn, subject, queue string, logger log.Logger) *NATSSource {
	return &NATSSource{conn: conn, subject: subject, queue: queue, logger: logger}
}

func (s *NATSSource) Name() string {
	return "nats:" + s.subject
}

func (s *NATSSource) Listen(ctx context.Context, handler func(ports.Batch)) (func() error, error) {
	cb := func(m *nats.Msg) {
		deliver(ctx, s.logger, "NATSSource", m.Data, handler)
	}

	var sub *nats.Subscription
	var err error
	if s.queue != "" {
		sub, err = s.conn.QueueSubscribe(s.subject, s.queue, cb)
	} else {
		sub, err = s.conn.Subscribe(s.subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}

	return func() error {
		if !sub.IsValid() {
			return nil
		}
		return sub.Unsubscribe()
	}, nil
}

// NATSPublisher relays batches onto a subject as envelopes, one message per
// non-empty half of the batch.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	now     func() time.Time
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, now: time.Now}
}

func (p *NATSPublisher) Publish(b ports.Batch) error {
	if len(b.Alerts) > 0 {
		if err := p.publish(MessageAlert, b.Alerts); err != nil {
			return err
		}
	}
	if len(b.Simulations) > 0 {
		if err := p.publish(MessageThreat, b.Simulations); err != nil {
			return err
		}
	}
	return nil
}

func (p *NATSPublisher) publish(msgType MessageType, data interface{}) error {
	msg, err := EncodeEnvelope(msgType, data, p.now())
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", msgType, p.subject, err)
	}
	return nil
}
