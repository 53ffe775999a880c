// Package stream is a thin JSON layer over NATS. The processor and
// notifier consume batches from subjects; the writer publishes events
// back onto them.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher publishes JSON-encoded events.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps a NATS connection.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish marshals v and publishes it on subject.
func (p *Publisher) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscription buffers messages from one subject for batch consumption.
type Subscription struct {
	sub *nats.Subscription
	ch  chan *nats.Msg
}

// Subscribe opens a buffered subscription on subject. Queue joins a
// NATS queue group so multiple instances share the work; empty queue
// means every instance sees every message.
func Subscribe(nc *nats.Conn, subject, queue string, buffer int) (*Subscription, error) {
	ch := make(chan *nats.Msg, buffer)
	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = nc.ChanQueueSubscribe(subject, queue, ch)
	} else {
		sub, err = nc.ChanSubscribe(subject, ch)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &Subscription{sub: sub, ch: ch}, nil
}

// NextBatch blocks until at least one message arrives, then keeps
// collecting until max messages are buffered or wait elapses. It
// returns nil when ctx is done before any message arrives.
func (s *Subscription) NextBatch(ctx context.Context, max int, wait time.Duration) ([][]byte, error) {
	var batch [][]byte
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		batch = append(batch, msg.Data)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for len(batch) < max {
		select {
		case <-ctx.Done():
			return batch, nil
		case <-timer.C:
			return batch, nil
		case msg := <-s.ch:
			batch = append(batch, msg.Data)
		}
	}
	return batch, nil
}

// Close unsubscribes.
func (s *Subscription) Close() error {
	return s.sub.Unsubscribe()
}
