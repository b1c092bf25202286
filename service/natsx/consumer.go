package natsx

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Consumer subscribes handlers to subjects, applying the middleware chain.
type Consumer struct {
	c   *Client
	mws []Middleware
}

func NewConsumer(c *Client, mws ...Middleware) *Consumer {
	return &Consumer{c: c, mws: mws}
}

// Subscribe attaches h to subject; a non-empty queue joins a queue group so
// multiple worker processes share the load.
func (cs *Consumer) Subscribe(subject, queue string, h Handler) error {
	h = Chain(h, cs.mws...)
	cb := func(m *nats.Msg) {
		_ = h(context.Background(), Message{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
		})
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = cs.c.nc.Subscribe(subject, cb)
	} else {
		sub, err = cs.c.nc.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	cs.c.track(sub)
	return nil
}
