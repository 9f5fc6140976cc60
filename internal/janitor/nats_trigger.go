package janitor

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSTriggerConfig holds the connection details for the event-triggered
// sweep variant. Grounded on messaging.NewNATSClient's URL/subject shape
// (kopexa-grc-common), trimmed to what a fire-and-forget trigger needs: a
// server URL and the subject to subscribe to. Nothing in this repository
// publishes to that subject.
type NATSTriggerConfig struct {
	URL     string
	Subject string
	Logger  *slog.Logger
}

// NATSTrigger runs a Janitor cycle whenever a message arrives on Subject,
// in addition to (or instead of) the ticker loop in loop(). A message
// published by a process outside this one provokes an immediate cycle
// rather than waiting for the next tick.
type NATSTrigger struct {
	conn *nats.Conn
	sub  *nats.Subscription
	jan  *Janitor
	log  *slog.Logger
}

// NewNATSTrigger connects to cfg.URL and subscribes cfg.Subject, invoking
// jan.RunCycle for every message received. The subscription runs until
// Close is called.
func NewNATSTrigger(ctx context.Context, jan *Janitor, cfg NATSTriggerConfig) (*NATSTrigger, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("domain", "janitor", "trigger", "nats")

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}

	t := &NATSTrigger{conn: conn, jan: jan, log: log}
	sub, err := conn.Subscribe(cfg.Subject, func(msg *nats.Msg) {
		log.Info("cycle triggered", "subject", msg.Subject)
		jan.RunCycle(ctx)
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	t.sub = sub
	return t, nil
}

// Close unsubscribes and drains the underlying connection.
func (t *NATSTrigger) Close() error {
	if t.sub != nil {
		if err := t.sub.Unsubscribe(); err != nil {
			t.conn.Close()
			return err
		}
	}
	return t.conn.Drain()
}
