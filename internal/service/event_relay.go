// Package service holds the adapters that sit between the bidding engine
// and external infrastructure.
package service

import (
	"context"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nowshin-108/capstone/internal/notify"
	"github.com/nowshin-108/capstone/internal/queue"
)

// EventRelay publishes bidding events to the RabbitMQ topic exchange so
// every server instance can fan them out to its own clients.  When the
// broker cannot be reached the event is handed to the local hub instead,
// so clients of this instance are still served.
type EventRelay struct {
	url    string
	origin string
	local  notify.Publisher

	mu   sync.Mutex // serialises publishes, which keeps per-flight order
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewEventRelay returns a relay for the broker at url.  origin names this
// instance in the envelope.
func NewEventRelay(url, origin string, local notify.Publisher) *EventRelay {
	return &EventRelay{url: url, origin: origin, local: local}
}

// Publish implements notify.Publisher.
func (r *EventRelay) Publish(ctx context.Context, ev notify.Event) error {
	body, err := queue.Encode(ev, r.origin)
	if err != nil {
		return err
	}
	if err := r.publish(ctx, ev.Name, body); err != nil {
		log.Printf("rabbitmq: publish %s failed, delivering locally: %v", ev.Name, err)
		return r.local.Publish(ctx, ev)
	}
	return nil
}

func (r *EventRelay) publish(ctx context.Context, event string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, err := r.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		queue.ExchangeName,
		queue.RoutingKey(event),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		r.reset()
	}
	return err
}

// channel returns the open channel, dialing when there is none.  Caller
// holds r.mu.
func (r *EventRelay) channel() (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}
	r.reset()
	conn, err := amqp.DialConfig(r.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := queue.DeclareExchange(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}
	r.conn, r.ch = conn, ch
	return ch, nil
}

// reset drops the connection.  Caller holds r.mu.
func (r *EventRelay) reset() {
	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// Close closes the broker connection.
func (r *EventRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	return nil
}
