package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nowshin-108/capstone/internal/notify"
)

// binding describes the queue a consumer reads from.
type binding struct {
	name      string // "" lets the broker name an exclusive queue
	durable   bool
	exclusive bool
	key       string
}

// DeclareExchange declares the durable topic exchange.
func DeclareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
}

// StartRelayConsumer delivers every event on the exchange to the local
// hub.  Each instance gets its own exclusive queue, so every instance sees
// every event.  It reconnects until ctx is cancelled.
func StartRelayConsumer(ctx context.Context, url string, hub notify.Publisher) error {
	b := binding{exclusive: true, key: "bidding.#"}
	return consume(ctx, "relay-consumer", url, b, func(body []byte) error {
		ev, err := Decode(body)
		if err != nil {
			return err
		}
		return hub.Publish(ctx, ev)
	})
}

// StartAuditConsumer appends one line per completed swap to
// dir/seat_swaps.log.  The queue is durable and shared by all instances.
func StartAuditConsumer(ctx context.Context, url, dir string) error {
	b := binding{name: AuditQueueName, durable: true, key: RoutingKey(notify.EventBiddingCompleted)}
	return consume(ctx, "audit-consumer", url, b, func(body []byte) error {
		return handleAudit(dir, body)
	})
}

func consume(ctx context.Context, name, url string, b binding, handle func([]byte) error) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("%s: failed to dial broker: %v; retrying in %s", name, err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, name, conn, b, handle)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("%s: consume loop ended: %v; reconnecting", name, err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, name string, conn *amqp.Connection, b binding, handle func([]byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("%s: set QoS failed: %v", name, err)
	}
	if err := DeclareExchange(ch); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(b.name, b.durable, !b.durable, b.exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, b.key, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", false, b.exclusive, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(d.Body); err != nil {
				log.Printf("%s: handle message failed: %v", name, err)
				_ = d.Nack(false, false) // do not requeue poison messages
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func handleAudit(dir string, body []byte) error {
	ev, err := Decode(body)
	if err != nil {
		return err
	}
	raw, ok := ev.Data.(json.RawMessage)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", ev.Data)
	}
	var done notify.BiddingCompleted
	if err := json.Unmarshal(raw, &done); err != nil {
		return fmt.Errorf("unmarshal %s: %w", ev.Name, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "seat_swaps.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Seat swap completed | flight_id=%s | bidding_id=%s | winner_id=%d | auctioneer_new_seat=%s | bidder_new_seat=%s\n",
		ev.At.UTC().Format(time.RFC3339), ev.FlightID, done.BiddingID, done.WinnerID, done.AuctioneerNewSeat, done.BidderNewSeat)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
