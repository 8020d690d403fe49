// Package queue carries bidding events between server instances over
// RabbitMQ and consumes them: the relay consumer feeds the local
// notification hub and the audit consumer logs completed swaps.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nowshin-108/capstone/internal/notify"
)

// ExchangeName is the topic exchange all bidding events are published to.
const ExchangeName = "bidding.events"

// AuditQueueName is the durable queue of completed swaps.
const AuditQueueName = "bidding.completed.audit"

// RoutingKey returns the routing key of an event name, e.g.
// bidding.new-bid.
func RoutingKey(event string) string { return "bidding." + event }

// Envelope is the message body on the exchange.
type Envelope struct {
	Event    string          `json:"event"`
	FlightID string          `json:"flight_id"`
	Data     json.RawMessage `json:"data"`
	At       time.Time       `json:"at"`
	Origin   string          `json:"origin,omitempty"`
}

// Encode wraps a hub event for the exchange.
func Encode(ev notify.Event, origin string) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Name, err)
	}
	return json.Marshal(Envelope{Event: ev.Name, FlightID: ev.FlightID, Data: data, At: ev.At.UTC(), Origin: origin})
}

// Decode turns a message body back into a hub event.  The payload stays
// raw JSON so it is forwarded to clients unchanged.
func Decode(body []byte) (notify.Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return notify.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if strings.TrimSpace(env.Event) == "" || strings.TrimSpace(env.FlightID) == "" {
		return notify.Event{}, fmt.Errorf("envelope without event or flight")
	}
	return notify.Event{Name: env.Event, FlightID: env.FlightID, Data: env.Data, At: env.At}, nil
}
