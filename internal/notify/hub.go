package notify

import (
	"context"
	"log"
	"sync"
)

// Hub keeps one room per flight and delivers each event to the room of
// its flight only.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscriber]struct{})}
}

// Subscriber is one connected client.  A subscriber may follow several
// flights; all of their events arrive on the same channel in publish order.
type Subscriber struct {
	hub     *Hub
	ch      chan Event
	flights map[string]struct{} // guarded by hub.mu
	closed  bool                // guarded by hub.mu
}

// NewSubscriber registers a client with a delivery buffer of the given
// size.  Events that do not fit are dropped for that client.
func (h *Hub) NewSubscriber(buffer int) *Subscriber {
	if buffer < 1 {
		buffer = 1
	}
	return &Subscriber{hub: h, ch: make(chan Event, buffer), flights: make(map[string]struct{})}
}

// Events returns the delivery channel.  It is closed by Close.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Join adds the subscriber to a flight's room.
func (s *Subscriber) Join(flightID string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	room, ok := h.rooms[flightID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[flightID] = room
	}
	room[s] = struct{}{}
	s.flights[flightID] = struct{}{}
}

// Leave removes the subscriber from a flight's room.
func (s *Subscriber) Leave(flightID string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, flightID)
}

// Close leaves every room and closes the delivery channel.
func (s *Subscriber) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for flightID := range s.flights {
		h.leaveLocked(s, flightID)
	}
	s.closed = true
	close(s.ch)
}

func (h *Hub) leaveLocked(s *Subscriber, flightID string) {
	delete(s.flights, flightID)
	room, ok := h.rooms[flightID]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(h.rooms, flightID)
	}
}

// Publish delivers ev to every subscriber of ev.FlightID without blocking.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[ev.FlightID] {
		select {
		case s.ch <- ev:
		default:
			log.Printf("notify: dropped %s for a slow subscriber on flight %s", ev.Name, ev.FlightID)
		}
	}
	return nil
}

// Subscribers returns how many clients follow a flight.
func (h *Hub) Subscribers(flightID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[flightID])
}
