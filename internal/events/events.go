// Package events delivers domain events (friend requests, accepted
// friendships, promo redemptions) to an external broker.
//
// Publishing is best effort and happens after the originating transaction
// commits: a broker outage is logged by the caller and never undoes a
// committed state change.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retronova/arcade-backend/internal/config"
)

// Event types.
const (
	FriendshipRequested = "friendship.requested"
	FriendshipAccepted  = "friendship.accepted"
	FriendshipDeclined  = "friendship.declined"
	PromoRedeemed       = "promo.redeemed"
)

// Event is the broker payload. Type doubles as the AMQP routing key.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Subject    string         `json:"subject"` // id of the record the event is about
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New builds an Event with a fresh id and the current UTC time.
func New(typ, subject string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Marshal encodes e as JSON.
func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// Publisher sends events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Recorder keeps published events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from Publish after recording.
	Err error
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of the published events in order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// FromConfig connects the publisher selected by cfg.Backend.
func FromConfig(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "amqp":
		return DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	case "redis":
		return DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
