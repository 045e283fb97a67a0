package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/retronova/arcade-backend/internal/config"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	closed        bool
	err           error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

type fakeRedis struct {
	channel string
	payload any
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel, f.payload = channel, message
	return redis.NewIntResult(1, f.err)
}

func (f *fakeRedis) Close() error { return nil }

func TestNew_FillsEnvelope(t *testing.T) {
	e := New(PromoRedeemed, "p1", map[string]any{"amount": 3})
	if e.ID == "" || e.OccurredAt.IsZero() || e.Type != PromoRedeemed || e.Subject != "p1" {
		t.Fatalf("unexpected event: %+v", e)
	}
	b, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["type"] != PromoRedeemed || back["subject"] != "p1" {
		t.Fatalf("unexpected json: %s", b)
	}
}

func TestAMQP_PublishRoutesByType(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQP{ch: ch, exchange: "arcade.events"}
	e := New(FriendshipAccepted, "f1", nil)

	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ch.exchange != "arcade.events" || ch.key != FriendshipAccepted {
		t.Fatalf("routing: exchange=%q key=%q", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.MessageId != e.ID || ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing: %+v", ch.msg)
	}
	var got Event
	if err := json.Unmarshal(ch.msg.Body, &got); err != nil || got.Subject != "f1" {
		t.Fatalf("body: %s (%v)", ch.msg.Body, err)
	}

	ch.err = errors.New("channel closed")
	if err := p.Publish(context.Background(), e); err == nil {
		t.Fatalf("expected broker error to surface")
	}
	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("Close: %v closed=%v", err, ch.closed)
	}
}

func TestRedis_PublishOnChannel(t *testing.T) {
	rc := &fakeRedis{}
	p := &Redis{client: rc, channel: "arcade.events"}

	if err := p.Publish(context.Background(), New(FriendshipRequested, "f1", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rc.channel != "arcade.events" {
		t.Fatalf("channel = %q", rc.channel)
	}
	b, ok := rc.payload.([]byte)
	if !ok {
		t.Fatalf("payload type %T", rc.payload)
	}
	var got Event
	if err := json.Unmarshal(b, &got); err != nil || got.Type != FriendshipRequested {
		t.Fatalf("payload: %s (%v)", b, err)
	}

	rc.err = errors.New("no connection")
	if err := p.Publish(context.Background(), New(FriendshipRequested, "f1", nil)); err == nil {
		t.Fatalf("expected error from redis")
	}
}

func TestRecorder_ConcurrentPublish(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Publish(context.Background(), New(PromoRedeemed, "p", nil))
		}()
	}
	wg.Wait()
	if len(r.Events()) != 20 || len(r.Types()) != 20 {
		t.Fatalf("want 20 events, got %d", len(r.Events()))
	}
}

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(config.EventsConfig{Backend: "none"})
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if _, ok := p.(Nop); !ok {
		t.Fatalf("want Nop, got %T", p)
	}
	if err := p.Publish(context.Background(), Event{}); err != nil || p.Close() != nil {
		t.Fatalf("Nop must swallow everything")
	}
	if _, err := FromConfig(config.EventsConfig{Backend: "kafka"}); err == nil {
		t.Fatalf("unknown backend must fail")
	}
}
