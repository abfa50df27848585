package service

import (
	"context"
	"testing"
)

func TestBrokerDropsOldestForSlowSubscriber(t *testing.T) {
	b := NewBroker(2)
	ch, cancel := b.Subscribe("u1")
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		b.Publish("u1", sig(id, base))
	}
	first, second := <-ch, <-ch
	if first.ID != "b" || second.ID != "c" {
		t.Fatalf("got %s %s, want b c", first.ID, second.ID)
	}
}

func TestBrokerRoutesByStrategyOwner(t *testing.T) {
	b := NewBroker(4)
	mine, cancelMine := b.Subscribe("u1")
	other, cancelOther := b.Subscribe("u2")
	defer cancelMine()
	defer cancelOther()

	b.Bind("s1", "u1")
	if err := b.Deliver(context.Background(), sig("a", base)); err != nil {
		t.Fatal(err)
	}
	if got := <-mine; got.ID != "a" {
		t.Fatalf("got %s", got.ID)
	}
	select {
	case s := <-other:
		t.Fatalf("u2 received %s", s.ID)
	default:
	}

	b.Unbind("s1")
	_ = b.Deliver(context.Background(), sig("b", base))
	select {
	case s := <-mine:
		t.Fatalf("unbound strategy delivered %s", s.ID)
	default:
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker(1)
	ch, cancel := b.Subscribe("u1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	if n := b.Subscribers("u1"); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}
	b.Publish("u1", sig("a", base))
}
