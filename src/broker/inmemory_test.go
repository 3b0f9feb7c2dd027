package broker

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishSubscribe(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, "events", "g1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish(ctx, "events", "42", []byte(`{"pipeline_id":42}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Topic != "events" || msg.Key != "42" {
			t.Errorf("message = %+v", msg)
		}
		if string(msg.Value) != `{"pipeline_id":42}` {
			t.Errorf("value = %q", msg.Value)
		}
		if msg.Offset != 0 {
			t.Errorf("offset = %d, want 0", msg.Offset)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestInMemoryFanOut(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx, "events", "g1")
	ch2, _ := b.Subscribe(ctx, "events", "g2")

	if err := b.Publish(ctx, "events", "", []byte("payload")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for i, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			if string(msg.Value) != "payload" {
				t.Errorf("subscriber %d value = %q", i, msg.Value)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got no message", i)
		}
	}
}

func TestInMemoryTopicsAreIndependent(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	events, _ := b.Subscribe(ctx, "events", "g1")
	if err := b.Publish(ctx, "outcomes", "", []byte("other topic")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-events:
		t.Errorf("unexpected message on events: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemoryOffsetsIncrement(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	ch, _ := b.Subscribe(ctx, "events", "g1")
	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, "events", "", []byte("m")); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	for want := int64(0); want < 3; want++ {
		select {
		case msg := <-ch:
			if msg.Offset != want {
				t.Errorf("offset = %d, want %d", msg.Offset, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing message %d", want)
		}
	}
}

func TestInMemoryCloseEndsSubscribers(t *testing.T) {
	b := NewInMemoryBroker()
	ctx := context.Background()

	ch, _ := b.Subscribe(ctx, "events", "g1")
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	if err := b.Publish(ctx, "events", "", []byte("m")); err == nil {
		t.Error("Publish() after Close() expected error")
	}
}

func TestInMemorySubscribeContextCancel(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "events", "g1")
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}
