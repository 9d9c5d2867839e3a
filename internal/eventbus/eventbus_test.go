package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := New[string](8)
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := New[int](1)
	ch := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2) // buffer full, dropped
	if v := <-ch; v != 1 {
		t.Fatalf("expected 1 got %v", v)
	}
	select {
	case v := <-ch:
		t.Fatalf("expected empty channel, got %v", v)
	default:
	}
}

func TestBusClose(t *testing.T) {
	bus := New[string](8)
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New[string](8)
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
