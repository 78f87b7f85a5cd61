package events

import (
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventPositionOpened, func(ev Event) { got <- ev })

	bus.PublishPositionOpened(42, "BTCUSDT", "buy", 2000, 1, 1996, 2008, "g1")

	ev := waitEvent(t, got)
	if ev.Type != EventPositionOpened {
		t.Errorf("type = %s", ev.Type)
	}
	if ev.Data["ticket"] != int64(42) {
		t.Errorf("ticket = %v", ev.Data["ticket"])
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestSubscribeDoesNotReceiveOtherTypes(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventPositionClosed, func(ev Event) { got <- ev })

	bus.PublishDecision("BTCUSDT", "buy", 0.5, 0.8, 0)

	select {
	case ev := <-got:
		t.Fatalf("unexpected event: %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 2)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.PublishRegimeChanged("BTCUSDT", "ranging", "strong_trend", 35, 1.1)
	bus.PublishError("engine", "boom", nil)

	types := map[EventType]bool{}
	types[waitEvent(t, got).Type] = true
	types[waitEvent(t, got).Type] = true
	if !types[EventRegimeChanged] || !types[EventError] {
		t.Errorf("received %v", types)
	}
}

func TestAdjustmentEventCarriesLevels(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventStopTightened, func(ev Event) { got <- ev })

	bus.PublishAdjustment(EventStopTightened, 7, "ETHUSDT", 1990, 1995, "momentum flip")

	ev := waitEvent(t, got)
	if ev.Data["from"] != 1990.0 || ev.Data["to"] != 1995.0 {
		t.Errorf("levels = %v -> %v", ev.Data["from"], ev.Data["to"])
	}
}
