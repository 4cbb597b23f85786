package events

import "testing"

func TestSubscribeAndEmitDeliversToAllHandlers(t *testing.T) {
	e := NewEmitter()
	var gotA, gotB Event
	e.Subscribe(EventInserted, func(ev Event) { gotA = ev })
	e.Subscribe(EventInserted, func(ev Event) { gotB = ev })

	e.Emit(Event{Type: EventInserted, EventID: "evt1", Round: 3})

	if gotA.EventID != "evt1" || gotB.EventID != "evt1" {
		t.Errorf("expected both subscribers to receive evt1, got %+v and %+v", gotA, gotB)
	}
}

func TestEmitOnlyNotifiesMatchingType(t *testing.T) {
	e := NewEmitter()
	called := false
	e.Subscribe(EventRoundDecided, func(ev Event) { called = true })

	e.Emit(Event{Type: EventFameDecided, EventID: "evt1"})

	if called {
		t.Error("handler for a different event type should not have been invoked")
	}
}

func TestEmitWithNoSubscribersIsANoOp(t *testing.T) {
	e := NewEmitter()
	e.Emit(Event{Type: EventLedgerApplied})
}

func TestEmitRecoversFromPanickingHandler(t *testing.T) {
	e := NewEmitter()
	secondCalled := false
	e.Subscribe(EventInserted, func(ev Event) { panic("boom") })
	e.Subscribe(EventInserted, func(ev Event) { secondCalled = true })

	e.Emit(Event{Type: EventInserted})

	if !secondCalled {
		t.Error("a panicking handler should not prevent later subscribers from running")
	}
}
