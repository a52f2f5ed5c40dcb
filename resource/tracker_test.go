package resource

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTracker_Basic(t *testing.T) {
	tracker := NewTracker()

	id := tracker.Created(KindStore, 0x10)
	if id == 0 {
		t.Fatal("Expected non-zero ID")
	}
	if tracker.Live() != 1 {
		t.Fatalf("Expected Live() == 1, got %d", tracker.Live())
	}
	if tracker.LiveKind(KindStore) != 1 {
		t.Fatal("Expected one live store")
	}
	if tracker.LiveKind(KindValue) != 0 {
		t.Fatal("Expected no live values")
	}

	if !tracker.Released(id) {
		t.Fatal("Released failed")
	}
	if tracker.Live() != 0 {
		t.Fatal("Expected Live() == 0 after Released")
	}
}

func TestTracker_DoubleRelease(t *testing.T) {
	tracker := NewTracker()
	id := tracker.Created(KindValue, 0x20)

	if !tracker.Released(id) {
		t.Fatal("first release should succeed")
	}
	if tracker.Released(id) {
		t.Fatal("second release should fail")
	}
	if tracker.Released(0) {
		t.Fatal("ID 0 should never be live")
	}
	if tracker.Released(99) {
		t.Fatal("unknown ID should not be live")
	}
}

func TestTracker_ReusesIDs(t *testing.T) {
	tracker := NewTracker()
	a := tracker.Created(KindValue, 1)
	tracker.Released(a)
	b := tracker.Created(KindValue, 2)
	if a != b {
		t.Fatalf("Expected freed ID %d to be reused, got %d", a, b)
	}
}

func TestTracker_Observer(t *testing.T) {
	tracker := NewTracker()
	obs := &testObserver{}
	tracker.Subscribe(obs)

	id := tracker.Created(KindContext, 0x30)
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated {
		t.Fatal("Expected EventCreated")
	}
	if obs.events[0].ID != id || obs.events[0].Ptr != 0x30 {
		t.Fatal("Wrong ID or pointer in event")
	}

	tracker.Released(id)
	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[1].Type != EventReleased || obs.events[1].Kind != KindContext {
		t.Fatal("Expected EventReleased for the context")
	}

	tracker.Unsubscribe(obs)
	tracker.Created(KindStore, 0x40)
	if len(obs.events) != 2 {
		t.Fatal("Unsubscribed observer should not receive events")
	}
}

func TestTracker_UnsubscribeObserverFunc(t *testing.T) {
	tracker := NewTracker()
	var got []Event
	fn := ObserverFunc(func(e Event) { got = append(got, e) })
	other := &testObserver{}
	tracker.Subscribe(fn)
	tracker.Subscribe(other)

	tracker.Unsubscribe(ObserverFunc(func(Event) {}))
	tracker.Unsubscribe(fn)
	tracker.Unsubscribe(other)

	tracker.Created(KindValue, 0x50)
	if len(got) != 1 {
		t.Fatalf("ObserverFunc got %d events, want 1", len(got))
	}
	if len(other.events) != 0 {
		t.Fatal("Unsubscribed observer should not receive events")
	}
}

func TestRecorder_Order(t *testing.T) {
	tracker := NewTracker()
	rec := &Recorder{}
	tracker.Subscribe(rec)

	ctx := tracker.Created(KindContext, 1)
	store := tracker.Created(KindStore, 2)
	state := tracker.Created(KindState, 3)
	value := tracker.Created(KindValue, 4)
	for _, id := range []ID{value, state, store, ctx} {
		tracker.Released(id)
	}

	want := []Kind{KindValue, KindState, KindStore, KindContext}
	got := rec.Released()
	if len(got) != len(want) {
		t.Fatalf("Released() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Released() = %v, want %v", got, want)
		}
	}

	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatal("Reset should drop events")
	}
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsObserver("nix_runtime", reg)
	if err != nil {
		t.Fatalf("NewMetricsObserver: %v", err)
	}

	tracker := NewTracker()
	tracker.Subscribe(m)

	a := tracker.Created(KindValue, 1)
	tracker.Created(KindValue, 2)
	tracker.Released(a)

	if got := testutil.ToFloat64(m.Live().WithLabelValues("value")); got != 1 {
		t.Errorf("live values = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CreatedTotal().WithLabelValues("value")); got != 2 {
		t.Errorf("created values = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReleasedTotal().WithLabelValues("value")); got != 1 {
		t.Errorf("released values = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Live().WithLabelValues("context")); got != 0 {
		t.Errorf("live contexts = %v, want 0", got)
	}

	// one series per kind
	if n := testutil.CollectAndCount(m.Live()); n != 4 {
		t.Errorf("live series = %d, want 4", n)
	}
}

func TestMetricsObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetricsObserver("dup", reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMetricsObserver("dup", reg); err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}
}
