package progress

import (
	"testing"
	"time"
)

type fakeClock struct {
	now     time.Time
	pending []func()
}

func (c *fakeClock) options() Options {
	return Options{
		Now:   func() time.Time { return c.now },
		After: func(d time.Duration, fn func()) { c.pending = append(c.pending, fn) },
	}
}

// fire runs every scheduled garbage collection.
func (c *fakeClock) fire() {
	for _, fn := range c.pending {
		fn()
	}
	c.pending = nil
}

func TestPublishUnknownJobIsInert(t *testing.T) {
	store := NewStore(Options{})
	store.Publish("nope", PhaseImages, "hello", "", "")
	if _, ok := store.Snapshot("nope"); ok {
		t.Fatalf("publish must not create jobs")
	}
}

func TestSubscribeThenPublishDeliversOnce(t *testing.T) {
	store := NewStore(Options{})
	store.Create("job-1", "Pendant symbol")

	var got []Event
	unsubscribe := store.Subscribe("job-1", func(e Event) { got = append(got, e) })
	defer unsubscribe()

	store.Publish("job-1", PhaseImages, "converting", "", "")
	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
	if got[0].Phase != PhaseImages || got[0].Message != "converting" {
		t.Fatalf("event = %+v", got[0])
	}
}

func TestUnsubscribeRemovesExactlyThatCallback(t *testing.T) {
	store := NewStore(Options{})
	store.Create("job-1", "n")

	var a, b int
	unsubA := store.Subscribe("job-1", func(Event) { a++ })
	store.Subscribe("job-1", func(Event) { b++ })

	store.Publish("job-1", PhaseScript, "one", "", "")
	unsubA()
	store.Publish("job-1", PhaseScript, "two", "", "")

	if a != 1 {
		t.Fatalf("a = %d, want 1", a)
	}
	if b != 2 {
		t.Fatalf("b = %d, want 2", b)
	}
}

func TestSubscriberAddedDuringDeliveryMissesCurrentEvent(t *testing.T) {
	store := NewStore(Options{})
	store.Create("job-1", "n")

	var late int
	store.Subscribe("job-1", func(Event) {
		store.Subscribe("job-1", func(Event) { late++ })
	})

	store.Publish("job-1", PhaseImages, "first", "", "")
	if late != 0 {
		t.Fatalf("late subscriber heard the event it was born in")
	}
	store.Publish("job-1", PhaseImages, "second", "", "")
	if late == 0 {
		t.Fatalf("late subscriber missed subsequent events")
	}
}

func TestSubscribeWithReplayMissesNothing(t *testing.T) {
	store := NewStore(Options{After: func(time.Duration, func()) {}})
	store.Create("job-1", "n")
	store.Publish("job-1", PhaseImages, "converting", "", "")

	var live []Event
	history, unsubscribe, ok := store.SubscribeWithReplay("job-1", func(e Event) { live = append(live, e) })
	if !ok {
		t.Fatalf("job missing")
	}
	defer unsubscribe()
	if len(history) != 1 || history[0].Message != "converting" {
		t.Fatalf("history = %+v", history)
	}

	store.Complete("job-1", true, nil, "")
	if len(live) != 1 || live[0].Phase != PhaseComplete {
		t.Fatalf("live delivery = %+v", live)
	}
}

func TestSubscribeWithReplayCarriesTerminalEvent(t *testing.T) {
	// A job completed before anyone registers must surface its terminal
	// event in the replayed history; observers that only register a callback
	// after reading state would otherwise wait forever.
	store := NewStore(Options{After: func(time.Duration, func()) {}})
	store.Create("job-1", "n")
	store.Publish("job-1", PhaseImages, "converting", "", "")
	store.Complete("job-1", true, nil, "")

	history, unsubscribe, ok := store.SubscribeWithReplay("job-1", func(Event) {
		t.Fatalf("terminal job must not deliver live events")
	})
	if !ok {
		t.Fatalf("job missing")
	}
	defer unsubscribe()
	if len(history) != 2 {
		t.Fatalf("history = %+v, want converting plus terminal", history)
	}
	if history[len(history)-1].Phase != PhaseComplete {
		t.Fatalf("terminal event missing from history: %+v", history)
	}
}

func TestSubscribeWithReplayUnknownJob(t *testing.T) {
	store := NewStore(Options{})
	history, unsubscribe, ok := store.SubscribeWithReplay("ghost", func(Event) {
		t.Fatalf("callback on unknown job")
	})
	if ok || history != nil {
		t.Fatalf("unknown job must be inert")
	}
	unsubscribe()
}

func TestSubscribeUnknownJobIsInert(t *testing.T) {
	store := NewStore(Options{})
	unsubscribe := store.Subscribe("ghost", func(Event) { t.Fatalf("callback on unknown job") })
	unsubscribe()
}

func TestCompleteTransitionsAndGarbageCollects(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	store := NewStore(clock.options())
	store.Create("job-1", "n")

	clock.now = clock.now.Add(3 * time.Second)
	store.Complete("job-1", true, &Result{Summary: map[string]string{"urn": "abc"}, Raw: []byte{1, 2}}, "")

	job, ok := store.Snapshot("job-1")
	if !ok {
		t.Fatalf("job must survive until the retention delay fires")
	}
	if job.Status != StatusComplete {
		t.Fatalf("status = %q, want %q", job.Status, StatusComplete)
	}
	last := job.Events[len(job.Events)-1]
	if last.Phase != PhaseComplete {
		t.Fatalf("final phase = %q, want %q", last.Phase, PhaseComplete)
	}
	if last.Elapsed != "3.0s" {
		t.Fatalf("elapsed = %q, want 3.0s", last.Elapsed)
	}
	if job.Result == nil || len(job.Result.Raw) != 2 {
		t.Fatalf("raw payload not retained")
	}

	clock.fire()
	if _, ok := store.Snapshot("job-1"); ok {
		t.Fatalf("job must be unreachable after garbage collection")
	}
}

func TestTerminalJobAcceptsNoFurtherEvents(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewStore(clock.options())
	store.Create("job-1", "n")
	store.Complete("job-1", false, nil, "generator exploded")

	store.Publish("job-1", PhaseImages, "too late", "", "")
	job, _ := store.Snapshot("job-1")
	if len(job.Events) != 1 {
		t.Fatalf("events = %d, want only the terminal event", len(job.Events))
	}
	if job.Status != StatusError {
		t.Fatalf("status = %q, want %q", job.Status, StatusError)
	}

	// Double completion is caller misuse; the store shrugs it off.
	store.Complete("job-1", true, nil, "")
	job, _ = store.Snapshot("job-1")
	if job.Status != StatusError {
		t.Fatalf("terminal status reversed to %q", job.Status)
	}
}

func TestCreateOverwritesExistingJob(t *testing.T) {
	store := NewStore(Options{})
	store.Create("job-1", "old")
	store.Publish("job-1", PhaseImages, "stale", "", "")
	store.Create("job-1", "new")

	job, ok := store.Snapshot("job-1")
	if !ok {
		t.Fatalf("job missing")
	}
	if job.Name != "new" || len(job.Events) != 0 {
		t.Fatalf("create did not reset the job: %+v", job)
	}
}

func TestEventsDeliveredInPublishOrder(t *testing.T) {
	store := NewStore(Options{})
	store.Create("job-1", "n")

	var order []string
	store.Subscribe("job-1", func(e Event) { order = append(order, e.Message) })
	for _, msg := range []string{"a", "b", "c"} {
		store.Publish("job-1", PhaseImages, msg, "", "")
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("delivery order = %v", order)
	}
}
