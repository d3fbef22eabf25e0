// Package progress tracks long-running generation jobs and broadcasts their
// events to live observers. The store is process-local: a job and its
// streaming observers must be served by the same process instance.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lumenworks/internal/infra"
)

// Phase tags the stage of the pipeline an event belongs to.
type Phase string

const (
	PhaseImages   Phase = "images"
	PhaseScript   Phase = "script"
	PhaseAPS      Phase = "aps"
	PhaseDrive    Phase = "drive"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
	PhaseLLM      Phase = "llm"
)

// Status enumerates the job lifecycle. Transitions only ever run forward:
// running to complete, or running to error.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Completed jobs linger this long for late observers before being dropped.
const defaultRetention = 5 * time.Minute

// Result separates the JSON-serializable summary from the bulk payload so
// the summary can travel over the event stream without the binary.
type Result struct {
	Summary  any    `json:"summary,omitempty"`
	Filename string `json:"filename,omitempty"`
	Raw      []byte `json:"-"`
}

// Event is one append-only entry in a job's history.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Elapsed   string    `json:"elapsed"`
	Phase     Phase     `json:"phase"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Result    *Result   `json:"result,omitempty"`
}

// Job is the tracked state of one generation run.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Events    []Event   `json:"events"`
	Result    *Result   `json:"result,omitempty"`
}

type subscriber struct {
	id int
	fn func(Event)
}

type jobState struct {
	job         Job
	subscribers []subscriber
	nextSubID   int
}

// Options configures a Store. Now and After exist so tests can drive the
// clock and the garbage-collection timer.
type Options struct {
	Logger    *infra.Logger
	Retention time.Duration
	Now       func() time.Time
	After     func(time.Duration, func())
}

// Store is the process-wide job registry. Constructed once at startup and
// handed to every request handler; all access goes through its methods,
// each of which completes one logical update under the store lock.
type Store struct {
	mu        sync.Mutex
	jobs      map[string]*jobState
	logger    *infra.Logger
	retention time.Duration
	now       func() time.Time
	after     func(time.Duration, func())
}

// NewStore constructs a store with sane defaults and injected dependencies.
func NewStore(opts Options) *Store {
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	after := opts.After
	if after == nil {
		after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Store{
		jobs:      make(map[string]*jobState),
		logger:    logger,
		retention: retention,
		now:       now,
		after:     after,
	}
}

// Create registers a fresh job under id, replacing any existing entry.
// Callers are responsible for id uniqueness.
func (s *Store) Create(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &jobState{job: Job{
		ID:        id,
		Name:      name,
		Status:    StatusRunning,
		StartedAt: s.now(),
	}}
	s.logger.Info().Str("job_id", id).Str("name", name).Msg("progress: job created")
}

// Publish appends an event and delivers it to every currently-registered
// subscriber in registration order. Unknown or already-terminal jobs make
// this a no-op, so publishers racing garbage collection stay harmless.
// Delivery runs outside the store lock: cross-event ordering is only
// guaranteed while a job has a single publishing goroutine, which is how the
// pipeline drives it.
func (s *Store) Publish(id string, phase Phase, message, detail, step string) {
	s.mu.Lock()
	state, ok := s.jobs[id]
	if !ok || state.job.Status != StatusRunning {
		s.mu.Unlock()
		return
	}
	event := s.appendEvent(state, phase, message, detail, step, nil)
	subs := snapshotSubscribers(state)
	s.mu.Unlock()

	s.logger.Debug().
		Str("job_id", id).
		Str("phase", string(phase)).
		Str("message", message).
		Msg("progress: event published")
	deliver(subs, event)
}

// Complete transitions the job to its terminal status, appends the final
// event carrying the result summary, and schedules deletion after the
// retention delay. Completing an unknown or already-terminal job is a no-op.
func (s *Store) Complete(id string, success bool, result *Result, detail string) {
	s.mu.Lock()
	state, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if state.job.Status != StatusRunning {
		s.mu.Unlock()
		s.logger.Warn().Str("job_id", id).Msg("progress: complete called on terminal job")
		return
	}

	phase := PhaseComplete
	message := "generation complete"
	state.job.Status = StatusComplete
	if !success {
		phase = PhaseError
		message = "generation failed"
		state.job.Status = StatusError
	}
	state.job.Result = result
	event := s.appendEvent(state, phase, message, detail, "", result)
	subs := snapshotSubscribers(state)
	s.mu.Unlock()

	s.logger.Info().Str("job_id", id).Bool("success", success).Msg("progress: job completed")
	deliver(subs, event)

	s.after(s.retention, func() {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
		s.logger.Debug().Str("job_id", id).Msg("progress: job garbage collected")
	})
}

// Subscribe registers a callback for future events on a job and returns a
// function removing exactly that callback. Subscribing to an unknown job is
// inert; late subscribers should read Snapshot for replay instead.
func (s *Store) Subscribe(id string, fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok {
		return func() {}
	}
	return s.registerLocked(state, id, fn)
}

// SubscribeWithReplay registers a callback and returns the job's accumulated
// history under the same lock acquisition, so no event can slip between the
// replayed history and the first live delivery. ok is false for unknown jobs.
func (s *Store) SubscribeWithReplay(id string, fn func(Event)) ([]Event, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok {
		return nil, func() {}, false
	}
	history := make([]Event, len(state.job.Events))
	copy(history, state.job.Events)
	return history, s.registerLocked(state, id, fn), true
}

// registerLocked must be called with the store lock held. The returned
// closure removes exactly the subscriber it registered.
func (s *Store) registerLocked(state *jobState, id string, fn func(Event)) func() {
	subID := state.nextSubID
	state.nextSubID++
	state.subscribers = append(state.subscribers, subscriber{id: subID, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		current, ok := s.jobs[id]
		if !ok {
			return
		}
		for i, sub := range current.subscribers {
			if sub.id == subID {
				current.subscribers = append(current.subscribers[:i], current.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the job with its accumulated event log, for
// replay to late-connecting observers and for the download endpoint.
func (s *Store) Snapshot(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	job := state.job
	job.Events = make([]Event, len(state.job.Events))
	copy(job.Events, state.job.Events)
	return job, true
}

// appendEvent must be called with the store lock held.
func (s *Store) appendEvent(state *jobState, phase Phase, message, detail, step string, result *Result) Event {
	now := s.now()
	event := Event{
		Timestamp: now,
		Elapsed:   fmt.Sprintf("%.1fs", now.Sub(state.job.StartedAt).Seconds()),
		Phase:     phase,
		Step:      step,
		Message:   message,
		Detail:    detail,
		Result:    result,
	}
	state.job.Events = append(state.job.Events, event)
	return event
}

// snapshotSubscribers must be called with the store lock held. Delivery goes
// to the snapshot only: a subscriber added during another subscriber's
// callback never hears the event being delivered.
func snapshotSubscribers(state *jobState) []subscriber {
	subs := make([]subscriber, len(state.subscribers))
	copy(subs, state.subscribers)
	return subs
}

func deliver(subs []subscriber, event Event) {
	for _, sub := range subs {
		sub.fn(event)
	}
}
