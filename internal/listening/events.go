package listening

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType groups events.
type EventType string

const (
	EventState   EventType = "state"
	EventStage   EventType = "stage"
	EventResult  EventType = "result"
	EventLearner EventType = "learner"
	EventError   EventType = "error"
)

// Stage names one step of segment processing.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageSegment    Stage = "segment"
	StageVerify     Stage = "verify"
	StageTranscribe Stage = "transcribe"
	StageLearn      Stage = "learn"
	StageContext    Stage = "context"
	StageRelevance  Stage = "relevance"
	StageWakeWord   Stage = "wake_word"
	StageIntent     Stage = "intent"
	StageDispatch   Stage = "dispatch"
)

// TraceName is the decision-trail name of an event. A client can rebuild
// one segment's trail from these alone.
type TraceName string

const (
	TraceVAD         TraceName = "vad_status"
	TraceSpeaker     TraceName = "speaker_status"
	TraceTranscript  TraceName = "transcript"
	TraceNoiseFilter TraceName = "noise_filter_result"
	TraceCommand     TraceName = "command_detected"
	TraceMemory      TraceName = "memory_stored"
	TraceError       TraceName = "error"
)

var stageTraces = map[Stage]TraceName{
	StageIngest:     TraceVAD,
	StageVerify:     TraceSpeaker,
	StageTranscribe: TraceTranscript,
	StageRelevance:  TraceNoiseFilter,
}

// traceName picks the trail name for e. Dispatch stages are named by what
// they delivered; events outside the trail get none.
func traceName(e Event) TraceName {
	switch {
	case e.Type == EventError:
		return TraceError
	case e.Type != EventStage:
		return ""
	case e.Stage == StageDispatch && e.Status == StatusDone && e.Decision == "command":
		return TraceCommand
	case e.Stage == StageDispatch && e.Status == StatusDone && e.Decision == "memory":
		return TraceMemory
	}
	return stageTraces[e.Stage]
}

// Status is how a stage ended.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Event is one structured trace record. Every event carries the segment it
// belongs to, if any.
type Event struct {
	Type      EventType      `json:"type"`
	Name      TraceName      `json:"event,omitempty"`
	Stage     Stage          `json:"stage,omitempty"`
	Status    Status         `json:"status,omitempty"`
	Duration  time.Duration  `json:"duration_ns,omitempty"`
	Decision  string         `json:"decision,omitempty"`
	UserID    string         `json:"user_id"`
	SegmentID string         `json:"segment_id,omitempty"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives events. Emit must not block for long; it is called from
// the processing goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink emits to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink writes events to slog. Stage events log at debug, errors at warn,
// everything else at info.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Emit(e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch e.Type {
	case EventStage:
		level = slog.LevelDebug
	case EventError:
		level = slog.LevelWarn
	}
	attrs := []any{
		"type", e.Type,
		"user_id", e.UserID,
	}
	if e.Name != "" {
		attrs = append(attrs, "event", e.Name)
	}
	if e.SegmentID != "" {
		attrs = append(attrs, "segment_id", e.SegmentID)
	}
	if e.Stage != "" {
		attrs = append(attrs, "stage", e.Stage, "status", e.Status)
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration", e.Duration)
	}
	if e.Decision != "" {
		attrs = append(attrs, "decision", e.Decision)
	}
	for k, v := range e.Data {
		attrs = append(attrs, k, v)
	}
	logger.Log(context.Background(), level, "listening: event", attrs...)
}

// FanOut broadcasts events to subscribers such as websocket clients. A slow
// subscriber loses events rather than stalling the pipeline.
type FanOut struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewFanOut returns an empty broadcaster.
func NewFanOut() *FanOut {
	return &FanOut{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel with room for buffer events and a function
// that unsubscribes and closes it.
func (f *FanOut) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Emit delivers e to every subscriber with buffer space.
func (f *FanOut) Emit(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (f *FanOut) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// UserFanOut keeps one FanOut per user so subscribers only see their own
// user's events and one user's traffic never fills another's buffers.
type UserFanOut struct {
	mu    sync.Mutex
	users map[string]*FanOut
}

// NewUserFanOut returns an empty per-user broadcaster.
func NewUserFanOut() *UserFanOut {
	return &UserFanOut{users: make(map[string]*FanOut)}
}

// Subscribe registers a subscriber for userID's events. The user's
// broadcaster is dropped once its last subscriber leaves.
func (u *UserFanOut) Subscribe(userID string, buffer int) (<-chan Event, func()) {
	u.mu.Lock()
	f, ok := u.users[userID]
	if !ok {
		f = NewFanOut()
		u.users[userID] = f
	}
	ch, unsub := f.Subscribe(buffer)
	u.mu.Unlock()

	return ch, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		unsub()
		if f.Subscribers() == 0 && u.users[userID] == f {
			delete(u.users, userID)
		}
	}
}

// Emit routes e to the subscribers of e.UserID.
func (u *UserFanOut) Emit(e Event) {
	u.mu.Lock()
	f := u.users[e.UserID]
	u.mu.Unlock()
	if f != nil {
		f.Emit(e)
	}
}

// Subscribers returns userID's current subscriber count.
func (u *UserFanOut) Subscribers(userID string) int {
	u.mu.Lock()
	f := u.users[userID]
	u.mu.Unlock()
	if f == nil {
		return 0
	}
	return f.Subscribers()
}

var (
	_ Sink = LogSink{}
	_ Sink = (*FanOut)(nil)
	_ Sink = (*UserFanOut)(nil)
	_ Sink = MultiSink(nil)
	_ Sink = SinkFunc(nil)
)
